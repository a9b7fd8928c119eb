// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/hashicorp/anvil-connect/jwt"
	"github.com/hashicorp/anvil-connect/sdk/cryptor"
)

// validation is the state shared by the steps of one callback validation.
type validation struct {
	response     map[string]string
	keySet       jwt.KeySet
	accessClaims map[string]interface{}
	idClaims     map[string]interface{}
}

type validationStep struct {
	name string
	run  func(ctx context.Context, v *validation) error
}

// validationSteps returns the checks applied to a callback response.  Each
// step only runs once the previous one succeeded.
func (c *Client) validationSteps() []validationStep {
	return []validationStep{
		{name: "keys", run: c.checkKeys},
		{name: "access_token", run: c.tokenStep(ResponseTypeToken)},
		{name: "id_token", run: c.tokenStep(ResponseTypeIDToken)},
		{name: "nonce", run: c.verifyNonce},
		{name: "at_hash", run: c.verifyAtHash},
	}
}

// validate runs every step in order and stops at the first failure.
func (c *Client) validate(ctx context.Context, v *validation) error {
	for _, s := range c.validationSteps() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.run(ctx, v); err != nil {
			c.logger.Debug("callback validation failed", "step", s.name, "error", err)
			return err
		}
	}
	return nil
}

func (c *Client) checkKeys(_ context.Context, v *validation) error {
	const op = "oidc.(Client).checkKeys"
	if !c.validator.RequiresKeys() {
		return nil
	}
	v.keySet = c.keys.KeySet()
	if v.keySet == nil {
		return fmt.Errorf("%s: PrepareAuthorization must succeed before tokens can be validated: %w", op, ErrConfiguration)
	}
	return nil
}

// tokenStep validates the response's token of type t when the configured
// response type requires it.
func (c *Client) tokenStep(t ResponseType) func(context.Context, *validation) error {
	return func(ctx context.Context, v *validation) error {
		const op = "oidc.(Client).validateToken"
		if !c.config.ResponseType.Requires(string(t)) {
			return nil
		}
		field := "id_token"
		check := c.claims.CheckIDClaims
		if t == ResponseTypeToken {
			field = "access_token"
			check = c.claims.CheckAccessClaims
		}
		token := v.response[field]
		if token == "" {
			return fmt.Errorf("%s: expected %s not in response: %w", op, field, ErrMissingToken)
		}
		claims, err := c.validator.ValidateAndParse(ctx, v.keySet, token)
		if err != nil {
			return fmt.Errorf("%s: %w", op, &TokenValidationError{TokenType: field, Err: err})
		}
		claims, err = check(claims, ClaimContext{
			Issuer:   c.config.Issuer,
			ClientID: c.config.ClientID,
			Now:      c.now(),
		})
		if err != nil {
			return fmt.Errorf("%s: %w", op, &TokenValidationError{TokenType: field, Err: err})
		}
		if t == ResponseTypeToken {
			v.accessClaims = claims
		} else {
			v.idClaims = claims
		}
		return nil
	}
}

func (c *Client) verifyNonce(ctx context.Context, v *validation) error {
	const op = "oidc.(Client).verifyNonce"
	if v.idClaims == nil {
		return nil
	}
	nonce, _ := v.idClaims["nonce"].(string)
	ok, err := c.nonces.Verify(ctx, nonce)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", op, ErrNonceMismatch)
	}
	return nil
}

// verifyAtHash binds the access token to the id token.  It only applies when
// both are requested.
func (c *Client) verifyAtHash(_ context.Context, v *validation) error {
	const op = "oidc.(Client).verifyAtHash"
	if c.config.ResponseType != ResponseTypeIDTokenToken || v.idClaims == nil {
		return nil
	}
	got, _ := v.idClaims["at_hash"].(string)
	want := cryptor.AtHash(v.response["access_token"])
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return fmt.Errorf("%s: %w", op, ErrAtHashMismatch)
	}
	return nil
}
