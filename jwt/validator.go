// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package jwt

import (
	"context"
	"errors"
	"fmt"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrKeysNotPrepared  = errors.New("key material has not been prepared")
	ErrInvalidToken     = errors.New("invalid token")
)

// Validator validates a token and parses its claims.  Claims are returned
// as is; checking their values (issuer, audience, expiry) is left to the
// caller.
type Validator interface {
	// RequiresKeys reports whether ValidateAndParse needs a prepared KeySet.
	RequiresKeys() bool

	// ValidateAndParse validates token, using ks when the validator
	// requires keys, and returns the token's claims.
	ValidateAndParse(ctx context.Context, ks KeySet, token string) (map[string]interface{}, error)
}

// SignatureValidator is a Validator which verifies token signatures with a
// KeySet.
type SignatureValidator struct{}

var _ Validator = SignatureValidator{}

// RequiresKeys implements Validator.RequiresKeys
func (SignatureValidator) RequiresKeys() bool { return true }

// ValidateAndParse implements Validator.ValidateAndParse
func (SignatureValidator) ValidateAndParse(ctx context.Context, ks KeySet, token string) (map[string]interface{}, error) {
	const op = "jwt.(SignatureValidator).ValidateAndParse"
	switch {
	case token == "":
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	case ks == nil:
		return nil, fmt.Errorf("%s: %w", op, ErrKeysNotPrepared)
	}
	claims, err := ks.VerifySignature(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidToken, err)
	}
	return claims, nil
}

// UnverifiedValidator is a Validator which parses tokens without verifying
// their signatures.  It needs no key material and is intended for hosts
// which have already verified the token, or for development against a
// provider without a JWKS endpoint.
type UnverifiedValidator struct{}

var _ Validator = UnverifiedValidator{}

// RequiresKeys implements Validator.RequiresKeys
func (UnverifiedValidator) RequiresKeys() bool { return false }

// ValidateAndParse implements Validator.ValidateAndParse
func (UnverifiedValidator) ValidateAndParse(_ context.Context, _ KeySet, token string) (map[string]interface{}, error) {
	const op = "jwt.(UnverifiedValidator).ValidateAndParse"
	if token == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	claims := gjwt.MapClaims{}
	if _, _, err := gjwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrInvalidToken, err)
	}
	return map[string]interface{}(claims), nil
}
