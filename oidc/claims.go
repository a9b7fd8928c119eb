// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"github.com/hashicorp/anvil-connect/oidc/internal/strutils"
)

// DefaultClockSkew is the leeway allowed when checking a token's expiry.
const DefaultClockSkew = 10 * time.Second

// ClaimContext is what a ClaimChecker checks claims against.
type ClaimContext struct {
	Issuer   string
	ClientID string
	Now      time.Time
}

// ClaimChecker checks the claims of validated tokens and returns the claims
// to attach to the session.
type ClaimChecker interface {
	CheckAccessClaims(claims map[string]interface{}, cc ClaimContext) (map[string]interface{}, error)
	CheckIDClaims(claims map[string]interface{}, cc ClaimContext) (map[string]interface{}, error)
}

// StandardClaimChecker checks the registered claims: iss must match the
// issuer and exp must not have passed.  ID tokens must also carry a sub and
// list the client id in aud.
type StandardClaimChecker struct {
	// ClockSkew overrides DefaultClockSkew when not zero.
	ClockSkew time.Duration
}

var _ ClaimChecker = StandardClaimChecker{}

// CheckAccessClaims implements ClaimChecker.CheckAccessClaims
func (sc StandardClaimChecker) CheckAccessClaims(claims map[string]interface{}, cc ClaimContext) (map[string]interface{}, error) {
	const op = "oidc.(StandardClaimChecker).CheckAccessClaims"
	if err := sc.checkRegistered(claims, cc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return claims, nil
}

// CheckIDClaims implements ClaimChecker.CheckIDClaims
func (sc StandardClaimChecker) CheckIDClaims(claims map[string]interface{}, cc ClaimContext) (map[string]interface{}, error) {
	const op = "oidc.(StandardClaimChecker).CheckIDClaims"
	if err := sc.checkRegistered(claims, cc); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, fmt.Errorf("%s: missing sub claim: %w", op, ErrInvalidParameter)
	}
	if !strutils.StrListContains(audiences(claims["aud"]), cc.ClientID) {
		return nil, fmt.Errorf("%s: aud does not contain client id %q: %w", op, cc.ClientID, ErrInvalidParameter)
	}
	return claims, nil
}

func (sc StandardClaimChecker) checkRegistered(claims map[string]interface{}, cc ClaimContext) error {
	if claims == nil {
		return fmt.Errorf("claims are nil: %w", ErrNilParameter)
	}
	if iss, _ := claims["iss"].(string); iss != cc.Issuer {
		return fmt.Errorf("iss %q does not match issuer %q: %w", iss, cc.Issuer, ErrInvalidParameter)
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return fmt.Errorf("missing exp claim: %w", ErrInvalidParameter)
	}
	skew := sc.ClockSkew
	if skew == 0 {
		skew = DefaultClockSkew
	}
	now := cc.Now
	if now.IsZero() {
		now = time.Now()
	}
	if time.Unix(int64(exp), 0).Add(skew).Before(now) {
		return fmt.Errorf("token expired at %s: %w", time.Unix(int64(exp), 0).UTC(), ErrInvalidParameter)
	}
	return nil
}

// audiences accepts the single string or array forms of aud.
func audiences(aud interface{}) []string {
	switch v := aud.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, a := range v {
			if s, ok := a.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
