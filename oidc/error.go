// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrNotFound         = errors.New("not found")
	ErrConfiguration    = errors.New("configuration error")
	ErrMissingToken     = errors.New("missing token")
	ErrTokenValidation  = errors.New("token validation failed")
	ErrNonceMismatch    = errors.New("invalid nonce")
	ErrAtHashMismatch   = errors.New("invalid at_hash")
	ErrUserInfoMismatch = errors.New("user info mismatch")
	ErrDeserialize      = errors.New("unable to deserialize session")
	ErrAuthorization    = errors.New("authorization failed")
)

// TokenValidationError is returned when the token validator or the claim
// checker rejects a token from a callback response.
type TokenValidationError struct {
	// TokenType is the response field of the rejected token: "access_token"
	// or "id_token".
	TokenType string

	Err error
}

// Error implements the error interface.
func (e *TokenValidationError) Error() string {
	return fmt.Sprintf("%s not validated: %s", e.TokenType, e.Err)
}

// Unwrap returns the cause.
func (e *TokenValidationError) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrTokenValidation) to match.
func (e *TokenValidationError) Is(target error) bool {
	return target == ErrTokenValidation
}

// AuthorizationError is the error response returned by the provider instead of
// tokens.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthorizationError struct {
	// Code is the response's error field, for example "access_denied".
	Code        string
	Description string
	URI         string

	// SessionState is the response's session_state, if any.
	SessionState string
}

// Error implements the error interface.
func (e *AuthorizationError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// Is allows errors.Is(err, ErrAuthorization) to match.
func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorization
}
