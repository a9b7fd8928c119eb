// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"strconv"
)

// Session is the relying party's record of an authenticated user.  It's
// either empty or the complete result of a validated callback; it's never
// updated field by field.
type Session struct {
	AccessToken  string `json:"access_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	SessionState string `json:"session_state,omitempty"`
	TokenType    string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds.  It also bounds how
	// long the persisted session can be decrypted.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	UserInfo     map[string]interface{} `json:"userInfo,omitempty"`
	AccessClaims map[string]interface{} `json:"access_claims,omitempty"`
	IDClaims     map[string]interface{} `json:"id_claims,omitempty"`

	// Extra holds any other fields of the callback response, such as scope.
	Extra map[string]string `json:"extra,omitempty"`
}

// IsEmpty reports whether s holds nothing.
func (s *Session) IsEmpty() bool {
	if s == nil {
		return true
	}
	return s.AccessToken == "" &&
		s.IDToken == "" &&
		s.SessionState == "" &&
		s.TokenType == "" &&
		s.ExpiresIn == 0 &&
		len(s.UserInfo) == 0 &&
		len(s.AccessClaims) == 0 &&
		len(s.IDClaims) == 0 &&
		len(s.Extra) == 0
}

// Clone returns a copy of s which shares no maps with it.  Claim values are
// copied shallowly.
func (s *Session) Clone() *Session {
	if s == nil {
		return &Session{}
	}
	c := *s
	c.UserInfo = cloneMap(s.UserInfo)
	c.AccessClaims = cloneMap(s.AccessClaims)
	c.IDClaims = cloneMap(s.IDClaims)
	if s.Extra != nil {
		c.Extra = make(map[string]string, len(s.Extra))
		for k, v := range s.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// Subject returns the id token's sub claim.
func (s *Session) Subject() string {
	if s == nil {
		return ""
	}
	sub, _ := s.IDClaims["sub"].(string)
	return sub
}

// newSession builds a session from a validated callback response.
func newSession(response map[string]string, accessClaims, idClaims map[string]interface{}) *Session {
	s := &Session{
		AccessClaims: accessClaims,
		IDClaims:     idClaims,
	}
	for k, v := range response {
		switch k {
		case "access_token":
			s.AccessToken = v
		case "id_token":
			s.IDToken = v
		case "session_state":
			s.SessionState = v
		case "token_type":
			s.TokenType = v
		case "expires_in":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				s.ExpiresIn = n
			}
		default:
			if s.Extra == nil {
				s.Extra = map[string]string{}
			}
			s.Extra[k] = v
		}
	}
	return s
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
