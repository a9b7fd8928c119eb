// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package id

import (
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// DefaultIDBytes is the number of random bytes used to generate an ID.
const DefaultIDBytes = 16

// New generates an unpadded base64url ID with an optional prefix. The ID is
// suitable for an oidc nonce or a client origin.
func New(optionalPrefix string) (string, error) {
	b, err := uuid.GenerateRandomBytes(DefaultIDBytes)
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	id := base64.RawURLEncoding.EncodeToString(b)
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}
