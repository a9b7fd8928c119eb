// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

// Package cryptor provides the symmetric encryption and hashing used to
// protect a persisted relying party session.
package cryptor

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/hashicorp/anvil-connect/sdk/id"
	"github.com/hashicorp/go-uuid"
	"gopkg.in/square/go-jose.v2"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDecrypt          = errors.New("unable to decrypt")
)

// Cryptor encrypts a session into a (secret, ciphertext) pair and reverses
// the process.  The ciphertext is useless without the secret.
type Cryptor interface {
	// Encrypt generates fresh secret key material and returns it along with
	// the ciphertext of plaintext.
	Encrypt(ctx context.Context, plaintext []byte) (secret string, ciphertext string, err error)

	// Decrypt recovers plaintext from ciphertext using secret.
	Decrypt(ctx context.Context, secret, ciphertext string) ([]byte, error)

	// GenerateNonce returns a fresh random nonce.
	GenerateNonce() (string, error)
}

// keyBytes is the size of an A256GCM content encryption key.
const keyBytes = 32

// JOSE is a Cryptor which protects plaintext as a compact JWE using direct
// key agreement and A256GCM content encryption.  Every Encrypt uses a new
// random key, which becomes the secret.
type JOSE struct{}

var _ Cryptor = (*JOSE)(nil)

// NewJOSE creates a JOSE Cryptor.
func NewJOSE() *JOSE { return &JOSE{} }

// Encrypt implements Cryptor.Encrypt
func (*JOSE) Encrypt(_ context.Context, plaintext []byte) (string, string, error) {
	const op = "cryptor.(JOSE).Encrypt"
	key, err := uuid.GenerateRandomBytes(keyBytes)
	if err != nil {
		return "", "", fmt.Errorf("%s: unable to generate key: %w", op, err)
	}
	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.DIRECT, Key: key}, nil)
	if err != nil {
		return "", "", fmt.Errorf("%s: unable to create encrypter: %w", op, err)
	}
	obj, err := enc.Encrypt(plaintext)
	if err != nil {
		return "", "", fmt.Errorf("%s: unable to encrypt: %w", op, err)
	}
	ciphertext, err := obj.CompactSerialize()
	if err != nil {
		return "", "", fmt.Errorf("%s: unable to serialize: %w", op, err)
	}
	return base64.RawURLEncoding.EncodeToString(key), ciphertext, nil
}

// Decrypt implements Cryptor.Decrypt
func (*JOSE) Decrypt(_ context.Context, secret, ciphertext string) ([]byte, error) {
	const op = "cryptor.(JOSE).Decrypt"
	switch {
	case secret == "":
		return nil, fmt.Errorf("%s: secret is empty: %w", op, ErrInvalidParameter)
	case ciphertext == "":
		return nil, fmt.Errorf("%s: ciphertext is empty: %w", op, ErrInvalidParameter)
	}
	key, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil || len(key) != keyBytes {
		return nil, fmt.Errorf("%s: malformed secret: %w", op, ErrInvalidParameter)
	}
	obj, err := jose.ParseEncrypted(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed ciphertext: %w: %s", op, ErrDecrypt, err)
	}
	plaintext, err := obj.Decrypt(key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrDecrypt, err)
	}
	return plaintext, nil
}

// GenerateNonce implements Cryptor.GenerateNonce
func (*JOSE) GenerateNonce() (string, error) {
	const op = "cryptor.(JOSE).GenerateNonce"
	n, err := id.New("")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// SHA256URL returns the unpadded base64url encoding of the SHA-256 hash of s.
func SHA256URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AtHash returns the access token hash for an access token signed with a
// SHA-256 based algorithm: the base64url encoding of the left-most half of
// the hash.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#ImplicitIDTValidation
func AtHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
