// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package jwt

// Alg represents asymmetric signing algorithms
type Alg string

const (
	// JOSE asymmetric signing algorithm values as defined by RFC 7518.
	//
	// See: https://tools.ietf.org/html/rfc7518#section-3.1
	RS256 Alg = "RS256" // RSASSA-PKCS-v1.5 using SHA-256
	RS384 Alg = "RS384" // RSASSA-PKCS-v1.5 using SHA-384
	RS512 Alg = "RS512" // RSASSA-PKCS-v1.5 using SHA-512
	ES256 Alg = "ES256" // ECDSA using P-256 and SHA-256
	ES384 Alg = "ES384" // ECDSA using P-384 and SHA-384
	ES512 Alg = "ES512" // ECDSA using P-521 and SHA-512
	PS256 Alg = "PS256" // RSASSA-PSS using SHA256 and MGF1-SHA256
	PS384 Alg = "PS384" // RSASSA-PSS using SHA384 and MGF1-SHA384
	PS512 Alg = "PS512" // RSASSA-PSS using SHA512 and MGF1-SHA512
)

// DefaultSupportedAlgs returns every asymmetric algorithm accepted when no
// WithSupportedAlgs option is given.
func DefaultSupportedAlgs() []string {
	return []string{
		string(RS256), string(RS384), string(RS512),
		string(ES256), string(ES384), string(ES512),
		string(PS256), string(PS384), string(PS512),
	}
}

// SupportedSigningAlgorithm reports whether a is one of the asymmetric
// algorithms tokens may be signed with.
func SupportedSigningAlgorithm(a Alg) bool {
	for _, s := range DefaultSupportedAlgs() {
		if s == string(a) {
			return true
		}
	}
	return false
}
