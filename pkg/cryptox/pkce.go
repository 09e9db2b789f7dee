package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
)

// PKCE code verifier bounds per RFC 7636 section 4.1.
const (
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// verifierCharset is the unreserved URI character set permitted in a
// code_verifier.
const verifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

var ErrVerifierLength = errors.New("cryptox: code verifier length out of range")

// PKCEChallenge holds a verifier/challenge pair. The verifier is kept secret
// by the initiating party; only the challenge travels to the authorize
// endpoint.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string // always "S256"
}

// GeneratePKCE creates a new code verifier of the given length from the
// unreserved character set, plus its S256 challenge.
func GeneratePKCE(length int) (*PKCEChallenge, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return nil, ErrVerifierLength
	}

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate PKCE verifier: %w", err)
	}
	for i, b := range buf {
		buf[i] = verifierCharset[int(b)%len(verifierCharset)]
	}
	verifier := string(buf)

	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: ComputeChallenge(verifier),
		Method:    "S256",
	}, nil
}

// ComputeChallenge returns base64url(SHA256(verifier)) without padding.
func ComputeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE recomputes the challenge from the presented verifier and
// compares it against the stored challenge. Verifiers are never compared
// directly. Only the S256 method is accepted.
func VerifyPKCE(verifier, challenge, method string) bool {
	if method != "S256" {
		return false
	}
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return false
	}
	computed := ComputeChallenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
