package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters for secret hashing.
const (
	secretIterations = 100_000
	secretSaltLength = 16
	secretKeyLength  = 32
)

var ErrSecretMismatch = errors.New("cryptox: secret does not match")

// HashSecret derives a PBKDF2-SHA256 hash of the secret with a fresh random
// salt. The result is stored as "salthex:hashhex".
func HashSecret(secret string) (string, error) {
	salt := make([]byte, secretSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := pbkdf2.Key([]byte(secret), salt, secretIterations, secretKeyLength, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(hash), nil
}

// VerifySecret recomputes the PBKDF2 hash with the stored salt and compares
// in constant time. Returns ErrSecretMismatch when the secret is wrong and a
// format error when the stored value is malformed.
func VerifySecret(secret, encoded string) error {
	saltHex, hashHex, ok := strings.Cut(encoded, ":")
	if !ok {
		return errors.New("cryptox: invalid secret hash format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return errors.New("cryptox: invalid secret hash salt")
	}
	expected, err := hex.DecodeString(hashHex)
	if err != nil {
		return errors.New("cryptox: invalid secret hash digest")
	}

	computed := pbkdf2.Key([]byte(secret), salt, secretIterations, len(expected), sha256.New)
	if subtle.ConstantTimeCompare(computed, expected) != 1 {
		return ErrSecretMismatch
	}
	return nil
}
