package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrInvalidSig = errors.New("jwtx: invalid signature")
	ErrIssuer     = errors.New("jwtx: issuer mismatch")
	ErrExpired    = errors.New("jwtx: token expired")
	ErrKeyTooWeak = errors.New("jwtx: signing key shorter than 32 bytes")
)

// Signer issues signed access tokens.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// Verifier validates a token and gives you back the claims if it's legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// HS256 signs and verifies tokens with a single symmetric key. The service
// owns both ends of the token, so there is no need for an asymmetric scheme
// or key distribution.
type HS256 struct {
	key    []byte
	issuer string
	leeway time.Duration
}

// NewHS256 constructs a symmetric signer/verifier. The key must carry at
// least 256 bits so the HMAC is not the weakest link.
func NewHS256(key []byte, issuer string) (*HS256, error) {
	if len(key) < 32 {
		return nil, ErrKeyTooWeak
	}
	return &HS256{key: key, issuer: issuer, leeway: 30 * time.Second}, nil
}

func (h *HS256) Alg() string { return "HS256" }

// Issuer returns the iss value stamped into signed tokens.
func (h *HS256) Issuer() string { return h.issuer }

// Sign produces a compact HS256 JWT from the claims.
func (h *HS256) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.key)
}

// Verify parses and validates the token. It rejects any algorithm other than
// HS256, a wrong issuer, and expired or not-yet-valid tokens.
func (h *HS256) Verify(tokenString string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSig
		}
		return h.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(h.issuer),
		jwt.WithLeeway(h.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return Claims{}, ErrIssuer
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		default:
			return Claims{}, ErrMalformed
		}
	}
	return claims, nil
}
