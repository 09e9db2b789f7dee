package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token TTL constants for the agent authorization flow.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = time.Hour

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Claims are access-token claims for authenticated agents. Keep changes
// additive to preserve compatibility for token consumers.
type Claims struct {
	jwt.RegisteredClaims

	// ClientID of the website the agent authorized against.
	ClientID string `json:"client_id,omitempty"`

	// Model identifier the agent reported (e.g. "gpt-4").
	Model string `json:"model,omitempty"`

	// Scope is the space-delimited granted scope string.
	Scope string `json:"scope,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for an agent access token.
// The subject is the agent id.
func NewAccessClaims(agentID, clientID, model, scope, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   agentID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		ClientID: clientID,
		Model:    model,
		Scope:    scope,
	}
}
