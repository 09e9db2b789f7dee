package domain

import "time"

// TokenPair represents what the token endpoint returns: the short-lived
// access token (JWT) and the opaque refresh token.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    time.Duration `json:"expires_in"`           // seconds until expiry
	Scope        string        `json:"scope,omitempty"`      // space-delimited
}

// Token models the stored token record. Token values are never persisted in
// the clear; only deterministic fingerprints are stored so revocation and
// introspection can look them up.
type Token struct {
	ID               string
	TokenID          string
	AccessTokenHash  string // fingerprint (base64url SHA-256)
	RefreshTokenHash string // empty when no refresh token was issued
	AgentID          string
	ClientID         string
	Model            string
	Scope            string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	Revoked          bool
	CreatedAt        time.Time
}

// RefreshToken is the reverse index from a refresh token fingerprint to its
// token record. Rotation claims the row atomically: exactly one refresh grant
// can consume a given token.
type RefreshToken struct {
	TokenHash string
	TokenID   string
	AgentID   string
	ClientID  string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
