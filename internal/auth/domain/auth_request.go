package domain

import "time"

// AuthRequestStatus enumerates the lifecycle states of an authorization
// request. The request starts pending; authenticated, completed, expired and
// error are reachable from there. Pollers treat authenticated and completed
// as equivalent terminal-success states.
type AuthRequestStatus string

const (
	AuthRequestPending       AuthRequestStatus = "pending"
	AuthRequestAuthenticated AuthRequestStatus = "authenticated"
	AuthRequestCompleted     AuthRequestStatus = "completed"
	AuthRequestExpired       AuthRequestStatus = "expired"
	AuthRequestError         AuthRequestStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s AuthRequestStatus) Terminal() bool {
	switch s {
	case AuthRequestCompleted, AuthRequestExpired, AuthRequestError:
		return true
	}
	return false
}

// AuthRequest is the aggregate root of one authorization attempt. It is
// created by the authorize endpoint, bound to an agent by the authenticate
// step, and consumed by the token exchange.
type AuthRequest struct {
	ID                  string
	RequestID           string // unguessable, >=128 bits entropy
	ClientID            string
	RedirectURI         string
	State               string // opaque, client-supplied
	CodeChallenge       string
	CodeChallengeMethod string // always "S256"
	Scope               string // space-delimited
	Status              AuthRequestStatus
	AgentID             string // bound at authenticate time
	Model               string
	Code                string // single-use authorization code, handed to the poller
	CodeHash            string // fingerprint of the code; claim and lookup key
	CodeUsed            bool
	Error               string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// ExpiredAt reports whether the request's TTL has elapsed at the given time.
func (r AuthRequest) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
