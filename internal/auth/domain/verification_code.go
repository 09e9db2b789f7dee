package domain

import "time"

// VerificationCode is a short-lived, single-use 2FA code mailed to an agent's
// verification address. Issuing a new code for a request supersedes all
// earlier unused codes for the same request.
type VerificationCode struct {
	ID        string
	Code      string
	AgentID   string
	RequestID string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
