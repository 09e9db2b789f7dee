package domain

import "time"

// Agent is a non-interactive principal (an AI system) that authenticates via
// a direct API call against a pending auth request instead of a browser login.
type Agent struct {
	ID               string
	AgentID          string
	SecretHash       string
	OwnerEmail       string
	OwnerName        string
	TwoFactorEnabled bool
	TwoFactorAddress string // mailbox that receives verification codes; empty unless 2FA enabled
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
