package store

import (
	"context"
	"errors"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrAlreadyClaimed is returned by the atomic claim operations when the
	// row was consumed by a concurrent caller (or never existed unclaimed).
	ErrAlreadyClaimed = errors.New("store: already claimed")
)

// Store is the root data access interface. Concrete drivers implement this.
// It exposes sub-repositories to keep concerns tidy and testable.
type Store interface {
	Clients() Clients
	Agents() Agents
	AuthRequests() AuthRequests
	Tokens() Tokens
	RefreshTokens() RefreshTokens
	VerificationCodes() VerificationCodes

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store scope.
type Tx interface {
	Clients() Clients
	Agents() Agents
	AuthRequests() AuthRequests
	Tokens() Tokens
	RefreshTokens() RefreshTokens
	VerificationCodes() VerificationCodes
}

type Clients interface {
	// GetClientByClientID fetches a client by its public client_id.
	GetClientByClientID(ctx context.Context, clientID string) (domain.Client, error)

	// ListClients returns all clients, newest first.
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient inserts a new client (id is a ULID supplied by the app).
	CreateClient(ctx context.Context, c domain.Client) error

	// UpdateClient replaces name and redirect URIs and bumps updated_at.
	UpdateClient(ctx context.Context, clientID, name string, redirectURIs []string) error
}

type Agents interface {
	// GetAgentByAgentID fetches an agent by its public agent_id.
	GetAgentByAgentID(ctx context.Context, agentID string) (domain.Agent, error)

	// ListAgents returns all agents, newest first.
	ListAgents(ctx context.Context) ([]domain.Agent, error)

	// CreateAgent inserts a new agent.
	CreateAgent(ctx context.Context, a domain.Agent) error

	// SetTwoFactor toggles 2FA and records the verification mailbox address.
	SetTwoFactor(ctx context.Context, agentID string, enabled bool, address string) error
}

type AuthRequests interface {
	// CreateAuthRequest stores a freshly minted authorization request.
	CreateAuthRequest(ctx context.Context, r domain.AuthRequest) error

	// GetAuthRequestByRequestID fetches a request by its public request_id.
	GetAuthRequestByRequestID(ctx context.Context, requestID string) (domain.AuthRequest, error)

	// GetAuthRequestByCodeHash fetches the request owning the given
	// authorization code fingerprint (reverse index lookup).
	GetAuthRequestByCodeHash(ctx context.Context, codeHash string) (domain.AuthRequest, error)

	// BindAgent transitions a pending request to authenticated, recording
	// the agent, model, single-use code and its fingerprint.
	BindAgent(ctx context.Context, requestID, agentID, model, code, codeHash string) error

	// SetStatus records a terminal status (expired, error, completed) with
	// an optional error message.
	SetStatus(ctx context.Context, requestID string, status domain.AuthRequestStatus, errMsg string) error

	// ClaimCode atomically marks the code consumed. Exactly one caller wins;
	// all others receive ErrAlreadyClaimed.
	ClaimCode(ctx context.Context, codeHash string) error

	// DeleteExpiredAuthRequests removes requests past their TTL plus a
	// retention margin (housekeeping).
	DeleteExpiredAuthRequests(ctx context.Context, olderThan time.Time) error
}

type Tokens interface {
	// CreateToken stores a new token record.
	CreateToken(ctx context.Context, t domain.Token) error

	// GetTokenByTokenID fetches a token record by its id.
	GetTokenByTokenID(ctx context.Context, tokenID string) (domain.Token, error)

	// GetTokenByAccessTokenHash fetches a token by access token fingerprint.
	GetTokenByAccessTokenHash(ctx context.Context, hash string) (domain.Token, error)

	// RevokeToken flips revoked on the token record. Idempotent.
	RevokeToken(ctx context.Context, tokenID string) error

	// DeleteExpiredTokens removes fully-expired token records (housekeeping).
	DeleteExpiredTokens(ctx context.Context, olderThan time.Time) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores the reverse index entry for a refresh token.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the entry by token fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// ClaimRefreshToken atomically revokes an unrevoked refresh token entry
	// (rotation-on-use). Exactly one caller wins; others receive
	// ErrAlreadyClaimed.
	ClaimRefreshToken(ctx context.Context, hash string) error

	// RevokeRefreshToken flips revoked without claim semantics. Idempotent.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// DeleteExpiredRefreshTokens is optional housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context, olderThan time.Time) error
}

type VerificationCodes interface {
	// CreateVerificationCode stores a new 2FA code and supersedes all unused
	// codes previously issued for the same request.
	CreateVerificationCode(ctx context.Context, c domain.VerificationCode) error

	// GetActiveVerificationCode returns the unused, unexpired code for a
	// request, if any.
	GetActiveVerificationCode(ctx context.Context, requestID string, now time.Time) (domain.VerificationCode, error)

	// ClaimVerificationCode atomically marks a code used. Exactly one caller
	// wins; others receive ErrAlreadyClaimed.
	ClaimVerificationCode(ctx context.Context, id string) error

	// DeleteExpiredVerificationCodes is optional housekeeping.
	DeleteExpiredVerificationCodes(ctx context.Context, olderThan time.Time) error
}
