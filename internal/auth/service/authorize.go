package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
	"github.com/agentauth/agentauth/internal/auth/store"
	"github.com/agentauth/agentauth/pkg/cryptox"
	"github.com/agentauth/agentauth/pkg/idx"
	"github.com/agentauth/agentauth/pkg/slogx"
	"github.com/agentauth/agentauth/pkg/urlx"
)

// DefaultAuthRequestTTL bounds how long an authorization request may sit
// before an agent authenticates against it.
const DefaultAuthRequestTTL = 10 * time.Minute

// scopePattern accepts space-delimited lowercase identifiers.
var scopePattern = regexp.MustCompile(`^[a-z0-9_]+( [a-z0-9_]+)*$`)

// base64url without padding, as produced by an S256 challenge.
var challengePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// AuthorizeService creates authorization requests and answers status polls.
type AuthorizeService struct {
	Store      store.Store
	RequestTTL time.Duration
}

// BeginAuthorizationParams carries the /authorize query parameters.
type BeginAuthorizationParams struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Scope               string
}

// BeginAuthorization validates the parameters and persists a pending
// AuthRequest. Every validation failure is terminal for the attempt: the
// caller renders an error page, never a redirect back to the client.
func (s *AuthorizeService) BeginAuthorization(ctx context.Context, p BeginAuthorizationParams) (domain.AuthRequest, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	if p.ResponseType != "code" {
		return domain.AuthRequest{}, ErrInvalidGrant
	}

	client, err := s.Store.Clients().GetClientByClientID(ctx, p.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthRequest{}, ErrInvalidClient
		}
		return domain.AuthRequest{}, err
	}

	// The redirect URI must be registered byte-for-byte and satisfy the
	// https-or-localhost policy.
	if !client.AllowsRedirectURI(p.RedirectURI) {
		l.Warn("authorize rejected unregistered redirect_uri",
			slog.String("client_id", p.ClientID),
			slog.String("redirect_uri", p.RedirectURI),
		)
		return domain.AuthRequest{}, ErrInvalidRedirectURI
	}
	if err := urlx.ValidateRedirectURI(p.RedirectURI); err != nil {
		l.Warn("authorize rejected insecure redirect_uri",
			slog.String("client_id", p.ClientID),
			slog.Any("error", err),
		)
		return domain.AuthRequest{}, ErrInvalidRedirectURI
	}

	if p.CodeChallengeMethod != "S256" || !challengePattern.MatchString(p.CodeChallenge) {
		return domain.AuthRequest{}, ErrInvalidChallenge
	}

	scope := strings.TrimSpace(p.Scope)
	if scope != "" && !scopePattern.MatchString(scope) {
		return domain.AuthRequest{}, ErrInvalidScope
	}

	requestID, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.AuthRequest{}, err
	}

	ttl := s.RequestTTL
	if ttl <= 0 {
		ttl = DefaultAuthRequestTTL
	}

	req := domain.AuthRequest{
		ID:                  idx.New().String(),
		RequestID:           requestID,
		ClientID:            p.ClientID,
		RedirectURI:         p.RedirectURI,
		State:               p.State,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		Scope:               scope,
		Status:              domain.AuthRequestPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}

	if err := s.Store.AuthRequests().CreateAuthRequest(ctx, req); err != nil {
		return domain.AuthRequest{}, err
	}

	l.Info("authorization request created",
		slog.String("client_id", p.ClientID),
		slog.String("request_id", requestID),
	)
	return req, nil
}

// Session is what the authorization page (and the agent SDK's JSON endpoint)
// may learn about a request: enough to authenticate against it, nothing that
// would let a bystander complete the flow.
type Session struct {
	RequestID  string    `json:"request_id"`
	ClientName string    `json:"client_name"`
	Status     string    `json:"status"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// GetSession returns the session view of a request, lazily transitioning it
// to expired when its TTL has passed.
func (s *AuthorizeService) GetSession(ctx context.Context, requestID string) (Session, error) {
	req, err := s.loadFresh(ctx, requestID)
	if err != nil {
		return Session{}, err
	}

	clientName := req.ClientID
	if client, err := s.Store.Clients().GetClientByClientID(ctx, req.ClientID); err == nil {
		clientName = client.Name
	}

	return Session{
		RequestID:  req.RequestID,
		ClientName: clientName,
		Status:     string(req.Status),
		ExpiresAt:  req.ExpiresAt,
	}, nil
}

// StatusResult is the check-status payload. Code, RedirectURI and State are
// populated only once an agent has authenticated, so the polling page can
// complete the redirect back to the client.
type StatusResult struct {
	Status      string `json:"status"`
	Code        string `json:"code,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	State       string `json:"state,omitempty"`
	Error       string `json:"error,omitempty"`
}

// CheckStatus reports where a request is in its lifecycle. Authenticated and
// completed are equivalent to the poller; the first poll that observes
// authenticated advances the request to completed.
func (s *AuthorizeService) CheckStatus(ctx context.Context, requestID string) (StatusResult, error) {
	req, err := s.loadFresh(ctx, requestID)
	if err != nil {
		return StatusResult{}, err
	}

	switch req.Status {
	case domain.AuthRequestAuthenticated, domain.AuthRequestCompleted:
		if req.Status == domain.AuthRequestAuthenticated {
			// Best effort; the poller does not care whether this lands.
			_ = s.Store.AuthRequests().SetStatus(ctx, requestID, domain.AuthRequestCompleted, "")
		}
		return StatusResult{
			Status:      string(req.Status),
			Code:        req.Code,
			RedirectURI: req.RedirectURI,
			State:       req.State,
		}, nil
	case domain.AuthRequestError:
		return StatusResult{Status: string(req.Status), Error: req.Error}, nil
	default:
		return StatusResult{Status: string(req.Status)}, nil
	}
}

// loadFresh fetches a request and applies the lazy expiry transition before
// anyone acts on stale state. Pending and authenticated requests both expire
// on TTL elapse; completed and error are terminal.
func (s *AuthorizeService) loadFresh(ctx context.Context, requestID string) (domain.AuthRequest, error) {
	req, err := s.Store.AuthRequests().GetAuthRequestByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthRequest{}, ErrRequestNotFound
		}
		return domain.AuthRequest{}, err
	}

	expirable := req.Status == domain.AuthRequestPending || req.Status == domain.AuthRequestAuthenticated
	if expirable && req.ExpiredAt(time.Now().UTC()) {
		if err := s.Store.AuthRequests().SetStatus(ctx, requestID, domain.AuthRequestExpired, ""); err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.AuthRequest{}, err
		}
		req.Status = domain.AuthRequestExpired
	}
	return req, nil
}
