package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
	"github.com/agentauth/agentauth/internal/auth/store"
	"github.com/agentauth/agentauth/pkg/cryptox"
	"github.com/agentauth/agentauth/pkg/idx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

const (
	// DefaultVerificationCodeTTL bounds how long an emailed 2FA code stays
	// redeemable.
	DefaultVerificationCodeTTL = 5 * time.Minute

	verificationCodeDigits = 6
)

// AgentService authenticates agents against pending authorization requests.
type AgentService struct {
	Store   store.Store
	Mailer  Mailer
	CodeTTL time.Duration
}

// AuthResult is the outcome of a successful authenticate or verify call.
type AuthResult struct {
	TwoFactorRequired bool
	ExpiresIn         time.Duration // 2FA code validity, set when TwoFactorRequired
}

// Authenticate binds an agent to a pending request. Invalid credentials
// terminate the request with an error status so the polling page can stop.
// When the agent has 2FA enabled the request stays pending and a
// verification code is sent; VerifyTwoFactor completes the binding.
func (s *AgentService) Authenticate(ctx context.Context, requestID, agentID, agentSecret, model string) (AuthResult, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	requestID = strings.TrimSpace(requestID)
	agentID = strings.TrimSpace(agentID)
	if requestID == "" || agentID == "" || agentSecret == "" {
		return AuthResult{}, ErrInvalidCredentials
	}

	req, err := s.loadPending(ctx, requestID, now)
	if err != nil {
		return AuthResult{}, err
	}

	agent, err := s.Store.Agents().GetAgentByAgentID(ctx, agentID)
	credentialsOK := err == nil && cryptox.VerifySecret(agentSecret, agent.SecretHash) == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, err
	}
	if !credentialsOK {
		l.Warn("agent authentication failed",
			slog.String("request_id", requestID),
			slog.String("agent_id", agentID),
		)
		_ = s.Store.AuthRequests().SetStatus(ctx, requestID, domain.AuthRequestError, "invalid agent credentials")
		return AuthResult{}, ErrInvalidCredentials
	}

	if agent.TwoFactorEnabled {
		ttl, err := s.issueVerificationCode(ctx, req, agent, now)
		if err != nil {
			return AuthResult{}, err
		}
		return AuthResult{TwoFactorRequired: true, ExpiresIn: ttl}, nil
	}

	if err := s.bind(ctx, req.RequestID, agent.AgentID, model); err != nil {
		return AuthResult{}, err
	}

	l.Info("agent authenticated",
		slog.String("request_id", requestID),
		slog.String("agent_id", agentID),
	)
	return AuthResult{}, nil
}

// VerifyTwoFactor redeems a verification code and completes the binding the
// earlier Authenticate call deferred. A wrong code does not terminate the
// request; the agent may retry until the code expires.
func (s *AgentService) VerifyTwoFactor(ctx context.Context, requestID, code, model string) (AuthResult, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	req, err := s.loadPending(ctx, requestID, now)
	if err != nil {
		return AuthResult{}, err
	}

	vc, err := s.Store.VerificationCodes().GetActiveVerificationCode(ctx, requestID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthResult{}, ErrInvalidCode
		}
		return AuthResult{}, err
	}

	if subtle.ConstantTimeCompare([]byte(vc.Code), []byte(strings.TrimSpace(code))) != 1 {
		l.Warn("verification code mismatch", slog.String("request_id", requestID))
		return AuthResult{}, ErrInvalidCode
	}

	// Exactly one verify call may redeem a code.
	if err := s.Store.VerificationCodes().ClaimVerificationCode(ctx, vc.ID); err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			return AuthResult{}, ErrInvalidCode
		}
		return AuthResult{}, err
	}

	if err := s.bind(ctx, req.RequestID, vc.AgentID, model); err != nil {
		return AuthResult{}, err
	}

	l.Info("agent authenticated via 2fa",
		slog.String("request_id", requestID),
		slog.String("agent_id", vc.AgentID),
	)
	return AuthResult{}, nil
}

// loadPending fetches the request and enforces the pending-only rule,
// applying the lazy expiry transition on the way.
func (s *AgentService) loadPending(ctx context.Context, requestID string, now time.Time) (domain.AuthRequest, error) {
	req, err := s.Store.AuthRequests().GetAuthRequestByRequestID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthRequest{}, ErrRequestNotFound
		}
		return domain.AuthRequest{}, err
	}

	expirable := req.Status == domain.AuthRequestPending || req.Status == domain.AuthRequestAuthenticated
	if expirable && req.ExpiredAt(now) {
		_ = s.Store.AuthRequests().SetStatus(ctx, requestID, domain.AuthRequestExpired, "")
		return domain.AuthRequest{}, ErrRequestExpired
	}
	if req.Status != domain.AuthRequestPending {
		return domain.AuthRequest{}, ErrRequestNotPending
	}
	return req, nil
}

// bind mints the single-use authorization code and moves the request to
// authenticated. The pending-only guard in the store rejects concurrent
// double binds.
func (s *AgentService) bind(ctx context.Context, requestID, agentID, model string) error {
	code, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	err = s.Store.AuthRequests().BindAgent(ctx, requestID, agentID, model, code, cryptox.FingerprintToken(code))
	if errors.Is(err, store.ErrNotFound) {
		return ErrRequestNotPending
	}
	return err
}

func (s *AgentService) issueVerificationCode(ctx context.Context, req domain.AuthRequest, agent domain.Agent, now time.Time) (time.Duration, error) {
	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = DefaultVerificationCodeTTL
	}

	code, err := cryptox.GenerateNumericCode(verificationCodeDigits)
	if err != nil {
		return 0, err
	}

	vc := domain.VerificationCode{
		ID:        idx.New().String(),
		Code:      code,
		AgentID:   agent.AgentID,
		RequestID: req.RequestID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.Store.VerificationCodes().CreateVerificationCode(ctx, vc); err != nil {
		return 0, err
	}

	address := agent.TwoFactorAddress
	if address == "" {
		address = agent.OwnerEmail
	}
	if err := s.Mailer.SendVerificationCode(ctx, address, code, ttl); err != nil {
		// The code is already stored; a delivery failure should not strand
		// the request in a worse state than "code never arrived".
		slogx.FromContext(ctx).Error("verification code delivery failed",
			slog.Any("error", err),
			slog.String("request_id", req.RequestID),
		)
	}
	return ttl, nil
}
