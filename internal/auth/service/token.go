package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
	"github.com/agentauth/agentauth/internal/auth/store"
	"github.com/agentauth/agentauth/pkg/cryptox"
	"github.com/agentauth/agentauth/pkg/idx"
	"github.com/agentauth/agentauth/pkg/jwtx"
	"github.com/agentauth/agentauth/pkg/slogx"
)

// TokenService exchanges authorization codes and refresh tokens for signed
// access tokens, and answers introspection and revocation.
type TokenService struct {
	Signer     *jwtx.HS256
	Store      store.Store
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// ExchangeAuthorizationCode implements the authorization_code grant.
//
// It authenticates the client, checks the stored request against the
// presented redirect URI, enforces PKCE by recomputation, claims the code
// atomically (exactly one concurrent exchange wins) and issues tokens.
func (s *TokenService) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI, codeVerifier string,
) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrantType("authorization_code") {
		return nil, ErrInvalidGrant
	}

	code = strings.TrimSpace(code)
	redirectURI = strings.TrimSpace(redirectURI)
	codeVerifier = strings.TrimSpace(codeVerifier)
	if code == "" || redirectURI == "" || codeVerifier == "" {
		return nil, ErrInvalidGrant
	}

	codeHash := cryptox.FingerprintToken(code)

	var result *domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		req, err := tx.AuthRequests().GetAuthRequestByCodeHash(ctx, codeHash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		if req.ClientID != client.ClientID {
			return ErrInvalidClient
		}
		// Byte-for-byte, exactly what /authorize stored.
		if req.RedirectURI != redirectURI {
			return ErrInvalidGrant
		}
		if req.CodeUsed || req.ExpiredAt(now) {
			return ErrInvalidGrant
		}
		if !cryptox.VerifyPKCE(codeVerifier, req.CodeChallenge, req.CodeChallengeMethod) {
			l.Warn("PKCE verification failed",
				slog.String("client_id", clientID),
				slog.String("request_id", req.RequestID),
			)
			return ErrInvalidGrant
		}

		// The single hard invariant: exactly one exchange may claim a code.
		if err := tx.AuthRequests().ClaimCode(ctx, codeHash); err != nil {
			if errors.Is(err, store.ErrAlreadyClaimed) {
				return ErrInvalidGrant
			}
			return err
		}

		pair, err := s.issue(ctx, tx, req.AgentID, client.ClientID, req.Model, req.Scope, now)
		if err != nil {
			return err
		}

		if err := tx.AuthRequests().SetStatus(ctx, req.RequestID, domain.AuthRequestCompleted, ""); err != nil {
			return err
		}

		result = pair
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Info("authorization code exchanged", slog.String("client_id", clientID))
	return result, nil
}

// ExchangeRefreshToken implements the refresh_token grant with rotation:
// the presented refresh token is atomically revoked and a fresh one issued,
// so a replayed refresh token fails cleanly.
func (s *TokenService) ExchangeRefreshToken(
	ctx context.Context,
	clientID, clientSecret, refreshToken string,
) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrantType("refresh_token") {
		return nil, ErrInvalidGrant
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidGrant
	}
	hash := cryptox.FingerprintToken(refreshToken)

	var result *domain.TokenPair
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		entry, err := tx.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		if entry.ClientID != client.ClientID || entry.Revoked || now.After(entry.ExpiresAt) {
			return ErrInvalidGrant
		}

		prev, err := tx.Tokens().GetTokenByTokenID(ctx, entry.TokenID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		if prev.Revoked {
			return ErrInvalidGrant
		}

		// Rotation: claim (revoke) the old token before minting new ones.
		if err := tx.RefreshTokens().ClaimRefreshToken(ctx, hash); err != nil {
			if errors.Is(err, store.ErrAlreadyClaimed) {
				return ErrInvalidGrant
			}
			return err
		}

		pair, err := s.issue(ctx, tx, entry.AgentID, client.ClientID, prev.Model, prev.Scope, now)
		if err != nil {
			return err
		}

		result = pair
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Info("refresh token rotated", slog.String("client_id", clientID))
	return result, nil
}

// issue mints an access JWT and an opaque refresh token, persisting only
// fingerprints of both.
func (s *TokenService) issue(ctx context.Context, tx store.Tx, agentID, clientID, model, scope string, now time.Time) (*domain.TokenPair, error) {
	claims := jwtx.NewAccessClaims(agentID, clientID, model, scope, s.Signer.Issuer(), s.accessTTL(), now)
	accessToken, err := s.Signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	refreshOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}
	refreshHash := cryptox.FingerprintToken(refreshOpaque)

	tokenID := claims.ID // jti doubles as the record's token_id
	record := domain.Token{
		ID:               idx.New().String(),
		TokenID:          tokenID,
		AccessTokenHash:  cryptox.FingerprintToken(accessToken),
		RefreshTokenHash: refreshHash,
		AgentID:          agentID,
		ClientID:         clientID,
		Model:            model,
		Scope:            scope,
		AccessExpiresAt:  now.Add(s.accessTTL()),
		RefreshExpiresAt: now.Add(s.refreshTTL()),
		CreatedAt:        now,
	}
	if err := tx.Tokens().CreateToken(ctx, record); err != nil {
		return nil, err
	}

	entry := domain.RefreshToken{
		TokenHash: refreshHash,
		TokenID:   tokenID,
		AgentID:   agentID,
		ClientID:  clientID,
		ExpiresAt: record.RefreshExpiresAt,
		CreatedAt: now,
	}
	if err := tx.RefreshTokens().CreateRefreshToken(ctx, entry); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    s.accessTTL(),
		Scope:        scope,
	}, nil
}

// Introspection is the introspect endpoint's view of a token. Any failure
// collapses to Active == false with no detail.
type Introspection struct {
	Active    bool   `json:"active"`
	Subject   string `json:"sub,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Model     string `json:"model,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// Introspect verifies the access token's signature and claims and cross
// checks the stored record for revocation. It never explains a failure.
func (s *TokenService) Introspect(ctx context.Context, token string) Introspection {
	token = strings.TrimSpace(token)
	if token == "" {
		return Introspection{}
	}

	claims, err := s.Signer.Verify(token)
	if err != nil {
		return Introspection{}
	}

	record, err := s.Store.Tokens().GetTokenByAccessTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil || record.Revoked || time.Now().UTC().After(record.AccessExpiresAt) {
		return Introspection{}
	}

	return Introspection{
		Active:    true,
		Subject:   claims.Subject,
		ClientID:  claims.ClientID,
		Model:     claims.Model,
		Scope:     claims.Scope,
		TokenType: "Bearer",
		ExpiresAt: claims.ExpiresAt.Unix(),
	}
}

// Revoke invalidates a token presented by value. The caller may hand in
// either the access token or the refresh token; both sides of the pair are
// revoked. Unknown tokens are a no-op, so revocation is idempotent.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	hash := cryptox.FingerprintToken(token)

	if record, err := s.Store.Tokens().GetTokenByAccessTokenHash(ctx, hash); err == nil {
		if err := s.Store.Tokens().RevokeToken(ctx, record.TokenID); err != nil {
			return err
		}
		if record.RefreshTokenHash != "" {
			return s.Store.RefreshTokens().RevokeRefreshToken(ctx, record.RefreshTokenHash)
		}
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if entry, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, hash); err == nil {
		if err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, hash); err != nil {
			return err
		}
		return s.Store.Tokens().RevokeToken(ctx, entry.TokenID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return nil
}

// authenticateClient verifies a confidential client's id and secret without
// revealing which of the two was wrong.
func (s *TokenService) authenticateClient(ctx context.Context, clientID, clientSecret string) (domain.Client, error) {
	client, err := s.Store.Clients().GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}

	if client.SecretHash != "" {
		if clientSecret == "" || cryptox.VerifySecret(clientSecret, client.SecretHash) != nil {
			slogx.FromContext(ctx).Warn("client authentication failed", slog.String("client_id", clientID))
			return domain.Client{}, ErrInvalidClient
		}
	}
	return client, nil
}
