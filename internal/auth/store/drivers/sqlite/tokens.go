package sqlite

import (
	"context"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
)

type tokensRepo struct {
	db dbtx
}

const tokenColumns = `id, token_id, access_token_hash, refresh_token_hash,
	agent_id, client_id, model, scope, access_expires_at, refresh_expires_at,
	revoked, created_at`

func scanToken(row interface{ Scan(dest ...any) error }) (domain.Token, error) {
	var t domain.Token
	err := row.Scan(
		&t.ID, &t.TokenID, &t.AccessTokenHash, &t.RefreshTokenHash,
		&t.AgentID, &t.ClientID, &t.Model, &t.Scope,
		&t.AccessExpiresAt, &t.RefreshExpiresAt, &t.Revoked, &t.CreatedAt,
	)
	if err != nil {
		return domain.Token{}, err
	}
	return t, nil
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.Token) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (`+tokenColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenID, t.AccessTokenHash, t.RefreshTokenHash,
		t.AgentID, t.ClientID, t.Model, t.Scope,
		t.AccessExpiresAt, t.RefreshExpiresAt, t.Revoked, t.CreatedAt,
	)
	return mapUniqueViolation(err)
}

func (r *tokensRepo) GetTokenByTokenID(ctx context.Context, tokenID string) (domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE token_id = ?`, tokenID)
	t, err := scanToken(row)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}
	return t, nil
}

func (r *tokensRepo) GetTokenByAccessTokenHash(ctx context.Context, hash string) (domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE access_token_hash = ?`, hash)
	t, err := scanToken(row)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}
	return t, nil
}

// RevokeToken is idempotent: revoking an already-revoked token succeeds.
func (r *tokensRepo) RevokeToken(ctx context.Context, tokenID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tokens SET revoked = 1 WHERE token_id = ?`, tokenID)
	return err
}

func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context, olderThan time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE refresh_expires_at < ? AND access_expires_at < ?`,
		olderThan, olderThan)
	return err
}
