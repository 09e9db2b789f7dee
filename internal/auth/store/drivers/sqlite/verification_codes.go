package sqlite

import (
	"context"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
)

type verificationCodesRepo struct {
	db dbtx
}

const verificationCodeColumns = `id, code, agent_id, request_id, used, expires_at, created_at`

// CreateVerificationCode supersedes earlier unused codes for the request
// before inserting, so resends leave exactly one live code.
func (r *verificationCodesRepo) CreateVerificationCode(ctx context.Context, c domain.VerificationCode) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE verification_codes SET used = 1 WHERE request_id = ? AND used = 0`, c.RequestID)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO verification_codes (`+verificationCodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.AgentID, c.RequestID, c.Used, c.ExpiresAt, c.CreatedAt,
	)
	return err
}

func (r *verificationCodesRepo) GetActiveVerificationCode(ctx context.Context, requestID string, now time.Time) (domain.VerificationCode, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+verificationCodeColumns+` FROM verification_codes
		 WHERE request_id = ? AND used = 0 AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 1`,
		requestID, now,
	)

	var c domain.VerificationCode
	err := row.Scan(&c.ID, &c.Code, &c.AgentID, &c.RequestID, &c.Used, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.VerificationCode{}, mapNotFound(err)
	}
	return c, nil
}

func (r *verificationCodesRepo) ClaimVerificationCode(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_codes SET used = 1 WHERE id = ? AND used = 0`, id)
	return claimOne(res, err)
}

func (r *verificationCodesRepo) DeleteExpiredVerificationCodes(ctx context.Context, olderThan time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM verification_codes WHERE expires_at < ?`, olderThan)
	return err
}
