package sqlite

import (
	"context"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
)

type authRequestsRepo struct {
	db dbtx
}

const authRequestColumns = `id, request_id, client_id, redirect_uri, state,
	code_challenge, code_challenge_method, scope, status, agent_id, model,
	code, code_hash, code_used, error, created_at, expires_at`

func scanAuthRequest(row interface{ Scan(dest ...any) error }) (domain.AuthRequest, error) {
	var (
		r      domain.AuthRequest
		status string
	)
	err := row.Scan(
		&r.ID, &r.RequestID, &r.ClientID, &r.RedirectURI, &r.State,
		&r.CodeChallenge, &r.CodeChallengeMethod, &r.Scope, &status,
		&r.AgentID, &r.Model, &r.Code, &r.CodeHash, &r.CodeUsed, &r.Error,
		&r.CreatedAt, &r.ExpiresAt,
	)
	if err != nil {
		return domain.AuthRequest{}, err
	}
	r.Status = domain.AuthRequestStatus(status)
	return r, nil
}

func (r *authRequestsRepo) CreateAuthRequest(ctx context.Context, a domain.AuthRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_requests (`+authRequestColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RequestID, a.ClientID, a.RedirectURI, a.State,
		a.CodeChallenge, a.CodeChallengeMethod, a.Scope, string(a.Status),
		a.AgentID, a.Model, a.Code, a.CodeHash, a.CodeUsed, a.Error,
		a.CreatedAt, a.ExpiresAt,
	)
	return mapUniqueViolation(err)
}

func (r *authRequestsRepo) GetAuthRequestByRequestID(ctx context.Context, requestID string) (domain.AuthRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+authRequestColumns+` FROM auth_requests WHERE request_id = ?`, requestID)
	a, err := scanAuthRequest(row)
	if err != nil {
		return domain.AuthRequest{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authRequestsRepo) GetAuthRequestByCodeHash(ctx context.Context, codeHash string) (domain.AuthRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+authRequestColumns+` FROM auth_requests WHERE code_hash = ? AND code_hash != ''`, codeHash)
	a, err := scanAuthRequest(row)
	if err != nil {
		return domain.AuthRequest{}, mapNotFound(err)
	}
	return a, nil
}

// BindAgent only succeeds while the request is still pending, so a second
// authenticate call cannot rebind an already-claimed request.
func (r *authRequestsRepo) BindAgent(ctx context.Context, requestID, agentID, model, code, codeHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auth_requests
		 SET status = ?, agent_id = ?, model = ?, code = ?, code_hash = ?
		 WHERE request_id = ? AND status = ?`,
		string(domain.AuthRequestAuthenticated), agentID, model, code, codeHash,
		requestID, string(domain.AuthRequestPending),
	)
	return requireRow(res, err)
}

func (r *authRequestsRepo) SetStatus(ctx context.Context, requestID string, status domain.AuthRequestStatus, errMsg string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auth_requests SET status = ?, error = ? WHERE request_id = ?`,
		string(status), errMsg, requestID,
	)
	return requireRow(res, err)
}

// ClaimCode is the exactly-once primitive for authorization codes. The
// conditional update means only one concurrent exchange observes a row flip.
func (r *authRequestsRepo) ClaimCode(ctx context.Context, codeHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auth_requests SET code_used = 1 WHERE code_hash = ? AND code_hash != '' AND code_used = 0`,
		codeHash,
	)
	return claimOne(res, err)
}

func (r *authRequestsRepo) DeleteExpiredAuthRequests(ctx context.Context, olderThan time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_requests WHERE expires_at < ?`, olderThan)
	return err
}
