package sqlite

import (
	"context"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
)

type agentsRepo struct {
	db dbtx
}

const agentColumns = `id, agent_id, secret_hash, owner_email, owner_name, two_factor_enabled, two_factor_address, created_at, updated_at`

func scanAgent(row interface{ Scan(dest ...any) error }) (domain.Agent, error) {
	var a domain.Agent
	err := row.Scan(
		&a.ID, &a.AgentID, &a.SecretHash, &a.OwnerEmail, &a.OwnerName,
		&a.TwoFactorEnabled, &a.TwoFactorAddress, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Agent{}, err
	}
	return a, nil
}

func (r *agentsRepo) GetAgentByAgentID(ctx context.Context, agentID string) (domain.Agent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE agent_id = ?`, agentID)
	a, err := scanAgent(row)
	if err != nil {
		return domain.Agent{}, mapNotFound(err)
	}
	return a, nil
}

func (r *agentsRepo) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *agentsRepo) CreateAgent(ctx context.Context, a domain.Agent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AgentID, a.SecretHash, a.OwnerEmail, a.OwnerName,
		a.TwoFactorEnabled, a.TwoFactorAddress, a.CreatedAt, a.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

func (r *agentsRepo) SetTwoFactor(ctx context.Context, agentID string, enabled bool, address string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE agents SET two_factor_enabled = ?, two_factor_address = ?, updated_at = ? WHERE agent_id = ?`,
		enabled, address, time.Now().UTC(), agentID,
	)
	return requireRow(res, err)
}
