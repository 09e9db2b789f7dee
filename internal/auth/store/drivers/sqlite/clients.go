package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/agentauth/agentauth/internal/auth/domain"
)

type clientsRepo struct {
	db dbtx
}

const clientColumns = `id, client_id, name, secret_hash, redirect_uris, grant_types, created_at, updated_at`

func scanClient(row interface{ Scan(dest ...any) error }) (domain.Client, error) {
	var (
		c            domain.Client
		redirectURIs string
		grantTypes   string
	)
	err := row.Scan(
		&c.ID, &c.ClientID, &c.Name, &c.SecretHash,
		&redirectURIs, &grantTypes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Client{}, err
	}
	c.AllowedRedirectURIs = splitList(redirectURIs)
	c.AllowedGrantTypes = splitList(grantTypes)
	return c, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func (r *clientsRepo) GetClientByClientID(ctx context.Context, clientID string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE client_id = ?`, clientID)
	c, err := scanClient(row)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ClientID, c.Name, c.SecretHash,
		strings.Join(c.AllowedRedirectURIs, " "),
		strings.Join(c.AllowedGrantTypes, " "),
		c.CreatedAt, c.UpdatedAt,
	)
	return mapUniqueViolation(err)
}

func (r *clientsRepo) UpdateClient(ctx context.Context, clientID, name string, redirectURIs []string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE clients SET name = ?, redirect_uris = ?, updated_at = ? WHERE client_id = ?`,
		name, strings.Join(redirectURIs, " "), time.Now().UTC(), clientID,
	)
	return requireRow(res, err)
}

// requireRow maps a zero-row UPDATE to ErrNotFound.
func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}
