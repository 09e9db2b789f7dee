package sqlite

import (
	"database/sql"

	"github.com/agentauth/agentauth/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Clients() store.Clients             { return &clientsRepo{db: t.tx} }
func (t *txStore) Agents() store.Agents               { return &agentsRepo{db: t.tx} }
func (t *txStore) AuthRequests() store.AuthRequests   { return &authRequestsRepo{db: t.tx} }
func (t *txStore) Tokens() store.Tokens               { return &tokensRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) VerificationCodes() store.VerificationCodes {
	return &verificationCodesRepo{db: t.tx}
}
