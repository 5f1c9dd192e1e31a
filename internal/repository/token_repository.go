package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/blogger-platform/internal/utils"
)

// TokenRepo is the refresh-token revocation ledger (`invalid_refresh_tokens`).
// Rows are append-only; the unique (user_id, token_hash) index is the final
// guard against one token being exchanged twice.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// IsRevoked reports whether raw has already been exchanged by userID.
func (r *TokenRepo) IsRevoked(ctx context.Context, userID uint64, raw string) (bool, error) {
	return r.isRevoked(ctx, r.DB, userID, raw)
}

func (r *TokenRepo) isRevoked(ctx context.Context, q dbtx, userID uint64, raw string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM invalid_refresh_tokens WHERE user_id=? AND token_hash=?",
		userID, utils.HashRefreshRaw(raw)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeTx appends raw to the ledger inside tx. A duplicate entry yields
// ErrTokenReused.
func (r *TokenRepo) RevokeTx(ctx context.Context, tx *sql.Tx, userID uint64, raw string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO invalid_refresh_tokens (user_id, token_hash) VALUES (?,?)",
		userID, utils.HashRefreshRaw(raw))
	if err != nil && isDuplicate(err) {
		return ErrTokenReused
	}
	return err
}

// UseRecoveryCodeTx archives a password-recovery code inside tx. A code
// that was already used yields ErrTokenReused.
func (r *TokenRepo) UseRecoveryCodeTx(ctx context.Context, tx *sql.Tx, userID uint64, code string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO used_recovery_codes (user_id, code_hash) VALUES (?,?)",
		userID, utils.HashRefreshRaw(code))
	if err != nil && isDuplicate(err) {
		return ErrTokenReused
	}
	return err
}
