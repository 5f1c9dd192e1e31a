package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/blogger-platform/internal/model"
	"github.com/iliyamo/blogger-platform/internal/utils"
)

// UserRepo reads account rows for authentication and writes the columns
// owned by the auth flows (password hash, ban flags).
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,login,email,password_hash,is_confirmed,is_banned,ban_reason,ban_date,created_at"

// Create inserts a user and returns its ID. Duplicate login or email
// yields ErrConflict.
func (r *UserRepo) Create(ctx context.Context, login, email, password string, confirmed bool, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (login, email, password_hash, is_confirmed) VALUES (?,?,?,?)",
		strings.TrimSpace(login), email, hash, confirmed)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByLoginOrEmail fetches a user whose login or (normalized) email matches.
func (r *UserRepo) GetByLoginOrEmail(ctx context.Context, loginOrEmail string) (*model.User, error) {
	v := strings.TrimSpace(loginOrEmail)
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE login=? OR email=? LIMIT 1",
		v, strings.ToLower(v)))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpdatePasswordHashTx replaces the stored bcrypt hash inside tx. It
// reports false when no user has the given id.
func (r *UserRepo) UpdatePasswordHashTx(ctx context.Context, tx *sql.Tx, id uint64, hash string) (bool, error) {
	res, err := tx.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	return affected(res, err)
}

// SetBanTx writes the ban flags inside tx. It reports false when no user
// has the given id.
func (r *UserRepo) SetBanTx(ctx context.Context, tx *sql.Tx, b BanChange) (bool, error) {
	var (
		reason sql.NullString
		at     sql.NullTime
	)
	if b.IsBanned {
		reason = sql.NullString{String: b.Reason, Valid: true}
		at = sql.NullTime{Time: b.At.UTC(), Valid: true}
	}
	res, err := tx.ExecContext(ctx,
		"UPDATE users SET is_banned=?, ban_reason=?, ban_date=? WHERE id=?",
		b.IsBanned, reason, at, b.UserID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UserRepo) scanOne(row *sql.Row) (*model.User, error) {
	var (
		u      model.User
		reason sql.NullString
		banAt  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Login, &u.Email, &u.PasswordHash, &u.IsConfirmed, &u.IsBanned, &reason, &banAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if reason.Valid {
		s := reason.String
		u.BanReason = &s
	}
	if banAt.Valid {
		t := banAt.Time
		u.BanDate = &t
	}
	return &u, nil
}
