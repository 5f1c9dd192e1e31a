package repository

import (
	"context"
	"database/sql"
	"time"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so query helpers can run
// either standalone or inside a caller-owned transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store groups the repositories that share one database handle and owns
// the multi-step writes that must commit or roll back together.
type Store struct {
	DB        *sql.DB
	Users     *UserRepo
	Sessions  *SessionRepo
	Tokens    *TokenRepo
	Reactions *ReactionRepo
}

// NewStore wires every repository to db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		DB:        db,
		Users:     NewUserRepo(db),
		Sessions:  NewSessionRepo(db),
		Tokens:    NewTokenRepo(db),
		Reactions: NewReactionRepo(db),
	}
}

// WithTx runs fn inside a transaction. The transaction is committed when
// fn returns nil and rolled back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Rotation is the write set of one successful refresh: the presented
// token is archived and the device row moves to the new token's iat/exp.
type Rotation struct {
	UserID         uint64
	DeviceID       string
	PresentedToken string
	IP             string
	Title          string
	LastActiveAt   time.Time
	ExpiresAt      time.Time
}

// Rotate applies r atomically. It returns ErrTokenReused when the
// presented token is already in the ledger (including when a concurrent
// rotation of the same token committed first) and ErrNotFound when the
// device row is gone.
func (s *Store) Rotate(ctx context.Context, r Rotation) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return rotateTx(ctx, tx, s.Sessions, s.Tokens, r)
	})
}

func rotateTx(ctx context.Context, tx *sql.Tx, sessions *SessionRepo, tokens *TokenRepo, r Rotation) error {
	// Lock the device row first so concurrent refreshes of one device queue up here.
	sess, err := sessions.GetForUpdateTx(ctx, tx, r.DeviceID)
	if err != nil {
		return err
	}
	if sess.UserID != r.UserID {
		return ErrNotFound
	}
	used, err := tokens.isRevoked(ctx, tx, r.UserID, r.PresentedToken)
	if err != nil {
		return err
	}
	if used {
		return ErrTokenReused
	}
	if err := tokens.RevokeTx(ctx, tx, r.UserID, r.PresentedToken); err != nil {
		return err
	}
	ok, err := sessions.UpdateActivityTx(ctx, tx, r.DeviceID, r.IP, r.Title, r.LastActiveAt, r.ExpiresAt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// BanChange is a super-admin ban or unban of one account.
type BanChange struct {
	UserID   uint64
	IsBanned bool
	Reason   string
	At       time.Time
}

// SetBan updates the user's ban flags and, when banning, deletes every
// device row of the user in the same transaction.
func (s *Store) SetBan(ctx context.Context, b BanChange) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.Users.SetBanTx(ctx, tx, b)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		if !b.IsBanned {
			return nil
		}
		_, err = s.Sessions.DeleteAllForUserTx(ctx, tx, b.UserID)
		return err
	})
}

// PasswordReset is a new password hash authorized by a recovery code.
type PasswordReset struct {
	UserID       uint64
	RecoveryCode string
	PasswordHash string
}

// ResetPassword consumes the recovery code and stores the new hash in one
// transaction. A code used before yields ErrTokenReused; an unknown user
// yields ErrNotFound.
func (s *Store) ResetPassword(ctx context.Context, p PasswordReset) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.Tokens.UseRecoveryCodeTx(ctx, tx, p.UserID, p.RecoveryCode); err != nil {
			return err
		}
		ok, err := s.Users.UpdatePasswordHashTx(ctx, tx, p.UserID, p.PasswordHash)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	})
}
