package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/blogger-platform/internal/model"
)

// SessionRepo persists one row per logged-in device in the `devices`
// table. Every mutating query is scoped by user id as well as device id
// so a user can never touch another user's device by guessing its id.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

const sessionColumns = "device_id,user_id,ip,title,last_active_at,expires_at"

// Create inserts a new device row. A duplicate device id yields ErrConflict.
func (r *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO devices ("+sessionColumns+") VALUES (?,?,?,?,?,?)",
		s.DeviceID, s.UserID, s.IP, s.Title, s.LastActiveAt.UTC(), s.ExpiresAt.UTC())
	if err != nil && isDuplicate(err) {
		return ErrConflict
	}
	return err
}

// GetByDeviceID returns the device row or ErrNotFound.
func (r *SessionRepo) GetByDeviceID(ctx context.Context, deviceID string) (*model.Session, error) {
	return scanSession(r.DB.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM devices WHERE device_id=? LIMIT 1", deviceID))
}

// GetForUpdateTx loads the device row and holds a row lock until tx ends.
func (r *SessionRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, deviceID string) (*model.Session, error) {
	return scanSession(tx.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM devices WHERE device_id=? FOR UPDATE", deviceID))
}

// ListByUser returns the user's unexpired devices, most recently active
// first. An expired row can no longer be refreshed, so it is not listed.
func (r *SessionRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Session, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM devices WHERE user_id=? AND expires_at > UTC_TIMESTAMP() ORDER BY last_active_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Session{}
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.DeviceID, &s.UserID, &s.IP, &s.Title, &s.LastActiveAt, &s.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpdateActivityTx moves the device's timestamps to those of its newly
// issued refresh token and records the client it was refreshed from. An
// empty ip or title keeps the stored value. It reports false when the row
// does not exist.
func (r *SessionRepo) UpdateActivityTx(ctx context.Context, tx *sql.Tx, deviceID, ip, title string, lastActiveAt, expiresAt time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE devices SET last_active_at=?, expires_at=?, ip=COALESCE(NULLIF(?,''), ip), title=COALESCE(NULLIF(?,''), title) WHERE device_id=?",
		lastActiveAt.UTC(), expiresAt.UTC(), ip, title, deviceID)
	return affected(res, err)
}

// Delete removes one device owned by userID. It reports false when no
// row matched both ids.
func (r *SessionRepo) Delete(ctx context.Context, deviceID string, userID uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM devices WHERE device_id=? AND user_id=?", deviceID, userID)
	return affected(res, err)
}

// DeleteAllExcept removes every device of userID other than deviceID.
func (r *SessionRepo) DeleteAllExcept(ctx context.Context, deviceID string, userID uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM devices WHERE user_id=? AND device_id<>?", userID, deviceID)
	return err
}

// DeleteAllForUserTx removes every device of userID inside tx and returns
// how many rows were deleted.
func (r *SessionRepo) DeleteAllForUserTx(ctx context.Context, tx *sql.Tx, userID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE user_id=?", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (*model.Session, error) {
	var s model.Session
	if err := row.Scan(&s.DeviceID, &s.UserID, &s.IP, &s.Title, &s.LastActiveAt, &s.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
