package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/blogger-platform/internal/model"
	"github.com/iliyamo/blogger-platform/internal/utils"
)

func TestSessionRepo_ListByUserSkipsExpired(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE user_id=? AND expires_at > UTC_TIMESTAMP() ORDER BY last_active_at DESC")).
		WithArgs(7).
		WillReturnRows(deviceRows(7))

	list, err := s.Sessions.ListByUser(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 1 || list[0].DeviceID != "dev-1" || list[0].UserID != 7 {
		t.Errorf("list = %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSessionRepo_GetByDeviceIDMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM devices WHERE device_id=? LIMIT 1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"device_id"}))
	if _, err := s.Sessions.GetByDeviceID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSessionRepo_CreateDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO devices")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	err := s.Sessions.Create(context.Background(), &model.Session{DeviceID: "dev-1", UserID: 7})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

// With clientFoundRows the driver reports matched rows, so an unchanged
// row still counts as found.
func TestSessionRepo_DeleteReportsMatch(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"matched", 1, true},
		{"no row for user", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec(regexp.QuoteMeta("DELETE FROM devices WHERE device_id=? AND user_id=?")).
				WithArgs("dev-1", 7).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			got, err := s.Sessions.Delete(context.Background(), "dev-1", 7)
			if err != nil || got != tt.want {
				t.Errorf("Delete = (%v, %v), want %v", got, err, tt.want)
			}
		})
	}
}

func TestSessionRepo_DeleteAllExceptScopesByUser(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM devices WHERE user_id=? AND device_id<>?")).
		WithArgs(7, "dev-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	if err := s.Sessions.DeleteAllExcept(context.Background(), "dev-1", 7); err != nil {
		t.Fatalf("DeleteAllExcept: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTokenRepo_IsRevokedLooksUpHash(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(ledgerCheck).
		WithArgs(7, utils.HashRefreshRaw("raw-token")).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	used, err := s.Tokens.IsRevoked(context.Background(), 7, "raw-token")
	if err != nil || !used {
		t.Errorf("IsRevoked = (%v, %v), want true", used, err)
	}
}

func TestUserRepo_GetByLoginOrEmail(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"id", "login", "email", "password_hash", "is_confirmed", "is_banned", "ban_reason", "ban_date", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE login=? OR email=? LIMIT 1")).
		WithArgs("Alice@Example.com", "alice@example.com").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(7, "alice", "alice@example.com", "$2a$x", true, false, nil, nil, deviceTime))

	u, err := s.Users.GetByLoginOrEmail(context.Background(), "  Alice@Example.com ")
	if err != nil {
		t.Fatalf("GetByLoginOrEmail: %v", err)
	}
	if u.ID != 7 || !u.IsConfirmed || u.BanReason != nil || u.BanDate != nil {
		t.Errorf("user = %+v", u)
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id=?")).WithArgs(9).WillReturnRows(sqlmock.NewRows(cols))
	if _, err := s.Users.GetByID(context.Background(), 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user: err = %v", err)
	}
}
