// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist (or is
// not visible to the caller because an ownership scope did not match).
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert collides with an existing
// primary or unique key, e.g. a duplicate device id.
var ErrConflict = errors.New("conflict")

// ErrTokenReused is returned when a refresh token is already present in
// the revocation ledger. Handlers should translate this into 401.
var ErrTokenReused = errors.New("refresh token already used")

// isDuplicate reports whether err is MySQL error 1062 (duplicate entry).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
