package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationFS holds the numbered SQL migrations applied by Migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// MigrationURL builds the golang-migrate database URL. Migration files
// hold several statements each, so multiStatements is switched on here
// and only here.
func MigrationURL(user, pass, host, port, name string) string {
	return "mysql://" + DSN(user, pass, host, port, name) + "&multiStatements=true"
}

// Migrate applies the embedded migrations in the given direction ("up" or
// "down"). Being already at the target version is not an error.
func Migrate(url, direction string) error {
	if url == "" {
		return errors.New("migrate: empty database url")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}

	src, err := iofs.New(MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
