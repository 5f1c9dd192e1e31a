// Command migrate applies or rolls back the embedded schema migrations.
package main

import (
	"flag"

	"github.com/iliyamo/blogger-platform/internal/config"
	"github.com/iliyamo/blogger-platform/internal/database"
	"github.com/iliyamo/blogger-platform/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "up or down")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	url := database.MigrationURL(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err := database.Migrate(url, *direction); err != nil {
		logger.Fatalf("migrate %s: %v", *direction, err)
	}
	logger.Info().Str("direction", *direction).Msg("migrations applied")
}
