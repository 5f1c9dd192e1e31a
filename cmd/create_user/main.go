// Command create_user inserts a confirmed account directly into the
// database. Registration and email confirmation are served by another
// part of the platform; this is for local setups and smoke tests.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/iliyamo/blogger-platform/internal/config"
	"github.com/iliyamo/blogger-platform/internal/database"
	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/repository"
)

func main() {
	login := flag.String("login", "", "account login")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "plain-text password")
	flag.Parse()

	if *login == "" || *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := repository.NewUserRepo(db).Create(ctx, *login, *email, *password, true, cfg.BcryptCost)
	if errors.Is(err, repository.ErrConflict) {
		logger.Fatalf("login or email already taken")
	}
	if err != nil {
		logger.Fatalf("create user: %v", err)
	}
	fmt.Printf("created user %d (%s)\n", id, *login)
}
