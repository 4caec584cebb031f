// seed registers a development user for local testing.
// Idempotent: skips registration if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"seshlock/internal/config"
	"seshlock/internal/db"
	"seshlock/internal/logging"
	"seshlock/internal/security"
	sessionrepo "seshlock/internal/session/repository"
	sessionservice "seshlock/internal/session/service"
	userrepo "seshlock/internal/user/repository"
	userservice "seshlock/internal/user/service"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "Dev-Password-123"
)

func main() {
	issue := flag.Bool("issue", false, "Also issue a session for the dev user and print the token pair")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	dialect, err := db.DialectFor(cfg.DBDriver)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	open := db.Open
	if dialect == db.SQLite {
		open = db.OpenSQLite
	}
	sqlDB, err := open(cfg.DatabaseLocation())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer sqlDB.Close()

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	engine, err := sessionservice.NewEngine(sessionrepo.NewSQLRepository(sqlDB, dialect), sessionservice.Config{
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
	})
	if err != nil {
		log.Fatalf("session engine: %v", err)
	}
	users := userservice.NewService(userrepo.NewSQLRepository(sqlDB, dialect), security.NewHasher(cfg.BcryptCost), engine, logger)

	ctx := context.Background()
	u, err := users.Register(ctx, devUserEmail, devPassword)
	switch {
	case errors.Is(err, userservice.ErrEmailAlreadyRegistered):
		log.Printf("Seed already applied (%s exists). Skipping registration.", devUserEmail)
		if u, err = users.VerifyCredentials(ctx, devUserEmail, devPassword); err != nil {
			log.Fatalf("verify dev user: %v", err)
		}
	case err != nil:
		log.Fatalf("register dev user: %v", err)
	default:
		log.Println("Seed completed successfully.")
	}
	fmt.Printf("Dev login: %s / %s\n", devUserEmail, devPassword)

	if *issue {
		pair, err := users.IssueSession(ctx, u.ID, "seed")
		if err != nil {
			log.Fatalf("issue session: %v", err)
		}
		fmt.Printf("access_token=%s (expires %s)\n", pair.AccessToken, pair.AccessTokenExpiresAt.Format(time.RFC3339))
		fmt.Printf("refresh_token=%s (expires %s)\n", pair.RefreshToken, pair.RefreshTokenExpiresAt.Format(time.RFC3339))
	}
}
