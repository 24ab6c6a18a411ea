// seed inserts development sample data for local testing. Idempotent: skips
// inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"auth-control-plane/backend/internal/config"
	"auth-control-plane/backend/internal/db"
	userdomain "auth-control-plane/backend/internal/user/domain"
	userrepo "auth-control-plane/backend/internal/user/repository"
)

const (
	devUserID    = "dev-user-001"
	devUserEmail = "dev@example.com"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)

	existing, err := users.GetByID(ctx, devUserID)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev user exists). Skipping.")
		os.Exit(0)
	}

	if err := users.Create(ctx, &userdomain.User{
		ID:        devUserID,
		Email:     devUserEmail,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		log.Fatalf("create dev user: %v", err)
	}

	log.Printf("Seed completed successfully. Dev user: %s (%s)", devUserID, devUserEmail)
}
