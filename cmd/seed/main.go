// seed creates the initial admin account. Run via go run ./cmd/seed after migrations.
// Idempotent: exits without changes if an account with SEED_ADMIN_EMAIL already exists.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"trading-bot-dashboard/backend/internal/config"
	"trading-bot-dashboard/backend/internal/db"
	"trading-bot-dashboard/backend/internal/logging"
	"trading-bot-dashboard/backend/internal/security"
	"trading-bot-dashboard/backend/internal/user/domain"
	"trading-bot-dashboard/backend/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	log.Logger = logging.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer conn.Close()

	users := repository.NewPostgresRepository(conn)
	email := domain.NormalizeEmail(cfg.SeedAdminEmail)
	existing, err := users.GetByEmail(ctx, email)
	if err != nil {
		log.Fatal().Err(err).Msg("seed check")
	}
	if existing != nil {
		log.Info().Str("email", email).Msg("admin already exists; skipping")
		return
	}

	password := cfg.SeedAdminPassword
	generated := password == ""
	if generated {
		if password, err = security.NewOpaqueToken(); err != nil {
			log.Fatal().Err(err).Msg("generate password")
		}
	}
	hash, err := security.NewHasher(cfg.BcryptCost, 1).Hash(ctx, []byte(password))
	if err != nil {
		log.Fatal().Err(err).Msg("hash password")
	}

	now := time.Now().UTC()
	admin := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     domain.NormalizeUsername(cfg.SeedAdminUsername),
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := admin.Validate(); err != nil {
		log.Fatal().Err(err).Msg("admin user")
	}
	if err := users.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			log.Fatal().Str("username", admin.Username).Msg("username already taken; set SEED_ADMIN_USERNAME")
		}
		log.Fatal().Err(err).Msg("create admin")
	}
	ev := log.Info().Str("email", email).Str("user_id", admin.ID)
	if generated {
		// Printed once so the operator can log in; it is not stored anywhere else.
		ev = ev.Str("password", password)
	}
	ev.Msg("admin created")
}
