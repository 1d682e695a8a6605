package db

import (
	"context"
	"errors"

	"github.com/geocoder89/civichub/internal/config"
	"github.com/geocoder89/civichub/internal/domain/user"
	"github.com/geocoder89/civichub/internal/security"
)

type adminStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, u user.User) (user.User, error)
}

// EnsureAdminUser creates the configured admin account on first boot.
// It works against either store backend.
func EnsureAdminUser(ctx context.Context, users adminStore, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	_, err := users.GetByEmail(ctx, cfg.AdminEmail)

	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	_, err = users.Create(ctx, user.User{
		Username:     cfg.AdminName,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         cfg.AdminRole,
	})

	if errors.Is(err, user.ErrEmailTaken) {
		// another instance won the race
		return nil
	}
	return err
}
