package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/odvcencio/leadsplit/pkg/auth"
	"github.com/odvcencio/leadsplit/pkg/storage"
)

// #nosec G101 -- env var name (not a credential)
const envAdminPassword = "LEADSPLIT_ADMIN_PASSWORD"

func runSetupAdminCommand(args []string, stdout io.Writer) error {
	fs := newFlagSet("setup-admin")
	configPath := fs.String("config", "", "path to a config file")
	email := fs.String("email", "", "admin email address")
	password := fs.String("password", "", "admin password (default: "+envAdminPassword+")")
	if err := fs.Parse(args); err != nil {
		return withExitCode(err, exitConfig)
	}

	pw := *password
	if pw == "" {
		pw = os.Getenv(envAdminPassword)
	}
	if strings.TrimSpace(*email) == "" || pw == "" {
		return withExitCode(errors.New("setup-admin requires -email and -password"), exitConfig)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	created, err := ensureAdmin(context.Background(), store, *email, pw)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(stdout, "Admin user %s created\n", strings.ToLower(strings.TrimSpace(*email)))
	} else {
		fmt.Fprintf(stdout, "Admin user %s already exists\n", strings.ToLower(strings.TrimSpace(*email)))
	}
	return nil
}

type adminStore interface {
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	CreateUser(ctx context.Context, email, passwordHash, role string) (*storage.User, error)
}

// ensureAdmin creates the admin unless a user with that email exists. It
// reports whether a user was created.
func ensureAdmin(ctx context.Context, store adminStore, email, password string) (bool, error) {
	_, err := store.GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("look up admin: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, withExitCode(err, exitConfig)
	}
	if _, err := store.CreateUser(ctx, email, hash, storage.RoleAdmin); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}
