// ABOUTME: bootstrap subcommand that registers the configured admin account
// ABOUTME: Writes the issued access token next to the config file

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"github.com/northbridge/bankd/internal/audit"
	"github.com/northbridge/bankd/internal/auth"
	"github.com/northbridge/bankd/internal/config"
	"github.com/northbridge/bankd/internal/store"
)

// parseBootstrapArgs supports "--password value", "--password=value" and the -p forms.
// NORTHBRIDGE_ADMIN_PASSWORD is used when no flag is given.
func parseBootstrapArgs(args []string) (string, error) {
	var password string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--password" || arg == "-p":
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			password = args[i+1]
			i++
		case strings.HasPrefix(arg, "--password="):
			password = strings.TrimPrefix(arg, "--password=")
		case strings.HasPrefix(arg, "-p="):
			password = strings.TrimPrefix(arg, "-p=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	if password == "" {
		password = os.Getenv("NORTHBRIDGE_ADMIN_PASSWORD")
	}
	if password == "" {
		return "", errors.New("--password flag or NORTHBRIDGE_ADMIN_PASSWORD is required")
	}
	return password, nil
}

func runBootstrap(ctx context.Context, args []string) error {
	password, err := parseBootstrapArgs(args)
	if err != nil {
		return err
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	svc, err := auth.NewService(auth.ServiceConfig{
		Store:      s,
		Hasher:     auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		Tokens:     verifier,
		Recorder:   audit.NewRecorder(s, logger),
		TokenTTL:   cfg.Auth.TokenTTL,
		AdminEmail: cfg.Auth.AdminEmail,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	ctx = audit.WithSource(ctx, audit.Source{Endpoint: "cli:bootstrap"})
	cred, err := svc.Register(ctx, cfg.Auth.AdminEmail, password)
	if errors.Is(err, auth.ErrDuplicateIdentity) {
		return fmt.Errorf("bootstrap already complete: %s is registered", cfg.Auth.AdminEmail)
	}
	if err != nil {
		return fmt.Errorf("registering admin: %w", err)
	}

	green.Printf("  ✓ Registered admin: %s\n", cfg.Auth.AdminEmail)

	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(cred.AccessToken), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	fmt.Println()
	cyan.Println("  Admin Account")
	cyan.Println("  -------------")
	fmt.Printf("  Email:   %s\n", cfg.Auth.AdminEmail)
	fmt.Printf("  Role:    %s\n", store.RoleAdmin)
	fmt.Printf("  Token:   %s (expires %s)\n", tokenPath, cred.ExpiresAt.Format("Jan 02, 2006 15:04"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    bankd serve")
	fmt.Printf("    curl -H \"Authorization: Bearer $(cat %s)\" http://%s/bank/admin/overview\n", tokenPath, cfg.Server.HTTPAddr)
	fmt.Println()

	return nil
}
