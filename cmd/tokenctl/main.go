package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/permitauth/internal/admin"
	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/config"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
	"github.com/dmitrijs2005/permitauth/internal/server/shared/db"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tokenctl:", err)
		if errors.Is(err, admin.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cmd, args := admin.SplitCommand(os.Args[1:])
	if cmd == "" || cmd == "help" {
		admin.Usage(os.Stdout)
		return nil
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogBackend, "warn", os.Stderr)
	if err != nil {
		return err
	}

	storage, err := db.Open(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	clock := timex.SystemClock{}
	auth, err := services.NewAuthService(storage.Runner, storage.Repos, cfg, clock, logger)
	if err != nil {
		return err
	}
	janitor := services.NewJanitor(storage.Runner, storage.Repos, clock, logger,
		cfg.RefreshTokenValidityDuration, cfg.LoginAttemptRetention)

	return admin.NewApp(auth, janitor, os.Stdin, os.Stdout).Run(ctx, cmd, args)
}
