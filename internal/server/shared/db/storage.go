// Package db opens the storage backend selected by the database DSN.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/memory"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
)

const (
	connectAttempts = 5
	connectTimeout  = 5 * time.Second
)

var (
	connectBackoff = 500 * time.Millisecond

	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

// Storage bundles the transaction runner and repository factory used by
// the services.
type Storage struct {
	Runner dbx.TxRunner
	Repos  repomanager.RepositoryManager
	db     *sql.DB
}

// Open connects to dsn, retrying with exponential backoff, and applies the
// embedded migrations. memory.DSN selects the in-process store.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Storage, error) {
	if dsn == memory.DSN {
		log.Warn(ctx, "using in-memory storage; data is lost on exit")
		store := memory.NewStore()
		return &Storage{Runner: store, Repos: store}, nil
	}

	conn, err := openDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	attempt := 0
	backoff := retry.WithMaxRetries(connectAttempts-1, retry.NewExponential(connectBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := conn.PingContext(pingCtx); err != nil {
			log.Warn(ctx, "database not reachable, retrying", "attempt", attempt, "max", connectAttempts, "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to connect to database after %d attempts: %w", attempt, err)
	}
	log.Info(ctx, "connected to database", "attempt", attempt)

	repos := newRepoManager()
	if err := repos.RunMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Storage{Runner: dbx.NewSQLRunner(conn), Repos: repos, db: conn}, nil
}

// Ping reports whether the database answers. The in-memory store always does.
func (s *Storage) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
