package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// cleanupRetryDelay is the pause before the single retry of a sweep step.
var cleanupRetryDelay = 3 * time.Second

// SweepReport counts rows touched by one sweep.
type SweepReport struct {
	BlacklistPruned int64
	SessionsExpired int64
	TokensDeleted   int64
	AttemptsDeleted int64
}

// Janitor prunes data that no longer affects any decision. Nothing in the
// token service depends on it having run.
type Janitor struct {
	runner           dbx.TxRunner
	repos            repomanager.RepositoryManager
	clock            timex.Clock
	log              logging.Logger
	refreshTTL       time.Duration
	attemptRetention time.Duration
}

func NewJanitor(runner dbx.TxRunner, repos repomanager.RepositoryManager, clock timex.Clock, log logging.Logger,
	refreshTTL, attemptRetention time.Duration) *Janitor {
	return &Janitor{
		runner:           runner,
		repos:            repos,
		clock:            clock,
		log:              log.With("module", "janitor"),
		refreshTTL:       refreshTTL,
		attemptRetention: attemptRetention,
	}
}

// Sweep runs every step even if an earlier one failed and returns the
// joined errors.
func (j *Janitor) Sweep(ctx context.Context) (SweepReport, error) {
	var (
		report SweepReport
		errs   []error
	)
	conn := j.runner.Conn()
	now := j.clock.Now()

	step := func(name string, dst *int64, op func(context.Context) (int64, error)) {
		err := runWithRetry(ctx, j.log, func(ctx context.Context) error {
			n, err := op(ctx)
			*dst = n
			return err
		})
		if err != nil {
			j.log.Error(ctx, "cleanup step failed", "step", name, "err", err)
			errs = append(errs, err)
		}
	}

	step("blacklist", &report.BlacklistPruned, func(ctx context.Context) (int64, error) {
		return j.repos.Blacklist(conn).DeleteExpired(ctx, now)
	})
	step("sessions", &report.SessionsExpired, func(ctx context.Context) (int64, error) {
		return j.repos.Sessions(conn).ExpireStale(ctx, now)
	})
	step("refresh_tokens", &report.TokensDeleted, func(ctx context.Context) (int64, error) {
		return j.repos.RefreshTokens(conn).DeleteExpiredBefore(ctx, now.Add(-j.refreshTTL))
	})
	if j.attemptRetention > 0 {
		step("login_attempts", &report.AttemptsDeleted, func(ctx context.Context) (int64, error) {
			return j.repos.LoginAttempts(conn).DeleteBefore(ctx, now.Add(-j.attemptRetention))
		})
	}

	j.log.Info(ctx, "cleanup completed",
		"blacklist_pruned", report.BlacklistPruned,
		"sessions_expired", report.SessionsExpired,
		"tokens_deleted", report.TokensDeleted,
		"attempts_deleted", report.AttemptsDeleted)
	return report, errors.Join(errs...)
}

// runWithRetry executes op and retries once after cleanupRetryDelay when the
// error looks like a dropped connection.
func runWithRetry(ctx context.Context, log logging.Logger, op func(context.Context) error) error {
	attempt := 0
	backoff := retry.WithMaxRetries(1, retry.NewConstant(cleanupRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err != nil && isTransient(err) {
			if attempt == 1 {
				log.Warn(ctx, "cleanup hit transient DB error; retrying once", "err", err)
			}
			return retry.RetryableError(err)
		}
		return err
	})
}

func isTransient(err error) bool {
	return errors.Is(err, io.EOF) || pgconn.SafeToRetry(err) ||
		strings.Contains(err.Error(), "connection was closed")
}
