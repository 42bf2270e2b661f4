package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// RateLimiter blocks logins for an email after threshold failures inside a
// trailing window and records every attempt. Attempts go through the plain
// connection so they persist regardless of later transactions.
type RateLimiter struct {
	runner    dbx.TxRunner
	repos     repomanager.RepositoryManager
	clock     timex.Clock
	threshold int
	window    time.Duration
}

func NewRateLimiter(runner dbx.TxRunner, repos repomanager.RepositoryManager, clock timex.Clock, threshold int, window time.Duration) *RateLimiter {
	return &RateLimiter{runner: runner, repos: repos, clock: clock, threshold: threshold, window: window}
}

// Check returns a *common.RateLimitError when the email has reached the
// failure threshold. The retry hint is rounded up to whole minutes.
func (l *RateLimiter) Check(ctx context.Context, email string) error {
	now := l.clock.Now()
	stats, err := l.repos.LoginAttempts(l.runner.Conn()).FailuresSince(ctx, email, now.Add(-l.window))
	if err != nil {
		return fmt.Errorf("count failures: %w", err)
	}
	if stats.Count < l.threshold {
		return nil
	}

	retry := time.Minute
	if stats.Oldest != nil {
		retry = max(timex.CeilMinute(stats.Oldest.Add(l.window).Sub(now)), time.Minute)
	}
	return &common.RateLimitError{RetryAfter: retry}
}

// Record appends one attempt with its final outcome.
func (l *RateLimiter) Record(ctx context.Context, email, ip string, outcome error) error {
	a := &models.LoginAttempt{
		Email:       email,
		Success:     outcome == nil,
		IPAddress:   ip,
		AttemptedAt: l.clock.Now(),
	}
	if outcome != nil {
		a.FailureReason = failureReason(outcome)
	}
	if err := l.repos.LoginAttempts(l.runner.Conn()).Record(ctx, a); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func failureReason(err error) string {
	switch common.Reason(err) {
	case "rate_limited":
		return models.FailureRateLimited
	case "invalid_credentials":
		return models.FailureInvalidCredentials
	default:
		return models.FailureInternal
	}
}
