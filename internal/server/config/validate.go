package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Validate checks field constraints and the cross-field rules: access tokens
// must be shorter lived than refresh tokens, and a non-empty cleanup schedule
// must parse as a cron expression.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.AccessTokenValidityDuration >= c.RefreshTokenValidityDuration {
		return fmt.Errorf("invalid config: access token validity (%s) must be shorter than refresh token validity (%s)",
			c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	}
	if c.CleanupSchedule != "" {
		if _, err := cron.ParseStandard(c.CleanupSchedule); err != nil {
			return fmt.Errorf("invalid config: cleanup schedule: %w", err)
		}
	}
	return nil
}
