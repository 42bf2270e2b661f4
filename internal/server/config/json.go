package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/permitauth/internal/flagx"
	"github.com/dmitrijs2005/permitauth/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// either strings ("15m", "720h") or integer nanoseconds. Absent fields keep
// whatever value the Config already had.
type JsonConfig struct {
	EndpointAddrGRPC             string          `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP             string          `json:"endpoint_addr_http"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	TokenHashKey                 string          `json:"token_hash_key"`
	TokenIssuer                  string          `json:"token_issuer"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	LoginFailureThreshold        *int            `json:"login_failure_threshold"`
	LoginFailureWindow           *timex.Duration `json:"login_failure_window"`
	BcryptCost                   *int            `json:"bcrypt_cost"`
	CleanupSchedule              *string         `json:"cleanup_schedule"`
	LoginAttemptRetention        *timex.Duration `json:"login_attempt_retention"`
	AllowedOrigins               []string        `json:"allowed_origins"`
	LogLevel                     string          `json:"log_level"`
	LogBackend                   string          `json:"log_backend"`
}

// parseJson overlays the file named by -c / -config onto config. Without the
// flag nothing is loaded. Unreadable files and invalid JSON panic.
func parseJson(config *Config, args []string) {
	jsonConfigFile, _ := flagx.SourceFiles(args)
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.TokenHashKey, c.TokenHashKey)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogBackend, c.LogBackend)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.LoginFailureThreshold != nil {
		config.LoginFailureThreshold = *c.LoginFailureThreshold
	}
	if c.LoginFailureWindow != nil {
		config.LoginFailureWindow = c.LoginFailureWindow.Duration
	}
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	if c.CleanupSchedule != nil {
		config.CleanupSchedule = *c.CleanupSchedule
	}
	if c.LoginAttemptRetention != nil {
		config.LoginAttemptRetention = c.LoginAttemptRetention.Duration
	}
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
