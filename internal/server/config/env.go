package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/permitauth/internal/flagx"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "PERMITAUTH_"

// parseEnv overlays PERMITAUTH_* variables onto config. When -env names a
// dotenv file its values are loaded first without overriding variables that
// are already set in the process environment.
func parseEnv(config *Config, args []string) {
	_, envFile := flagx.SourceFiles(args)
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			panic(err)
		}
	}

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		}
		*dst = d
	}
	num := func(name string, dst *int) {
		v, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
		}
		*dst = n
	}

	str("GRPC_ADDR", &config.EndpointAddrGRPC)
	str("HTTP_ADDR", &config.EndpointAddrHTTP)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("SECRET_KEY", &config.SecretKey)
	str("TOKEN_HASH_KEY", &config.TokenHashKey)
	str("TOKEN_ISSUER", &config.TokenIssuer)
	dur("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	dur("REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	num("LOGIN_FAILURE_THRESHOLD", &config.LoginFailureThreshold)
	dur("LOGIN_FAILURE_WINDOW", &config.LoginFailureWindow)
	num("BCRYPT_COST", &config.BcryptCost)
	if v, ok := os.LookupEnv(EnvPrefix + "CLEANUP_SCHEDULE"); ok {
		config.CleanupSchedule = v
	}
	dur("LOGIN_ATTEMPT_RETENTION", &config.LoginAttemptRetention)
	if v, ok := os.LookupEnv(EnvPrefix + "ALLOWED_ORIGINS"); ok && v != "" {
		config.AllowedOrigins = splitList(v)
	}
	str("LOG_LEVEL", &config.LogLevel)
	str("LOG_BACKEND", &config.LogBackend)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
