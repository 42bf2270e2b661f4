package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-h string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   access token signing secret
//	-k string   refresh token hash key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-l int      failed logins allowed per window
//	-w int      login failure window, minutes
//
// Durations are accepted as integer minutes.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-h", "-d", "-s", "-k", "-t", "-r", "-l", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrHTTP, "h", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "access token signing secret")
	fs.StringVar(&config.TokenHashKey, "k", config.TokenHashKey, "refresh token hash key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")
	fs.IntVar(&config.LoginFailureThreshold, "l", config.LoginFailureThreshold, "failed login attempts allowed per window")
	loginFailureWindow := fs.Int("w", int(config.LoginFailureWindow.Minutes()), "login failure window (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.LoginFailureWindow = time.Duration(*loginFailureWindow) * time.Minute
}
