package config

import (
	"flag"
	"io"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   key encryption secret
//	-s string   JWT HMAC secret
//	-u string   public base URL for verification links
//	-t int      key cache TTL, minutes
//	-l string   log level (debug, info, warn, error)
//	-b          bypass CAPTCHA verification (development only)
//
// Unrecognised flags are filtered out first with flagx.FilterArgs so other
// components can share the command line.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-k", "-s", "-u", "-t", "-l", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.KeyEncryptionSecret, "k", config.KeyEncryptionSecret, "key encryption secret")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret")
	fs.StringVar(&config.PublicBaseURL, "u", config.PublicBaseURL, "public base URL")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.BoolVar(&config.CaptchaBypass, "b", config.CaptchaBypass, "bypass CAPTCHA verification")

	keyCacheTTL := fs.Int("t", int(config.KeyCacheTTL.Minutes()), "key cache TTL (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.KeyCacheTTL = time.Duration(*keyCacheTTL) * time.Minute
		}
	})
}
