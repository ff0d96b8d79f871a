package config

import (
	"errors"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// dotEnvFile is loaded into the process environment when present. Variables
// already set in the environment win.
var dotEnvFile = ".env"

func loadDotEnv() {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}
}

// parseEnv overlays values from environment variables.
//
//	STAMP_HTTP_ADDR, DATABASE_DSN, KEY_ENCRYPTION_SECRET, JWT_SECRET,
//	PUBLIC_BASE_URL, CAPTCHA_SECRET, CAPTCHA_VERIFY_URL, CAPTCHA_BYPASS,
//	KEY_CACHE_TTL, LOG_LEVEL, S3_ACCESS_KEY, S3_SECRET_KEY, S3_BUCKET,
//	S3_REGION, S3_BASE_ENDPOINT, TRANSPARENCY_OBJECT_KEY, TRANSPARENCY_DIR
func parseEnv(c *Config, lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	str("STAMP_HTTP_ADDR", &c.HTTPAddr)
	str("DATABASE_DSN", &c.DatabaseDSN)
	str("KEY_ENCRYPTION_SECRET", &c.KeyEncryptionSecret)
	str("JWT_SECRET", &c.JWTSecret)
	str("PUBLIC_BASE_URL", &c.PublicBaseURL)
	str("CAPTCHA_SECRET", &c.CaptchaSecret)
	str("CAPTCHA_VERIFY_URL", &c.CaptchaVerifyURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("S3_ACCESS_KEY", &c.S3AccessKey)
	str("S3_SECRET_KEY", &c.S3SecretKey)
	str("S3_BUCKET", &c.S3Bucket)
	str("S3_REGION", &c.S3Region)
	str("S3_BASE_ENDPOINT", &c.S3BaseEndpoint)
	str("TRANSPARENCY_OBJECT_KEY", &c.TransparencyObjectKey)
	str("TRANSPARENCY_DIR", &c.TransparencyDir)

	if v, ok := lookup("CAPTCHA_BYPASS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(err)
		}
		c.CaptchaBypass = b
	}
	if v, ok := lookup("KEY_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			panic(err)
		}
		c.KeyCacheTTL = d
	}
}
