package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/humanstamp/internal/flagx"
	"github.com/dmitrijs2005/humanstamp/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations accept
// "10m" style strings or integer nanoseconds. Pointer fields distinguish
// "absent" from "false".
type JsonConfig struct {
	HTTPAddr              string          `json:"http_addr"`
	DatabaseDSN           string          `json:"database_dsn"`
	KeyEncryptionSecret   string          `json:"key_encryption_secret"`
	JWTSecret             string          `json:"jwt_secret"`
	PublicBaseURL         string          `json:"public_base_url"`
	CaptchaSecret         string          `json:"captcha_secret"`
	CaptchaVerifyURL      string          `json:"captcha_verify_url"`
	CaptchaBypass         *bool           `json:"captcha_bypass"`
	KeyCacheTTL           *timex.Duration `json:"key_cache_ttl"`
	LogLevel              string          `json:"log_level"`
	S3AccessKey           string          `json:"s3_access_key"`
	S3SecretKey           string          `json:"s3_secret_key"`
	S3Bucket              string          `json:"s3_bucket"`
	S3Region              string          `json:"s3_region"`
	S3BaseEndpoint        string          `json:"s3_base_endpoint"`
	TransparencyObjectKey string          `json:"transparency_object_key"`
	TransparencyDir       string          `json:"transparency_dir"`
}

// parseJson overlays values from the JSON file named by -c/-config in args.
// Empty fields leave the current value alone. An unreadable or invalid file
// panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFile(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&config.HTTPAddr, c.HTTPAddr)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.KeyEncryptionSecret, c.KeyEncryptionSecret)
	set(&config.JWTSecret, c.JWTSecret)
	set(&config.PublicBaseURL, c.PublicBaseURL)
	set(&config.CaptchaSecret, c.CaptchaSecret)
	set(&config.CaptchaVerifyURL, c.CaptchaVerifyURL)
	set(&config.LogLevel, c.LogLevel)
	set(&config.S3AccessKey, c.S3AccessKey)
	set(&config.S3SecretKey, c.S3SecretKey)
	set(&config.S3Bucket, c.S3Bucket)
	set(&config.S3Region, c.S3Region)
	set(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	set(&config.TransparencyObjectKey, c.TransparencyObjectKey)
	set(&config.TransparencyDir, c.TransparencyDir)

	if c.CaptchaBypass != nil {
		config.CaptchaBypass = *c.CaptchaBypass
	}
	if c.KeyCacheTTL != nil {
		config.KeyCacheTTL = c.KeyCacheTTL.Duration
	}
}
