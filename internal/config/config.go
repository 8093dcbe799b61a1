// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // application environment (e.g. "development", "production")
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time‑to‑live in minutes
	RefreshTTLDays int    // refresh token time‑to‑live in days
	BcryptCost     int    // bcrypt cost for account passwords and passcode digests

	ImagesDir      string // root of the image catalog, one sub-directory per category
	UploadDir      string // local storage root for uploaded apps
	UploadMaxBytes int64  // upload size cap
	AuditLogDir    string // where the audit consumer writes lock-audit.log
	RabbitMQURL    string // empty disables the broker; events go to the app log

	Storage StorageConfig
}

// StorageConfig selects where uploaded app payloads live.
type StorageConfig struct {
	Backend     string // "local" or "s3"
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // custom endpoint for S3-compatible stores
	S3Prefix    string
	S3AccessKey string // static credentials; empty uses the default AWS chain
	S3SecretKey string
	S3PathStyle bool
}

// Load reads configuration values from environment variables. All missing
// or malformed required variables are reported together.
func Load() (Config, error) {
	var errs []error
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	mustInt := func(key string) int {
		s := must(key)
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid int for %s: %q", key, s))
		}
		return n
	}

	cfg := Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),

		ImagesDir:      envStr("IMAGES_DIR", "static/images"),
		UploadDir:      envStr("UPLOAD_DIR", "uploads"),
		UploadMaxBytes: int64(envInt("UPLOAD_MAX_BYTES", 2<<20)),
		AuditLogDir:    envStr("AUDIT_LOG_DIR", "logs"),
		RabbitMQURL:    os.Getenv("RABBITMQ_URL"),

		Storage: StorageConfig{
			Backend:     envStr("STORAGE_BACKEND", "local"),
			S3Bucket:    os.Getenv("S3_BUCKET"),
			S3Region:    envStr("S3_REGION", "us-east-1"),
			S3Endpoint:  os.Getenv("S3_ENDPOINT"),
			S3Prefix:    envStr("S3_PREFIX", "apps/"),
			S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
			S3SecretKey: os.Getenv("S3_SECRET_KEY"),
			S3PathStyle: envBool("S3_PATH_STYLE", false),
		},
	}
	if cfg.Storage.Backend == "s3" && cfg.Storage.S3Bucket == "" {
		errs = append(errs, errors.New("missing required env var: S3_BUCKET (STORAGE_BACKEND=s3)"))
	}
	if cfg.Storage.Backend != "local" && cfg.Storage.Backend != "s3" {
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Storage.Backend))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnlockTTL bounds how long an unlock record outlives its login: never
// longer than the refresh token that keeps the session alive.
func (c Config) UnlockTTL() time.Duration {
	return time.Duration(c.RefreshTTLDays) * 24 * time.Hour
}
