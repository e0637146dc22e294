// Package config handles configuration for the reference upload server:
// defaults, JSON overlay, environment and command-line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/go-playground/validator/v10"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageDisk   = "disk"
	StorageS3     = "s3"
)

// Config holds runtime settings for the upload server.
//
// Fields:
//   - HTTPAddr: bind address of the upload API.
//   - GRPCAddr: bind address of the gRPC health service; empty disables it.
//   - DatabaseDSN: PostgreSQL DSN (pgx) for chunk sessions; empty keeps them in memory.
//   - SecretKey: HMAC secret for signing JWTs (HS256). Do not use test defaults in prod.
//   - Storage: memory, disk or s3. StorageDir is used by disk.
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint: object storage settings.
type Config struct {
	HTTPAddr       string        `env:"SERVER_HTTP_ADDR" validate:"required"`
	GRPCAddr       string        `env:"SERVER_GRPC_ADDR"`
	DatabaseDSN    string        `env:"SERVER_DATABASE_DSN"`
	SecretKey      string        `env:"SERVER_SECRET_KEY" validate:"required"`
	TokenValidity  time.Duration `env:"SERVER_TOKEN_VALIDITY" validate:"gt=0"`
	Storage        string        `env:"SERVER_STORAGE" validate:"oneof=memory disk s3"`
	StorageDir     string        `env:"SERVER_STORAGE_DIR" validate:"required_if=Storage disk"`
	S3RootUser     string        `env:"SERVER_S3_ROOT_USER"`
	S3RootPassword string        `env:"SERVER_S3_ROOT_PASSWORD"`
	S3Bucket       string        `env:"SERVER_S3_BUCKET" validate:"required_if=Storage s3"`
	S3Region       string        `env:"SERVER_S3_REGION"`
	S3BaseEndpoint string        `env:"SERVER_S3_BASE_ENDPOINT" validate:"omitempty,url"`
	MaxUploadBytes int64         `env:"SERVER_MAX_UPLOAD_BYTES" validate:"gt=0"`
	SessionTTL     time.Duration `env:"SERVER_SESSION_TTL" validate:"gt=0"`
	LogLevel       string        `env:"SERVER_LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat      string        `env:"SERVER_LOG_FORMAT" validate:"oneof=text json"`
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.GRPCAddr = ":50051"
	c.SecretKey = "secretKey"
	c.TokenValidity = 24 * time.Hour
	c.Storage = StorageMemory
	c.StorageDir = "artifacts"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "uploads"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.MaxUploadBytes = 200 * common.MB
	c.SessionTTL = time.Hour
	c.LogLevel = "info"
	c.LogFormat = "json"
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment and finally from command-line
// flags.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
