package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophupload/internal/flagx"
	"github.com/dmitrijs2005/gophupload/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. Durations use timex.Duration, so both "1s" and integer
// nanoseconds parse. Absent keys keep their previous value.
type JsonConfig struct {
	HTTPAddr       *string         `json:"http_addr"`
	GRPCAddr       *string         `json:"grpc_addr"`
	DatabaseDSN    *string         `json:"database_dsn"`
	SecretKey      *string         `json:"secret_key"`
	TokenValidity  *timex.Duration `json:"token_validity"`
	Storage        *string         `json:"storage"`
	StorageDir     *string         `json:"storage_dir"`
	S3RootUser     *string         `json:"s3_root_user"`
	S3RootPassword *string         `json:"s3_root_password"`
	S3Bucket       *string         `json:"s3_bucket"`
	S3Region       *string         `json:"s3_region"`
	S3BaseEndpoint *string         `json:"s3_base_endpoint"`
	MaxUploadBytes *int64          `json:"max_upload_bytes"`
	SessionTTL     *timex.Duration `json:"session_ttl"`
	LogLevel       *string         `json:"log_level"`
	LogFormat      *string         `json:"log_format"`
}

// parseJson loads the file named by -c or -config into cfg. Without either
// flag nothing is loaded.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for _, f := range []struct {
		dst *string
		v   *string
	}{
		{&cfg.HTTPAddr, c.HTTPAddr},
		{&cfg.GRPCAddr, c.GRPCAddr},
		{&cfg.DatabaseDSN, c.DatabaseDSN},
		{&cfg.SecretKey, c.SecretKey},
		{&cfg.Storage, c.Storage},
		{&cfg.StorageDir, c.StorageDir},
		{&cfg.S3RootUser, c.S3RootUser},
		{&cfg.S3RootPassword, c.S3RootPassword},
		{&cfg.S3Bucket, c.S3Bucket},
		{&cfg.S3Region, c.S3Region},
		{&cfg.S3BaseEndpoint, c.S3BaseEndpoint},
		{&cfg.LogLevel, c.LogLevel},
		{&cfg.LogFormat, c.LogFormat},
	} {
		if f.v != nil {
			*f.dst = *f.v
		}
	}
	if c.MaxUploadBytes != nil {
		cfg.MaxUploadBytes = *c.MaxUploadBytes
	}
	if c.TokenValidity != nil {
		cfg.TokenValidity = c.TokenValidity.Duration
	}
	if c.SessionTTL != nil {
		cfg.SessionTTL = c.SessionTTL.Duration
	}
	return nil
}
