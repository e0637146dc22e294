package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/flagx"
	"github.com/dmitrijs2005/gophupload/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields tell an absent key from a zero value.
type JsonConfig struct {
	ServerURL            *string         `json:"server_url"`
	HealthAddr           *string         `json:"health_addr"`
	Token                *string         `json:"token"`
	Profile              *string         `json:"profile"`
	Strategy             *string         `json:"strategy"`
	MaxRetries           *int            `json:"max_retries"`
	ChunkSize            *int            `json:"chunk_size"`
	ProgressiveThreshold *int64          `json:"progressive_threshold"`
	BatchConcurrency     *int            `json:"batch_concurrency"`
	ReadTimeout          *timex.Duration `json:"read_timeout"`
	RequestTimeout       *timex.Duration `json:"request_timeout"`
	VerifyTimeout        *timex.Duration `json:"verify_timeout"`
	VerifyAttempts       *int            `json:"verify_attempts"`
	OnlineCheckInterval  *timex.Duration `json:"online_check_interval"`
	AutoFallback         *bool           `json:"auto_fallback"`
	AutoFallbackDelay    *timex.Duration `json:"auto_fallback_delay"`
	GovernorThreshold    *int            `json:"governor_threshold"`
	LogLevel             *string         `json:"log_level"`
	LogFormat            *string         `json:"log_format"`
}

// parseJson overlays cfg with the JSON file named by -c or -config. Without
// either flag nothing is loaded.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	set(&cfg.ServerURL, jc.ServerURL)
	set(&cfg.HealthAddr, jc.HealthAddr)
	set(&cfg.Token, jc.Token)
	set(&cfg.Profile, jc.Profile)
	set(&cfg.Strategy, jc.Strategy)
	set(&cfg.MaxRetries, jc.MaxRetries)
	set(&cfg.ChunkSize, jc.ChunkSize)
	set(&cfg.ProgressiveThreshold, jc.ProgressiveThreshold)
	set(&cfg.BatchConcurrency, jc.BatchConcurrency)
	set(&cfg.VerifyAttempts, jc.VerifyAttempts)
	set(&cfg.AutoFallback, jc.AutoFallback)
	set(&cfg.GovernorThreshold, jc.GovernorThreshold)
	set(&cfg.LogLevel, jc.LogLevel)
	set(&cfg.LogFormat, jc.LogFormat)

	setDuration(&cfg.ReadTimeout, jc.ReadTimeout)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.VerifyTimeout, jc.VerifyTimeout)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.AutoFallbackDelay, jc.AutoFallbackDelay)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
