package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/chunker"
	"github.com/dmitrijs2005/gophupload/internal/client/strategy"
	"github.com/dmitrijs2005/gophupload/internal/client/verify"
	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings for the uploader.
type Config struct {
	ServerURL  string `env:"UPLOAD_SERVER_URL" validate:"required,url"`
	HealthAddr string `env:"UPLOAD_HEALTH_ADDR" validate:"omitempty,hostname_port"`
	Token      string `env:"UPLOAD_TOKEN"`

	Profile  string `env:"UPLOAD_PROFILE" validate:"oneof=simple bulletproof emergency"`
	Strategy string `env:"UPLOAD_STRATEGY" validate:"omitempty,oneof=single progressive batch emergency"`

	MaxRetries           int   `env:"UPLOAD_MAX_RETRIES" validate:"min=1,max=10"`
	ChunkSize            int   `env:"UPLOAD_CHUNK_SIZE" validate:"min=1024"`
	ProgressiveThreshold int64 `env:"UPLOAD_PROGRESSIVE_THRESHOLD" validate:"gt=0"`
	BatchConcurrency     int   `env:"UPLOAD_BATCH_CONCURRENCY" validate:"min=1,max=32"`

	ReadTimeout         time.Duration `env:"UPLOAD_READ_TIMEOUT" validate:"gt=0"`
	RequestTimeout      time.Duration `env:"UPLOAD_REQUEST_TIMEOUT" validate:"gt=0"`
	VerifyTimeout       time.Duration `env:"UPLOAD_VERIFY_TIMEOUT" validate:"gt=0"`
	VerifyAttempts      int           `env:"UPLOAD_VERIFY_ATTEMPTS" validate:"min=1,max=10"`
	OnlineCheckInterval time.Duration `env:"UPLOAD_ONLINE_CHECK_INTERVAL" validate:"gt=0"`

	AutoFallback      bool          `env:"UPLOAD_AUTO_FALLBACK"`
	AutoFallbackDelay time.Duration `env:"UPLOAD_AUTO_FALLBACK_DELAY" validate:"gte=0"`
	GovernorThreshold int           `env:"UPLOAD_GOVERNOR_THRESHOLD" validate:"min=1"`

	LogLevel  string `env:"UPLOAD_LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `env:"UPLOAD_LOG_FORMAT" validate:"oneof=text json"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.HealthAddr = "127.0.0.1:50051"
	c.Profile = "bulletproof"
	c.MaxRetries = 3
	c.ChunkSize = chunker.DefaultChunkSize
	c.ProgressiveThreshold = strategy.DefaultProgressiveThreshold
	c.BatchConcurrency = 4
	c.ReadTimeout = chunker.DefaultReadTimeout
	c.RequestTimeout = 5 * time.Minute
	c.VerifyTimeout = verify.DefaultTimeout
	c.VerifyAttempts = verify.DefaultMaxAttempts
	c.OnlineCheckInterval = 3 * time.Second
	c.AutoFallbackDelay = 3 * time.Second
	c.GovernorThreshold = 12
	c.LogLevel = "info"
	c.LogFormat = "text"
}

var validate = validator.New()

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
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
