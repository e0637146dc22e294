package config

import (
	"fmt"

	env "github.com/Netflix/go-env"
)

func parseEnv(cfg *Config) error {
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	return nil
}
