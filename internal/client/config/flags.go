package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/flagx"
)

// valueFlags take a separate value argument.
var valueFlags = []string{"-s", "-g", "-t", "-p", "-m", "-r", "-k", "-i", "-l", "-c", "-config"}

// parseFlags populates Config fields from the flags in args. Only the flags
// handled here are looked at, see flagx.FilterArgs.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-s", "-g", "-t", "-p", "-m", "-r", "-k", "-i", "-f", "-l"})

	fs := flag.NewFlagSet("uploader", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "s", cfg.ServerURL, "base URL of the upload server")
	fs.StringVar(&cfg.HealthAddr, "g", cfg.HealthAddr, "gRPC health endpoint, empty disables the connection watcher")
	fs.StringVar(&cfg.Token, "t", cfg.Token, "bearer token")
	fs.StringVar(&cfg.Profile, "p", cfg.Profile, "validation profile")
	fs.StringVar(&cfg.Strategy, "m", cfg.Strategy, "force an upload strategy")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "attempts per upload")
	fs.IntVar(&cfg.ChunkSize, "k", cfg.ChunkSize, "chunk size in bytes")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.BoolVar(&cfg.AutoFallback, "f", cfg.AutoFallback, "fall back to simpler strategies automatically")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
		}
	})
	return nil
}

// Files returns the positional arguments: the files to upload.
func Files(args []string) []string {
	return flagx.Positional(args, valueFlags)
}
