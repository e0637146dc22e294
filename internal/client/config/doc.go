// Package config loads runtime configuration for the uploader CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Environment variables (UPLOAD_*), optionally from a .env file loaded
//     by the caller.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-s string   base URL of the upload server
//	-g string   host:port of the gRPC health endpoint (empty disables)
//	-t string   bearer token
//	-p string   validation profile: simple, bulletproof or emergency
//	-m string   force a strategy: single, progressive, batch or emergency
//	-r int      attempts per upload, including the first
//	-k int      chunk size in bytes
//	-i int      online check interval (seconds)
//	-f          schedule automatic fallbacks to simpler strategies
//	-l string   log level
//
// # JSON schema
//
// Durations use timex.Duration, so "30s" and integer nanoseconds both work:
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "max_retries": 3,
//	  "read_timeout": "30s",
//	  "auto_fallback": true
//	}
//
// The loaded Config is checked with go-playground/validator before use.
package config
