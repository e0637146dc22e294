// Package cli is the uploader command-line application.
//
// It wires configuration, the credential chain, the HTTP transport, the
// verification prober and the optional gRPC connectivity watcher into an
// upload orchestrator, prints progress and notifications, and falls back to
// simpler strategies when asked to. See App.Run.
package cli
