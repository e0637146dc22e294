// Package common defines shared constants and sentinel errors used across
// client and server layers of GophUpload. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Credential errors.
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidToken      = errors.New("invalid token")
	ErrTokenExpired      = errors.New("token expired")

	// Upload result errors.
	ErrEmptyReference = errors.New("server response has no artifact reference")
	ErrNoBatchResults = errors.New("batch upload produced no successful items")
	ErrChunkRejected  = errors.New("chunk rejected by server")

	// Recovery flow errors.
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrGovernorTripped  = errors.New("automatic recovery suspended: too many state updates")
	ErrNotRetryable     = errors.New("error is not retryable automatically")

	// Lookup errors.
	ErrorNotFound = errors.New("not found")
)
