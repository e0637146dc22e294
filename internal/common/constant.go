// Package common contains shared constants and sentinel errors used across
// GophUpload components.
package common

const (
	// AuthorizationHeaderName carries the bearer credential on upload requests.
	AuthorizationHeaderName = "Authorization"

	// UploadModeHeaderName marks requests sent by the emergency transport so
	// the server can log them with full diagnostics.
	UploadModeHeaderName = "X-Upload-Mode"

	// CacheBustParam is the query parameter appended to artifact URLs. Changing
	// its value changes the URL without changing the referenced artifact.
	CacheBustParam = "v"

	KB = 1024
	MB = 1024 * KB
)
