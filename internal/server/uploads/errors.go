package uploads

import "errors"

var (
	ErrNotImage         = errors.New("file is not a supported image")
	ErrTooLarge         = errors.New("file too large")
	ErrBadEncoding      = errors.New("invalid base64 payload")
	ErrChunkOutOfRange  = errors.New("chunk index out of range")
	ErrChecksumMismatch = errors.New("assembled file checksum mismatch")
	ErrSessionMismatch  = errors.New("chunk does not belong to this upload session")
)
