package failure

// Category is the coarse failure class used for retry policy and messaging.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryFormat     Category = "format"
	CategorySize       Category = "size"
	CategoryAuth       Category = "auth"
	CategoryProcessing Category = "processing"
	CategoryValidation Category = "validation"
	CategoryReader     Category = "reader"
	CategoryUnknown    Category = "unknown"
)

// RetryStrategy names how a category is retried.
type RetryStrategy string

const (
	RetryImmediate   RetryStrategy = "immediate"
	RetryDelayed     RetryStrategy = "delayed"
	RetryExponential RetryStrategy = "exponential"
	RetryNone        RetryStrategy = "none"
)

// RecoveryState is the classification of one failure of an in-flight task.
type RecoveryState struct {
	Category      Category
	CanRetry      bool
	RetryStrategy RetryStrategy
	// Suggestions are ordered; the first one is shown first.
	Suggestions []string
	Message     string
}

// Retryable reports whether failures of the category may be retried
// automatically.
func Retryable(c Category) bool {
	return StrategyFor(c) != RetryNone
}

// StrategyFor returns the retry strategy kind of a category.
func StrategyFor(c Category) RetryStrategy {
	switch c {
	case CategoryAuth, CategoryFormat, CategorySize, CategoryValidation:
		return RetryNone
	case CategoryReader:
		return RetryDelayed
	default:
		return RetryExponential
	}
}

var suggestions = map[Category][]string{
	CategoryNetwork: {
		"Check your internet connection and try again",
		"The upload will be retried automatically",
		"Try a smaller image if your connection is slow",
	},
	CategoryFormat: {
		"Use a JPEG, PNG, WebP or GIF image",
		"Re-export the image from an editor if it may be corrupted",
	},
	CategorySize: {
		"Compress or resize the image below the size limit",
		"Use the bulletproof uploader for files up to 200 MB",
	},
	CategoryAuth: {
		"Sign in again to refresh your session",
		"Check that your account is allowed to upload images",
	},
	CategoryProcessing: {
		"The server could not process the image; it will be retried",
		"Try converting the image to JPEG or PNG",
	},
	CategoryValidation: {
		"Choose a different image; this file looks empty or damaged",
	},
	CategoryReader: {
		"Select the file again; it may have been moved or is still syncing",
		"Close other programs that might be locking the file",
	},
	CategoryUnknown: {
		"Try again in a moment",
		"Switch to emergency upload mode if the problem persists",
	},
}

// Suggestions returns a copy of the remediation hints for a category.
func Suggestions(c Category) []string {
	s, ok := suggestions[c]
	if !ok {
		s = suggestions[CategoryUnknown]
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
