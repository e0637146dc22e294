package failure

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophupload/internal/common"
)

// Classify maps an error to its RecoveryState.
//
// Resolution order: typed *Error, known sentinel errors, HTTP status codes,
// net.Error, and finally the error text.
func Classify(err error) RecoveryState {
	if err == nil {
		return stateFor(CategoryUnknown, "")
	}
	return stateFor(categoryOf(err), err.Error())
}

// ClassifyMessage categorizes a bare message, e.g. a per-item error string
// from a batch response.
func ClassifyMessage(msg string) RecoveryState {
	return stateFor(matchMessage(msg), msg)
}

func stateFor(c Category, msg string) RecoveryState {
	strategy := StrategyFor(c)
	return RecoveryState{
		Category:      c,
		CanRetry:      strategy != RetryNone,
		RetryStrategy: strategy,
		Suggestions:   Suggestions(c),
		Message:       msg,
	}
}

func categoryOf(err error) Category {
	var fe *Error
	if errors.As(err, &fe) && fe.Category != "" {
		return fe.Category
	}

	switch {
	case errors.Is(err, common.ErrMissingCredential),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return CategoryAuth
	case errors.Is(err, common.ErrEmptyReference),
		errors.Is(err, common.ErrNoBatchResults),
		errors.Is(err, common.ErrChunkRejected):
		return CategoryProcessing
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		if c, ok := categoryForStatus(sc.StatusCode()); ok {
			return c
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return CategoryNetwork
	}

	return matchMessage(err.Error())
}

func categoryForStatus(code int) (Category, bool) {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return CategoryAuth, true
	case code == http.StatusRequestEntityTooLarge:
		return CategorySize, true
	case code == http.StatusUnsupportedMediaType:
		return CategoryFormat, true
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return CategoryValidation, true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests,
		code == http.StatusBadGateway, code == http.StatusGatewayTimeout:
		return CategoryNetwork, true
	case code >= 500:
		return CategoryProcessing, true
	}
	return "", false
}

// keyword groups are checked in order; the first match wins.
var keywords = []struct {
	category Category
	words    []string
}{
	{CategoryAuth, []string{"unauthorized", "forbidden", "credential", "token", "401", "403", "not authenticated"}},
	{CategorySize, []string{"too large", "exceeds", "file size", "413", "payload"}},
	{CategoryFormat, []string{"unsupported", "format", "mime", "corrupt", "not an image", "415", "decode"}},
	{CategoryReader, []string{"filereader", "read file", "reading file", "reader"}},
	{CategoryNetwork, []string{"network", "connection", "timeout", "timed out", "econnreset", "fetch", "dial", "eof", "unreachable", "no such host"}},
	{CategoryProcessing, []string{"processing", "server error", "internal", "500", "503", "storage"}},
	{CategoryValidation, []string{"invalid", "validation", "empty file", "too small"}},
}

func matchMessage(msg string) Category {
	m := strings.ToLower(msg)
	for _, group := range keywords {
		for _, w := range group.words {
			if strings.Contains(m, w) {
				return group.category
			}
		}
	}
	return CategoryUnknown
}
