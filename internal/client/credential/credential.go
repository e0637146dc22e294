// Package credential supplies the bearer token sent with upload requests.
// A missing or expired token is a terminal auth failure.
package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/failure"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"
)

type Source interface {
	Token(ctx context.Context) (string, error)
}

func missing() error {
	return failure.New(failure.CategoryAuth, common.ErrMissingCredential)
}

// Static always returns the same token.
type Static string

func (s Static) Token(context.Context) (string, error) {
	tok := strings.TrimSpace(string(s))
	if tok == "" {
		return "", missing()
	}
	return tok, nil
}

// Env reads the token from an environment variable on every call.
type Env string

func (e Env) Token(ctx context.Context) (string, error) {
	return Static(os.Getenv(string(e))).Token(ctx)
}

// ExpiryChecked rejects JWTs whose exp claim has passed. The signature is
// not verified; tokens that do not parse as JWTs are passed through as
// opaque credentials.
type ExpiryChecked struct {
	Source Source
	Leeway time.Duration
	now    func() time.Time
}

func NewExpiryChecked(src Source, leeway time.Duration) *ExpiryChecked {
	return &ExpiryChecked{Source: src, Leeway: leeway, now: time.Now}
}

func (e *ExpiryChecked) Token(ctx context.Context) (string, error) {
	tok, err := e.Source.Token(ctx)
	if err != nil {
		return "", err
	}

	exp, ok := Expiry(tok)
	if ok && !e.now().Before(exp.Add(-e.Leeway)) {
		return "", failure.New(failure.CategoryAuth,
			fmt.Errorf("%w at %s", common.ErrTokenExpired, exp.UTC().Format(time.RFC3339)))
	}
	return tok, nil
}

// Expiry returns the exp claim of an unverified JWT.
func Expiry(tok string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// Prompt asks for the token on the terminal once, without echo, and caches
// the answer.
type Prompt struct {
	Out io.Writer
	Fd  int

	once sync.Once
	tok  string
	err  error
}

func NewPrompt(out io.Writer) *Prompt {
	return &Prompt{Out: out, Fd: int(os.Stdin.Fd())}
}

func (p *Prompt) Token(ctx context.Context) (string, error) {
	p.once.Do(func() {
		fmt.Fprint(p.Out, "Enter upload token: ")
		b, err := readPassword(p.Fd)
		fmt.Fprintln(p.Out)
		if err != nil {
			p.err = failure.New(failure.CategoryAuth, fmt.Errorf("read token: %w", err))
			return
		}
		p.tok = strings.TrimSpace(string(b))
	})
	if p.err != nil {
		return "", p.err
	}
	return Static(p.tok).Token(ctx)
}

// Chain returns the first token any source yields. Only a missing
// credential moves on to the next source.
type Chain []Source

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, s := range c {
		tok, err := s.Token(ctx)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, common.ErrMissingCredential) {
			return "", err
		}
	}
	return "", missing()
}
