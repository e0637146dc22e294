// Package verify loads uploaded artifacts back from the server before an
// upload is reported as complete.
package verify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/client/retry"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/dmitrijs2005/gophupload/internal/netx"
	"github.com/gabriel-vasile/mimetype"
	goretry "github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxAttempts = 3
	DefaultTimeout     = 10 * time.Second
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 8 * time.Second

	// sniffBytes is enough for mimetype to recognise any image format.
	sniffBytes = 3072
)

var ErrNotImage = errors.New("artifact is not an image")

type Config struct {
	MaxAttempts int
	Timeout     time.Duration
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	return c
}

// Result of verifying one reference. Verified false with Attempts equal to
// the maximum means "uploaded but unverified".
type Result struct {
	Verified bool
	Attempts int
	MimeType string
	Err      error
}

type Prober struct {
	cfg     Config
	baseURL string
	client  *http.Client
	quality *QualityTracker
	sleep   retry.Sleeper
	now     func() time.Time
	group   singleflight.Group
	logger  logging.Logger
}

// NewProber builds a prober that loads references relative to baseURL,
// e.g. "http://localhost:8080/artifacts/".
func NewProber(cfg Config, baseURL string, client *http.Client, quality *QualityTracker, logger logging.Logger) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	if quality == nil {
		quality = NewQualityTracker()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Prober{
		cfg:     cfg.withDefaults(),
		baseURL: baseURL,
		client:  client,
		quality: quality,
		sleep:   retry.Sleep,
		now:     time.Now,
		logger:  logger,
	}
}

// ArtifactURL resolves a stored reference against baseURL. Absolute http(s)
// references are returned unchanged.
func ArtifactURL(baseURL, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	parts := strings.Split(strings.TrimLeft(ref, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Join(parts, "/")
}

// Timeout returns the per-attempt timeout adapted to connection quality.
func (p *Prober) Timeout() time.Duration {
	return p.quality.Quality().Scale(p.cfg.Timeout)
}

// Verify probes ref until it loads as an image or attempts run out.
// Concurrent calls for the same reference share one probe.
func (p *Prober) Verify(ctx context.Context, ref string) Result {
	v, _, _ := p.group.Do(ref, func() (any, error) {
		return p.probe(ctx, ref), nil
	})
	return v.(Result)
}

func (p *Prober) probe(ctx context.Context, ref string) Result {
	backoff := goretry.WithCappedDuration(p.cfg.MaxDelay, goretry.NewExponential(p.cfg.BaseDelay))
	base := ArtifactURL(p.baseURL, ref)

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		mime, err := p.load(ctx, base)
		if err == nil {
			p.logger.Debug(ctx, "artifact verified", "ref", ref, "attempt", attempt, "mime", mime)
			return Result{Verified: true, Attempts: attempt, MimeType: mime}
		}
		lastErr = err
		p.logger.Warn(ctx, "artifact probe failed", "ref", ref, "attempt", attempt, "error", err)

		if attempt == p.cfg.MaxAttempts {
			break
		}
		delay, _ := backoff.Next()
		if err := p.sleep(ctx, delay); err != nil {
			return Result{Attempts: attempt, Err: err}
		}
	}
	return Result{Attempts: p.cfg.MaxAttempts, Err: lastErr}
}

func (p *Prober) load(ctx context.Context, base string) (string, error) {
	u, err := netx.CacheBust(base, p.now())
	if err != nil {
		return "", err
	}

	actx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	start := time.Now()
	body, err := netx.Get(actx, p.client, u, sniffBytes)
	if err != nil {
		p.quality.RecordFailure()
		return "", err
	}
	p.quality.Record(time.Since(start))

	mime := mimetype.Detect(body).String()
	if !strings.HasPrefix(mime, "image/") {
		return mime, fmt.Errorf("%w: %s", ErrNotImage, mime)
	}
	return mime, nil
}
