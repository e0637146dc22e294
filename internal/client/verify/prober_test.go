package verify

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{1}, 64)...)

type sleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = append(s.d, d)
	return nil
}

func newProber(t *testing.T, h http.Handler, cfg Config) (*Prober, *sleeps) {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	p := NewProber(cfg, ts.URL+"/artifacts/", ts.Client(), nil, nil)
	s := &sleeps{}
	p.sleep = s.sleep
	return p, s
}

func TestVerify_SucceedsOnKthAttempt(t *testing.T) {
	var hits atomic.Int32
	var queries []string
	var mu sync.Mutex
	p, s := newProber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("v"))
		mu.Unlock()
		if hits.Add(1) < 2 {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(pngBytes)
	}), Config{MaxAttempts: 5})

	res := p.Verify(context.Background(), "2026/a.png")
	require.True(t, res.Verified)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "image/png", res.MimeType)
	assert.EqualValues(t, 2, hits.Load())
	assert.Equal(t, []time.Duration{time.Second}, s.d)

	require.Len(t, queries, 2)
	assert.NotEmpty(t, queries[0])
}

func TestVerify_ExhaustionIsUnverified(t *testing.T) {
	var hits atomic.Int32
	p, s := newProber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<html>not here</html>"))
	}), Config{MaxAttempts: 5})

	res := p.Verify(context.Background(), "a.png")
	assert.False(t, res.Verified)
	assert.Equal(t, 5, res.Attempts)
	assert.ErrorIs(t, res.Err, ErrNotImage)
	assert.EqualValues(t, 5, hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, s.d)
}

func TestVerify_CoalescesConcurrentProbes(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	p, _ := newProber(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write(pngBytes)
	}), Config{})

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.Verify(context.Background(), "same.png")
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.Verified)
	}
	assert.EqualValues(t, 1, hits.Load())
}

func TestProber_TimeoutAdaptsToQuality(t *testing.T) {
	q := NewQualityTracker()
	p := NewProber(Config{}, "http://x/", nil, q, nil)
	assert.Equal(t, 10*time.Second, p.Timeout())

	for range 8 {
		q.Record(20 * time.Millisecond)
	}
	assert.Equal(t, QualityGood, q.Quality())
	assert.Equal(t, 5*time.Second, p.Timeout())

	for range 8 {
		q.RecordFailure()
	}
	assert.Equal(t, QualityPoor, q.Quality())
	assert.Equal(t, 20*time.Second, p.Timeout())
}

func TestArtifactURL(t *testing.T) {
	assert.Equal(t, "http://h/artifacts/2026/a%20b.png", ArtifactURL("http://h/artifacts/", "2026/a b.png"))
	assert.Equal(t, "http://h/artifacts/x.png", ArtifactURL("http://h/artifacts", "/x.png"))
	assert.Equal(t, "https://cdn/x.png", ArtifactURL("http://h/artifacts", "https://cdn/x.png"))
}
