package session

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/api"
	"github.com/dmitrijs2005/gophupload/internal/client/chunker"
	"github.com/dmitrijs2005/gophupload/internal/client/convergence"
	"github.com/dmitrijs2005/gophupload/internal/client/credential"
	"github.com/dmitrijs2005/gophupload/internal/client/governor"
	"github.com/dmitrijs2005/gophupload/internal/client/health"
	"github.com/dmitrijs2005/gophupload/internal/client/ledger"
	"github.com/dmitrijs2005/gophupload/internal/client/models"
	"github.com/dmitrijs2005/gophupload/internal/client/notify"
	"github.com/dmitrijs2005/gophupload/internal/client/verify"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func pngSource(name string, size int) *chunker.BytesSource {
	data := bytes.Repeat([]byte{0xAB}, size)
	copy(data, pngMagic)
	return &chunker.BytesSource{FileName: name, Data: data}
}

type singleCall struct {
	req       api.SingleRequest
	emergency bool
}

type fakeTransport struct {
	mu sync.Mutex

	singles []singleCall
	chunks  []api.ChunkRequest
	batches []api.BatchRequest

	singleFn func(n int, call singleCall) (api.SingleResponse, error)
	batchFn  func(n int, req api.BatchRequest) (api.BatchResponse, error)
	chunkFn  func(req api.ChunkRequest) (api.ChunkResponse, error)

	sessions int
}

func (f *fakeTransport) UploadSingle(_ context.Context, _ string, req api.SingleRequest, emergency bool) (api.SingleResponse, error) {
	f.mu.Lock()
	call := singleCall{req: req, emergency: emergency}
	f.singles = append(f.singles, call)
	n := len(f.singles)
	fn := f.singleFn
	f.mu.Unlock()

	if fn != nil {
		return fn(n, call)
	}
	return api.SingleResponse{FilePath: "2026/" + req.FileName}, nil
}

func (f *fakeTransport) UploadChunk(_ context.Context, _ string, req api.ChunkRequest) (api.ChunkResponse, error) {
	f.mu.Lock()
	f.chunks = append(f.chunks, req)
	fn := f.chunkFn
	if req.SessionID == "" {
		f.sessions++
		req.SessionID = fmt.Sprintf("sess-%d", f.sessions)
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	resp := api.ChunkResponse{
		SessionID:      req.SessionID,
		ReceivedChunks: req.ChunkIndex + 1,
		TotalChunks:    req.TotalChunks,
		Complete:       req.ChunkIndex+1 == req.TotalChunks,
	}
	if resp.Complete {
		resp.FilePath = "2026/" + req.FileName
	}
	return resp, nil
}

func (f *fakeTransport) UploadBatch(_ context.Context, _ string, req api.BatchRequest) (api.BatchResponse, error) {
	f.mu.Lock()
	f.batches = append(f.batches, req)
	n := len(f.batches)
	fn := f.batchFn
	f.mu.Unlock()

	if fn != nil {
		return fn(n, req)
	}
	resp := api.BatchResponse{Summary: api.BatchSummary{Total: len(req.Images), Succeeded: len(req.Images)}}
	for _, img := range req.Images {
		resp.Results = append(resp.Results, api.BatchResult{FileName: img.FileName, Success: true, FilePath: "2026/" + img.FileName})
	}
	return resp, nil
}

func (f *fakeTransport) chunkCalls() []api.ChunkRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.ChunkRequest(nil), f.chunks...)
}

func (f *fakeTransport) batchCalls() []api.BatchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.BatchRequest(nil), f.batches...)
}

func (f *fakeTransport) singleCalls() []singleCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]singleCall(nil), f.singles...)
}

type fakeProber struct {
	mu       sync.Mutex
	refs     []string
	verified func(ref string) bool
}

func (p *fakeProber) Verify(_ context.Context, ref string) verify.Result {
	p.mu.Lock()
	p.refs = append(p.refs, ref)
	fn := p.verified
	p.mu.Unlock()

	if fn != nil && !fn(ref) {
		return verify.Result{Attempts: verify.DefaultMaxAttempts, Err: verify.ErrNotImage}
	}
	return verify.Result{Verified: true, Attempts: 1, MimeType: "image/png"}
}

type harness struct {
	o      *Orchestrator
	tr     *fakeTransport
	pr     *fakeProber
	notes  *notify.Recorder
	form   *convergence.MemoryForm
	health *health.Controller
	gov    *governor.Governor
	ledger *ledger.Ledger

	mu       sync.Mutex
	sleeps   []time.Duration
	progress []models.Task
}

type setup struct {
	cfg    Config
	deps   Deps
	health health.Config
	gov    *governor.Governor
}

func newHarness(t *testing.T, opts ...func(*setup)) *harness {
	t.Helper()

	h := &harness{
		tr:     &fakeTransport{},
		pr:     &fakeProber{},
		notes:  &notify.Recorder{},
		form:   &convergence.MemoryForm{},
		ledger: ledger.New(0, 0),
	}
	st := &setup{gov: governor.New(1000, time.Second)}
	st.deps = Deps{
		Transport:   h.tr,
		Prober:      h.pr,
		Credentials: credential.Static("token"),
		Notifier:    h.notes,
		Form:        h.form,
		Ledger:      h.ledger,
		Patcher: convergence.NewPatcher(nil, convergence.WithSleeper(func(context.Context, time.Duration) error {
			return nil
		})),
		Sleeper: func(ctx context.Context, d time.Duration) error {
			h.mu.Lock()
			h.sleeps = append(h.sleeps, d)
			h.mu.Unlock()
			return ctx.Err()
		},
	}
	st.cfg.OnProgress = func(task models.Task) {
		h.mu.Lock()
		h.progress = append(h.progress, task)
		h.mu.Unlock()
	}
	for _, o := range opts {
		o(st)
	}

	h.gov = st.gov
	h.health = health.NewController(st.health, h.gov, nil)
	st.deps.Governor = h.gov
	st.deps.Health = h.health

	o, err := New(st.cfg, st.deps)
	require.NoError(t, err)
	h.o = o
	return h
}

func (h *harness) progressOf(taskID string) []models.Task {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.Task
	for _, t := range h.progress {
		if t.ID == taskID {
			out = append(out, t)
		}
	}
	return out
}

func (h *harness) recordedSleeps() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.sleeps...)
}
