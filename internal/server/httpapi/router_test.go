package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/api"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/dmitrijs2005/gophupload/internal/server/auth"
	"github.com/dmitrijs2005/gophupload/internal/server/sessions"
	"github.com/dmitrijs2005/gophupload/internal/server/storage"
	"github.com/dmitrijs2005/gophupload/internal/server/uploads"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func pngOf(size int) []byte {
	b := make([]byte, size)
	copy(b, "\x89PNG\r\n\x1a\n")
	return b
}

type testServer struct {
	router *gin.Engine
	reg    *prometheus.Registry
	log    *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := logging.New(&buf, "debug", "text")
	svc := uploads.NewService(storage.NewMemoryStore(), sessions.NewMemoryRepository(), common.MB, time.Hour, logger)
	reg := prometheus.NewRegistry()
	h := NewHandlers(svc, NewMetrics(reg), logger)
	return &testServer{router: NewRouter(h, secret, reg), reg: reg, log: &buf}
}

func token(t *testing.T) string {
	t.Helper()
	tok, err := auth.GenerateToken("alice", secret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) post(t *testing.T, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T) map[string]string {
	return map[string]string{common.AuthorizationHeaderName: "Bearer " + token(t)}
}

func TestSingleUploadAndArtifact(t *testing.T) {
	s := newTestServer(t)
	data := pngOf(128)

	w := s.post(t, api.PathSingle, api.SingleRequest{
		FileName:    "a.png",
		FileContent: base64.StdEncoding.EncodeToString(data),
		FileType:    "image/png",
	}, bearer(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.SingleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp.FilePath, "images/"))

	w = s.get(api.PathArtifacts + resp.FilePath + "?v=123")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	body := api.SingleRequest{FileName: "a.png", FileContent: "AAAA"}

	w := s.post(t, api.PathSingle, body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.post(t, api.PathSingle, body, map[string]string{common.AuthorizationHeaderName: "Bearer nonsense"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid token")

	expired, err := auth.GenerateToken("alice", secret, -time.Minute)
	require.NoError(t, err)
	w = s.post(t, api.PathSingle, body, map[string]string{common.AuthorizationHeaderName: "Bearer " + expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token expired")
}

func TestStatusCodes(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"not an image", api.SingleRequest{FileName: "a.txt", FileContent: base64.StdEncoding.EncodeToString([]byte("hello world"))}, http.StatusUnsupportedMediaType},
		{"too large", api.SingleRequest{FileName: "a.png", FileContent: base64.StdEncoding.EncodeToString(pngOf(common.MB + 1))}, http.StatusRequestEntityTooLarge},
		{"bad base64", api.SingleRequest{FileName: "a.png", FileContent: "%%%%"}, http.StatusBadRequest},
		{"missing fields", map[string]string{"fileName": "a.png"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.post(t, api.PathSingle, tt.body, bearer(t))
			assert.Equal(t, tt.want, w.Code, w.Body.String())

			var e api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
			assert.NotEmpty(t, e.Error)
		})
	}
}

func TestChunkedUpload(t *testing.T) {
	s := newTestServer(t)
	data := pngOf(90)
	enc := base64.StdEncoding.EncodeToString

	var sid string
	var last api.ChunkResponse
	for i := 0; i < 3; i++ {
		w := s.post(t, api.PathChunk, api.ChunkRequest{
			ChunkIndex:  i,
			TotalChunks: 3,
			Data:        enc(data[i*30 : (i+1)*30]),
			FileName:    "big.png",
			SessionID:   sid,
		}, bearer(t))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &last))
		sid = last.SessionID
		assert.Equal(t, i+1, last.ReceivedChunks)
	}
	require.True(t, last.Complete)

	w := s.get(api.PathArtifacts + last.FilePath)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, data, w.Body.Bytes())
}

func TestChunkUnknownSession(t *testing.T) {
	s := newTestServer(t)
	w := s.post(t, api.PathChunk, api.ChunkRequest{
		ChunkIndex: 1, TotalChunks: 2, Data: "AAAA", FileName: "x.png", SessionID: "gone",
	}, bearer(t))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatch(t *testing.T) {
	s := newTestServer(t)
	enc := base64.StdEncoding.EncodeToString

	w := s.post(t, api.PathBatch, api.BatchRequest{Images: []api.BatchImage{
		{FileName: "a.png", FileContent: enc(pngOf(20))},
		{FileName: "b.txt", FileContent: enc([]byte("text only"))},
	}}, bearer(t))
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, api.BatchSummary{Total: 2, Succeeded: 1, Failed: 1}, resp.Summary)
	assert.True(t, resp.Results[0].Success)
	assert.NotEmpty(t, resp.Results[1].Error)
}

func TestArtifactErrors(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.get(api.PathArtifacts+"images/nope.png").Code)
	assert.Equal(t, http.StatusNotFound, s.get(api.PathArtifacts+"tmp/s/0").Code)
}

func TestEmergencyRequestsAreLogged(t *testing.T) {
	s := newTestServer(t)
	headers := bearer(t)
	headers[common.UploadModeHeaderName] = api.ModeEmergency

	w := s.post(t, api.PathSingle, api.SingleRequest{
		FileName:    "a.png",
		FileContent: base64.StdEncoding.EncodeToString(pngOf(16)),
	}, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, s.log.String(), "emergency upload request")
	assert.Contains(t, s.log.String(), "mode=emergency")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.post(t, api.PathSingle, api.SingleRequest{
		FileName:    "a.png",
		FileContent: base64.StdEncoding.EncodeToString(pngOf(16)),
	}, bearer(t))

	w := s.get("/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `gophupload_uploads_stored_images_total{method="single"} 1`)
	assert.Contains(t, body, `gophupload_http_requests_total{code="200",route="/api/v1/uploads/single"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(uploads.ErrChecksumMismatch))
	assert.Equal(t, http.StatusUnprocessableEntity, statusFor(uploads.ErrSessionMismatch))
	assert.Equal(t, http.StatusBadRequest, statusFor(storage.ErrInvalidKey))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}
