package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophupload/internal/api"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/logging"
	"github.com/dmitrijs2005/gophupload/internal/server/storage"
	"github.com/dmitrijs2005/gophupload/internal/server/uploads"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// Uploader is the upload service behind the HTTP handlers.
type Uploader interface {
	Single(ctx context.Context, subject string, req api.SingleRequest) (string, error)
	Chunk(ctx context.Context, subject string, req api.ChunkRequest) (*api.ChunkResponse, error)
	Batch(ctx context.Context, subject string, req api.BatchRequest) api.BatchResponse
	Artifact(ctx context.Context, key string) ([]byte, string, error)
}

type Handlers struct {
	svc     Uploader
	metrics *Metrics
	logger  logging.Logger
}

func NewHandlers(svc Uploader, metrics *Metrics, logger logging.Logger) *Handlers {
	return &Handlers{svc: svc, metrics: metrics, logger: logger.With("module", "httpapi")}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, uploads.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, uploads.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, uploads.ErrBadEncoding), errors.Is(err, uploads.ErrChunkOutOfRange),
		errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, uploads.ErrChecksumMismatch), errors.Is(err, uploads.ErrSessionMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger returns the request logger. Emergency transport requests get a
// diagnostic child logger.
func (h *Handlers) requestLogger(c *gin.Context) logging.Logger {
	l := h.logger.With("route", c.FullPath(), "subject", c.GetString(subjectKey))
	if c.GetHeader(common.UploadModeHeaderName) == api.ModeEmergency {
		h.metrics.emergencyCalls.Inc()
		l = l.With("mode", api.ModeEmergency, "remote", c.ClientIP(), "content_length", c.Request.ContentLength,
			"user_agent", c.Request.UserAgent())
		l.Debug(c.Request.Context(), "emergency upload request")
	}
	return l
}

func (h *Handlers) fail(c *gin.Context, l logging.Logger, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		l.Error(c.Request.Context(), "request failed", "error", err)
	} else {
		l.Warn(c.Request.Context(), "request rejected", "status", code, "error", err)
	}
	c.JSON(code, api.ErrorResponse{Error: err.Error()})
}

func (h *Handlers) bad(c *gin.Context, l logging.Logger, err error) {
	l.Warn(c.Request.Context(), "invalid request body", "error", err)
	c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body: " + err.Error()})
}

func decodedSize(b64 string) int {
	return len(b64) / 4 * 3
}

func (h *Handlers) Single(c *gin.Context) {
	l := h.requestLogger(c)

	var req api.SingleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bad(c, l, err)
		return
	}
	h.metrics.receivedBytes.Add(float64(decodedSize(req.FileContent)))

	key, err := h.svc.Single(c.Request.Context(), c.GetString(subjectKey), req)
	if err != nil {
		h.fail(c, l, err)
		return
	}
	h.metrics.storedImages.WithLabelValues("single").Inc()
	c.JSON(http.StatusOK, api.SingleResponse{FilePath: key})
}

func (h *Handlers) Chunk(c *gin.Context) {
	l := h.requestLogger(c)

	var req api.ChunkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bad(c, l, err)
		return
	}
	h.metrics.receivedBytes.Add(float64(decodedSize(req.Data)))

	resp, err := h.svc.Chunk(c.Request.Context(), c.GetString(subjectKey), req)
	if err != nil {
		h.fail(c, l.With("session", req.SessionID, "chunk", req.ChunkIndex), err)
		return
	}
	if resp.Complete {
		h.metrics.storedImages.WithLabelValues("chunked").Inc()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) Batch(c *gin.Context) {
	l := h.requestLogger(c)

	var req api.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bad(c, l, err)
		return
	}
	h.metrics.receivedBytes.Add(float64(lo.SumBy(req.Images, func(img api.BatchImage) int {
		return decodedSize(img.FileContent)
	})))

	resp := h.svc.Batch(c.Request.Context(), c.GetString(subjectKey), req)
	h.metrics.storedImages.WithLabelValues("batch").Add(float64(resp.Summary.Succeeded))
	if resp.Summary.Failed > 0 {
		l.Warn(c.Request.Context(), "batch items rejected", "failed", resp.Summary.Failed, "total", resp.Summary.Total)
	}
	c.JSON(http.StatusOK, resp)
}

// Artifact serves a stored image. The cache-busting query parameter is
// ignored.
func (h *Handlers) Artifact(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	data, contentType, err := h.svc.Artifact(c.Request.Context(), key)
	if err != nil {
		h.fail(c, h.logger.With("key", key), err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, contentType, data)
}
