// Package httpapi exposes the upload service over HTTP with gin.
package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/gophupload/internal/api"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the upload routes, the artifact route and /metrics.
// Upload routes require a bearer token signed with secret.
func NewRouter(h *Handlers, secret []byte, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Instrument(h.metrics))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET(api.PathArtifacts+"*key", h.Artifact)

	up := r.Group("/", BearerAuth(secret))
	up.POST(api.PathSingle, h.Single)
	up.POST(api.PathChunk, h.Chunk)
	up.POST(api.PathBatch, h.Batch)

	return r
}
