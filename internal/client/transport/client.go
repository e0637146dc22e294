// Package transport is the HTTP JSON client for the upload endpoints.
package transport

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/api"
	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/netx"
)

const DefaultTimeout = 5 * time.Minute

type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the server at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) header(token string) http.Header {
	h := http.Header{}
	h.Set(common.AuthorizationHeaderName, "Bearer "+token)
	return h
}

// UploadSingle sends a whole file. Emergency requests carry the upload mode
// header.
func (c *Client) UploadSingle(ctx context.Context, token string, req api.SingleRequest, emergency bool) (api.SingleResponse, error) {
	h := c.header(token)
	if emergency {
		h.Set(common.UploadModeHeaderName, api.ModeEmergency)
	}
	var resp api.SingleResponse
	err := netx.PostJSON(ctx, c.http, c.baseURL+api.PathSingle, h, req, &resp)
	return resp, err
}

func (c *Client) UploadChunk(ctx context.Context, token string, req api.ChunkRequest) (api.ChunkResponse, error) {
	var resp api.ChunkResponse
	err := netx.PostJSON(ctx, c.http, c.baseURL+api.PathChunk, c.header(token), req, &resp)
	return resp, err
}

func (c *Client) UploadBatch(ctx context.Context, token string, req api.BatchRequest) (api.BatchResponse, error) {
	var resp api.BatchResponse
	err := netx.PostJSON(ctx, c.http, c.baseURL+api.PathBatch, c.header(token), req, &resp)
	return resp, err
}

// ArtifactBase is the URL prefix stored references are served under.
func (c *Client) ArtifactBase() string {
	return c.baseURL + api.PathArtifacts
}
