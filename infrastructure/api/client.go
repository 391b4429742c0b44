// Package api holds the HTTP collaborators of the client: selfie verification
// and the admin metrics feed.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/omkarshukla84/klymo-client/errors"
)

const (
	verifyPath  = "/api/verify"
	metricsPath = "/api/admin/metrics"

	defaultTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// Client talks to the HTTP side of the service.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     log,
	}
}

// do sends body as JSON (when non-nil) and decodes the JSON response into out.
// Non-2xx responses are decoded too: the service reports failures in the body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %v", errors.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("HTTP call", "method", method, "path", path,
		"status", resp.StatusCode, "took", time.Since(start))

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %s %s (status %d): %v",
			errors.ErrBadResponse, method, path, resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}
