// Package outsource looks up spatial entities in public registries when a
// geo code is unknown to the local store.
package outsource

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/JonMunkholm/aggrada/internal/spatial"
)

// ErrNotFound is returned when the registry has no record for a code.
var ErrNotFound = errors.New("not found in outsourced registry")

// Provider resolves a single geo code against a remote registry.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, code string) (spatial.Entity, error)
}

// ClientConfig tunes the shared HTTP client.
type ClientConfig struct {
	Timeout  time.Duration
	RetryMax int
}

// Client is a retrying JSON-over-HTTP client shared by providers.
type Client struct {
	http *retryablehttp.Client
}

// NewClient builds a Client. Transient failures (connection errors, 429 and
// 5xx) are retried with exponential backoff.
func NewClient(cfg ClientConfig) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = slog.Default()
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	if cfg.RetryMax >= 0 {
		rc.RetryMax = cfg.RetryMax
	}
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	} else {
		rc.HTTPClient.Timeout = 10 * time.Second
	}
	return &Client{http: rc}
}

// getJSON fetches url and decodes the body into out. 404 maps to ErrNotFound.
func (c *Client) getJSON(ctx context.Context, url string, header http.Header, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", redact(url))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return errors.Errorf("GET %s: status=%d body=%s", redact(url), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// redact drops the query string so tokens never reach logs.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
