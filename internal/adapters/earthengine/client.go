// Package earthengine provides the scene catalog and export job service
// backed by the Earth Engine REST API.
package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jobrunner/sceneport/internal/domain"
)

// DefaultBaseURL is the public Earth Engine REST endpoint.
const DefaultBaseURL = "https://earthengine.googleapis.com"

// Config holds the client configuration.
type Config struct {
	BaseURL           string
	Project           string
	AccessToken       string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	PageSize          int
}

// Client is a rate-limited Earth Engine REST client.
type Client struct {
	baseURL string
	project string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	pageSize int
}

// NewClient creates a new client.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" {
		return nil, &domain.ConfigError{Field: "remote.project", Message: "project is required"}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		project:  cfg.Project,
		token:    cfg.AccessToken,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:   logger,
		pageSize: cfg.PageSize,
	}, nil
}

// projectPath returns "projects/<project>".
func (c *Client) projectPath() string {
	return "projects/" + c.project
}

// apiError is the error body returned by the API.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// do sends a request to v1/<path> and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + "/v1/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrRemoteUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("earth engine request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= 300 {
		return c.statusError(method, path, resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// statusError maps an HTTP error response to a domain error.
func (c *Client) statusError(method, path string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := strings.TrimSpace(string(data))
	var apiErr apiError
	if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	var base error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		base = domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		base = domain.ErrRemoteUnavailable
	default:
		base = errors.New(http.StatusText(resp.StatusCode))
	}
	return fmt.Errorf("%s %s: status %d: %s: %w", method, path, resp.StatusCode, msg, base)
}
