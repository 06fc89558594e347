// Package extract fetches a page and summarizes its metadata.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/lifedb/internal/domain"
)

// ErrUnexpectedStatus is returned for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Extractor turns a URL into document metadata.
type Extractor interface {
	Extract(ctx context.Context, url string) (domain.Metadata, error)
}

type Config struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// FromEnv reads EXTRACT_TIMEOUT, EXTRACT_USER_AGENT and EXTRACT_MAX_BYTES.
func FromEnv() Config {
	c := Config{
		Timeout:   12 * time.Second,
		UserAgent: "lifedb/1.0",
		MaxBytes:  5 * 1024 * 1024,
	}
	if v := os.Getenv("EXTRACT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Timeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("EXTRACT_USER_AGENT")); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("EXTRACT_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxBytes = n
		}
	}
	return c
}

// HTMLExtractor fetches over HTTP and parses the HTML head and body.
type HTMLExtractor struct {
	cfg    Config
	client *http.Client
}

func NewHTMLExtractor(cfg Config) *HTMLExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 5 * 1024 * 1024
	}
	return &HTMLExtractor{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (e *HTMLExtractor) Extract(ctx context.Context, url string) (domain.Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("create request: %w", err)
	}
	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Metadata{}, fmt.Errorf("%w: HTTP %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	md, err := Parse(io.LimitReader(resp.Body, e.cfg.MaxBytes))
	if err != nil {
		return domain.Metadata{}, fmt.Errorf("parse: %w", err)
	}
	return md, nil
}
