// Package httpsource fetches archive documents from the host that serves the
// static genealogy site.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/scrypster/kinship/internal/storage"
	"github.com/scrypster/kinship/pkg/types"
)

// maxDocumentBytes bounds a single response body (the monolithic dataset is
// the largest document, a few megabytes).
const maxDocumentBytes = 64 << 20

// Config describes where the archive documents live.
type Config struct {
	// BaseURL is the archive host, e.g. "https://example.org/archive/".
	BaseURL string

	// MetadataPath, ChunkPattern and DatasetPath are resolved against BaseURL.
	// ChunkPattern must contain one %s verb for the lineage id.
	MetadataPath string
	ChunkPattern string
	DatasetPath  string

	// Timeout bounds a single request. Default: 15 seconds.
	Timeout time.Duration

	// RequestsPerSecond and Burst pace requests to the host. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	Breaker BreakerConfig
}

// DefaultConfig returns the layout used by the published archive.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		MetadataPath:      "data/metadata.json",
		ChunkPattern:      "data/lineages/%s.json",
		DatasetPath:       "data/people.json",
		Timeout:           15 * time.Second,
		RequestsPerSecond: 20,
		Burst:             10,
	}
}

// Source implements storage.ChunkSource over HTTP.
type Source struct {
	base    *url.URL
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	breaker *breaker
}

// New creates an HTTP source. client may be nil.
func New(config Config, client *http.Client) (*Source, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("httpsource: base URL is required: %w", storage.ErrInvalidInput)
	}
	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("httpsource: parse base URL: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if !strings.Contains(config.ChunkPattern, "%s") {
		return nil, fmt.Errorf("httpsource: chunk pattern %q lacks %%s: %w", config.ChunkPattern, storage.ErrInvalidInput)
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	s := &Source{
		base:    base,
		config:  config,
		client:  client,
		breaker: newBreaker("archive:"+base.Host, config.Breaker),
	}
	if config.RequestsPerSecond > 0 {
		burst := config.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return s, nil
}

// FetchMetadata implements storage.ChunkSource.
func (s *Source) FetchMetadata(ctx context.Context) (*types.Metadata, error) {
	var meta types.Metadata
	if err := s.getJSON(ctx, s.config.MetadataPath, &meta); err != nil {
		return nil, err
	}
	if meta.PersonToLineage == nil {
		return nil, fmt.Errorf("httpsource: metadata has no personToLineage: %w", storage.ErrMalformed)
	}
	return &meta, nil
}

// FetchChunk implements storage.ChunkSource.
func (s *Source) FetchChunk(ctx context.Context, lineageID string) (*types.Document, error) {
	if lineageID == "" {
		return nil, fmt.Errorf("httpsource: empty lineage id: %w", storage.ErrInvalidInput)
	}
	var doc types.Document
	path := fmt.Sprintf(s.config.ChunkPattern, url.PathEscape(lineageID))
	if err := s.getJSON(ctx, path, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchDataset implements storage.ChunkSource.
func (s *Source) FetchDataset(ctx context.Context) (*types.Document, error) {
	var doc types.Document
	if err := s.getJSON(ctx, s.config.DatasetPath, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// BreakerState reports the circuit breaker state for diagnostics.
func (s *Source) BreakerState() string {
	return s.breaker.state()
}

func (s *Source) getJSON(ctx context.Context, path string, v interface{}) error {
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("httpsource: parse path %q: %w", path, storage.ErrInvalidInput)
	}
	target := s.base.ResolveReference(ref).String()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("httpsource: rate limit wait: %w", err)
		}
	}

	return s.breaker.execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("httpsource: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return fmt.Errorf("httpsource: GET %s: %w", target, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return fmt.Errorf("httpsource: GET %s: %w", target, storage.ErrNotFound)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return fmt.Errorf("httpsource: GET %s: unexpected status %d", target, resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		if err != nil {
			return fmt.Errorf("httpsource: read %s: %w", target, err)
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("httpsource: parse %s: %v: %w", target, err, storage.ErrMalformed)
		}
		return nil
	})
}
