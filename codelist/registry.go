// Package codelist lazily backfills reference entries for external authority
// identifiers encountered during merges.
//
// Labels come from the external registry through two read-only strategies:
// a direct subject-URI fetch, falling back to the registry's keyword-search
// API when the direct fetch yields no label. Both are best-effort — a missing
// label never fails a merge.
package codelist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RegistryConfig configures the external authority registry client.
type RegistryConfig struct {
	// SearchURL is the keyword-search endpoint used as fallback.
	// The authority URI is passed as the "query" parameter.
	SearchURL string
	// Timeout applies per fetch. Default: 10s.
	Timeout time.Duration
	// MaxBytes caps response body size. Default: 1MB.
	MaxBytes int64
	// UserAgent sent with requests.
	UserAgent string
}

func (c *RegistryConfig) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 1 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "snapfold/1.0"
	}
}

// Registry looks up authority labels from the external registry.
type Registry struct {
	client *http.Client
	config RegistryConfig
}

// NewRegistry creates a registry client.
func NewRegistry(cfg RegistryConfig) *Registry {
	cfg.defaults()
	return &Registry{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
	}
}

// subjectDoc is the JSON shape returned by a direct subject-URI fetch.
type subjectDoc struct {
	URI       string `json:"uri"`
	PrefLabel string `json:"prefLabel"`
}

// searchDoc is the JSON shape returned by the keyword-search API.
type searchDoc struct {
	Results []subjectDoc `json:"results"`
}

// Lookup resolves the preferred label for an authority URI. It tries the
// direct subject fetch first and falls back to the search API when no label
// is obtained. Returns the label and the URL it was taken from; an empty
// label with nil error means the registry simply does not know the URI.
func (r *Registry) Lookup(ctx context.Context, uri string) (label, takenFrom string, err error) {
	label, err = r.lookupDirect(ctx, uri)
	if err == nil && label != "" {
		return label, uri, nil
	}
	// Direct strategy failed or came back empty: try the search API.
	if r.config.SearchURL == "" {
		return "", "", err
	}
	searchURL := r.config.SearchURL + "?query=" + url.QueryEscape(uri)
	label, serr := r.lookupSearch(ctx, searchURL, uri)
	if serr != nil {
		if err != nil {
			return "", "", fmt.Errorf("codelist: direct: %w; search: %v", err, serr)
		}
		return "", "", fmt.Errorf("codelist: search: %w", serr)
	}
	return label, searchURL, nil
}

func (r *Registry) lookupDirect(ctx context.Context, uri string) (string, error) {
	body, err := r.get(ctx, uri)
	if err != nil {
		return "", err
	}
	var doc subjectDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("codelist: parse subject: %w", err)
	}
	return doc.PrefLabel, nil
}

func (r *Registry) lookupSearch(ctx context.Context, searchURL, uri string) (string, error) {
	body, err := r.get(ctx, searchURL)
	if err != nil {
		return "", err
	}
	var doc searchDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("codelist: parse search results: %w", err)
	}
	for _, res := range doc.Results {
		if res.URI == uri && res.PrefLabel != "" {
			return res.PrefLabel, nil
		}
	}
	return "", nil
}

func (r *Registry) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", r.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
