// Package backend provides the concrete query adapters the daemon binds to
// the resilient fetcher: a REST primary, a direct-SQL secondary and a gRPC
// adapter. Each adapter translates transport errors into the shared failure
// taxonomy so the fetcher never inspects transport details.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/feedsync/internal/core/domain"
	"github.com/vietddude/feedsync/internal/feed/fetch"
)

// RESTBackend reads rows from a REST endpoint that returns JSON arrays of
// objects, the shape PostgREST-style gateways serve.
type RESTBackend struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRESTBackend creates a REST backend rooted at baseURL.
func NewRESTBackend(name, baseURL, apiKey string, timeout time.Duration) *RESTBackend {
	return &RESTBackend{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Name returns the backend identifier for logs.
func (b *RESTBackend) Name() string { return b.name }

// Rows builds a fetch query for the given resource path.
func (b *RESTBackend) Rows(path string) fetch.Query[domain.Row] {
	url := b.baseURL + "/" + strings.TrimLeft(path, "/")
	return func(ctx context.Context) ([]domain.Row, error) {
		return b.get(ctx, url)
	}
}

func (b *RESTBackend) get(ctx context.Context, url string) ([]domain.Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		// Connection refused, DNS failure, client timeout: all transient.
		return nil, domain.NewError(domain.FailureTransient, "network", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewError(domain.FailureTransient, "read", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, body)
	}

	var rows []domain.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, domain.NewError(domain.FailureClient, "decode",
			fmt.Errorf("decode response: %w", err))
	}
	return rows, nil
}

func classifyStatus(status int, body []byte) *domain.Error {
	code := strconv.Itoa(status)
	err := fmt.Errorf("http %d: %s", status, truncate(body, 200))

	switch {
	// Schema-cache misses come back as 404/400 from PostgREST-style gateways
	// but resolve once the cache reloads, so they outrank the status code.
	case schemaCacheMiss(body):
		return domain.NewError(domain.FailureTransient, code, err)
	case status == http.StatusNotFound:
		return domain.NewError(domain.FailureNotFound, code, err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewError(domain.FailureAuth, code, err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.NewError(domain.FailureClient, code, err)
	case status >= 500:
		return domain.NewError(domain.FailureTransient, code, err)
	default:
		return domain.NewError(domain.FailureClient, code, err)
	}
}

// schemaCacheMiss recognizes "relation missing from schema cache" style
// responses, which resolve once the gateway reloads its cache.
func schemaCacheMiss(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "schema cache") ||
		strings.Contains(lower, "pgrst2")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
