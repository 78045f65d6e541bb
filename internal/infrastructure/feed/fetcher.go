// Package feed implements the fetch gateway: one bounded-retry HTTP fetch of
// a feed URL returning parsed entries, the transport status, or a classified
// terminal error.
package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"newsdash/internal/domain"
	"newsdash/internal/ports"
)

const (
	defaultTimeout = 30 * time.Second
	retryDelay     = time.Second
	maxAttempts    = 2
	maxBodyBytes   = 10 << 20

	userAgent    = "newsdash/1.0 (Personal RSS Aggregator)"
	acceptHeader = "application/rss+xml, application/xml, text/xml, */*"
)

// Fetcher retrieves and parses feeds over HTTP.
type Fetcher struct {
	client     *http.Client
	parser     *gofeed.Parser
	retryDelay time.Duration
	logger     *slog.Logger
}

var _ ports.FeedFetcher = (*Fetcher)(nil)

// NewFetcher wires an HTTP client with the given request timeout; zero means
// the 30s default.
func NewFetcher(timeout time.Duration, logger *slog.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		client:     &http.Client{Timeout: timeout},
		parser:     gofeed.NewParser(),
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// FetchFeed performs at most two attempts against url. Client-class HTTP
// errors (4xx) and parse failures are terminal; server-class errors (5xx) and
// network failures are retried once after a short delay.
func (f *Fetcher) FetchFeed(ctx context.Context, url string) (domain.FetchResult, error) {
	var (
		result  domain.FetchResult
		lastErr error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var retryable bool
		result, retryable, lastErr = f.fetchOnce(ctx, url)
		if lastErr == nil {
			return result, nil
		}
		if !retryable || attempt == maxAttempts {
			return result, lastErr
		}

		f.logger.Debug("transient fetch error, retrying", "url", url, "error", lastErr)
		select {
		case <-time.After(f.retryDelay):
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}

	return result, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (domain.FetchResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.FetchResult{}, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.FetchResult{}, true, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	switch {
	case status >= 400 && status < 500:
		return domain.FetchResult{HTTPStatus: status}, false, clientError(status)
	case status >= 500:
		return domain.FetchResult{HTTPStatus: status},
			true, fmt.Errorf("HTTP %d: %s", status, http.StatusText(status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.FetchResult{HTTPStatus: status}, true, fmt.Errorf("read body: %w", err)
	}

	entries, warning, err := f.parseEntries(body)
	if err != nil {
		return domain.FetchResult{HTTPStatus: status}, false, fmt.Errorf("parse feed: %w", err)
	}

	return domain.FetchResult{Entries: entries, HTTPStatus: status, Warning: warning}, false, nil
}

// parseEntries parses the feed body; on failure it retries once over a
// sanitized copy so a malformed-but-salvageable feed still yields entries,
// paired with a non-fatal warning.
func (f *Fetcher) parseEntries(body []byte) ([]domain.Entry, string, error) {
	parsed, err := f.parser.ParseString(string(body))
	if err == nil {
		return resolveEntries(parsed), "", nil
	}

	parsed, retryErr := f.parser.ParseString(sanitizeXML(string(body)))
	if retryErr != nil {
		return nil, "", err
	}
	return resolveEntries(parsed), "feed parse warning (recovered after sanitizing)", nil
}

func clientError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("HTTP 401: Unauthorized (requires authentication)")
	case http.StatusForbidden:
		return fmt.Errorf("HTTP 403: Forbidden")
	case http.StatusNotFound:
		return fmt.Errorf("HTTP 404: Not Found (feed may have moved)")
	case http.StatusTooManyRequests:
		return fmt.Errorf("HTTP 429: Rate Limited (too many requests)")
	default:
		return fmt.Errorf("HTTP %d: %s", status, http.StatusText(status))
	}
}

// sanitizeXML strips control characters that commonly break feed parsers
// while leaving tabs and line breaks in place.
func sanitizeXML(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
