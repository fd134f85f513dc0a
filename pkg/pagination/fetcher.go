package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tomnomnom/linkheader"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_pagination_pages_total",
		Help: "Total number of Canvas pages fetched",
	})

	walksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_pagination_walks_total",
		Help: "Total number of pagination walks by outcome",
	}, []string{"outcome"})
)

// ErrPaginationLoop is returned when a next link points at a page already visited.
var ErrPaginationLoop = errors.New("pagination loop detected")

// Config holds fetcher configuration.
type Config struct {
	// PerPage is sent as per_page on the first request unless the caller sets it.
	PerPage int
}

// DefaultConfig returns the Canvas default of 100 items per page.
func DefaultConfig() Config {
	return Config{PerPage: 100}
}

// Getter is the HTTP surface the fetcher needs. *client.Client implements it.
type Getter interface {
	Get(ctx context.Context, path string, query url.Values) (*http.Response, error)
}

// Fetcher follows Link rel="next" pagination.
type Fetcher struct {
	getter  Getter
	apiBase string
	config  Config
	logger  zerolog.Logger
}

// NewFetcher creates a fetcher. apiBase is the absolute API prefix stripped from
// next links, e.g. "https://school.instructure.com/api/v1".
func NewFetcher(getter Getter, apiBase string, config Config) *Fetcher {
	if config.PerPage <= 0 {
		config.PerPage = 100
	}
	return &Fetcher{
		getter:  getter,
		apiBase: strings.TrimRight(apiBase, "/"),
		config:  config,
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// FetchAll returns the elements of every page of path decoded as T, in page order.
func FetchAll[T any](ctx context.Context, f *Fetcher, path string, params url.Values) ([]T, error) {
	var out []T
	err := f.Walk(ctx, path, params, func(page int, body []byte) error {
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return fmt.Errorf("decode page %d of %s: %w", page, path, err)
		}
		out = append(out, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Walk requests path and every following page, handing each raw body to fn.
// It stops at the first error from the transport, a non-2xx answer, or fn.
func (f *Fetcher) Walk(ctx context.Context, path string, params url.Values, fn func(page int, body []byte) error) error {
	start := time.Now()

	query := url.Values{}
	for k, v := range params {
		query[k] = append([]string(nil), v...)
	}
	if query.Get("per_page") == "" {
		query.Set("per_page", strconv.Itoa(f.config.PerPage))
	}

	next := path
	visited := map[string]bool{}
	page := 0

	for next != "" {
		if visited[next] {
			walksTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("%w: %s", ErrPaginationLoop, next)
		}
		visited[next] = true
		page++

		body, link, err := f.fetchPage(ctx, next, query)
		if err != nil {
			walksTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("fetch page %d of %s: %w", page, path, err)
		}
		pagesFetchedTotal.Inc()

		if err := fn(page, body); err != nil {
			walksTotal.WithLabelValues("error").Inc()
			return err
		}

		f.logger.Debug().
			Str("endpoint", path).
			Int("page", page).
			Int("bytes", len(body)).
			Msg("Fetched page")

		// continuation links already carry the original query
		query = nil
		next = f.relative(ParseNextLink(link))
	}

	walksTotal.WithLabelValues("ok").Inc()
	f.logger.Debug().
		Str("endpoint", path).
		Int("pages", page).
		Dur("duration", time.Since(start)).
		Msg("Pagination complete")

	return nil
}

func (f *Fetcher) fetchPage(ctx context.Context, path string, query url.Values) ([]byte, string, error) {
	resp, err := f.getter.Get(ctx, path, query)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}

	return body, strings.Join(resp.Header.Values("Link"), ","), nil
}

// relative strips the API base from an absolute next URL. URLs outside the
// base are returned unchanged and validated by the Getter.
func (f *Fetcher) relative(next string) string {
	if next == "" {
		return ""
	}
	if f.apiBase != "" && strings.HasPrefix(next, f.apiBase) {
		rel := strings.TrimPrefix(next, f.apiBase)
		if rel == "" || rel[0] != '/' {
			rel = "/" + rel
		}
		return rel
	}
	return next
}

// ParseNextLink returns the URL of the rel="next" entry of a Link header value,
// or "" when there is none. rel may carry several space-separated types.
func ParseNextLink(header string) string {
	for _, link := range linkheader.Parse(header) {
		for _, rel := range strings.Fields(link.Rel) {
			if strings.EqualFold(rel, "next") {
				return link.URL
			}
		}
	}
	return ""
}
