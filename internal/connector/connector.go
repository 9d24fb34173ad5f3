package connector

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hejijunhao/statusreport/internal/connector/httpclient"
	"github.com/hejijunhao/statusreport/internal/model"
)

// Adapter fetches the incident history of one status page.
type Adapter interface {
	// Kind names the adapter variant.
	Kind() model.AdapterKind

	// Fetch returns raw incidents whose start falls in [req.Start, req.End].
	// Pagination is sequential within one call.
	Fetch(ctx context.Context, req Request) (Result, error)
}

// Request identifies a status page and the date range to fetch.
type Request struct {
	URL   string
	Start time.Time
	End   time.Time
}

// BaseURL returns the request URL without a trailing slash.
func (r Request) BaseURL() string {
	return strings.TrimRight(r.URL, "/")
}

// Result is what one adapter produced. LowConfidence is set when a
// heuristic adapter could not find incident structure on the page.
// Covered is set when the source's history reaches back past req.Start.
type Result struct {
	Incidents     []model.RawIncident
	LowConfidence bool
	Covered       bool
	Warnings      []model.Warning
}

// Options are shared by every adapter of a run.
type Options struct {
	Limiter    *rate.Limiter // shared fetch limiter, owned by the run
	Timeout    time.Duration
	MaxRetries int // zero disables retries
	Backoff    time.Duration
	MaxPages   int
	UserAgent  string
}

// Client builds an httpclient for baseURL from the options.
func (o Options) Client(baseURL string) *httpclient.Client {
	opts := []httpclient.Option{httpclient.WithMaxRetries(o.MaxRetries)}
	if o.Timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(o.Timeout))
	}
	if o.Limiter != nil {
		opts = append(opts, httpclient.WithLimiter(o.Limiter))
	}
	if o.Backoff > 0 {
		opts = append(opts, httpclient.WithBackoff(o.Backoff))
	}
	if o.UserAgent != "" {
		opts = append(opts, httpclient.WithHeader("User-Agent", o.UserAgent))
	}
	return httpclient.New(strings.TrimRight(baseURL, "/"), opts...)
}

// Pages returns the page cap, defaulting to 50.
func (o Options) Pages() int {
	if o.MaxPages <= 0 {
		return 50
	}
	return o.MaxPages
}
