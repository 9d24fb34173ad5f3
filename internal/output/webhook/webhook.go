// Package webhook posts a short run summary to an HTTP endpoint after each
// report, for chat notifications or schedulers that only need the headline.
package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/hejijunhao/statusreport/internal/connector/httpclient"
	"github.com/hejijunhao/statusreport/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	maxRetries     = 3
)

// Option configures a webhook Output.
type Option func(*Output)

// WithHeaders sets custom HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) {
		for k, v := range h {
			o.opts = append(o.opts, httpclient.WithHeader(k, v))
		}
	}
}

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(o *Output) {
		if token != "" {
			o.opts = append(o.opts, httpclient.WithBearer(token))
		}
	}
}

// WithTimeout sets the per-attempt HTTP timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.opts = append(o.opts, httpclient.WithTimeout(d)) }
}

// WithBackoff sets the first retry delay. Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.opts = append(o.opts, httpclient.WithBackoff(d)) }
}

// Summary is the JSON body posted for each report.
type Summary struct {
	RunID           string        `json:"run_id"`
	Company         string        `json:"company"`
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	TotalIncidents  int           `json:"total_incidents"`
	NewIncidents    int           `json:"new_incidents"`
	OpenIncidents   int           `json:"open_incidents"`
	MTTR            time.Duration `json:"mttr"`
	MTTRHuman       string        `json:"mttr_human"`
	Trend           model.Trend   `json:"trend"`
	TopCategory     string        `json:"top_category,omitempty"`
	KeyIssues       []string      `json:"key_issues,omitempty"`
	Degraded        bool          `json:"degraded"`
	DegradedReasons []string      `json:"degraded_reasons,omitempty"`
}

// Summarize reduces a bundle to its headline numbers.
func Summarize(b *model.ReportBundle) Summary {
	s := Summary{
		RunID:           b.RunID,
		Company:         b.Company,
		Start:           b.Start,
		End:             b.End,
		TotalIncidents:  b.Metrics.TotalIncidents,
		NewIncidents:    len(b.NewIncidents),
		OpenIncidents:   b.Metrics.Open,
		MTTR:            b.Metrics.MTTR,
		MTTRHuman:       b.Metrics.MTTR.Round(time.Minute).String(),
		Trend:           b.Metrics.Trend,
		KeyIssues:       b.Metrics.KeyIssues,
		Degraded:        b.Degraded,
		DegradedReasons: b.DegradedReasons,
	}
	best := 0
	for _, c := range b.Categories {
		if n := b.Metrics.ByCategory[c.ID]; n > best {
			best = n
			s.TopCategory = c.Name
		}
	}
	return s
}

// Output POSTs one Summary per report. 5xx and 429 responses are retried
// with exponential backoff; other failures are returned at once.
type Output struct {
	client *httpclient.Client
	opts   []httpclient.Option
}

// New creates a webhook output targeting the given URL.
func New(url string, opts ...Option) *Output {
	o := &Output{
		opts: []httpclient.Option{
			httpclient.WithTimeout(defaultTimeout),
			httpclient.WithMaxRetries(maxRetries),
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.client = httpclient.New(url, o.opts...)
	return o
}

// Write posts the bundle's summary.
func (o *Output) Write(ctx context.Context, bundle *model.ReportBundle) error {
	if err := o.client.PostJSON(ctx, "", Summarize(bundle), nil); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// Close is a no-op; nothing is buffered.
func (o *Output) Close() error { return nil }
