// Package statuspage implements the structured API adapter for pages served
// by Statuspage (the /api/v2 JSON endpoints).
package statuspage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/hejijunhao/statusreport/internal/connector"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
)

func init() {
	connector.Register(model.AdapterStructuredAPI, func(opts connector.Options) connector.Adapter {
		return New(opts)
	})
}

const incidentsPath = "/api/v2/incidents.json"

// Adapter reads incidents from the Statuspage v2 API.
type Adapter struct {
	opts connector.Options
}

// New creates an Adapter.
func New(opts connector.Options) *Adapter {
	return &Adapter{opts: opts}
}

func (a *Adapter) Kind() model.AdapterKind { return model.AdapterStructuredAPI }

type incidentsResponse struct {
	Incidents *[]apiIncident `json:"incidents"`
}

type apiIncident struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Status     string      `json:"status"`
	Impact     string      `json:"impact"`
	CreatedAt  string      `json:"created_at"`
	StartedAt  string      `json:"started_at"`
	ResolvedAt string      `json:"resolved_at"`
	Shortlink  string      `json:"shortlink"`
	Updates    []apiUpdate `json:"incident_updates"`
}

type apiUpdate struct {
	Status    string `json:"status"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// Fetch requests one calendar-month window at a time, sequentially, and keeps
// the incidents that started inside each window. If the source ignores the
// window parameters (it returns incidents outside the window), the first
// response is reused for the remaining months instead of re-fetching.
func (a *Adapter) Fetch(ctx context.Context, req connector.Request) (connector.Result, error) {
	c := a.opts.Client(req.BaseURL())

	var (
		res      connector.Result
		seen     = make(map[string]bool)
		cached   []apiIncident
		oldest   time.Time
		windowed = true
	)
	for _, w := range MonthWindows(req.Start, req.End) {
		page := cached
		if windowed || cached == nil {
			q := url.Values{}
			q.Set("from", w.Start.Format(time.RFC3339))
			q.Set("to", w.End.Format(time.RFC3339))
			var body incidentsResponse
			if err := c.GetJSON(ctx, incidentsPath, q, &body); err != nil {
				if errors.Is(err, errs.ErrParse) {
					return res, fmt.Errorf("statuspage adapter: %w: %v", errs.ErrProviderFormat, err)
				}
				return res, fmt.Errorf("statuspage adapter: window %s: %w", w.Start.Format("2006-01"), err)
			}
			if body.Incidents == nil {
				return res, fmt.Errorf("statuspage adapter: %w: response has no incidents array", errs.ErrProviderFormat)
			}
			page = *body.Incidents
			if windowed && !withinWindow(page, w) {
				windowed = false
				cached = page
			}
		}

		for _, inc := range page {
			started, ok := startOf(inc)
			if !ok {
				// Let the normalizer reject it with a warning, once.
				if !seen[inc.ID] {
					seen[inc.ID] = true
					res.Incidents = append(res.Incidents, toRaw(inc, req.BaseURL()))
				}
				continue
			}
			if oldest.IsZero() || started.Before(oldest) {
				oldest = started
			}
			if started.Before(w.Start) || started.After(w.End) || seen[inc.ID] {
				continue
			}
			seen[inc.ID] = true
			res.Incidents = append(res.Incidents, toRaw(inc, req.BaseURL()))
		}
	}
	// A source that honors windows answered for every month of the range.
	res.Covered = (windowed && len(res.Incidents) > 0) || (!oldest.IsZero() && !oldest.After(req.Start))
	return res, nil
}

// Window is one calendar-month slice of the requested range.
type Window struct {
	Start time.Time
	End   time.Time
}

// MonthWindows splits [start, end] at calendar-month boundaries (UTC).
func MonthWindows(start, end time.Time) []Window {
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return nil
	}
	var out []Window
	cur := start
	for !cur.After(end) {
		next := time.Date(cur.Year(), cur.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		wEnd := next.Add(-time.Nanosecond)
		if wEnd.After(end) {
			wEnd = end
		}
		out = append(out, Window{Start: cur, End: wEnd})
		cur = next
	}
	return out
}

func withinWindow(incidents []apiIncident, w Window) bool {
	for _, inc := range incidents {
		t, ok := startOf(inc)
		if ok && (t.Before(w.Start) || t.After(w.End)) {
			return false
		}
	}
	return true
}

// startOf prefers started_at and falls back to created_at.
func startOf(inc apiIncident) (time.Time, bool) {
	for _, s := range []string{inc.StartedAt, inc.CreatedAt} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func toRaw(inc apiIncident, baseURL string) model.RawIncident {
	started := inc.StartedAt
	if started == "" {
		started = inc.CreatedAt
	}
	src := inc.Shortlink
	if src == "" && inc.ID != "" {
		src = baseURL + "/incidents/" + inc.ID
	}
	raw := model.RawIncident{
		SourceID:   inc.ID,
		Title:      inc.Name,
		Impact:     inc.Impact,
		StartedAt:  started,
		ResolvedAt: inc.ResolvedAt,
		SourceURL:  src,
		Adapter:    model.AdapterStructuredAPI,
	}
	// The API lists updates newest first; keep them oldest first.
	for i := len(inc.Updates) - 1; i >= 0; i-- {
		u := inc.Updates[i]
		raw.Updates = append(raw.Updates, model.RawUpdate{Status: u.Status, Body: u.Body, At: u.CreatedAt})
	}
	if len(raw.Updates) > 0 {
		raw.Description = raw.Updates[0].Body
	}
	return raw
}
