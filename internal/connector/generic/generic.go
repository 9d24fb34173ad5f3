// Package generic implements the heuristic scraper used for status pages of
// unknown vendors. Structure is found by Score; this file fetches candidate
// history pages and turns accepted blocks into raw incidents.
package generic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hejijunhao/statusreport/internal/connector"
	"github.com/hejijunhao/statusreport/internal/connector/dateparse"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
)

func init() {
	connector.Register(model.AdapterGeneric, func(opts connector.Options) connector.Adapter {
		return New(opts)
	})
}

// HistoryPaths are tried in order until one yields incident structure.
var HistoryPaths = []string{"/history", "/incidents", "/status-history", "/past-incidents", "/updates", ""}

var incidentIDPattern = regexp.MustCompile(`/incidents?/([A-Za-z0-9_-]+)`)

// Adapter is the generic heuristic scraper.
type Adapter struct {
	opts connector.Options
}

// New creates an Adapter.
func New(opts connector.Options) *Adapter {
	return &Adapter{opts: opts}
}

func (a *Adapter) Kind() model.AdapterKind { return model.AdapterGeneric }

// Fetch tries each history path. The first page whose analysis has accepted
// blocks wins. When no page shows incident structure the result is empty and
// flagged LowConfidence; an error is returned only if every path failed to load.
func (a *Adapter) Fetch(ctx context.Context, req connector.Request) (connector.Result, error) {
	c := a.opts.Client(req.BaseURL())
	var (
		res     connector.Result
		loadErr []error
	)
	for _, path := range HistoryPaths {
		body, err := c.GetBody(ctx, path, nil)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			loadErr = append(loadErr, fmt.Errorf("%s: %w", pathName(path), err))
			continue
		}
		doc, err := parse(body)
		if err != nil {
			loadErr = append(loadErr, fmt.Errorf("%s: %w", pathName(path), err))
			continue
		}

		analysis := Score(doc)
		if analysis.Best == nil {
			continue
		}
		for _, inc := range Extract(analysis, req.BaseURL()) {
			if t, err := dateparse.Parse(inc.StartedAt); err == nil && (t.Before(req.Start) || t.After(req.End)) {
				continue
			}
			res.Incidents = append(res.Incidents, inc)
		}
		if p := DetectPlatform(body); p != "" {
			res.Warnings = append(res.Warnings, model.Warning{
				Stage:   "fetch",
				Subject: req.URL,
				Message: fmt.Sprintf("page looks like %s; a dedicated adapter would be more reliable", p),
			})
		}
		return res, nil
	}

	if len(loadErr) == len(HistoryPaths) {
		return res, fmt.Errorf("generic adapter: %w", errors.Join(loadErr...))
	}
	res.LowConfidence = true
	res.Warnings = append(res.Warnings, model.Warning{
		Stage:   "fetch",
		Subject: req.URL,
		Message: fmt.Sprintf("%v: no repeated incident structure found (threshold %.2f)", errs.ErrLowConfidence, AcceptThreshold),
	})
	return res, nil
}

func parse(body []byte) (*goquery.Document, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrParse, err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

func pathName(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// Extract turns the accepted blocks of an analysis into raw incidents.
func Extract(a Analysis, baseURL string) []model.RawIncident {
	blocks := a.AcceptedBlocks()
	out := make([]model.RawIncident, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, extractBlock(b, baseURL))
	}
	return out
}

func extractBlock(b Block, baseURL string) model.RawIncident {
	s := b.Sel
	inc := model.RawIncident{Adapter: model.AdapterGeneric}

	titleSel := s.Find(headingSel).First()
	if titleSel.Length() == 0 {
		titleSel = s.Find("[class*=title], [class*=name], [class*=headline]").First()
	}
	if titleSel.Length() == 0 {
		titleSel = s.Find("a").First()
	}
	inc.Title = strings.Join(strings.Fields(titleSel.Text()), " ")

	if id, ok := s.Attr("data-incident-id"); ok {
		inc.SourceID = id
	}
	if href, ok := s.Find("a[href]").First().Attr("href"); ok {
		if inc.SourceID == "" {
			if m := incidentIDPattern.FindStringSubmatch(href); m != nil {
				inc.SourceID = m[1]
			}
		}
		inc.SourceURL = strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(href, "/")
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			inc.SourceURL = href
		}
	}

	inc.StartedAt = startOf(s, b.Text)
	if r := s.Find("[class*=resolved], [class*=end-date]").First(); r.Length() > 0 {
		if dt, ok := r.Attr("datetime"); ok {
			inc.ResolvedAt = dt
		} else if _, tok, ok := dateparse.Find(r.Text()); ok {
			inc.ResolvedAt = tok
		}
	}

	classes, _ := s.Attr("class")
	s.Find("[class*=impact], [class*=severity]").Each(func(_ int, c *goquery.Selection) {
		v, _ := c.Attr("class")
		classes += " " + v
	})
	inc.Impact = connector.ImpactFromClasses(classes)
	if inc.Impact == "" {
		inc.Impact = connector.ImpactFromText(b.Text)
	}

	if p := s.Find("p, [class*=body], [class*=description], [class*=message]").First(); p.Length() > 0 {
		inc.Description = strings.Join(strings.Fields(p.Text()), " ")
	}
	return inc
}

func startOf(s *goquery.Selection, text string) string {
	if dt, ok := s.Find("time[datetime]").First().Attr("datetime"); ok && dt != "" {
		return dt
	}
	if v, ok := s.Find("[data-timestamp]").First().Attr("data-timestamp"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(n, 0).UTC().Format(time.RFC3339)
		}
	}
	if d := s.Find("[class*=date], [class*=time]").First(); d.Length() > 0 {
		if _, tok, ok := dateparse.Find(d.Text()); ok {
			return tok
		}
	}
	if _, tok, ok := dateparse.Find(text); ok {
		return tok
	}
	return ""
}

// platformMarkers identify hosted status page products by page content.
var platformMarkers = []struct {
	name    string
	markers []string
}{
	{"statuspage", []string{"statuspage.io", "atlassian statuspage"}},
	{"status.io", []string{"status.io"}},
	{"cachet", []string{"cachet"}},
	{"instatus", []string{"instatus"}},
	{"betteruptime", []string{"betteruptime", "better uptime"}},
}

// DetectPlatform names the hosted product a page was built with, or "".
func DetectPlatform(body []byte) string {
	lower := bytes.ToLower(body)
	for _, p := range platformMarkers {
		for _, m := range p.markers {
			if bytes.Contains(lower, []byte(m)) {
				return p.name
			}
		}
	}
	return ""
}
