// Package statushtml implements the known-vendor HTML adapter. It reads the
// paginated history pages Statuspage renders at /history?page=N, which reach
// further back than the JSON API.
package statushtml

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hejijunhao/statusreport/internal/connector"
	"github.com/hejijunhao/statusreport/internal/connector/dateparse"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
)

func init() {
	connector.Register(model.AdapterVendorHTML, func(opts connector.Options) connector.Adapter {
		return New(opts)
	})
}

// Selectors for the Statuspage history layout.
const (
	selIncident   = ".incident-container"
	selTitle      = ".incident-title"
	selLink       = "a[href*='/incidents/']"
	selDate       = ".incident-date, time, .secondary"
	selResolved   = ".resolved-date"
	selBody       = ".incident-body"
	selUpdate     = ".update"
	selUpdateStat = ".update-status, strong"
	selUpdateBody = ".update-body"
	selUpdateTime = "small, time"
)

var incidentIDPattern = regexp.MustCompile(`/incidents/([A-Za-z0-9]+)`)

// Adapter scrapes Statuspage history pages.
type Adapter struct {
	opts connector.Options
}

// New creates an Adapter.
func New(opts connector.Options) *Adapter {
	return &Adapter{opts: opts}
}

func (a *Adapter) Kind() model.AdapterKind { return model.AdapterVendorHTML }

// Fetch walks history pages in order. It stops at an empty page, at the page
// cap, or once the oldest incident on a page predates req.Start.
func (a *Adapter) Fetch(ctx context.Context, req connector.Request) (connector.Result, error) {
	c := a.opts.Client(req.BaseURL())
	var res connector.Result

	for page := 1; page <= a.opts.Pages(); page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		body, err := c.GetBody(ctx, "/history", q)
		if err != nil {
			if page == 1 {
				return res, fmt.Errorf("statushtml adapter: %w", err)
			}
			res.Warnings = append(res.Warnings, model.Warning{
				Stage:   "fetch",
				Subject: req.URL,
				Message: fmt.Sprintf("history page %d: %v; keeping %d earlier incidents", page, err, len(res.Incidents)),
			})
			return res, nil
		}

		incidents, oldest, err := ParsePage(body, req.BaseURL())
		if err != nil {
			if page == 1 {
				return res, fmt.Errorf("statushtml adapter: %w", err)
			}
			return res, nil
		}
		if len(incidents) == 0 {
			return res, nil
		}

		for _, inc := range incidents {
			if t, err := dateparse.Parse(inc.StartedAt); err == nil && (t.Before(req.Start) || t.After(req.End)) {
				continue
			}
			res.Incidents = append(res.Incidents, inc)
		}
		if !oldest.IsZero() && oldest.Before(req.Start) {
			res.Covered = true
			return res, nil
		}
	}
	return res, nil
}

// ParsePage extracts the incidents of one history page and the oldest start
// time seen on it.
func ParsePage(body []byte, baseURL string) ([]model.RawIncident, time.Time, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: history page: %v", errs.ErrParse, err)
	}

	var (
		out    []model.RawIncident
		oldest time.Time
	)
	doc.Find(selIncident).Each(func(_ int, s *goquery.Selection) {
		inc, ok := parseIncident(s, baseURL)
		if !ok {
			return
		}
		if t, err := dateparse.Parse(inc.StartedAt); err == nil {
			if oldest.IsZero() || t.Before(oldest) {
				oldest = t
			}
		}
		out = append(out, inc)
	})
	return out, oldest, nil
}

func parseIncident(s *goquery.Selection, baseURL string) (model.RawIncident, bool) {
	titleSel := s.Find(selTitle).First()
	title := strings.TrimSpace(titleSel.Text())
	if title == "" {
		return model.RawIncident{}, false
	}

	inc := model.RawIncident{
		Title:   strings.Join(strings.Fields(title), " "),
		Adapter: model.AdapterVendorHTML,
	}

	if href, ok := s.Find(selLink).First().Attr("href"); ok {
		if m := incidentIDPattern.FindStringSubmatch(href); m != nil {
			inc.SourceID = m[1]
		}
		inc.SourceURL = resolveURL(baseURL, href)
	}

	classes, _ := titleSel.Attr("class")
	outer, _ := s.Attr("class")
	inc.Impact = connector.ImpactFromClasses(classes + " " + outer)

	inc.StartedAt = timestampOf(s.Find(selDate).First())
	inc.Description = strings.TrimSpace(s.Find(selBody).First().Text())

	s.Find(selUpdate).Each(func(_ int, u *goquery.Selection) {
		body := strings.TrimSpace(u.Find(selUpdateBody).First().Text())
		if body == "" {
			return
		}
		inc.Updates = append(inc.Updates, model.RawUpdate{
			Status: strings.ToLower(strings.TrimSpace(u.Find(selUpdateStat).First().Text())),
			Body:   strings.Join(strings.Fields(body), " "),
			At:     timestampOf(u.Find(selUpdateTime).First()),
		})
	})
	// History pages list updates newest first.
	for i, j := 0, len(inc.Updates)-1; i < j; i, j = i+1, j-1 {
		inc.Updates[i], inc.Updates[j] = inc.Updates[j], inc.Updates[i]
	}

	if r := s.Find(selResolved).First(); r.Length() > 0 {
		inc.ResolvedAt = timestampOf(r)
	} else {
		for i := len(inc.Updates) - 1; i >= 0; i-- {
			if inc.Updates[i].Status == "resolved" {
				inc.ResolvedAt = inc.Updates[i].At
				break
			}
		}
	}
	if inc.StartedAt == "" && len(inc.Updates) > 0 {
		inc.StartedAt = inc.Updates[0].At
	}
	if inc.Description == "" && len(inc.Updates) > 0 {
		inc.Description = inc.Updates[0].Body
	}
	return inc, true
}

// timestampOf prefers a machine-readable datetime attribute, then the first
// date token in the element's text, then the raw text for the normalizer to
// reject.
func timestampOf(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	if dt, ok := s.Attr("datetime"); ok && dt != "" {
		return dt
	}
	for _, attr := range []string{"data-datetime-unix", "data-timestamp"} {
		if v, ok := s.Attr(attr); ok {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				if n > 1e11 {
					n /= 1000
				}
				return time.Unix(n, 0).UTC().Format(time.RFC3339)
			}
		}
	}
	text := strings.Join(strings.Fields(s.Text()), " ")
	if _, tok, ok := dateparse.Find(text); ok {
		return tok
	}
	return text
}

func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	r, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(r).String()
}
