// Package feed reads incident history from a status page's RSS or Atom feed.
// It runs ahead of the generic scraper: a feed, when a page publishes one,
// carries ids and timestamps the DOM heuristic has to guess.
package feed

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/hejijunhao/statusreport/internal/connector"
	"github.com/hejijunhao/statusreport/internal/model"
)

func init() {
	connector.Register(model.AdapterFeed, func(opts connector.Options) connector.Adapter {
		return New(opts)
	})
}

// Paths are probed in order; the first feed with entries wins.
var Paths = []string{"/history.rss", "/feed.rss", "/rss", "/feed", "/atom.xml", "/incidents.rss", "/status.rss"}

// resolvedWords mark an entry whose feed timestamp is its resolution.
var resolvedWords = []string{"resolved", "completed"}

// Adapter is the RSS/Atom adapter.
type Adapter struct {
	opts   connector.Options
	logger *slog.Logger
}

// New creates an Adapter.
func New(opts connector.Options) *Adapter {
	return &Adapter{opts: opts, logger: slog.Default().With("component", "feed")}
}

func (a *Adapter) Kind() model.AdapterKind { return model.AdapterFeed }

// Fetch probes the feed paths without retries. A page without a feed is not
// an error: the result is simply empty and not Covered, so the plan moves
// on to the generic scraper.
func (a *Adapter) Fetch(ctx context.Context, req connector.Request) (connector.Result, error) {
	probe := a.opts
	probe.MaxRetries = 0
	c := probe.Client(req.BaseURL())
	fp := gofeed.NewParser()

	var res connector.Result
	for _, path := range Paths {
		body, err := c.GetBody(ctx, path, nil)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			continue
		}
		f, err := fp.Parse(bytes.NewReader(body))
		if err != nil || len(f.Items) == 0 {
			continue
		}
		a.logger.Debug("feed found", "url", req.URL, "path", path, "entries", len(f.Items))

		var oldest time.Time
		for _, it := range f.Items {
			inc := toRaw(it, req.BaseURL())
			if started := published(it); started != nil {
				if oldest.IsZero() || started.Before(oldest) {
					oldest = *started
				}
				if started.Before(req.Start) || started.After(req.End) {
					continue
				}
			}
			res.Incidents = append(res.Incidents, inc)
		}
		// Feeds keep only the latest entries; the history is complete only
		// if it reaches back past the range start.
		res.Covered = !oldest.IsZero() && !oldest.After(req.Start)
		return res, nil
	}
	return res, nil
}

func published(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed
	}
	return it.UpdatedParsed
}

func toRaw(it *gofeed.Item, baseURL string) model.RawIncident {
	text := plain(it.Description)
	if text == "" {
		text = plain(it.Content)
	}
	raw := model.RawIncident{
		SourceID:    it.GUID,
		Title:       strings.TrimSpace(it.Title),
		Description: text,
		Impact:      connector.ImpactFromText(it.Title + "\n" + text),
		SourceURL:   it.Link,
		Adapter:     model.AdapterFeed,
	}
	if raw.SourceURL == "" {
		raw.SourceURL = baseURL
	}
	started := published(it)
	if started != nil {
		raw.StartedAt = started.UTC().Format(time.RFC3339)
	}
	// A feed entry has one timestamp per field; the last update of a
	// resolved entry is taken as its resolution.
	if it.UpdatedParsed != nil && started != nil && isResolved(it.Title+" "+text) {
		raw.ResolvedAt = it.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	if text != "" && started != nil {
		raw.Updates = []model.RawUpdate{{Status: status(it.Title + " " + text), Body: text, At: raw.StartedAt}}
	}
	return raw
}

func isResolved(s string) bool {
	s = strings.ToLower(s)
	for _, w := range resolvedWords {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func status(s string) string {
	if isResolved(s) {
		return "resolved"
	}
	return "update"
}

// plain strips markup from feed HTML and collapses whitespace.
func plain(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
