package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/hejijunhao/statusreport/internal/connector/dateparse"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
)

// DefaultDedupWindow is how far apart two same-titled records may start and
// still be treated as one incident.
const DefaultDedupWindow = time.Hour

// Config controls normalization.
type Config struct {
	DedupWindow time.Duration
}

// Normalizer validates, clips, deduplicates and orders adapter output.
type Normalizer struct {
	cfg  Config
	fold cases.Caser
}

// New creates a Normalizer. A zero window uses DefaultDedupWindow.
func New(cfg Config) *Normalizer {
	if cfg.DedupWindow == 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	return &Normalizer{cfg: cfg, fold: cases.Fold()}
}

// Report is the outcome of one normalization pass.
type Report struct {
	Incidents []model.Incident
	Warnings  []model.Warning
	Dropped   int // malformed records
	Clipped   int // valid records outside the range
	Merged    int // records folded into another
}

// Normalize turns raw adapter records into the dataset's incidents.
//
// Malformed records (no title, unparseable timestamps, resolved before
// started) are dropped one by one with a warning. Records whose start falls
// outside [start, end] are clipped. The rest are deduplicated, ordered by
// start time and numbered.
func (n *Normalizer) Normalize(raws []model.RawIncident, start, end time.Time) Report {
	var rep Report
	recs := make([]record, 0, len(raws))
	for _, raw := range raws {
		inc, err := n.parse(raw)
		if err != nil {
			rep.Dropped++
			rep.Warnings = append(rep.Warnings, model.Warning{
				Stage:   "normalize",
				Subject: subject(raw),
				Message: err.Error(),
			})
			continue
		}
		if inc.StartedAt.Before(start) || inc.StartedAt.After(end) {
			rep.Clipped++
			continue
		}
		recs = append(recs, record{inc: inc, sourceID: raw.SourceID})
	}

	out := n.dedup(recs)
	rep.Merged = len(recs) - len(out)
	rep.Incidents = finish(out)
	return rep
}

// Canonicalize re-applies dedup, ordering and numbering to incidents that
// are already normalized. Canonicalize(Canonicalize(x)) equals Canonicalize(x).
func (n *Normalizer) Canonicalize(incidents []model.Incident) []model.Incident {
	return finish(n.dedup(records(incidents)))
}

// NormalizeTitle folds case and compatibility forms, drops punctuation and
// collapses whitespace. It is the title half of the dedup key.
func (n *Normalizer) NormalizeTitle(s string) string {
	s = n.fold.String(norm.NFKC.String(s))
	var b strings.Builder
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		default:
			space = true
		}
	}
	return b.String()
}

const vendorKeyPrefix = "id:"

type record struct {
	inc      model.Incident
	sourceID string
}

func (n *Normalizer) parse(raw model.RawIncident) (model.Incident, error) {
	title := strings.Join(strings.Fields(raw.Title), " ")
	if title == "" {
		return model.Incident{}, errs.Validationf("missing title")
	}
	started, err := dateparse.Parse(raw.StartedAt)
	if err != nil {
		return model.Incident{}, errs.Validationf("started_at: %v", err)
	}
	inc := model.Incident{
		Title:       title,
		Description: strings.TrimSpace(raw.Description),
		Impact:      model.ParseImpact(strings.ToLower(strings.TrimSpace(raw.Impact))),
		StartedAt:   started,
		SourceURL:   raw.SourceURL,
		Adapter:     raw.Adapter,
	}
	if strings.TrimSpace(raw.ResolvedAt) != "" {
		resolved, err := dateparse.Parse(raw.ResolvedAt)
		if err != nil {
			return model.Incident{}, errs.Validationf("resolved_at: %v", err)
		}
		if resolved.Before(started) {
			return model.Incident{}, errs.Validationf("resolved_at %s is before started_at %s",
				resolved.Format(time.RFC3339), started.Format(time.RFC3339))
		}
		inc.ResolvedAt = &resolved
	}
	for _, u := range raw.Updates {
		at, err := dateparse.Parse(u.At)
		if err != nil {
			continue
		}
		inc.Updates = append(inc.Updates, model.StatusUpdate{Status: u.Status, Body: u.Body, At: at})
	}
	return inc, nil
}

// group accumulates records judged to be the same incident. Groups joined
// after creation point at the surviving group through parent.
type group struct {
	anchor  time.Time // earliest start in the group
	members []record
	parent  *group
}

func (g *group) root() *group {
	for g.parent != nil {
		g = g.parent
	}
	return g
}

// dedup repeats the grouping pass until a pass merges nothing, so its
// output is a fixed point and Canonicalize leaves it unchanged.
func (n *Normalizer) dedup(recs []record) []model.Incident {
	out := n.pass(recs)
	for {
		next := n.pass(records(out))
		if len(next) == len(out) {
			return out
		}
		out = next
	}
}

// pass merges records that share a vendor id, or whose normalized titles
// match and whose starts lie within DedupWindow of the group's anchor.
// A record that reaches one group by id and another by title joins the two.
func (n *Normalizer) pass(recs []record) []model.Incident {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].inc, recs[j].inc
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		return a.Adapter.Priority() > b.Adapter.Priority()
	})

	var order []*group
	byTitle := make(map[string]*group)
	byID := make(map[string]*group)
	for _, r := range recs {
		title := n.NormalizeTitle(r.inc.Title)
		var byKey, byName *group
		if r.sourceID != "" {
			if g, ok := byID[r.sourceID]; ok {
				byKey = g.root()
			}
		}
		if g, ok := byTitle[title]; ok {
			if g = g.root(); r.inc.StartedAt.Sub(g.anchor) <= n.cfg.DedupWindow {
				byName = g
			}
		}

		g := byKey
		switch {
		case g == nil && byName == nil:
			g = &group{anchor: r.inc.StartedAt}
			order = append(order, g)
		case g == nil:
			g = byName
		case byName != nil && byName != g:
			g = join(g, byName)
		}
		if cur, ok := byTitle[title]; !ok || r.inc.StartedAt.Sub(cur.root().anchor) > n.cfg.DedupWindow {
			byTitle[title] = g
		}
		if r.sourceID != "" {
			byID[r.sourceID] = g
		}
		g.members = append(g.members, r)
	}

	out := make([]model.Incident, 0, len(order))
	for _, g := range order {
		if g.parent == nil {
			out = append(out, n.merge(g))
		}
	}
	return out
}

// join folds the later-anchored group into the earlier one and returns the survivor.
func join(a, b *group) *group {
	if b.anchor.Before(a.anchor) {
		a, b = b, a
	}
	a.members = append(a.members, b.members...)
	b.members = nil
	b.parent = a
	return a
}

// records turns normalized incidents back into dedup input, recovering the
// vendor id from the key.
func records(incidents []model.Incident) []record {
	recs := make([]record, 0, len(incidents))
	for _, inc := range incidents {
		r := record{inc: inc}
		if id, ok := strings.CutPrefix(inc.Key, vendorKeyPrefix); ok {
			r.sourceID = id
		}
		recs = append(recs, r)
	}
	return recs
}

// merge keeps the fields of the most trusted adapter and fills gaps from the rest.
func (n *Normalizer) merge(g *group) model.Incident {
	members := g.members
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].inc.Adapter.Priority() > members[j].inc.Adapter.Priority()
	})
	best := members[0]
	inc := best.inc
	inc.StartedAt = g.anchor
	sourceID := best.sourceID

	for _, m := range members[1:] {
		if inc.ResolvedAt == nil && m.inc.ResolvedAt != nil {
			inc.ResolvedAt = m.inc.ResolvedAt
		}
		if inc.Description == "" {
			inc.Description = m.inc.Description
		}
		if len(inc.Updates) == 0 {
			inc.Updates = m.inc.Updates
		}
		if inc.SourceURL == "" {
			inc.SourceURL = m.inc.SourceURL
		}
		if inc.Impact == model.ImpactNone && m.inc.Impact.Rank() > inc.Impact.Rank() {
			inc.Impact = m.inc.Impact
		}
		if sourceID == "" {
			sourceID = m.sourceID
		}
	}
	if inc.ResolvedAt != nil && inc.ResolvedAt.Before(inc.StartedAt) {
		inc.ResolvedAt = nil
	}

	if sourceID != "" {
		inc.Key = vendorKeyPrefix + sourceID
	} else {
		inc.Key = contentKey(n.NormalizeTitle(inc.Title), g.anchor)
	}
	return inc
}

// contentKey fingerprints an incident that has no vendor id.
func contentKey(title string, started time.Time) string {
	sum := sha256.Sum256([]byte(title + "|" + started.UTC().Format(time.RFC3339)))
	return "h:" + hex.EncodeToString(sum[:8])
}

// finish orders incidents by start, then title, then key, and numbers them.
func finish(incs []model.Incident) []model.Incident {
	sort.SliceStable(incs, func(i, j int) bool {
		a, b := incs[i], incs[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.Before(b.StartedAt)
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Key < b.Key
	})
	for i := range incs {
		incs[i].ID = fmt.Sprintf("INC-%04d", i+1)
	}
	return incs
}

func subject(raw model.RawIncident) string {
	switch {
	case raw.SourceID != "":
		return raw.SourceID
	case raw.Title != "":
		return raw.Title
	default:
		return raw.SourceURL
	}
}
