package generic

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hejijunhao/statusreport/internal/connector/dateparse"
)

// Block score weights. A block's score is the sum of the components it shows.
const (
	structureWeight = 0.2 // repeated among siblings
	dateWeight      = 0.3 // carries a date-like token
	keywordWeight   = 0.3 // mentions reliability vocabulary
	titleWeight     = 0.2 // has a heading, title-like element or link

	// AcceptThreshold is the minimum block score treated as an incident.
	AcceptThreshold = 0.6

	// minSiblings is how many same-signature siblings make a candidate group.
	minSiblings = 2
	// keywordSaturation is the distinct keyword count that earns the full keyword weight.
	keywordSaturation = 2
	// structureSaturation is the extra repetitions that earn the full structure weight.
	structureSaturation = 3
)

// reliabilityKeywords are the words that make a block look like an incident.
var reliabilityKeywords = []string{
	"outage", "degraded", "degradation", "incident", "resolved", "investigating",
	"identified", "monitoring", "disruption", "downtime", "error", "latency",
	"unavailable", "maintenance", "postmortem", "interruption", "elevated",
	"impacted", "affected", "restored",
}

// containerTags never hold incident blocks.
var containerTags = map[string]bool{
	"head": true, "script": true, "style": true, "nav": true, "header": true,
	"footer": true, "select": true, "noscript": true, "svg": true,
}

var containerSel = func() string {
	tags := make([]string, 0, len(containerTags))
	for t := range containerTags {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return strings.Join(tags, ", ")
}()

// inlineTags are never blocks themselves.
var inlineTags = map[string]bool{
	"a": true, "span": true, "strong": true, "em": true, "b": true, "i": true,
	"small": true, "time": true, "br": true, "img": true, "code": true,
	"abbr": true, "label": true, "button": true, "input": true, "svg": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

const headingSel = "h1, h2, h3, h4, h5, h6"

// Block is one candidate element and how it scored.
type Block struct {
	Sel      *goquery.Selection
	Text     string
	Score    float64
	HasDate  bool
	HasTitle bool
	Keywords int
	Headings int
}

// Group is every block sharing a parent signature and a block signature.
type Group struct {
	Signature string
	Blocks    []Block
	Accepted  int
	Total     float64 // sum of accepted scores
}

// Analysis is the result of scoring a document.
type Analysis struct {
	Groups     []Group
	Best       *Group  // nil when no group has an accepted block
	Confidence float64 // mean accepted score of Best
}

// AcceptedBlocks returns the accepted blocks of the best group in document order.
func (a Analysis) AcceptedBlocks() []Block {
	if a.Best == nil {
		return nil
	}
	var out []Block
	for _, b := range a.Best.Blocks {
		if b.Score >= AcceptThreshold {
			out = append(out, b)
		}
	}
	return out
}

// Score finds repeated sibling-block patterns in doc and scores each block
// on structure, date presence and keyword density. It performs no I/O and
// returns the same Analysis for the same document.
//
// Groups are keyed by parent signature plus block signature so that lists
// split across sections (one per month) merge into one group. The best group
// has the most accepted blocks; ties go to the higher total score, then to
// document order. A block holding more than one heading is a container of
// incidents, not an incident, and scores zero.
func Score(doc *goquery.Document) Analysis {
	var (
		order  []string
		groups = make(map[string]*Group)
	)

	doc.Find("body, body *").Each(func(_ int, parent *goquery.Selection) {
		if containerTags[goquery.NodeName(parent)] || parent.ParentsFiltered(containerSel).Length() > 0 {
			return
		}
		buckets := make(map[string][]*goquery.Selection)
		var bucketOrder []string
		parent.Children().Each(func(_ int, child *goquery.Selection) {
			if inlineTags[goquery.NodeName(child)] || containerTags[goquery.NodeName(child)] {
				return
			}
			sig := signature(child)
			if _, ok := buckets[sig]; !ok {
				bucketOrder = append(bucketOrder, sig)
			}
			buckets[sig] = append(buckets[sig], child)
		})
		for _, sig := range bucketOrder {
			children := buckets[sig]
			if len(children) < minSiblings {
				continue
			}
			key := signature(parent) + " > " + sig
			g, ok := groups[key]
			if !ok {
				g = &Group{Signature: key}
				groups[key] = g
				order = append(order, key)
			}
			for _, c := range children {
				g.Blocks = append(g.Blocks, inspect(c))
			}
		}
	})

	var a Analysis
	for _, key := range order {
		g := groups[key]
		structure := structureWeight * min(1, float64(len(g.Blocks)-1)/structureSaturation)
		for i := range g.Blocks {
			b := &g.Blocks[i]
			b.Score = blockScore(*b, structure)
			if b.Score >= AcceptThreshold {
				g.Accepted++
				g.Total += b.Score
			}
		}
		a.Groups = append(a.Groups, *g)
	}

	// Stable sort keeps document order as the final tie-break.
	ranked := make([]int, len(a.Groups))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		gi, gj := a.Groups[ranked[i]], a.Groups[ranked[j]]
		if gi.Accepted != gj.Accepted {
			return gi.Accepted > gj.Accepted
		}
		return gi.Total > gj.Total
	})
	if len(ranked) > 0 && a.Groups[ranked[0]].Accepted > 0 {
		best := &a.Groups[ranked[0]]
		a.Best = best
		a.Confidence = best.Total / float64(best.Accepted)
	}
	return a
}

func blockScore(b Block, structure float64) float64 {
	if b.Headings > 1 {
		return 0
	}
	score := structure
	if b.HasDate {
		score += dateWeight
	}
	if b.HasTitle {
		score += titleWeight
	}
	score += keywordWeight * min(1, float64(b.Keywords)/keywordSaturation)
	return score
}

func inspect(s *goquery.Selection) Block {
	text := strings.Join(strings.Fields(s.Text()), " ")
	b := Block{
		Sel:      s,
		Text:     text,
		Headings: s.Find(headingSel).Length(),
	}
	b.HasTitle = b.Headings > 0 ||
		s.Find("[class*=title], [class*=name], [class*=headline]").Length() > 0 ||
		s.Find("a").Length() > 0
	b.HasDate = s.Find("time[datetime]").Length() > 0 || dateparse.Contains(text)
	lower := strings.ToLower(text)
	for _, kw := range reliabilityKeywords {
		if strings.Contains(lower, kw) {
			b.Keywords++
		}
	}
	return b
}

// signature is the tag name plus the first class token. Later tokens often
// vary per item (impact-major, impact-minor) and are ignored.
func signature(s *goquery.Selection) string {
	cls, _ := s.Attr("class")
	fields := strings.Fields(cls)
	if len(fields) == 0 {
		return goquery.NodeName(s)
	}
	return goquery.NodeName(s) + "." + fields[0]
}
