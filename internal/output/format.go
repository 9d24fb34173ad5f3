package output

import (
	"github.com/hejijunhao/statusreport/internal/engine/compactor"
	"github.com/hejijunhao/statusreport/internal/model"
)

// FormatBundle returns a copy of the bundle trimmed according to verbosity.
// At Minimal: incident descriptions, updates, category keywords and
// exemplars are dropped. At Standard: update bodies are compacted.
// At Full: the bundle is returned as is.
func FormatBundle(b *model.ReportBundle, verbosity compactor.Verbosity) *model.ReportBundle {
	if verbosity == compactor.Full {
		return b
	}
	out := *b
	cmp := compactor.New(verbosity)

	out.Incidents = make([]model.Incident, len(b.Incidents))
	for i, inc := range b.Incidents {
		switch verbosity {
		case compactor.Minimal:
			inc.Description = ""
			inc.Updates = nil
		default:
			updates := make([]model.StatusUpdate, len(inc.Updates))
			for j, u := range inc.Updates {
				u.Body, _ = cmp.Compact(u.Body)
				updates[j] = u
			}
			inc.Updates = updates
		}
		out.Incidents[i] = inc
	}

	if verbosity == compactor.Minimal {
		out.Categories = make([]model.Category, len(b.Categories))
		for i, c := range b.Categories {
			c.Keywords = nil
			c.Exemplars = nil
			out.Categories[i] = c
		}
	}
	return &out
}
