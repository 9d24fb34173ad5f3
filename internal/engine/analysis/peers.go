package analysis

import (
	"github.com/hejijunhao/statusreport/internal/model"
)

// PeerInput is one peer's analysis input, or the error that prevented it.
type PeerInput struct {
	Company string
	Input   *Input
	Err     error
}

// ComparePeers analyzes each peer independently and returns one row per
// company name, in input order. Failed peers become Missing rows. Deltas are
// peer minus target; the MTTR delta is zero unless both sides have resolved
// incidents.
func (a *Analyzer) ComparePeers(target model.Metrics, peers []PeerInput) []model.PeerRow {
	seen := make(map[string]bool, len(peers))
	rows := make([]model.PeerRow, 0, len(peers))
	for _, p := range peers {
		if seen[p.Company] {
			continue
		}
		seen[p.Company] = true

		if p.Err != nil || p.Input == nil {
			reason := "no data"
			if p.Err != nil {
				reason = p.Err.Error()
			}
			rows = append(rows, model.PeerRow{Company: p.Company, Missing: true, Reason: reason})
			continue
		}

		in := *p.Input
		in.Company = p.Company
		m := a.Analyze(in)
		row := model.PeerRow{
			Company:       p.Company,
			Metrics:       &m,
			IncidentDelta: m.TotalIncidents - target.TotalIncidents,
		}
		if m.Resolved > 0 && target.Resolved > 0 {
			row.MTTRDelta = m.MTTR - target.MTTR
		}
		rows = append(rows, row)
	}
	return rows
}

// NewSince returns the ids of incidents in current whose key was absent
// from previous. With no previous dataset every incident is new.
func NewSince(previous *model.CompanyDataset, current []model.Incident) []string {
	var known map[string]model.Incident
	if previous != nil {
		known = previous.ByKey()
	}
	var ids []string
	for _, inc := range current {
		if _, ok := known[inc.Key]; !ok {
			ids = append(ids, inc.ID)
		}
	}
	return ids
}
