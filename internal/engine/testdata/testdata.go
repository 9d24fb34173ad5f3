// Package testdata embeds a labeled incident corpus used to validate
// classification end to end.
package testdata

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/hejijunhao/statusreport/internal/model"
)

//go:embed corpus.json
var corpusJSON []byte

// CorpusUpdate is one status post of a corpus entry.
type CorpusUpdate struct {
	Status string `json:"status"`
	Body   string `json:"body"`
	At     string `json:"at"`
}

// CorpusEntry is a labeled incident as a structured adapter would emit it.
type CorpusEntry struct {
	SourceID         string         `json:"source_id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Impact           string         `json:"impact"`
	StartedAt        string         `json:"started_at"`
	ResolvedAt       string         `json:"resolved_at"`
	Updates          []CorpusUpdate `json:"updates"`
	ExpectedCategory string         `json:"expected_category"`
}

// Raw converts the entry into adapter output.
func (e CorpusEntry) Raw() model.RawIncident {
	updates := make([]model.RawUpdate, len(e.Updates))
	for i, u := range e.Updates {
		updates[i] = model.RawUpdate{Status: u.Status, Body: u.Body, At: u.At}
	}
	return model.RawIncident{
		SourceID:    e.SourceID,
		Title:       e.Title,
		Description: e.Description,
		Impact:      e.Impact,
		StartedAt:   e.StartedAt,
		ResolvedAt:  e.ResolvedAt,
		Updates:     updates,
		Adapter:     model.AdapterStructuredAPI,
	}
}

// LoadCorpus parses the embedded corpus.json and returns all entries.
func LoadCorpus() ([]CorpusEntry, error) {
	var entries []CorpusEntry
	if err := json.Unmarshal(corpusJSON, &entries); err != nil {
		return nil, fmt.Errorf("parse corpus.json: %w", err)
	}
	return entries, nil
}

// RawIncidents returns every corpus entry as adapter output.
func RawIncidents() ([]model.RawIncident, error) {
	entries, err := LoadCorpus()
	if err != nil {
		return nil, err
	}
	raws := make([]model.RawIncident, len(entries))
	for i, e := range entries {
		raws[i] = e.Raw()
	}
	return raws, nil
}
