package model

import "time"

// CompanyDataset is the normalized incident history of one company.
// Peers are read-only inputs to comparison.
type CompanyDataset struct {
	Company    string            `json:"company"`
	URL        string            `json:"url"`
	RunID      string            `json:"run_id,omitempty"`
	FetchedAt  time.Time         `json:"fetched_at"`
	Incidents  []Incident        `json:"incidents"`
	Categories []Category        `json:"categories,omitempty"`
	Peers      []*CompanyDataset `json:"-"`
}

// ByKey indexes the dataset's incidents by their stable key.
func (d *CompanyDataset) ByKey() map[string]Incident {
	m := make(map[string]Incident, len(d.Incidents))
	for _, inc := range d.Incidents {
		m[inc.Key] = inc
	}
	return m
}

// TrainingFeedback is a human correction of one incident's category.
type TrainingFeedback struct {
	Company       string     `json:"company"`
	IncidentKey   string     `json:"incident_key"`
	IncidentTitle string     `json:"incident_title,omitempty"`
	Category      Category   `json:"category"`
	Notes         string     `json:"notes,omitempty"`
	RunID         string     `json:"run_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the correction has not been revoked.
func (f TrainingFeedback) Active() bool {
	return f.RevokedAt == nil
}
