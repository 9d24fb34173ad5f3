package model

import "time"

// Trend is the direction of incident frequency across the analysis range.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendWorsening Trend = "worsening"
)

// MonthlyCount is one calendar-month bucket.
type MonthlyCount struct {
	Month    string        `json:"month"` // YYYY-MM
	Count    int           `json:"count"`
	Critical int           `json:"critical"`
	Major    int           `json:"major"`
	Downtime time.Duration `json:"downtime"`
}

// Metrics are the reliability statistics of one company dataset.
type Metrics struct {
	Company            string             `json:"company"`
	TotalIncidents     int                `json:"total_incidents"`
	Months             float64            `json:"months"`
	IncidentRate       float64            `json:"incident_rate"` // per month
	MTTR               time.Duration      `json:"mttr"`
	MedianDuration     time.Duration      `json:"median_duration"`
	MinDuration        time.Duration      `json:"min_duration"`
	MaxDuration        time.Duration      `json:"max_duration"`
	Resolved           int                `json:"resolved"`
	Open               int                `json:"open"`
	ImpactCounts       map[Impact]int     `json:"impact_counts"`
	ImpactDistribution map[Impact]float64 `json:"impact_distribution"` // percentages
	ByCategory         map[string]int     `json:"by_category,omitempty"`
	Monthly            []MonthlyCount     `json:"monthly"`
	Trend              Trend              `json:"trend"`
	TrendChange        float64            `json:"trend_change"` // relative change, second half vs first
	KeyIssues          []string           `json:"key_issues,omitempty"`
}

// PeerRow is one line of the peer comparison table. Missing rows carry the
// reason the peer could not be analyzed.
type PeerRow struct {
	Company       string        `json:"company"`
	Missing       bool          `json:"missing,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Metrics       *Metrics      `json:"metrics,omitempty"`
	IncidentDelta int           `json:"incident_delta"` // peer minus target
	MTTRDelta     time.Duration `json:"mttr_delta"`
}

// Warning is a non-fatal problem recorded during a run.
type Warning struct {
	Stage   string `json:"stage"`             // fetch, normalize, taxonomy, classify, peers
	Subject string `json:"subject,omitempty"` // company, url or incident
	Message string `json:"message"`
}

// ReportBundle is everything a run produces. Sinks treat it as read-only.
type ReportBundle struct {
	RunID           string                 `json:"run_id"`
	Company         string                 `json:"company"`
	URL             string                 `json:"url"`
	Start           time.Time              `json:"start"`
	End             time.Time              `json:"end"`
	GeneratedAt     time.Time              `json:"generated_at"`
	Incidents       []Incident             `json:"incidents"`
	Categories      []Category             `json:"categories"`
	Results         []ClassificationResult `json:"results"`
	Metrics         Metrics                `json:"metrics"`
	Peers           []PeerRow              `json:"peers,omitempty"`
	NewIncidents    []string               `json:"new_incidents,omitempty"` // ids not present in the previous run
	LowConfidence   bool                   `json:"low_confidence,omitempty"`
	Degraded        bool                   `json:"degraded"`
	DegradedReasons []string               `json:"degraded_reasons,omitempty"`
	Warnings        []Warning              `json:"warnings,omitempty"`
}
