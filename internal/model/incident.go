package model

import "time"

// Impact is the normalized severity of an incident.
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactMajor    Impact = "major"
	ImpactMinor    Impact = "minor"
	ImpactNone     Impact = "none"
)

// Impacts lists every impact level from most to least severe.
var Impacts = []Impact{ImpactCritical, ImpactMajor, ImpactMinor, ImpactNone}

// ParseImpact maps vendor wording onto an Impact. Unknown values map to ImpactNone.
func ParseImpact(s string) Impact {
	switch s {
	case "critical", "red":
		return ImpactCritical
	case "major", "orange":
		return ImpactMajor
	case "minor", "yellow":
		return ImpactMinor
	default:
		return ImpactNone
	}
}

// Rank orders impacts; higher is more severe.
func (i Impact) Rank() int {
	switch i {
	case ImpactCritical:
		return 3
	case ImpactMajor:
		return 2
	case ImpactMinor:
		return 1
	default:
		return 0
	}
}

// AdapterKind names the source adapter variant that produced a record.
type AdapterKind string

const (
	AdapterStructuredAPI AdapterKind = "structured-api"
	AdapterVendorHTML    AdapterKind = "known-vendor-html"
	AdapterFeed          AdapterKind = "rss-feed"
	AdapterGeneric       AdapterKind = "generic-heuristic"
)

// Priority ranks adapter kinds by how much their fields are trusted when
// two records describe the same incident. Higher wins.
func (k AdapterKind) Priority() int {
	switch k {
	case AdapterStructuredAPI:
		return 4
	case AdapterVendorHTML:
		return 3
	case AdapterFeed:
		return 2
	case AdapterGeneric:
		return 1
	default:
		return 0
	}
}

// StatusUpdate is one timestamped status post on an incident.
type StatusUpdate struct {
	Status string    `json:"status"`
	Body   string    `json:"body"`
	At     time.Time `json:"at"`
}

// Incident is the normalized record every downstream stage consumes.
type Incident struct {
	ID          string         `json:"id"`  // sequence id within the dataset (INC-0001)
	Key         string         `json:"key"` // stable across runs
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Impact      Impact         `json:"impact"`
	StartedAt   time.Time      `json:"started_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Updates     []StatusUpdate `json:"updates,omitempty"`
	SourceURL   string         `json:"source_url,omitempty"`
	Adapter     AdapterKind    `json:"adapter"`
}

// Resolved reports whether the incident has a resolution timestamp.
func (i Incident) Resolved() bool {
	return i.ResolvedAt != nil
}

// Duration returns resolution time minus start time, or false when unresolved.
func (i Incident) Duration() (time.Duration, bool) {
	if i.ResolvedAt == nil {
		return 0, false
	}
	return i.ResolvedAt.Sub(i.StartedAt), true
}

// Text joins the searchable text of the incident: title, description and updates.
func (i Incident) Text() string {
	n := len(i.Title) + len(i.Description)
	for _, u := range i.Updates {
		n += len(u.Body) + 1
	}
	b := make([]byte, 0, n+2)
	b = append(b, i.Title...)
	b = append(b, '\n')
	b = append(b, i.Description...)
	for _, u := range i.Updates {
		b = append(b, '\n')
		b = append(b, u.Body...)
	}
	return string(b)
}

// RawUpdate is an adapter-level status update with an unparsed timestamp.
type RawUpdate struct {
	Status string
	Body   string
	At     string
}

// RawIncident is the intermediate type produced by adapters and consumed by
// the normalizer. Timestamps are kept as source text so that parsing and
// validation happen in one place.
type RawIncident struct {
	SourceID    string // vendor id, if the source exposes one
	Title       string
	Description string
	Impact      string
	StartedAt   string
	ResolvedAt  string
	Updates     []RawUpdate
	SourceURL   string
	Adapter     AdapterKind
}
