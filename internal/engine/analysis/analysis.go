// Package analysis computes reliability metrics over a normalized dataset.
package analysis

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/hejijunhao/statusreport/internal/model"
)

const (
	// DaysPerMonth is the mean Gregorian month length.
	DaysPerMonth = 365.2425 / 12
	// TrendSplit places the boundary between the halves compared for trend.
	TrendSplit = 0.5
	// DefaultTrendThreshold is the relative change beyond which a trend is
	// reported as worsening or improving.
	DefaultTrendThreshold = 0.15
	// LongIncident marks incidents called out in key issues.
	LongIncident = 2 * time.Hour

	maxKeyIssues = 5
)

// Config holds tunables.
type Config struct {
	TrendThreshold float64
}

// Input is one company's classified dataset and the analysis range.
type Input struct {
	Company    string
	Incidents  []model.Incident
	Results    []model.ClassificationResult // index-aligned with Incidents, may be nil
	Categories []model.Category
	Start, End time.Time
}

// Analyzer computes metrics. It is stateless and safe for concurrent use.
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer. A zero threshold selects DefaultTrendThreshold.
func New(cfg Config) *Analyzer {
	if cfg.TrendThreshold <= 0 {
		cfg.TrendThreshold = DefaultTrendThreshold
	}
	return &Analyzer{cfg: cfg}
}

// Analyze computes the metrics of one dataset.
func (a *Analyzer) Analyze(in Input) model.Metrics {
	m := model.Metrics{
		Company:            in.Company,
		TotalIncidents:     len(in.Incidents),
		Months:             Months(in.Start, in.End),
		ImpactCounts:       make(map[model.Impact]int, len(model.Impacts)),
		ImpactDistribution: make(map[model.Impact]float64, len(model.Impacts)),
	}
	if m.Months > 0 {
		m.IncidentRate = float64(m.TotalIncidents) / m.Months
	}

	var durations []time.Duration
	for _, inc := range in.Incidents {
		m.ImpactCounts[inc.Impact]++
		if d, ok := inc.Duration(); ok {
			durations = append(durations, d)
		}
	}
	m.Resolved = len(durations)
	m.Open = m.TotalIncidents - m.Resolved
	m.MTTR, m.MedianDuration, m.MinDuration, m.MaxDuration = durationStats(durations)

	for _, imp := range model.Impacts {
		if _, ok := m.ImpactCounts[imp]; !ok {
			m.ImpactCounts[imp] = 0
		}
		if m.TotalIncidents > 0 {
			m.ImpactDistribution[imp] = float64(m.ImpactCounts[imp]) / float64(m.TotalIncidents) * 100
		} else {
			m.ImpactDistribution[imp] = 0
		}
	}

	if len(in.Results) > 0 {
		m.ByCategory = make(map[string]int)
		for _, r := range in.Results {
			m.ByCategory[r.CategoryID]++
		}
	}

	m.Monthly = Monthly(in.Incidents, in.Start, in.End)
	m.Trend, m.TrendChange = a.trend(in.Incidents, in.Start, in.End)
	m.KeyIssues = keyIssues(m, in.Categories, durations)
	return m
}

// Months returns the real-valued number of months between start and end.
func Months(start, end time.Time) float64 {
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours() / 24 / DaysPerMonth
}

func durationStats(ds []time.Duration) (mean, median, lo, hi time.Duration) {
	if len(ds) == 0 {
		return 0, 0, 0, 0
	}
	sorted := slices.Clone(ds)
	slices.Sort(sorted)
	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	mean = total / time.Duration(len(sorted))
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		median = sorted[mid]
	} else {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}
	return mean, median, sorted[0], sorted[len(sorted)-1]
}

// Monthly buckets incidents by the calendar month (UTC) they started in.
// Every month from start to end is present, including empty ones.
func Monthly(incidents []model.Incident, start, end time.Time) []model.MonthlyCount {
	if end.Before(start) {
		return nil
	}
	first := time.Date(start.UTC().Year(), start.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.UTC().Year(), end.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)

	var out []model.MonthlyCount
	index := make(map[string]int)
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		key := m.Format("2006-01")
		index[key] = len(out)
		out = append(out, model.MonthlyCount{Month: key})
	}
	for _, inc := range incidents {
		i, ok := index[inc.StartedAt.UTC().Format("2006-01")]
		if !ok {
			continue
		}
		b := &out[i]
		b.Count++
		switch inc.Impact {
		case model.ImpactCritical:
			b.Critical++
		case model.ImpactMajor:
			b.Major++
		}
		if d, ok := inc.Duration(); ok {
			b.Downtime += d
		}
	}
	return out
}

// trend compares the incident count of the first and second half of the
// range. Both halves are equally long so counts stand in for rates.
func (a *Analyzer) trend(incidents []model.Incident, start, end time.Time) (model.Trend, float64) {
	if !end.After(start) {
		return model.TrendStable, 0
	}
	split := start.Add(time.Duration(float64(end.Sub(start)) * TrendSplit))
	var first, second int
	for _, inc := range incidents {
		if inc.StartedAt.Before(split) {
			first++
		} else {
			second++
		}
	}
	return Classify(first, second, a.cfg.TrendThreshold)
}

// Classify names the trend from first-half to second-half counts. The
// change must strictly exceed threshold. A quiet first half followed by any
// incident is worsening with a reported change of 1.
func Classify(first, second int, threshold float64) (model.Trend, float64) {
	if first == 0 {
		if second == 0 {
			return model.TrendStable, 0
		}
		return model.TrendWorsening, 1
	}
	change := float64(second-first) / float64(first)
	switch {
	case change > threshold:
		return model.TrendWorsening, change
	case change < -threshold:
		return model.TrendImproving, change
	}
	return model.TrendStable, change
}

func keyIssues(m model.Metrics, categories []model.Category, durations []time.Duration) []string {
	if m.TotalIncidents == 0 {
		return nil
	}
	var issues []string

	if top, n := topCategory(m.ByCategory); n > 0 {
		name := top
		for _, c := range categories {
			if c.ID == top {
				name = c.Name
				break
			}
		}
		issues = append(issues, fmt.Sprintf("High frequency of %s incidents: %d of %d (%.0f%%)",
			name, n, m.TotalIncidents, float64(n)/float64(m.TotalIncidents)*100))
	}

	if c := m.ImpactCounts[model.ImpactCritical]; c > 0 {
		issues = append(issues, fmt.Sprintf("%d critical impact incidents", c))
	}

	var long []time.Duration
	for _, d := range durations {
		if d > LongIncident {
			long = append(long, d)
		}
	}
	if len(long) > 0 {
		avg, _, _, _ := durationStats(long)
		issues = append(issues, fmt.Sprintf("%d incidents lasted over 2 hours (average %.1fh)", len(long), avg.Hours()))
	}

	if m.Trend == model.TrendWorsening {
		issues = append(issues, fmt.Sprintf("Incident frequency rose %.0f%% in the second half of the period", m.TrendChange*100))
	}

	if len(issues) > maxKeyIssues {
		issues = issues[:maxKeyIssues]
	}
	return issues
}

// topCategory returns the most frequent category; ties go to the smaller id.
func topCategory(counts map[string]int) (string, int) {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	best, n := "", 0
	for _, id := range ids {
		if counts[id] > n {
			best, n = id, counts[id]
		}
	}
	return best, n
}
