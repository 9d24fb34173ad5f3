package connector

import (
	"strings"

	"github.com/hejijunhao/statusreport/internal/engine/taxonomy"
	"github.com/hejijunhao/statusreport/internal/model"
)

// classLevels maps a whole class token, or the level part of a prefixed
// token (impact-major, sev-1), to an impact word.
var classLevels = map[string]string{
	"critical": "critical", "red": "critical", "1": "critical",
	"major": "major", "orange": "major", "2": "major",
	"minor": "minor", "yellow": "minor", "3": "minor",
	"maintenance": "none", "blue": "none", "none": "none", "4": "none",
}

// levelPrefixes introduce a level inside one class token.
var levelPrefixes = []string{"impact-", "severity-", "sev-", "sev", "level-", "status-"}

// ImpactFromClasses maps CSS class tokens to an impact word understood by
// model.ParseImpact. Tokens match whole (red, major) or after a level
// prefix (impact-critical, sev-2); "centered" is not "red". Returns ""
// when none match.
func ImpactFromClasses(classes string) string {
	for _, cls := range strings.Fields(strings.ToLower(classes)) {
		if lvl, ok := classLevels[cls]; ok && !isDigit(cls) {
			return lvl
		}
		for _, p := range levelPrefixes {
			rest, ok := strings.CutPrefix(cls, p)
			if !ok {
				continue
			}
			if lvl, ok := classLevels[rest]; ok {
				return lvl
			}
		}
	}
	return ""
}

func isDigit(s string) bool {
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}

// impactCues are text cues used when a page carries no impact classes,
// most severe first. Each is a keyword group matched on word boundaries.
var impactCues = []model.Category{
	{ID: "critical", Keywords: []string{"critical", "outage", "down", "severe", "unavailable"}},
	{ID: "major", Keywords: []string{"major", "significant", "degraded", "elevated error", "elevated errors"}},
	{ID: "minor", Keywords: []string{"minor", "partial", "intermittent", "delayed", "slow", "slowdown"}},
	{ID: "none", Keywords: []string{"maintenance", "scheduled", "planned"}},
}

// ImpactFromText infers impact from free text. "Slowdown" does not match
// "down". Returns "" when nothing matches.
func ImpactFromText(text string) string {
	t := taxonomy.Prepare(text)
	for _, c := range impactCues {
		if len(taxonomy.Match(c, t)) > 0 {
			return c.ID
		}
	}
	return ""
}
