// Package compactor shortens incident text for prompts and report output.
package compactor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Verbosity controls how much detail is retained after compaction.
type Verbosity int

const (
	Minimal  Verbosity = iota // titles and one-line summaries only
	Standard                  // first update bodies, truncated
	Full                      // retain everything
)

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Standard:
		return "standard"
	case Full:
		return "full"
	}
	return fmt.Sprintf("verbosity(%d)", int(v))
}

// ParseVerbosity accepts minimal, standard or full.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "", "standard":
		return Standard, nil
	case "full":
		return Full, nil
	}
	return Standard, fmt.Errorf("unknown verbosity %q", s)
}

// Compactor performs length-aware compaction of free-form incident text.
type Compactor struct {
	Verbosity Verbosity
}

// New creates a Compactor with the given verbosity level.
func New(v Verbosity) *Compactor {
	return &Compactor{Verbosity: v}
}

// Compact collapses whitespace and truncates text for the configured
// verbosity. Returns the compacted text and a one-line summary.
func (c *Compactor) Compact(text string) (compacted string, summary string) {
	flat := collapse(text)
	summary = summarize(text)
	switch c.Verbosity {
	case Minimal:
		return truncate(flat, 200), summary
	case Standard:
		return truncate(flat, 2000), summary
	default:
		return flat, summary
	}
}

// collapse joins all whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to maxRunes runes, appending "..." when shortened.
func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

// summarize returns the first non-empty line, cut at a word boundary
// within 120 runes.
func summarize(text string) string {
	const limit = 120
	line := ""
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}
	if utf8.RuneCountInString(line) <= limit {
		return line
	}
	cut := truncate(line, limit)
	cut = strings.TrimSuffix(cut, "...")
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ") + "..."
}
