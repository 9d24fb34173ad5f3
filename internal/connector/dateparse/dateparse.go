// Package dateparse finds and reads the timestamps status pages print.
package dateparse

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	anydate "github.com/araddon/dateparse"

	"github.com/hejijunhao/statusreport/internal/errs"
)

// tokenPatterns find date-like substrings in free text, most specific first.
var tokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:\d{2})?)?`),
	regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.? \d{1,2},? \d{4}(?:,? \d{1,2}:\d{2}(?: ?[AP]M)?(?: [A-Z]{2,4})?)?`),
	regexp.MustCompile(`\b\d{1,2} (?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]* \d{4}(?: \d{1,2}:\d{2})?`),
	regexp.MustCompile(`\b\d{2}/\d{2}/\d{4}(?: \d{2}:\d{2})?`),
	regexp.MustCompile(`(?i)\b\d{1,2}-(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*-\d{4}`),
}

// Parse reads a timestamp in any layout araddon/dateparse recognizes.
// Zone-less input is read as UTC and the result is in UTC.
func Parse(s string) (time.Time, error) {
	s = clean(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", errs.ErrParse)
	}
	t, err := anydate.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unrecognized timestamp %q: %v", errs.ErrParse, s, err)
	}
	return t.UTC(), nil
}

// Find returns the first parseable date token in text.
func Find(text string) (time.Time, string, bool) {
	for _, re := range tokenPatterns {
		for _, tok := range re.FindAllString(text, -1) {
			// Drop trailing words the pattern over-matched ("10:30 and").
			for tok != "" {
				if t, err := Parse(tok); err == nil {
					return t, tok, true
				}
				i := strings.LastIndexByte(tok, ' ')
				if i < 0 {
					break
				}
				tok = strings.TrimRight(tok[:i], ", ")
			}
		}
	}
	return time.Time{}, "", false
}

// Contains reports whether text holds at least one parseable date token.
func Contains(text string) bool {
	_, _, ok := Find(text)
	return ok
}

// clean collapses whitespace and normalizes the separators vendors vary on
// ("Sept" for "Sep", "Dec. 5" for "Dec 5", "2024, 10:30" for "2024 10:30").
// A trailing UTC or GMT is dropped since input is read as UTC anyway.
func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, z := range []string{" UTC", " GMT"} {
		s = strings.TrimSuffix(s, z)
	}
	s = strings.Replace(s, "Sept ", "Sep ", 1)
	s = strings.Replace(s, ". ", " ", 1)
	if i := strings.Index(s, ", "); i > 0 {
		// "Dec 5, 2024, 10:30" -> "Dec 5, 2024 10:30"
		if j := strings.Index(s[i+2:], ", "); j >= 0 {
			s = s[:i+2+j] + s[i+2+j+1:]
		}
	}
	return s
}
