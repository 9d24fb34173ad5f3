package taxonomy

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/hejijunhao/statusreport/internal/model"
)

// Text is incident text prepared for keyword matching: case-folded words
// joined by single spaces and padded so phrase lookups respect word edges.
type Text string

// Prepare folds and tokenizes s for Match.
func Prepare(s string) Text {
	return Text(" " + strings.Join(Words(s), " ") + " ")
}

// Words splits s into case-folded runs of letters and digits.
func Words(s string) []string {
	return strings.FieldsFunc(cases.Fold().String(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Match returns the keywords of c found in t, in keyword order, each at most once.
func Match(c model.Category, t Text) []string {
	var hits []string
	for _, kw := range c.Keywords {
		phrase := strings.Join(Words(kw), " ")
		if phrase == "" {
			continue
		}
		if strings.Contains(string(t), " "+phrase+" ") {
			hits = append(hits, kw)
		}
	}
	return hits
}
