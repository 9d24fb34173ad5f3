package compactor

import (
	"math"
	"strings"
)

// subwordFactor approximates tokens per whitespace-separated word.
const subwordFactor = 1.3

// EstimateTokens approximates the token count of s: words times 1.3,
// rounded up.
func EstimateTokens(s string) int {
	words := len(strings.Fields(s))
	if words == 0 {
		return 0
	}
	return int(math.Ceil(float64(words) * subwordFactor))
}

// Fit returns how many of lines, taken in order, fit within budget estimated
// tokens. At least one line is always kept when lines is non-empty.
func Fit(lines []string, budget int) int {
	used := 0
	for i, line := range lines {
		used += EstimateTokens(line)
		if used > budget && i > 0 {
			return i
		}
	}
	return len(lines)
}

// Truncate keeps the leading words of s that fit in maxTokens and appends
// "..." when anything was dropped. Whitespace is collapsed.
func Truncate(s string, maxTokens int) string {
	words := strings.Fields(s)
	keep := int(math.Floor(float64(maxTokens) / subwordFactor))
	if keep >= len(words) {
		return strings.Join(words, " ")
	}
	if keep < 1 {
		keep = 1
	}
	return strings.Join(words[:keep], " ") + "..."
}
