package provider

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hejijunhao/statusreport/internal/errs"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// ExtractJSON pulls the JSON payload out of model output. It accepts bare
// JSON, fenced code blocks, or JSON embedded in prose.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", errs.ErrParse)
	}
	if json.Valid([]byte(text)) {
		return text, nil
	}
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		inner := strings.TrimSpace(m[1])
		if json.Valid([]byte(inner)) {
			return inner, nil
		}
	}
	if s, ok := scanBalanced(text); ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: no JSON found in response", errs.ErrParse)
}

// DecodeJSON extracts JSON from text and unmarshals it into dest.
func DecodeJSON(text string, dest any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrParse, err)
	}
	return nil
}

// scanBalanced finds the first balanced {...} or [...] span that is valid JSON.
func scanBalanced(text string) (string, bool) {
	for start := 0; start < len(text); start++ {
		open := text[start]
		if open != '{' && open != '[' {
			continue
		}
		closeCh := byte('}')
		if open == '[' {
			closeCh = ']'
		}
		depth, inString, escaped := 0, false, false
		for i := start; i < len(text); i++ {
			c := text[i]
			switch {
			case escaped:
				escaped = false
			case c == '\\' && inString:
				escaped = true
			case c == '"':
				inString = !inString
			case inString:
			case c == open:
				depth++
			case c == closeCh:
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(text)
				}
			}
		}
	}
	return "", false
}
