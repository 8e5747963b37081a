package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ticketrelay/internal/domain"
)

// ParseAnswer turns free model output into a classification. Code fences are
// stripped, the first JSON object is decoded, and each field is validated on
// its own so one bad value does not discard its siblings.
func ParseAnswer(answer string) Outcome {
	raw, err := extractObject(answer)
	if err != nil {
		return Outcome{Result: domain.FallbackClassification(), Err: err}
	}

	result := domain.FallbackClassification()
	var invalid []string

	if c, ok := domain.ParseModelCategory(stringField(raw, "category")); ok {
		result.Category = c
	} else {
		invalid = append(invalid, "category")
	}
	if p, ok := domain.ParsePriority(stringField(raw, "priority")); ok {
		result.Priority = p
	} else {
		invalid = append(invalid, "priority")
	}
	if t, ok := domain.ParseTeam(stringField(raw, "team")); ok {
		result.Team = t
	} else {
		invalid = append(invalid, "team")
	}

	if len(invalid) > 0 {
		return Outcome{Result: result, Err: &InvalidFieldsError{Fields: invalid}}
	}
	return Outcome{Result: result}
}

// stripFences removes markdown code fences such as ```json ... ```.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func extractObject(answer string) (map[string]any, error) {
	content := stripFences(answer)
	if content == "" {
		return nil, errors.New("empty classifier answer")
	}

	var obj map[string]any
	err := json.Unmarshal([]byte(content), &obj)
	if err == nil && obj != nil {
		return obj, nil
	}

	// Some models wrap the object in prose.
	if start, end := findObjectBounds(content); start >= 0 {
		if err2 := json.Unmarshal([]byte(content[start:end]), &obj); err2 == nil && obj != nil {
			return obj, nil
		}
	}
	if err == nil {
		err = errors.New("answer is not a JSON object")
	}
	return nil, fmt.Errorf("parse classifier answer: %w", err)
}

// findObjectBounds locates the first top-level JSON object in s.
// Returns the start index and end+1 index, or (-1, -1) if not found.
func findObjectBounds(s string) (int, int) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			if ch == '\\' {
				i++
				continue
			}
			if ch == '"' {
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
