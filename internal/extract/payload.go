package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"gopkg.in/yaml.v3"
)

var (
	quotedKeyRe     = regexp.MustCompile(`"[A-Za-z0-9_]+"\s*:`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	pyNoneRe        = regexp.MustCompile(`\bNone\b`)
	pyTrueRe        = regexp.MustCompile(`\bTrue\b`)
	pyFalseRe       = regexp.MustCompile(`\bFalse\b`)
)

// isJSONLike classifies a payload as JSON rather than YAML: it starts with a
// brace, carries a fenced json block, or shows a quoted-key pattern next to
// balanced braces.
func isJSONLike(payload string) bool {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") {
		return true
	}
	if strings.Contains(payload, "```json") {
		return true
	}
	return quotedKeyRe.MatchString(payload) && hasBalancedBraces(payload)
}

func hasBalancedBraces(s string) bool {
	open := strings.Count(s, "{")
	return open > 0 && open == strings.Count(s, "}")
}

// stripFences drops markdown code-fence lines, keeping their content.
func stripFences(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// extractBalancedObject returns the exact balanced {...} substring starting
// at the first brace. The scan tracks whether it is inside a quoted string
// (toggled on unescaped double quotes) and only counts braces outside
// strings, so literal braces in values, e.g. a title containing {111}, do
// not end the object early.
func extractBalancedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// pythonLiteralsToJSON rewrites bare None/True/False tokens to their JSON
// spellings. The scan tracks quoted strings the same way the brace scanner
// does, so tokens inside values, e.g. a title of "True Grit", are left alone.
func pythonLiteralsToJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	start := 0
	flush := func(end int) {
		segment := s[start:end]
		if !inString {
			segment = pyNoneRe.ReplaceAllString(segment, "null")
			segment = pyTrueRe.ReplaceAllString(segment, "true")
			segment = pyFalseRe.ReplaceAllString(segment, "false")
		}
		b.WriteString(segment)
		start = end
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				flush(i + 1)
				inString = false
			}
			continue
		}
		if ch == '"' {
			flush(i)
			inString = true
		}
	}
	flush(len(s))
	return b.String()
}

func stripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// swapQuotes exchanges every single and double quote character. Used when a
// payload looks single-quoted throughout; knowingly lossy on apostrophes
// inside otherwise valid double-quoted values.
func swapQuotes(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'':
			return '"'
		case '"':
			return '\''
		default:
			return r
		}
	}, s)
}

// parseJSONPayload isolates the balanced object and walks the recovery
// ladder: strict parse of the untouched object, Python-literal rewrite,
// trailing-comma strip, quote swap (when single quotes dominate), then
// jsonrepair. Exhausting the ladder returns an error.
func parseJSONPayload(payload string) (map[string]any, error) {
	cleaned := stripFences(payload)
	obj, ok := extractBalancedObject(cleaned)
	if !ok {
		return nil, fmt.Errorf("no balanced JSON object in payload")
	}

	repaired := pythonLiteralsToJSON(obj)
	candidates := []string{obj, repaired, stripTrailingCommas(repaired)}
	if strings.Count(obj, "'") > strings.Count(obj, "\"") {
		candidates = append(candidates, stripTrailingCommas(swapQuotes(repaired)))
	}

	var lastErr error
	for _, candidate := range candidates {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			return parsed, nil
		} else {
			lastErr = err
		}
	}

	if fixed, err := jsonrepair.JSONRepair(obj); err == nil {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(fixed), &parsed); err == nil {
			return parsed, nil
		}
	}

	return nil, fmt.Errorf("unparseable JSON payload: %w", lastErr)
}

// parseYAMLPayload parses the payload with the YAML safe loader. A non-map
// result is reported via the bool so callers can degrade to pass-through.
func parseYAMLPayload(payload string) (map[string]any, bool) {
	var parsed any
	if err := yaml.Unmarshal([]byte(stripFences(payload)), &parsed); err != nil {
		return nil, false
	}
	mapped, ok := parsed.(map[string]any)
	if !ok {
		return nil, false
	}
	return mapped, true
}
