package analysis

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Generative backends do not guarantee syntactically valid JSON: responses
// arrive fenced, wrapped in prose, duplicated, or truncated on token
// limits. ExtractJSON is the single entry point for turning that raw text
// into a parsed value; all repair heuristics live here and nowhere else.

var (
	fenceRe      = regexp.MustCompile("(?i)```(?:json)?")
	urlRe        = regexp.MustCompile(`https?://[^\s"\\]+`)
	objectRe     = regexp.MustCompile(`\{[\s\S]*?\}`)
	trailCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	objObjRe     = regexp.MustCompile(`\}\s*\{`)
	objStrRe     = regexp.MustCompile(`\}\s*"`)
	arrStrRe     = regexp.MustCompile(`\]\s*"`)
	arrObjRe     = regexp.MustCompile(`\]\s*\{`)
	arrArrRe     = regexp.MustCompile(`\]\s*\[`)
)

// ExtractJSON extracts the first well-formed JSON object from raw model
// output, applying repair passes and truncation recovery before giving up.
// Returns nil when nothing parses; never panics or returns an error.
func ExtractJSON(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	// Fences first, then brace-escape URLs so source citations like
	// http://x.com/{id} can't confuse the depth counter.
	text := fenceRe.ReplaceAllString(raw, "")
	text = escapeURLBraces(text)

	candidate := firstObject(text)
	if candidate == "" {
		// No balanced object (likely truncation); last-resort regex match.
		candidate = objectRe.FindString(text)
	}
	if candidate == "" {
		return rescueScan(text)
	}

	if v := tryParse(candidate); v != nil {
		return v
	}

	sanitized := sanitizeJSON(candidate)
	if v := tryParse(sanitized); v != nil {
		return v
	}

	if v := recoverTruncated(sanitized); v != nil {
		return v
	}

	return rescueScan(text)
}

// escapeURLBraces percent-encodes braces inside http(s) URLs so they are
// invisible to brace-depth counting.
func escapeURLBraces(text string) string {
	return urlRe.ReplaceAllStringFunc(text, func(u string) string {
		u = strings.ReplaceAll(u, "{", "%7B")
		return strings.ReplaceAll(u, "}", "%7D")
	})
}

// firstObject returns the substring spanning the first complete top-level
// JSON object, tracking nesting depth and string-literal state so braces
// inside string values are ignored. Returns "" when no object closes.
func firstObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
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
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON applies the textual repair passes, each idempotent:
// smart quotes, carriage returns, trailing commas, and missing commas
// between adjacent object/array boundaries.
func sanitizeJSON(text string) string {
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"\r", "",
	)
	text = replacer.Replace(text)
	text = trailCommaRe.ReplaceAllString(text, "$1")
	text = objObjRe.ReplaceAllString(text, "}, {")
	text = objStrRe.ReplaceAllString(text, `}, "`)
	text = arrStrRe.ReplaceAllString(text, `], "`)
	text = arrObjRe.ReplaceAllString(text, "], {")
	text = arrArrRe.ReplaceAllString(text, "], [")
	return text
}

// recoverTruncated iteratively truncates the candidate at its last '}' and
// retries, salvaging a usable partial object from output cut off
// mid-generation.
func recoverTruncated(candidate string) any {
	for {
		end := strings.LastIndex(candidate, "}")
		if end < 0 {
			return nil
		}
		attempt := trailCommaRe.ReplaceAllString(candidate[:end+1], "$1")
		if v := tryParse(attempt); v != nil {
			return v
		}
		candidate = candidate[:end]
	}
}

// rescueScan is the broad last resort: collect every {...} substring in the
// text, longest first (longer candidates are more likely the intended full
// object than a nested fragment), sanitize each, and return the first that
// parses.
func rescueScan(text string) any {
	candidates := objectRe.FindAllString(text, -1)
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})
	for _, c := range candidates {
		if v := tryParse(sanitizeJSON(c)); v != nil {
			return v
		}
	}
	return nil
}

func tryParse(candidate string) any {
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil
	}
	// Only objects are acceptable analysis payloads.
	if _, ok := v.(map[string]any); !ok {
		return nil
	}
	return v
}
