package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?\\s*```")

// Parse tiers, in the order they are attempted.
const (
	TierDirect = "direct"
	TierFenced = "fenced"
	TierSpan   = "span"
)

// ParseFailure is returned when no tier could recover JSON from a response.
type ParseFailure struct {
	Raw      string
	Attempts []string
	Err      error
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("no parseable JSON after %s: %v (raw: %s)",
		strings.Join(e.Attempts, ", "), e.Err, truncate(e.Raw, 200))
}

func (e *ParseFailure) Unwrap() error {
	return e.Err
}

// DecodeObject recovers a JSON object from LLM text into v. It tries a direct
// parse, then a fenced ```json block, then the outermost {...} span.
func DecodeObject(text string, v any) error {
	return decode(text, v, '{', '}')
}

// DecodeArray is DecodeObject for a top-level JSON array.
func DecodeArray(text string, v any) error {
	return decode(text, v, '[', ']')
}

// ExtractObject returns the first candidate object string that parses, or "".
func ExtractObject(text string) string {
	var raw json.RawMessage
	if err := DecodeObject(text, &raw); err != nil {
		return ""
	}
	return string(raw)
}

func decode(text string, v any, open, close byte) error {
	failure := &ParseFailure{Raw: text}

	candidates := []struct {
		tier string
		body string
	}{
		{TierDirect, strings.TrimSpace(text)},
		{TierFenced, fenced(text)},
		{TierSpan, span(text, open, close)},
	}

	for _, c := range candidates {
		failure.Attempts = append(failure.Attempts, c.tier)
		if c.body == "" || c.body[0] != open {
			if failure.Err == nil {
				failure.Err = fmt.Errorf("%s: no %c...%c content", c.tier, open, close)
			}
			continue
		}
		err := json.Unmarshal([]byte(c.body), v)
		if err == nil {
			return nil
		}
		if cleaned := cleanJSON(c.body); cleaned != c.body {
			if err2 := json.Unmarshal([]byte(cleaned), v); err2 == nil {
				return nil
			}
		}
		failure.Err = fmt.Errorf("%s: %w", c.tier, err)
	}

	return failure
}

func fenced(text string) string {
	if m := fencePattern.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func span(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return ""
}

// cleanJSON strips // comments outside strings and trailing commas, the two
// artifacts models most often add to otherwise valid JSON.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return stripTrailingCommas(strings.Join(lines, "\n"))
}

// stripTrailingCommas drops a comma whose next non-space byte closes an
// object or array. Commas inside string literals are left alone.
func stripTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == ',':
			j := i + 1
			for j < len(raw) && strings.IndexByte(" \t\r\n", raw[j]) >= 0 {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

func truncate(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}
