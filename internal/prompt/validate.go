package prompt

import (
	"fmt"
	"strings"
)

const (
	MinWords = 1500
	MaxWords = 8000
)

// Validation is the advisory result of checking a generated prompt. Callers
// log it; nothing blocks on it.
type Validation struct {
	Valid           bool     `json:"valid"`
	Issues          []string `json:"issues"`
	Warnings        []string `json:"warnings"`
	WordCount       int      `json:"word_count"`
	MissingSections []string `json:"missing_sections"`
	HasFinish       bool     `json:"has_finish"`
}

// Validate checks text for every section marker of layout, the [FINISH]
// token and a word count within [MinWords, MaxWords]. Missing markers and a
// missing token are issues; word count is only a warning.
func Validate(text string, layout Layout) Validation {
	v := Validation{
		Issues:          []string{},
		Warnings:        []string{},
		MissingSections: []string{},
		WordCount:       len(strings.Fields(text)),
		HasFinish:       strings.Contains(text, FinishToken),
	}

	for i, s := range layout.Sections {
		marker := Marker(i + 1)
		if !strings.Contains(text, marker) {
			v.MissingSections = append(v.MissingSections, marker)
			v.Issues = append(v.Issues, fmt.Sprintf("missing section marker %q (%s)", marker, s.Title))
		}
	}

	if !v.HasFinish {
		v.Issues = append(v.Issues, fmt.Sprintf("missing %s token", FinishToken))
	}

	switch {
	case v.WordCount < MinWords:
		v.Warnings = append(v.Warnings, fmt.Sprintf("prompt has %d words, below the %d minimum", v.WordCount, MinWords))
	case v.WordCount > MaxWords:
		v.Warnings = append(v.Warnings, fmt.Sprintf("prompt has %d words, above the %d maximum", v.WordCount, MaxWords))
	}

	v.Valid = len(v.Issues) == 0
	return v
}
