// Package scenario turns a free-text scenario document into TemplateData,
// the structured knowledge every later pipeline stage reads from.
package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TemplateData is the extracted knowledge for one scenario.
type TemplateData struct {
	ID                      string                  `json:"id,omitempty"`
	GeneralInfo             GeneralInfo             `json:"general_info"`
	ContextOverview         ContextOverview         `json:"context_overview"`
	ModeDescriptions        ModeDescriptions        `json:"mode_descriptions"`
	PersonaTypes            []PersonaType           `json:"persona_types"`
	DomainKnowledge         DomainKnowledge         `json:"domain_knowledge"`
	ArchetypeClassification ArchetypeClassification `json:"archetype_classification"`
}

type GeneralInfo struct {
	Domain   string `json:"domain"`
	Title    string `json:"title"`
	Language string `json:"language"`
}

type ContextOverview struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ModeDescriptions struct {
	LearnMode  ModeDescription `json:"learn_mode"`
	AssessMode ModeDescription `json:"assess_mode"`
	TryMode    ModeDescription `json:"try_mode"`
}

type ModeDescription struct {
	WhatHappens string `json:"what_happens"`
	AIBotRole   string `json:"ai_bot_role"`
	LearnerRole string `json:"learner_role"`
}

// Mode names as they appear in mode_descriptions.
const (
	ModeLearn  = "learn_mode"
	ModeAssess = "assess_mode"
	ModeTry    = "try_mode"
)

// Modes returns the three mode keys.
func Modes() []string {
	return []string{ModeLearn, ModeAssess, ModeTry}
}

// NormalizeMode accepts "assess", "assess_mode" or "Assess Mode".
func NormalizeMode(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	if s != "" && !strings.HasSuffix(s, "_mode") {
		s += "_mode"
	}
	for _, m := range Modes() {
		if s == m {
			return m, nil
		}
	}
	return "", fmt.Errorf("invalid mode %q: choose learn, assess or try", s)
}

// Mode returns the description for a mode key. Unknown keys return the
// assess-mode description.
func (m ModeDescriptions) Mode(name string) ModeDescription {
	switch name {
	case ModeLearn:
		return m.LearnMode
	case ModeTry:
		return m.TryMode
	default:
		return m.AssessMode
	}
}

// PersonaType is a category of character the scenario calls for, not a
// concrete individual.
type PersonaType struct {
	Type        string     `json:"type"`
	Role        string     `json:"role,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Archetype   string     `json:"archetype,omitempty"`
	Age         FlexInt    `json:"age,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	Location    string     `json:"location,omitempty"`
	Traits      StringList `json:"traits,omitempty"`
}

type DomainKnowledge struct {
	Methodology        Methodology `json:"methodology"`
	KeyFacts           StringList  `json:"key_facts"`
	Dos                StringList  `json:"dos"`
	Donts              StringList  `json:"donts"`
	ConversationTopics StringList  `json:"conversation_topics"`
	EvaluationCriteria StringList  `json:"evaluation_criteria"`
	CoachingRules      StringList  `json:"coaching_rules"`
}

type Methodology struct {
	Name  string     `json:"name"`
	Steps StringList `json:"steps"`
}

type ArchetypeClassification struct {
	PrimaryArchetype string  `json:"primary_archetype"`
	Confidence       float64 `json:"confidence"`
	Corrected        bool    `json:"corrected,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// StringList is a []string that tolerates LLM output where an element is an
// object, number or nested list. Such elements are flattened to a string so
// the field always round-trips as a list of strings.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	// A lone string is treated as a one-element list.
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("string list: %w", err)
	}
	out := make(StringList, 0, len(raw))
	for _, elem := range raw {
		if s := flatten(elem); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

func flatten(elem json.RawMessage) string {
	var s string
	if err := json.Unmarshal(elem, &s); err == nil {
		return s
	}

	var obj map[string]any
	if err := json.Unmarshal(elem, &obj); err == nil {
		// Objects with a single obvious text field collapse to that field.
		for _, key := range []string{"text", "fact", "rule", "criterion", "description", "name", "step"} {
			if v, ok := obj[key].(string); ok && len(obj) == 1 {
				return v
			}
		}
		return compact(elem)
	}

	var list []json.RawMessage
	if err := json.Unmarshal(elem, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, e := range list {
			if s := flatten(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}

	if string(elem) == "null" {
		return ""
	}
	return compact(elem)
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// FlexInt decodes either a JSON number or a numeric string. Anything else
// decodes to zero.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = FlexInt(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		fields := strings.Fields(s)
		if len(fields) > 0 {
			if v, err := strconv.Atoi(fields[0]); err == nil {
				*n = FlexInt(v)
				return nil
			}
		}
	}
	*n = 0
	return nil
}
