// Package archetype classifies a scenario into one of the interaction
// patterns that govern how a generated character treats the learner.
package archetype

import (
	"strings"
)

type Archetype string

const (
	Persuasion    Archetype = "PERSUASION"
	HelpSeeking   Archetype = "HELP_SEEKING"
	Confrontation Archetype = "CONFRONTATION"
	Investigation Archetype = "INVESTIGATION"
	Negotiation   Archetype = "NEGOTIATION"
)

// All returns every known archetype in declaration order.
func All() []Archetype {
	return []Archetype{Persuasion, HelpSeeking, Confrontation, Investigation, Negotiation}
}

// Normalize maps free text such as "help-seeking" or " persuasion " onto a
// known archetype. Unknown input returns "".
func Normalize(s string) Archetype {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	for _, a := range All() {
		if Archetype(s) == a {
			return a
		}
	}
	return ""
}

func (a Archetype) Valid() bool {
	return Normalize(string(a)) == a && a != ""
}

// rule is one (predicate, archetype) pair. Every inner slice is an OR group;
// all groups must match.
type rule struct {
	name      string
	all       [][]string
	archetype Archetype
}

var rules = []rule{
	{
		name:      "sales pitch",
		all:       [][]string{{"sales", "pharmaceutical"}, {"pitch", "sell"}},
		archetype: Persuasion,
	},
	{
		name:      "help request",
		all:       [][]string{{"seeks help", "problem"}},
		archetype: HelpSeeking,
	},
	{
		name:      "conflict",
		all:       [][]string{{"bias", "conflict"}},
		archetype: Confrontation,
	},
}

// Classify applies the keyword rules to domain and whatHappens, first match
// wins. The result is a pure function of its two inputs.
func Classify(domain, whatHappens string) (Archetype, bool) {
	a, _, ok := Explain(domain, whatHappens)
	return a, ok
}

// Explain is Classify plus the name of the rule that fired.
func Explain(domain, whatHappens string) (Archetype, string, bool) {
	text := strings.ToLower(domain + " " + whatHappens)
	for _, r := range rules {
		if r.matches(text) {
			return r.archetype, r.name, true
		}
	}
	return "", "", false
}

func (r rule) matches(text string) bool {
	for _, group := range r.all {
		if !containsAny(text, group) {
			return false
		}
	}
	return true
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
