package persona

import (
	"fmt"
	"strings"

	"github.com/apresai/roleplay/internal/archetype"
	"github.com/apresai/roleplay/internal/scenario"
)

// Check names carried on Issue.Check.
const (
	CheckArchetype           = "archetype"
	CheckLocation            = "location"
	CheckRequiredCategory    = "required_category"
	CheckConversationContext = "conversation_context"
)

// Issue is one consistency problem found on a persona.
type Issue struct {
	Check   string `json:"check"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	return i.Check + ": " + i.Message
}

// Validate runs the four consistency checks. It never mutates p.
func Validate(p *Instance, td *scenario.TemplateData) []Issue {
	var issues []Issue
	issues = append(issues, checkArchetype(p, td)...)
	issues = append(issues, checkLocation(p)...)
	issues = append(issues, checkRequired(p, td)...)
	issues = append(issues, checkConversationContext(p, td)...)
	return issues
}

func checkArchetype(p *Instance, td *scenario.TemplateData) []Issue {
	expected, ok := archetype.Classify(td.GeneralInfo.Domain, td.ModeDescriptions.AssessMode.WhatHappens)
	if !ok || archetype.Normalize(p.Archetype) == expected {
		return nil
	}
	return []Issue{{
		Check:   CheckArchetype,
		Message: fmt.Sprintf("persona archetype %q does not match expected %s", p.Archetype, expected),
	}}
}

func checkLocation(p *Instance) []Issue {
	loc, ok := professionalLocation(p)
	if !ok {
		return nil
	}
	city := strings.ToLower(p.Location.City)
	state := strings.ToLower(p.Location.State)
	if city == "" && state == "" {
		return nil
	}
	l := strings.ToLower(loc)
	if (city != "" && strings.Contains(l, city)) || (state != "" && strings.Contains(l, state)) {
		return nil
	}
	return []Issue{{
		Check:   CheckLocation,
		Message: fmt.Sprintf("professional_context.location %q does not mention %s", loc, p.Location),
	}}
}

func professionalLocation(p *Instance) (string, bool) {
	fields, ok := p.Detail(ProfessionalContext)
	if !ok {
		return "", false
	}
	loc, ok := fields["location"].(string)
	return loc, ok
}

func checkRequired(p *Instance, td *scenario.TemplateData) []Issue {
	var issues []Issue
	for _, name := range RequiredCategories(td.GeneralInfo.Domain, archetype.Normalize(p.Archetype)) {
		if !p.HasCategory(name) {
			issues = append(issues, Issue{
				Check:   CheckRequiredCategory,
				Message: fmt.Sprintf("required category %s is missing", name),
			})
		}
	}
	return issues
}

// checkConversationContext catches medical wording leaking into a
// persuasion scenario whose learner is not dealing with patients.
func checkConversationContext(p *Instance, td *scenario.TemplateData) []Issue {
	if archetype.Normalize(p.Archetype) != archetype.Persuasion {
		return nil
	}
	rules := strings.ToLower(p.ConversationRules.OpeningBehavior + " " + p.ConversationRules.ResponseStyle)
	if !strings.Contains(rules, "patient") {
		return nil
	}
	learner := strings.ToLower(td.ModeDescriptions.Mode(p.GenerationMetadata.Mode).LearnerRole)
	if strings.Contains(learner, "patient") {
		return nil
	}
	return []Issue{{
		Check:   CheckConversationContext,
		Message: "conversation rules mention a patient but the learner role does not",
	}}
}

// AutoFix repairs the issues it knows how to fix, in place, and returns p.
// Only the location check is fixable: professional_context.location is
// rewritten to "City, State". Applying it twice changes nothing.
func AutoFix(p *Instance, issues []Issue) *Instance {
	for _, issue := range issues {
		if issue.Check != CheckLocation {
			continue
		}
		fields, ok := p.Detail(ProfessionalContext)
		if !ok {
			continue
		}
		fields["location"] = fixedLocation(p.Location)
	}
	return p
}

func fixedLocation(l Location) string {
	second := l.State
	if second == "" {
		second = l.Country
	}
	return Location{City: l.City, State: second}.String()
}
