package persona

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apresai/roleplay/internal/scenario"
)

const personaSystem = `You design realistic characters for professional role-play training.
Characters must be specific, internally consistent and grounded in the
scenario's domain. Respond only with JSON.`

func buildSelectionPrompt(p *Instance, td *scenario.TemplateData, required []CategoryName, customPrompt string) string {
	var b strings.Builder
	b.WriteString("Select the detail categories that make this character realistic for the scenario.\n\n")
	fmt.Fprintf(&b, "SCENARIO: %s (%s)\n", td.GeneralInfo.Title, td.GeneralInfo.Domain)
	fmt.Fprintf(&b, "CONTEXT: %s\n", td.ContextOverview.Description)
	fmt.Fprintf(&b, "CHARACTER: %s, %s, archetype %s\n\n", p.Role, p.Description, p.Archetype)

	b.WriteString("AVAILABLE CATEGORIES:\n")
	for _, c := range library {
		fmt.Fprintf(&b, "- %s: %s Relevant when: %s\n", c.Name, c.Description, c.WhenRelevant)
	}

	if len(required) > 0 {
		names := make([]string, len(required))
		for i, r := range required {
			names[i] = string(r)
		}
		fmt.Fprintf(&b, "\nThese categories are REQUIRED and must be included: %s\n", strings.Join(names, ", "))
	}
	if customPrompt != "" {
		fmt.Fprintf(&b, "\nADDITIONAL INSTRUCTIONS FROM THE AUTHOR:\n%s\n", customPrompt)
	}

	fmt.Fprintf(&b, "\nChoose between %d and %d categories in total. Return a JSON array of category names only, for example [\"professional_context\", \"communication_style\"].", minSelected, maxSelected)
	return b.String()
}

func buildCategoryPrompt(p *Instance, td *scenario.TemplateData, c Category, customPrompt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate realistic details for the category: %s\n\n", c.Name)
	fmt.Fprintf(&b, "CATEGORY DESCRIPTION: %s\n", c.Description)
	fmt.Fprintf(&b, "SUGGESTED FIELDS: %s\n\n", strings.Join(c.ExampleFields, ", "))
	b.WriteString(identityBlock(p))
	fmt.Fprintf(&b, "SCENARIO DOMAIN: %s\n", td.GeneralInfo.Domain)
	fmt.Fprintf(&b, "SCENARIO CONTEXT: %s\n", td.ContextOverview.Description)
	if len(td.DomainKnowledge.KeyFacts) > 0 {
		fmt.Fprintf(&b, "KEY FACTS: %s\n", strings.Join(td.DomainKnowledge.KeyFacts, "; "))
	}
	if customPrompt != "" {
		fmt.Fprintf(&b, "AUTHOR NOTES: %s\n", customPrompt)
	}
	b.WriteString("\nDetails must agree with the identity above, including the city and state. Return one JSON object whose keys are field names.")
	return b.String()
}

func buildNamePrompt(p *Instance) string {
	return fmt.Sprintf(`Suggest a realistic full name for this character, appropriate to their location and culture.

ROLE: %s
GENDER: %s
AGE: %d
LOCATION: %s

Return JSON: {"name": "First Last"}`, p.Role, p.Gender, p.Age, p.Location)
}

func buildRulesPrompt(p *Instance, td *scenario.TemplateData) string {
	mode := td.ModeDescriptions.Mode(p.GenerationMetadata.Mode)

	details := make(map[CategoryName]map[string]any, len(p.Details))
	for _, d := range p.Details {
		details[d.Category] = d.Fields
	}
	detailJSON, _ := json.MarshalIndent(details, "", "  ")

	var b strings.Builder
	b.WriteString("Write conversation rules for how this character behaves in the role-play.\n\n")
	b.WriteString(identityBlock(p))
	fmt.Fprintf(&b, "WHAT HAPPENS: %s\n", mode.WhatHappens)
	fmt.Fprintf(&b, "CHARACTER PLAYS: %s\n", mode.AIBotRole)
	fmt.Fprintf(&b, "LEARNER PLAYS: %s\n\n", mode.LearnerRole)
	fmt.Fprintf(&b, "CHARACTER DETAILS:\n%s\n\n", detailJSON)
	b.WriteString(`Only mention patients if the learner role involves patients.

Return JSON of this shape:
{
  "opening_behavior": "",
  "response_style": "",
  "word_limit": 60,
  "triggers": {"engages": [""], "frustrates": [""], "ends_conversation": [""]}
}`)
	return b.String()
}

func identityBlock(p *Instance) string {
	return fmt.Sprintf("NAME: %s\nROLE: %s\nAGE: %d\nGENDER: %s\nLOCATION: %s\nCURRENTLY AT: %s\nARCHETYPE: %s\n",
		p.Name, p.Role, p.Age, p.Gender, p.Location, p.Location.CurrentPhysicalLocation, p.Archetype)
}
