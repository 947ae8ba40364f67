package persona

import (
	"strings"

	"github.com/apresai/roleplay/internal/archetype"
)

type requirement struct {
	applies    func(domain string, a archetype.Archetype) bool
	categories []CategoryName
}

func isArchetype(want archetype.Archetype) func(string, archetype.Archetype) bool {
	return func(_ string, a archetype.Archetype) bool { return a == want }
}

func domainHas(words ...string) func(string, archetype.Archetype) bool {
	return func(domain string, _ archetype.Archetype) bool {
		for _, w := range words {
			if strings.Contains(domain, w) {
				return true
			}
		}
		return false
	}
}

var requirements = []requirement{
	{isArchetype(archetype.Persuasion), []CategoryName{DecisionCriteria}},
	{domainHas("sales"), []CategoryName{ProfessionalContext, TimeConstraints, SalesRepHistory}},
	{isArchetype(archetype.HelpSeeking), []CategoryName{PainPoints, EmotionalState}},
	{isArchetype(archetype.Confrontation), []CategoryName{IncidentContext, RelationshipDynamics}},
	{domainHas("medical", "pharma", "health"), []CategoryName{ProfessionalContext}},
	{isArchetype(archetype.Negotiation), []CategoryName{DecisionCriteria, OrganizationalConstraints}},
}

// RequiredCategories returns the categories a persona must carry for the
// given domain and archetype, deduplicated in library order. Generation and
// validation both read this list.
func RequiredCategories(domain string, a archetype.Archetype) []CategoryName {
	domain = strings.ToLower(domain)
	seen := make(map[CategoryName]bool)
	var out []CategoryName
	for _, r := range requirements {
		if !r.applies(domain, a) {
			continue
		}
		for _, c := range r.categories {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	sortByLibrary(out)
	return out
}
