// Package persona builds one concrete character for a scenario and mode.
package persona

import "sort"

// CategoryName identifies one entry of the detail category library.
type CategoryName string

const (
	ProfessionalContext       CategoryName = "professional_context"
	DecisionCriteria          CategoryName = "decision_criteria"
	TimeConstraints           CategoryName = "time_constraints"
	SalesRepHistory           CategoryName = "sales_rep_history"
	PersonalBackground        CategoryName = "personal_background"
	CommunicationStyle        CategoryName = "communication_style"
	EmotionalState            CategoryName = "emotional_state"
	PainPoints                CategoryName = "pain_points"
	KnowledgeLevel            CategoryName = "knowledge_level"
	ObjectionsConcerns        CategoryName = "objections_concerns"
	IncidentContext           CategoryName = "incident_context"
	RelationshipDynamics      CategoryName = "relationship_dynamics"
	OrganizationalConstraints CategoryName = "organizational_constraints"
	GoalsMotivations          CategoryName = "goals_motivations"
	CulturalContext           CategoryName = "cultural_context"
	MedicalContext            CategoryName = "medical_context"
)

// Category is a reusable bundle of persona attributes.
type Category struct {
	Name          CategoryName `json:"name"`
	Description   string       `json:"description"`
	ExampleFields []string     `json:"example_fields"`
	WhenRelevant  string       `json:"when_relevant"`
}

var library = []Category{
	{
		Name:          ProfessionalContext,
		Description:   "Where and how the character works: title, employer, workplace, seniority and daily workload.",
		ExampleFields: []string{"current_role", "organization", "location", "years_experience", "patient_or_client_volume", "reporting_line"},
		WhenRelevant:  "Any scenario where the character's job shapes the conversation, which is most professional training.",
	},
	{
		Name:          DecisionCriteria,
		Description:   "What the character weighs before agreeing to anything: evidence thresholds, cost sensitivity, risk tolerance.",
		ExampleFields: []string{"must_haves", "evidence_required", "budget_sensitivity", "risk_tolerance", "deal_breakers"},
		WhenRelevant:  "Persuasion and negotiation, where the learner must move the character toward a decision.",
	},
	{
		Name:          TimeConstraints,
		Description:   "How much time the character has and how that pressure shows up in the conversation.",
		ExampleFields: []string{"available_minutes", "next_commitment", "signs_of_impatience", "best_time_to_engage"},
		WhenRelevant:  "Short professional interactions such as sales calls, clinic visits and escalations.",
	},
	{
		Name:          SalesRepHistory,
		Description:   "Previous experiences with sales representatives, vendors or the learner's company.",
		ExampleFields: []string{"previous_reps", "memorable_good_experience", "memorable_bad_experience", "current_suppliers", "trust_level"},
		WhenRelevant:  "Sales scenarios where past rep behavior colors how the character receives the learner.",
	},
	{
		Name:          PersonalBackground,
		Description:   "Life outside the role: family, education, hometown and formative experiences.",
		ExampleFields: []string{"education", "family", "hometown", "hobbies", "formative_experience"},
		WhenRelevant:  "Scenarios that reward rapport building or need a rounded, believable character.",
	},
	{
		Name:          CommunicationStyle,
		Description:   "How the character talks: pace, directness, vocabulary, tolerance for small talk.",
		ExampleFields: []string{"tone", "directness", "preferred_language", "verbal_habits", "listening_style"},
		WhenRelevant:  "Almost always; the learner has to adapt to how the character speaks.",
	},
	{
		Name:          EmotionalState,
		Description:   "How the character feels entering the conversation and what shifts that mood.",
		ExampleFields: []string{"current_mood", "stress_level", "underlying_worry", "what_calms_them", "what_escalates_them"},
		WhenRelevant:  "Help-seeking, complaint handling and confrontation, where emotion drives behavior.",
	},
	{
		Name:          PainPoints,
		Description:   "The concrete problems the character is living with and their impact.",
		ExampleFields: []string{"primary_problem", "impact", "workarounds_tried", "urgency"},
		WhenRelevant:  "Help-seeking and consultative selling, where the learner must uncover needs.",
	},
	{
		Name:          KnowledgeLevel,
		Description:   "What the character already knows about the topic, product or process, including misconceptions.",
		ExampleFields: []string{"domain_expertise", "familiarity_with_offering", "misconceptions", "jargon_comfort"},
		WhenRelevant:  "Scenarios where the learner must calibrate explanations to the listener.",
	},
	{
		Name:          ObjectionsConcerns,
		Description:   "Specific objections the character will raise and what would resolve each.",
		ExampleFields: []string{"objections", "hidden_concern", "resolution_signals"},
		WhenRelevant:  "Sales, persuasion and change-management conversations.",
	},
	{
		Name:          IncidentContext,
		Description:   "The event that triggered the conversation: what happened, when, who was involved.",
		ExampleFields: []string{"what_happened", "when", "where", "people_involved", "evidence_available"},
		WhenRelevant:  "Confrontation, investigation and compliance scenarios built around a specific incident.",
	},
	{
		Name:          RelationshipDynamics,
		Description:   "The history and power balance between the character and the learner's role.",
		ExampleFields: []string{"relationship_to_learner", "power_balance", "history", "trust_level"},
		WhenRelevant:  "Workplace conflict, feedback conversations and any scenario between colleagues.",
	},
	{
		Name:          OrganizationalConstraints,
		Description:   "Rules, budgets, approvals and politics that limit what the character can agree to.",
		ExampleFields: []string{"approval_process", "budget_cycle", "policies", "stakeholders"},
		WhenRelevant:  "Negotiation and B2B selling where the character does not decide alone.",
	},
	{
		Name:          GoalsMotivations,
		Description:   "What the character wants from this conversation and from their work more broadly.",
		ExampleFields: []string{"immediate_goal", "career_goal", "personal_values", "success_looks_like"},
		WhenRelevant:  "Coaching, negotiation and any scenario where aligning to the character's goals matters.",
	},
	{
		Name:          CulturalContext,
		Description:   "Regional and cultural norms that shape expectations, politeness and formality.",
		ExampleFields: []string{"region", "formality_norms", "language_preferences", "cultural_sensitivities"},
		WhenRelevant:  "Scenarios set in a specific country or involving cross-cultural communication.",
	},
	{
		Name:          MedicalContext,
		Description:   "Clinical setting details: specialty, patient population, prescribing habits, guidelines followed.",
		ExampleFields: []string{"specialty", "patient_population", "prescribing_habits", "guidelines_followed", "clinical_concerns"},
		WhenRelevant:  "Pharmaceutical, medical device and healthcare scenarios.",
	},
}

var libraryIndex = func() map[CategoryName]int {
	m := make(map[CategoryName]int, len(library))
	for i, c := range library {
		m[c.Name] = i
	}
	return m
}()

// Library returns a copy of every category in library order.
func Library() []Category {
	out := make([]Category, len(library))
	copy(out, library)
	return out
}

// Lookup returns the library entry for name.
func Lookup(name CategoryName) (Category, bool) {
	i, ok := libraryIndex[name]
	if !ok {
		return Category{}, false
	}
	return library[i], true
}

func IsKnown(name CategoryName) bool {
	_, ok := libraryIndex[name]
	return ok
}

// sortByLibrary orders names the way the library lists them. Unknown names
// sort last, alphabetically.
func sortByLibrary(names []CategoryName) {
	rank := func(n CategoryName) int {
		if i, ok := libraryIndex[n]; ok {
			return i
		}
		return len(library)
	}
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := rank(names[i]), rank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
}
