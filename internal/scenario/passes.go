package scenario

const extractorSystem = `You are an instructional designer who reads role-play training scenario
documents and extracts structured data from them. Respond with a single JSON
object that follows the requested shape exactly. Use empty strings or empty
lists for anything the document does not state. Do not add commentary.`

// Each pass owns a disjoint slice of TemplateData.
type pass struct {
	name        string
	instruction string
}

var passes = []pass{
	{
		name: "overview",
		instruction: `Extract the general information, context overview and mode descriptions.

Return JSON of this shape:
{
  "general_info": {"domain": "", "title": "", "language": "English"},
  "context_overview": {"title": "", "description": ""},
  "mode_descriptions": {
    "learn_mode":  {"what_happens": "", "ai_bot_role": "", "learner_role": ""},
    "assess_mode": {"what_happens": "", "ai_bot_role": "", "learner_role": ""},
    "try_mode":    {"what_happens": "", "ai_bot_role": "", "learner_role": ""}
  }
}

In learn_mode the AI acts as a trainer. In assess_mode and try_mode the AI
plays the character the learner practices against.`,
	},
	{
		name: "persona_types",
		instruction: `Identify the persona types (categories of character, not concrete people)
the learner will face, and guess the interaction archetype.

Archetype is one of PERSUASION, HELP_SEEKING, CONFRONTATION, INVESTIGATION,
NEGOTIATION.

Return JSON of this shape:
{
  "persona_types": [
    {"type": "", "role": "", "description": "", "archetype": "", "age": 0,
     "gender": "", "location": "City, State, Country", "traits": [""]}
  ],
  "archetype_classification": {"primary_archetype": "", "confidence": 0.0}
}`,
	},
	{
		name: "methodology",
		instruction: `Extract the methodology, key facts, dos and don'ts and conversation topics
the learner is expected to know.

Return JSON of this shape:
{
  "methodology": {"name": "", "steps": [""]},
  "key_facts": [""],
  "dos": [""],
  "donts": [""],
  "conversation_topics": [""]
}

Every list element must be a plain string.`,
	},
	{
		name: "assessment",
		instruction: `Extract how the learner is graded and how a coach should guide them.

Return JSON of this shape:
{
  "evaluation_criteria": [""],
  "coaching_rules": [""]
}

Every list element must be a plain string.`,
	},
}

type overviewResult struct {
	GeneralInfo      GeneralInfo      `json:"general_info"`
	ContextOverview  ContextOverview  `json:"context_overview"`
	ModeDescriptions ModeDescriptions `json:"mode_descriptions"`
}

type personaTypesResult struct {
	PersonaTypes            []PersonaType           `json:"persona_types"`
	ArchetypeClassification ArchetypeClassification `json:"archetype_classification"`
}

type methodologyResult struct {
	Methodology        Methodology `json:"methodology"`
	KeyFacts           StringList  `json:"key_facts"`
	Dos                StringList  `json:"dos"`
	Donts              StringList  `json:"donts"`
	ConversationTopics StringList  `json:"conversation_topics"`
}

type assessmentResult struct {
	EvaluationCriteria StringList `json:"evaluation_criteria"`
	CoachingRules      StringList `json:"coaching_rules"`
}
