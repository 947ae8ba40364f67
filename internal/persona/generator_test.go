package persona

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/llm/llmtest"
	"github.com/apresai/roleplay/internal/scenario"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	matchSelect   = "Select the detail categories"
	matchCategory = "Generate realistic details for the category: "
	matchName     = "Suggest a realistic full name"
	matchRules    = "Write conversation rules"
)

func pharmaTemplate() *scenario.TemplateData {
	td := salesTemplate()
	td.ID = "scn-1"
	td.ContextOverview.Description = "A busy cardiologist between clinic appointments"
	td.ArchetypeClassification.Confidence = 0.9
	td.PersonaTypes = []scenario.PersonaType{{
		Type:     "Skeptical specialist",
		Role:     "Cardiologist",
		Age:      52,
		Location: "Pune, Maharashtra, India",
	}}
	return td
}

func newTestGenerator(fake *llmtest.Fake) *Generator {
	g := NewGenerator(fake, "gpt-4o", discardLogger())
	g.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	return g
}

func pharmaPersonaFake() *llmtest.Fake {
	return &llmtest.Fake{
		Rules: []llmtest.Rule{
			{Match: matchSelect, Content: "```json\n[\"communication_style\", \"favorite_color\", \"knowledge_level\"]\n```"},
			{Match: matchCategory + "professional_context", Content: `{"current_role": "Consultant cardiologist", "location": "Delhi"}`},
			{Match: matchCategory + "knowledge_level", Err: errors.New("upstream timeout")},
			{Match: matchName, Content: `{"name": "Anjali Mehta"}`},
			{Match: matchRules, Content: `{"opening_behavior": "Checks her watch and says she has five patients waiting.",
				"response_style": "Clipped", "word_limit": "40",
				"triggers": {"engages": ["trial data"], "frustrates": ["vague claims"], "ends_conversation": ["pushiness"]}}`},
		},
		Default: `{"summary": "generated"}`,
	}
}

func TestGenerate_RequiredCategoriesAlwaysIncluded(t *testing.T) {
	g := newTestGenerator(pharmaPersonaFake())

	p, err := g.Generate(context.Background(), pharmaTemplate(), GenerateOptions{})
	require.NoError(t, err)

	included := p.Included()
	for _, c := range []CategoryName{DecisionCriteria, ProfessionalContext, TimeConstraints, SalesRepHistory} {
		assert.Contains(t, included, c)
	}
	assert.Contains(t, included, CommunicationStyle)
	assert.NotContains(t, included, CategoryName("favorite_color"))
	assert.Equal(t, "llm", p.GenerationMetadata.SelectedBy)
}

func TestGenerate_Identity(t *testing.T) {
	g := newTestGenerator(pharmaPersonaFake())

	p, err := g.Generate(context.Background(), pharmaTemplate(), GenerateOptions{Gender: "Female"})
	require.NoError(t, err)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "scn-1", p.ScenarioID)
	assert.Equal(t, "Anjali Mehta", p.Name)
	assert.Equal(t, "Cardiologist", p.Role)
	assert.Equal(t, 52, p.Age)
	assert.Equal(t, "female", p.Gender)
	assert.Equal(t, Location{City: "Pune", State: "Maharashtra", Country: "India", CurrentPhysicalLocation: "At work in Pune"}, p.Location)
	assert.Equal(t, "PERSUASION", p.Archetype)
	assert.Equal(t, 0.9, p.ArchetypeConfidence)
	assert.Equal(t, scenario.ModeAssess, p.GenerationMetadata.Mode)
	assert.Equal(t, scenario.FlexInt(40), p.ConversationRules.WordLimit)
}

func TestGenerate_FailedCategoryGetsPlaceholder(t *testing.T) {
	g := newTestGenerator(pharmaPersonaFake())

	p, err := g.Generate(context.Background(), pharmaTemplate(), GenerateOptions{})
	require.NoError(t, err)

	fields, ok := p.Detail(KnowledgeLevel)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"error": "Failed to generate knowledge_level"}, fields)
}

func TestGenerate_ValidatesAndFixesOnce(t *testing.T) {
	g := newTestGenerator(pharmaPersonaFake())

	p, err := g.Generate(context.Background(), pharmaTemplate(), GenerateOptions{})
	require.NoError(t, err)

	fields, _ := p.Detail(ProfessionalContext)
	assert.Equal(t, "Pune, Maharashtra", fields["location"])

	report := p.GenerationMetadata.Validation
	require.Len(t, report.Fixed, 1)
	assert.Contains(t, report.Fixed[0], CheckLocation)
	require.Len(t, report.Remaining, 1)
	assert.Contains(t, report.Remaining[0], CheckConversationContext)
}

func TestGenerate_DefaultsWhenEverythingFails(t *testing.T) {
	fake := &llmtest.Fake{Handler: func(_ llm.Request) (string, error) { return "", errors.New("down") }}
	g := newTestGenerator(fake)

	td := &scenario.TemplateData{GeneralInfo: scenario.GeneralInfo{Domain: "Retail"}}
	p, err := g.Generate(context.Background(), td, GenerateOptions{Mode: scenario.ModeTry})
	require.NoError(t, err)

	assert.Equal(t, "fallback", p.GenerationMetadata.SelectedBy)
	assert.Equal(t, []CategoryName{ProfessionalContext, CommunicationStyle, EmotionalState}, p.Included())
	assert.Equal(t, "Mumbai", p.Location.City)
	assert.Equal(t, "India", p.Location.Country)
	assert.Equal(t, 35, p.Age)
	assert.Equal(t, defaultRole, p.Name)
	assert.Equal(t, defaultRules.OpeningBehavior, p.ConversationRules.OpeningBehavior)
}

func TestGenerate_NoNameCallWhenNamed(t *testing.T) {
	fake := pharmaPersonaFake()
	td := pharmaTemplate()
	td.PersonaTypes[0].Name = "Dr. Kavita Rao"

	p, err := newTestGenerator(fake).Generate(context.Background(), td, GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Kavita Rao", p.Name)
	assert.Zero(t, fake.CallCount(matchName))
}

func TestGenerate_KeysMatchIncludedAfterJSON(t *testing.T) {
	p, err := newTestGenerator(pharmaPersonaFake()).Generate(context.Background(), pharmaTemplate(), GenerateOptions{})
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw struct {
		DetailCategories map[string]json.RawMessage `json:"detail_categories"`
		Included         []string                   `json:"detail_categories_included"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw.DetailCategories, len(raw.Included))
	for _, name := range raw.Included {
		assert.Contains(t, raw.DetailCategories, name)
	}
}

func TestGenerate_Errors(t *testing.T) {
	g := newTestGenerator(pharmaPersonaFake())

	_, err := g.Generate(context.Background(), nil, GenerateOptions{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, pharmaTemplate(), GenerateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseLocation(t *testing.T) {
	assert.Equal(t, Location{City: "Mumbai", State: "Maharashtra", Country: "India"}, parseLocation(""))
	assert.Equal(t, Location{City: "Austin", Country: "USA"}, parseLocation("Austin, USA"))
	assert.Equal(t, Location{City: "Austin", State: "Texas", Country: "USA"}, parseLocation("Austin, Texas, USA"))
}

func TestMergeCategories_CapsPicks(t *testing.T) {
	required := []CategoryName{DecisionCriteria, ProfessionalContext}
	picks := []CategoryName{
		PersonalBackground, CommunicationStyle, EmotionalState, PainPoints,
		KnowledgeLevel, ObjectionsConcerns, GoalsMotivations, CulturalContext,
	}
	got := mergeCategories(required, picks)
	assert.Len(t, got, maxSelected)
	assert.Contains(t, got, DecisionCriteria)
	assert.Contains(t, got, ProfessionalContext)
}

func TestMergeCategories_PadsToMinimum(t *testing.T) {
	got := mergeCategories(nil, nil)
	assert.Len(t, got, minSelected)
	for _, c := range fallbackCategories {
		assert.Contains(t, got, c)
	}

	got = mergeCategories([]CategoryName{EmotionalState}, []CategoryName{CommunicationStyle})
	assert.Len(t, got, minSelected)
	assert.Contains(t, got, EmotionalState)
	assert.Contains(t, got, CommunicationStyle)
	assert.Contains(t, got, ProfessionalContext)
}

func TestGenerate_UnknownPicksStillMeetMinimum(t *testing.T) {
	td := salesTemplate()
	td.GeneralInfo.Domain = "Retail Store Operations"
	td.ArchetypeClassification.PrimaryArchetype = "INVESTIGATION"
	fake := &llmtest.Fake{
		Rules:   []llmtest.Rule{{Match: matchSelect, Content: `["favorite_color", "shoe_size"]`}},
		Default: `{"summary": "generated"}`,
	}

	p, err := newTestGenerator(fake).Generate(context.Background(), td, GenerateOptions{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(p.Included()), minSelected)
	assert.NotContains(t, p.Included(), CategoryName("favorite_color"))
	assert.Equal(t, "llm", p.GenerationMetadata.SelectedBy)
}
