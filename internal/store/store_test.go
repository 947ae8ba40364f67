package store

import (
	"context"
	"testing"

	"github.com/apresai/roleplay/internal/persona"
	"github.com/apresai/roleplay/internal/prompt"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleScenario() *scenario.TemplateData {
	td := &scenario.TemplateData{}
	td.GeneralInfo.Title = "Pitching a CRM"
	td.GeneralInfo.Domain = "B2B sales"
	td.ArchetypeClassification.PrimaryArchetype = "PERSUASION"
	td.DomainKnowledge.Dos = scenario.StringList{"listen first"}
	return td
}

func samplePersona(scenarioID string) *persona.Instance {
	p := &persona.Instance{
		ScenarioID: scenarioID,
		Name:       "Priya Nair",
		Role:       "Procurement lead",
		Archetype:  "PERSUASION",
	}
	p.SetDetail(persona.CategoryName("professional_context"), map[string]any{"company": "Acme"})
	return p
}

// stores runs each test against every Store implementation.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"memory": NewMemory(),
		"dynamo": NewDynamo(newFakeDynamo(), "docs"),
	}
}

func TestScenarioRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			td := sampleScenario()
			require.NoError(t, s.PutScenario(ctx, td))
			require.NotEmpty(t, td.ID)

			got, err := s.GetScenario(ctx, td.ID)
			require.NoError(t, err)
			assert.Equal(t, td, got)

			_, err = s.GetScenario(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestScenarioOverwriteKeepsOrder(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, second := sampleScenario(), sampleScenario()
			second.GeneralInfo.Title = "Second"
			require.NoError(t, s.PutScenario(ctx, first))
			require.NoError(t, s.PutScenario(ctx, second))

			first.ArchetypeClassification.PrimaryArchetype = "NEGOTIATION"
			require.NoError(t, s.PutScenario(ctx, first))

			all, err := s.ListScenarios(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, first.ID, all[0].ID)
			assert.Equal(t, "NEGOTIATION", all[0].ArchetypeClassification.PrimaryArchetype)
			assert.Equal(t, "Second", all[1].GeneralInfo.Title)
		})
	}
}

func TestPersonaRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := samplePersona("sc-1")
			require.NoError(t, s.PutPersona(ctx, p))
			require.NoError(t, s.PutPersona(ctx, samplePersona("sc-2")))

			got, err := s.GetPersona(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, p.Name, got.Name)
			fields, ok := got.Detail(persona.CategoryName("professional_context"))
			require.True(t, ok)
			assert.Equal(t, "Acme", fields["company"])

			list, err := s.ListPersonas(ctx, "sc-1")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, p.ID, list[0].ID)

			_, err = s.GetPersona(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPromptRoundTrip(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &PromptRecord{
				ScenarioID: "sc-1",
				PersonaID:  "p-1",
				Mode:       scenario.ModeAssess,
				Layout:     prompt.LayoutArchitect.Name,
				Text:       "SECTION 1: ...",
				Validation: prompt.Validation{Valid: true, WordCount: 1600, HasFinish: true},
			}
			require.NoError(t, s.PutPrompt(ctx, rec))
			assert.NotEmpty(t, rec.ID)
			assert.False(t, rec.CreatedAt.IsZero())

			got, err := s.GetPrompt(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.Text, got.Text)
			assert.Equal(t, 1600, got.Validation.WordCount)
			assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
		})
	}
}

func TestMemoryIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	td := sampleScenario()
	require.NoError(t, s.PutScenario(ctx, td))

	td.GeneralInfo.Title = "mutated after put"
	got, err := s.GetScenario(ctx, td.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pitching a CRM", got.GeneralInfo.Title)
}
