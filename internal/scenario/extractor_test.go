package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/roleplay/internal/llm/llmtest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const (
	matchOverview    = "Extract the general information"
	matchPersonas    = "Identify the persona types"
	matchMethodology = "Extract the methodology"
	matchAssessment  = "how the learner is graded"
)

const pharmaDoc = `Dr. Rao is a cardiologist in Pune. A pharmaceutical sales representative
must pitch CardioMax during a short clinic visit.`

func pharmaFake() *llmtest.Fake {
	return &llmtest.Fake{
		Rules: []llmtest.Rule{
			{Match: matchOverview, Content: "```json\n" + `{
				"general_info": {"domain": "Pharmaceutical Sales", "title": "CardioMax Detailing", "language": "English"},
				"context_overview": {"title": "Clinic visit", "description": "Short visit with a busy cardiologist"},
				"mode_descriptions": {
					"learn_mode": {"what_happens": "Coach explains the detailing model", "ai_bot_role": "trainer", "learner_role": "sales rep"},
					"assess_mode": {"what_happens": "Learner must pitch CardioMax to the doctor", "ai_bot_role": "cardiologist", "learner_role": "sales rep"},
					"try_mode": {"what_happens": "Practice pitch", "ai_bot_role": "cardiologist", "learner_role": "sales rep"}
				}
			}` + "\n```"},
			{Match: matchPersonas, Content: `{"persona_types": [{"type": "Skeptical cardiologist", "role": "Cardiologist", "age": "52 years", "location": "Pune, Maharashtra, India"}],
				"archetype_classification": {"primary_archetype": "HELP_SEEKING", "confidence": 0.4}}`},
			{Match: matchMethodology, Content: `Here you go: {"methodology": {"name": "IMPACT", "steps": ["Introduce", "Probe", {"step": "Close"}]},
				"key_facts": ["CardioMax lowers LDL by 40%", {"fact": "Once daily", "source": "label"}, 12],
				"dos": ["Ask open questions"], "donts": ["Overstate efficacy",], "conversation_topics": ["efficacy"]}`},
			{Match: matchAssessment, Content: `{"evaluation_criteria": ["Handles objections"], "coaching_rules": ["Praise specific behavior"]}`},
		},
	}
}

func TestExtract_MergesPasses(t *testing.T) {
	fake := pharmaFake()
	ex := NewExtractor(fake, "gpt-4o", discardLogger())

	td, err := ex.Extract(context.Background(), pharmaDoc)
	require.NoError(t, err)

	assert.Equal(t, "Pharmaceutical Sales", td.GeneralInfo.Domain)
	assert.Equal(t, "cardiologist", td.ModeDescriptions.AssessMode.AIBotRole)
	require.Len(t, td.PersonaTypes, 1)
	assert.Equal(t, FlexInt(52), td.PersonaTypes[0].Age)
	assert.Equal(t, "IMPACT", td.DomainKnowledge.Methodology.Name)
	assert.Equal(t, StringList{"Introduce", "Probe", "Close"}, td.DomainKnowledge.Methodology.Steps)
	assert.Equal(t, StringList{"Overstate efficacy"}, td.DomainKnowledge.Donts)
	assert.Equal(t, StringList{"Handles objections"}, td.DomainKnowledge.EvaluationCriteria)
	assert.Len(t, fake.Calls(), 4)
}

func TestExtract_PharmaPitchIsPersuasion(t *testing.T) {
	ex := NewExtractor(pharmaFake(), "", discardLogger())

	td, err := ex.Extract(context.Background(), pharmaDoc)
	require.NoError(t, err)

	assert.Equal(t, "PERSUASION", td.ArchetypeClassification.PrimaryArchetype)
	assert.True(t, td.ArchetypeClassification.Corrected)
	assert.Contains(t, td.ArchetypeClassification.Reason, "HELP_SEEKING")
}

func TestExtract_KeyFactsAreStrings(t *testing.T) {
	ex := NewExtractor(pharmaFake(), "", discardLogger())
	td, err := ex.Extract(context.Background(), pharmaDoc)
	require.NoError(t, err)

	require.Len(t, td.DomainKnowledge.KeyFacts, 3)
	assert.Equal(t, "12", td.DomainKnowledge.KeyFacts[2])

	data, err := json.Marshal(td)
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	dk := generic["domain_knowledge"].(map[string]any)
	for _, key := range []string{"key_facts", "dos", "donts"} {
		for _, v := range dk[key].([]any) {
			_, ok := v.(string)
			assert.True(t, ok, "%s element %v is not a string", key, v)
		}
	}

	var back TemplateData
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *td, back)
}

func TestExtract_FailedPassDegradesSilently(t *testing.T) {
	fake := pharmaFake()
	fake.Rules = append([]llmtest.Rule{
		{Match: matchMethodology, Err: errors.New("rate limited")},
		{Match: matchAssessment, Content: "I'm sorry, I can't produce JSON"},
	}, fake.Rules...)

	ex := NewExtractor(fake, "", discardLogger())
	td, err := ex.Extract(context.Background(), pharmaDoc)
	require.NoError(t, err)

	assert.Empty(t, td.DomainKnowledge.Methodology.Name)
	assert.Empty(t, td.DomainKnowledge.KeyFacts)
	assert.Empty(t, td.DomainKnowledge.CoachingRules)
	assert.Equal(t, "Pharmaceutical Sales", td.GeneralInfo.Domain)
}

func TestExtract_EmptyDocument(t *testing.T) {
	ex := NewExtractor(&llmtest.Fake{}, "", discardLogger())
	_, err := ex.Extract(context.Background(), "   \n")
	assert.Error(t, err)
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := NewExtractor(pharmaFake(), "", discardLogger())
	_, err := ex.Extract(ctx, pharmaDoc)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorrect(t *testing.T) {
	tests := []struct {
		name          string
		domain        string
		whatHappens   string
		upstream      string
		want          string
		wantCorrected bool
	}{
		{name: "overrides wrong guess", domain: "Sales", whatHappens: "sell the plan", upstream: "NEGOTIATION", want: "PERSUASION", wantCorrected: true},
		{name: "agreeing guess unchanged", domain: "Support", whatHappens: "customer has a problem", upstream: "help seeking", want: "HELP_SEEKING"},
		{name: "no rule keeps upstream", domain: "Audit", whatHappens: "interview the witness", upstream: "INVESTIGATION", want: "INVESTIGATION"},
		{name: "fills empty guess", domain: "HR", whatHappens: "address a conflict", upstream: "", want: "CONFRONTATION", wantCorrected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := &TemplateData{
				GeneralInfo:             GeneralInfo{Domain: tt.domain},
				ModeDescriptions:        ModeDescriptions{AssessMode: ModeDescription{WhatHappens: tt.whatHappens}},
				ArchetypeClassification: ArchetypeClassification{PrimaryArchetype: tt.upstream},
			}
			assert.Equal(t, tt.wantCorrected, Correct(td))
			assert.Equal(t, tt.want, td.ArchetypeClassification.PrimaryArchetype)
		})
	}
}
