package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/roleplay/internal/ingest"
	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/llm/llmtest"
	"github.com/apresai/roleplay/internal/progress"
	"github.com/apresai/roleplay/internal/prompt"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/apresai/roleplay/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const scenarioDoc = `CardioMax detailing. A pharmaceutical sales representative must pitch
CardioMax, a new once-daily statin, to Dr. Rao, a busy cardiologist in Pune, during a five minute
gap between clinic appointments. The doctor is skeptical of marketing claims and wants trial data.
The rep should follow the IMPACT model: introduce, probe, present evidence, handle objections and
close with a clear next step such as a sample drop or a follow-up visit next week.`

func generatedPrompt() string {
	var b strings.Builder
	for _, h := range prompt.LayoutArchitect.Headings() {
		b.WriteString(h + "\n" + strings.Repeat("stay in character ", 100) + "\n\n")
	}
	b.WriteString("When the conversation is over, end your final message with [FINISH].")
	return b.String()
}

// pipelineFake answers every call a full run makes, routing on the
// instruction text each component sends.
func pipelineFake(promptErr error) *llmtest.Fake {
	text := generatedPrompt()
	return &llmtest.Fake{Handler: func(req llm.Request) (string, error) {
		all := req.System
		for _, m := range req.Messages {
			all += "\n" + m.Content
		}
		switch {
		case strings.Contains(all, "Extract the general information"):
			return `{"general_info": {"domain": "Pharmaceutical Sales", "title": "CardioMax Detailing"},
				"mode_descriptions": {"assess_mode": {"what_happens": "Rep must pitch CardioMax", "ai_bot_role": "cardiologist", "learner_role": "sales rep"}}}`, nil
		case strings.Contains(all, "Identify the persona types"):
			return `{"persona_types": [{"type": "Skeptical cardiologist", "role": "Cardiologist", "age": 52, "location": "Pune, Maharashtra, India"}],
				"archetype_classification": {"primary_archetype": "PERSUASION", "confidence": 0.9}}`, nil
		case strings.Contains(all, "Extract the methodology"):
			return `{"methodology": {"name": "IMPACT", "steps": ["Introduce", "Probe"]}, "key_facts": ["Once daily"]}`, nil
		case strings.Contains(all, "how the learner is graded"):
			return `{"evaluation_criteria": ["Handles objections"]}`, nil
		case strings.Contains(all, "Select the detail categories"):
			return `["communication_style", "emotional_state"]`, nil
		case strings.Contains(all, "Generate realistic details for the category"):
			return `{"summary": "detail"}`, nil
		case strings.Contains(all, "Suggest a realistic full name"):
			return `{"name": "Anjali Rao"}`, nil
		case strings.Contains(all, "Write conversation rules"):
			return `{"opening_behavior": "Checks the time", "response_style": "Brief", "word_limit": 40}`, nil
		case strings.Contains(all, "Prompt Architect"):
			if promptErr != nil {
				return "", promptErr
			}
			return text, nil
		case strings.Contains(all, "role-playing a LEARNER"):
			return "Doctor, may I share the new trial data?", nil
		case strings.Contains(all, "Score turn"):
			return `{"role_consistency": 90, "push_back": 80, "topic_coverage": 80, "emotional_appropriateness": 80, "language_structure": 90}`, nil
		case strings.Contains(all, "Evaluate how this conversation ended"):
			return `{"closing_valence": "Positive", "appropriate": true}`, nil
		default:
			return "Leave the study with my assistant. [FINISH]", nil
		}
	}}
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) handle(e progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) stages() []progress.Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []progress.Stage
	for _, e := range l.events {
		if len(out) == 0 || out[len(out)-1] != e.Stage {
			out = append(out, e.Stage)
		}
	}
	return out
}

func TestRun_FullPipelineWithDrift(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	docs := store.NewMemory()
	events := &eventLog{}

	res, err := Run(ctx, Deps{LLM: pipelineFake(nil), Store: docs, Logger: discardLogger()}, Options{
		InputText:    scenarioDoc,
		MinWords:     20,
		Drift:        true,
		DriftProfile: "helpful",
		OutputDir:    dir,
		OnProgress:   events.handle,
	})
	require.NoError(t, err)

	assert.Equal(t, "PERSUASION", res.Scenario.ArchetypeClassification.PrimaryArchetype)
	assert.Equal(t, "Anjali Rao", res.Persona.Name)
	assert.Equal(t, res.Scenario.ID, res.Persona.ScenarioID)
	assert.True(t, res.Prompt.Validation.Valid)
	require.NotNil(t, res.Drift)
	require.Len(t, res.Drift.Results, 1)
	assert.True(t, res.Drift.Results[0].Completed)

	for _, f := range []string{res.ScenarioFile, res.PersonaFile, res.PromptFile, res.ReportFile} {
		assert.FileExists(t, f)
	}
	assert.Equal(t, PromptFileName(res.Scenario.ID, scenario.ModeAssess), filepath.Base(res.PromptFile))
	assert.True(t, strings.HasPrefix(filepath.Base(res.ReportFile), "drift_test_"+res.Scenario.ID))

	_, err = docs.GetScenario(ctx, res.Scenario.ID)
	assert.NoError(t, err)
	stored, err := docs.GetPersona(ctx, res.Persona.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Persona.Name, stored.Name)
	rec, err := docs.GetPrompt(ctx, res.Prompt.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Persona.ID, rec.PersonaID)

	assert.Equal(t, []progress.Stage{
		progress.StageIngest, progress.StageExtract, progress.StagePersona,
		progress.StagePrompt, progress.StageDrift, progress.StageComplete,
	}, events.stages())

	fields := res.Fields()
	assert.Equal(t, res.Scenario.ID, fields["scenario_id"])
	assert.Equal(t, res.Prompt.ID, fields["prompt_id"])
	assert.Contains(t, fields, "drift_score")
}

func TestRun_ExtractOnly(t *testing.T) {
	fake := pipelineFake(nil)
	dir := t.TempDir()

	res, err := Run(context.Background(), Deps{LLM: fake, Logger: discardLogger()}, Options{
		InputText:   scenarioDoc,
		ExtractOnly: true,
		OutputDir:   dir,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Scenario.ID)
	assert.Nil(t, res.Persona)
	assert.Len(t, fake.Calls(), 4)

	loaded, err := scenario.Load(res.ScenarioFile)
	require.NoError(t, err)
	assert.Equal(t, res.Scenario.ID, loaded.ID)
}

func TestRun_FromScenarioSkipsExtraction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "td.json")
	td := &scenario.TemplateData{
		ID:          "sc-fixed",
		GeneralInfo: scenario.GeneralInfo{Domain: "Pharmaceutical Sales", Title: "CardioMax"},
	}
	require.NoError(t, scenario.Save(td, path))

	fake := pipelineFake(nil)
	res, err := Run(context.Background(), Deps{LLM: fake, Logger: discardLogger()}, Options{FromScenario: path})
	require.NoError(t, err)
	assert.Equal(t, "sc-fixed", res.Scenario.ID)
	assert.Empty(t, res.PromptFile)
	assert.Zero(t, fake.CallCount("Extract the general information"))
}

func TestRun_PromptFailure(t *testing.T) {
	_, err := Run(context.Background(), Deps{LLM: pipelineFake(errors.New("provider down")), Logger: discardLogger()}, Options{
		InputText: scenarioDoc,
	})
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StagePrompt, perr.Stage)
	assert.ErrorContains(t, err, "provider down")
}

func TestRun_InputTooShort(t *testing.T) {
	_, err := Run(context.Background(), Deps{LLM: pipelineFake(nil)}, Options{
		InputText: "too short",
		MinWords:  ingest.DefaultMinWords,
	})
	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageIngest, perr.Stage)
	assert.ErrorIs(t, err, ingest.ErrTooShort)
}

func TestRun_Validation(t *testing.T) {
	_, err := Run(context.Background(), Deps{}, Options{InputText: scenarioDoc})
	assert.ErrorContains(t, err, "no LLM client")

	_, err = Run(context.Background(), Deps{LLM: pipelineFake(nil)}, Options{InputText: scenarioDoc, Mode: "debate"})
	assert.ErrorContains(t, err, "invalid mode")

	_, err = Run(context.Background(), Deps{LLM: pipelineFake(nil)}, Options{})
	assert.ErrorContains(t, err, "no input provided")

	_, err = Run(context.Background(), Deps{LLM: pipelineFake(nil)}, Options{
		InputText: scenarioDoc, Drift: true, DriftProfile: "nobody",
	})
	assert.ErrorContains(t, err, `unknown profile "nobody"`)
}

func TestPipelineErrorFormat(t *testing.T) {
	err := &PipelineError{Stage: "persist", Message: "failed to save", Err: os.ErrPermission}
	assert.Equal(t, "[persist] failed to save: permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, "[ingest] no input", (&PipelineError{Stage: "ingest", Message: "no input"}).Error())
}

type memUploader struct {
	keys []string
}

func (u *memUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	u.keys = append(u.keys, key)
	return "https://cdn.example.com/" + key, nil
}

func TestRunDrift_StrengthSuite(t *testing.T) {
	up := &memUploader{}
	dir := t.TempDir()

	res, err := RunDrift(context.Background(), Deps{LLM: pipelineFake(nil), Uploader: up, Logger: discardLogger()}, DriftOptions{
		Prompt:     generatedPrompt(),
		ScenarioID: "sc-9",
		Mode:       "try",
		Kind:       "strength",
		OutputDir:  dir,
	})
	require.NoError(t, err)
	assert.Len(t, res.Suite.Results, 4)
	assert.Contains(t, filepath.Base(res.ReportFile), "prompt_strength_sc-9_try_mode_")
	require.Len(t, up.keys, 1)
	assert.Equal(t, "https://cdn.example.com/"+up.keys[0], res.ReportURL)
	assert.Equal(t, "sc-9", res.Fields()["scenario_id"])
}

func TestRunDrift_Errors(t *testing.T) {
	_, err := RunDrift(context.Background(), Deps{LLM: pipelineFake(nil)}, DriftOptions{Prompt: "  "})
	assert.ErrorContains(t, err, "system prompt is empty")

	fail := &llmtest.Fake{Default: "", Rules: []llmtest.Rule{{Match: "LEARNER", Err: errors.New("quota")}}}
	dir := t.TempDir()
	_, err = RunDrift(context.Background(), Deps{LLM: fail}, DriftOptions{Prompt: generatedPrompt(), OutputDir: dir})
	assert.ErrorContains(t, err, "quota")

	entries, _ := os.ReadDir(filepath.Join(dir, "reports"))
	assert.Empty(t, entries)
}
