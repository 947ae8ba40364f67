// Package pipeline runs a scenario document through extraction, persona
// generation, prompt generation and, optionally, a drift test.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/roleplay/internal/drift"
	"github.com/apresai/roleplay/internal/ingest"
	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/persona"
	"github.com/apresai/roleplay/internal/progress"
	"github.com/apresai/roleplay/internal/prompt"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/apresai/roleplay/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/apresai/roleplay/internal/pipeline")

// Stage names used in PipelineError.
const (
	StageIngest  = "ingest"
	StageExtract = "extract"
	StagePersona = "persona"
	StagePrompt  = "prompt"
	StagePersist = "persist"
	StageDrift   = "drift"
)

type Options struct {
	// Input is a file path or URL. InputText, when set, is used instead.
	Input     string
	InputText string
	// Scenario, or FromScenario (a file written by scenario.Save), supplies
	// TemplateData directly and skips ingest and extraction.
	Scenario     *scenario.TemplateData
	FromScenario string

	Mode         string // learn_mode, assess_mode, try_mode
	Gender       string
	CustomPrompt string
	Layout       string // architect or extended
	MinWords     int

	// ExtractOnly stops after the scenario is extracted and saved.
	ExtractOnly bool

	// Drift runs the tester against the generated prompt. DriftProfile
	// limits the run to one profile; empty runs every profile of DriftKind.
	Drift        bool
	DriftKind    drift.Kind
	DriftProfile string
	MaxTurns     int

	// OutputDir receives scenario, persona, prompt and report files. Empty
	// writes nothing to disk.
	OutputDir string

	OnProgress progress.Callback
}

// Deps are the collaborators a run needs. Store and Uploader are optional.
type Deps struct {
	LLM      llm.Client
	Model    string
	Store    store.Store
	Uploader drift.Uploader
	Logger   *slog.Logger
}

// Result collects everything a run produced.
type Result struct {
	Scenario     *scenario.TemplateData
	Persona      *persona.Instance
	Prompt       *store.PromptRecord
	ScenarioFile string
	PersonaFile  string
	PromptFile   string
	Drift        *drift.SuiteResult
	ReportFile   string
	ReportURL    string
}

// Fields flattens the IDs and file locations for a job record.
func (r *Result) Fields() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	if r.Scenario != nil {
		set("scenario_id", r.Scenario.ID)
		set("archetype", r.Scenario.ArchetypeClassification.PrimaryArchetype)
	}
	if r.Persona != nil {
		set("persona_id", r.Persona.ID)
		set("persona_name", r.Persona.Name)
	}
	if r.Prompt != nil {
		set("prompt_id", r.Prompt.ID)
	}
	set("scenario_file", r.ScenarioFile)
	set("persona_file", r.PersonaFile)
	set("prompt_file", r.PromptFile)
	set("report_file", r.ReportFile)
	set("report_url", r.ReportURL)
	if r.Drift != nil {
		set("drift_score", fmt.Sprintf("%.1f", r.Drift.OverallScore))
	}
	return out
}

type PipelineError struct {
	Stage   string
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Run executes the pipeline. Extraction and persona generation degrade to
// defaults on individual LLM failures; a failed prompt generation, a failed
// drift run or a failed write is returned as a *PipelineError.
func Run(ctx context.Context, deps Deps, opts Options) (*Result, error) {
	if deps.LLM == nil {
		return nil, &PipelineError{Stage: StageIngest, Message: "no LLM client configured"}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	emit := opts.OnProgress
	if emit == nil {
		emit = progress.NopCallback
	}
	if opts.Mode == "" {
		opts.Mode = scenario.ModeAssess
	}
	mode, err := scenario.NormalizeMode(opts.Mode)
	if err != nil {
		return nil, &PipelineError{Stage: StageIngest, Message: "invalid mode", Err: err}
	}

	ctx, span := tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("mode", mode)))
	defer span.End()

	start := time.Now()
	res := &Result{}

	// Stage 1-2: scenario.
	td, err := loadScenario(ctx, deps, opts, emit, start, log)
	if err != nil {
		return nil, err
	}
	if td.ID == "" {
		td.ID = uuid.NewString()
	}
	res.Scenario = td
	span.SetAttributes(
		attribute.String("scenario_id", td.ID),
		attribute.String("archetype", td.ArchetypeClassification.PrimaryArchetype),
	)
	log = log.With("scenario_id", td.ID)

	if deps.Store != nil {
		if err := deps.Store.PutScenario(ctx, td); err != nil {
			return nil, &PipelineError{Stage: StagePersist, Message: "failed to save scenario", Err: err}
		}
	}
	if res.ScenarioFile, err = writeScenario(opts.OutputDir, td); err != nil {
		return nil, &PipelineError{Stage: StagePersist, Message: "failed to write scenario", Err: err}
	}

	if opts.ExtractOnly {
		done := progress.NewEvent(progress.StageComplete, "Scenario extracted", 1, start)
		done.ScenarioID = td.ID
		emit(done)
		return res, nil
	}

	// Stage 3: persona.
	emit(progress.NewEvent(progress.StagePersona, "Generating persona...", progress.Scale(progress.StagePersona, 0), start))
	pgen := persona.NewGenerator(deps.LLM, deps.Model, log)
	p, err := pgen.Generate(ctx, td, persona.GenerateOptions{
		Mode:         mode,
		Gender:       opts.Gender,
		CustomPrompt: opts.CustomPrompt,
	})
	if err != nil {
		return nil, &PipelineError{Stage: StagePersona, Message: "failed to generate persona", Err: err}
	}
	res.Persona = p
	if deps.Store != nil {
		if err := deps.Store.PutPersona(ctx, p); err != nil {
			return nil, &PipelineError{Stage: StagePersist, Message: "failed to save persona", Err: err}
		}
	}
	if res.PersonaFile, err = WritePersona(opts.OutputDir, p); err != nil {
		return nil, &PipelineError{Stage: StagePersist, Message: "failed to write persona", Err: err}
	}
	msg := fmt.Sprintf("Persona %s ready (%d categories)", p.Name, len(p.Details))
	emit(progress.NewEvent(progress.StagePersona, msg, progress.Scale(progress.StagePersona, 1), start))

	// Stage 4: prompt.
	layout := prompt.LayoutByName(opts.Layout)
	emit(progress.NewEvent(progress.StagePrompt, "Writing system prompt...", progress.Scale(progress.StagePrompt, 0), start))
	text, err := prompt.NewGenerator(deps.LLM, deps.Model, layout, log).Generate(ctx, td, p, mode)
	if err != nil {
		return nil, &PipelineError{Stage: StagePrompt, Message: "failed to generate system prompt", Err: err}
	}
	rec := &store.PromptRecord{
		ScenarioID: td.ID,
		PersonaID:  p.ID,
		Mode:       mode,
		Layout:     layout.Name,
		Text:       text,
		Validation: prompt.Validate(text, layout),
		CreatedAt:  time.Now().UTC(),
	}
	if deps.Store != nil {
		if err := deps.Store.PutPrompt(ctx, rec); err != nil {
			return nil, &PipelineError{Stage: StagePersist, Message: "failed to save prompt", Err: err}
		}
	}
	res.Prompt = rec
	if res.PromptFile, err = writePrompt(opts.OutputDir, td.ID, mode, text); err != nil {
		return nil, &PipelineError{Stage: StagePersist, Message: "failed to write prompt", Err: err}
	}
	emit(progress.NewEvent(progress.StagePrompt,
		fmt.Sprintf("Prompt ready (%d words)", rec.Validation.WordCount),
		progress.Scale(progress.StagePrompt, 1), start))

	// Stage 5: drift test.
	if opts.Drift {
		dr, err := RunDrift(ctx, deps, DriftOptions{
			Prompt:     text,
			Scenario:   td,
			Mode:       mode,
			Kind:       opts.DriftKind,
			Profile:    opts.DriftProfile,
			MaxTurns:   opts.MaxTurns,
			OutputDir:  opts.OutputDir,
			OnProgress: emit,
		})
		if err != nil {
			return nil, err
		}
		res.Drift = dr.Suite
		res.ReportFile = dr.ReportFile
		res.ReportURL = dr.ReportURL
	}

	done := progress.NewEvent(progress.StageComplete, "Pipeline complete", 1, start)
	done.ScenarioID = td.ID
	done.PersonaID = p.ID
	done.PromptFile = res.PromptFile
	done.ReportFile = res.ReportFile
	if res.Drift != nil {
		done.Score = res.Drift.OverallScore
	}
	emit(done)

	log.InfoContext(ctx, "Pipeline complete",
		"persona_id", p.ID,
		"prompt_words", rec.Validation.WordCount,
		"prompt_valid", rec.Validation.Valid,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)
	return res, nil
}

func loadScenario(ctx context.Context, deps Deps, opts Options, emit progress.Callback, start time.Time, log *slog.Logger) (*scenario.TemplateData, error) {
	if opts.Scenario != nil {
		return opts.Scenario, nil
	}
	if opts.FromScenario != "" {
		emit(progress.NewEvent(progress.StageExtract, "Loading scenario...", progress.Scale(progress.StageExtract, 0), start))
		td, err := scenario.Load(opts.FromScenario)
		if err != nil {
			return nil, &PipelineError{Stage: StageExtract, Message: "failed to load scenario", Err: err}
		}
		return td, nil
	}

	emit(progress.NewEvent(progress.StageIngest, "Reading scenario document...", 0, start))
	var (
		content *ingest.Content
		err     error
	)
	if opts.InputText != "" {
		content, err = ingest.FromText(opts.InputText, opts.MinWords)
	} else {
		if opts.Input == "" {
			return nil, &PipelineError{Stage: StageIngest, Message: "no input provided"}
		}
		content, err = ingest.Ingest(ctx, opts.Input, opts.MinWords)
	}
	if err != nil {
		return nil, &PipelineError{Stage: StageIngest, Message: "failed to read scenario document", Err: err}
	}
	log.InfoContext(ctx, "Scenario ingested", "source", content.Source, "words", content.WordCount)

	emit(progress.NewEvent(progress.StageExtract,
		fmt.Sprintf("Extracting scenario (%d words)...", content.WordCount),
		progress.Scale(progress.StageExtract, 0), start))
	td, err := scenario.NewExtractor(deps.LLM, deps.Model, log).Extract(ctx, content.Text)
	if err != nil {
		return nil, &PipelineError{Stage: StageExtract, Message: "failed to extract scenario", Err: err}
	}
	emit(progress.NewEvent(progress.StageExtract,
		fmt.Sprintf("Scenario extracted (%s)", td.ArchetypeClassification.PrimaryArchetype),
		progress.Scale(progress.StageExtract, 1), start))
	return td, nil
}

// DriftOptions configure a standalone drift test of an existing prompt.
type DriftOptions struct {
	Prompt string
	// Scenario is optional; it gives the simulated learner its role.
	Scenario   *scenario.TemplateData
	ScenarioID string
	Mode       string
	Kind       drift.Kind
	// Profile limits the run to one profile; empty runs every profile of Kind.
	Profile    string
	MaxTurns   int
	OutputDir  string
	OnProgress progress.Callback
}

// DriftResult is a finished suite and where its report went.
type DriftResult struct {
	Suite      *drift.SuiteResult
	ReportFile string
	ReportURL  string
}

// Fields flattens the result for a job record.
func (r *DriftResult) Fields() map[string]string {
	out := map[string]string{
		"scenario_id":     r.Suite.ScenarioID,
		"drift_score":     fmt.Sprintf("%.1f", r.Suite.OverallScore),
		"completion_rate": fmt.Sprintf("%.2f", r.Suite.CompletionRate),
	}
	if r.Suite.Weakest != "" {
		out["weakest_profile"] = r.Suite.Weakest
	}
	if r.ReportFile != "" {
		out["report_file"] = r.ReportFile
	}
	if r.ReportURL != "" {
		out["report_url"] = r.ReportURL
	}
	return out
}

// RunDrift tests a prompt against simulated learners and writes the report.
// Nothing is written unless every profile run completes.
func RunDrift(ctx context.Context, deps Deps, opts DriftOptions) (*DriftResult, error) {
	if deps.LLM == nil {
		return nil, &PipelineError{Stage: StageDrift, Message: "no LLM client configured"}
	}
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, &PipelineError{Stage: StageDrift, Message: "system prompt is empty"}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	emit := opts.OnProgress
	if emit == nil {
		emit = progress.NopCallback
	}
	mode := scenario.ModeAssess
	if opts.Mode != "" {
		m, err := scenario.NormalizeMode(opts.Mode)
		if err != nil {
			return nil, &PipelineError{Stage: StageDrift, Message: "invalid mode", Err: err}
		}
		mode = m
	}
	scenarioID := opts.ScenarioID
	if scenarioID == "" && opts.Scenario != nil {
		scenarioID = opts.Scenario.ID
	}
	if scenarioID == "" {
		scenarioID = "adhoc"
	}
	kind := opts.Kind
	if kind == "" {
		kind = drift.KindDrift
	}
	profiles := drift.Profiles(kind)
	if opts.Profile != "" {
		p, ok := drift.ProfileByName(opts.Profile)
		if !ok {
			return nil, &PipelineError{Stage: StageDrift, Message: fmt.Sprintf("unknown profile %q", opts.Profile)}
		}
		profiles = []drift.Profile{p}
	}

	ctx, span := tracer.Start(ctx, "pipeline.drift", trace.WithAttributes(
		attribute.String("scenario_id", scenarioID),
		attribute.String("kind", string(kind)),
		attribute.Int("profiles", len(profiles)),
	))
	defer span.End()

	start := time.Now()
	emit(progress.NewEvent(progress.StageDrift,
		fmt.Sprintf("Testing prompt against %d learner profile(s)...", len(profiles)),
		progress.Scale(progress.StageDrift, 0), start))

	suite, err := drift.NewTester(deps.LLM, deps.Model, log).RunSuite(ctx, drift.RunInput{
		ScenarioID: scenarioID,
		Mode:       mode,
		Prompt:     opts.Prompt,
		Kind:       kind,
		MaxTurns:   opts.MaxTurns,
		Scenario:   opts.Scenario,
	}, profiles)
	if err != nil {
		return nil, &PipelineError{Stage: StageDrift, Message: "drift test failed", Err: err}
	}
	out := &DriftResult{Suite: suite}

	name := drift.ReportName(kind, scenarioID, mode, suite.FinishedAt)
	if opts.OutputDir != "" {
		path, err := drift.WriteReport(filepath.Join(opts.OutputDir, "reports"), name, suite)
		if err != nil {
			return nil, &PipelineError{Stage: StageDrift, Message: "failed to write report", Err: err}
		}
		out.ReportFile = path
	}
	if deps.Uploader != nil {
		url, err := drift.UploadReport(ctx, deps.Uploader, name, suite)
		if err != nil {
			return nil, &PipelineError{Stage: StageDrift, Message: "failed to upload report", Err: err}
		}
		out.ReportURL = url
	}
	span.SetAttributes(attribute.Float64("overall_score", suite.OverallScore))
	emit(progress.NewEvent(progress.StageDrift,
		fmt.Sprintf("Drift test scored %.1f", suite.OverallScore),
		progress.Scale(progress.StageDrift, 1), start))
	return out, nil
}

func writeScenario(dir string, td *scenario.TemplateData) (string, error) {
	if dir == "" {
		return "", nil
	}
	path, err := outputPath(dir, "scenarios", td.ID+".json")
	if err != nil {
		return "", err
	}
	return path, scenario.Save(td, path)
}

// WritePersona saves p under dir/personas. An empty dir writes nothing.
func WritePersona(dir string, p *persona.Instance) (string, error) {
	if dir == "" {
		return "", nil
	}
	path, err := outputPath(dir, "personas", p.ID+".json")
	if err != nil {
		return "", err
	}
	return path, persona.Save(p, path)
}

func writePrompt(dir, scenarioID, mode, text string) (string, error) {
	if dir == "" {
		return "", nil
	}
	path, err := outputPath(dir, "prompts", PromptFileName(scenarioID, mode))
	if err != nil {
		return "", err
	}
	return path, prompt.Save(text, path)
}

// PromptFileName is <scenario>_<mode>_prompt.txt.
func PromptFileName(scenarioID, mode string) string {
	return fmt.Sprintf("%s_%s_prompt.txt", scenarioID, mode)
}

func outputPath(dir, sub, name string) (string, error) {
	full := filepath.Join(dir, sub)
	if err := os.MkdirAll(full, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", full, err)
	}
	return filepath.Join(full, name), nil
}
