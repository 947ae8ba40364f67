package progress

import "time"

// Stage identifies which pipeline stage is active.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageExtract  Stage = "extract"
	StagePersona  Stage = "persona"
	StagePrompt   Stage = "prompt"
	StageDrift    Stage = "drift"
	StageComplete Stage = "complete"
)

// Event carries progress information from the pipeline to the renderer.
type Event struct {
	Stage   Stage
	Message string
	Percent float64 // 0.0–1.0
	// Step and StepTotal count sub-units inside a stage (category calls,
	// drift turns). Zero when the stage has no sub-units.
	Step      int
	StepTotal int
	Elapsed   time.Duration
	Error     error

	// Set on StageComplete.
	ScenarioID string
	PersonaID  string
	PromptFile string
	ReportFile string
	Score      float64
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

// NewEvent creates an Event with common fields populated.
func NewEvent(stage Stage, msg string, pct float64, start time.Time) Event {
	return Event{
		Stage:   stage,
		Message: msg,
		Percent: pct,
		Elapsed: time.Since(start),
	}
}

// Span returns the percent window a stage occupies in a full run, so a
// stage can report its own 0..1 progress and callers can place it on the
// overall bar.
func Span(stage Stage) (lo, hi float64) {
	switch stage {
	case StageIngest:
		return 0, 0.05
	case StageExtract:
		return 0.05, 0.30
	case StagePersona:
		return 0.30, 0.60
	case StagePrompt:
		return 0.60, 0.85
	case StageDrift:
		return 0.85, 0.99
	case StageComplete:
		return 1, 1
	}
	return 0, 0
}

// Scale maps a stage-local fraction onto the overall bar.
func Scale(stage Stage, frac float64) float64 {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	lo, hi := Span(stage)
	return lo + (hi-lo)*frac
}
