package drift

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/prompt"
	"github.com/apresai/roleplay/internal/scenario"
)

const (
	// judgeFallbackScore is used for every sub-score when the judge fails.
	judgeFallbackScore = 50
	// capPenalty is subtracted from the overall score when the cap is hit.
	capPenalty = 15.0

	learnerTemperature   = 0.8
	characterTemperature = 0.7
	judgeTemperature     = 0.1
)

// Scores are the per-turn judge sub-scores, each 0-100.
type Scores struct {
	RoleConsistency          float64 `json:"role_consistency"`
	PushBack                 float64 `json:"push_back"`
	TopicCoverage            float64 `json:"topic_coverage"`
	EmotionalAppropriateness float64 `json:"emotional_appropriateness"`
	LanguageStructure        float64 `json:"language_structure"`
}

func fallbackScores() Scores {
	return Scores{judgeFallbackScore, judgeFallbackScore, judgeFallbackScore, judgeFallbackScore, judgeFallbackScore}
}

// Mean averages the five sub-scores.
func (s Scores) Mean() float64 {
	return (s.RoleConsistency + s.PushBack + s.TopicCoverage + s.EmotionalAppropriateness + s.LanguageStructure) / 5
}

func (s Scores) clamp() Scores {
	c := func(v float64) float64 {
		switch {
		case v < 0:
			return 0
		case v > 100:
			return 100
		}
		return v
	}
	return Scores{c(s.RoleConsistency), c(s.PushBack), c(s.TopicCoverage), c(s.EmotionalAppropriateness), c(s.LanguageStructure)}
}

type Turn struct {
	Number    int    `json:"turn"`
	Learner   string `json:"learner"`
	Character string `json:"character"`
	Scores    Scores `json:"scores"`
	Notes     string `json:"notes,omitempty"`
	// Judged is false when the judge call failed and Scores are fallbacks.
	Judged bool `json:"judged"`
}

// Ending records how the conversation closed.
type Ending struct {
	Completed      bool     `json:"completed"`
	FinishEmitted  bool     `json:"finish_emitted"`
	TurnsUsed      int      `json:"turns_used"`
	ClosingValence string   `json:"closing_valence"`
	Issues         []string `json:"issues"`
}

type RunInput struct {
	ScenarioID string
	Mode       string
	Prompt     string
	Profile    Profile
	Kind       Kind
	// MaxTurns overrides Kind's default cap when positive.
	MaxTurns int
	// Scenario, when set, gives the learner its role and topics.
	Scenario *scenario.TemplateData
}

type Result struct {
	ScenarioID   string    `json:"scenario_id"`
	Mode         string    `json:"mode"`
	Kind         Kind      `json:"kind"`
	Profile      string    `json:"profile"`
	MaxTurns     int       `json:"max_turns"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Turns        []Turn    `json:"turns"`
	Averages     Scores    `json:"averages"`
	OverallScore float64   `json:"overall_score"`
	Completed    bool      `json:"completed"`
	Ending       Ending    `json:"ending_verification"`
}

// Tester drives one simulated conversation at a time.
type Tester struct {
	client llm.Client
	model  string
	log    *slog.Logger
	now    func() time.Time
}

func NewTester(client llm.Client, model string, logger *slog.Logger) *Tester {
	return &Tester{client: client, model: model, log: logger, now: time.Now}
}

// Run alternates learner and character turns until the character emits
// [FINISH] or the turn cap is reached. Learner and character call failures
// abort the run with no result; judge failures score 50.
func (t *Tester) Run(ctx context.Context, in RunInput) (*Result, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("system prompt is empty")
	}
	if in.Kind == "" {
		in.Kind = KindDrift
	}
	if in.Mode == "" {
		in.Mode = scenario.ModeAssess
	}
	maxTurns := in.MaxTurns
	if maxTurns <= 0 {
		maxTurns = in.Kind.MaxTurns()
	}
	maxTurns = min(maxTurns, TurnLimit)

	res := &Result{
		ScenarioID: in.ScenarioID,
		Mode:       in.Mode,
		Kind:       in.Kind,
		Profile:    in.Profile.Name,
		MaxTurns:   maxTurns,
		StartedAt:  t.now().UTC(),
	}
	log := t.log.With("scenario_id", in.ScenarioID, "profile", in.Profile.Name)

	// Transcript from the character's point of view.
	var transcript []llm.Message
	finished := false

	for n := 1; n <= maxTurns; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		learner, err := t.learnerTurn(ctx, in, transcript)
		if err != nil {
			return nil, fmt.Errorf("learner turn %d: %w", n, err)
		}
		transcript = append(transcript, llm.Message{Role: llm.RoleUser, Content: learner})

		character, err := llm.Text(ctx, t.client, llm.Request{
			Model:       t.model,
			System:      in.Prompt,
			Messages:    transcript,
			Temperature: characterTemperature,
			MaxTokens:   600,
		})
		if err != nil {
			return nil, fmt.Errorf("character turn %d: %w", n, err)
		}
		character = strings.TrimSpace(character)
		transcript = append(transcript, llm.Message{Role: llm.RoleAssistant, Content: character})

		turn := Turn{Number: n, Learner: learner, Character: character}
		turn.Scores, turn.Notes, turn.Judged = t.judgeTurn(ctx, in, transcript, n)
		res.Turns = append(res.Turns, turn)

		log.Debug("Turn complete", "turn", n, "score", turn.Scores.Mean())

		if strings.Contains(character, prompt.FinishToken) {
			finished = true
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Ending = t.verifyEnding(ctx, in, res.Turns, finished, maxTurns)
	res.Completed = res.Ending.Completed
	res.Averages = averageTurns(res.Turns)
	res.OverallScore = res.Averages.Mean()
	if !res.Completed {
		res.OverallScore -= capPenalty
		if res.OverallScore < 0 {
			res.OverallScore = 0
		}
	}
	res.FinishedAt = t.now().UTC()

	log.Info("Drift run complete",
		"turns", len(res.Turns),
		"completed", res.Completed,
		"overall_score", res.OverallScore,
	)
	return res, nil
}

func (t *Tester) learnerTurn(ctx context.Context, in RunInput, transcript []llm.Message) (string, error) {
	// The learner sees the conversation with roles swapped.
	msgs := make([]llm.Message, 0, len(transcript)+1)
	for _, m := range transcript {
		role := llm.RoleUser
		if m.Role == llm.RoleUser {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	if len(transcript) == 0 {
		msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: "Begin the conversation with your opening line."})
	}

	text, err := llm.Text(ctx, t.client, llm.Request{
		Model:       t.model,
		System:      learnerSystem(in),
		Messages:    msgs,
		Temperature: learnerTemperature,
		MaxTokens:   300,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (t *Tester) judgeTurn(ctx context.Context, in RunInput, transcript []llm.Message, n int) (Scores, string, bool) {
	text, err := llm.Text(ctx, t.client, llm.Request{
		Model:       t.model,
		System:      judgeSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: judgeTurnPrompt(in, transcript, n)}},
		Temperature: judgeTemperature,
		MaxTokens:   400,
		JSONMode:    true,
	})
	var out struct {
		Scores
		Notes string `json:"notes"`
	}
	if err == nil {
		err = llm.DecodeObject(text, &out)
	}
	if err != nil {
		t.log.Warn("Judge failed, using fallback scores", "turn", n, "error", err)
		return fallbackScores(), "", false
	}
	return out.Scores.clamp(), out.Notes, true
}

func (t *Tester) verifyEnding(ctx context.Context, in RunInput, turns []Turn, finished bool, maxTurns int) Ending {
	e := Ending{
		Completed:      finished,
		FinishEmitted:  finished,
		TurnsUsed:      len(turns),
		ClosingValence: "unknown",
		Issues:         []string{},
	}
	if !finished {
		e.Issues = append(e.Issues, fmt.Sprintf("reached the %d-turn cap without %s", maxTurns, prompt.FinishToken))
	} else {
		last := strings.TrimSpace(turns[len(turns)-1].Character)
		if !strings.HasSuffix(last, prompt.FinishToken) {
			e.Issues = append(e.Issues, fmt.Sprintf("%s was not at the end of the final message", prompt.FinishToken))
		}
	}
	if len(turns) == 0 {
		return e
	}

	text, err := llm.Text(ctx, t.client, llm.Request{
		Model:       t.model,
		System:      judgeSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: judgeEndingPrompt(in, turns, finished)}},
		Temperature: judgeTemperature,
		MaxTokens:   400,
		JSONMode:    true,
	})
	var out struct {
		ClosingValence string `json:"closing_valence"`
		Appropriate    *bool  `json:"appropriate"`
		Notes          string `json:"notes"`
	}
	if err == nil {
		err = llm.DecodeObject(text, &out)
	}
	if err != nil {
		t.log.Warn("Ending judge failed", "error", err)
		return e
	}

	if v := strings.ToLower(strings.TrimSpace(out.ClosingValence)); v != "" {
		e.ClosingValence = v
	}
	if out.Appropriate != nil && !*out.Appropriate {
		msg := "closing valence does not fit the learner's performance"
		if out.Notes != "" {
			msg += ": " + out.Notes
		}
		e.Issues = append(e.Issues, msg)
	}
	return e
}

func averageTurns(turns []Turn) Scores {
	if len(turns) == 0 {
		return Scores{}
	}
	var sum Scores
	for _, t := range turns {
		sum.RoleConsistency += t.Scores.RoleConsistency
		sum.PushBack += t.Scores.PushBack
		sum.TopicCoverage += t.Scores.TopicCoverage
		sum.EmotionalAppropriateness += t.Scores.EmotionalAppropriateness
		sum.LanguageStructure += t.Scores.LanguageStructure
	}
	n := float64(len(turns))
	return Scores{
		sum.RoleConsistency / n,
		sum.PushBack / n,
		sum.TopicCoverage / n,
		sum.EmotionalAppropriateness / n,
		sum.LanguageStructure / n,
	}
}
