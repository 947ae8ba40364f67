package drift

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/llm/llmtest"
	"github.com/apresai/roleplay/internal/scenario"
)

const testPrompt = "SECTION 1: CRITICAL RULES\nYou are Dr. Anjali Mehta. End with [FINISH]."

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// script builds a fake whose character finishes on finishAt (0 = never).
func script(finishAt int32, judgeErr bool) (*llmtest.Fake, *atomic.Int32) {
	var characterCalls atomic.Int32
	fake := &llmtest.Fake{
		Handler: func(req llm.Request) (string, error) {
			switch {
			case strings.HasPrefix(req.System, "You are role-playing a LEARNER"):
				return "Good morning doctor, do you have a minute?", nil
			case req.System == judgeSystem && strings.Contains(req.Messages[0].Content, "Score turn"):
				if judgeErr {
					return "", errors.New("judge unavailable")
				}
				return `{"role_consistency": 90, "push_back": 80, "topic_coverage": 70, "emotional_appropriateness": 120, "language_structure": 60, "notes": "ok"}`, nil
			case req.System == judgeSystem:
				return `{"closing_valence": "Positive", "appropriate": true}`, nil
			default:
				n := characterCalls.Add(1)
				if finishAt > 0 && n >= finishAt {
					return "Send me the study and we'll talk next week. [FINISH]", nil
				}
				return "I have two minutes. What is it?", nil
			}
		},
	}
	return fake, &characterCalls
}

func newTestTester(fake *llmtest.Fake) *Tester {
	tr := NewTester(fake, "gpt-4o", discardLogger())
	tr.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return tr
}

func TestRun_FinishEndsConversation(t *testing.T) {
	fake, calls := script(2, false)
	res, err := newTestTester(fake).Run(context.Background(), RunInput{
		ScenarioID: "scn-1",
		Prompt:     testPrompt,
		Profile:    Helpful,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, res.Turns, 2)
	assert.True(t, res.Completed)
	assert.True(t, res.Ending.FinishEmitted)
	assert.Equal(t, 2, res.Ending.TurnsUsed)
	assert.Equal(t, "positive", res.Ending.ClosingValence)
	assert.Empty(t, res.Ending.Issues)
	assert.Equal(t, 8, res.MaxTurns)
	assert.Equal(t, scenario.ModeAssess, res.Mode)

	// 120 is clamped to 100.
	assert.Equal(t, 100.0, res.Turns[0].Scores.EmotionalAppropriateness)
	assert.InDelta(t, 80.0, res.OverallScore, 0.001)
}

func TestRun_CapWithoutFinish(t *testing.T) {
	fake, calls := script(0, false)
	res, err := newTestTester(fake).Run(context.Background(), RunInput{
		ScenarioID: "scn-1",
		Prompt:     testPrompt,
		Profile:    Dismissive,
		MaxTurns:   3,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, res.Completed)
	assert.False(t, res.Ending.Completed)
	assert.False(t, res.Ending.FinishEmitted)
	assert.Equal(t, 3, res.Ending.TurnsUsed)
	require.NotEmpty(t, res.Ending.Issues)
	assert.Contains(t, res.Ending.Issues[0], "3-turn cap")
	assert.InDelta(t, 80.0-capPenalty, res.OverallScore, 0.001)
}

func TestRun_KindCaps(t *testing.T) {
	fake, _ := script(0, false)
	res, err := newTestTester(fake).Run(context.Background(), RunInput{Prompt: testPrompt, Profile: Strength, Kind: KindStrength})
	require.NoError(t, err)
	assert.Len(t, res.Turns, 12)

	assert.Equal(t, 8, KindDrift.MaxTurns())
	assert.Equal(t, 15, KindComprehensive.MaxTurns())
}

func TestRun_TurnLimit(t *testing.T) {
	fake, calls := script(0, false)
	res, err := newTestTester(fake).Run(context.Background(), RunInput{Prompt: testPrompt, Profile: Dismissive, MaxTurns: 10000})
	require.NoError(t, err)
	assert.Equal(t, TurnLimit, res.MaxTurns)
	assert.Len(t, res.Turns, TurnLimit)
	assert.Equal(t, int32(TurnLimit), calls.Load())
}

func TestRun_JudgeFailureScoresFifty(t *testing.T) {
	fake, _ := script(1, true)
	res, err := newTestTester(fake).Run(context.Background(), RunInput{Prompt: testPrompt, Profile: Confused})
	require.NoError(t, err)

	require.Len(t, res.Turns, 1)
	assert.False(t, res.Turns[0].Judged)
	assert.Equal(t, fallbackScores(), res.Turns[0].Scores)
	assert.Equal(t, 50.0, res.OverallScore)
}

func TestRun_FinishNotAtEnd(t *testing.T) {
	fake := &llmtest.Fake{Handler: func(req llm.Request) (string, error) {
		if req.System == testPrompt {
			return "[FINISH] Actually, one more thing.", nil
		}
		return `{}`, nil
	}}
	res, err := newTestTester(fake).Run(context.Background(), RunInput{Prompt: testPrompt, Profile: Mixed})
	require.NoError(t, err)

	assert.True(t, res.Completed)
	require.Len(t, res.Ending.Issues, 1)
	assert.Contains(t, res.Ending.Issues[0], "not at the end")
}

func TestRun_CharacterErrorAborts(t *testing.T) {
	fake := &llmtest.Fake{Handler: func(req llm.Request) (string, error) {
		if req.System == testPrompt {
			return "", errors.New("provider down")
		}
		return "hello", nil
	}}
	res, err := newTestTester(fake).Run(context.Background(), RunInput{Prompt: testPrompt, Profile: Helpful})
	assert.Nil(t, res)
	assert.ErrorContains(t, err, "character turn 1")
}

func TestRun_Validation(t *testing.T) {
	_, err := newTestTester(&llmtest.Fake{}).Run(context.Background(), RunInput{Prompt: "  "})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake, _ := script(0, false)
	_, err = newTestTester(fake).Run(ctx, RunInput{Prompt: testPrompt, Profile: Helpful})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_LearnerSeesScenario(t *testing.T) {
	fake, _ := script(1, false)
	td := &scenario.TemplateData{
		ModeDescriptions: scenario.ModeDescriptions{AssessMode: scenario.ModeDescription{LearnerRole: "Sales representative", WhatHappens: "Pitch CardioMax"}},
		DomainKnowledge:  scenario.DomainKnowledge{ConversationTopics: scenario.StringList{"efficacy", "dosing"}},
	}
	_, err := newTestTester(fake).Run(context.Background(), RunInput{Prompt: testPrompt, Profile: Helpful, Scenario: td})
	require.NoError(t, err)

	var learnerSystem string
	for _, c := range fake.Calls() {
		if strings.HasPrefix(c.System, "You are role-playing a LEARNER") {
			learnerSystem = c.System
		}
	}
	assert.Contains(t, learnerSystem, "YOUR ROLE: Sales representative")
	assert.Contains(t, learnerSystem, "efficacy; dosing")
	assert.Contains(t, learnerSystem, "HELPFUL")
}
