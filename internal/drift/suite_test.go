package drift

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/llm/llmtest"
)

func TestRunSuite_AllProfiles(t *testing.T) {
	fake, _ := script(1, false)
	suite, err := newTestTester(fake).RunSuite(context.Background(), RunInput{
		ScenarioID: "scn-1",
		Prompt:     testPrompt,
		Kind:       KindStrength,
	}, nil)
	require.NoError(t, err)

	require.Len(t, suite.Results, 4)
	for i, p := range StrengthProfiles {
		assert.Equal(t, p.Name, suite.Results[i].Profile)
	}
	assert.Equal(t, 1.0, suite.CompletionRate)
	assert.InDelta(t, 80.0, suite.OverallScore, 0.001)
	assert.Equal(t, KindStrength, suite.Kind)
}

func TestRunSuite_FailsWhole(t *testing.T) {
	fake := &llmtest.Fake{Handler: func(req llm.Request) (string, error) {
		if strings.Contains(req.System, "DISMISSIVE") {
			return "", errors.New("learner failed")
		}
		if req.System == testPrompt {
			return "bye [FINISH]", nil
		}
		return `{}`, nil
	}}
	suite, err := newTestTester(fake).RunSuite(context.Background(), RunInput{Prompt: testPrompt}, DriftProfiles)
	assert.Nil(t, suite)
	assert.ErrorContains(t, err, "learner failed")
}

func TestSuiteAggregate_Weakest(t *testing.T) {
	s := &SuiteResult{Results: []*Result{
		{Profile: "HELPFUL", OverallScore: 90, Completed: true, Averages: Scores{90, 90, 90, 90, 90}},
		{Profile: "DISMISSIVE", OverallScore: 40, Averages: Scores{50, 50, 50, 60, 40}},
	}}
	s.aggregate()

	assert.Equal(t, "DISMISSIVE", s.Weakest)
	assert.Equal(t, 0.5, s.CompletionRate)
	assert.Equal(t, 65.0, s.OverallScore)
	assert.Equal(t, 70.0, s.Averages.RoleConsistency)
}

func TestProfiles(t *testing.T) {
	assert.Len(t, Profiles(KindDrift), 4)
	assert.Len(t, Profiles(KindComprehensive), 8)

	p, ok := ProfileByName("coaching")
	require.True(t, ok)
	assert.Equal(t, Coaching, p)

	_, ok = ProfileByName("nobody")
	assert.False(t, ok)
}
