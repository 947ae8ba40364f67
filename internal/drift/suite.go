package drift

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// suiteConcurrency bounds how many profile runs talk to the provider at once.
const suiteConcurrency = 2

type SuiteResult struct {
	ScenarioID     string    `json:"scenario_id"`
	Mode           string    `json:"mode"`
	Kind           Kind      `json:"kind"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	Results        []*Result `json:"results"`
	Averages       Scores    `json:"averages"`
	OverallScore   float64   `json:"overall_score"`
	CompletionRate float64   `json:"completion_rate"`
	Weakest        string    `json:"weakest_profile,omitempty"`
}

// RunSuite runs in once per profile and aggregates the results. A failed
// profile run fails the suite so no partial report is produced.
func (t *Tester) RunSuite(ctx context.Context, in RunInput, profiles []Profile) (*SuiteResult, error) {
	if len(profiles) == 0 {
		profiles = Profiles(in.Kind)
	}

	suite := &SuiteResult{
		ScenarioID: in.ScenarioID,
		Mode:       in.Mode,
		Kind:       in.Kind,
		StartedAt:  t.now().UTC(),
		Results:    make([]*Result, len(profiles)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(suiteConcurrency)
	for i, p := range profiles {
		run := in
		run.Profile = p
		g.Go(func() error {
			res, err := t.Run(gctx, run)
			if err != nil {
				return err
			}
			suite.Results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	suite.aggregate()
	suite.FinishedAt = t.now().UTC()
	return suite, nil
}

func (s *SuiteResult) aggregate() {
	if len(s.Results) == 0 {
		return
	}
	if s.Mode == "" {
		s.Mode = s.Results[0].Mode
	}
	if s.Kind == "" {
		s.Kind = s.Results[0].Kind
	}

	var (
		sum       Scores
		overall   float64
		completed int
		weakest   *Result
	)
	for _, r := range s.Results {
		sum.RoleConsistency += r.Averages.RoleConsistency
		sum.PushBack += r.Averages.PushBack
		sum.TopicCoverage += r.Averages.TopicCoverage
		sum.EmotionalAppropriateness += r.Averages.EmotionalAppropriateness
		sum.LanguageStructure += r.Averages.LanguageStructure
		overall += r.OverallScore
		if r.Completed {
			completed++
		}
		if weakest == nil || r.OverallScore < weakest.OverallScore {
			weakest = r
		}
	}

	n := float64(len(s.Results))
	s.Averages = Scores{
		sum.RoleConsistency / n,
		sum.PushBack / n,
		sum.TopicCoverage / n,
		sum.EmotionalAppropriateness / n,
		sum.LanguageStructure / n,
	}
	s.OverallScore = overall / n
	s.CompletionRate = float64(completed) / n
	s.Weakest = weakest.Profile
}
