package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/apresai/roleplay/internal/archetype"
	"github.com/apresai/roleplay/internal/llm"
)

const (
	extractTemperature = 0.2
	extractMaxTokens   = 4000
)

// Extractor runs the four extraction passes against one document.
type Extractor struct {
	client llm.Client
	model  string
	log    *slog.Logger
}

func NewExtractor(client llm.Client, model string, logger *slog.Logger) *Extractor {
	return &Extractor{client: client, model: model, log: logger}
}

// Extract builds TemplateData from a scenario document. The passes run
// concurrently; a pass whose call or parse fails leaves its section empty and
// is logged, never returned. Only an empty document or a cancelled context is
// an error.
func (e *Extractor) Extract(ctx context.Context, document string) (*TemplateData, error) {
	if strings.TrimSpace(document) == "" {
		return nil, fmt.Errorf("scenario document is empty")
	}

	var (
		overview    overviewResult
		personas    personaTypesResult
		methodology methodologyResult
		assessment  assessmentResult
	)
	targets := []any{&overview, &personas, &methodology, &assessment}

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range passes {
		g.Go(func() error {
			e.runPass(gctx, p, document, targets[i])
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	td := &TemplateData{
		GeneralInfo:             overview.GeneralInfo,
		ContextOverview:         overview.ContextOverview,
		ModeDescriptions:        overview.ModeDescriptions,
		PersonaTypes:            personas.PersonaTypes,
		ArchetypeClassification: personas.ArchetypeClassification,
		DomainKnowledge: DomainKnowledge{
			Methodology:        methodology.Methodology,
			KeyFacts:           methodology.KeyFacts,
			Dos:                methodology.Dos,
			Donts:              methodology.Donts,
			ConversationTopics: methodology.ConversationTopics,
			EvaluationCriteria: assessment.EvaluationCriteria,
			CoachingRules:      assessment.CoachingRules,
		},
	}
	if td.PersonaTypes == nil {
		td.PersonaTypes = []PersonaType{}
	}

	if Correct(td) {
		e.log.Info("Archetype corrected",
			"domain", td.GeneralInfo.Domain,
			"archetype", td.ArchetypeClassification.PrimaryArchetype,
			"reason", td.ArchetypeClassification.Reason,
		)
	}

	return td, nil
}

func (e *Extractor) runPass(ctx context.Context, p pass, document string, target any) {
	text, err := llm.Text(ctx, e.client, llm.Request{
		Model:  e.model,
		System: extractorSystem,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: p.instruction + "\n\nSCENARIO DOCUMENT:\n" + document},
		},
		Temperature: extractTemperature,
		MaxTokens:   extractMaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		e.log.Warn("Extraction pass failed", "pass", p.name, "error", err)
		return
	}
	if err := llm.DecodeObject(text, target); err != nil {
		e.log.Warn("Extraction pass returned unparseable JSON", "pass", p.name, "error", err)
	}
}

// Correct re-derives the archetype from the domain and the assess-mode
// description and overwrites the upstream guess when a rule matches. It
// reports whether the classification changed.
func Correct(td *TemplateData) bool {
	got, rule, ok := archetype.Explain(td.GeneralInfo.Domain, td.ModeDescriptions.AssessMode.WhatHappens)
	if !ok {
		if n := archetype.Normalize(td.ArchetypeClassification.PrimaryArchetype); n != "" {
			td.ArchetypeClassification.PrimaryArchetype = string(n)
		}
		return false
	}

	prev := td.ArchetypeClassification.PrimaryArchetype
	if archetype.Normalize(prev) == got {
		td.ArchetypeClassification.PrimaryArchetype = string(got)
		return false
	}

	td.ArchetypeClassification.PrimaryArchetype = string(got)
	td.ArchetypeClassification.Corrected = true
	if prev == "" {
		td.ArchetypeClassification.Reason = fmt.Sprintf("matched %q rule", rule)
	} else {
		td.ArchetypeClassification.Reason = fmt.Sprintf("matched %q rule, replaced %s", rule, prev)
	}
	return true
}

// Archetype returns the scenario's classified archetype, or "" when unknown.
func (td *TemplateData) Archetype() archetype.Archetype {
	return archetype.Normalize(td.ArchetypeClassification.PrimaryArchetype)
}
