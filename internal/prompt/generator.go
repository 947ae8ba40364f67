package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/apresai/roleplay/internal/archetype"
	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/persona"
	"github.com/apresai/roleplay/internal/scenario"
)

const (
	promptMaxTokens   = 8192
	promptTemperature = 0.7
	targetWords       = "2500-4000"
)

// Generator writes system prompts with a single LLM call.
type Generator struct {
	client llm.Client
	model  string
	layout Layout
	log    *slog.Logger
}

func NewGenerator(client llm.Client, model string, layout Layout, logger *slog.Logger) *Generator {
	if len(layout.Sections) == 0 {
		layout = LayoutArchitect
	}
	return &Generator{client: client, model: model, layout: layout, log: logger}
}

func (g *Generator) Layout() Layout {
	return g.layout
}

// Generate writes the system prompt for p in mode. There is no fallback
// prompt: any failure is returned. Validation problems are logged only.
func (g *Generator) Generate(ctx context.Context, td *scenario.TemplateData, p *persona.Instance, mode string) (string, error) {
	if td == nil || p == nil {
		return "", fmt.Errorf("template data and persona are required")
	}

	meta, err := buildMetaPrompt(td, p, mode, g.layout)
	if err != nil {
		return "", err
	}

	text, err := llm.Text(ctx, g.client, llm.Request{
		Model:       g.model,
		System:      architectSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: meta}},
		Temperature: promptTemperature,
		MaxTokens:   promptMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate system prompt: %w", err)
	}

	out := strings.TrimSpace(unfence(text))
	if out == "" {
		return "", fmt.Errorf("generate system prompt: empty response")
	}

	v := Validate(out, g.layout)
	for _, issue := range v.Issues {
		g.log.Warn("Prompt validation issue", "persona_id", p.ID, "issue", issue)
	}
	for _, w := range v.Warnings {
		g.log.Warn("Prompt validation warning", "persona_id", p.ID, "warning", w)
	}
	g.log.Info("System prompt generated",
		"persona_id", p.ID,
		"mode", mode,
		"layout", g.layout.Name,
		"words", v.WordCount,
		"valid", v.Valid,
	)
	return out, nil
}

func buildMetaPrompt(td *scenario.TemplateData, p *persona.Instance, mode string, layout Layout) (string, error) {
	tdJSON, err := json.MarshalIndent(td, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal template data: %w", err)
	}
	pJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal persona: %w", err)
	}

	md := td.ModeDescriptions.Mode(mode)

	var b strings.Builder
	fmt.Fprintf(&b, "Write the complete system prompt for the %s of this training scenario.\n\n", modeLabel(mode))

	if mode == scenario.ModeLearn {
		b.WriteString(trainerDirective)
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "METHODOLOGY TO TEACH: %s\n", td.DomainKnowledge.Methodology.Name)
		for i, step := range td.DomainKnowledge.Methodology.Steps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
		if len(td.DomainKnowledge.CoachingRules) > 0 {
			fmt.Fprintf(&b, "COACHING RULES: %s\n", strings.Join(td.DomainKnowledge.CoachingRules, "; "))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(archetypeDirective(archetype.Normalize(p.Archetype)))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "WHAT HAPPENS: %s\nAI PLAYS: %s\nLEARNER PLAYS: %s\n\n", md.WhatHappens, md.AIBotRole, md.LearnerRole)

	b.WriteString("REQUIRED STRUCTURE. Use these headings verbatim, in this order, each on its own line:\n")
	for i, h := range layout.Headings() {
		fmt.Fprintf(&b, "%s\n   %s\n", h, layout.Sections[i].Brief)
	}

	fmt.Fprintf(&b, `
ENDING CONVENTION: The prompt must instruct the AI to end its final message with the literal token %s
and never to use that token at any other time.

LENGTH: %s words. Be specific to this persona and scenario; no placeholders, no generic filler.

SCENARIO TEMPLATE DATA:
%s

PERSONA:
%s
`, FinishToken, targetWords, tdJSON, pJSON)

	return b.String(), nil
}

func modeLabel(mode string) string {
	switch mode {
	case scenario.ModeLearn:
		return "learn mode (AI as trainer)"
	case scenario.ModeTry:
		return "try mode (AI in character, practice)"
	default:
		return "assess mode (AI in character, graded)"
	}
}

var outerFence = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\\n(.*?)\\n?\\s*```\\s*$")

func unfence(text string) string {
	if m := outerFence.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return text
}

// Save writes a prompt to path.
func Save(text, path string) error {
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("write prompt to %s: %w", path, err)
	}
	return nil
}

// Load reads a prompt from path.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt from %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("prompt %s is empty", path)
	}
	return string(data), nil
}
