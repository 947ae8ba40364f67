package persona

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/apresai/roleplay/internal/archetype"
	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/scenario"
)

const (
	minSelected = 3
	maxSelected = 8

	personaTemperature = 0.7
	categoryMaxTokens  = 1200

	// Fan-out cap for category content calls.
	categoryConcurrency = maxSelected

	defaultCity    = "Mumbai"
	defaultState   = "Maharashtra"
	defaultCountry = "India"
	defaultAge     = 35
	defaultGender  = "female"
	defaultRole    = "Professional"
)

// Categories used to pad a selection when the selection call fails.
var fallbackCategories = []CategoryName{ProfessionalContext, CommunicationStyle, EmotionalState}

var defaultRules = ConversationRules{
	OpeningBehavior: "Greets the learner briefly and waits for them to explain why they are here.",
	ResponseStyle:   "Natural, conversational replies of one to three sentences.",
	WordLimit:       60,
	Triggers: Triggers{
		Engages:          scenario.StringList{"Relevant questions about their situation", "Specific, credible information"},
		Frustrates:       scenario.StringList{"Generic scripts", "Ignoring what they just said"},
		EndsConversation: scenario.StringList{"Repeated pressure after a clear no", "Running out of time"},
	},
}

type GenerateOptions struct {
	// Mode is learn_mode, assess_mode or try_mode. Empty means assess_mode.
	Mode         string
	Gender       string
	CustomPrompt string
}

// Generator builds persona instances from scenario TemplateData.
type Generator struct {
	client llm.Client
	model  string
	log    *slog.Logger
	now    func() time.Time
}

func NewGenerator(client llm.Client, model string, logger *slog.Logger) *Generator {
	return &Generator{client: client, model: model, log: logger, now: time.Now}
}

// Generate builds one persona. Individual LLM failures fall back to local
// defaults; the only errors are missing template data and a cancelled
// context.
func (g *Generator) Generate(ctx context.Context, td *scenario.TemplateData, opts GenerateOptions) (*Instance, error) {
	if td == nil {
		return nil, fmt.Errorf("template data is required")
	}
	if opts.Mode == "" {
		opts.Mode = scenario.ModeAssess
	}

	// 1. Base identity.
	p := baseIdentity(td, opts)
	p.ID = uuid.NewString()
	p.ScenarioID = td.ID
	p.GenerationMetadata = GenerationMetadata{
		Mode:        opts.Mode,
		GeneratedAt: g.now().UTC(),
		Model:       g.model,
	}

	// 2. Required set.
	required := RequiredCategories(td.GeneralInfo.Domain, archetype.Normalize(p.Archetype))
	p.GenerationMetadata.Required = required

	// 3. Category selection.
	selected, selectedBy := g.selectCategories(ctx, p, td, required, opts.CustomPrompt)
	p.GenerationMetadata.SelectedBy = selectedBy
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 4. Category content, in parallel.
	p.Details = g.generateDetails(ctx, p, td, selected, opts.CustomPrompt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 5. Name.
	if needsName(p) {
		if name := g.generateName(ctx, p); name != "" {
			p.Name = name
		}
	}

	// 6. Conversation rules.
	p.ConversationRules = g.generateRules(ctx, p, td)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 7. Validate and fix once.
	issues := Validate(p, td)
	report := ValidationReport{Issues: issueStrings(issues)}
	if len(issues) > 0 {
		AutoFix(p, issues)
		remaining := Validate(p, td)
		report.Remaining = issueStrings(remaining)
		report.Fixed = fixedIssues(issues, remaining)
		for _, issue := range remaining {
			g.log.Warn("Persona validation issue", "persona_id", p.ID, "check", issue.Check, "message", issue.Message)
		}
	}
	p.GenerationMetadata.Validation = report

	g.log.Info("Persona generated",
		"persona_id", p.ID,
		"name", p.Name,
		"archetype", p.Archetype,
		"categories", len(p.Details),
		"issues", len(report.Remaining),
	)
	return p, nil
}

func baseIdentity(td *scenario.TemplateData, opts GenerateOptions) *Instance {
	var pt scenario.PersonaType
	if len(td.PersonaTypes) > 0 {
		pt = td.PersonaTypes[0]
	}
	mode := td.ModeDescriptions.Mode(opts.Mode)

	p := &Instance{
		Role:        firstNonEmpty(pt.Role, pt.Type, mode.AIBotRole, defaultRole),
		Description: firstNonEmpty(pt.Description, td.ContextOverview.Description),
		Age:         int(pt.Age),
		Gender:      strings.ToLower(firstNonEmpty(opts.Gender, pt.Gender, defaultGender)),
		Location:    parseLocation(pt.Location),
	}
	p.Name = firstNonEmpty(pt.Name, p.Role)
	if p.Age <= 0 {
		p.Age = defaultAge
	}
	p.Location.CurrentPhysicalLocation = fmt.Sprintf("At work in %s", p.Location.City)

	a := td.Archetype()
	if a == "" {
		a = archetype.Normalize(pt.Archetype)
	}
	p.Archetype = string(a)
	p.ArchetypeConfidence = td.ArchetypeClassification.Confidence
	return p
}

// parseLocation splits "City, State, Country". Missing parts take the
// Mumbai, India defaults only when the whole location is absent.
func parseLocation(s string) Location {
	var parts []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	switch len(parts) {
	case 0:
		return Location{City: defaultCity, State: defaultState, Country: defaultCountry}
	case 1:
		return Location{City: parts[0]}
	case 2:
		return Location{City: parts[0], Country: parts[1]}
	default:
		return Location{City: parts[0], State: parts[1], Country: parts[len(parts)-1]}
	}
}

func (g *Generator) selectCategories(ctx context.Context, p *Instance, td *scenario.TemplateData, required []CategoryName, customPrompt string) ([]CategoryName, string) {
	text, err := llm.Text(ctx, g.client, llm.Request{
		Model:       g.model,
		System:      personaSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildSelectionPrompt(p, td, required, customPrompt)}},
		Temperature: 0.3,
		MaxTokens:   300,
	})

	var picked []string
	if err == nil {
		err = llm.DecodeArray(text, &picked)
		if err != nil {
			var wrapped struct {
				Categories []string `json:"categories"`
			}
			if llm.DecodeObject(text, &wrapped) == nil && len(wrapped.Categories) > 0 {
				picked, err = wrapped.Categories, nil
			}
		}
	}
	if err != nil {
		g.log.Warn("Category selection failed, using defaults", "error", err)
		return mergeCategories(required, fallbackCategories), "fallback"
	}

	var llmPicks []CategoryName
	for _, name := range picked {
		c := CategoryName(strings.ToLower(strings.TrimSpace(name)))
		if !IsKnown(c) {
			g.log.Debug("Dropping unknown category", "category", name)
			continue
		}
		llmPicks = append(llmPicks, c)
	}
	return mergeCategories(required, llmPicks), "llm"
}

// mergeCategories unions required with picks. Required names always stay;
// picks fill the remaining room up to maxSelected. A short result is padded
// from fallbackCategories, then library order, up to minSelected.
func mergeCategories(required, picks []CategoryName) []CategoryName {
	seen := make(map[CategoryName]bool)
	var out []CategoryName
	for _, c := range required {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range picks {
		if len(out) >= maxSelected {
			break
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	padding := append([]CategoryName{}, fallbackCategories...)
	for _, c := range library {
		padding = append(padding, c.Name)
	}
	for _, c := range padding {
		if len(out) >= minSelected {
			break
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	sortByLibrary(out)
	return out
}

func (g *Generator) generateDetails(ctx context.Context, p *Instance, td *scenario.TemplateData, selected []CategoryName, customPrompt string) []Detail {
	details := make([]Detail, len(selected))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(categoryConcurrency)
	for i, name := range selected {
		eg.Go(func() error {
			details[i] = Detail{Category: name, Fields: g.generateCategory(egCtx, p, td, name, customPrompt)}
			return nil
		})
	}
	_ = eg.Wait()

	return details
}

func (g *Generator) generateCategory(ctx context.Context, p *Instance, td *scenario.TemplateData, name CategoryName, customPrompt string) map[string]any {
	c, _ := Lookup(name)
	text, err := llm.Text(ctx, g.client, llm.Request{
		Model:       g.model,
		System:      personaSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildCategoryPrompt(p, td, c, customPrompt)}},
		Temperature: personaTemperature,
		MaxTokens:   categoryMaxTokens,
		JSONMode:    true,
	})
	var fields map[string]any
	if err == nil {
		err = llm.DecodeObject(text, &fields)
	}
	if err != nil {
		g.log.Warn("Category generation failed", "category", name, "error", err)
		return map[string]any{"error": fmt.Sprintf("Failed to generate %s", name)}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields
}

func needsName(p *Instance) bool {
	return p.Name == "" || strings.EqualFold(strings.TrimSpace(p.Name), strings.TrimSpace(p.Role))
}

func (g *Generator) generateName(ctx context.Context, p *Instance) string {
	text, err := llm.Text(ctx, g.client, llm.Request{
		Model:       g.model,
		System:      personaSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildNamePrompt(p)}},
		Temperature: 0.9,
		MaxTokens:   50,
		JSONMode:    true,
	})
	var out struct {
		Name string `json:"name"`
	}
	if err == nil {
		err = llm.DecodeObject(text, &out)
	}
	if err != nil {
		g.log.Warn("Name generation failed, keeping role as name", "error", err)
		return ""
	}
	return strings.TrimSpace(out.Name)
}

func (g *Generator) generateRules(ctx context.Context, p *Instance, td *scenario.TemplateData) ConversationRules {
	text, err := llm.Text(ctx, g.client, llm.Request{
		Model:       g.model,
		System:      personaSystem,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: buildRulesPrompt(p, td)}},
		Temperature: personaTemperature,
		MaxTokens:   1000,
		JSONMode:    true,
	})
	var rules ConversationRules
	if err == nil {
		err = llm.DecodeObject(text, &rules)
	}
	if err != nil {
		g.log.Warn("Conversation rules generation failed, using defaults", "error", err)
		return defaultRules
	}

	if rules.OpeningBehavior == "" {
		rules.OpeningBehavior = defaultRules.OpeningBehavior
	}
	if rules.ResponseStyle == "" {
		rules.ResponseStyle = defaultRules.ResponseStyle
	}
	if rules.WordLimit <= 0 {
		rules.WordLimit = defaultRules.WordLimit
	}
	return rules
}

func issueStrings(issues []Issue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.String()
	}
	return out
}

func fixedIssues(before, after []Issue) []string {
	still := make(map[string]bool, len(after))
	for _, issue := range after {
		still[issue.String()] = true
	}
	var out []string
	for _, issue := range before {
		if !still[issue.String()] {
			out = append(out, issue.String())
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
