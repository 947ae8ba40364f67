package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/apresai/roleplay/internal/archetype"
	"github.com/apresai/roleplay/internal/drift"
	"github.com/apresai/roleplay/internal/jobs"
	"github.com/apresai/roleplay/internal/persona"
	"github.com/apresai/roleplay/internal/pipeline"
	"github.com/apresai/roleplay/internal/progress"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/apresai/roleplay/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("roleplay-mcp")

// Job kinds recorded on jobs started by the tools.
const (
	KindGenerate = "generate"
	KindDrift    = "drift"
)

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "generate_roleplay_prompt",
			Description: "Generate a role-play character system prompt from a scenario document (URL or text) or a stored scenario. Starts an async job and returns a job ID. Use get_job to check progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"input_url":   stringProp("URL of the scenario document"),
					"input_text":  stringProp("Raw scenario text (alternative to input_url)"),
					"scenario_id": stringProp("ID of a previously extracted scenario; skips ingest and extraction"),
					"mode": map[string]any{
						"type":        "string",
						"description": "Training mode: learn, assess, try",
						"default":     "assess",
					},
					"gender": map[string]any{
						"type":        "string",
						"description": "Character gender",
						"default":     "female",
					},
					"custom_prompt": stringProp("Extra guidance applied to persona generation"),
					"layout": map[string]any{
						"type":        "string",
						"description": "Prompt layout: architect (6 sections) or extended (8 sections)",
						"default":     "architect",
					},
					"extract_only": map[string]any{
						"type":        "boolean",
						"description": "Stop after extracting and saving the scenario",
						"default":     false,
					},
					"run_drift": map[string]any{
						"type":        "boolean",
						"description": "Run the drift test suite against the generated prompt",
						"default":     false,
					},
				},
			},
		},
		{
			Name:        "get_job",
			Description: "Get the status, progress and result IDs of a job started by generate_roleplay_prompt or run_drift_test.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"job_id": stringProp("The job ID returned when the job was started"),
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        "cancel_job",
			Description: "Cancel a running job. The job is marked failed.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"job_id": stringProp("The job ID to cancel"),
				},
				Required: []string{"job_id"},
			},
		},
		{
			Name:        "get_scenario",
			Description: "Get an extracted scenario by ID, including the IDs of personas generated for it.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"scenario_id": stringProp("The scenario ID"),
				},
				Required: []string{"scenario_id"},
			},
		},
		{
			Name:        "list_scenarios",
			Description: "List extracted scenarios, oldest first. Returns IDs, titles and archetypes.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     20,
					},
				},
			},
		},
		{
			Name:        "get_persona",
			Description: "Get a generated persona by ID.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"persona_id": stringProp("The persona ID"),
				},
				Required: []string{"persona_id"},
			},
		},
		{
			Name:        "get_prompt",
			Description: "Get a generated system prompt and its validation result by ID.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"prompt_id": stringProp("The prompt ID"),
				},
				Required: []string{"prompt_id"},
			},
		},
		{
			Name:        "run_drift_test",
			Description: "Test a system prompt against simulated learners and score how well the character holds its role. Starts an async job; use get_job for the score and report URL.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"prompt_id":   stringProp("ID of a stored prompt"),
					"prompt_text": stringProp("System prompt text (alternative to prompt_id)"),
					"scenario_id": stringProp("Scenario the prompt was generated for (optional)"),
					"mode": map[string]any{
						"type":        "string",
						"description": "Training mode: learn, assess, try",
						"default":     "assess",
					},
					"kind": map[string]any{
						"type":        "string",
						"description": "Profile set: drift, strength, comprehensive",
						"default":     "drift",
					},
					"profile":   stringProp("Run a single learner profile, e.g. DISMISSIVE"),
					"max_turns": map[string]any{
						"type":        "integer",
						"description": "Turn cap per conversation (default depends on kind)",
						"maximum":     drift.TurnLimit,
					},
				},
			},
		},
		{
			Name:        "list_detail_categories",
			Description: "List the persona detail categories. With domain and archetype, also lists the categories every persona for that scenario must carry.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"domain":    stringProp("Scenario domain, e.g. pharmaceutical sales"),
					"archetype": stringProp("PERSUASION, HELP_SEEKING, CONFRONTATION, INVESTIGATION or NEGOTIATION"),
				},
			},
		},
	}
}

// HandlerOptions are server-wide defaults applied to every job.
type HandlerOptions struct {
	OutputDir string
	Layout    string
	MinWords  int
}

// Handlers contains tool handler implementations.
type Handlers struct {
	jobs *jobs.Manager
	docs store.Store
	deps pipeline.Deps
	opts HandlerOptions
	log  *slog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(mgr *jobs.Manager, docs store.Store, deps pipeline.Deps, opts HandlerOptions, logger *slog.Logger) *Handlers {
	deps.Store = docs
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &Handlers{jobs: mgr, docs: docs, deps: deps, opts: opts, log: logger}
}

// Register adds every tool to s.
func (h *Handlers) Register(s *server.MCPServer) {
	handlers := map[string]server.ToolHandlerFunc{
		"generate_roleplay_prompt": h.HandleGenerate,
		"get_job":                  h.HandleGetJob,
		"cancel_job":               h.HandleCancelJob,
		"get_scenario":             h.HandleGetScenario,
		"list_scenarios":           h.HandleListScenarios,
		"get_persona":              h.HandleGetPersona,
		"get_prompt":               h.HandleGetPrompt,
		"run_drift_test":           h.HandleRunDrift,
		"list_detail_categories":   h.HandleListCategories,
	}
	for _, tool := range ToolDefs() {
		s.AddTool(tool, handlers[tool.Name])
	}
}

// HandleGenerate starts a prompt generation job.
func (h *Handlers) HandleGenerate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_roleplay_prompt")
	defer span.End()

	opts := pipeline.Options{
		Input:        mcp.ParseString(req, "input_url", ""),
		InputText:    mcp.ParseString(req, "input_text", ""),
		Mode:         mcp.ParseString(req, "mode", scenario.ModeAssess),
		Gender:       mcp.ParseString(req, "gender", ""),
		CustomPrompt: mcp.ParseString(req, "custom_prompt", ""),
		Layout:       mcp.ParseString(req, "layout", h.opts.Layout),
		MinWords:     h.opts.MinWords,
		ExtractOnly:  parseBoolParam(req, "extract_only", false),
		Drift:        parseBoolParam(req, "run_drift", false),
		OutputDir:    h.opts.OutputDir,
	}
	scenarioID := mcp.ParseString(req, "scenario_id", "")

	span.SetAttributes(
		attribute.String("input_url", opts.Input),
		attribute.String("scenario_id", scenarioID),
		attribute.String("mode", opts.Mode),
		attribute.String("layout", opts.Layout),
		attribute.Bool("run_drift", opts.Drift),
	)

	if _, err := scenario.NormalizeMode(opts.Mode); err != nil {
		span.SetStatus(codes.Error, "invalid mode")
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch {
	case scenarioID != "":
		td, err := h.docs.GetScenario(ctx, scenarioID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "get scenario failed")
			return notFoundOr(err, "scenario", scenarioID)
		}
		opts.Scenario = td
	case opts.Input == "" && opts.InputText == "":
		span.SetStatus(codes.Error, "missing input")
		return mcp.NewToolResultError("one of input_url, input_text or scenario_id is required"), nil
	}

	id, err := h.jobs.Start(ctx, KindGenerate, func(jobCtx context.Context, onProgress progress.Callback) (map[string]string, error) {
		opts.OnProgress = onProgress
		res, err := pipeline.Run(jobCtx, h.deps, opts)
		if err != nil {
			return nil, err
		}
		return res.Fields(), nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start job failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start job: %v", err)), nil
	}

	span.SetAttributes(attribute.String("job_id", id))
	h.log.InfoContext(ctx, "Prompt generation started", "job_id", id, "mode", opts.Mode, "scenario_id", scenarioID)

	return jsonResult(map[string]any{
		"job_id":  id,
		"status":  jobs.StatusSubmitted,
		"message": "Prompt generation started. Use get_job with this job_id to check progress.",
	})
}

// HandleGetJob returns a job snapshot.
func (h *Handlers) HandleGetJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_job")
	defer span.End()

	id := mcp.ParseString(req, "job_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing job_id")
		return mcp.NewToolResultError("job_id is required"), nil
	}
	span.SetAttributes(attribute.String("job_id", id))

	job, err := h.jobs.Store().Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get job failed")
		if errors.Is(err, jobs.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("job %s not found", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to get job: %v", err)), nil
	}

	result := map[string]any{
		"job_id":           job.ID,
		"kind":             job.Kind,
		"status":           job.Status,
		"progress_percent": int(job.Percent * 100),
		"stage_message":    job.Message,
		"created_at":       job.CreatedAt,
	}
	for k, v := range job.Result {
		result[k] = v
	}
	if job.Error != "" {
		result["error"] = job.Error
	}
	return jsonResult(result)
}

// HandleCancelJob cancels a running job.
func (h *Handlers) HandleCancelJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := tracer.Start(ctx, "tool.cancel_job")
	defer span.End()

	id := mcp.ParseString(req, "job_id", "")
	if id == "" {
		return mcp.NewToolResultError("job_id is required"), nil
	}
	span.SetAttributes(attribute.String("job_id", id))
	if !h.jobs.Cancel(id) {
		return mcp.NewToolResultError(fmt.Sprintf("job %s is not running", id)), nil
	}
	return jsonResult(map[string]any{"job_id": id, "cancelled": true})
}

// HandleGetScenario returns a scenario and the personas generated for it.
func (h *Handlers) HandleGetScenario(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_scenario")
	defer span.End()

	id := mcp.ParseString(req, "scenario_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing scenario_id")
		return mcp.NewToolResultError("scenario_id is required"), nil
	}
	span.SetAttributes(attribute.String("scenario_id", id))

	td, err := h.docs.GetScenario(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get scenario failed")
		return notFoundOr(err, "scenario", id)
	}
	personas, err := h.docs.ListPersonas(ctx, id)
	if err != nil {
		span.RecordError(err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list personas: %v", err)), nil
	}

	summaries := make([]map[string]any, 0, len(personas))
	for _, p := range personas {
		summaries = append(summaries, map[string]any{
			"persona_id": p.ID,
			"name":       p.Name,
			"role":       p.Role,
			"mode":       p.GenerationMetadata.Mode,
		})
	}
	return jsonResult(map[string]any{
		"scenario": td,
		"personas": summaries,
	})
}

// HandleListScenarios returns stored scenarios.
func (h *Handlers) HandleListScenarios(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_scenarios")
	defer span.End()

	limit := parseIntParam(req, "limit", 20)
	span.SetAttributes(attribute.Int("limit", limit))

	all, err := h.docs.ListScenarios(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list scenarios failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list scenarios: %v", err)), nil
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	span.SetAttributes(attribute.Int("result_count", len(all)))

	items := make([]map[string]any, 0, len(all))
	for _, td := range all {
		items = append(items, map[string]any{
			"scenario_id": td.ID,
			"title":       td.GeneralInfo.Title,
			"domain":      td.GeneralInfo.Domain,
			"archetype":   td.ArchetypeClassification.PrimaryArchetype,
		})
	}
	return jsonResult(map[string]any{"scenarios": items, "count": len(items)})
}

// HandleGetPersona returns a persona.
func (h *Handlers) HandleGetPersona(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_persona")
	defer span.End()

	id := mcp.ParseString(req, "persona_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing persona_id")
		return mcp.NewToolResultError("persona_id is required"), nil
	}
	span.SetAttributes(attribute.String("persona_id", id))

	p, err := h.docs.GetPersona(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get persona failed")
		return notFoundOr(err, "persona", id)
	}
	return jsonResult(p)
}

// HandleGetPrompt returns a stored prompt.
func (h *Handlers) HandleGetPrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_prompt")
	defer span.End()

	id := mcp.ParseString(req, "prompt_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing prompt_id")
		return mcp.NewToolResultError("prompt_id is required"), nil
	}
	span.SetAttributes(attribute.String("prompt_id", id))

	rec, err := h.docs.GetPrompt(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get prompt failed")
		return notFoundOr(err, "prompt", id)
	}
	return jsonResult(rec)
}

// HandleRunDrift starts a drift test job for a stored or supplied prompt.
func (h *Handlers) HandleRunDrift(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.run_drift_test")
	defer span.End()

	opts := pipeline.DriftOptions{
		Prompt:     mcp.ParseString(req, "prompt_text", ""),
		ScenarioID: mcp.ParseString(req, "scenario_id", ""),
		Mode:       mcp.ParseString(req, "mode", ""),
		Kind:       drift.Kind(strings.ToLower(mcp.ParseString(req, "kind", string(drift.KindDrift)))),
		Profile:    mcp.ParseString(req, "profile", ""),
		MaxTurns:   parseIntParam(req, "max_turns", 0),
		OutputDir:  h.opts.OutputDir,
	}
	promptID := mcp.ParseString(req, "prompt_id", "")

	span.SetAttributes(
		attribute.String("prompt_id", promptID),
		attribute.String("kind", string(opts.Kind)),
		attribute.String("profile", opts.Profile),
	)

	switch opts.Kind {
	case drift.KindDrift, drift.KindStrength, drift.KindComprehensive:
	default:
		span.SetStatus(codes.Error, "invalid kind")
		return mcp.NewToolResultError(fmt.Sprintf("invalid kind %q: choose drift, strength or comprehensive", opts.Kind)), nil
	}
	if opts.MaxTurns < 0 || opts.MaxTurns > drift.TurnLimit {
		span.SetStatus(codes.Error, "invalid max_turns")
		return mcp.NewToolResultError(fmt.Sprintf("max_turns must be between 1 and %d", drift.TurnLimit)), nil
	}
	if opts.Profile != "" {
		if _, ok := drift.ProfileByName(opts.Profile); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown profile %q", opts.Profile)), nil
		}
	}

	if promptID != "" {
		rec, err := h.docs.GetPrompt(ctx, promptID)
		if err != nil {
			span.RecordError(err)
			return notFoundOr(err, "prompt", promptID)
		}
		opts.Prompt = rec.Text
		if opts.ScenarioID == "" {
			opts.ScenarioID = rec.ScenarioID
		}
		if opts.Mode == "" {
			opts.Mode = rec.Mode
		}
	}
	if strings.TrimSpace(opts.Prompt) == "" {
		span.SetStatus(codes.Error, "missing prompt")
		return mcp.NewToolResultError("either prompt_id or prompt_text is required"), nil
	}
	if opts.ScenarioID != "" {
		td, err := h.docs.GetScenario(ctx, opts.ScenarioID)
		switch {
		case err == nil:
			opts.Scenario = td
		case errors.Is(err, store.ErrNotFound):
			h.log.WarnContext(ctx, "Scenario not found, testing without it", "scenario_id", opts.ScenarioID)
		default:
			span.RecordError(err)
			return mcp.NewToolResultError(fmt.Sprintf("failed to get scenario: %v", err)), nil
		}
	}

	id, err := h.jobs.Start(ctx, KindDrift, func(jobCtx context.Context, onProgress progress.Callback) (map[string]string, error) {
		opts.OnProgress = onProgress
		res, err := pipeline.RunDrift(jobCtx, h.deps, opts)
		if err != nil {
			return nil, err
		}
		return res.Fields(), nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start job failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to start job: %v", err)), nil
	}

	span.SetAttributes(attribute.String("job_id", id))
	h.log.InfoContext(ctx, "Drift test started", "job_id", id, "kind", opts.Kind, "scenario_id", opts.ScenarioID)

	return jsonResult(map[string]any{
		"job_id":  id,
		"status":  jobs.StatusSubmitted,
		"message": "Drift test started. Use get_job with this job_id to check progress.",
	})
}

// HandleListCategories returns the detail category library.
func (h *Handlers) HandleListCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := tracer.Start(ctx, "tool.list_detail_categories")
	defer span.End()

	domain := mcp.ParseString(req, "domain", "")
	arch := mcp.ParseString(req, "archetype", "")
	result := map[string]any{"categories": persona.Library()}

	if domain != "" || arch != "" {
		a := archetype.Normalize(arch)
		if arch != "" && a == "" {
			return mcp.NewToolResultError(fmt.Sprintf("unknown archetype %q", arch)), nil
		}
		result["required"] = persona.RequiredCategories(domain, a)
	}
	return jsonResult(result)
}

func notFoundOr(err error, kind, id string) (*mcp.CallToolResult, error) {
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("%s %s not found", kind, id)), nil
	}
	return mcp.NewToolResultError(fmt.Sprintf("failed to get %s: %v", kind, err)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseBoolParam(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	raw, ok := req.GetArguments()[key]
	if !ok {
		return defaultVal
	}
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
