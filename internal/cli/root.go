package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/apresai/roleplay/internal/drift"
	"github.com/apresai/roleplay/internal/ingest"
	"github.com/apresai/roleplay/internal/llm"
	"github.com/apresai/roleplay/internal/observability"
	"github.com/apresai/roleplay/internal/pipeline"
	"github.com/apresai/roleplay/internal/progress"
	"github.com/apresai/roleplay/internal/prompt"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/apresai/roleplay/internal/storage"
	"github.com/apresai/roleplay/internal/store"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
)

var Version = "dev"

// newClient is swapped out in tests.
var newClient = llm.New

var rootCmd = &cobra.Command{
	Use:           "roleplay",
	Short:         "Turn training scenario documents into role-play character prompts",
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flagTUI = true
		return runGenerate(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "roleplay %s\n", Version)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a persona and system prompt from a scenario document",
	RunE:  runGenerate,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract scenario template data from a document and save it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		flagExtractOnly = true
		return runGenerate(cmd, args)
	},
}

var (
	flagInput        string
	flagFromScenario string
	flagOutputDir    string
	flagMode         string
	flagGender       string
	flagCustomPrompt string
	flagLayout       string
	flagMinWords     int
	flagExtractOnly  bool
	flagDrift        bool
	flagDriftKind    string
	flagProfile      string
	flagMaxTurns     int
	flagVerbose      bool
	flagTUI          bool
	flagProvider     string
	flagModel        string
	flagAPIKey       string
	flagTable        string
	flagBucket       string
	flagCDNBaseURL   string
	flagRegion       string
)

func init() {
	rootCmd.AddCommand(versionCmd, generateCmd, extractCmd)

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging (disables the progress bar)")
	rootCmd.PersistentFlags().StringVarP(&flagProvider, "provider", "P", "", "LLM provider: openai, anthropic, gemini, nova (default from LLM_PROVIDER, else openai)")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Model ID (default depends on provider)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "Provider API key (overrides the provider's env var)")
	rootCmd.PersistentFlags().StringVarP(&flagOutputDir, "output", "o", "roleplay-output", "Directory for scenario, persona, prompt and report files")
	rootCmd.PersistentFlags().StringVar(&flagTable, "table", os.Getenv("DYNAMODB_TABLE"), "DynamoDB table for documents (empty keeps them local)")
	rootCmd.PersistentFlags().StringVar(&flagBucket, "bucket", os.Getenv("S3_BUCKET"), "S3 bucket for reports and published prompts")
	rootCmd.PersistentFlags().StringVar(&flagCDNBaseURL, "cdn-base-url", os.Getenv("CDN_BASE_URL"), "Public base URL in front of the bucket")
	rootCmd.PersistentFlags().StringVar(&flagRegion, "region", os.Getenv("AWS_REGION"), "AWS region")

	for _, c := range []*cobra.Command{generateCmd, extractCmd} {
		c.Flags().StringVarP(&flagInput, "input", "i", "", "Scenario document (URL, PDF path, or text file path)")
		c.Flags().IntVar(&flagMinWords, "min-words", ingest.DefaultMinWords, "Reject documents shorter than this many words")
	}

	generateCmd.Flags().StringVarP(&flagFromScenario, "from-scenario", "f", "", "Use a scenario JSON file written by extract instead of --input")
	generateCmd.Flags().BoolVarP(&flagExtractOnly, "extract-only", "x", false, "Stop after extracting the scenario")
	generateCmd.Flags().BoolVarP(&flagTUI, "tui", "t", false, "Interactive setup wizard for generation options")
	addPersonaFlags(generateCmd)
	generateCmd.Flags().StringVarP(&flagLayout, "layout", "l", "architect", "Prompt layout: architect (6 sections) or extended (8 sections)")
	generateCmd.Flags().BoolVarP(&flagDrift, "drift", "d", false, "Run the drift test against the generated prompt")
	addDriftFlags(generateCmd)
}

func addPersonaFlags(c *cobra.Command) {
	c.Flags().StringVarP(&flagMode, "mode", "M", "assess", "Training mode: learn, assess, try")
	c.Flags().StringVarP(&flagGender, "gender", "g", "", "Character gender (default female)")
	c.Flags().StringVarP(&flagCustomPrompt, "custom-prompt", "c", "", "Extra guidance for persona generation")
}

func addDriftFlags(c *cobra.Command) {
	c.Flags().StringVarP(&flagDriftKind, "kind", "k", string(drift.KindDrift), "Profile set: drift, strength, comprehensive")
	c.Flags().StringVar(&flagProfile, "profile", "", "Run a single learner profile, e.g. DISMISSIVE")
	c.Flags().IntVar(&flagMaxTurns, "max-turns", 0, "Turn cap per conversation (default depends on kind)")
}

// Execute runs the root command. ctx is cancelled on SIGINT so a running
// pipeline stops between LLM calls.
func Execute(ctx context.Context, args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if flagTUI {
		if err := runInteractiveSetup(); err != nil {
			return err
		}
	}

	if flagFromScenario == "" && flagInput == "" {
		return fmt.Errorf("either --input (-i) or --from-scenario (-f) is required")
	}
	if flagFromScenario != "" && flagInput != "" {
		return fmt.Errorf("--input and --from-scenario are mutually exclusive")
	}
	if flagFromScenario != "" && flagExtractOnly {
		return fmt.Errorf("--extract-only needs --input")
	}
	if _, err := scenario.NormalizeMode(flagMode); err != nil {
		return err
	}
	if !validLayout(flagLayout) {
		return fmt.Errorf("invalid layout %q: must be architect or extended", flagLayout)
	}
	kind, err := parseKind(flagDriftKind)
	if err != nil {
		return err
	}
	if err := checkProfile(flagProfile); err != nil {
		return err
	}

	ctx := cmd.Context()
	deps, err := buildDeps(ctx, true)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Input:        flagInput,
		FromScenario: flagFromScenario,
		Mode:         flagMode,
		Gender:       flagGender,
		CustomPrompt: flagCustomPrompt,
		Layout:       flagLayout,
		MinWords:     flagMinWords,
		ExtractOnly:  flagExtractOnly,
		Drift:        flagDrift,
		DriftKind:    kind,
		DriftProfile: flagProfile,
		MaxTurns:     flagMaxTurns,
		OutputDir:    flagOutputDir,
	}

	if !flagVerbose {
		r := progress.NewBarRenderer(os.Stdout)
		defer r.Finish()
		opts.OnProgress = r.Handle
	}

	res, err := pipeline.Run(ctx, deps, opts)
	if err != nil {
		return err
	}
	if flagExtractOnly && res.ScenarioFile != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Scenario saved to %s\n", res.ScenarioFile)
	}
	if res.Prompt != nil && !res.Prompt.Validation.Valid {
		fmt.Fprintf(cmd.ErrOrStderr(), "Prompt validation issues: %s\n", strings.Join(res.Prompt.Validation.Issues, "; "))
	}
	return nil
}

// cliLogger logs JSON to stderr. Without --verbose only errors are shown so
// the progress bar stays readable.
func cliLogger() *slog.Logger {
	level := slog.LevelError
	if flagVerbose {
		level = slog.LevelDebug
	}
	return observability.NewLogger(os.Stderr, level)
}

func llmConfig() llm.Config {
	if flagProvider != "" {
		os.Setenv("LLM_PROVIDER", flagProvider)
	}
	cfg := llm.ConfigFromEnv()
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}
	return cfg
}

// buildDeps wires the LLM client and, when --table or --bucket is set, the
// AWS-backed document store and report uploader.
func buildDeps(ctx context.Context, withStore bool) (pipeline.Deps, error) {
	log := cliLogger()
	cfg := llmConfig()
	client, err := newClient(cfg)
	if err != nil {
		return pipeline.Deps{}, err
	}
	deps := pipeline.Deps{LLM: client, Model: cfg.Model, Logger: log}

	if flagTable == "" && flagBucket == "" {
		return deps, nil
	}
	awsCfg, err := observability.LoadAWSConfig(ctx, flagRegion)
	if err != nil {
		return pipeline.Deps{}, err
	}
	if withStore && flagTable != "" {
		deps.Store = store.NewDynamo(dynamodb.NewFromConfig(awsCfg), flagTable)
	}
	if flagBucket != "" {
		deps.Uploader = storage.New(s3.NewFromConfig(awsCfg), flagBucket, flagCDNBaseURL)
	}
	return deps, nil
}

func validLayout(name string) bool {
	return strings.EqualFold(name, prompt.LayoutArchitect.Name) || strings.EqualFold(name, prompt.LayoutExtended.Name)
}

func parseKind(s string) (drift.Kind, error) {
	k := drift.Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "":
		return drift.KindDrift, nil
	case drift.KindDrift, drift.KindStrength, drift.KindComprehensive:
		return k, nil
	}
	return "", fmt.Errorf("invalid kind %q: must be drift, strength, or comprehensive", s)
}

func checkProfile(name string) error {
	if name == "" {
		return nil
	}
	if _, ok := drift.ProfileByName(name); !ok {
		var names []string
		for _, p := range drift.Profiles(drift.KindComprehensive) {
			names = append(names, p.Name)
		}
		return fmt.Errorf("unknown profile %q: must be one of %s", name, strings.Join(names, ", "))
	}
	return nil
}
