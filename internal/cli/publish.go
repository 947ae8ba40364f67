package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/roleplay/internal/observability"
	"github.com/apresai/roleplay/internal/prompt"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/apresai/roleplay/internal/storage"
	"github.com/apresai/roleplay/internal/store"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"
)

var (
	flagPublishScenarioID string
	flagPublishPersonaID  string
	flagPublishMode       string
	flagPublishForce      bool
)

var publishCmd = &cobra.Command{
	Use:   "publish <prompt-file>",
	Short: "Upload a generated system prompt to S3 and record it in the document store",
	Long:  "Validate a prompt file, upload it to --bucket under prompts/, and, when --table is set, store it as a prompt document. Scenario ID and mode are detected from <scenario>_<mode>_prompt.txt file names.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&flagPublishScenarioID, "scenario-id", "", "Scenario ID (overrides auto-detected)")
	publishCmd.Flags().StringVar(&flagPublishPersonaID, "persona-id", "", "Persona ID the prompt was written for")
	publishCmd.Flags().StringVar(&flagPublishMode, "mode", "", "Training mode (overrides auto-detected)")
	publishCmd.Flags().StringVarP(&flagLayout, "layout", "l", "architect", "Prompt layout used for validation")
	publishCmd.Flags().BoolVar(&flagPublishForce, "force", false, "Publish even when validation reports issues")
}

// promptUploader is the part of storage.Storage publish needs.
type promptUploader interface {
	UploadFile(ctx context.Context, prefix, path string) (key, url string, err error)
}

type publishInput struct {
	Path       string
	ScenarioID string
	PersonaID  string
	Mode       string
	Layout     prompt.Layout
	Force      bool
}

type publishResult struct {
	Record *store.PromptRecord
	Key    string
	URL    string
}

func runPublish(cmd *cobra.Command, args []string) error {
	if flagBucket == "" {
		return fmt.Errorf("--bucket (or S3_BUCKET) is required")
	}
	if !validLayout(flagLayout) {
		return fmt.Errorf("invalid layout %q: must be architect or extended", flagLayout)
	}
	ctx := cmd.Context()
	awsCfg, err := observability.LoadAWSConfig(ctx, flagRegion)
	if err != nil {
		return err
	}
	up := storage.New(s3.NewFromConfig(awsCfg), flagBucket, flagCDNBaseURL)
	var docs store.Store
	if flagTable != "" {
		docs = store.NewDynamo(dynamodb.NewFromConfig(awsCfg), flagTable)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Publishing %s...", args[0])
	res, err := publishPrompt(ctx, up, docs, publishInput{
		Path:       args[0],
		ScenarioID: flagPublishScenarioID,
		PersonaID:  flagPublishPersonaID,
		Mode:       flagPublishMode,
		Layout:     prompt.LayoutByName(flagLayout),
		Force:      flagPublishForce,
	})
	if err != nil {
		fmt.Fprintln(out, " failed")
		return err
	}
	fmt.Fprintln(out, " done")

	fmt.Fprintf(out, "\nPublished: %s\n", res.Key)
	fmt.Fprintf(out, "  URL: %s\n", res.URL)
	if res.Record != nil && docs != nil {
		fmt.Fprintf(out, "  Prompt ID: %s\n", res.Record.ID)
	}
	return nil
}

func publishPrompt(ctx context.Context, up promptUploader, docs store.Store, in publishInput) (*publishResult, error) {
	text, err := prompt.Load(in.Path)
	if err != nil {
		return nil, err
	}
	v := prompt.Validate(text, in.Layout)
	if !v.Valid && !in.Force {
		return nil, fmt.Errorf("prompt has issues (use --force to publish anyway): %s", strings.Join(v.Issues, "; "))
	}

	scenarioID, mode := detectPromptName(in.Path)
	if in.ScenarioID != "" {
		scenarioID = in.ScenarioID
	}
	if in.Mode != "" {
		mode = in.Mode
	}
	if mode != "" {
		if mode, err = scenario.NormalizeMode(mode); err != nil {
			return nil, err
		}
	}

	prefix := "prompts"
	if scenarioID != "" {
		prefix = "prompts/" + scenarioID
	}
	var key, url string
	err = publishRetry(ctx, func() error {
		var err error
		key, url, err = up.UploadFile(ctx, prefix, in.Path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upload prompt: %w", err)
	}

	rec := &store.PromptRecord{
		ScenarioID: scenarioID,
		PersonaID:  in.PersonaID,
		Mode:       mode,
		Layout:     in.Layout.Name,
		Text:       text,
		Validation: v,
	}
	if docs != nil {
		if err := docs.PutPrompt(ctx, rec); err != nil {
			return nil, fmt.Errorf("uploaded to %s but failed to record prompt: %w", url, err)
		}
	}
	return &publishResult{Record: rec, Key: key, URL: url}, nil
}

// detectPromptName splits <scenario>_<mode>_prompt.txt. Other names give
// empty strings.
func detectPromptName(path string) (scenarioID, mode string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base, ok := strings.CutSuffix(base, "_prompt")
	if !ok {
		return "", ""
	}
	for _, m := range scenario.Modes() {
		if id, ok := strings.CutSuffix(base, "_"+m); ok && id != "" {
			return id, m
		}
	}
	return "", ""
}

var (
	defaultBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	publishBackoffs = defaultBackoffs
)

func publishRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= len(publishBackoffs); attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == len(publishBackoffs) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(publishBackoffs[attempt]):
		}
	}
	return lastErr
}
