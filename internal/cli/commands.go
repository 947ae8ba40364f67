package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/apresai/roleplay/internal/archetype"
	"github.com/apresai/roleplay/internal/drift"
	"github.com/apresai/roleplay/internal/persona"
	"github.com/apresai/roleplay/internal/pipeline"
	"github.com/apresai/roleplay/internal/progress"
	"github.com/apresai/roleplay/internal/prompt"
	"github.com/apresai/roleplay/internal/scenario"
	"github.com/spf13/cobra"
)

var personaCmd = &cobra.Command{
	Use:   "persona <scenario.json>",
	Short: "Generate one persona for an extracted scenario",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersona,
}

var driftCmd = &cobra.Command{
	Use:   "drift <prompt-file>",
	Short: "Test a system prompt against simulated learners",
	Args:  cobra.ExactArgs(1),
	RunE:  runDrift,
}

var strengthCmd = &cobra.Command{
	Use:   "strength <prompt-file>",
	Short: "Run the strength profiles (quality, jailbreak, confusion, coaching) against a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flagDriftKind = string(drift.KindStrength)
		return runDrift(cmd, args)
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List persona detail categories",
	RunE:  runCategories,
}

var validatePromptCmd = &cobra.Command{
	Use:   "validate-prompt <prompt-file>",
	Short: "Check a system prompt for section markers, the finish token and length",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidatePrompt,
}

var (
	flagScenarioFile string
	flagDomain       string
	flagArchetype    string
)

func init() {
	rootCmd.AddCommand(personaCmd, driftCmd, strengthCmd, categoriesCmd, validatePromptCmd)

	addPersonaFlags(personaCmd)

	for _, c := range []*cobra.Command{driftCmd, strengthCmd} {
		c.Flags().StringVarP(&flagScenarioFile, "scenario", "s", "", "Scenario JSON the prompt was generated for")
		c.Flags().StringVarP(&flagMode, "mode", "M", "assess", "Training mode: learn, assess, try")
		c.Flags().StringVar(&flagProfile, "profile", "", "Run a single learner profile")
		c.Flags().IntVar(&flagMaxTurns, "max-turns", 0, "Turn cap per conversation (default depends on kind)")
	}
	driftCmd.Flags().StringVarP(&flagDriftKind, "kind", "k", string(drift.KindDrift), "Profile set: drift, strength, comprehensive")

	categoriesCmd.Flags().StringVar(&flagDomain, "domain", "", "Scenario domain; with --archetype, marks required categories")
	categoriesCmd.Flags().StringVar(&flagArchetype, "archetype", "", "Scenario archetype")

	validatePromptCmd.Flags().StringVarP(&flagLayout, "layout", "l", "architect", "Prompt layout: architect or extended")
}

func runPersona(cmd *cobra.Command, args []string) error {
	if _, err := scenario.NormalizeMode(flagMode); err != nil {
		return err
	}
	td, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	deps, err := buildDeps(cmd.Context(), false)
	if err != nil {
		return err
	}

	mode, _ := scenario.NormalizeMode(flagMode)
	p, err := persona.NewGenerator(deps.LLM, deps.Model, deps.Logger).Generate(cmd.Context(), td, persona.GenerateOptions{
		Mode:         mode,
		Gender:       flagGender,
		CustomPrompt: flagCustomPrompt,
	})
	if err != nil {
		return err
	}
	path, err := pipeline.WritePersona(flagOutputDir, p)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s, %d, %s (%s)\n", p.Name, p.Age, p.Role, p.Location)
	fmt.Fprintf(out, "Categories: %s\n", joinCategories(p.Included()))
	if issues := p.GenerationMetadata.Validation.Remaining; len(issues) > 0 {
		fmt.Fprintf(out, "Unresolved issues: %s\n", strings.Join(issues, "; "))
	}
	if path != "" {
		fmt.Fprintf(out, "Persona saved to %s\n", path)
	}
	return nil
}

func runDrift(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(flagDriftKind)
	if err != nil {
		return err
	}
	if err := checkProfile(flagProfile); err != nil {
		return err
	}
	text, err := prompt.Load(args[0])
	if err != nil {
		return err
	}
	opts := pipeline.DriftOptions{
		Prompt:    text,
		Mode:      flagMode,
		Kind:      kind,
		Profile:   flagProfile,
		MaxTurns:  flagMaxTurns,
		OutputDir: flagOutputDir,
	}
	if flagScenarioFile != "" {
		td, err := scenario.Load(flagScenarioFile)
		if err != nil {
			return err
		}
		opts.Scenario = td
	}
	deps, err := buildDeps(cmd.Context(), false)
	if err != nil {
		return err
	}

	if !flagVerbose {
		r := progress.NewBarRenderer(os.Stderr)
		opts.OnProgress = r.Handle
		defer r.Finish()
	}

	res, err := pipeline.RunDrift(cmd.Context(), deps, opts)
	if err != nil {
		return err
	}
	printSuite(cmd.OutOrStdout(), res)
	return nil
}

func printSuite(w io.Writer, res *pipeline.DriftResult) {
	s := res.Suite
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROFILE\tSCORE\tTURNS\tCOMPLETED\tCLOSING")
	for _, r := range s.Results {
		fmt.Fprintf(tw, "%s\t%.1f\t%d\t%v\t%s\n", r.Profile, r.OverallScore, len(r.Turns), r.Completed, r.Ending.ClosingValence)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nOverall %.1f  |  completion %.0f%%", s.OverallScore, s.CompletionRate*100)
	if s.Weakest != "" {
		fmt.Fprintf(w, "  |  weakest %s", s.Weakest)
	}
	fmt.Fprintln(w)
	if res.ReportFile != "" {
		fmt.Fprintf(w, "Report saved to %s\n", res.ReportFile)
	}
	if res.ReportURL != "" {
		fmt.Fprintf(w, "Report uploaded to %s\n", res.ReportURL)
	}
}

func runCategories(cmd *cobra.Command, args []string) error {
	required := map[persona.CategoryName]bool{}
	if flagDomain != "" || flagArchetype != "" {
		a := archetype.Normalize(flagArchetype)
		if flagArchetype != "" && a == "" {
			return fmt.Errorf("unknown archetype %q", flagArchetype)
		}
		for _, name := range persona.RequiredCategories(flagDomain, a) {
			required[name] = true
		}
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tREQUIRED\tDESCRIPTION")
	for _, c := range persona.Library() {
		req := ""
		if required[c.Name] {
			req = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Name, req, c.Description)
	}
	return tw.Flush()
}

func runValidatePrompt(cmd *cobra.Command, args []string) error {
	if !validLayout(flagLayout) {
		return fmt.Errorf("invalid layout %q: must be architect or extended", flagLayout)
	}
	text, err := prompt.Load(args[0])
	if err != nil {
		return err
	}
	v := prompt.Validate(text, prompt.LayoutByName(flagLayout))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Words: %d  |  [FINISH]: %v\n", v.WordCount, v.HasFinish)
	for _, w := range v.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	for _, i := range v.Issues {
		fmt.Fprintf(out, "  issue: %s\n", i)
	}
	if !v.Valid {
		return fmt.Errorf("prompt has %d issue(s)", len(v.Issues))
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func joinCategories(names []persona.CategoryName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
