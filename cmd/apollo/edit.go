package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kobst/project-apollo-sub005/cas"
	"github.com/kobst/project-apollo-sub005/coverage"
	"github.com/kobst/project-apollo-sub005/history"
	"github.com/kobst/project-apollo-sub005/lint"
	"github.com/kobst/project-apollo-sub005/patch"
	"github.com/kobst/project-apollo-sub005/validate"
)

var (
	validateJSON bool
	applyMessage string
	applyNoLint  bool
	lintTouched  []string
	lintJSON     bool
	fixDryRun    bool
	gapsPhase    string
	gapsJSON     bool
	gapsNext     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <patch.json|->",
	Short: "Check a patch against the current version without applying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var applyCmd = &cobra.Command{
	Use:   "apply <patch.json|->",
	Short: "Validate, apply, lint, and commit a patch",
	Long: `Validate, apply, lint, and commit a patch.

The patch is validated against the current version and applied. Unless
--no-lint is given, hard lint violations in the result block the commit.
A patch with a baseVersionId is only committed if that version is still
current.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Run lint rules over the current version",
	Args:  cobra.NoArgs,
	RunE:  runLint,
}

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Apply every available lint fix and commit the result",
	Args:  cobra.NoArgs,
	RunE:  runFix,
}

var gapsCmd = &cobra.Command{
	Use:   "gaps",
	Short: "List what the story is still missing, most important first",
	Args:  cobra.NoArgs,
	RunE:  runGaps,
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output as JSON")
	applyCmd.Flags().StringVarP(&applyMessage, "message", "m", "", "Version label (default: patch note or ID)")
	applyCmd.Flags().BoolVar(&applyNoLint, "no-lint", false, "Skip the hard lint gate")
	lintCmd.Flags().StringSliceVar(&lintTouched, "touched", nil, "Lint only around these node IDs")
	lintCmd.Flags().BoolVar(&lintJSON, "json", false, "Output as JSON")
	fixCmd.Flags().BoolVar(&fixDryRun, "dry-run", false, "Report fixes without committing")
	gapsCmd.Flags().StringVar(&gapsPhase, "phase", "", "Authoring phase: premise, outline, draft")
	gapsCmd.Flags().BoolVar(&gapsJSON, "json", false, "Output as JSON")
	gapsCmd.Flags().BoolVar(&gapsNext, "next", false, "Show only the most important gap")

	rootCmd.AddCommand(validateCmd, applyCmd, lintCmd, fixCmd, gapsCmd)
}

// readPatch reads a patch file, or stdin when path is "-".
func readPatch(cmd *cobra.Command, path string) (*patch.Patch, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading patch: %w", err)
	}
	p, err := patch.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding patch: %w", err)
	}
	// Hand-written patches usually omit these.
	if p.ID == "" {
		p.ID = cas.NewPrefixedID("patch")
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = cas.NowMs()
	}
	return p, nil
}

func printValidation(w io.Writer, res validate.Result) {
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}

func printViolations(w io.Writer, vs []lint.Violation) {
	for _, v := range vs {
		sev := "warning"
		if v.Severity == lint.SeverityHard {
			sev = "error"
		}
		fmt.Fprintf(w, "  %-7s %-36s %s\n", sev, v.RuleID, v.Message)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.history(ctx)
	if err != nil {
		return err
	}
	p, err := readPatch(cmd, args[0])
	if err != nil {
		return err
	}

	res := validate.Validate(h.Current().Graph, p)
	out := cmd.OutOrStdout()
	if validateJSON {
		if err := writeJSON(out, res); err != nil {
			return err
		}
	} else if res.Success {
		fmt.Fprintf(out, "Patch %s is valid (%d ops)\n", p.ID, p.OpCount())
	} else {
		fmt.Fprintf(out, "Patch %s is invalid:\n", p.ID)
		printValidation(out, res)
	}
	return res.Err()
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.history(ctx)
	if err != nil {
		return err
	}
	p, err := readPatch(cmd, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	cur := h.Current()

	if res := validate.Validate(cur.Graph, p); !res.Success {
		fmt.Fprintf(out, "Patch %s is invalid:\n", p.ID)
		printValidation(out, res)
		return fmt.Errorf("validating patch: %w", res.Err())
	}
	next, err := patch.Apply(cur.Graph, p)
	if err != nil {
		return fmt.Errorf("applying patch: %w", err)
	}

	eng, err := s.engine()
	if err != nil {
		return err
	}
	if !applyNoLint {
		if err := eng.Precommit(next); err != nil {
			var blocked *lint.BlockingError
			if errors.As(err, &blocked) {
				fmt.Fprintln(out, "Commit blocked by lint:")
				printViolations(out, blocked.Violations)
			}
			return err
		}
	}

	label := applyMessage
	if label == "" {
		label = p.Metadata.Note
	}
	if label == "" {
		label = history.Describe(history.DiffStates(cur.Graph, next))
	}

	var id string
	if p.BaseVersionID != "" {
		id, err = h.CommitIfHead(p.BaseVersionID, label, next)
	} else {
		id, err = h.Commit(cur.ID, label, next)
	}
	if err != nil {
		return err
	}
	if err := s.db.SaveHistory(ctx, h); err != nil {
		return err
	}
	if err := s.db.AppendPatch(ctx, id, p); err != nil {
		return err
	}
	s.log.Info("committed patch", zap.String("patch", p.ID), zap.String("version", id), zap.Int("ops", p.OpCount()))

	fmt.Fprintf(out, "Committed %s %q (%d ops)\n", shortID(id), label, p.OpCount())
	if res := eng.Lint(next, lint.ScopeForPatch(p)); res.WarningCount > 0 {
		fmt.Fprintf(out, "%d warning(s) near the change:\n", res.WarningCount)
		printViolations(out, res.Violations)
	}
	return nil
}

func runLint(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.history(ctx)
	if err != nil {
		return err
	}
	eng, err := s.engine()
	if err != nil {
		return err
	}

	scope := lint.FullScope()
	if len(lintTouched) > 0 {
		scope = lint.TouchedScope(lintTouched, nil)
	}
	res := eng.Lint(h.Current().Graph, scope)

	out := cmd.OutOrStdout()
	if lintJSON {
		return writeJSON(out, res)
	}
	if len(res.Violations) == 0 {
		fmt.Fprintln(out, "No lint violations")
		return nil
	}
	printViolations(out, res.Violations)
	fmt.Fprintf(out, "%d error(s), %d warning(s), %d fix(es) available\n",
		res.ErrorCount, res.WarningCount, len(res.Fixes))
	if res.ScopeTruncated {
		fmt.Fprintln(out, "Scope was truncated; run without --touched for a full check")
	}
	return nil
}

func runFix(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	h, err := s.history(ctx)
	if err != nil {
		return err
	}
	eng, err := s.engine()
	if err != nil {
		return err
	}

	cur := h.Current()
	res := eng.Lint(cur.Graph, lint.FullScope())
	report := eng.ApplyAllFixes(cur.Graph, res.Fixes)

	out := cmd.OutOrStdout()
	for _, f := range report.Applied {
		fmt.Fprintf(out, "  fixed   %s (%d ops)\n", f.Label, f.OperationCount)
	}
	for _, f := range report.Skipped {
		fmt.Fprintf(out, "  skipped %s: %s\n", f.Label, report.SkipReasons[f.ID])
	}
	if len(report.Applied) == 0 {
		fmt.Fprintln(out, "Nothing to fix")
		return nil
	}
	if fixDryRun {
		fmt.Fprintf(out, "Dry run: %d fix(es) not committed\n", len(report.Applied))
		return nil
	}

	label := fmt.Sprintf("lint autofix (%d)", len(report.Applied))
	id, err := h.Commit(cur.ID, label, report.Graph)
	if err != nil {
		return err
	}
	if err := s.db.SaveHistory(ctx, h); err != nil {
		return err
	}
	for _, f := range report.Applied {
		if err := s.db.AppendPatch(ctx, id, f.Patch); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "Committed %s %q\n", shortID(id), label)
	return nil
}

func runGaps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	phase := coverage.Phase(gapsPhase)
	if !phase.Valid() {
		return fmt.Errorf("unknown phase %q (want premise, outline, or draft)", gapsPhase)
	}
	h, err := s.history(ctx)
	if err != nil {
		return err
	}

	opts := coverage.Options{Phase: phase, Template: s.tpl}
	gaps := coverage.DeriveGaps(h.Current().Graph, opts)
	if gapsNext && len(gaps) > 1 {
		gaps = gaps[:1]
	}

	out := cmd.OutOrStdout()
	if gapsJSON {
		return writeJSON(out, gaps)
	}
	if len(gaps) == 0 {
		fmt.Fprintln(out, "No gaps")
		return nil
	}
	for _, g := range gaps {
		fmt.Fprintf(out, "  [%d %-6s] %-26s %s\n", g.Tier, g.Severity, g.Type, g.Description)
	}
	return nil
}
