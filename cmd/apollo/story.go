package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kobst/project-apollo-sub005/beats"
	"github.com/kobst/project-apollo-sub005/coverage"
	"github.com/kobst/project-apollo-sub005/graph"
	"github.com/kobst/project-apollo-sub005/history"
	"github.com/kobst/project-apollo-sub005/lint"
	"github.com/kobst/project-apollo-sub005/patch"
	"github.com/kobst/project-apollo-sub005/validate"
)

var (
	initTemplate  string
	logLimit      int
	branchAt      string
	diffJSON      bool
	exportVersion string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new story with one Beat per template slot",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current version, lint totals, and the next gap",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the ancestry of the current version",
	Args:  cobra.NoArgs,
	RunE:  runLog,
}

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "List, create, or delete branches",
	Args:  cobra.NoArgs,
	RunE:  runBranchList,
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	Args:  cobra.NoArgs,
	RunE:  runBranchList,
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a branch at the current version (or --at)",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchCreate,
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a branch that is not checked out",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchDelete,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <branch|version>",
	Short: "Make a branch or version current",
	Long: `Make a branch or version current.

A branch name attaches to the branch, so later commits advance it. A version
ID or unique prefix (at least 6 characters) detaches.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckout,
}

var diffCmd = &cobra.Command{
	Use:   "diff [from] [to]",
	Short: "Show node and edge differences between versions",
	Long: `Show node and edge differences between versions.

With no arguments, compares the parent of the current version with the
current version. With one argument, compares it with the current version.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: runDiff,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print a version's graph as JSON",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	initCmd.Flags().StringVar(&initTemplate, "template", "", "Beat template YAML (default $APOLLO_TEMPLATE or built-in)")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 10, "Number of entries to show")
	branchCreateCmd.Flags().StringVar(&branchAt, "at", "", "Version or branch to point at")
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "Output as JSON")
	exportCmd.Flags().StringVar(&exportVersion, "version", "", "Version or branch to export (default current)")

	branchCmd.AddCommand(branchListCmd, branchCreateCmd, branchDeleteCmd)
	rootCmd.AddCommand(initCmd, statusCmd, logCmd, branchCmd, checkoutCmd, diffCmd, exportCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	exists, err := s.db.HasHistory(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("story already initialized at %s", s.cfg.DBPath)
	}

	tpl := s.tpl
	if initTemplate != "" {
		if tpl, err = beats.Load(initTemplate); err != nil {
			return err
		}
	}

	p := patch.New("", patch.Metadata{Source: "human", Action: "init", Note: tpl.Name}, beats.Scaffold(tpl)...)
	empty := graph.NewState()
	if err := validate.Validate(empty, p).Err(); err != nil {
		return fmt.Errorf("scaffolding beats: %w", err)
	}
	g, err := patch.Apply(empty, p)
	if err != nil {
		return fmt.Errorf("scaffolding beats: %w", err)
	}

	h, err := history.New(g, "init")
	if err != nil {
		return err
	}
	if branch := s.cfg.Branch; branch != history.DefaultBranch {
		if err := renameInitialBranch(h, branch); err != nil {
			return err
		}
	}

	tplYAML, err := tpl.Marshal()
	if err != nil {
		return fmt.Errorf("encoding template: %w", err)
	}
	if err := s.db.SaveHistory(ctx, h); err != nil {
		return err
	}
	if err := s.db.SetMeta(ctx, metaTemplate, string(tplYAML)); err != nil {
		return err
	}
	if err := s.db.AppendPatch(ctx, h.CurrentVersionID, p); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized story at %s\n", s.cfg.DBPath)
	fmt.Fprintf(cmd.OutOrStdout(), "  Template: %s (%d beats)\n", tpl.Name, len(tpl.Slots))
	fmt.Fprintf(cmd.OutOrStdout(), "  Branch:   %s\n", h.CurrentBranch)
	fmt.Fprintf(cmd.OutOrStdout(), "  Version:  %s\n", shortID(h.CurrentVersionID))
	return nil
}

func renameInitialBranch(h *history.History, name string) error {
	if _, err := h.CreateBranch(name, ""); err != nil {
		return err
	}
	if _, err := h.Checkout(name); err != nil {
		return err
	}
	return h.DeleteBranch(history.DefaultBranch)
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	cur := h.Current()
	if h.Detached() {
		fmt.Fprintf(out, "HEAD detached at %s\n", shortID(cur.ID))
	} else {
		fmt.Fprintf(out, "On branch %s\n", h.CurrentBranch)
	}
	fmt.Fprintf(out, "Version %s %q\n", shortID(cur.ID), cur.Label)
	fmt.Fprintf(out, "  Nodes: %d  Edges: %d\n", cur.Graph.NodeCount(), cur.Graph.EdgeCount())

	res := eng.Lint(cur.Graph, lint.FullScope())
	fmt.Fprintf(out, "  Lint:  %d error(s), %d warning(s), %d fix(es) available\n",
		res.ErrorCount, res.WarningCount, len(res.Fixes))

	if next := coverage.NextGap(cur.Graph, coverage.Options{Template: s.tpl}); next != nil {
		fmt.Fprintf(out, "  Next:  [tier %d] %s\n", next.Tier, next.Description)
	} else {
		fmt.Fprintln(out, "  Next:  no gaps")
	}
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	for _, e := range h.Log(logLimit) {
		marker := " "
		if e.IsCurrent {
			marker = "*"
		}
		refs := ""
		if len(e.Branches) > 0 {
			refs = " (" + strings.Join(e.Branches, ", ") + ")"
		}
		fork := ""
		if n := len(h.Children(e.Version.ID)); n > 1 {
			fork = fmt.Sprintf("  [forks: %d]", n)
		}
		fmt.Fprintf(out, "%s %s%s  %s  %s%s\n", marker, shortID(e.Version.ID), refs,
			time.UnixMilli(e.Version.CreatedAt).Format("2006-01-02 15:04"), e.Version.Label, fork)
	}
	return nil
}

func runBranchList(cmd *cobra.Command, args []string) error {
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

	out := cmd.OutOrStdout()
	for _, b := range h.BranchList() {
		marker := " "
		if b.Name == h.CurrentBranch {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-20s %s\n", marker, b.Name, shortID(b.Head))
	}
	if h.Detached() {
		fmt.Fprintf(out, "* (detached at %s)\n", shortID(h.CurrentVersionID))
	}
	return nil
}

func runBranchCreate(cmd *cobra.Command, args []string) error {
	return mutateHistory(cmd, func(h *history.History) (string, error) {
		b, err := h.CreateBranch(args[0], branchAt)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Created branch %s at %s", b.Name, shortID(b.Head)), nil
	})
}

func runBranchDelete(cmd *cobra.Command, args []string) error {
	return mutateHistory(cmd, func(h *history.History) (string, error) {
		if err := h.DeleteBranch(args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("Deleted branch %s", args[0]), nil
	})
}

func runCheckout(cmd *cobra.Command, args []string) error {
	return mutateHistory(cmd, func(h *history.History) (string, error) {
		id, err := h.Checkout(args[0])
		if err != nil {
			return "", err
		}
		if h.Detached() {
			return fmt.Sprintf("HEAD is now at %s %q", shortID(id), h.Current().Label), nil
		}
		return fmt.Sprintf("Switched to branch %s", h.CurrentBranch), nil
	})
}

// mutateHistory loads the history, applies fn, and saves the result.
func mutateHistory(cmd *cobra.Command, fn func(h *history.History) (string, error)) error {
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
	msg, err := fn(h)
	if err != nil {
		return err
	}
	if err := s.db.SaveHistory(ctx, h); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
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

	from, to := "", h.CurrentVersionID
	switch len(args) {
	case 0:
		from = h.Current().ParentID
		if from == "" {
			return fmt.Errorf("version %s has no parent; name two versions to compare", shortID(to))
		}
	case 1:
		from = args[0]
	case 2:
		from, to = args[0], args[1]
	}

	d, err := h.Diff(from, to)
	if err != nil {
		return err
	}
	if diffJSON {
		return writeJSON(cmd.OutOrStdout(), d)
	}
	printDiff(cmd, d)
	return nil
}

func printDiff(cmd *cobra.Command, d *history.DiffResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Diff %s..%s\n", shortID(d.From), shortID(d.To))
	if d.Empty() {
		fmt.Fprintln(out, "  (no changes)")
		return
	}
	for _, n := range d.Nodes.Added {
		fmt.Fprintf(out, "  + %s %s %q\n", n.Type, n.ID, n.Label())
	}
	for _, n := range d.Nodes.Removed {
		fmt.Fprintf(out, "  - %s %s %q\n", n.Type, n.ID, n.Label())
	}
	for _, m := range d.Nodes.Modified {
		fmt.Fprintf(out, "  ~ %s %s\n", m.Type, m.ID)
		for _, c := range m.Changes {
			if before, after, ok := proseChange(c); ok {
				fmt.Fprintf(out, "      %s: %s\n", c.Field, history.InlineDiff(before, after))
				continue
			}
			fmt.Fprintf(out, "      %s: %v -> %v\n", c.Field, c.Before, c.After)
		}
	}
	for _, e := range d.Edges.Added {
		fmt.Fprintf(out, "  + %s %s -> %s\n", e.Type, e.From, e.To)
	}
	for _, e := range d.Edges.Removed {
		fmt.Fprintf(out, "  - %s %s -> %s\n", e.Type, e.From, e.To)
	}
	sum := d.Summary
	fmt.Fprintf(out, "Nodes: +%d -%d ~%d  Edges: +%d -%d\n",
		sum.NodesAdded, sum.NodesRemoved, sum.NodesModified, sum.EdgesAdded, sum.EdgesRemoved)
}

// proseChange reports whether a field change is long enough text to be
// shown as an inline diff.
func proseChange(c history.FieldChange) (string, string, bool) {
	before, ok1 := c.Before.(string)
	after, ok2 := c.After.(string)
	if !ok1 || !ok2 {
		return "", "", false
	}
	return before, after, len(before) > 40 || len(after) > 40
}

func runExport(cmd *cobra.Command, args []string) error {
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
	id := h.CurrentVersionID
	if exportVersion != "" {
		if id, err = h.Resolve(exportVersion); err != nil {
			return err
		}
	}
	v, err := h.Version(id)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), v.Graph)
}
