// Package main provides the apollo CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kobst/project-apollo-sub005/beats"
	"github.com/kobst/project-apollo-sub005/history"
	"github.com/kobst/project-apollo-sub005/internal/config"
	"github.com/kobst/project-apollo-sub005/internal/logging"
	"github.com/kobst/project-apollo-sub005/internal/store"
	"github.com/kobst/project-apollo-sub005/lint"
)

// Version is the current apollo CLI version
var Version = "0.3.0"

var (
	dbFlag       string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:           "apollo",
	Short:         "Apollo - versioned story graphs",
	Long:          `Apollo keeps a story as a typed graph, edits it through validated patches, and records every edit as a version on a branch.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Story database (default $APOLLO_DB or .apollo/story.db)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session is the state shared by a single command run.
type session struct {
	cfg *config.Config
	log *zap.Logger
	db  *store.DB
	tpl *beats.Template
}

// metaTemplate holds the YAML of the template a story was created with.
const metaTemplate = "template"

func openSession(ctx context.Context) (*session, error) {
	cfg := config.FromArgs(dbFlag, logLevelFlag)
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: logger, db: db}
	if s.tpl, err = s.template(ctx); err != nil {
		s.Close()
		return nil, err
	}
	logger.Debug("opened story", zap.String("db", cfg.DBPath), zap.String("template", s.tpl.Name))
	return s, nil
}

// template returns the story's own template, then the configured one, then
// the built-in one.
func (s *session) template(ctx context.Context) (*beats.Template, error) {
	stored, ok, err := s.db.Meta(ctx, metaTemplate)
	if err != nil {
		return nil, err
	}
	if ok {
		tpl, err := beats.Parse([]byte(stored))
		if err != nil {
			return nil, fmt.Errorf("parsing stored template: %w", err)
		}
		return tpl, nil
	}
	if s.cfg.Template != "" {
		return beats.Load(s.cfg.Template)
	}
	return beats.Default(), nil
}

func (s *session) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Warn("closing database", zap.Error(err))
	}
	_ = s.log.Sync()
}

// history loads the stored history or explains how to create one.
func (s *session) history(ctx context.Context) (*history.History, error) {
	h, err := s.db.LoadHistory(ctx)
	if errors.Is(err, store.ErrNoHistory) {
		return nil, fmt.Errorf("no story at %s. Run 'apollo init' first", s.cfg.DBPath)
	}
	return h, err
}

// engine builds the lint engine, applying the lint config when one is set.
func (s *session) engine() (*lint.Engine, error) {
	reg := lint.DefaultRegistry(s.tpl)
	maxNodes := s.cfg.MaxScopeNodes
	if s.cfg.LintConfig != "" {
		lc, err := lint.LoadConfig(s.cfg.LintConfig)
		if err != nil {
			return nil, err
		}
		reg = reg.Filter(lc)
		if lc.MaxScopeNodes > 0 {
			maxNodes = lc.MaxScopeNodes
		}
	}
	return lint.NewEngine(reg, lint.WithLogger(s.log), lint.WithMaxScopeNodes(maxNodes)), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// shortID safely truncates an ID string to 12 characters.
func shortID(s string) string {
	if len(s) >= 12 {
		return s[:12]
	}
	return s
}
