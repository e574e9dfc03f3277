package lint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kobst/project-apollo-sub005/graph"
)

func TestConfig_FilterAndSeverity(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
disable:
  - "completeness/*"
  - "thematic/**"
enable:
  - completeness/scene-missing-location
severity:
  completeness/scene-missing-location: hard
maxScopeNodes: 50
`))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.MaxScopeNodes)

	base := DefaultRegistry(nil)
	reg := base.Filter(cfg)

	assert.Nil(t, reg.Rule(RuleSceneMissingCharacter))
	assert.Nil(t, reg.Rule(RuleThemeUnexpressed))
	assert.NotNil(t, reg.Rule(RuleSceneOrderUnique))

	loc := reg.Rule(RuleSceneMissingLocation)
	require.NotNil(t, loc)
	assert.Equal(t, SeverityHard, loc.Severity)
	assert.Equal(t, SeveritySoft, base.Rule(RuleSceneMissingLocation).Severity, "base registry changed")

	g := graph.NewState()
	g.ReplaceNode(graph.NewNode("s1", graph.TypeScene, map[string]any{"heading": "INT. HALL"}))
	res := NewEngine(reg).Lint(g, nil)
	assert.Equal(t, 1, res.ErrorCount)
	assert.Equal(t, 0, res.WarningCount)
}

func TestConfig_Rejects(t *testing.T) {
	_, err := ParseConfig([]byte("severity:\n  ordering/scene-order-unique: fatal\n"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("disable:\n  - \"ordering/[\"\n"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lint.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disable: [\"**\"]\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Zero(t, DefaultRegistry(nil).Filter(cfg).Len())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRegistry_Register(t *testing.T) {
	noop := func(*graph.State, *Scope) []Violation { return nil }

	_, err := NewRegistry(&Rule{ID: "flat", Severity: SeveritySoft, Evaluate: noop})
	assert.Error(t, err)

	_, err = NewRegistry(
		&Rule{ID: "custom/a", Severity: SeveritySoft, Evaluate: noop},
		&Rule{ID: "custom/a", Severity: SeveritySoft, Evaluate: noop},
	)
	assert.Error(t, err)

	reg, err := NewRegistry(&Rule{ID: "custom/b", Severity: SeverityHard, Evaluate: noop})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
	assert.Len(t, DefaultRegistry(nil).Rules(), 11)
}

func TestConfig_SeverityOverrideControlsPrecommit(t *testing.T) {
	cfg, err := ParseConfig([]byte("severity:\n  structure/beat-template-position: soft\n  completeness/scene-missing-location: hard\n"))
	require.NoError(t, err)
	e := NewEngine(DefaultRegistry(nil).Filter(cfg))

	misplaced := newGraph(beatNode("b1", "Catalyst", 3, 4))
	res := e.Lint(misplaced, nil)
	vs := violationsOf(res, RuleBeatTemplatePosition)
	require.Len(t, vs, 1)
	assert.Equal(t, SeveritySoft, vs[0].Severity)
	assert.Equal(t, CategoryStructure, vs[0].Category)
	assert.Zero(t, res.ErrorCount)
	assert.NoError(t, e.Precommit(misplaced))

	unlocated := newGraph(graph.NewNode("s1", graph.TypeScene, map[string]any{"heading": "INT. HALL"}))
	err = e.Precommit(unlocated)
	var be *BlockingError
	require.ErrorAs(t, err, &be)
	require.Len(t, be.Violations, 1)
	assert.Equal(t, RuleSceneMissingLocation, be.Violations[0].RuleID)
	assert.Equal(t, SeverityHard, be.Violations[0].Severity)
}
