package rulecatalog

import (
	"testing"

	"github.com/procscope/procscope/pkg/snapshot"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_FirstMatchWins(t *testing.T) {
	catalog, err := New([]RuleSpec{
		{Name: "uvicorn", Match: MatchSpec{ProcessName: "python3", ArgvContains: "uvicorn"}, Template: "uvicorn", Icon: "python"},
		{Name: "any-python", Match: MatchSpec{ProcessName: "python3"}, Template: "python", Icon: "python"},
	})
	require.NoError(t, err)

	rec := &snapshot.ProcessRecord{
		PID:  10,
		Comm: "python3",
		Args: []string{"python3", "-m", "uvicorn", "app:app"},
	}
	rule, _ := catalog.FindMatch(rec)
	require.NotNil(t, rule)
	assert.Equal(t, "uvicorn", rule.Name())

	// drop the argv narrowing and the later rule wins
	rec.Args = []string{"python3", "script.py"}
	rule, _ = catalog.FindMatch(rec)
	require.NotNil(t, rule)
	assert.Equal(t, "any-python", rule.Name())
}

func TestCatalog_AllSubConditionsMustHold(t *testing.T) {
	catalog, err := New([]RuleSpec{
		{Name: "rails", Match: MatchSpec{ProcessName: "ruby", ArgvContains: "rails", EnvContains: "RAILS_ENV=prod"}, Template: "rails"},
	})
	require.NoError(t, err)

	rec := &snapshot.ProcessRecord{
		Comm: "ruby",
		Args: []string{"ruby", "bin/rails", "server"},
	}
	// env sub-condition specified but collector supplied no env data
	rule, _ := catalog.FindMatch(rec)
	assert.Nil(t, rule)

	rec.Env = map[string]string{"RAILS_ENV": "production"}
	rule, _ = catalog.FindMatch(rec)
	require.NotNil(t, rule)
	assert.Equal(t, "rails", rule.Name())
}

func TestCatalog_ProcessNameExactMatch(t *testing.T) {
	catalog, err := New([]RuleSpec{
		{Name: "node", Match: MatchSpec{ProcessName: "node"}, Template: "node"},
	})
	require.NoError(t, err)

	rule, _ := catalog.FindMatch(&snapshot.ProcessRecord{Comm: "Node"})
	assert.Nil(t, rule, "process name match is case-sensitive")

	rule, _ = catalog.FindMatch(&snapshot.ProcessRecord{Comm: "node"})
	assert.NotNil(t, rule)
}

func TestCatalog_ArgvRegexReturnsMatchedElement(t *testing.T) {
	catalog, err := New([]RuleSpec{
		{Name: "ruby-script", Match: MatchSpec{ProcessName: "ruby", ArgvRegex: `\S+\.rb`}, Template: "ruby {argv_match_basename}"},
	})
	require.NoError(t, err)

	rec := &snapshot.ProcessRecord{
		Comm: "ruby",
		Args: []string{"ruby", "-W0", "/srv/app/worker.rb", "--queue", "default"},
	}
	rule, regexElem := catalog.FindMatch(rec)
	require.NotNil(t, rule)
	assert.Equal(t, "/srv/app/worker.rb", regexElem)
}

func TestNew_InvalidRegexSkippedNotFatal(t *testing.T) {
	catalog, err := New([]RuleSpec{
		{Name: "broken", Match: MatchSpec{ArgvRegex: "("}, Template: "broken"},
		{Name: "ok", Match: MatchSpec{ProcessName: "sshd"}, Template: "sshd"},
	})
	assert.Error(t, err)
	require.NotNil(t, catalog)
	assert.Equal(t, 1, catalog.Len())

	rule, _ := catalog.FindMatch(&snapshot.ProcessRecord{Comm: "sshd"})
	require.NotNil(t, rule)
	assert.Equal(t, "ok", rule.Name())
}

func TestLoadFile_YAML(t *testing.T) {
	appFs := afero.NewMemMapFs()
	rules := `
- name: uvicorn
  match:
    processName: python3
    argvContains: uvicorn
  template: "uvicorn {argv_after:uvicorn|first} (port {argv_value:--port|default:8000})"
  icon: python
- name: next-dev
  match:
    processName: node
    argvContains: next
  template: "next {argv_after:next|first}"
  icon: node
`
	require.NoError(t, afero.WriteFile(appFs, "/etc/procscope/rules.yaml", []byte(rules), 0o644))

	catalog, err := LoadFile(appFs, "/etc/procscope/rules.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	rule, _ := catalog.FindMatch(&snapshot.ProcessRecord{
		Comm: "node",
		Args: []string{"node", "next", "dev"},
	})
	require.NotNil(t, rule)
	assert.Equal(t, "next-dev", rule.Name())
	assert.Equal(t, "node", rule.Icon())
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(afero.NewMemMapFs(), "/nope/rules.yaml")
	assert.Error(t, err)
}

func TestRule_HasPortPlaceholder(t *testing.T) {
	catalog, err := New([]RuleSpec{
		{Name: "with", Template: "x (port {port})"},
		{Name: "without", Template: "x (port {argv_value:--port|default:80})"},
	})
	require.NoError(t, err)
	rec := &snapshot.ProcessRecord{Comm: "x"}
	rule, _ := catalog.FindMatch(rec)
	require.NotNil(t, rule)
	assert.True(t, rule.HasPortPlaceholder())
}
