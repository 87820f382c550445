package enrichment

import (
	"testing"

	"github.com/procscope/procscope/pkg/rulecatalog"
	"github.com/procscope/procscope/pkg/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T, specs []rulecatalog.RuleSpec) *rulecatalog.Catalog {
	t.Helper()
	catalog, err := rulecatalog.New(specs)
	require.NoError(t, err)
	return catalog
}

func TestEnrich_UvicornScenario(t *testing.T) {
	catalog := newCatalog(t, []rulecatalog.RuleSpec{
		{
			Name:     "uvicorn",
			Match:    rulecatalog.MatchSpec{ProcessName: "python3", ArgvContains: "uvicorn"},
			Template: "uvicorn {argv_after:uvicorn|first} (port {argv_value:--port|default:8000})",
			Icon:     "python",
		},
	})
	engine := NewEngine(catalog, 0)

	rec := &snapshot.ProcessRecord{
		PID:  42,
		Comm: "python3",
		Args: []string{"python3", "-m", "uvicorn", "atlas.main:app", "--port", "8080"},
	}
	label, icon := engine.Enrich(rec)
	assert.Equal(t, "uvicorn atlas.main:app (port 8080)", label)
	assert.Equal(t, "python", icon)
}

func TestEnrich_FallbackToRawName(t *testing.T) {
	engine := NewEngine(newCatalog(t, nil), 0)
	label, icon := engine.Enrich(&snapshot.ProcessRecord{PID: 7, Comm: "Finder"})
	assert.Equal(t, "Finder", label)
	assert.Equal(t, IconCategoryDefault, icon)
}

func TestEnrich_PortSuffixOnFallback(t *testing.T) {
	engine := NewEngine(newCatalog(t, nil), 0)
	rec := &snapshot.ProcessRecord{
		Comm:           "postgres",
		ListeningPorts: []uint16{5432},
	}
	label, _ := engine.Enrich(rec)
	assert.Equal(t, "postgres (port 5432)", label)
}

func TestEnrich_NoDoublePortSuffix(t *testing.T) {
	// the rule derives the port from argv; the universal suffix must not
	// append a second "(port N)"
	catalog := newCatalog(t, []rulecatalog.RuleSpec{
		{
			Name:     "uvicorn",
			Match:    rulecatalog.MatchSpec{ProcessName: "python3", ArgvContains: "uvicorn"},
			Template: "uvicorn {argv_after:uvicorn|first} (port {argv_value:--port|default:8000})",
		},
	})
	engine := NewEngine(catalog, 0)
	rec := &snapshot.ProcessRecord{
		Comm:           "python3",
		Args:           []string{"python3", "-m", "uvicorn", "app:app", "--port", "8080"},
		ListeningPorts: []uint16{8080},
	}
	label, _ := engine.Enrich(rec)
	assert.Equal(t, "uvicorn app:app (port 8080)", label)
}

func TestEnrich_PortPlaceholderRuleNotSuffixed(t *testing.T) {
	catalog := newCatalog(t, []rulecatalog.RuleSpec{
		{
			Name:     "caddy",
			Match:    rulecatalog.MatchSpec{ProcessName: "caddy"},
			Template: "caddy admin {port}",
		},
	})
	engine := NewEngine(catalog, 0)
	rec := &snapshot.ProcessRecord{
		Comm:           "caddy",
		ListeningPorts: []uint16{2019},
	}
	label, _ := engine.Enrich(rec)
	assert.Equal(t, "caddy admin 2019", label)
}

func TestEnrich_LowestListeningPortWins(t *testing.T) {
	engine := NewEngine(newCatalog(t, nil), 0)
	rec := &snapshot.ProcessRecord{
		Comm:           "nginx",
		ListeningPorts: []uint16{8443, 80, 443},
	}
	label, _ := engine.Enrich(rec)
	assert.Equal(t, "nginx (port 80)", label)
}

func TestEnrich_Deterministic(t *testing.T) {
	catalog := newCatalog(t, []rulecatalog.RuleSpec{
		{
			Name:     "node",
			Match:    rulecatalog.MatchSpec{ProcessName: "node"},
			Template: "node {cwd_basename}",
			Icon:     "node",
		},
	})
	engine := NewEngine(catalog, 0)
	rec := &snapshot.ProcessRecord{
		Comm: "node",
		Args: []string{"node", "server.js"},
		Cwd:  "/srv/web",
	}
	label1, icon1 := engine.Enrich(rec)
	label2, icon2 := engine.Enrich(rec)
	assert.Equal(t, label1, label2)
	assert.Equal(t, icon1, icon2)
}

func TestEnrich_MaxLabelLength(t *testing.T) {
	catalog := newCatalog(t, []rulecatalog.RuleSpec{
		{Name: "java", Match: rulecatalog.MatchSpec{ProcessName: "java"}, Template: "java {argv_after:-jar|first}"},
	})
	engine := NewEngine(catalog, 16)
	rec := &snapshot.ProcessRecord{
		Comm: "java",
		Args: []string{"java", "-jar", "very-long-application-artifact-name-SNAPSHOT.jar"},
	}
	label, _ := engine.Enrich(rec)
	assert.LessOrEqual(t, len([]rune(label)), 16)
}
