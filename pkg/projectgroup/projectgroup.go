package projectgroup

import (
	"path/filepath"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/goradd/maps"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/procscope/procscope/pkg/processforest"
	"github.com/procscope/procscope/pkg/snapshot"
	"github.com/spf13/afero"
)

// DefaultMarkers are the files and directories whose presence marks a
// directory as a project root, checked in order at each ancestor level.
var DefaultMarkers = []string{
	".git",
	".hg",
	".svn",
	"go.mod",
	"package.json",
	"pyproject.toml",
	"requirements.txt",
	"Cargo.toml",
	"Gemfile",
	"pom.xml",
	"build.gradle",
	"mix.exs",
	"docker-compose.yml",
	"compose.yaml",
}

// ProjectGroup is one inferred project and its member processes. Groups are
// rebuilt from scratch every refresh cycle; ID is opaque and never stable
// across cycles.
type ProjectGroup struct {
	ID   string
	Root string
	Name string // container-derived override, empty otherwise

	PIDs      []uint32 // sorted, unique
	Resources snapshot.ResourceCounters
}

type rootResult struct {
	root  string
	found bool
}

// Engine assigns processes to inferred project roots via an upward
// filesystem marker walk and aggregates per-group resource totals. The walk
// result is memoized per distinct working directory.
type Engine struct {
	appFs    afero.Fs
	markers  []string
	resolved *expirable.LRU[string, rootResult]
	hints    maps.SafeMap[string, snapshot.ContainerHint] // containerID -> hint
}

// NewEngine creates a grouping engine over appFs. markers defaults to
// DefaultMarkers when empty.
func NewEngine(appFs afero.Fs, markers []string, cacheSize int, cacheTTL time.Duration) *Engine {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	return &Engine{
		appFs:    appFs,
		markers:  markers,
		resolved: expirable.NewLRU[string, rootResult](cacheSize, nil, cacheTTL),
	}
}

// RegisterHint records a container-derived grouping hint. Safe for
// concurrent use with GroupByProject.
func (e *Engine) RegisterHint(hint snapshot.ContainerHint) {
	if hint.ContainerID == "" {
		return
	}
	e.hints.Set(hint.ContainerID, hint)
}

// RemoveHint drops the hint for a container that went away.
func (e *Engine) RemoveHint(containerID string) {
	e.hints.Delete(containerID)
}

// FindProjectRoot walks dir and its ancestors toward the filesystem root and
// returns the nearest directory containing a marker. Filesystem errors at a
// level read as "marker absent" and the walk continues upward.
func (e *Engine) FindProjectRoot(dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	dir = filepath.Clean(dir)
	if cached, ok := e.resolved.Get(dir); ok {
		return cached.root, cached.found
	}

	result := rootResult{}
	for d := dir; ; {
		if e.hasMarker(d) {
			result = rootResult{root: d, found: true}
			break
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	e.resolved.Add(dir, result)
	return result.root, result.found
}

func (e *Engine) hasMarker(dir string) bool {
	for _, marker := range e.markers {
		if _, err := e.appFs.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// groupAccum accumulates one group during a grouping pass.
type groupAccum struct {
	root    string
	name    string
	members mapset.Set[uint32]
	res     snapshot.ResourceCounters
}

// GroupByProject resolves a project root for every node with a working
// directory, annotates the node, and returns the resulting groups with
// container hints merged in. A process belongs to at most one group;
// processes with no resolvable root stay in the forest but in no group.
func (e *Engine) GroupByProject(forest []*processforest.EnrichedProcess) []ProjectGroup {
	accums := make(map[string]*groupAccum)
	assigned := mapset.NewThreadUnsafeSet[uint32]()
	byPID := make(map[uint32]*processforest.EnrichedProcess)

	accum := func(key, root string) *groupAccum {
		g, ok := accums[key]
		if !ok {
			g = &groupAccum{root: root, members: mapset.NewThreadUnsafeSet[uint32]()}
			accums[key] = g
		}
		return g
	}

	processforest.Walk(forest, func(node *processforest.EnrichedProcess) {
		byPID[node.Record.PID] = node
		if node.Record.Cwd == "" {
			return
		}
		root, found := e.FindProjectRoot(node.Record.Cwd)
		if !found {
			return
		}
		node.ProjectRoot = root
		pid := node.Record.PID
		if assigned.Contains(pid) {
			return
		}
		g := accum(root, root)
		g.members.Add(pid)
		g.res = g.res.Add(node.Record.Resources)
		assigned.Add(pid)
	})

	e.hints.Range(func(containerID string, hint snapshot.ContainerHint) bool {
		e.mergeHint(hint, accums, accum, assigned, byPID)
		return true
	})

	groups := make([]ProjectGroup, 0, len(accums))
	for _, g := range accums {
		pids := g.members.ToSlice()
		sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
		groups = append(groups, ProjectGroup{
			ID:        uuid.NewString(),
			Root:      g.root,
			Name:      g.name,
			PIDs:      pids,
			Resources: g.res,
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Root != groups[j].Root {
			return groups[i].Root < groups[j].Root
		}
		return groups[i].Name < groups[j].Name
	})
	return groups
}

// mergeHint folds one container descriptor into the groups: into the group
// whose root matches the compose working directory when there is one,
// otherwise into a new group keyed by the compose label.
func (e *Engine) mergeHint(hint snapshot.ContainerHint, accums map[string]*groupAccum, accum func(key, root string) *groupAccum, assigned mapset.Set[uint32], byPID map[uint32]*processforest.EnrichedProcess) {
	if hint.ComposeProject == "" && hint.ComposeWorkingDir == "" {
		return
	}

	var g *groupAccum
	if hint.ComposeWorkingDir != "" {
		workDir := filepath.Clean(hint.ComposeWorkingDir)
		if existing, ok := accums[workDir]; ok {
			g = existing
		} else {
			g = accum(workDir, workDir)
		}
	} else {
		g = accum("compose:"+hint.ComposeProject, "")
	}
	if hint.ComposeProject != "" {
		g.name = hint.ComposeProject
	}

	for _, pid := range hint.PIDs {
		if assigned.Contains(pid) {
			continue
		}
		node, inForest := byPID[pid]
		if !inForest {
			logger.L().Debug("container hint pid not in snapshot, skipping",
				helpers.String("containerID", hint.ContainerID),
				helpers.Int("pid", int(pid)))
			continue
		}
		g.members.Add(pid)
		g.res = g.res.Add(node.Record.Resources)
		assigned.Add(pid)
	}
}
