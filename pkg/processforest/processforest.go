package processforest

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/procscope/procscope/pkg/enrichment"
	"github.com/procscope/procscope/pkg/snapshot"
)

// EnrichedProcess is one node of the enriched forest handed to the
// presentation layer. It is plain data; consumers perform no further
// transformation on it.
type EnrichedProcess struct {
	Record snapshot.ProcessRecord
	Label  string
	Icon   string

	// ProjectRoot is filled in by the project grouping engine, empty when
	// no marker-bearing ancestor was found for the process's cwd.
	ProjectRoot string

	Children []*EnrichedProcess
}

// Builder constructs an enriched forest from one flat snapshot. It holds no
// per-invocation state, so one builder serves concurrent refresh cycles.
type Builder struct {
	enricher      enrichment.Engine
	rootSentinels mapset.Set[uint32]
}

// NewBuilder creates a forest builder. rootSentinels are parent pids treated
// as "no parent" (typically 0, plus 1 when init's children should surface as
// top-level roots).
func NewBuilder(enricher enrichment.Engine, rootSentinels []uint32) *Builder {
	sentinels := mapset.NewSet[uint32]()
	if len(rootSentinels) == 0 {
		sentinels.Add(0)
	}
	for _, pid := range rootSentinels {
		sentinels.Add(pid)
	}
	return &Builder{
		enricher:      enricher,
		rootSentinels: sentinels,
	}
}

// BuildForest indexes records by pid and parent pid and recursively builds
// the enriched forest. Every distinct input pid appears exactly once as a
// node: duplicate pids are discarded, cyclic parent chains are broken, and
// records on an orphaned cycle are re-rooted at their smallest pid.
func (b *Builder) BuildForest(records []snapshot.ProcessRecord) []*EnrichedProcess {
	byPID := make(map[uint32]*snapshot.ProcessRecord, len(records))
	for i := range records {
		rec := &records[i]
		if _, dup := byPID[rec.PID]; dup {
			logger.L().Warning("duplicate pid in snapshot, discarding later record",
				helpers.String("pid", fmt.Sprintf("%d", rec.PID)),
				helpers.String("comm", rec.Comm))
			continue
		}
		byPID[rec.PID] = rec
	}

	pids := make([]uint32, 0, len(byPID))
	for pid := range byPID {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	// children lists inherit the ascending pid order of the outer loop
	children := make(map[uint32][]uint32)
	var roots []uint32
	for _, pid := range pids {
		rec := byPID[pid]
		if b.isRoot(rec, byPID) {
			roots = append(roots, pid)
			continue
		}
		children[rec.PPID] = append(children[rec.PPID], pid)
	}

	visited := mapset.NewThreadUnsafeSet[uint32]()
	forest := make([]*EnrichedProcess, 0, len(roots))
	for _, pid := range roots {
		forest = append(forest, b.buildNode(pid, byPID, children, visited))
	}

	// Records left unvisited sit on a parent chain that loops back on
	// itself with no path from any root. Re-root each such cycle at its
	// smallest pid so the forest still contains every record.
	for _, pid := range pids {
		if visited.Contains(pid) {
			continue
		}
		logger.L().Warning("cyclic parent chain in snapshot, re-rooting",
			helpers.String("pid", fmt.Sprintf("%d", pid)),
			helpers.String("ppid", fmt.Sprintf("%d", byPID[pid].PPID)))
		forest = append(forest, b.buildNode(pid, byPID, children, visited))
	}

	return forest
}

func (b *Builder) isRoot(rec *snapshot.ProcessRecord, byPID map[uint32]*snapshot.ProcessRecord) bool {
	if b.rootSentinels.Contains(rec.PPID) {
		return true
	}
	if rec.PPID == rec.PID {
		return true
	}
	_, parentPresent := byPID[rec.PPID]
	return !parentPresent
}

// buildNode enriches pid and descends into its children, skipping any child
// already visited on this build so a malformed chain never recurses forever.
func (b *Builder) buildNode(pid uint32, byPID map[uint32]*snapshot.ProcessRecord, children map[uint32][]uint32, visited mapset.Set[uint32]) *EnrichedProcess {
	visited.Add(pid)
	rec := byPID[pid]
	label, icon := b.enricher.Enrich(rec)
	node := &EnrichedProcess{
		Record: *rec,
		Label:  label,
		Icon:   icon,
	}
	for _, childPID := range children[pid] {
		if visited.Contains(childPID) {
			logger.L().Warning("breaking process tree cycle",
				helpers.String("pid", fmt.Sprintf("%d", pid)),
				helpers.String("child", fmt.Sprintf("%d", childPID)))
			continue
		}
		node.Children = append(node.Children, b.buildNode(childPID, byPID, children, visited))
	}
	return node
}

// CountNodes returns the number of nodes in the forest, cycle-broken leaves
// included.
func CountNodes(forest []*EnrichedProcess) int {
	count := 0
	for _, node := range forest {
		count += 1 + CountNodes(node.Children)
	}
	return count
}

// Walk calls fn for every node of the forest in depth-first order.
func Walk(forest []*EnrichedProcess, fn func(*EnrichedProcess)) {
	for _, node := range forest {
		fn(node)
		Walk(node.Children, fn)
	}
}
