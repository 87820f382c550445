package snapshot

import (
	"strings"
	"time"
)

// ProcessRecord is one process as handed over by the external collector.
// Everything beyond PID/PPID/Comm is best-effort: missing argv, cwd, env or
// port data is normal and must never be treated as an error downstream.
type ProcessRecord struct {
	PID  uint32
	PPID uint32
	Comm string // raw display name

	Path string   // absolute executable path, if known
	Args []string // argv in order, may be empty

	Cwd string            // working directory, if known
	Env map[string]string // environment snapshot, nil when the collector cannot read it

	// ListeningPorts are the listening sockets owned by the process, as
	// observed by the collector. The enrichment core never derives these.
	ListeningPorts []uint16

	StartTime time.Time // zero when unknown

	Resources ResourceCounters
}

// JoinedArgs returns argv joined with single spaces. This is the form all
// argv sub-conditions and placeholder lookups evaluate against.
func (r *ProcessRecord) JoinedArgs() string {
	return strings.Join(r.Args, " ")
}

// DetectedPort returns the process's listening port used for labels, 0 when
// none. With several listeners the lowest port wins so labels stay stable
// across refresh cycles.
func (r *ProcessRecord) DetectedPort() int {
	port := 0
	for _, p := range r.ListeningPorts {
		if port == 0 || int(p) < port {
			port = int(p)
		}
	}
	return port
}

// ResourceCounters carry per-process resource usage. They are opaque to the
// enrichment core and only summed per project group.
type ResourceCounters struct {
	MemoryBytes   uint64
	CPUTimeMillis uint64
}

// Add returns the element-wise sum of c and other.
func (c ResourceCounters) Add(other ResourceCounters) ResourceCounters {
	return ResourceCounters{
		MemoryBytes:   c.MemoryBytes + other.MemoryBytes,
		CPUTimeMillis: c.CPUTimeMillis + other.CPUTimeMillis,
	}
}

// ContainerHint is a grouping hint derived from container runtime labels,
// supplied by the external container watcher.
type ContainerHint struct {
	ContainerID string

	// Compose labels, when present on the container.
	ComposeProject    string // com.docker.compose.project
	ComposeWorkingDir string // com.docker.compose.project.working_dir

	// PIDs are the processes known to run inside the container.
	PIDs []uint32
}
