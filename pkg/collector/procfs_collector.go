package collector

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/procscope/procscope/pkg/snapshot"
	"github.com/prometheus/procfs"
)

// ProcfsCollector produces one ProcessRecord snapshot per Collect call by
// scanning the proc filesystem. It is an optional input-boundary adapter;
// the enrichment core only ever sees the resulting records and works the
// same with any other collector.
type ProcfsCollector struct {
	fs procfs.FS
}

// procResult carries one scanned process out of the worker fan-out.
type procResult struct {
	record snapshot.ProcessRecord
	err    error
}

// NewProcfsCollector creates a collector over procfsPath, defaulting to
// /proc when empty.
func NewProcfsCollector(procfsPath string) (*ProcfsCollector, error) {
	if procfsPath == "" {
		procfsPath = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(procfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize procfs: %w", err)
	}
	return &ProcfsCollector{fs: fs}, nil
}

// Collect scans the proc filesystem once and returns the records it could
// read. Processes that vanish mid-scan are dropped, not errors.
func (c *ProcfsCollector) Collect(ctx context.Context) ([]snapshot.ProcessRecord, error) {
	procs, err := c.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	numWorkers := runtime.NumCPU()
	procChan := make(chan procfs.Proc, len(procs))
	resultsChan := make(chan procResult, len(procs))
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for proc := range procChan {
				record, err := c.readProcess(proc)
				resultsChan <- procResult{record: record, err: err}
			}
		}()
	}

	for _, proc := range procs {
		select {
		case <-ctx.Done():
			close(procChan)
			wg.Wait()
			return nil, ctx.Err()
		case procChan <- proc:
		}
	}
	close(procChan)
	wg.Wait()
	close(resultsChan)

	records := make([]snapshot.ProcessRecord, 0, len(procs))
	dropped := 0
	for res := range resultsChan {
		if res.err != nil {
			dropped++
			continue
		}
		records = append(records, res.record)
	}
	if dropped > 0 {
		logger.L().Debug("processes vanished during procfs scan",
			helpers.Int("dropped", dropped),
			helpers.Int("collected", len(records)))
	}
	return records, nil
}

// readProcess reads one process. Only pid/ppid/comm are required; cmdline,
// cwd, exe and environ are best-effort and frequently unreadable without
// privileges.
func (c *ProcfsCollector) readProcess(proc procfs.Proc) (snapshot.ProcessRecord, error) {
	record := snapshot.ProcessRecord{PID: uint32(proc.PID)}

	stat, err := proc.Stat()
	if err != nil {
		return record, err
	}
	record.PPID = uint32(stat.PPID)
	record.Comm = stat.Comm
	record.Resources = snapshot.ResourceCounters{
		MemoryBytes:   uint64(stat.ResidentMemory()),
		CPUTimeMillis: uint64(stat.CPUTime() * 1000),
	}

	if cmdline, err := proc.CmdLine(); err == nil {
		record.Args = cmdline
	}
	if cwd, err := proc.Cwd(); err == nil {
		record.Cwd = cwd
	}
	if exe, err := proc.Executable(); err == nil {
		record.Path = exe
	}
	if environ, err := proc.Environ(); err == nil && len(environ) > 0 {
		record.Env = make(map[string]string, len(environ))
		for _, kv := range environ {
			if k, v, ok := strings.Cut(kv, "="); ok {
				record.Env[k] = v
			}
		}
	}

	return record, nil
}
