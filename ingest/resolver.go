package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// TraceExt is the extension of the binary trace containers we ingest.
const TraceExt = ".etl"

// Pending is the difference between the input directory and the registry.
type Pending struct {
	// New files are on disk but not registered; these get ingested.
	New []string
	// Missing files are registered but gone from disk; they are only reported.
	Missing []string
}

// All returns both halves, sorted.
func (p Pending) All() []string {
	all := make([]string, 0, len(p.New)+len(p.Missing))
	all = append(all, p.New...)
	all = append(all, p.Missing...)
	sort.Strings(all)
	return all
}

// ResolvePending computes the symmetric difference of the registry and the
// files on disk. Duplicates on either side collapse; results are sorted.
func ResolvePending(registry, onDisk []string) Pending {
	reg := toSet(registry)
	disk := toSet(onDisk)
	var p Pending
	for name := range disk {
		if _, ok := reg[name]; !ok {
			p.New = append(p.New, name)
		}
	}
	for name := range reg {
		if _, ok := disk[name]; !ok {
			p.Missing = append(p.Missing, name)
		}
	}
	sort.Strings(p.New)
	sort.Strings(p.Missing)
	return p
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// listTraceFiles returns the basenames of the regular *.etl files in dir.
// The extension match ignores case.
func listTraceFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), TraceExt) {
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// PendingFiles lists the input directory and the registry and resolves
// which files still need work.
func (r *Runner) PendingFiles(ctx context.Context) (Pending, error) {
	onDisk, err := listTraceFiles(r.cfg.InputDir)
	if err != nil {
		return Pending{}, WithOp(Wrapf(err, ErrorCodeUnknown, "list %s", r.cfg.InputDir), "pendingFiles")
	}
	registry, err := r.store.ProcessedFiles(ctx)
	if err != nil {
		return Pending{}, WithOp(err, "pendingFiles")
	}
	return ResolvePending(registry, onDisk), nil
}
