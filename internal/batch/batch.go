// Package batch drives repairs across many files. Each file's repair is
// independent, so the driver fans out with bounded concurrency and
// aggregates per-file reports into one summary. A failed file never stops
// the rest of the run.
package batch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"blockmend/internal/logging"
	"blockmend/internal/rewrite"
)

// DefaultJobs bounds concurrency when the caller does not choose one.
const DefaultJobs = 4

// Summary aggregates the outcome of one batch run.
type Summary struct {
	FilesScanned  int               `json:"files_scanned"`
	FilesChanged  int               `json:"files_changed"`
	FilesFailed   int               `json:"files_failed"`
	BlocksFixed   int               `json:"blocks_fixed"`
	BlocksSkipped int               `json:"blocks_skipped_ambiguous"`
	Reports       []*rewrite.Report `json:"reports"`
}

// Failed reports whether any file in the run failed validation or I/O.
func (s *Summary) Failed() bool { return s.FilesFailed > 0 }

// Runner repairs a set of files with bounded parallelism.
type Runner struct {
	repairer *rewrite.Repairer
	jobs     int
}

// NewRunner builds a batch runner around one repairer. jobs <= 0 selects
// DefaultJobs.
func NewRunner(repairer *rewrite.Repairer, jobs int) *Runner {
	if jobs <= 0 {
		jobs = DefaultJobs
	}
	return &Runner{repairer: repairer, jobs: jobs}
}

// Run expands targets and repairs every resolved file. The returned
// Summary covers all files, including failed ones; the error is non-nil
// only when target expansion itself fails.
func (r *Runner) Run(ctx context.Context, targets []string) (*Summary, error) {
	paths, err := ExpandTargets(targets)
	if err != nil {
		return nil, err
	}
	logging.Batch("repairing %d file(s) with %d worker(s)", len(paths), r.jobs)

	summary := &Summary{}
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.jobs)
	for _, path := range paths {
		path := path
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			report, repairErr := r.repairer.RepairFile(path)

			mu.Lock()
			defer mu.Unlock()
			summary.FilesScanned++
			summary.Reports = append(summary.Reports, report)
			summary.BlocksFixed += report.BlocksFixed
			summary.BlocksSkipped += len(report.BlocksSkippedAmbiguous)
			if report.Changed {
				summary.FilesChanged++
			}
			if repairErr != nil {
				summary.FilesFailed++
				logging.BatchWarn("%s: %v", path, repairErr)
			}
			return nil // per-file failures do not abort the run
		})
	}
	if err := eg.Wait(); err != nil {
		return summary, err
	}

	sort.Slice(summary.Reports, func(i, j int) bool {
		return summary.Reports[i].Path < summary.Reports[j].Path
	})
	return summary, nil
}

// ExpandTargets resolves files, directories and glob patterns into a
// sorted, de-duplicated list of Python files. Directories are walked
// recursively for *.py.
func ExpandTargets(targets []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	for _, target := range targets {
		if strings.ContainsAny(target, "*?[") {
			matches, err := filepath.Glob(target)
			if err != nil {
				return nil, fmt.Errorf("bad pattern %q: %w", target, err)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		info, err := os.Stat(target)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", target, err)
		}
		if !info.IsDir() {
			add(target)
			continue
		}
		err = filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				// Skip hidden directories; nothing repairable lives there.
				if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(p, ".py") {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", target, err)
		}
	}

	sort.Strings(paths)
	return paths, nil
}
