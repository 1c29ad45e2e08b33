// Package rewrite orchestrates end-to-end repair of one source document:
// scan for malformed blocks, normalize each one, splice the replacements,
// and gate any write behind a full re-parse. A file is either rewritten
// whole and valid, or left byte-identical to its pre-run state.
package rewrite

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"blockmend/internal/diff"
	"blockmend/internal/logging"
	"blockmend/internal/normalize"
	"blockmend/internal/scan"
	"blockmend/internal/signature"
)

// Validator gates the final document. Production code plugs in the
// tree-sitter validator from pysrc; tests can substitute failures.
type Validator interface {
	Validate(src []byte) error
}

// Status is the terminal state of one repair.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
)

// Result is the outcome of repairing one in-memory document.
type Result struct {
	Output      string
	BlocksFixed int
	Skipped     []scan.Span
	FinalStatus Status
	Err         error
}

// Report is the caller-facing record of one file repair, shaped for JSON
// output and for the history store.
type Report struct {
	ID                     string      `json:"id"`
	Path                   string      `json:"path"`
	BlocksFixed            int         `json:"blocks_fixed"`
	BlocksSkippedAmbiguous []scan.Span `json:"blocks_skipped_ambiguous"`
	FinalStatus            Status      `json:"final_status"`
	Changed                bool        `json:"changed"`
	Error                  string      `json:"error,omitempty"`
	Diff                   string      `json:"diff,omitempty"`
	DurationMS             int64       `json:"duration_ms"`
}

// Repairer repairs documents matching one defect signature.
type Repairer struct {
	scanner    *scan.Scanner
	normalizer *normalize.Normalizer
	validator  Validator
	differ     *diff.Engine

	// DryRun computes the repair and a unified diff without writing.
	DryRun bool
	// Backup copies the original to <path>.bak before overwriting.
	Backup bool
}

// New builds a repairer for the given signature and validator.
func New(sig *signature.Signature, v Validator) *Repairer {
	return &Repairer{
		scanner:    scan.New(sig),
		normalizer: normalize.New(sig),
		validator:  v,
		differ:     diff.NewEngine(),
	}
}

// RepairText repairs an in-memory document. Ambiguous blocks are skipped
// and reported, never fatal. When nothing was fixed the output is the
// input, exactly. When substitutions were made the result only counts as
// valid if the whole document re-parses.
func (r *Repairer) RepairText(src string) *Result {
	blocks := r.scanner.Scan(src)
	if len(blocks) == 0 {
		return &Result{Output: src, FinalStatus: StatusValid}
	}

	lines := strings.Split(src, "\n")
	replacements := make([]string, len(blocks))
	res := &Result{}
	for i, b := range blocks {
		text, err := r.normalizer.Normalize(lines, b)
		if err != nil {
			if !errors.Is(err, normalize.ErrAmbiguous) {
				// Normalization only fails closed; anything else is a bug,
				// but skipping is still the safe reaction.
				logging.RewriteError("unexpected normalize failure: %v", err)
			}
			res.Skipped = append(res.Skipped, b.Span())
			continue
		}
		replacements[i] = text
	}

	// Splice right to left so earlier offsets stay valid.
	out := src
	for i := len(blocks) - 1; i >= 0; i-- {
		if replacements[i] == "" {
			continue
		}
		b := blocks[i]
		repl := replacements[i]
		if b.EndOffset > 0 && b.EndOffset <= len(src) && src[b.EndOffset-1] == '\n' {
			repl += "\n"
		}
		out = out[:b.StartOffset] + repl + out[b.EndOffset:]
		res.BlocksFixed++
	}

	if res.BlocksFixed == 0 {
		res.Output = src
		res.FinalStatus = StatusValid
		return res
	}

	res.Output = out
	if err := r.validator.Validate([]byte(out)); err != nil {
		res.FinalStatus = StatusInvalid
		res.Err = fmt.Errorf("repaired document failed validation: %w", err)
		return res
	}
	res.FinalStatus = StatusValid
	return res
}

// RepairFile repairs the file at path and, unless in dry-run mode,
// overwrites it atomically when the result validates. On validation
// failure the on-disk file is untouched and the returned error names the
// parse location. The Report is returned even on failure.
func (r *Repairer) RepairFile(path string) (*Report, error) {
	start := time.Now()
	report := &Report{
		ID:          uuid.NewString(),
		Path:        path,
		FinalStatus: StatusValid,
	}
	defer func() { report.DurationMS = time.Since(start).Milliseconds() }()

	data, err := os.ReadFile(path)
	if err != nil {
		report.FinalStatus = StatusInvalid
		report.Error = err.Error()
		return report, fmt.Errorf("read %s: %w", path, err)
	}
	src := string(data)

	res := r.RepairText(src)
	report.BlocksFixed = res.BlocksFixed
	report.BlocksSkippedAmbiguous = res.Skipped
	report.FinalStatus = res.FinalStatus

	if res.FinalStatus == StatusInvalid {
		report.Error = res.Err.Error()
		logging.RewriteError("%s: %v", path, res.Err)
		return report, fmt.Errorf("%s: %w", path, res.Err)
	}

	if res.BlocksFixed == 0 {
		logging.RewriteDebug("%s: clean, no changes", path)
		return report, nil
	}

	report.Changed = true
	if r.DryRun {
		report.Diff = r.differ.Unified(path, src, res.Output)
		added, removed := r.differ.Stats(src, res.Output)
		logging.Rewrite("%s: %d block(s) would be fixed, +%d/-%d lines (dry run)",
			path, res.BlocksFixed, added, removed)
		return report, nil
	}

	if r.Backup {
		if err := os.WriteFile(path+".bak", data, 0644); err != nil {
			report.FinalStatus = StatusInvalid
			report.Error = err.Error()
			return report, fmt.Errorf("backup %s: %w", path, err)
		}
	}

	if err := atomicWrite(path, []byte(res.Output)); err != nil {
		report.FinalStatus = StatusInvalid
		report.Error = err.Error()
		return report, fmt.Errorf("write %s: %w", path, err)
	}

	logging.Rewrite("%s: fixed %d block(s), skipped %d", path, res.BlocksFixed, len(res.Skipped))
	return report, nil
}

// atomicWrite replaces path via a temp file + rename in the same
// directory, preserving the original mode. The original is never left in a
// half-written state.
func atomicWrite(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".blockmend-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
