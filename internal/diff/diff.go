// Package diff renders unified diffs for dry-run previews and reports,
// using the sergi/go-diff engine for the underlying line diffing.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const contextLines = 3

// Engine computes line-level diffs between document versions.
type Engine struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// NewEngine creates a diff engine tuned for source text.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // favor accuracy; repair inputs are small
	return &Engine{dmp: dmp}
}

// lineOp is one line of the diff, tagged with its operation.
type lineOp struct {
	op      diffmatchpatch.Operation
	oldLine int // 1-based, 0 for insertions
	newLine int // 1-based, 0 for deletions
	text    string
}

// Stats returns the number of added and removed lines between old and new.
func (e *Engine) Stats(old, new string) (added, removed int) {
	for _, op := range e.lineOps(old, new) {
		switch op.op {
		case diffmatchpatch.DiffInsert:
			added++
		case diffmatchpatch.DiffDelete:
			removed++
		}
	}
	return added, removed
}

// Unified renders a unified diff between old and new with standard
// ---/+++ headers and @@ hunk markers. Identical inputs yield "".
func (e *Engine) Unified(path, old, new string) string {
	ops := e.lineOps(old, new)
	hunks := groupHunks(ops)
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", path, path)
	for _, h := range hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.oldStart, h.oldCount, h.newStart, h.newCount)
		for _, op := range h.ops {
			switch op.op {
			case diffmatchpatch.DiffDelete:
				sb.WriteString("-")
			case diffmatchpatch.DiffInsert:
				sb.WriteString("+")
			default:
				sb.WriteString(" ")
			}
			sb.WriteString(op.text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// lineOps produces per-line operations via the char-mapping trick, which
// avoids newline boundary artifacts when converting char diffs to lines.
func (e *Engine) lineOps(old, new string) []lineOp {
	a, b, lineArray := e.dmp.DiffLinesToChars(old, new)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	var ops []lineOp
	oldLine, newLine := 1, 1
	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		for _, text := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, lineOp{op: d.Type, oldLine: oldLine, newLine: newLine, text: text})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, lineOp{op: d.Type, oldLine: oldLine, text: text})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, lineOp{op: d.Type, newLine: newLine, text: text})
				newLine++
			}
		}
	}
	return ops
}

// hunk is a run of changes with surrounding context.
type hunk struct {
	oldStart, oldCount int
	newStart, newCount int
	ops                []lineOp
}

// groupHunks clusters changed lines into hunks with contextLines of
// surrounding equal lines, merging hunks whose contexts would touch.
func groupHunks(ops []lineOp) []hunk {
	changed := make([]int, 0)
	for i, op := range ops {
		if op.op != diffmatchpatch.DiffEqual {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	var hunks []hunk
	start := max(0, changed[0]-contextLines)
	end := min(len(ops)-1, changed[0]+contextLines)
	for _, ci := range changed[1:] {
		if ci-contextLines <= end+1 {
			end = min(len(ops)-1, ci+contextLines)
			continue
		}
		hunks = append(hunks, buildHunk(ops[start:end+1]))
		start = max(0, ci-contextLines)
		end = min(len(ops)-1, ci+contextLines)
	}
	hunks = append(hunks, buildHunk(ops[start:end+1]))
	return hunks
}

func buildHunk(ops []lineOp) hunk {
	h := hunk{ops: ops}
	for _, op := range ops {
		if op.op != diffmatchpatch.DiffInsert {
			if h.oldStart == 0 {
				h.oldStart = op.oldLine
			}
			h.oldCount++
		}
		if op.op != diffmatchpatch.DiffDelete {
			if h.newStart == 0 {
				h.newStart = op.newLine
			}
			h.newCount++
		}
	}
	return h
}
