// Package normalize rewrites one malformed block into a well-formed
// try/except construct. The dangling statements become the try body, the
// duplicated handler clauses collapse into a single ordered chain, and a
// terminal fallback value stranded inside the fragment is attached to the
// specific-exception handler instead of being left as dead code.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"blockmend/internal/logging"
	"blockmend/internal/scan"
	"blockmend/internal/signature"
)

// ErrAmbiguous is returned when the inner fragment cannot be uniquely
// delimited. The caller skips the block and reports it; guessing at the
// author's intent would risk destroying code.
var ErrAmbiguous = errors.New("ambiguous block: inner fragment cannot be determined")

// fallbackRe matches a bare "return <literal>" statement, the shape of
// the stranded default values the corruption left behind (return 75,
// return 50.0, return "unknown", return None).
var fallbackRe = regexp.MustCompile(`^return\s+(-?\d+(\.\d+)?|"[^"]*"|'[^']*'|True|False|None)\s*$`)

var returnRe = regexp.MustCompile(`^return\b`)

// Normalizer produces replacement text for blocks found by the scanner.
type Normalizer struct {
	sig *signature.Signature
}

// New builds a normalizer for the given signature.
func New(sig *signature.Signature) *Normalizer {
	return &Normalizer{sig: sig}
}

// Normalize returns the well-formed replacement for one block, given the
// document's lines. The result carries no trailing newline; the rewriter
// owns splicing. Returns ErrAmbiguous when the fragment is empty or its
// internal indentation conflicts.
func (n *Normalizer) Normalize(lines []string, b scan.Block) (string, error) {
	if !b.HasFragment() {
		logging.NormalizeDebug("block at line %d has no dangling fragment, skipping", b.StartLine+1)
		return "", fmt.Errorf("block at line %d: %w", b.StartLine+1, ErrAmbiguous)
	}

	fragment, err := n.extractFragment(lines, b)
	if err != nil {
		return "", err
	}

	fragment, fallback := n.detachFallback(fragment)

	bodyIndent := b.Indent + strings.Repeat(" ", n.sig.IndentUnit)
	var out []string
	out = append(out, b.Indent+n.sig.TryKeyword+":")
	for _, fl := range fragment {
		if fl.blank {
			out = append(out, "")
			continue
		}
		out = append(out, bodyIndent+strings.Repeat(" ", fl.relative)+fl.text)
	}

	// Specific handler first, carrying the original warning statement and
	// the stranded fallback; then the catch-all.
	out = append(out, n.handlerClause(b, n.sig.SpecificException, bodyIndent, fallback)...)
	out = append(out, n.handlerClause(b, n.sig.GeneralException, bodyIndent, "")...)

	logging.NormalizeDebug("block at line %d normalized: %d body lines, fallback=%v",
		b.StartLine+1, len(fragment), fallback != "")
	return strings.Join(out, "\n"), nil
}

// fragLine is one fragment line with its indentation relative to the
// fragment's base, so the body keeps its internal shape after re-indenting.
type fragLine struct {
	text     string
	relative int
	blank    bool
}

// extractFragment validates and flattens the fragment span. Every non-blank
// line must sit at or beyond the base indent of the fragment's first line;
// a dedent in between means the fragment's boundary is not unique and the
// block fails closed.
func (n *Normalizer) extractFragment(lines []string, b scan.Block) ([]fragLine, error) {
	base := -1
	var frag []fragLine
	for i := b.FragmentStart; i <= b.FragmentEnd; i++ {
		if strings.TrimSpace(lines[i]) == "" {
			frag = append(frag, fragLine{blank: true})
			continue
		}
		w := scan.IndentWidth(lines[i])
		if base < 0 {
			base = w
		}
		if w < base {
			logging.NormalizeDebug("fragment dedents at line %d (%d < %d)", i+1, w, base)
			return nil, fmt.Errorf("block at line %d: fragment dedents at line %d: %w",
				b.StartLine+1, i+1, ErrAmbiguous)
		}
		frag = append(frag, fragLine{text: strings.TrimSpace(lines[i]), relative: w - base})
	}
	// Trailing blanks belong to the surrounding file, not the block.
	for len(frag) > 0 && frag[len(frag)-1].blank {
		frag = frag[:len(frag)-1]
	}
	if len(frag) == 0 {
		return nil, fmt.Errorf("block at line %d: empty fragment: %w", b.StartLine+1, ErrAmbiguous)
	}
	return frag, nil
}

// detachFallback pulls a stranded terminal fallback out of the fragment.
// The rule: the last statement is a bare "return <literal>" at the
// fragment's base indent, and an earlier statement already returns, so
// inside the try it would be unreachable. The original author meant it as
// the on-error default.
func (n *Normalizer) detachFallback(frag []fragLine) ([]fragLine, string) {
	last := len(frag) - 1
	for last >= 0 && frag[last].blank {
		last--
	}
	if last <= 0 {
		return frag, ""
	}
	cand := frag[last]
	if cand.relative != 0 || !fallbackRe.MatchString(cand.text) {
		return frag, ""
	}
	earlierReturn := false
	for i := 0; i < last; i++ {
		if !frag[i].blank && returnRe.MatchString(frag[i].text) {
			earlierReturn = true
			break
		}
	}
	if !earlierReturn {
		// The literal return is the fragment's own result; leave it.
		return frag, ""
	}
	return frag[:last], cand.text
}

// handlerClause renders one handler with the captured body statements. The
// repaired file keeps the author's original wording rather than inventing
// new messages.
func (n *Normalizer) handlerClause(b scan.Block, exception, bodyIndent, fallback string) []string {
	clause := b.Indent + n.sig.ExceptKeyword + " " + exception
	if n.sig.Binder != "" {
		clause += " " + n.sig.Binder
	}
	out := []string{clause + ":"}
	for _, stmt := range b.HandlerBody {
		out = append(out, bodyIndent+stmt)
	}
	if len(b.HandlerBody) == 0 {
		out = append(out, bodyIndent+n.sig.PlaceholderBody)
	}
	if fallback != "" {
		out = append(out, bodyIndent+fallback)
	}
	return out
}
