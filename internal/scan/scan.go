// Package scan locates malformed exception-handling blocks in Python source
// text. Matching is structural (keyword + indentation) rather than a full
// parse: the whole point of the defect is that the surrounding file does not
// parse, so a real parser cannot be used on the input. One scanner handles
// the indentation and wording variants that the original per-incident regex
// scripts each hardcoded separately.
package scan

import (
	"regexp"
	"strings"

	"blockmend/internal/logging"
	"blockmend/internal/signature"
)

// Block is one located defect instance. Line indices are 0-based; byte
// offsets address the original document. The fragment span covers the
// dangling statements after the handler chain; FragmentStart > FragmentEnd
// means no fragment was found (the normalizer fails closed on that).
type Block struct {
	StartLine   int // try line
	EndLine     int // last line of the block, fragment included
	StartOffset int // byte offset of the try line's first character
	EndOffset   int // byte offset just past EndLine (newline included)

	Indent       string // leading whitespace of the try line
	IndentWidth  int
	HandlerCount int

	// HandlerBody holds the trimmed body lines of the first handler
	// clause (the warning call and its comment). The normalizer reuses
	// them verbatim in the rebuilt handler chain.
	HandlerBody []string

	FragmentStart int
	FragmentEnd   int
}

// Span is a 1-based inclusive line range, the unit reported to callers.
type Span struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// Span returns the block's position as a 1-based line range.
func (b Block) Span() Span {
	return Span{StartLine: b.StartLine + 1, EndLine: b.EndLine + 1}
}

// HasFragment reports whether any dangling statements follow the chain.
func (b Block) HasFragment() bool {
	return b.FragmentStart <= b.FragmentEnd
}

// Scanner finds defect instances matching one signature.
type Scanner struct {
	sig       *signature.Signature
	handlerRe *regexp.Regexp
}

// New builds a scanner for the given signature.
func New(sig *signature.Signature) *Scanner {
	// Matches a trimmed handler clause line: "except Foo as e:",
	// "except pkg.Err:", or a bare "except:". Trailing comment allowed.
	pattern := `^` + regexp.QuoteMeta(sig.ExceptKeyword) +
		`(\s+[\w.]+(\s+as\s+\w+)?)?\s*:\s*(#.*)?$`
	return &Scanner{
		sig:       sig,
		handlerRe: regexp.MustCompile(pattern),
	}
}

// Scan returns every malformed block in src, ordered by start offset and
// non-overlapping. A clean document yields an empty slice; that is the
// normal case, not an error. Only the outermost, leftmost candidate is kept
// per region: after a match is accepted, scanning resumes past its end.
func (s *Scanner) Scan(src string) []Block {
	lines := strings.Split(src, "\n")
	starts := lineStarts(lines)

	var blocks []Block
	for i := 0; i < len(lines); {
		b, ok := s.matchAt(lines, starts, len(src), i)
		if !ok {
			i++
			continue
		}
		blocks = append(blocks, b)
		logging.ScanDebug("defect at lines %d-%d (indent %d, %d handlers)",
			b.StartLine+1, b.EndLine+1, b.IndentWidth, b.HandlerCount)
		i = b.EndLine + 1
	}
	return blocks
}

// matchAt attempts to match the full defect signature starting at line i.
func (s *Scanner) matchAt(lines []string, starts []int, srcLen, i int) (Block, bool) {
	sig := s.sig

	// 1. A try clause opener.
	tryTrim := strings.TrimSpace(lines[i])
	if !isClauseLine(tryTrim, sig.TryKeyword) {
		return Block{}, false
	}
	tryIndent := leadingWhitespace(lines[i])
	tryWidth := IndentWidth(lines[i])

	// 2. Its body must be the no-op placeholder, over-indented or not. An
	// indent beyond one unit is drift evidence: no formatter produces it.
	j := nextNonBlank(lines, i+1)
	if j < 0 || strings.TrimSpace(lines[j]) != sig.PlaceholderBody || IndentWidth(lines[j]) <= tryWidth {
		return Block{}, false
	}
	drifted := IndentWidth(lines[j]) > tryWidth+sig.IndentUnit

	// 3. A run of handler clauses whose bodies are only logging and
	// comments. The defect's tell: handler indents drift, so anything at
	// or beyond the try's indent is accepted as part of the chain.
	j = nextNonBlank(lines, j+1)
	handlers := 0
	var firstBody []string
	lastBodyLine := -1
	for j >= 0 {
		trimmed := strings.TrimSpace(lines[j])
		if IndentWidth(lines[j]) < tryWidth || !s.handlerRe.MatchString(trimmed) {
			break
		}
		handlerWidth := IndentWidth(lines[j])
		if handlerWidth != tryWidth {
			drifted = true
		}
		body, end := s.handlerBody(lines, j+1, handlerWidth)
		if body == nil {
			// A handler doing real work is not part of the defect.
			return Block{}, false
		}
		if handlers == 0 {
			firstBody = body
		}
		handlers++
		lastBodyLine = end
		j = nextNonBlank(lines, end+1)
	}
	if handlers < sig.MinHandlers {
		return Block{}, false
	}

	// 4. The dangling fragment: everything after the chain that is still
	// indented deeper than the try, up to the next sibling statement.
	fragStart, fragEnd := fragmentSpan(lines, lastBodyLine+1, tryWidth)

	// A chain with nothing dangling and no indentation drift is legal,
	// intentional code, however odd it reads. The corruption always shows
	// at least one of the two.
	if fragStart > fragEnd && !drifted {
		return Block{}, false
	}

	end := lastBodyLine
	if fragStart <= fragEnd {
		end = fragEnd
	}

	return Block{
		StartLine:     i,
		EndLine:       end,
		StartOffset:   starts[i],
		EndOffset:     lineEnd(starts, lines, srcLen, end),
		Indent:        tryIndent,
		IndentWidth:   tryWidth,
		HandlerCount:  handlers,
		HandlerBody:   firstBody,
		FragmentStart: fragStart,
		FragmentEnd:   fragEnd,
	}, true
}

// handlerBody collects the body of one handler clause starting at line i.
// It returns the trimmed body lines and the index of the last body line.
// A real (non-logging) statement ends the body: it belongs to the dangling
// fragment, or kills the candidate later via min_handlers. A handler with
// no logging call at all returns nil and disqualifies the candidate: that
// handler is doing real work and the region is not the known corruption.
func (s *Scanner) handlerBody(lines []string, i, handlerWidth int) ([]string, int) {
	var body []string
	last := i - 1
	sawLog := false
	for j := i; j < len(lines); j++ {
		trimmed := strings.TrimSpace(lines[j])
		if trimmed == "" {
			continue
		}
		// The next handler clause ends this body no matter how far it
		// drifted to the right; that drift is the defect itself.
		if IndentWidth(lines[j]) <= handlerWidth || s.handlerRe.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, "#") {
			body = append(body, trimmed)
			last = j
			continue
		}
		if s.sig.IsLogCall(trimmed) {
			body = append(body, trimmed)
			sawLog = true
			last = j
			continue
		}
		break
	}
	if !sawLog {
		return nil, last
	}
	return body, last
}

// fragmentSpan delimits the dangling statements after the handler chain:
// consecutive lines indented deeper than the enclosing scope, trailing
// blanks trimmed. Returns (1, 0) when nothing dangles.
func fragmentSpan(lines []string, from, enclosingWidth int) (int, int) {
	start := nextNonBlank(lines, from)
	if start < 0 || IndentWidth(lines[start]) <= enclosingWidth {
		return 1, 0
	}
	end := start
	for j := start; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == "" {
			continue
		}
		if IndentWidth(lines[j]) <= enclosingWidth {
			break
		}
		end = j
	}
	return start, end
}

// isClauseLine reports whether a trimmed line opens the given clause, with
// an optional trailing comment ("try:" or "try:  # note").
func isClauseLine(trimmed, keyword string) bool {
	if !strings.HasPrefix(trimmed, keyword+":") {
		return false
	}
	rest := strings.TrimSpace(trimmed[len(keyword)+1:])
	return rest == "" || strings.HasPrefix(rest, "#")
}

// IndentWidth returns the column width of a line's leading whitespace,
// with tabs expanded to 8 columns as Python's tokenizer does.
func IndentWidth(line string) int {
	w := 0
	for _, r := range line {
		switch r {
		case ' ':
			w++
		case '\t':
			w += 8 - w%8
		default:
			return w
		}
	}
	return w
}

func leadingWhitespace(line string) string {
	for i, r := range line {
		if r != ' ' && r != '\t' {
			return line[:i]
		}
	}
	return line
}

func nextNonBlank(lines []string, from int) int {
	for j := from; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) != "" {
			return j
		}
	}
	return -1
}

// lineStarts computes the byte offset of each line.
func lineStarts(lines []string) []int {
	starts := make([]int, len(lines))
	off := 0
	for i, l := range lines {
		starts[i] = off
		off += len(l) + 1 // newline
	}
	return starts
}

// lineEnd returns the byte offset just past line i, including its newline
// when one exists.
func lineEnd(starts []int, lines []string, srcLen, i int) int {
	end := starts[i] + len(lines[i])
	if end < srcLen {
		end++ // the newline belongs to the replaced region
	}
	return end
}
