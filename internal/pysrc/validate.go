// Package pysrc validates that Python source text parses. It is the gate
// the rewriter runs before anything is written back: a repair that does not
// survive a real parse never reaches disk. Unlike the input, which is
// broken by definition, the output is supposed to be well-formed, so a
// real parser applies.
package pysrc

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"blockmend/internal/scan"
)

// ValidationError reports the first structural error found in a document.
type ValidationError struct {
	Line   int // 1-based
	Column int // 1-based
	Near   string
}

func (e *ValidationError) Error() string {
	if e.Near != "" {
		return fmt.Sprintf("parse error at line %d, column %d near %q", e.Line, e.Column, e.Near)
	}
	return fmt.Sprintf("parse error at line %d, column %d", e.Line, e.Column)
}

// Validator wraps a tree-sitter parser configured for Python.
type Validator struct {
	parser *sitter.Parser
}

// NewValidator creates a Python parse validator.
func NewValidator() *Validator {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	return &Validator{parser: parser}
}

// Validate parses src and returns a *ValidationError describing the first
// ERROR or MISSING node, or nil when the document is well-formed.
func (v *Validator) Validate(src []byte) error {
	tree, err := v.parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}

	bad := firstErrorNode(root)
	if bad == nil {
		// HasError with no locatable node; report the document start.
		return &ValidationError{Line: 1, Column: 1}
	}
	return &ValidationError{
		Line:   int(bad.StartPoint().Row) + 1,
		Column: int(bad.StartPoint().Column) + 1,
		Near:   excerpt(src, bad),
	}
}

// ValidateSnippet checks a normalized block in isolation by wrapping it in
// a synthetic enclosing scope at the block's indentation. indent is the
// block's own leading whitespace; the wrapper supplies every level above it.
func (v *Validator) ValidateSnippet(block, indent string) error {
	var sb strings.Builder
	depth := 0
	for _, scope := range syntheticScopes(indent) {
		sb.WriteString(strings.Repeat("    ", depth))
		sb.WriteString(scope)
		sb.WriteString("\n")
		depth++
	}
	sb.WriteString(block)
	sb.WriteString("\n")
	return v.Validate([]byte(sb.String()))
}

// syntheticScopes builds enough nested def/class shells to make the given
// indentation legal. Depth comes from the indent's column width, with tabs
// counted the way the tokenizer counts them, so a block indented 8 columns
// needs two enclosing scopes whether that is spaces or one tab.
func syntheticScopes(indent string) []string {
	levels := (scan.IndentWidth(indent) + 3) / 4
	scopes := make([]string, 0, levels)
	for i := 0; i < levels; i++ {
		if i == 0 && levels > 1 {
			scopes = append(scopes, "class _Probe:")
		} else {
			scopes = append(scopes, fmt.Sprintf("def _probe%d(self):", i))
		}
	}
	return scopes
}

// firstErrorNode walks the tree depth-first for the first ERROR or MISSING
// node so the failure can be reported with a position.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// excerpt returns a short snippet of the source at the node, for error text.
func excerpt(src []byte, node *sitter.Node) string {
	start, end := node.StartByte(), node.EndByte()
	if int(start) >= len(src) {
		return ""
	}
	if int(end) > len(src) {
		end = uint32(len(src))
	}
	s := string(src[start:end])
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 40 {
		s = s[:40]
	}
	return strings.TrimSpace(s)
}
