package pysrc

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateWellFormed(t *testing.T) {
	src := `class S:
    def f(self):
        try:
            return compute()
        except AttributeError as e:
            logger.warning(f"x: {e}")
            return 75
        except Exception as e:
            logger.warning(f"x: {e}")
`
	if err := NewValidator().Validate([]byte(src)); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
}

func TestValidateMalformedBlock(t *testing.T) {
	// The corruption this tool exists for: the input must fail to parse.
	src := `class S:
    def f(self):
        try:
                pass
        except AttributeError as e:
                logger.warning(f"x: {e}")
            except Exception as e:
                logger.warning(f"x: {e}")
            value = compute()
`
	err := NewValidator().Validate([]byte(src))
	if err == nil {
		t.Fatal("malformed input must not validate")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if verr.Line < 1 {
		t.Errorf("error should carry a position, got line %d", verr.Line)
	}
}

func TestValidateErrorMessageNamesLocation(t *testing.T) {
	err := NewValidator().Validate([]byte("def f(:\n    pass\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "line") {
		t.Errorf("error should name the line: %v", err)
	}
}

func TestValidateSnippet(t *testing.T) {
	block := strings.Join([]string{
		`        try:`,
		`            level = self.metrics.get_level(ai_type)`,
		`            return level`,
		`        except AttributeError as e:`,
		`            logger.warning(f"x: {e}")`,
		`        except Exception as e:`,
		`            logger.warning(f"x: {e}")`,
	}, "\n")
	if err := NewValidator().ValidateSnippet(block, "        "); err != nil {
		t.Fatalf("normalized block should parse in a synthetic scope: %v", err)
	}
}

func TestValidateSnippetTopLevel(t *testing.T) {
	block := "try:\n    x = 1\nexcept Exception as e:\n    pass"
	if err := NewValidator().ValidateSnippet(block, ""); err != nil {
		t.Fatalf("top-level block should parse without a wrapper: %v", err)
	}
}

func TestSyntheticScopeDepth(t *testing.T) {
	cases := []struct {
		indent string
		want   int
	}{
		{"", 0},
		{"    ", 1},
		{"        ", 2},
		{"\t", 2}, // one tab is 8 columns
		{"  ", 1}, // odd widths still get a wrapper
		{"      ", 2},
	}
	for _, tc := range cases {
		if got := len(syntheticScopes(tc.indent)); got != tc.want {
			t.Errorf("syntheticScopes(%q) depth = %d, want %d", tc.indent, got, tc.want)
		}
	}
}

func TestValidateSnippetTabIndent(t *testing.T) {
	block := strings.Join([]string{
		"\t\ttry:",
		"\t\t\tx = 1",
		"\t\texcept Exception as e:",
		"\t\t\tpass",
	}, "\n")
	if err := NewValidator().ValidateSnippet(block, "\t\t"); err != nil {
		t.Fatalf("tab-indented block should parse in a synthetic scope: %v", err)
	}
}

func TestValidateEmptyDocument(t *testing.T) {
	if err := NewValidator().Validate(nil); err != nil {
		t.Fatalf("empty document is valid Python: %v", err)
	}
}
