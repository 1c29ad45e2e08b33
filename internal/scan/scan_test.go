package scan

import (
	"strings"
	"testing"

	"blockmend/internal/signature"
)

// defectMethod is the corruption shape observed in the wild: placeholder
// try body, two handlers at drifting indents holding only a warning and a
// comment, then the real statements dangling after the chain.
const defectMethod = `class CustodyService:
    def _get_ai_level(self, ai_type):
        try:
                pass
        except AttributeError as e:
                logger.warning(f"method not available: {e}")
                # Continue with fallback behavior
            except Exception as e:
                logger.warning(f"method not available: {e}")
                # Continue with fallback behavior
            level = self.agent_metrics_service.get_level(ai_type)
            return level

    def other(self):
        return 1
`

func TestScanFindsDefect(t *testing.T) {
	s := New(signature.Default())
	blocks := s.Scan(defectMethod)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}

	b := blocks[0]
	if b.StartLine != 2 {
		t.Errorf("expected try at line index 2, got %d", b.StartLine)
	}
	if b.IndentWidth != 8 {
		t.Errorf("expected enclosing indent 8, got %d", b.IndentWidth)
	}
	if b.HandlerCount != 2 {
		t.Errorf("expected 2 handlers, got %d", b.HandlerCount)
	}
	if !b.HasFragment() {
		t.Fatal("expected a dangling fragment")
	}
	if b.FragmentStart != 10 || b.FragmentEnd != 11 {
		t.Errorf("fragment span = (%d,%d), want (10,11)", b.FragmentStart, b.FragmentEnd)
	}
	if len(b.HandlerBody) != 2 {
		t.Fatalf("expected warning + comment in handler body, got %v", b.HandlerBody)
	}
	if !strings.HasPrefix(b.HandlerBody[0], "logger.warning(") {
		t.Errorf("handler body should start with the warning call, got %q", b.HandlerBody[0])
	}
}

func TestScanCleanFileIsEmpty(t *testing.T) {
	clean := `def ok():
    try:
        do_work()
    except ValueError as e:
        logger.warning(f"oops: {e}")
        return None
    return 1
`
	s := New(signature.Default())
	if blocks := s.Scan(clean); len(blocks) != 0 {
		t.Fatalf("clean input should yield no blocks, got %d", len(blocks))
	}
}

func TestScanWellFormedPassHandler(t *testing.T) {
	// A single log-only handler after a placeholder try is legal code and
	// below the min_handlers threshold; it must not match.
	src := `def ok():
    try:
        pass
    except Exception as e:
        logger.warning(f"ignored: {e}")
`
	s := New(signature.Default())
	if blocks := s.Scan(src); len(blocks) != 0 {
		t.Fatalf("single-handler block should not match, got %d", len(blocks))
	}
}

func TestScanLegalLogOnlyBlockIgnored(t *testing.T) {
	// Correctly indented, fully legal Python: placeholder body one unit in,
	// handlers aligned with the try, nothing dangling afterward. However
	// odd the code reads, it is intentional and must not be reported.
	src := `class S:
    def _f(self):
        try:
            pass
        except AttributeError as e:
            logger.warning(f"x: {e}")
        except Exception as e:
            logger.warning(f"x: {e}")
        return 1
`
	s := New(signature.Default())
	if blocks := s.Scan(src); len(blocks) != 0 {
		t.Fatalf("legal log-only block must not match, got %d, first span %+v",
			len(blocks), blocks[0].Span())
	}
}

func TestScanDriftedChainWithoutFragment(t *testing.T) {
	// Drifted handler indents are the corruption's tell even when nothing
	// dangles after the chain; the block is reported so the normalizer can
	// fail closed on it.
	src := `class S:
    def _f(self):
        try:
                pass
        except AttributeError as e:
                logger.warning(f"x: {e}")
            except Exception as e:
                logger.warning(f"x: {e}")
`
	s := New(signature.Default())
	blocks := s.Scan(src)
	if len(blocks) != 1 {
		t.Fatalf("drifted chain should still match, got %d", len(blocks))
	}
	if blocks[0].HasFragment() {
		t.Error("no fragment should be reported for this block")
	}
}

func TestScanHandlerWithRealWorkRejected(t *testing.T) {
	src := `def f(self):
        try:
                pass
        except AttributeError as e:
                logger.warning(f"x: {e}")
                self.recover()
            except Exception as e:
                logger.warning(f"x: {e}")
            do_thing()
`
	s := New(signature.Default())
	if blocks := s.Scan(src); len(blocks) != 0 {
		t.Fatalf("handler doing real work must disqualify the match, got %d", len(blocks))
	}
}

func TestScanTwoIndependentDefects(t *testing.T) {
	two := defectMethod + `
    def _analyze(self, history):
        try:
                pass
        except AttributeError as e:
                logger.warning(f"generator missing: {e}")
                # Continue with fallback behavior
            except Exception as e:
                logger.warning(f"generator missing: {e}")
                # Continue with fallback behavior
            if not history:
                return {}
`
	s := New(signature.Default())
	blocks := s.Scan(two)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].EndOffset > blocks[1].StartOffset {
		t.Error("blocks must be non-overlapping and ordered")
	}
}

func TestScanResumesAfterMatch(t *testing.T) {
	// The second try inside the fragment must not be reported separately:
	// only the outermost, leftmost match per region is kept.
	src := `def f(self):
        try:
                pass
        except AttributeError as e:
                logger.warning(f"x: {e}")
            except Exception as e:
                logger.warning(f"x: {e}")
            try:
                    pass
            except AttributeError as e:
                    logger.warning(f"y: {e}")
                except Exception as e:
                    logger.warning(f"y: {e}")
                value = compute()
`
	s := New(signature.Default())
	blocks := s.Scan(src)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 outermost block, got %d", len(blocks))
	}
	if blocks[0].EndLine != 13 {
		t.Errorf("outermost block should swallow the nested region, end=%d", blocks[0].EndLine)
	}
}

func TestScanOffsetsAddressSource(t *testing.T) {
	s := New(signature.Default())
	blocks := s.Scan(defectMethod)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	b := blocks[0]
	region := defectMethod[b.StartOffset:b.EndOffset]
	if !strings.HasPrefix(strings.TrimSpace(region), "try:") {
		t.Errorf("region should start at the try line, got %q", region[:20])
	}
	if !strings.HasSuffix(region, "return level\n") {
		t.Errorf("region should end after the fragment, got %q", region)
	}
}

func TestIndentWidth(t *testing.T) {
	cases := []struct {
		line string
		want int
	}{
		{"    x", 4},
		{"\tx", 8},
		{"  \tx", 8},
		{"x", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := IndentWidth(tc.line); got != tc.want {
			t.Errorf("IndentWidth(%q) = %d, want %d", tc.line, got, tc.want)
		}
	}
}
