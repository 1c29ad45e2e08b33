package signature

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default signature should validate: %v", err)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sig.yaml")
	content := "specific_exception: KeyError\nmin_handlers: 3\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	sig, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if sig.SpecificException != "KeyError" {
		t.Errorf("expected override KeyError, got %s", sig.SpecificException)
	}
	if sig.MinHandlers != 3 {
		t.Errorf("expected min_handlers 3, got %d", sig.MinHandlers)
	}
	// Unset fields keep defaults
	if sig.TryKeyword != "try" {
		t.Errorf("expected default try_keyword, got %q", sig.TryKeyword)
	}
	if sig.GeneralException != "Exception" {
		t.Errorf("expected default general_exception, got %q", sig.GeneralException)
	}
}

func TestLoadRejectsBrokenSignature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sig.yaml")
	// Specific == general is unusable: the handler chain would be redundant.
	if err := os.WriteFile(path, []byte("specific_exception: Exception\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for specific == general")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestIsLogCall(t *testing.T) {
	sig := Default()
	cases := []struct {
		line string
		want bool
	}{
		{`logger.warning(f"method not available: {e}")`, true},
		{`print(f"error: {e}")`, true},
		{`logging.warning("x")`, true},
		{`result = compute_score()`, false},
		{`logger_warning("x")`, false},
	}
	for _, tc := range cases {
		if got := sig.IsLogCall(tc.line); got != tc.want {
			t.Errorf("IsLogCall(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}
