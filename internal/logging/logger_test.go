package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledIsNoOp(t *testing.T) {
	if err := Initialize(Options{DebugMode: false}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	// Must not panic and must not create anything.
	Scan("hello %d", 1)
	RewriteError("boom")
	if IsCategoryEnabled(CategoryScan) {
		t.Error("categories must be disabled when debug mode is off")
	}
}

func TestDebugModeWritesCategoryFiles(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(Options{DebugMode: true, Dir: dir, Level: "debug"}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	Scan("found %d blocks", 2)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	var scanLog string
	for _, e := range entries {
		if strings.Contains(e.Name(), "_scan.log") {
			scanLog = filepath.Join(dir, "logs", e.Name())
		}
	}
	if scanLog == "" {
		t.Fatalf("no scan log among %v", entries)
	}
	data, err := os.ReadFile(scanLog)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "found 2 blocks") {
		t.Errorf("log content missing message: %s", data)
	}
}

func TestCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(Options{
		DebugMode:  true,
		Dir:        dir,
		Categories: map[string]bool{"scan": false},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer CloseAll()

	if IsCategoryEnabled(CategoryScan) {
		t.Error("scan should be filtered out")
	}
	if !IsCategoryEnabled(CategoryRewrite) {
		t.Error("unlisted categories default to enabled")
	}
}
