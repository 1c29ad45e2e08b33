package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecentRuns(t *testing.T) {
	store := openTestStore(t)

	run := Run{
		ID:            uuid.NewString(),
		StartedAt:     time.Now().UTC().Truncate(time.Second),
		Targets:       []string{"app/services", "app/routers"},
		FilesScanned:  12,
		FilesChanged:  3,
		BlocksFixed:   5,
		BlocksSkipped: 1,
	}
	results := []FileResult{
		{Path: "app/services/custody.py", BlocksFixed: 4, Status: "valid"},
		{Path: "app/services/scoring.py", BlocksFixed: 1, BlocksSkipped: 1, Status: "valid"},
	}
	if err := store.Record(run, results); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.ID != run.ID {
		t.Errorf("ID = %s, want %s", got.ID, run.ID)
	}
	if got.BlocksFixed != 5 || got.FilesChanged != 3 {
		t.Errorf("counters = (%d, %d), want (5, 3)", got.BlocksFixed, got.FilesChanged)
	}
	if len(got.Targets) != 2 || got.Targets[0] != "app/services" {
		t.Errorf("targets round-trip failed: %v", got.Targets)
	}
}

func TestRecentRunsOrder(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		run := Run{
			ID:        uuid.NewString(),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Record(run, nil); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.RecentRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("limit not applied, got %d runs", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Errorf("runs not newest-first: %v then %v", runs[0].StartedAt, runs[1].StartedAt)
	}
}

func TestFileHistory(t *testing.T) {
	store := openTestStore(t)

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 2; i++ {
		run := Run{ID: uuid.NewString(), StartedAt: base.Add(time.Duration(i) * time.Hour)}
		results := []FileResult{
			{Path: "svc.py", BlocksFixed: i, Status: "valid"},
			{Path: "other.py", BlocksFixed: 9, Status: "valid"},
		}
		if err := store.Record(run, results); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := store.FileHistory("svc.py", 10)
	if err != nil {
		t.Fatalf("FileHistory failed: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 results for svc.py, got %d", len(hist))
	}
	if hist[0].BlocksFixed != 1 {
		t.Errorf("newest result should come first, got fixed=%d", hist[0].BlocksFixed)
	}
	for _, fr := range hist {
		if fr.Path != "svc.py" {
			t.Errorf("foreign path leaked into history: %s", fr.Path)
		}
	}
}

func TestFileHistoryEmpty(t *testing.T) {
	store := openTestStore(t)
	hist, err := store.FileHistory("never_seen.py", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 0 {
		t.Errorf("expected empty history, got %d", len(hist))
	}
}
