package upload

import (
	"path/filepath"
	"testing"
)

func TestResumeStore_RoundTrip(t *testing.T) {
	store, err := NewResumeStore(filepath.Join(t.TempDir(), "resume.db"))
	if err != nil {
		t.Fatalf("NewResumeStore: %v", err)
	}
	defer store.Close()

	// Unknown job reads as zero, not an error.
	offset, err := store.Offset("nope", 100)
	if err != nil || offset != 0 {
		t.Fatalf("Offset(unknown) = %d, %v", offset, err)
	}

	if err := store.Save("j1", 1000, 200); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save("j1", 1000, 600); err != nil {
		t.Fatalf("Save upsert: %v", err)
	}

	offset, err = store.Offset("j1", 1000)
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if offset != 600 {
		t.Fatalf("offset = %d, want 600", offset)
	}

	if err := store.Clear("j1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	offset, err = store.Offset("j1", 1000)
	if err != nil || offset != 0 {
		t.Fatalf("Offset after clear = %d, %v", offset, err)
	}
}

func TestResumeStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resume.db")
	store, err := NewResumeStore(path)
	if err != nil {
		t.Fatalf("NewResumeStore: %v", err)
	}
	if err := store.Save("j1", 1000, 400); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewResumeStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	offset, err := reopened.Offset("j1", 1000)
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if offset != 400 {
		t.Fatalf("offset = %d, want 400", offset)
	}
}
