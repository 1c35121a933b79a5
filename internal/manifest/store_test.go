package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AWWShuck/pwnycloud/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "manifest.json"), testutil.Logger())
}

func TestLoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	m := store.Load()
	if m == nil {
		t.Fatal("expected manifest, got nil")
	}
	if m.Generation != 0 {
		t.Errorf("expected generation 0, got %d", m.Generation)
	}
	if len(m.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(m.Entries))
	}
	if m.Version != SchemaVersion {
		t.Errorf("expected version %d, got %d", SchemaVersion, m.Version)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	m := New(3)
	uploaded := time.Now().Truncate(time.Second)
	m.Record(FileRecord{
		Path:       "ap1.pcap",
		Size:       2048,
		ModTime:    uploaded.Add(-time.Hour),
		UploadedAt: uploaded,
		Extension:  ".pcap",
	})

	if err := store.Save(m); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := store.Load()
	if loaded.Generation != 3 {
		t.Errorf("expected generation 3, got %d", loaded.Generation)
	}

	rec, ok := loaded.Lookup("ap1.pcap")
	if !ok {
		t.Fatal("expected record for ap1.pcap")
	}
	if rec.Size != 2048 {
		t.Errorf("expected size 2048, got %d", rec.Size)
	}
	if !rec.UploadedAt.Equal(uploaded) {
		t.Errorf("expected uploaded_at %s, got %s", uploaded, rec.UploadedAt)
	}
}

func TestSaveCreatesStateDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "manifest.json")
	store := NewStore(path, testutil.Logger())

	if err := store.Save(New(0)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected manifest file to exist: %v", err)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	store := newTestStore(t)

	if err := os.WriteFile(store.Path(), []byte("{not valid json"), 0644); err != nil {
		t.Fatal(err)
	}

	m := store.Load()
	if m == nil {
		t.Fatal("expected manifest, got nil")
	}
	if len(m.Entries) != 0 {
		t.Errorf("expected fresh manifest, got %d entries", len(m.Entries))
	}

	// Corrupt content must be preserved as a .bak sibling
	bak, err := os.ReadFile(store.Path() + ".bak")
	if err != nil {
		t.Fatalf("expected .bak file: %v", err)
	}
	if string(bak) != "{not valid json" {
		t.Errorf("unexpected .bak content: %s", bak)
	}
}

func TestLoadSchemaMismatch(t *testing.T) {
	store := newTestStore(t)

	old, _ := json.Marshal(map[string]any{
		"version":    99,
		"generation": 7,
		"entries": map[string]any{
			"ap.pcap": map[string]any{"path": "ap.pcap"},
		},
	})
	if err := os.WriteFile(store.Path(), old, 0644); err != nil {
		t.Fatal(err)
	}

	m := store.Load()
	if len(m.Entries) != 0 {
		t.Errorf("expected entries discarded on schema mismatch, got %d", len(m.Entries))
	}
	if m.Generation != 7 {
		t.Errorf("expected generation carried forward, got %d", m.Generation)
	}
	if m.Version != SchemaVersion {
		t.Errorf("expected current schema version, got %d", m.Version)
	}
}

func TestReset(t *testing.T) {
	store := newTestStore(t)

	m := New(2)
	m.Record(FileRecord{Path: "ap.pcap", Size: 100})
	if err := store.Save(m); err != nil {
		t.Fatal(err)
	}

	fresh, err := store.Reset(m)
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if fresh.Generation != 3 {
		t.Errorf("expected generation 3 after reset, got %d", fresh.Generation)
	}
	if len(fresh.Entries) != 0 {
		t.Errorf("expected no entries after reset, got %d", len(fresh.Entries))
	}

	// Reset must be persisted immediately
	loaded := store.Load()
	if loaded.Generation != 3 {
		t.Errorf("expected persisted generation 3, got %d", loaded.Generation)
	}
	if len(loaded.Entries) != 0 {
		t.Errorf("expected persisted manifest empty, got %d entries", len(loaded.Entries))
	}
}

func TestSaveReplacesAtomically(t *testing.T) {
	store := newTestStore(t)

	first := New(0)
	first.Record(FileRecord{Path: "old.pcap", Size: 1})
	if err := store.Save(first); err != nil {
		t.Fatal(err)
	}

	second := New(0)
	second.Record(FileRecord{Path: "new.pcap", Size: 2})
	if err := store.Save(second); err != nil {
		t.Fatal(err)
	}

	loaded := store.Load()
	if _, ok := loaded.Lookup("old.pcap"); ok {
		t.Error("expected old entry replaced")
	}
	if _, ok := loaded.Lookup("new.pcap"); !ok {
		t.Error("expected new entry present")
	}

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "manifest.json" {
			t.Errorf("unexpected leftover file %s", e.Name())
		}
	}
}

func TestClone(t *testing.T) {
	m := New(1)
	m.Record(FileRecord{Path: "ap.pcap", Size: 100})

	c := m.Clone()
	c.Record(FileRecord{Path: "other.pcap", Size: 200})

	if _, ok := m.Lookup("other.pcap"); ok {
		t.Error("mutating the clone must not affect the original")
	}
	if _, ok := c.Lookup("ap.pcap"); !ok {
		t.Error("clone must carry existing entries")
	}
}
