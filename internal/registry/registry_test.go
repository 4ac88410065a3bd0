package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat_ids.json")
	return New(path, zap.NewNop()), path
}

func readFile(t *testing.T, path string) []int64 {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read registry file: %v", err)
	}
	var shape struct {
		ChatIDs []int64 `json:"chat_ids"`
	}
	if err := json.Unmarshal(b, &shape); err != nil {
		t.Fatalf("parse registry file: %v", err)
	}
	return shape.ChatIDs
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestTrackPersistsImmediately(t *testing.T) {
	t.Parallel()

	reg, path := newTestRegistry(t)
	reg.Load()

	added, err := reg.Track(42)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !added {
		t.Error("first track should report the chat as new")
	}

	// Tracking a known chat is a no-op.
	added, err = reg.Track(42)
	if err != nil {
		t.Fatalf("second track: %v", err)
	}
	if added {
		t.Error("second track should not report the chat as new")
	}

	if got := readFile(t, path); !equalIDs(got, []int64{42}) {
		t.Errorf("file holds %v, want [42]", got)
	}

	// A fresh process sees the same set.
	fresh := New(path, zap.NewNop())
	fresh.Load()
	if got := fresh.IDs(); !equalIDs(got, []int64{42}) {
		t.Errorf("fresh load got %v, want [42]", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	reg.Load()
	if reg.Len() != 0 {
		t.Errorf("missing file should load as empty, got %d chats", reg.Len())
	}
}

func TestLoadCorruptFile(t *testing.T) {
	t.Parallel()

	reg, path := newTestRegistry(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg.Load()
	if reg.Len() != 0 {
		t.Errorf("corrupt file should load as empty, got %d chats", reg.Len())
	}

	// The registry keeps working and rewrites the file on the next track.
	if _, err := reg.Track(1); err != nil {
		t.Fatalf("track after corrupt load: %v", err)
	}
	if got := readFile(t, path); !equalIDs(got, []int64{1}) {
		t.Errorf("file holds %v, want [1]", got)
	}
}

func TestRemovePersists(t *testing.T) {
	t.Parallel()

	reg, path := newTestRegistry(t)
	reg.Load()
	for _, id := range []int64{1, 2, 3} {
		if _, err := reg.Track(id); err != nil {
			t.Fatalf("track %d: %v", id, err)
		}
	}

	removed, err := reg.Remove(2)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !removed {
		t.Error("remove of a tracked chat should report true")
	}

	removed, err = reg.Remove(99)
	if err != nil {
		t.Fatalf("remove unknown: %v", err)
	}
	if removed {
		t.Error("remove of an unknown chat should report false")
	}

	fresh := New(path, zap.NewNop())
	fresh.Load()
	if got := fresh.IDs(); !equalIDs(got, []int64{1, 3}) {
		t.Errorf("fresh load got %v, want [1 3]", got)
	}
}

func TestReloadPicksUpExternalEdits(t *testing.T) {
	t.Parallel()

	reg, path := newTestRegistry(t)
	reg.Load()
	if _, err := reg.Track(1); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte(`{"chat_ids": [7, 5]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := reg.Reload(); !equalIDs(got, []int64{5, 7}) {
		t.Errorf("reload got %v, want [5 7]", got)
	}
}

func TestIDsSorted(t *testing.T) {
	t.Parallel()

	reg, _ := newTestRegistry(t)
	reg.Load()
	for _, id := range []int64{3, 1, 2} {
		if _, err := reg.Track(id); err != nil {
			t.Fatal(err)
		}
	}
	if got := reg.IDs(); !equalIDs(got, []int64{1, 2, 3}) {
		t.Errorf("got %v, want [1 2 3]", got)
	}
}
