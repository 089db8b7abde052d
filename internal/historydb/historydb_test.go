package historydb

import (
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndRecent(t *testing.T) {
	store := openTestStore(t)
	for _, cmd := range []string{"ls", "pwd", "echo hi"} {
		if err := store.Append("s1", cmd); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Append("s2", "whoami"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := store.Recent("s1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []string{"ls", "pwd", "echo hi"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRecentLimit(t *testing.T) {
	store := openTestStore(t)
	for _, cmd := range []string{"a", "b", "c", "d"} {
		if err := store.Append("s1", cmd); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	got, err := store.Recent("s1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Errorf("got %v, want [c d]", got)
	}
}

func TestRecentEmptySession(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Recent("nope", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestTrim(t *testing.T) {
	store := openTestStore(t)
	for _, cmd := range []string{"a", "b", "c", "d", "e"} {
		if err := store.Append("s1", cmd); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Trim("s1", 2); err != nil {
		t.Fatalf("Trim: %v", err)
	}
	got, err := store.Recent("s1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0] != "d" || got[1] != "e" {
		t.Errorf("got %v, want [d e]", got)
	}
}
