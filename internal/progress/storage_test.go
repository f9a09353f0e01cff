package progress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

// exerciseStorage runs the behaviour every Storage backend must share.
func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, StorageKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) err = %v, want ErrNotFound", err)
	}
	if err := s.Save(ctx, StorageKey, []byte(`{"score":1}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, StorageKey, []byte(`{"score":2}`)); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}
	got, err := s.Load(ctx, StorageKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != `{"score":2}` {
		t.Errorf("Load = %s, want the latest record", got)
	}
	if err := s.Delete(ctx, StorageKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, StorageKey); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete err = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, StorageKey); err != nil {
		t.Errorf("Delete(missing) = %v, want nil", err)
	}
}

func TestMemoryStorage(t *testing.T) {
	m := NewMemoryStorage()
	exerciseStorage(t, m)

	data := []byte("abc")
	_ = m.Save(context.Background(), "k", data)
	data[0] = 'x'
	got, _ := m.Load(context.Background(), "k")
	if string(got) != "abc" {
		t.Errorf("MemoryStorage aliases caller slices: %s", got)
	}
	if keys := m.Keys(); !slices.Equal(keys, []string{"k"}) {
		t.Errorf("Keys = %v", keys)
	}
}

func TestFileStorage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	f, err := NewFileStorage(dir)
	if err != nil {
		t.Fatalf("NewFileStorage: %v", err)
	}
	exerciseStorage(t, f)

	if err := f.Save(context.Background(), StorageKey, []byte(`{}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != StorageKey+".json" {
		t.Errorf("dir entries = %v, want only the record file", entries)
	}
}

func TestFileStorage_RejectsPathKeys(t *testing.T) {
	f, _ := NewFileStorage(t.TempDir())
	for _, key := range []string{"", "..", "../escape", `a\b`} {
		if err := f.Save(context.Background(), key, []byte("x")); err == nil {
			t.Errorf("Save(%q) succeeded", key)
		}
	}
}

func TestSQLiteStorage(t *testing.T) {
	dsn := fmt.Sprintf("file:%d?mode=memory&cache=shared", time.Now().UnixNano())
	s, err := NewSQLiteStorage(dsn)
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	exerciseStorage(t, s)
}

func TestSQLiteStorage_FileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	s, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("NewSQLiteStorage: %v", err)
	}
	store := NewStore(context.Background(), s, WithMetrics(testMetrics(t)))
	store.AddScore(20)
	store.UnlockLevel(2)
	if err := store.Close(context.Background()); err != nil {
		t.Fatalf("store.Close: %v", err)
	}
	_ = s.Close()

	s2, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	st := Load(context.Background(), s2)
	if st.Score != 20 || !slices.Equal(st.UnlockedLevels, []int{1, 2}) {
		t.Errorf("reloaded = %+v", st)
	}
}
