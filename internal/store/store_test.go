package store

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/stellarlinkco/digestbot/internal/config"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"json": func(t *testing.T) Store {
			return NewFileStore(filepath.Join(t.TempDir(), "messages.json"))
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "messages.db"))
			if err != nil {
				t.Fatalf("NewSQLiteStore error: %v", err)
			}
			return s
		},
	}
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			if err := s.Append("2024-05-01", "Alice: ciao"); err != nil {
				t.Fatalf("Append error: %v", err)
			}
			if err := s.Append("2024-05-01", "Bob: come va"); err != nil {
				t.Fatalf("Append error: %v", err)
			}
			if err := s.Append("2024-05-02", "Carla: domani"); err != nil {
				t.Fatalf("Append error: %v", err)
			}

			lines, ok, err := s.Day("2024-05-01")
			if err != nil {
				t.Fatalf("Day error: %v", err)
			}
			if !ok {
				t.Fatal("day should exist")
			}
			want := []string{"Alice: ciao", "Bob: come va"}
			if !reflect.DeepEqual(lines, want) {
				t.Errorf("lines = %v, want %v", lines, want)
			}
		})
	}
}

func TestStore_MissingDay(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			lines, ok, err := s.Day("2024-01-01")
			if err != nil {
				t.Fatalf("Day error: %v", err)
			}
			if ok {
				t.Error("missing day should report ok=false")
			}
			if len(lines) != 0 {
				t.Errorf("lines = %v, want empty", lines)
			}
		})
	}
}

func TestStore_ClearKeepsDayPresent(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			s.Append("2024-05-01", "Alice: ciao")
			s.Append("2024-05-02", "Bob: altro giorno")
			if err := s.Clear("2024-05-01"); err != nil {
				t.Fatalf("Clear error: %v", err)
			}

			lines, ok, err := s.Day("2024-05-01")
			if err != nil {
				t.Fatalf("Day error: %v", err)
			}
			if !ok {
				t.Error("cleared day should still be present")
			}
			if len(lines) != 0 {
				t.Errorf("lines = %v, want empty", lines)
			}

			other, _, _ := s.Day("2024-05-02")
			if len(other) != 1 {
				t.Errorf("other day lines = %v, want untouched", other)
			}

			// Appending after a clear starts a fresh sequence.
			s.Append("2024-05-01", "Carla: dopo")
			lines, _, _ = s.Day("2024-05-01")
			if !reflect.DeepEqual(lines, []string{"Carla: dopo"}) {
				t.Errorf("lines after re-append = %v", lines)
			}
		})
	}
}

func TestStore_Days(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			s.Append("2024-05-02", "b")
			s.Append("2024-05-01", "a1")
			s.Append("2024-05-01", "a2")
			s.Clear("2024-05-02")

			days, err := s.Days()
			if err != nil {
				t.Fatalf("Days error: %v", err)
			}
			want := []DayCount{{Day: "2024-05-01", Lines: 2}, {Day: "2024-05-02", Lines: 0}}
			if !reflect.DeepEqual(days, want) {
				t.Errorf("days = %+v, want %+v", days, want)
			}
		})
	}
}

func TestStore_ConcurrentAppendsAreNotLost(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			const n = 40
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if err := s.Append("2024-05-01", fmt.Sprintf("user%d: msg", i)); err != nil {
						t.Errorf("Append error: %v", err)
					}
				}(i)
			}
			wg.Wait()

			lines, _, err := s.Day("2024-05-01")
			if err != nil {
				t.Fatalf("Day error: %v", err)
			}
			if len(lines) != n {
				t.Errorf("len(lines) = %d, want %d", len(lines), n)
			}
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "messages.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore error: %v", err)
	}
	s.Append("2024-05-01", "Alice: ciao")
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()
	lines, ok, _ := s2.Day("2024-05-01")
	if !ok || len(lines) != 1 {
		t.Errorf("lines after reopen = %v (ok=%v)", lines, ok)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.StoreConfig{Backend: config.StoreBackendJSON, Path: filepath.Join(dir, "a.json")})
	if err != nil {
		t.Fatalf("Open json error: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("json backend = %T, want *FileStore", s)
	}

	s, err = Open(config.StoreConfig{Backend: config.StoreBackendSQLite, Path: filepath.Join(dir, "a.db")})
	if err != nil {
		t.Fatalf("Open sqlite error: %v", err)
	}
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("sqlite backend = %T, want *SQLiteStore", s)
	}
	s.Close()

	if _, err := Open(config.StoreConfig{Backend: "redis"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
