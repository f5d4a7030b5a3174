package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
)

// FileStore keeps the whole log in one JSON document. Every operation reads
// the document, and mutations rewrite it in full, while holding both mu and
// an advisory lock on "<path>.lock" shared with other processes.
type FileStore struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, lock: flock.New(path + ".lock")}
}

// locked runs fn inside the in-process and cross-process critical section.
func (s *FileStore) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock message log: %w", err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			log.Printf("[store] unlock %s: %v", s.lock.Path(), err)
		}
	}()
	return fn()
}

func (s *FileStore) Day(day string) ([]string, bool, error) {
	var (
		lines []string
		ok    bool
	)
	err := s.locked(func() error {
		data, err := s.load()
		if err != nil {
			return err
		}
		lines, ok = data[day]
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, ok, nil
}

func (s *FileStore) Append(day, line string) error {
	return s.locked(func() error {
		data, err := s.load()
		if err != nil {
			return err
		}
		data[day] = append(data[day], line)
		return s.save(data)
	})
}

func (s *FileStore) Clear(day string) error {
	return s.locked(func() error {
		data, err := s.load()
		if err != nil {
			return err
		}
		data[day] = []string{}
		return s.save(data)
	})
}

func (s *FileStore) Days() ([]DayCount, error) {
	var out []DayCount
	err := s.locked(func() error {
		data, err := s.load()
		if err != nil {
			return err
		}
		out = make([]DayCount, 0, len(data))
		for day, lines := range data {
			out = append(out, DayCount{Day: day, Lines: len(lines)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lock.Close()
}

// load treats a missing or unparsable document as an empty log; the
// unreadable content is overwritten by the next save.
func (s *FileStore) load() (map[string][]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string][]string), nil
		}
		return nil, fmt.Errorf("read message log: %w", err)
	}

	data := make(map[string][]string)
	if len(bytes.TrimSpace(raw)) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("[store] %s is not valid JSON, starting from an empty log: %v", s.path, err)
		return make(map[string][]string), nil
	}
	if data == nil {
		data = make(map[string][]string)
	}
	return data, nil
}

// save must be called inside locked.
func (s *FileStore) save(data map[string][]string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("marshal message log: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write message log: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod message log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace message log: %w", err)
	}
	return nil
}
