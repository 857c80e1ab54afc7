package records

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Store is a file-system database of tuning records. Records are kept in
// memory, indexed by task and sorted cheapest first. It is safe for
// concurrent use.
type Store struct {
	dir    string
	logger *zap.Logger

	mu     sync.RWMutex
	byID   map[string]*Record
	byTask map[string][]*Record
}

// NewStore opens the store rooted at dir, creating it if needed, and loads
// every record found beneath it.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{dir: dir, logger: logger}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the in-memory index with the records on disk. Unreadable
// or corrupt files are skipped with a warning.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*Record)
	s.byTask = make(map[string][]*Record)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create records directory: %w", err)
	}

	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rec, err := readRecord(path)
		if err != nil {
			s.logger.Warn("skipping tuning record", zap.String("path", path), zap.Error(err))
			return nil
		}
		s.index(rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	return nil
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	rec, err := FromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse record: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}
	return rec, nil
}

// index adds rec, keeping its task list sorted. Callers hold mu.
func (s *Store) index(rec *Record) {
	s.byID[rec.ID] = rec
	key := rec.TaskKey()
	list := append(s.byTask[key], rec)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].PredictedCost < list[j].PredictedCost
	})
	s.byTask[key] = list
}

// Save writes rec to disk and indexes it.
func (s *Store) Save(rec *Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rec.ID]; exists {
		return fmt.Errorf("record already exists: %s", rec.ID)
	}
	if err := os.MkdirAll(rec.taskDir(s.dir), 0o755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}
	data, err := rec.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := os.WriteFile(rec.path(s.dir), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	s.index(rec)
	return nil
}

// Best returns up to k records of a task, cheapest first. k <= 0 returns
// all of them.
func (s *Store) Best(workloadKey, target string, k int) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.byTask[TaskKey(workloadKey, target)]
	if k <= 0 || k > len(list) {
		k = len(list)
	}
	result := make([]*Record, k)
	copy(result, list[:k])
	return result
}

// Get finds a record by ID.
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}

// List returns every record ordered by workload, target and cost.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.byTask))
	for key := range s.byTask {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := s.byTask[keys[i]][0], s.byTask[keys[j]][0]
		if a.Workload != b.Workload {
			return a.Workload < b.Workload
		}
		return keys[i] < keys[j]
	})

	result := make([]*Record, 0, len(s.byID))
	for _, key := range keys {
		result = append(result, s.byTask[key]...)
	}
	return result
}

// Delete removes a record from disk and from the index.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.byID[id]
	if !exists {
		return fmt.Errorf("record not found: %s", id)
	}
	if err := os.Remove(rec.path(s.dir)); err != nil {
		return fmt.Errorf("failed to remove record: %w", err)
	}

	delete(s.byID, id)
	key := rec.TaskKey()
	list := s.byTask[key]
	for i, r := range list {
		if r.ID == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.byTask, key)
	} else {
		s.byTask[key] = list
	}
	return nil
}
