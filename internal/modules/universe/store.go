package universe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/equityscope/internal/domain"
)

// ErrProtectedUniverse is returned when a delete or membership edit targets
// the built-in index universe.
var ErrProtectedUniverse = errors.New("built-in universe cannot be modified")

// ErrUniverseNotFound is returned for lookups of unknown universe ids.
var ErrUniverseNotFound = errors.New("universe not found")

// FileStore persists universes as one JSON document on disk. Writes are
// atomic: a temp file is renamed over the target.
type FileStore struct {
	path string
	mu   sync.RWMutex
	log  zerolog.Logger
}

type universeDocument struct {
	Universes map[string]domain.Universe `json:"universes"`
}

func NewFileStore(dataDir string, log zerolog.Logger) *FileStore {
	return &FileStore{
		path: filepath.Join(dataDir, "universes.json"),
		log:  log.With().Str("module", "universe").Str("store", "file").Logger(),
	}
}

// Get returns one universe by id.
func (s *FileStore) Get(id string) (*domain.Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	u, ok := doc.Universes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUniverseNotFound, id)
	}
	return &u, nil
}

// List returns every universe sorted by id.
func (s *FileStore) List() ([]domain.Universe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Universe, 0, len(doc.Universes))
	for _, u := range doc.Universes {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put creates or replaces a universe. CreatedAt is preserved for existing
// ids; UpdatedAt is always refreshed.
func (s *FileStore) Put(u domain.Universe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing, ok := doc.Universes[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	doc.Universes[u.ID] = u

	return s.save(doc)
}

// Delete removes a universe. The built-in index universe is protected.
func (s *FileStore) Delete(id string) error {
	if id == domain.SP500UniverseID {
		return ErrProtectedUniverse
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Universes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrUniverseNotFound, id)
	}
	delete(doc.Universes, id)
	return s.save(doc)
}

func (s *FileStore) load() (*universeDocument, error) {
	doc := &universeDocument{Universes: make(map[string]domain.Universe)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read universe store: %w", err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to parse universe store: %w", err)
	}
	if doc.Universes == nil {
		doc.Universes = make(map[string]domain.Universe)
	}
	return doc, nil
}

func (s *FileStore) save(doc *universeDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode universe store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write universe store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace universe store: %w", err)
	}
	return nil
}
