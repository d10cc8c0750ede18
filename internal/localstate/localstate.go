// Package localstate keeps a versioned JSON snapshot on disk so a restarted
// service (or the operator console it serves) picks up where it left off.
package localstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sos_unifio/backend/internal/models"
)

const AppVersion = "2.1.0"

const (
	KeyUser             = "sos-unifio-user"
	KeyActiveOccurrence = "sos-unifio-active-occurrence"
	KeyAdminMode        = "sos-unifio-admin-mode"
	KeyOccurrences      = "sos-unifio-occurrences"
)

// DefaultMaxFinished bounds how many concluded or cancelled occurrences the
// snapshot keeps. Open occurrences are never dropped.
const DefaultMaxFinished = 200

var ErrUnknownKey = errors.New("unknown state key")

// Known reports whether key is one of the persisted keys.
func Known(key string) bool {
	switch key {
	case KeyUser, KeyActiveOccurrence, KeyAdminMode, KeyOccurrences:
		return true
	}
	return false
}

type snapshot struct {
	Version string                     `json:"version"`
	SavedAt time.Time                  `json:"saved_at"`
	Items   map[string]json.RawMessage `json:"items"`
}

type Store struct {
	Path        string
	Version     string
	MaxFinished int
	Logger      zerolog.Logger

	mu    sync.Mutex
	items map[string]json.RawMessage
}

// Open loads the snapshot at path. A missing file, or one written by another
// major version, starts an empty state.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	s := &Store{Path: path, Version: AppVersion, MaxFinished: DefaultMaxFinished, Logger: logger, items: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("corrupt state file ignored")
		return s, nil
	}
	if major(snap.Version) != major(s.Version) {
		logger.Warn().Str("path", path).Str("found", snap.Version).Str("want", s.Version).Msg("state from another version ignored")
		return s, nil
	}
	for k, v := range snap.Items {
		if Known(k) {
			s.items[k] = v
		}
	}
	return s, nil
}

func major(version string) string {
	m, _, _ := strings.Cut(strings.TrimPrefix(version, "v"), ".")
	return m
}

// Get decodes key into v and reports whether it was present.
func (s *Store) Get(key string, v any) (bool, error) {
	if !Known(key) {
		return false, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.mu.Lock()
	raw, ok := s.items[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// Set stores v under key and writes the snapshot.
func (s *Store) Set(key string, v any) error {
	if !Known(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = raw
	return s.flush()
}

func (s *Store) Delete(key string) error {
	if !Known(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return s.flush()
}

// Occurrences returns the persisted occurrences, oldest first.
func (s *Store) Occurrences() ([]models.Occurrence, error) {
	var byID map[string]models.Occurrence
	if _, err := s.Get(KeyOccurrences, &byID); err != nil {
		return nil, err
	}
	out := make([]models.Occurrence, 0, len(byID))
	for _, o := range byID {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveOccurrence upserts an occurrence snapshot and tracks the most recent
// open occurrence under KeyActiveOccurrence.
func (s *Store) SaveOccurrence(ctx context.Context, o models.Occurrence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := map[string]models.Occurrence{}
	if raw, ok := s.items[KeyOccurrences]; ok {
		if err := json.Unmarshal(raw, &byID); err != nil {
			return fmt.Errorf("decode %s: %w", KeyOccurrences, err)
		}
	}
	if prev, ok := byID[o.ID]; ok && prev.UpdatedAt.After(o.UpdatedAt) {
		return nil
	}
	byID[o.ID] = o
	if o.Status.Terminal() {
		trimFinished(byID, s.MaxFinished)
	}
	raw, err := json.Marshal(byID)
	if err != nil {
		return err
	}
	s.items[KeyOccurrences] = raw

	var active string
	if rawActive, ok := s.items[KeyActiveOccurrence]; ok {
		_ = json.Unmarshal(rawActive, &active)
	}
	switch {
	case !o.Status.Terminal():
		if cur, ok := byID[active]; !ok || cur.Status.Terminal() || !o.CreatedAt.Before(cur.CreatedAt) {
			active = o.ID
		}
	case active == o.ID:
		active = newestOpen(byID)
	}
	if active == "" {
		delete(s.items, KeyActiveOccurrence)
	} else {
		rawActive, _ := json.Marshal(active)
		s.items[KeyActiveOccurrence] = rawActive
	}
	return s.flush()
}

// trimFinished drops the least recently updated terminal occurrences beyond limit.
func trimFinished(byID map[string]models.Occurrence, limit int) {
	if limit <= 0 {
		return
	}
	var finished []models.Occurrence
	for _, o := range byID {
		if o.Status.Terminal() {
			finished = append(finished, o)
		}
	}
	if len(finished) <= limit {
		return
	}
	sort.Slice(finished, func(i, j int) bool {
		if finished[i].UpdatedAt.Equal(finished[j].UpdatedAt) {
			return finished[i].ID < finished[j].ID
		}
		return finished[i].UpdatedAt.Before(finished[j].UpdatedAt)
	})
	for _, o := range finished[:len(finished)-limit] {
		delete(byID, o.ID)
	}
}

func newestOpen(byID map[string]models.Occurrence) string {
	var best *models.Occurrence
	for id := range byID {
		o := byID[id]
		if o.Status.Terminal() {
			continue
		}
		if best == nil || o.CreatedAt.After(best.CreatedAt) || (o.CreatedAt.Equal(best.CreatedAt) && o.ID > best.ID) {
			best = &o
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}

// flush must be called with mu held. The file is replaced atomically.
func (s *Store) flush() error {
	snap := snapshot{Version: s.Version, SavedAt: time.Now().UTC(), Items: s.items}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
