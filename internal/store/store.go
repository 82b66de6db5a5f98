// Package store holds the device's persisted local state: the generated
// device identity, the parking session map and the last known good
// position. Every mutation is written through to disk synchronously so a
// crash can never lose more than the change being applied.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/usiu-smartnav/wayfinder/internal/lib/geo"
)

// Store is a process-scoped key-value store backed by a single JSON file.
type Store struct {
	path string

	mu   sync.Mutex
	data state
}

type state struct {
	DeviceID        string           `json:"device_id,omitempty"`
	ParkingSessions map[int64]string `json:"parking_sessions,omitempty"`
	LastKnown       *geo.Point       `json:"last_known_location,omitempty"`
}

// Open loads the store at path, starting from empty state when the file
// does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return s, nil
}

// DeviceID returns the persisted device identity, generating and persisting
// one on first use. An existing identity is never regenerated.
func (s *Store) DeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.DeviceID != "" {
		return s.data.DeviceID, nil
	}

	s.data.DeviceID = uuid.NewString()
	if err := s.save(); err != nil {
		return "", err
	}
	return s.data.DeviceID, nil
}

// Sessions returns a copy of the persisted parking session map.
func (s *Store) Sessions() map[int64]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make(map[int64]string, len(s.data.ParkingSessions))
	for lot, token := range s.data.ParkingSessions {
		sessions[lot] = token
	}
	return sessions
}

// PutSession records a session token for a parking lot.
func (s *Store) PutSession(lotID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.ParkingSessions == nil {
		s.data.ParkingSessions = make(map[int64]string)
	}
	s.data.ParkingSessions[lotID] = token
	return s.save()
}

// DeleteSession removes the session entry for a parking lot.
func (s *Store) DeleteSession(lotID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data.ParkingSessions, lotID)
	return s.save()
}

// ReplaceSessions overwrites the whole session map, used when the server's
// authoritative view supersedes persisted state.
func (s *Store) ReplaceSessions(sessions map[int64]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.ParkingSessions = make(map[int64]string, len(sessions))
	for lot, token := range sessions {
		s.data.ParkingSessions[lot] = token
	}
	return s.save()
}

// LastKnownLocation returns the persisted last known good position.
func (s *Store) LastKnownLocation() (geo.Point, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data.LastKnown == nil {
		return geo.Point{}, false
	}
	return *s.data.LastKnown, true
}

// SetLastKnownLocation persists a position as the last known good fix.
func (s *Store) SetLastKnownLocation(p geo.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.LastKnown = &p
	return s.save()
}

// save writes the state file atomically via temp file + rename. Callers
// must hold s.mu.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
