// Package configstore implements the configs/secrets store (component M):
// small, versioned, RWMutex-protected CRUD tables over base64 payloads.
// Secrets are never logged.
package configstore

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// Kind distinguishes a config (may be read back in full) from a secret
// (payload is write-only after creation).
type Kind string

const (
	KindConfig Kind = "config"
	KindSecret Kind = "secret"
)

// Entry is one config or secret record.
type Entry struct {
	ID        string
	Name      string
	Kind      Kind
	Version   int
	Labels    map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time

	payload []byte // never exposed directly for Kind == KindSecret
}

// Store owns the config/secret table.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewStore() *Store {
	return &Store{entries: map[string]*Entry{}}
}

// Create inserts a new entry. payload is raw bytes; callers that received
// a base64 string over the wire decode it first.
func (s *Store) Create(id, name string, kind Kind, payload []byte, labels map[string]string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; exists {
		return nil, fmt.Errorf("%s %s already exists", kind, id)
	}
	now := time.Now()
	e := &Entry{
		ID: id, Name: name, Kind: kind, Version: 1,
		Labels: labels, CreatedAt: now, UpdatedAt: now, payload: payload,
	}
	s.entries[id] = e
	return e, nil
}

// Get returns the entry's metadata. For configs, Payload() may be called
// on the result to read the decoded bytes; for secrets, callers must use
// Reveal explicitly, matching the "never logged" discipline: nothing in
// this package's normal read path touches a secret's bytes.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("no such entry: %s", id)
	}
	return e, nil
}

// Payload returns a config's bytes. Calling this on a secret is a
// programming error in this package's callers — the daemon HTTP layer is
// expected to route secret reads through Reveal only when a container is
// actually about to mount the secret, never for listing/logging.
func (e *Entry) Payload() []byte {
	if e.Kind == KindSecret {
		return nil
	}
	return e.payload
}

// Reveal returns a secret's raw bytes; only the runtime's mount step
// should ever call this.
func (e *Entry) Reveal() []byte {
	return e.payload
}

// Base64Payload renders Payload() as base64, the wire form configs/secrets
// travel in over the daemon HTTP API.
func (e *Entry) Base64Payload() string {
	return base64.StdEncoding.EncodeToString(e.Payload())
}

// Update replaces payload and labels, incrementing version.
func (s *Store) Update(id string, payload []byte, labels map[string]string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("no such entry: %s", id)
	}
	e.payload = payload
	if labels != nil {
		e.Labels = labels
	}
	e.Version++
	e.UpdatedAt = time.Now()
	return e, nil
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("no such entry: %s", id)
	}
	delete(s.entries, id)
	return nil
}

// List returns metadata for every entry of the given kind.
func (s *Store) List(kind Kind) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*Entry{}
	for _, e := range s.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
