// Package input tracks the last known level of every physical input.
// Samples arrive from two sources, the per-pass device poll and webhook
// pushes; both are merged with a single rule: latest timestamp wins.
package input

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Sample is one observed input level
type Sample struct {
	Name  string
	Level bool
	At    time.Time
}

// Store holds the current input levels. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	states map[string]Sample
}

// NewStore creates an empty input store
func NewStore() *Store {
	return &Store{states: make(map[string]Sample)}
}

// Update records a sample unless a newer one is already present.
// Returns true when the sample was applied.
func (s *Store) Update(name string, level bool, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.states[name]; ok && prev.At.After(at) {
		log.Debug().
			Str("input", name).
			Time("sample_at", at).
			Time("known_at", prev.At).
			Msg("Stale input sample discarded")
		return false
	}

	s.states[name] = Sample{Name: name, Level: level, At: at}
	return true
}

// Level returns the last known level of the named input.
// The second result is false when the input has never been observed.
func (s *Store) Level(name string) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.states[name]
	return sample.Level, ok
}

// Snapshot returns a copy of all current samples.
func (s *Store) Snapshot() map[string]Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]Sample, len(s.states))
	for name, sample := range s.states {
		snap[name] = sample
	}
	return snap
}
