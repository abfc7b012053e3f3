package config

import (
	"fmt"
	"sync"
)

// Settings holds the runtime-mutable SearchConfig behind a lock.
// Components take a snapshot per call so an update never changes the
// parameters of an in-flight search.
type Settings struct {
	mu  sync.RWMutex
	cur SearchConfig
}

// NewSettings wraps an initial search configuration.
func NewSettings(cfg SearchConfig) *Settings {
	return &Settings{cur: cfg}
}

// Snapshot returns a copy of the current configuration.
func (s *Settings) Snapshot() SearchConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Update replaces the configuration after validating it. Invalid
// updates are rejected and the previous configuration stays active.
func (s *Settings) Update(cfg SearchConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("rejecting settings update: %w", err)
	}
	s.mu.Lock()
	s.cur = cfg
	s.mu.Unlock()
	return nil
}

// Apply mutates a copy of the current configuration and installs the
// result if it validates.
func (s *Settings) Apply(fn func(*SearchConfig)) error {
	s.mu.RLock()
	next := s.cur
	s.mu.RUnlock()

	fn(&next)
	return s.Update(next)
}
