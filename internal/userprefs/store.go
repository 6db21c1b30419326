// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package userprefs provides read access to per-user display preferences:
// which domain a user's outbound email is sent from, and whether their real
// email address may be revealed on the other side of the bridge.
//
// The records are owned by the dashboard; this service only reads them.
package userprefs

import (
	"context"
	"sync"
	"time"
)

// Preference is one user's display settings, keyed by Slack user ID.
type Preference struct {
	UserID              string
	SendingDomain       string
	ShouldShowFullEmail bool
	UpdatedAt           time.Time
}

// Store looks up display preferences. Get returns (nil, nil) when the user
// has no stored preference; callers apply defaults.
type Store interface {
	Get(ctx context.Context, userID string) (*Preference, error)
}

// MemoryStore is an in-process Store used when no database is configured
// and for tests. Every lookup misses unless a preference was Put.
type MemoryStore struct {
	mu    sync.Mutex
	prefs map[string]Preference
}

// NewMemoryStore creates an empty in-memory preference store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]Preference)}
}

// Get returns the stored preference, or (nil, nil) when absent.
func (s *MemoryStore) Get(_ context.Context, userID string) (*Preference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[userID]; ok {
		return &p, nil
	}
	return nil, nil
}

// Put stores a preference. Used by tests and local development.
func (s *MemoryStore) Put(_ context.Context, p Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[p.UserID] = p
	return nil
}
