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

package threadstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for environments without Redis.
// Mappings are lost on restart and cannot be shared across instances, so it
// is unsuitable for production or horizontal scaling.
type MemoryStore struct {
	mu        sync.Mutex
	links     map[string]linkRecord // email thread ID → link
	anchors   map[string]string     // Slack anchor → email thread ID
	processed map[string]struct{}   // idempotency ledger
}

// NewMemoryStore creates an empty in-memory thread store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		links:     make(map[string]linkRecord),
		anchors:   make(map[string]string),
		processed: make(map[string]struct{}),
	}
}

// ResolveChatAnchor returns the Slack anchor for an email thread, or "".
func (s *MemoryStore) ResolveChatAnchor(_ context.Context, emailThreadID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.links[emailThreadID].ChatAnchor, nil
}

// ResolveEmailThread returns the email thread ID for a Slack anchor, or "".
func (s *MemoryStore) ResolveEmailThread(_ context.Context, chatAnchor string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchors[chatAnchor], nil
}

// ResolveOriginEmail returns the origin email ID for a Slack anchor, or "".
func (s *MemoryStore) ResolveOriginEmail(_ context.Context, chatAnchor string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	emailThreadID, ok := s.anchors[chatAnchor]
	if !ok {
		return "", nil
	}
	return s.links[emailThreadID].OriginEmailID, nil
}

// CreateLink records the bidirectional mapping under the mutex, so the
// check-and-claim is atomic within this process.
func (s *MemoryStore) CreateLink(_ context.Context, emailThreadID, chatAnchor, originEmailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.links[emailThreadID]; exists {
		return ErrLinkExists
	}
	s.links[emailThreadID] = linkRecord{
		ChatAnchor:    chatAnchor,
		OriginEmailID: originEmailID,
	}
	s.anchors[chatAnchor] = emailThreadID
	return nil
}

// MarkEventProcessedIfNew records the event key and reports whether it was
// already present.
func (s *MemoryStore) MarkEventProcessedIfNew(_ context.Context, eventKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.processed[eventKey]; ok {
		return true, nil
	}
	s.processed[eventKey] = struct{}{}
	return false, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}
