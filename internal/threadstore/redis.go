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
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultSeenTTL is how long the idempotency ledger remembers an event
	// key. Webhook retries arrive within minutes; 7 days is generous.
	DefaultSeenTTL = 7 * 24 * time.Hour

	threadKeyPrefix = "bridge:thread:" // email thread ID → link record
	anchorKeyPrefix = "bridge:anchor:" // Slack thread ts → email thread ID
	seenKeyPrefix   = "bridge:seen:"   // idempotency ledger
)

// linkRecord is the JSON value stored under a thread key.
type linkRecord struct {
	ChatAnchor    string `json:"chat_anchor"`
	OriginEmailID string `json:"origin_email_id"`
}

// RedisStore is a Store backed by Redis. SETNX gives the atomic test-and-set
// used for both the idempotency ledger and first-link creation, so it is
// safe across multiple concurrent deliverers and process instances.
type RedisStore struct {
	rdb     *redis.Client
	seenTTL time.Duration
}

// NewRedisStore creates a thread store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{
		rdb:     rdb,
		seenTTL: DefaultSeenTTL,
	}
}

func threadKey(emailThreadID string) string { return threadKeyPrefix + emailThreadID }
func anchorKey(chatAnchor string) string    { return anchorKeyPrefix + chatAnchor }
func seenKey(eventKey string) string        { return seenKeyPrefix + eventKey }

// ResolveChatAnchor returns the Slack anchor for an email thread, or "".
func (s *RedisStore) ResolveChatAnchor(ctx context.Context, emailThreadID string) (string, error) {
	val, err := s.rdb.Get(ctx, threadKey(emailThreadID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve chat anchor: %w", err)
	}

	var rec linkRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return "", fmt.Errorf("decode link record for thread %s: %w", emailThreadID, err)
	}
	return rec.ChatAnchor, nil
}

// ResolveEmailThread returns the email thread ID for a Slack anchor, or "".
func (s *RedisStore) ResolveEmailThread(ctx context.Context, chatAnchor string) (string, error) {
	val, err := s.rdb.Get(ctx, anchorKey(chatAnchor)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve email thread: %w", err)
	}
	return val, nil
}

// ResolveOriginEmail returns the origin email ID for a Slack anchor, or "".
func (s *RedisStore) ResolveOriginEmail(ctx context.Context, chatAnchor string) (string, error) {
	emailThreadID, err := s.ResolveEmailThread(ctx, chatAnchor)
	if err != nil || emailThreadID == "" {
		return "", err
	}

	val, err := s.rdb.Get(ctx, threadKey(emailThreadID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve origin email: %w", err)
	}

	var rec linkRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return "", fmt.Errorf("decode link record for thread %s: %w", emailThreadID, err)
	}
	return rec.OriginEmailID, nil
}

// CreateLink atomically claims the forward key with SETNX. Only the winner
// writes the reverse key, which keeps the mapping a bijection even when two
// deliverers race on the same first message.
func (s *RedisStore) CreateLink(ctx context.Context, emailThreadID, chatAnchor, originEmailID string) error {
	rec, err := json.Marshal(linkRecord{
		ChatAnchor:    chatAnchor,
		OriginEmailID: originEmailID,
	})
	if err != nil {
		return fmt.Errorf("encode link record: %w", err)
	}

	set, err := s.rdb.SetNX(ctx, threadKey(emailThreadID), rec, 0).Result()
	if err != nil {
		return fmt.Errorf("create link SETNX: %w", err)
	}
	if !set {
		return ErrLinkExists
	}

	if err := s.rdb.Set(ctx, anchorKey(chatAnchor), emailThreadID, 0).Err(); err != nil {
		return fmt.Errorf("create link reverse key: %w", err)
	}
	return nil
}

// MarkEventProcessedIfNew records the event key with SETNX and reports
// whether it was already present.
func (s *RedisStore) MarkEventProcessedIfNew(ctx context.Context, eventKey string) (bool, error) {
	set, err := s.rdb.SetNX(ctx, seenKey(eventKey), 1, s.seenTTL).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency SETNX: %w", err)
	}
	return !set, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.rdb.Ping(ctx).Err()
}
