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

// Package threadstore maps email thread IDs to Slack thread timestamps and
// tracks which events have already been processed.
//
// Flow:
//  1. Email arrives with a thread ID → check idempotency, then resolve an
//     existing Slack thread anchor.
//  2. First email of a thread posts a new root message and creates the link.
//  3. Later emails in the thread resolve the anchor and post as replies.
//  4. A Slack reply in the thread resolves the reverse direction and is sent
//     as an email reply to the origin message.
//
// The mapping is a bijection: one email thread maps to exactly one Slack
// anchor and vice versa. Links are created once and never mutated.
//
// Two backends are provided: a Redis store safe across multiple process
// instances, and an in-memory store that loses state on restart and cannot
// coordinate across instances. Use the in-memory store only for local
// development.
package threadstore

import (
	"context"
	"errors"
)

// ErrLinkExists is returned by CreateLink when a link for the email thread
// was already created, typically by a concurrent delivery of the same first
// message. Callers log it and continue; it is not a user-facing error.
var ErrLinkExists = errors.New("thread link already exists")

// Store is the thread identity store. All methods must be safe for
// concurrent use, potentially across multiple process instances.
//
// Backend failures (connection loss, timeout) propagate as errors and must
// never be interpreted as "absent" or "not yet processed".
type Store interface {
	// ResolveChatAnchor returns the Slack thread timestamp linked to the
	// email thread, or "" when no link exists.
	ResolveChatAnchor(ctx context.Context, emailThreadID string) (string, error)

	// ResolveEmailThread returns the email thread ID linked to the Slack
	// thread anchor, or "" when no link exists.
	ResolveEmailThread(ctx context.Context, chatAnchor string) (string, error)

	// ResolveOriginEmail returns the ID of the email message that created
	// the link for the given Slack anchor, or "" when no link exists.
	ResolveOriginEmail(ctx context.Context, chatAnchor string) (string, error)

	// CreateLink atomically claims the email thread and records the
	// bidirectional mapping. Returns ErrLinkExists if another caller
	// already created a link for emailThreadID.
	CreateLink(ctx context.Context, emailThreadID, chatAnchor, originEmailID string) error

	// MarkEventProcessedIfNew atomically records eventKey in the idempotency
	// ledger and reports whether it was already present. This is a single
	// store-level test-and-set; a read-then-write pair would reintroduce the
	// duplicate-delivery race it exists to close.
	MarkEventProcessedIfNew(ctx context.Context, eventKey string) (alreadyProcessed bool, err error)

	// Ping checks backend availability.
	Ping(ctx context.Context) error
}
