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

package normalizer

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/kyokomi/emoji/v2"
)

// Format selects the target rendering for chat→email conversion.
type Format int

const (
	// FormatPlain renders to plain text; custom emoji stay as literal
	// shortcodes since there is no way to embed their images.
	FormatPlain Format = iota
	// FormatHTML renders to rich text; custom emoji become inline images.
	FormatHTML
)

var (
	shortcodeRe = regexp.MustCompile(`:([a-zA-Z0-9_+-]+):`)
	imgTagRe    = regexp.MustCompile(`(?i)<img[^>]*>`)
)

// EmojiCache holds the workspace's custom emoji table, refreshed through an
// injected fetch function at most once per TTL. It is an explicitly owned
// object rather than package state so tests can inject a fixed snapshot.
type EmojiCache struct {
	mu        sync.Mutex
	fetch     func(ctx context.Context) (map[string]string, error)
	ttl       time.Duration
	table     map[string]string
	fetchedAt time.Time
}

// NewEmojiCache creates a cache that refreshes via fetch at most once per
// ttl. A zero ttl means the first successful fetch is kept forever.
func NewEmojiCache(fetch func(ctx context.Context) (map[string]string, error), ttl time.Duration) *EmojiCache {
	return &EmojiCache{fetch: fetch, ttl: ttl}
}

// NewStaticEmojiCache creates a cache with a fixed table and no refresh.
// Intended for tests.
func NewStaticEmojiCache(table map[string]string) *EmojiCache {
	return &EmojiCache{table: table, fetchedAt: time.Now()}
}

// Lookup resolves a custom emoji name to its image URL, following one level
// of "alias:" indirection. A failed refresh is logged and the stale table
// (possibly empty) is used.
func (c *EmojiCache) Lookup(ctx context.Context, name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fetch != nil && (c.table == nil || (c.ttl > 0 && time.Since(c.fetchedAt) > c.ttl)) {
		table, err := c.fetch(ctx)
		if err != nil {
			slog.Warn("could not fetch workspace emoji", "error", err)
		} else {
			c.table = table
			c.fetchedAt = time.Now()
		}
	}

	url, ok := c.table[name]
	if !ok {
		return "", false
	}
	if alias, found := cutAliasPrefix(url); found {
		url, ok = c.table[alias]
		if !ok {
			return "", false
		}
	}
	return url, true
}

func cutAliasPrefix(v string) (string, bool) {
	const prefix = "alias:"
	if len(v) > len(prefix) && v[:len(prefix)] == prefix {
		return v[len(prefix):], true
	}
	return "", false
}

// ChatToEmail converts Slack :shortcode: syntax to Unicode glyphs. Custom
// workspace emoji resolve to inline image tags only in FormatHTML; anything
// unresolved is left as literal text, never dropped. cache may be nil.
func ChatToEmail(ctx context.Context, text string, format Format, cache *EmojiCache) string {
	return shortcodeRe.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]

		if glyph, ok := emoji.CodeMap()[match]; ok {
			return glyph
		}

		if format == FormatHTML && cache != nil {
			if url, ok := cache.Lookup(ctx, name); ok {
				return fmt.Sprintf(
					`<img src=%q alt=%q style="height: 1.2em; width: 1.2em; display: inline; vertical-align: middle;" />`,
					url, name,
				)
			}
		}

		return match
	})
}

// StripImageMarkup removes image tags inserted for custom emoji, producing
// the plain-text rendering of a converted message.
func StripImageMarkup(text string) string {
	return imgTagRe.ReplaceAllString(text, "")
}
