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
	"regexp"
	"strings"
)

// Reply boundary markers. The earliest match truncates the message: the
// boundary line and everything after it is quoted prior conversation.
var replyBoundaryPatterns = []*regexp.Regexp{
	// "On Mon, Jan 2 at 3:04 PM, Alice <a@x.com> wrote:"
	regexp.MustCompile(`(?m)^\s*On .{0,300}wrote:\s*$`),
	// Outlook-style separators.
	regexp.MustCompile(`(?im)^\s*-{2,}\s*original message\s*-{2,}\s*$`),
	regexp.MustCompile(`(?im)^\s*-{2,}\s*forwarded message\s*-{2,}\s*$`),
	regexp.MustCompile(`(?m)^\s*_{8,}\s*$`),
	// Quoted header block as produced by Outlook replies.
	regexp.MustCompile(`(?im)^\s*from:\s+.+@.+$`),
}

// visibleText discards quoted prior messages from plain text or mrkdwn,
// returning only the content the sender authored. Quote-prefixed lines
// (">") are dropped wherever they appear; everything from the first reply
// boundary onward is dropped.
func visibleText(text string) string {
	cut := len(text)
	for _, re := range replyBoundaryPatterns {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	text = text[:cut]

	lines := strings.Split(text, "\n")
	visible := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), ">") {
			continue
		}
		visible = append(visible, line)
	}
	return strings.TrimSpace(strings.Join(visible, "\n"))
}
