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

// Package normalizer converts email content to Slack-ready mrkdwn and Slack
// message text back to email-safe content.
//
// Email → chat runs a fixed stage order: structural strip, signature and
// tracking removal, image extraction, mrkdwn conversion, quoted-reply
// stripping, trailing cleanup. The signature rules are heuristic by nature;
// a rule that fires may occasionally cut real content, and one that misses
// may leave signature text behind. Both are accepted trade-offs.
//
// A failing stage never aborts the pipeline: the best-effort text from the
// prior stage carries forward.
package normalizer

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/slackbound/bridge/internal/models"
)

// NoContentPlaceholder is emitted when every body variant is empty.
const NoContentPlaceholder = "(No content)"

var (
	trailingSeparatorRe = regexp.MustCompile(`\s*\\?--\s*$`)
	blankRunRe          = regexp.MustCompile(`\n{3,}`)
)

// EmailToChat normalizes an inbound email body into Slack-ready text plus
// an ordered list of inline image URLs. The richest available body variant
// is used: HTML, then pre-cleaned text, then raw text.
func EmailToChat(ev *models.InboundEmailEvent) models.NormalizedMessage {
	switch {
	case ev.Body.HTML != "":
		return normalizeHTMLBody(ev.Body.HTML)
	case ev.Body.Text != "":
		return normalizeTextBody(ev.Body.Text)
	case ev.Body.RawText != "":
		return normalizeTextBody(ev.Body.RawText)
	default:
		return models.NormalizedMessage{DisplayText: NoContentPlaceholder}
	}
}

func normalizeHTMLBody(src string) models.NormalizedMessage {
	cleaned := stripStructural(src)
	cleaned, stripped := applyCutRules(cleaned)
	images := extractImages(cleaned)

	text, err := htmlToMrkdwn(cleaned)
	if err != nil {
		slog.Warn("mrkdwn conversion failed, falling back to tag stripping", "error", err)
		text = stripTags(cleaned)
	}

	visible := visibleText(text)
	if visible != text {
		stripped = true
	}

	return models.NormalizedMessage{
		DisplayText:     finalCleanup(visible),
		InlineImageURLs: images,
		Stripped:        stripped,
	}
}

func normalizeTextBody(src string) models.NormalizedMessage {
	visible := visibleText(src)
	stripped := visible != strings.TrimSpace(src)
	return models.NormalizedMessage{
		DisplayText: finalCleanup(visible),
		Stripped:    stripped,
	}
}

// finalCleanup strips residual signature separators and collapses runs of
// three-or-more blank lines.
func finalCleanup(text string) string {
	text = trailingSeparatorRe.ReplaceAllString(text, "")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
