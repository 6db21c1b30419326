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

	"golang.org/x/net/html"
)

var (
	styleBlockRe  = regexp.MustCompile(`(?i)<style[^>]*>[\s\S]*?</style>`)
	scriptBlockRe = regexp.MustCompile(`(?i)<script[^>]*>[\s\S]*?</script>`)
	headBlockRe   = regexp.MustCompile(`(?i)<head[^>]*>[\s\S]*?</head>`)
	metaTagRe     = regexp.MustCompile(`(?i)<meta[^>]*>`)
	anyTagRe      = regexp.MustCompile(`<[^>]+>`)
)

// stripStructural removes non-content markup regions (style, script, head,
// meta) from an HTML body before any content heuristics run.
func stripStructural(src string) string {
	src = styleBlockRe.ReplaceAllString(src, "")
	src = scriptBlockRe.ReplaceAllString(src, "")
	src = headBlockRe.ReplaceAllString(src, "")
	src = metaTagRe.ReplaceAllString(src, "")
	return src
}

// stripTags is the last-resort HTML→text conversion used when the mrkdwn
// converter fails: drop all tags and keep the text content.
func stripTags(src string) string {
	return strings.TrimSpace(anyTagRe.ReplaceAllString(src, ""))
}

// extractImages collects absolute http/https image references from the
// markup in document order, skipping anything matching known tracking
// patterns. The returned URLs are emitted as separate image blocks, not
// inline in the converted text.
func extractImages(src string) []string {
	var urls []string
	tz := html.NewTokenizer(strings.NewReader(src))
	for {
		tt := tz.Next()
		if tt == html.ErrorToken {
			return urls
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := tz.Token()
		if tok.Data != "img" {
			continue
		}
		for _, attr := range tok.Attr {
			if attr.Key != "src" {
				continue
			}
			if isContentImageURL(attr.Val) {
				urls = append(urls, attr.Val)
			}
			break
		}
	}
}

// isContentImageURL filters out data URIs, relative paths, and tracking
// pixel hosts.
func isContentImageURL(url string) bool {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return false
	}
	lower := strings.ToLower(url)
	if strings.Contains(lower, "tracy.srv") ||
		strings.Contains(lower, "tracking") ||
		strings.Contains(lower, "pixel") {
		return false
	}
	return true
}
