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

// cutRule is one heuristic signature/tracking removal rule: locate a marker
// and truncate or excise around it. Rules are applied in a fixed priority
// order via a single fold (applyCutRules); once a rule fires, later rules
// operate on the truncated remainder. A rule never scans past its marker to
// resurrect content.
type cutRule struct {
	name  string
	apply func(html string) (out string, fired bool)
}

// signatureCutRules is the ordered rule list. New rules are appended here
// without touching existing ones.
var signatureCutRules = []cutRule{
	{name: "gmail-signature", apply: cutGmailSignature},
	{name: "wisestamp", apply: cutAtMarkerTag("wisestamp")},
	{name: "signature-promo", apply: cutAtMarkerTag("create your own")},
	{name: "get-outlook", apply: cutAtMarkerTag("get outlook")},
	{name: "tracking-pixels", apply: exciseTrackingPixels},
	{name: "dash-separator", apply: cutDashSeparator},
	{name: "sent-from-device", apply: exciseSentFrom},
	{name: "empty-elements", apply: collapseEmptyElements},
}

// applyCutRules folds the ordered rule list over the document. The second
// return reports whether any rule fired.
func applyCutRules(html string) (string, bool) {
	stripped := false
	for _, rule := range signatureCutRules {
		out, fired := rule.apply(html)
		if fired {
			stripped = true
		}
		html = out
	}
	return strings.TrimSpace(html), stripped
}

// cutGmailSignature truncates at the div carrying Gmail's signature marker
// attribute. Gmail usually precedes the signature with a "-- " prefix span;
// when present, the cut moves back to include it.
func cutGmailSignature(html string) (string, bool) {
	marker := strings.Index(html, `data-smartmail="gmail_signature"`)
	if marker == -1 {
		return html, false
	}

	divStart := marker
	for divStart > 0 && !strings.HasPrefix(html[divStart:], "<div") {
		divStart--
	}

	before := html[:divStart]
	if prefix := strings.LastIndex(before, "gmail_signature_prefix"); prefix != -1 {
		tagStart := prefix
		for tagStart > 0 && html[tagStart] != '<' {
			tagStart--
		}
		if tagStart > 0 {
			return html[:tagStart], true
		}
	}
	if divStart > 0 {
		return html[:divStart], true
	}
	return html, false
}

// cutAtMarkerTag returns a rule that truncates at the opening tag enclosing
// the first case-insensitive occurrence of marker.
func cutAtMarkerTag(marker string) func(string) (string, bool) {
	return func(html string) (string, bool) {
		idx := strings.Index(strings.ToLower(html), marker)
		if idx == -1 {
			return html, false
		}
		tagStart := idx
		for tagStart > 0 && html[tagStart] != '<' {
			tagStart--
		}
		if tagStart > 0 {
			return html[:tagStart], true
		}
		return html, false
	}
}

var trackingPixelPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<img[^>]*tracy\.srv[^>]*>`),
	regexp.MustCompile(`(?i)<img[^>]*alt="__tpx__"[^>]*>`),
	regexp.MustCompile(`(?i)<img[^>]*width="1"[^>]*height="1"[^>]*>`),
	regexp.MustCompile(`(?i)<img[^>]*height="1"[^>]*width="1"[^>]*>`),
	regexp.MustCompile(`(?i)<img[^>]*wisestamp[^>]*>`),
	// Empty spacer/tracking tables.
	regexp.MustCompile(`(?i)<table[^>]*cellspacing="0"[^>]*cellpadding="0"[^>]*>[\s\S]*?</table>`),
}

// exciseTrackingPixels removes tracking pixel images and spacer tables in
// place rather than truncating.
func exciseTrackingPixels(html string) (string, bool) {
	fired := false
	for _, re := range trackingPixelPatterns {
		if re.MatchString(html) {
			html = re.ReplaceAllString(html, "")
			fired = true
		}
	}
	return html, fired
}

var dashSeparatorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(<br\s*/?>\s*)*--\s*(<br|<div)[\s\S]*$`),
	regexp.MustCompile(`(?i)(<div[^>]*>\s*)*--\s*</div>[\s\S]*$`),
}

// cutDashSeparator truncates at a "--" signature separator block and
// discards everything after it.
func cutDashSeparator(html string) (string, bool) {
	fired := false
	for _, re := range dashSeparatorPatterns {
		if re.MatchString(html) {
			html = re.ReplaceAllString(html, "")
			fired = true
		}
	}
	return html, fired
}

var sentFromPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<div[^>]*>Sent from my (iPhone|iPad|Android|BlackBerry)[\s\S]*?</div>`),
	regexp.MustCompile(`(?i)Sent from my (iPhone|iPad|Android|BlackBerry).*`),
	regexp.MustCompile(`(?i)<div[^>]*>Sent from (Outlook|Mail)[\s\S]*?</div>`),
	regexp.MustCompile(`(?i)Sent from (Outlook|Mail).*`),
}

// exciseSentFrom removes "Sent from my device" style mobile signatures.
func exciseSentFrom(html string) (string, bool) {
	fired := false
	for _, re := range sentFromPatterns {
		if re.MatchString(html) {
			html = re.ReplaceAllString(html, "")
			fired = true
		}
	}
	return html, fired
}

var emptyElementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(<div[^>]*>\s*</div>\s*)+`),
	regexp.MustCompile(`(?i)(<div[^>]*>\s*<br\s*/?>\s*</div>)+`),
	regexp.MustCompile(`(?i)(<br\s*/?>\s*)+$`),
	regexp.MustCompile(`(?i)(<span[^>]*>\s*</span>\s*)+$`),
}

var excessiveBreaks = regexp.MustCompile(`(?i)(<br\s*/?>\s*){3,}`)

// collapseEmptyElements drops residual empty containers and caps runs of
// <br> left behind by the cuts above. It fires silently: removing leftover
// whitespace does not count as stripping content.
func collapseEmptyElements(html string) (string, bool) {
	for _, re := range emptyElementPatterns {
		html = re.ReplaceAllString(html, "")
	}
	html = excessiveBreaks.ReplaceAllString(html, "<br><br>")
	return html, false
}
