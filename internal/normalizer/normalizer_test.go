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
	"strings"
	"testing"

	"github.com/slackbound/bridge/internal/models"
)

func TestEmailToChat_BodyFallbackOrder(t *testing.T) {
	tests := []struct {
		name string
		body models.EmailBody
		want string
	}{
		{
			name: "html preferred",
			body: models.EmailBody{
				HTML:    "<p>from html</p>",
				Text:    "from text",
				RawText: "from raw",
			},
			want: "from html",
		},
		{
			name: "text when no html",
			body: models.EmailBody{Text: "from text", RawText: "from raw"},
			want: "from text",
		},
		{
			name: "raw text last",
			body: models.EmailBody{RawText: "from raw"},
			want: "from raw",
		},
		{
			name: "placeholder when all empty",
			body: models.EmailBody{},
			want: NoContentPlaceholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EmailToChat(&models.InboundEmailEvent{Body: tt.body})
			if got.DisplayText != tt.want {
				t.Errorf("DisplayText = %q, want %q", got.DisplayText, tt.want)
			}
		})
	}
}

func TestEmailToChat_HTMLPipeline(t *testing.T) {
	ev := &models.InboundEmailEvent{
		Body: models.EmailBody{
			HTML: `<html><head><style>.x{color:red}</style></head><body>` +
				`<p>Check the <a href="https://docs.example.com">docs</a> and <b>reply</b>.</p>` +
				`<img src="https://cdn.example.com/diagram.png">` +
				`<img src="https://tracy.srv.example/open.gif">` +
				`<div data-smartmail="gmail_signature">Jane Doe, CTO</div>` +
				`</body></html>`,
		},
	}

	got := EmailToChat(ev)

	if !strings.Contains(got.DisplayText, "<https://docs.example.com|docs>") {
		t.Errorf("link not in Slack format: %q", got.DisplayText)
	}
	if !strings.Contains(got.DisplayText, "*reply*") {
		t.Errorf("bold not in Slack format: %q", got.DisplayText)
	}
	if strings.Contains(got.DisplayText, "Jane Doe") {
		t.Errorf("signature survived: %q", got.DisplayText)
	}
	if strings.Contains(got.DisplayText, "<p>") || strings.Contains(got.DisplayText, "style") {
		t.Errorf("markup leaked into display text: %q", got.DisplayText)
	}
	if !got.Stripped {
		t.Error("Stripped flag not set after signature removal")
	}

	if len(got.InlineImageURLs) != 1 || got.InlineImageURLs[0] != "https://cdn.example.com/diagram.png" {
		t.Errorf("InlineImageURLs = %v, want only the content image", got.InlineImageURLs)
	}
}

func TestEmailToChat_BareURLLink(t *testing.T) {
	ev := &models.InboundEmailEvent{
		Body: models.EmailBody{
			HTML: `<p>See <a href="https://example.com/x">https://example.com/x</a></p>`,
		},
	}

	got := EmailToChat(ev)
	if !strings.Contains(got.DisplayText, "<https://example.com/x>") {
		t.Errorf("bare URL link format wrong: %q", got.DisplayText)
	}
	if strings.Contains(got.DisplayText, "|") {
		t.Errorf("label separator present for identical label: %q", got.DisplayText)
	}
}

func TestEmailToChat_TextBodyQuoteStripping(t *testing.T) {
	ev := &models.InboundEmailEvent{
		Body: models.EmailBody{
			Text: "Works for me.\n\nOn Mon, Jan 5, 2026 at 9:00 AM Bob <bob@x.com> wrote:\n> earlier\n",
		},
	}

	got := EmailToChat(ev)
	if got.DisplayText != "Works for me." {
		t.Errorf("DisplayText = %q, want quoted reply removed", got.DisplayText)
	}
	if !got.Stripped {
		t.Error("Stripped flag not set after quote removal")
	}
}

func TestFinalCleanup(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing dashes", "Body text\n--", "Body text"},
		{"escaped trailing dashes", "Body text\n\\--", "Body text"},
		{"blank run collapse", "a\n\n\n\n\nb", "a\n\nb"},
		{"surrounding whitespace", "  hi  \n", "hi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := finalCleanup(tt.in); got != tt.want {
				t.Errorf("finalCleanup(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractImages_Filtering(t *testing.T) {
	src := `<img src="https://cdn.example.com/a.png">` +
		`<img src="data:image/png;base64,AAAA">` +
		`<img src="/relative/b.png">` +
		`<img src="https://x.example.com/pixel.gif">` +
		`<img src="https://cdn.example.com/c.jpg">`

	got := extractImages(src)
	want := []string{"https://cdn.example.com/a.png", "https://cdn.example.com/c.jpg"}
	if len(got) != len(want) {
		t.Fatalf("extractImages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("extractImages[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStripTags(t *testing.T) {
	got := stripTags(`<div><p>Hello <b>world</b></p></div>`)
	if got != "Hello world" {
		t.Errorf("stripTags = %q, want %q", got, "Hello world")
	}
}
