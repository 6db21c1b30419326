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

package inbound

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/slackbound/bridge/internal/models"
	"github.com/slackbound/bridge/internal/slackapi"
	"github.com/slackbound/bridge/internal/threadstore"
	"github.com/slackbound/bridge/internal/userprefs"
)

type fakeSlack struct {
	posts       []slackapi.PostMessageRequest
	uploads     []string
	nextTS      string
	postErr     error
	uploadErr   error
	userByEmail *slackapi.User
	userErr     error
}

func (f *fakeSlack) PostMessage(ctx context.Context, req slackapi.PostMessageRequest) (string, error) {
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posts = append(f.posts, req)
	if f.nextTS == "" {
		return "1700000000.000100", nil
	}
	return f.nextTS, nil
}

func (f *fakeSlack) UploadFile(ctx context.Context, channelID, threadTS, filename string, data []byte) (*slackapi.File, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, filename)
	return &slackapi.File{
		ID:        "F123",
		Name:      filename,
		Permalink: "https://files.example/" + filename,
	}, nil
}

func (f *fakeSlack) GetUserByEmail(ctx context.Context, email string) (*slackapi.User, error) {
	return f.userByEmail, f.userErr
}

type fakeFetcher struct {
	data map[string][]byte
	err  error
}

func (f *fakeFetcher) DownloadAttachment(ctx context.Context, downloadURL string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.data[downloadURL]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

type failingStore struct {
	threadstore.Store
	markErr error
	linkErr error
}

func (s *failingStore) MarkEventProcessedIfNew(ctx context.Context, key string) (bool, error) {
	if s.markErr != nil {
		return false, s.markErr
	}
	return s.Store.MarkEventProcessedIfNew(ctx, key)
}

func (s *failingStore) CreateLink(ctx context.Context, threadID, anchor, emailID string) error {
	if s.linkErr != nil {
		return s.linkErr
	}
	return s.Store.CreateLink(ctx, threadID, anchor, emailID)
}

func newTestPipeline(slack *fakeSlack, store threadstore.Store) *Pipeline {
	return NewPipeline(Config{
		Store:         store,
		Slack:         slack,
		Attachments:   &fakeFetcher{},
		Prefs:         userprefs.NewMemoryStore(),
		ChannelID:     "C123",
		AvatarBaseURL: "https://avatar.example",
	})
}

func blockText(b slackapi.Block) string {
	if b.Text == nil {
		return ""
	}
	return b.Text.Text
}

func emailEvent(id, threadID string, pos int) *models.InboundEmailEvent {
	return &models.InboundEmailEvent{
		ID:             id,
		ThreadID:       threadID,
		ThreadPosition: pos,
		From:           models.EmailAddress{Name: "Alice Smith", Address: "alice@example.com"},
		Subject:        "Quarterly report",
		Body:           models.EmailBody{Text: "Please review the numbers."},
	}
}

func TestProcess_FirstMessageCreatesLink(t *testing.T) {
	slack := &fakeSlack{}
	store := threadstore.NewMemoryStore()
	p := newTestPipeline(slack, store)

	res := p.Process(context.Background(), emailEvent("e1", "thread-1", 1))
	if !res.Success || res.Skipped {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.SlackThreadTS != "1700000000.000100" {
		t.Errorf("SlackThreadTS = %q", res.SlackThreadTS)
	}

	anchor, err := store.ResolveChatAnchor(context.Background(), "thread-1")
	if err != nil || anchor != "1700000000.000100" {
		t.Errorf("link not recorded: anchor=%q err=%v", anchor, err)
	}

	if len(slack.posts) != 1 {
		t.Fatalf("posted %d messages, want 1", len(slack.posts))
	}
	post := slack.posts[0]
	if post.ThreadTS != "" {
		t.Errorf("first message posted into thread %q, want new root", post.ThreadTS)
	}
	// First message headlines the subject.
	if len(post.Blocks) == 0 || !strings.Contains(blockText(post.Blocks[0]), "*Quarterly report*") {
		t.Errorf("subject not headlined in blocks: %+v", post.Blocks)
	}
}

func TestProcess_ReplyFollowsExistingThread(t *testing.T) {
	slack := &fakeSlack{nextTS: "1700000000.000200"}
	store := threadstore.NewMemoryStore()
	ctx := context.Background()

	if err := store.CreateLink(ctx, "thread-1", "1700000000.000100", "e1"); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(slack, store)
	res := p.Process(ctx, emailEvent("e2", "thread-1", 2))
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}

	post := slack.posts[0]
	if post.ThreadTS != "1700000000.000100" {
		t.Errorf("ThreadTS = %q, want existing anchor", post.ThreadTS)
	}
	if strings.Contains(blockText(post.Blocks[0]), "*Quarterly report*") {
		t.Errorf("reply headlines the subject: %+v", post.Blocks)
	}

	// The existing link must not be overwritten.
	anchor, _ := store.ResolveChatAnchor(ctx, "thread-1")
	if anchor != "1700000000.000100" {
		t.Errorf("anchor changed to %q", anchor)
	}
}

func TestProcess_DuplicateDeliverySkipped(t *testing.T) {
	slack := &fakeSlack{}
	store := threadstore.NewMemoryStore()
	p := newTestPipeline(slack, store)
	ctx := context.Background()

	first := p.Process(ctx, emailEvent("e1", "thread-1", 1))
	if !first.Success {
		t.Fatalf("first delivery failed: %+v", first)
	}

	second := p.Process(ctx, emailEvent("e1", "thread-1", 1))
	if !second.Success || !second.Skipped || second.Reason != "duplicate" {
		t.Errorf("second delivery = %+v, want skipped duplicate", second)
	}
	if len(slack.posts) != 1 {
		t.Errorf("posted %d messages across duplicate deliveries, want 1", len(slack.posts))
	}
}

func TestProcess_StandaloneEmailNoLink(t *testing.T) {
	slack := &fakeSlack{}
	store := threadstore.NewMemoryStore()
	p := newTestPipeline(slack, store)

	res := p.Process(context.Background(), emailEvent("e1", "", 1))
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	if res.ThreadID != "" {
		t.Errorf("ThreadID = %q, want empty", res.ThreadID)
	}
	if len(slack.posts) != 1 {
		t.Fatalf("posted %d messages, want 1", len(slack.posts))
	}
}

func TestProcess_StoreErrorFails(t *testing.T) {
	slack := &fakeSlack{}
	store := &failingStore{
		Store:   threadstore.NewMemoryStore(),
		markErr: errors.New("redis down"),
	}
	p := newTestPipeline(slack, store)

	res := p.Process(context.Background(), emailEvent("e1", "thread-1", 1))
	if res.Success {
		t.Fatalf("result = %+v, want failure", res)
	}
	if len(slack.posts) != 0 {
		t.Errorf("message posted despite failed idempotency check")
	}
}

func TestProcess_PostFailureLeavesNoLink(t *testing.T) {
	slack := &fakeSlack{postErr: errors.New("slack 500")}
	store := threadstore.NewMemoryStore()
	p := newTestPipeline(slack, store)
	ctx := context.Background()

	res := p.Process(ctx, emailEvent("e1", "thread-1", 1))
	if res.Success {
		t.Fatalf("result = %+v, want failure", res)
	}
	anchor, _ := store.ResolveChatAnchor(ctx, "thread-1")
	if anchor != "" {
		t.Errorf("link recorded despite failed post: %q", anchor)
	}
}

func TestProcess_ConcurrentLinkClaimTolerated(t *testing.T) {
	slack := &fakeSlack{}
	store := &failingStore{
		Store:   threadstore.NewMemoryStore(),
		linkErr: threadstore.ErrLinkExists,
	}
	p := newTestPipeline(slack, store)

	res := p.Process(context.Background(), emailEvent("e1", "thread-1", 1))
	if !res.Success {
		t.Errorf("losing the link claim must not fail the delivery: %+v", res)
	}
}

func TestProcess_AttachmentFailureIsolated(t *testing.T) {
	slack := &fakeSlack{}
	store := threadstore.NewMemoryStore()
	p := NewPipeline(Config{
		Store: store,
		Slack: slack,
		Attachments: &fakeFetcher{data: map[string][]byte{
			"https://files.example/good.pdf": []byte("pdf bytes"),
		}},
		Prefs:         userprefs.NewMemoryStore(),
		ChannelID:     "C123",
		AvatarBaseURL: "https://avatar.example",
	})

	ev := emailEvent("e1", "thread-1", 1)
	ev.Attachments = []models.AttachmentDescriptor{
		{Filename: "broken.xls", DownloadURL: "https://files.example/missing.xls"},
		{Filename: "good.pdf", DownloadURL: "https://files.example/good.pdf"},
	}

	res := p.Process(context.Background(), ev)
	if !res.Success {
		t.Fatalf("result = %+v, want success despite one bad attachment", res)
	}
	if len(slack.uploads) != 1 || slack.uploads[0] != "good.pdf" {
		t.Errorf("uploads = %v, want only good.pdf", slack.uploads)
	}

	// Non-image file gets a permalink line.
	post := slack.posts[0]
	found := false
	for _, b := range post.Blocks {
		if strings.Contains(blockText(b), "good.pdf") {
			found = true
		}
	}
	if !found {
		t.Errorf("permalink line for good.pdf missing: %+v", post.Blocks)
	}
}

func TestProcess_SenderIdentityPreference(t *testing.T) {
	ctx := context.Background()

	t.Run("default hides address", func(t *testing.T) {
		slack := &fakeSlack{userByEmail: &slackapi.User{ID: "U1"}}
		p := newTestPipeline(slack, threadstore.NewMemoryStore())

		res := p.Process(ctx, emailEvent("e1", "", 1))
		if !res.Success {
			t.Fatalf("result = %+v", res)
		}
		if got := slack.posts[0].Username; got != "Alice Smith" {
			t.Errorf("username = %q, want name only", got)
		}
	})

	t.Run("opted in shows full address", func(t *testing.T) {
		slack := &fakeSlack{userByEmail: &slackapi.User{ID: "U1"}}
		prefs := userprefs.NewMemoryStore()
		if err := prefs.Put(ctx, userprefs.Preference{UserID: "U1", ShouldShowFullEmail: true}); err != nil {
			t.Fatal(err)
		}

		p := NewPipeline(Config{
			Store:         threadstore.NewMemoryStore(),
			Slack:         slack,
			Attachments:   &fakeFetcher{},
			Prefs:         prefs,
			ChannelID:     "C123",
			AvatarBaseURL: "https://avatar.example",
		})

		res := p.Process(ctx, emailEvent("e1", "", 1))
		if !res.Success {
			t.Fatalf("result = %+v", res)
		}
		if got := slack.posts[0].Username; got != "Alice Smith <alice@example.com>" {
			t.Errorf("username = %q, want full address", got)
		}
	})

	t.Run("lookup failure falls back to name", func(t *testing.T) {
		slack := &fakeSlack{userErr: errors.New("slack down")}
		p := newTestPipeline(slack, threadstore.NewMemoryStore())

		res := p.Process(ctx, emailEvent("e1", "", 1))
		if !res.Success {
			t.Fatalf("lookup failure must not fail the delivery: %+v", res)
		}
		if got := slack.posts[0].Username; got != "Alice Smith" {
			t.Errorf("username = %q, want name only", got)
		}
	})
}

func TestIsImageFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"photo.PNG", true},
		{"diagram.jpeg", true},
		{"anim.gif", true},
		{"report.pdf", false},
		{"archive.tar.gz", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := isImageFilename(tt.filename); got != tt.want {
			t.Errorf("isImageFilename(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestAvatarURL(t *testing.T) {
	got := avatarURL("https://avatar.example", "Alice Smith")
	if !strings.HasPrefix(got, "https://avatar.example/api/logo?") {
		t.Errorf("avatarURL = %q", got)
	}
	if !strings.Contains(got, "text=AS") {
		t.Errorf("initials missing: %q", got)
	}

	got = avatarURL("https://avatar.example", "")
	if !strings.Contains(got, "text=U") {
		t.Errorf("fallback initial missing: %q", got)
	}
}
