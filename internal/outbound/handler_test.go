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

package outbound

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slackbound/bridge/internal/slackapi"
)

func TestServeEvents_URLVerification(t *testing.T) {
	h := NewHandler(newTestPipeline(&fakeSlack{}, &fakeEmail{}, linkedStore(t)))

	body := `{"type": "url_verification", "challenge": "abc123xyz"}`
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if got := rec.Body.String(); got != "abc123xyz" {
		t.Errorf("body = %q, want challenge echoed", got)
	}
}

func TestServeEvents_InvalidJSONStill200(t *testing.T) {
	h := NewHandler(newTestPipeline(&fakeSlack{}, &fakeEmail{}, linkedStore(t)))

	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()

	h.ServeEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 so Slack does not redeliver", rec.Code)
	}
}

func TestServeEvents_MessageEventProcessed(t *testing.T) {
	slack := &fakeSlack{user: &slackapi.User{ID: "U1", Name: "alice"}}
	email := &fakeEmail{}
	h := NewHandler(newTestPipeline(slack, email, linkedStore(t)))

	body := `{
		"type": "event_callback",
		"event": {
			"type": "message",
			"ts": "1700000000.000200",
			"thread_ts": "1700000000.000100",
			"channel": "C123",
			"user": "U1",
			"text": "replying from slack"
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want immediate 200", rec.Code)
	}

	// Processing is asynchronous; poll for the outcome.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(email.replyList()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	replies := email.replyList()
	if len(replies) != 1 {
		t.Fatalf("sent %d replies, want 1", len(replies))
	}
	if !strings.Contains(replies[0].req.Text, "replying from slack") {
		t.Errorf("reply text = %q", replies[0].req.Text)
	}
}

func TestServeEvents_NonMessageEventIgnored(t *testing.T) {
	slack := &fakeSlack{}
	email := &fakeEmail{}
	h := NewHandler(newTestPipeline(slack, email, linkedStore(t)))

	body := `{
		"type": "event_callback",
		"event": {"type": "reaction_added", "ts": "1.0"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeEvents(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	time.Sleep(50 * time.Millisecond)
	if len(email.replyList()) != 0 {
		t.Error("reply sent for non-message event")
	}
}
