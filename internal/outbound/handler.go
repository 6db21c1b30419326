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
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/slackbound/bridge/internal/models"
)

// eventsPayload is the envelope Slack POSTs to the events endpoint.
type eventsPayload struct {
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

// innerEvent adds the event type discriminator to the message fields.
type innerEvent struct {
	Type string `json:"type"`
	models.ChatMessageEvent
}

// Handler serves the Slack events subscription.
type Handler struct {
	pipeline *Pipeline
}

// NewHandler creates the events handler.
func NewHandler(pipeline *Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

// ServeEvents handles Slack event deliveries.
//
// URL verification flow:
//   - When the subscription is configured, Slack POSTs {type:
//     "url_verification", challenge: "..."} and expects the challenge back.
//
// Normal event flow:
//   - Slack POSTs an event_callback envelope and expects a fast 200;
//     slow responses trigger redelivery. We acknowledge immediately and
//     process in the background — the idempotency gate absorbs redeliveries
//     that race the acknowledgment.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read events body", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload eventsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Info("events body not valid JSON, ignoring", "body_len", len(body))
		w.WriteHeader(http.StatusOK)
		return
	}

	switch payload.Type {
	case "url_verification":
		slog.Info("events URL verification probe received")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(payload.Challenge))

	case "event_callback":
		var inner innerEvent
		if err := json.Unmarshal(payload.Event, &inner); err != nil {
			slog.Warn("could not parse inner event", "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}

		// Respond immediately — Slack redelivers on slow responses.
		w.WriteHeader(http.StatusOK)

		if inner.Type != "message" {
			return
		}
		ev := inner.ChatMessageEvent
		go func() {
			if err := h.pipeline.Process(context.Background(), &ev); err != nil {
				slog.Error("outbound pipeline failed",
					"ts", ev.Timestamp,
					"error", err,
				)
			}
		}()

	default:
		w.WriteHeader(http.StatusOK)
	}
}
