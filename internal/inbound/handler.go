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
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/slackbound/bridge/internal/models"
)

// webhookPayload is the envelope the email provider POSTs.
type webhookPayload struct {
	Email models.InboundEmailEvent `json:"email"`
}

// Handler serves the inbound email webhook.
type Handler struct {
	pipeline *Pipeline
}

// NewHandler creates the webhook handler.
func NewHandler(pipeline *Pipeline) *Handler {
	return &Handler{pipeline: pipeline}
}

// ServeWebhook handles one inbound email webhook delivery. The pipeline
// runs synchronously so the caller receives the structured outcome; the
// sender retries on failure, which the idempotency gate makes safe.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("inbound webhook body not valid JSON", "error", err)
		writeResult(w, http.StatusBadRequest, models.InboundResult{
			Success: false,
			Error:   "invalid JSON payload",
		})
		return
	}

	if payload.Email.ID == "" {
		writeResult(w, http.StatusBadRequest, models.InboundResult{
			Success: false,
			Error:   "missing email id",
		})
		return
	}

	result := h.pipeline.Process(r.Context(), &payload.Email)
	writeResult(w, http.StatusOK, result)
}

func writeResult(w http.ResponseWriter, status int, result models.InboundResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		slog.Error("failed to write webhook response", "error", err)
	}
}
