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

// Package emailapi is a thin client for the email provider's send/reply API
// and for authenticated attachment downloads.
package emailapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the production email API endpoint.
const DefaultBaseURL = "https://api.inbound.new/v2"

// maxAttachmentBytes caps a single attachment download.
const maxAttachmentBytes = 50 << 20

// Client calls the email provider API. All requests carry the API key as a
// bearer token via an oauth2 static token source.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an email API client. baseURL is overridable for tests;
// pass "" for the production endpoint.
func NewClient(ctx context.Context, baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: apiKey,
		TokenType:   "Bearer",
	})
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

// ReplyRequest is the payload for replying to an email. HTML carries the
// rich body (custom emoji render as inline images); Text is the plain
// fallback; From is the fully formatted sender field.
type ReplyRequest struct {
	HTML string `json:"html"`
	Text string `json:"text"`
	From string `json:"from"`
}

// Reply sends an email as a reply addressed to the given message ID.
// Returns the provider-assigned ID of the sent reply.
func (c *Client) Reply(ctx context.Context, emailID string, reply ReplyRequest) (string, error) {
	payload, err := json.Marshal(reply)
	if err != nil {
		return "", fmt.Errorf("marshal reply: %w", err)
	}

	endpoint := fmt.Sprintf("%s/emails/%s/reply", c.baseURL, emailID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send reply: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("email API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode reply response: %w", err)
	}
	return out.Data.ID, nil
}

// DownloadAttachment fetches attachment bytes from the provider's
// authenticated download URL.
func (c *Client) DownloadAttachment(ctx context.Context, downloadURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment body: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment exceeds %d byte limit", maxAttachmentBytes)
	}
	return data, nil
}
