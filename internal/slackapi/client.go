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

// Package slackapi is a thin client for the subset of the Slack Web API the
// bridge consumes: posting messages, uploading files, emoji and user
// lookups, and reactions.
package slackapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the production Slack Web API endpoint.
const DefaultBaseURL = "https://slack.com/api"

// Client calls the Slack Web API with a bot token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a Slack API client. baseURL is overridable for tests;
// pass "" for the production endpoint.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
	}
}

// apiResponse is the envelope every Slack Web API response carries.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// TextObject is a Block Kit text element.
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block is the subset of Block Kit the bridge emits: section and image
// blocks.
type Block struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	ImageURL string      `json:"image_url,omitempty"`
	AltText  string      `json:"alt_text,omitempty"`
}

// SectionBlock builds a mrkdwn section block.
func SectionBlock(mrkdwn string) Block {
	return Block{
		Type: "section",
		Text: &TextObject{Type: "mrkdwn", Text: mrkdwn},
	}
}

// ImageBlock builds an image block for a remote URL.
func ImageBlock(imageURL, altText string) Block {
	return Block{
		Type:     "image",
		ImageURL: imageURL,
		AltText:  altText,
	}
}

// PostMessageRequest is the chat.postMessage payload.
type PostMessageRequest struct {
	Channel     string  `json:"channel"`
	Text        string  `json:"text"`
	Blocks      []Block `json:"blocks,omitempty"`
	ThreadTS    string  `json:"thread_ts,omitempty"`
	Username    string  `json:"username,omitempty"`
	IconURL     string  `json:"icon_url,omitempty"`
	UnfurlLinks bool    `json:"unfurl_links"`
	UnfurlMedia bool    `json:"unfurl_media"`
}

// PostMessage posts a message and returns its timestamp, which identifies
// the message (and, for thread roots, anchors the thread).
func (c *Client) PostMessage(ctx context.Context, req PostMessageRequest) (string, error) {
	var out struct {
		apiResponse
		TS string `json:"ts"`
	}
	if err := c.postJSON(ctx, "chat.postMessage", req, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", fmt.Errorf("chat.postMessage: %s", out.Error)
	}
	return out.TS, nil
}

// File describes an uploaded Slack file.
type File struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Permalink string `json:"permalink"`
}

// UploadFile uploads file bytes to a channel, threaded when threadTS is
// non-empty. Slack renders image files inline and other files as links.
func (c *Client) UploadFile(ctx context.Context, channelID, threadTS, filename string, data []byte) (*File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	_ = mw.WriteField("channels", channelID)
	_ = mw.WriteField("filename", filename)
	_ = mw.WriteField("title", filename)
	if threadTS != "" {
		_ = mw.WriteField("thread_ts", threadTS)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files.upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	var out struct {
		apiResponse
		File File `json:"file"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("files.upload: %s", out.Error)
	}
	return &out.File, nil
}

// UserProfile carries the profile fields the bridge reads.
type UserProfile struct {
	Email string `json:"email,omitempty"`
}

// User is a Slack workspace member.
type User struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	RealName string      `json:"real_name,omitempty"`
	Profile  UserProfile `json:"profile"`
}

// DisplayName returns the best human-readable name for the user.
func (u *User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// GetUserByEmail looks up a workspace member by email address. Returns
// (nil, nil) when no member matches — absence is not an error.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var out struct {
		apiResponse
		User User `json:"user"`
	}
	params := url.Values{"email": {email}}
	if err := c.getForm(ctx, "users.lookupByEmail", params, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		if out.Error == "users_not_found" {
			return nil, nil
		}
		return nil, fmt.Errorf("users.lookupByEmail: %s", out.Error)
	}
	return &out.User, nil
}

// GetUserInfo fetches a workspace member by ID.
func (c *Client) GetUserInfo(ctx context.Context, userID string) (*User, error) {
	var out struct {
		apiResponse
		User User `json:"user"`
	}
	params := url.Values{"user": {userID}}
	if err := c.getForm(ctx, "users.info", params, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("users.info: %s", out.Error)
	}
	return &out.User, nil
}

// ListEmoji fetches the workspace's custom emoji table, mapping emoji name
// to image URL (or an "alias:name" reference).
func (c *Client) ListEmoji(ctx context.Context) (map[string]string, error) {
	var out struct {
		apiResponse
		Emoji map[string]string `json:"emoji"`
	}
	if err := c.getForm(ctx, "emoji.list", nil, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("emoji.list: %s", out.Error)
	}
	return out.Emoji, nil
}

// AddReaction adds an emoji reaction to a message. Reacting twice with the
// same emoji is treated as success.
func (c *Client) AddReaction(ctx context.Context, channel, timestamp, name string) error {
	req := map[string]string{
		"channel":   channel,
		"timestamp": timestamp,
		"name":      name,
	}
	var out apiResponse
	if err := c.postJSON(ctx, "reactions.add", req, &out); err != nil {
		return err
	}
	if !out.OK && out.Error != "already_reacted" {
		return fmt.Errorf("reactions.add: %s", out.Error)
	}
	return nil
}

// Message is the subset of a Slack message the bridge reads back.
type Message struct {
	TS       string `json:"ts"`
	Text     string `json:"text,omitempty"`
	User     string `json:"user,omitempty"`
	Username string `json:"username,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

// Author returns the best identification of the message author.
func (m *Message) Author() string {
	switch {
	case m.Username != "":
		return m.Username
	case m.BotID != "":
		return m.BotID
	case m.User != "":
		return "user " + m.User
	default:
		return "unknown"
	}
}

// GetThreadParent fetches the root message of a thread. Used only for
// diagnostic context when a thread has no stored mapping.
func (c *Client) GetThreadParent(ctx context.Context, channel, threadTS string) (*Message, error) {
	var out struct {
		apiResponse
		Messages []Message `json:"messages"`
	}
	params := url.Values{
		"channel":   {channel},
		"ts":        {threadTS},
		"limit":     {"1"},
		"inclusive": {"true"},
	}
	if err := c.getForm(ctx, "conversations.replies", params, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("conversations.replies: %s", out.Error)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}
	return &out.Messages[0], nil
}

func (c *Client) postJSON(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *Client) getForm(ctx context.Context, method string, params url.Values, out any) error {
	endpoint := c.baseURL + "/" + method
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack API call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("slack API returned non-200",
			"url", req.URL.Path,
			"status", resp.StatusCode,
		)
		return fmt.Errorf("slack API returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	return nil
}
