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

// Package models defines the data structures shared across the bridge service.
package models

// EmailAddress represents a sender or recipient with an address and optional name.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// EmailBody carries the body variants the email provider may include.
// Richer variants are preferred by the normalizer; all may be empty.
type EmailBody struct {
	// HTML is the pre-cleaned rich body, if the provider produced one.
	HTML string `json:"html,omitempty"`
	// Text is the pre-cleaned plain-text body.
	Text string `json:"text,omitempty"`
	// RawText is the raw parsed text body, used as a last resort.
	RawText string `json:"rawText,omitempty"`
}

// AttachmentDescriptor describes one file attached to an inbound email.
// The bytes are not inlined; they are fetched from DownloadURL on demand.
type AttachmentDescriptor struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Size        int    `json:"size"`
	DownloadURL string `json:"downloadUrl"`
}

// InboundEmailEvent is one inbound-email webhook delivery.
//
// The webhook sender delivers at-least-once, so the same event (same ID)
// may arrive multiple times and concurrently.
type InboundEmailEvent struct {
	ID string `json:"id"`
	// ThreadID is the provider-assigned conversation identifier. Empty for
	// standalone emails that are not part of a thread.
	ThreadID string `json:"threadId,omitempty"`
	// ThreadPosition is 1 for the first message of a thread. Defaults to 1
	// when absent from the payload (see ApplyDefaults).
	ThreadPosition int                    `json:"threadPosition,omitempty"`
	From           EmailAddress           `json:"from"`
	Subject        string                 `json:"subject,omitempty"`
	Body           EmailBody              `json:"body"`
	Attachments    []AttachmentDescriptor `json:"attachments,omitempty"`
}

// ApplyDefaults fills in documented defaults for optional fields. Called once
// at the pipeline boundary so downstream code never re-checks them.
func (e *InboundEmailEvent) ApplyDefaults() {
	if e.ThreadPosition < 1 {
		e.ThreadPosition = 1
	}
	if e.Subject == "" {
		e.Subject = "(No Subject)"
	}
}

// SenderName returns the best display name for the sender.
func (e *InboundEmailEvent) SenderName() string {
	if e.From.Name != "" {
		return e.From.Name
	}
	if e.From.Address != "" {
		return e.From.Address
	}
	return "Unknown"
}

// ChatMessageEvent is one message event delivered by the chat platform's
// event subscription. Field names follow the Slack event payload.
type ChatMessageEvent struct {
	Timestamp string `json:"ts"`
	// ThreadAnchor is the ts of the thread's root message. Empty when the
	// message is not a reply inside a thread.
	ThreadAnchor string `json:"thread_ts,omitempty"`
	Channel      string `json:"channel"`
	UserID       string `json:"user,omitempty"`
	Text         string `json:"text,omitempty"`
	Subtype      string `json:"subtype,omitempty"`
	BotID        string `json:"bot_id,omitempty"`
}

// IsThreadReply reports whether the event is a reply within a thread, as
// opposed to a channel message or the thread's own root message.
func (e *ChatMessageEvent) IsThreadReply() bool {
	return e.ThreadAnchor != "" && e.ThreadAnchor != e.Timestamp
}

// NormalizedMessage is the output of the email→chat content normalizer.
// Transient, never persisted.
type NormalizedMessage struct {
	DisplayText     string
	InlineImageURLs []string
	// Stripped reports whether signature or quoted-reply content was removed.
	Stripped bool
}

// InboundResult is the structured JSON result returned to the webhook caller.
type InboundResult struct {
	Success       bool   `json:"success"`
	Skipped       bool   `json:"skipped,omitempty"`
	Reason        string `json:"reason,omitempty"`
	EmailID       string `json:"emailId,omitempty"`
	ThreadID      string `json:"threadId,omitempty"`
	SlackThreadTS string `json:"slackThreadTs,omitempty"`
	Error         string `json:"error,omitempty"`
}
