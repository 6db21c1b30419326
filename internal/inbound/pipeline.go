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

// Package inbound turns one inbound-email webhook delivery into one Slack
// message: idempotency gate, thread resolution, content normalization,
// attachment transfer, and the post itself.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/slackbound/bridge/internal/models"
	"github.com/slackbound/bridge/internal/normalizer"
	"github.com/slackbound/bridge/internal/slackapi"
	"github.com/slackbound/bridge/internal/threadstore"
	"github.com/slackbound/bridge/internal/userprefs"
)

// emailEventKeyPrefix namespaces inbound email IDs in the idempotency
// ledger, keeping them apart from Slack message timestamps.
const emailEventKeyPrefix = "email:"

// SlackClient is the slice of the Slack API the inbound pipeline consumes.
type SlackClient interface {
	PostMessage(ctx context.Context, req slackapi.PostMessageRequest) (string, error)
	UploadFile(ctx context.Context, channelID, threadTS, filename string, data []byte) (*slackapi.File, error)
	GetUserByEmail(ctx context.Context, email string) (*slackapi.User, error)
}

// AttachmentFetcher downloads attachment bytes from the email provider.
type AttachmentFetcher interface {
	DownloadAttachment(ctx context.Context, downloadURL string) ([]byte, error)
}

// Config wires a Pipeline.
type Config struct {
	Store         threadstore.Store
	Slack         SlackClient
	Attachments   AttachmentFetcher
	Prefs         userprefs.Store
	ChannelID     string
	AvatarBaseURL string
}

// Pipeline processes inbound email events. Each event is an independent
// unit of work; concurrent invocations are expected and safe because the
// thread store is the only shared state.
type Pipeline struct {
	store         threadstore.Store
	slack         SlackClient
	attachments   AttachmentFetcher
	prefs         userprefs.Store
	channelID     string
	avatarBaseURL string
}

// NewPipeline creates an inbound pipeline.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		store:         cfg.Store,
		slack:         cfg.Slack,
		attachments:   cfg.Attachments,
		prefs:         cfg.Prefs,
		channelID:     cfg.ChannelID,
		avatarBaseURL: cfg.AvatarBaseURL,
	}
}

// Process handles one inbound email event and returns the structured result
// for the webhook caller. The idempotency gate is the very first action —
// before any call with side effects — so upstream retries are harmless.
func (p *Pipeline) Process(ctx context.Context, ev *models.InboundEmailEvent) models.InboundResult {
	ev.ApplyDefaults()
	procID := uuid.New().String()

	log := slog.With(
		"proc_id", procID,
		"email_id", ev.ID,
		"thread_id", ev.ThreadID,
	)

	alreadyProcessed, err := p.store.MarkEventProcessedIfNew(ctx, emailEventKeyPrefix+ev.ID)
	if err != nil {
		log.Error("idempotency check failed", "error", err)
		return failure(ev, fmt.Errorf("idempotency check: %w", err))
	}
	if alreadyProcessed {
		log.Info("duplicate delivery, skipping")
		return models.InboundResult{
			Success: true,
			Skipped: true,
			Reason:  "duplicate",
			EmailID: ev.ID,
		}
	}

	// Resolve an existing Slack thread. A miss means this is the thread's
	// first message (or the mapping was lost) and we post a new root.
	var anchor string
	if ev.ThreadID != "" {
		anchor, err = p.store.ResolveChatAnchor(ctx, ev.ThreadID)
		if err != nil {
			log.Error("thread resolution failed", "error", err)
			return failure(ev, fmt.Errorf("resolve thread: %w", err))
		}
		if anchor != "" {
			log.Info("posting into existing thread", "anchor", anchor)
		}
	}

	norm := normalizer.EmailToChat(ev)
	log.Info("content normalized",
		"chars", len(norm.DisplayText),
		"images", len(norm.InlineImageURLs),
		"stripped", norm.Stripped,
	)

	uploaded := p.transferAttachments(ctx, log, ev, anchor)

	username, iconURL := p.senderIdentity(ctx, log, ev)

	blocks := buildBlocks(ev, anchor, norm, uploaded)

	ts, err := p.slack.PostMessage(ctx, slackapi.PostMessageRequest{
		Channel:  p.channelID,
		Text:     fmt.Sprintf("New email from %s: %s", ev.SenderName(), ev.Subject),
		Blocks:   blocks,
		ThreadTS: anchor,
		Username: username,
		IconURL:  iconURL,
	})
	if err != nil {
		log.Error("slack post failed", "error", err)
		return failure(ev, fmt.Errorf("post message: %w", err))
	}
	log.Info("posted to slack", "ts", ts)

	// First message of a new thread: record the link. Losing the claim to a
	// concurrent deliverer is fine — later messages resolve their anchor.
	if ev.ThreadID != "" && anchor == "" {
		err := p.store.CreateLink(ctx, ev.ThreadID, ts, ev.ID)
		switch {
		case errors.Is(err, threadstore.ErrLinkExists):
			log.Info("link already created by concurrent delivery")
		case err != nil:
			log.Error("link creation failed", "error", err)
			return failure(ev, fmt.Errorf("create link: %w", err))
		default:
			log.Info("thread link created", "anchor", ts)
		}
	}

	return models.InboundResult{
		Success:       true,
		EmailID:       ev.ID,
		ThreadID:      ev.ThreadID,
		SlackThreadTS: ts,
	}
}

func failure(ev *models.InboundEmailEvent, err error) models.InboundResult {
	return models.InboundResult{
		Success: false,
		EmailID: ev.ID,
		Error:   err.Error(),
	}
}

// uploadedAttachment pairs a Slack file with its display classification.
type uploadedAttachment struct {
	file    *slackapi.File
	isImage bool
}

// transferAttachments downloads each attachment and uploads it to Slack.
// Failures are isolated per attachment: one bad file never blocks the rest
// of the message. Order follows the original attachment list.
func (p *Pipeline) transferAttachments(ctx context.Context, log *slog.Logger, ev *models.InboundEmailEvent, anchor string) []uploadedAttachment {
	if len(ev.Attachments) == 0 {
		return nil
	}

	var uploaded []uploadedAttachment
	for _, att := range ev.Attachments {
		data, err := p.attachments.DownloadAttachment(ctx, att.DownloadURL)
		if err != nil {
			log.Warn("attachment download failed",
				"filename", att.Filename,
				"error", err,
			)
			continue
		}

		file, err := p.slack.UploadFile(ctx, p.channelID, anchor, att.Filename, data)
		if err != nil {
			log.Warn("attachment upload failed",
				"filename", att.Filename,
				"error", err,
			)
			continue
		}

		uploaded = append(uploaded, uploadedAttachment{
			file:    file,
			isImage: isImageFilename(att.Filename),
		})
	}

	log.Info("attachments transferred",
		"uploaded", len(uploaded),
		"total", len(ev.Attachments),
	)
	return uploaded
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
}

func isImageFilename(filename string) bool {
	return imageExtensions[strings.ToLower(path.Ext(filename))]
}

// senderIdentity resolves the posted username and avatar for the email
// sender. The raw address is revealed only when a matching workspace user
// opted in via their display preference; lookup failures fall back to the
// display name alone.
func (p *Pipeline) senderIdentity(ctx context.Context, log *slog.Logger, ev *models.InboundEmailEvent) (username, iconURL string) {
	name := ev.SenderName()
	username = name
	iconURL = avatarURL(p.avatarBaseURL, name)

	if ev.From.Address == "" {
		return username, iconURL
	}

	user, err := p.slack.GetUserByEmail(ctx, ev.From.Address)
	if err != nil {
		log.Warn("sender lookup failed", "error", err)
		return username, iconURL
	}
	if user == nil {
		return username, iconURL
	}

	pref, err := p.prefs.Get(ctx, user.ID)
	if err != nil {
		log.Warn("preference lookup failed", "user", user.ID, "error", err)
		return username, iconURL
	}
	if pref != nil && pref.ShouldShowFullEmail {
		username = fmt.Sprintf("%s <%s>", name, ev.From.Address)
	}
	return username, iconURL
}

// buildBlocks composes the message: the subject headlines the first message
// of a thread, replies carry just the body; extracted images follow as
// image blocks and non-image files as permalink lines.
func buildBlocks(ev *models.InboundEmailEvent, anchor string, norm models.NormalizedMessage, uploaded []uploadedAttachment) []slackapi.Block {
	var blocks []slackapi.Block

	if ev.ThreadPosition == 1 || anchor == "" {
		blocks = append(blocks, slackapi.SectionBlock(
			fmt.Sprintf("*%s*\n\n%s", ev.Subject, norm.DisplayText),
		))
	} else {
		blocks = append(blocks, slackapi.SectionBlock(norm.DisplayText))
	}

	for _, imageURL := range norm.InlineImageURLs {
		blocks = append(blocks, slackapi.ImageBlock(imageURL, "Email image"))
	}

	var fileLinks []string
	for _, att := range uploaded {
		if att.isImage || att.file.Permalink == "" {
			continue
		}
		fileLinks = append(fileLinks, fmt.Sprintf("<%s|%s>", att.file.Permalink, att.file.Name))
	}
	if len(fileLinks) > 0 {
		blocks = append(blocks, slackapi.SectionBlock(strings.Join(fileLinks, "\n")))
	}

	return blocks
}
