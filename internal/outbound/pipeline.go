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

// Package outbound turns a Slack thread reply into an email reply: filter,
// idempotency gate, reverse thread resolution, emoji conversion, and the
// send itself, acknowledged with a reaction on the triggering message.
package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/slackbound/bridge/internal/emailapi"
	"github.com/slackbound/bridge/internal/models"
	"github.com/slackbound/bridge/internal/normalizer"
	"github.com/slackbound/bridge/internal/slackapi"
	"github.com/slackbound/bridge/internal/threadstore"
	"github.com/slackbound/bridge/internal/userprefs"
)

const (
	// slackEventKeyPrefix namespaces Slack message timestamps in the
	// idempotency ledger.
	slackEventKeyPrefix = "slackmsg:"

	successReaction = "white_check_mark"
	failureReaction = "x"
)

// SlackClient is the slice of the Slack API the outbound pipeline consumes.
type SlackClient interface {
	GetUserInfo(ctx context.Context, userID string) (*slackapi.User, error)
	AddReaction(ctx context.Context, channel, timestamp, name string) error
	GetThreadParent(ctx context.Context, channel, threadTS string) (*slackapi.Message, error)
}

// EmailClient sends the reply through the email provider.
type EmailClient interface {
	Reply(ctx context.Context, emailID string, reply emailapi.ReplyRequest) (string, error)
}

// Config wires a Pipeline.
type Config struct {
	Store         threadstore.Store
	Slack         SlackClient
	Email         EmailClient
	Prefs         userprefs.Store
	Emoji         *normalizer.EmojiCache
	DefaultDomain string
}

// Pipeline processes Slack message events into email replies.
type Pipeline struct {
	store         threadstore.Store
	slack         SlackClient
	email         EmailClient
	prefs         userprefs.Store
	emoji         *normalizer.EmojiCache
	defaultDomain string
}

// NewPipeline creates an outbound pipeline.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		store:         cfg.Store,
		slack:         cfg.Slack,
		email:         cfg.Email,
		prefs:         cfg.Prefs,
		emoji:         cfg.Emoji,
		defaultDomain: cfg.DefaultDomain,
	}
}

// emailBodyPolicy sanitizes the rich email body built from Slack text. The
// only markup we inject ourselves is custom-emoji <img> tags; anything else
// a user pasted is neutralised here.
var emailBodyPolicy = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("style").OnElements("img")
	return p
}()

// Process handles one Slack message event. Events that are not thread
// replies, are bot-authored, or carry an unsupported subtype are ignored
// silently. Returns an error only for failures worth surfacing to logs.
func (p *Pipeline) Process(ctx context.Context, ev *models.ChatMessageEvent) error {
	if !eligible(ev) {
		return nil
	}

	log := slog.With(
		"ts", ev.Timestamp,
		"thread_ts", ev.ThreadAnchor,
		"channel", ev.Channel,
	)

	alreadyProcessed, err := p.store.MarkEventProcessedIfNew(ctx, slackEventKeyPrefix+ev.Timestamp)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if alreadyProcessed {
		log.Info("duplicate event, skipping")
		return nil
	}

	emailThreadID, err := p.store.ResolveEmailThread(ctx, ev.ThreadAnchor)
	if err != nil {
		return fmt.Errorf("resolve email thread: %w", err)
	}
	if emailThreadID == "" {
		p.logUnmappedThread(ctx, log, ev)
		return nil
	}

	originEmailID, err := p.store.ResolveOriginEmail(ctx, ev.ThreadAnchor)
	if err != nil {
		return fmt.Errorf("resolve origin email: %w", err)
	}
	if originEmailID == "" {
		log.Warn("no origin email for thread, cannot send reply",
			"email_thread_id", emailThreadID,
		)
		return nil
	}

	if strings.TrimSpace(ev.Text) == "" {
		log.Info("no text in message, skipping")
		return nil
	}

	converted := normalizer.ChatToEmail(ctx, ev.Text, normalizer.FormatHTML, p.emoji)
	htmlBody := emailBodyPolicy.Sanitize(converted)
	plainBody := normalizer.StripImageMarkup(converted)

	from := p.fromField(ctx, log, ev.UserID)

	log.Info("sending email reply",
		"email_thread_id", emailThreadID,
		"origin_email_id", originEmailID,
		"from", from,
	)

	replyID, err := p.email.Reply(ctx, originEmailID, emailapi.ReplyRequest{
		HTML: htmlBody,
		Text: plainBody,
		From: from,
	})
	if err != nil {
		p.react(ctx, log, ev, failureReaction)
		return fmt.Errorf("send email reply: %w", err)
	}
	log.Info("email reply sent", "reply_id", replyID)

	p.react(ctx, log, ev, successReaction)
	return nil
}

// eligible filters out events the bridge must not act on: channel messages,
// thread roots, bot messages, and subtypes other than thread_broadcast.
func eligible(ev *models.ChatMessageEvent) bool {
	if !ev.IsThreadReply() {
		return false
	}
	if ev.BotID != "" {
		return false
	}
	if ev.Subtype != "" && ev.Subtype != "thread_broadcast" {
		return false
	}
	return true
}

// logUnmappedThread records diagnostic context for a thread with no stored
// mapping — usually a thread created before the bridge was set up. The
// parent preview is best-effort.
func (p *Pipeline) logUnmappedThread(ctx context.Context, log *slog.Logger, ev *models.ChatMessageEvent) {
	parentPreview := "unknown"
	parent, err := p.slack.GetThreadParent(ctx, ev.Channel, ev.ThreadAnchor)
	if err != nil {
		log.Warn("could not fetch thread parent for diagnostics", "error", err)
	} else if parent != nil {
		text := parent.Text
		if runes := []rune(text); len(runes) > 50 {
			text = string(runes[:50])
		}
		parentPreview = fmt.Sprintf("%q by %s", text, parent.Author())
	}

	log.Info("no email thread mapped to this Slack thread, skipping",
		"parent_message", parentPreview,
	)
}

// fromField builds the email From header for the Slack author. The real
// address is used only when the user's preference allows it; otherwise a
// username is generated from the real name on the configured domain.
func (p *Pipeline) fromField(ctx context.Context, log *slog.Logger, userID string) string {
	realName := "Slack User"
	userEmail := ""

	if userID != "" {
		user, err := p.slack.GetUserInfo(ctx, userID)
		if err != nil {
			log.Warn("could not fetch user info", "user", userID, "error", err)
		} else if user != nil {
			realName = user.DisplayName()
			userEmail = user.Profile.Email
		}
	}

	var pref *userprefs.Preference
	if userID != "" {
		var err error
		pref, err = p.prefs.Get(ctx, userID)
		if err != nil {
			log.Warn("could not fetch user preference", "user", userID, "error", err)
		}
	}

	if pref != nil && pref.ShouldShowFullEmail && userEmail != "" {
		return fmt.Sprintf("%q <%s>", realName, userEmail)
	}

	domain := p.defaultDomain
	if pref != nil && pref.SendingDomain != "" {
		domain = pref.SendingDomain
	}
	return fmt.Sprintf("%q <%s@%s>", realName, generateUsername(realName), domain)
}

var nonUsernameChars = regexp.MustCompile(`[^a-z0-9.]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// generateUsername derives an email local part from a display name:
// lowercase, spaces become dots, everything else non-alphanumeric dropped.
func generateUsername(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = whitespaceRun.ReplaceAllString(name, ".")
	return nonUsernameChars.ReplaceAllString(name, "")
}

// react acknowledges the triggering message. Reaction failures are logged
// and never retried; they must not fail the pipeline.
func (p *Pipeline) react(ctx context.Context, log *slog.Logger, ev *models.ChatMessageEvent, name string) {
	if err := p.slack.AddReaction(ctx, ev.Channel, ev.Timestamp, name); err != nil {
		log.Warn("could not add reaction", "reaction", name, "error", err)
	}
}
