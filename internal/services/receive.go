// Package services – inbound relay (user → staff).
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/hooks"
	"github.com/modmailhq/go-modmail-backend/internal/metrics"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// ReceiveUserMessage relays an incoming user message into the staff channel.
// suppressAlert skips the pending-alert notification; recovery replay uses it
// to avoid duplicate mention spam.
//
// This path is not dedup-safe: relaying the same transport message twice
// produces two records. Recovery is responsible for not re-delivering
// already-seen messages.
func (s *ThreadService) ReceiveUserMessage(ctx context.Context, t *domain.Thread, msg *transport.Message, suppressAlert bool) error {
	ctx, span := s.startSpan(ctx, "ReceiveUserMessage", t.ID)
	defer span.End()

	ev := hooks.Event{Thread: t, Message: msg, UserID: msg.AuthorID}
	if s.Hooks.BeforeUserMessage(ctx, ev) {
		return nil
	}

	body := msg.Body
	// Activity invites and stickers carry no plain-text body; describe them.
	if msg.Activity != "" {
		body = strings.TrimSpace(body + fmt.Sprintf("\n\n*Sent an invite to: %s*", msg.Activity))
	}
	for _, sticker := range msg.Stickers {
		body = strings.TrimSpace(body + fmt.Sprintf("\n\n*Sent a sticker: %s*", sticker))
	}

	urls, smallURLs, files, err := s.processIncomingAttachments(ctx, msg.Attachments)
	if err != nil {
		return err
	}

	// Cross-channel reply reference: the user replied to something in the
	// DM channel; find its mirror in the staff channel.
	var ref *transport.MessageRef
	if s.Cfg.RelayInlineReplies && msg.Reference != nil {
		if prior, err := repo.GetMessageByDMID(ctx, s.DB, t.ID, msg.Reference.MessageID); err == nil && prior.InboxMessageID != "" {
			ref = &transport.MessageRef{ChannelID: t.StaffChannelID, MessageID: prior.InboxMessageID}
		}
	}

	// User messages do not consume a message-number slot; numbers exist
	// only for staff replies.
	rec, err := repo.CreateMessage(ctx, s.DB, repo.NewMessageInput{
		ThreadID:         t.ID,
		Type:             domain.TypeFromUser,
		UserID:           msg.AuthorID,
		UserName:         msg.AuthorName,
		Body:             body,
		Attachments:      urls,
		SmallAttachments: smallURLs,
		DMChannelID:      msg.ChannelID,
		DMMessageID:      msg.ID,
	})
	if err != nil {
		return err
	}

	// Best-effort mirror into the staff channel.
	content := s.Formatter.UserReplyMirror(rec)
	content.Reference = ref
	if sent, merr := s.postToStaff(ctx, t, content, files); merr != nil {
		if merr == ErrChannelMissing {
			return nil
		}
		log.Warn().Err(merr).Str("thread_id", t.ID).Msg("staff mirror of user message failed")
		metrics.MirrorFailures.Inc()
	} else if err := repo.SetMessageInboxID(ctx, s.DB, rec.ID, sent.ID); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("storing inbox id failed")
	}

	if s.Cfg.ReactOnReceive {
		if err := s.Transport.React(ctx, msg.ChannelID, msg.ID, s.Cfg.ReactionEmoji); err != nil {
			log.Debug().Err(err).Str("thread_id", t.ID).Msg("receipt reaction failed")
		}
	}

	s.Hooks.AfterUserMessage(ctx, ev)

	if t.HasScheduledClose() {
		s.cancelScheduledCloseForActivity(ctx, t)
	}

	if len(t.AlertIDs) > 0 && !suppressAlert {
		s.notifyAlerts(ctx, t)
	}

	metrics.Relayed.WithLabelValues("from_user").Inc()
	return nil
}

// UpdateUserMessage propagates a user's edit of their own private-channel
// message: the transcript copy is patched and, when a staff mirror was
// posted, the mirror is edited to match (best-effort). Unknown origin IDs
// are ignored.
func (s *ThreadService) UpdateUserMessage(ctx context.Context, t *domain.Thread, dmMessageID, body string) error {
	ctx, span := s.startSpan(ctx, "UpdateUserMessage", t.ID)
	defer span.End()

	rec, err := repo.GetMessageByDMID(ctx, s.DB, t.ID, dmMessageID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	if err := repo.UpdateMessageBodyByDMID(ctx, s.DB, t.ID, dmMessageID, body); err != nil {
		return err
	}
	rec.Body = body

	if rec.InboxMessageID != "" {
		if err := s.Transport.Edit(ctx, t.StaffChannelID, rec.InboxMessageID, s.Formatter.UserReplyMirror(rec)); err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("editing staff mirror of user edit failed")
		}
	}
	return nil
}

// DeleteUserMessage propagates a user's deletion of their own private-channel
// message: the staff mirror (when one was posted) and the transcript copy are
// both removed. Unknown origin IDs are ignored.
func (s *ThreadService) DeleteUserMessage(ctx context.Context, t *domain.Thread, dmMessageID string) error {
	ctx, span := s.startSpan(ctx, "DeleteUserMessage", t.ID)
	defer span.End()

	rec, err := repo.GetMessageByDMID(ctx, s.DB, t.ID, dmMessageID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	if rec.InboxMessageID != "" {
		if err := s.Transport.Delete(ctx, t.StaffChannelID, rec.InboxMessageID); err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("deleting staff mirror of deleted user message failed")
		}
	}
	return repo.DeleteMessageByDMID(ctx, s.DB, t.ID, dmMessageID)
}

// processIncomingAttachments persists every attachment to durable storage.
// Attachments under the small-size threshold are additionally fetched for
// direct re-upload when forwarding is enabled; the rest are links only.
func (s *ThreadService) processIncomingAttachments(ctx context.Context, atts []transport.Attachment) (urls, smallURLs []string, files []transport.File, err error) {
	for _, att := range atts {
		saved, err := s.Attachments.Save(ctx, att)
		if err != nil {
			return nil, nil, nil, err
		}
		urls = append(urls, saved.URL)

		if s.Cfg.RelaySmallAttachments && att.Size <= s.Cfg.SmallAttachmentLimit {
			f, err := s.Attachments.TransportFile(ctx, att)
			if err != nil {
				log.Warn().Err(err).Str("attachment", att.Name).Msg("small-attachment fetch failed, falling back to link")
				continue
			}
			files = append(files, f)
			smallURLs = append(smallURLs, saved.URL)
		}
	}
	return urls, smallURLs, files, nil
}

// notifyAlerts mentions every pending moderator and clears the alert set.
func (s *ThreadService) notifyAlerts(ctx context.Context, t *domain.Thread) {
	mentions := make([]string, 0, len(t.AlertIDs))
	for _, id := range t.AlertIDs {
		mentions = append(mentions, "<@"+id+">")
	}
	notice := fmt.Sprintf("%s New message from %s", strings.Join(mentions, " "), t.UserName)
	if _, _, err := s.PostSystemMessage(ctx, t, notice); err != nil {
		log.Warn().Err(err).Str("thread_id", t.ID).Msg("alert notification failed")
		return
	}
	if err := s.ClearAlerts(ctx, t); err != nil {
		log.Warn().Err(err).Str("thread_id", t.ID).Msg("clearing alert set failed")
	}
}
