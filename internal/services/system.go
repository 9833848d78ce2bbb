// Package services – system and log-mirroring messages.
package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// PostSystemMessage persists a SYSTEM record, formats it, and posts it to the
// staff channel. It returns both the sent message handle and the record.
func (s *ThreadService) PostSystemMessage(ctx context.Context, t *domain.Thread, body string) (*transport.Message, *domain.MessageRecord, error) {
	ctx, span := s.startSpan(ctx, "PostSystemMessage", t.ID)
	defer span.End()

	rec, err := repo.CreateMessage(ctx, s.DB, repo.NewMessageInput{
		ThreadID: t.ID,
		Type:     domain.TypeSystem,
		Body:     body,
	})
	if err != nil {
		return nil, nil, err
	}

	msg, err := s.postToStaff(ctx, t, s.Formatter.SystemMessage(rec), nil)
	if err != nil {
		return nil, rec, err
	}
	if err := repo.SetMessageInboxID(ctx, s.DB, rec.ID, msg.ID); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("storing inbox id for system message failed")
	}
	rec.InboxMessageID = msg.ID
	return msg, rec, nil
}

// SendSystemMessageToUser persists a SYSTEM_TO_USER record, sends it to the
// user's private channel, and, unless suppressMirror is set, also mirrors it
// to the staff channel (best-effort).
func (s *ThreadService) SendSystemMessageToUser(ctx context.Context, t *domain.Thread, body string, suppressMirror bool) (*domain.MessageRecord, error) {
	ctx, span := s.startSpan(ctx, "SendSystemMessageToUser", t.ID)
	defer span.End()

	dmChannelID, err := s.Transport.OpenPrivateChannel(ctx, t.UserID)
	if err != nil {
		return nil, ErrDMUnavailable
	}

	rec, err := repo.CreateMessage(ctx, s.DB, repo.NewMessageInput{
		ThreadID:    t.ID,
		Type:        domain.TypeSystemToUser,
		Body:        body,
		DMChannelID: dmChannelID,
	})
	if err != nil {
		return nil, err
	}

	sent, err := s.Transport.Send(ctx, dmChannelID, s.Formatter.SystemToUserDM(rec), nil)
	if err != nil {
		// Compensate: a record without a delivery is not part of the
		// transcript.
		if derr := repo.DeleteMessage(ctx, s.DB, rec.ID); derr != nil {
			log.Error().Err(derr).Str("record_id", rec.ID).Msg("rollback of undelivered system message failed")
		}
		if transport.IsDMNotAllowed(err) {
			return nil, ErrDMUnavailable
		}
		return nil, ErrSendFailed
	}
	if err := repo.SetMessageDMLocation(ctx, s.DB, rec.ID, dmChannelID, sent.ID); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("storing dm location for system message failed")
	}
	rec.DMMessageID = sent.ID

	if !suppressMirror {
		if msg, merr := s.postToStaff(ctx, t, s.Formatter.SystemToUserMirror(rec), nil); merr != nil {
			log.Warn().Err(merr).Str("thread_id", t.ID).Msg("mirroring system-to-user message failed")
		} else if err := repo.SetMessageInboxID(ctx, s.DB, rec.ID, msg.ID); err != nil {
			log.Warn().Err(err).Str("record_id", rec.ID).Msg("storing inbox id for system message failed")
		}
	}
	return rec, nil
}

// AddSystemMessageToLogs persists a SYSTEM record without sending anything.
func (s *ThreadService) AddSystemMessageToLogs(ctx context.Context, t *domain.Thread, body string) (*domain.MessageRecord, error) {
	ctx, span := s.startSpan(ctx, "AddSystemMessageToLogs", t.ID)
	defer span.End()
	return repo.CreateMessage(ctx, s.DB, repo.NewMessageInput{
		ThreadID: t.ID,
		Type:     domain.TypeSystem,
		Body:     body,
	})
}

// SaveChatMessage mirrors non-relay staff-channel chatter into the
// transcript, keyed by its originating transport message.
func (s *ThreadService) SaveChatMessage(ctx context.Context, t *domain.Thread, msg *transport.Message) (*domain.MessageRecord, error) {
	ctx, span := s.startSpan(ctx, "SaveChatMessage", t.ID)
	defer span.End()
	return s.saveChannelMessage(ctx, t, msg, domain.TypeChat)
}

// SaveCommandMessage records a staff command invocation in the transcript.
func (s *ThreadService) SaveCommandMessage(ctx context.Context, t *domain.Thread, msg *transport.Message) (*domain.MessageRecord, error) {
	ctx, span := s.startSpan(ctx, "SaveCommandMessage", t.ID)
	defer span.End()
	return s.saveChannelMessage(ctx, t, msg, domain.TypeCommand)
}

func (s *ThreadService) saveChannelMessage(ctx context.Context, t *domain.Thread, msg *transport.Message, typ domain.MessageType) (*domain.MessageRecord, error) {
	urls := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		urls = append(urls, att.URL)
	}
	return repo.CreateMessage(ctx, s.DB, repo.NewMessageInput{
		ThreadID:       t.ID,
		Type:           typ,
		UserID:         msg.AuthorID,
		UserName:       msg.AuthorName,
		Body:           msg.Body,
		Attachments:    urls,
		InboxMessageID: msg.ID,
	})
}

// UpdateChatMessage patches the transcript copy of an edited staff-channel
// message.
func (s *ThreadService) UpdateChatMessage(ctx context.Context, t *domain.Thread, originMessageID, body string) error {
	ctx, span := s.startSpan(ctx, "UpdateChatMessage", t.ID)
	defer span.End()
	return repo.UpdateMessageBodyByInboxID(ctx, s.DB, t.ID, originMessageID, body)
}

// DeleteChatMessage removes the transcript copy of a deleted staff-channel
// message.
func (s *ThreadService) DeleteChatMessage(ctx context.Context, t *domain.Thread, originMessageID string) error {
	ctx, span := s.startSpan(ctx, "DeleteChatMessage", t.ID)
	defer span.End()
	return repo.DeleteMessageByInboxID(ctx, s.DB, t.ID, originMessageID)
}
