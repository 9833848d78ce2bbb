// Package services – outbound relay (staff → user) and staff-reply
// edit/delete propagation.
package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/modmailhq/go-modmail-backend/internal/config"
	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/format"
	"github.com/modmailhq/go-modmail-backend/internal/metrics"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
	"github.com/modmailhq/go-modmail-backend/internal/sysutil"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// ReplyInput carries the authoring moderator's reply.
type ReplyInput struct {
	ModeratorID string
	Text        string
	Attachments []transport.Attachment
	IsAnonymous bool
	// ReplyTo references a prior message in the staff channel. With inline
	// reply relaying enabled it is resolved to the corresponding message in
	// the user's private channel.
	ReplyTo    *transport.MessageRef
	Components []transport.InteractiveComponent
}

// ReplyToUser relays a staff reply into the user's private channel and
// mirrors it to the staff channel.
//
// The reply consumes a message number allocated transactionally with the
// record that carries it. If the formatted content exceeds the ceiling or the
// primary send fails, the draft record is deleted, a staff-visible notice is
// posted, and the call reports false: no partial send occurs. Once the
// primary send has succeeded it is never rolled back; the staff mirror is
// best-effort.
func (s *ThreadService) ReplyToUser(ctx context.Context, t *domain.Thread, in ReplyInput) (bool, error) {
	ctx, span := s.startSpan(ctx, "ReplyToUser", t.ID)
	defer span.End()

	if t.Status != domain.StatusOpen {
		return false, ErrThreadNotOpen
	}

	// Resolve the author's display identity.
	mod, err := s.Members.Moderator(ctx, in.ModeratorID)
	if err != nil {
		return false, err
	}
	name := mod.Username
	if s.Cfg.NameMode == config.NameModeNickname {
		name = sysutil.FirstNonEmpty(mod.Nickname, mod.Username)
	}
	if s.Cfg.EscapeNameFormat {
		name = format.EscapeMarkdown(name)
	}

	// Cross-channel reply reference.
	ref := in.ReplyTo
	if s.Cfg.RelayInlineReplies && in.ReplyTo != nil {
		if prior, err := repo.GetMessageByInboxID(ctx, s.DB, t.ID, in.ReplyTo.MessageID); err == nil && prior.DMMessageID != "" {
			ref = &transport.MessageRef{ChannelID: prior.DMChannelID, MessageID: prior.DMMessageID}
		}
	}

	text := in.Text
	if s.Cfg.SnippetsInline {
		text = s.expandSnippets(ctx, text)
	}

	dmChannelID, err := s.Transport.OpenPrivateChannel(ctx, t.UserID)
	if err != nil {
		s.noticeReplyFailure(ctx, t, "Could not open a private channel with the user. They may have blocked the bot or restricted DMs.")
		metrics.SendFailures.WithLabelValues("dm_unavailable").Inc()
		return false, nil
	}

	files, urls, err := s.processReplyAttachments(ctx, in.Attachments)
	if err != nil {
		s.noticeReplyFailure(ctx, t, fmt.Sprintf("Processing attachments failed: %v", err))
		metrics.SendFailures.WithLabelValues("send").Inc()
		return false, nil
	}

	// Persisting the draft allocates the message number transactionally:
	// a reply's number and its identity are established together.
	number, err := repo.AllocateNextMessageNumber(ctx, s.DB, t.ID)
	if err != nil {
		return false, err
	}
	rec, err := repo.CreateMessage(ctx, s.DB, repo.NewMessageInput{
		ThreadID:      t.ID,
		Type:          domain.TypeToUser,
		MessageNumber: &number,
		UserID:        in.ModeratorID,
		UserName:      name,
		RoleName:      mod.RoleName,
		Body:          text,
		IsAnonymous:   in.IsAnonymous,
		Attachments:   urls,
		DMChannelID:   dmChannelID,
	})
	if err != nil {
		return false, err
	}

	dmContent := s.Formatter.StaffReplyDM(rec)
	dmContent.Reference = ref
	dmContent.Components = in.Components

	// Replies must fit in one transport message because edits must target
	// exactly one message.
	if n := utf8.RuneCountInString(dmContent.Body); n > s.Cfg.MessageCharLimit {
		s.rollbackDraft(ctx, rec)
		s.noticeReplyFailure(ctx, t, fmt.Sprintf(
			"Reply not sent: formatted content is %d characters, limit is %d.", n, s.Cfg.MessageCharLimit))
		metrics.SendFailures.WithLabelValues("too_long").Inc()
		return false, nil
	}

	sent, err := s.Transport.Send(ctx, dmChannelID, dmContent, files)
	if err != nil {
		s.rollbackDraft(ctx, rec)
		switch {
		case transport.IsDMNotAllowed(err):
			s.noticeReplyFailure(ctx, t, "Reply not delivered: the user cannot be messaged.")
			metrics.SendFailures.WithLabelValues("dm_unavailable").Inc()
		case transport.IsContentBlocked(err):
			s.noticeReplyFailure(ctx, t, "Reply not delivered: the transport blocked the content.")
			metrics.SendFailures.WithLabelValues("blocked").Inc()
		default:
			s.noticeReplyFailure(ctx, t, fmt.Sprintf("Reply not delivered: %v", err))
			metrics.SendFailures.WithLabelValues("send").Inc()
		}
		return false, nil
	}

	// Storage policy may designate the transport's own attachment URLs as
	// canonical.
	if s.Cfg.AttachmentStorage == config.AttachmentStorageRelay && len(sent.Attachments) > 0 {
		canonical := make([]string, 0, len(sent.Attachments))
		for _, att := range sent.Attachments {
			canonical = append(canonical, att.URL)
		}
		if err := repo.SetMessageAttachments(ctx, s.DB, rec.ID, canonical); err != nil {
			log.Warn().Err(err).Str("record_id", rec.ID).Msg("storing canonical attachment urls failed")
		} else {
			rec.Attachments = canonical
		}
	}

	if err := repo.SetMessageDMLocation(ctx, s.DB, rec.ID, dmChannelID, sent.ID); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("storing dm location failed")
	}
	rec.DMMessageID = sent.ID

	// Best-effort mirror. The DM is already out; a mirror failure is logged
	// and never undoes the primary delivery.
	if msg, merr := s.postToStaff(ctx, t, s.Formatter.StaffReplyMirror(rec), nil); merr != nil {
		if merr != ErrChannelMissing {
			log.Warn().Err(merr).Str("thread_id", t.ID).Msg("staff mirror of reply failed")
			metrics.MirrorFailures.Inc()
		}
	} else if err := repo.SetMessageInboxID(ctx, s.DB, rec.ID, msg.ID); err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("storing inbox id failed")
	}

	if t.HasScheduledClose() {
		s.cancelScheduledCloseForActivity(ctx, t)
	}
	if s.Cfg.AutoAlert {
		s.StartAutoAlertTimer(t, in.ModeratorID)
	}

	metrics.Relayed.WithLabelValues("to_user").Inc()
	return true, nil
}

// processReplyAttachments obtains, for every attachment, a transport-ready
// file and a durable storage URL concurrently.
func (s *ThreadService) processReplyAttachments(ctx context.Context, atts []transport.Attachment) ([]transport.File, []string, error) {
	if len(atts) == 0 {
		return nil, nil, nil
	}
	files := make([]transport.File, len(atts))
	urls := make([]string, len(atts))
	errs := make([]error, len(atts))

	var wg sync.WaitGroup
	for i, att := range atts {
		wg.Add(1)
		go func(i int, att transport.Attachment) {
			defer wg.Done()
			f, err := s.Attachments.TransportFile(ctx, att)
			if err != nil {
				errs[i] = err
				return
			}
			saved, err := s.Attachments.Save(ctx, att)
			if err != nil {
				errs[i] = err
				return
			}
			files[i] = f
			urls[i] = saved.URL
		}(i, att)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	return files, urls, nil
}

func (s *ThreadService) rollbackDraft(ctx context.Context, rec *domain.MessageRecord) {
	if err := repo.DeleteMessage(ctx, s.DB, rec.ID); err != nil {
		log.Error().Err(err).Str("record_id", rec.ID).Msg("rollback of draft reply failed")
	}
}

func (s *ThreadService) noticeReplyFailure(ctx context.Context, t *domain.Thread, text string) {
	if _, _, err := s.PostSystemMessage(ctx, t, text); err != nil {
		log.Warn().Err(err).Str("thread_id", t.ID).Msg("posting failure notice failed")
	}
}

// expandSnippets substitutes {{trigger}}-style placeholders with stored
// snippet bodies, case-insensitively. Unknown triggers are left verbatim.
func (s *ThreadService) expandSnippets(ctx context.Context, text string) string {
	if s.Snippets == nil || !strings.Contains(text, s.Cfg.SnippetStartDelimiter) {
		return text
	}
	all, err := s.Snippets.All(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("snippet lookup failed, leaving text verbatim")
		return text
	}
	byTrigger := make(map[string]string, len(all))
	for _, sn := range all {
		byTrigger[strings.ToLower(sn.Trigger)] = sn.Body
	}

	re := regexp.MustCompile(
		regexp.QuoteMeta(s.Cfg.SnippetStartDelimiter) + `(\S+?)` + regexp.QuoteMeta(s.Cfg.SnippetEndDelimiter))
	return re.ReplaceAllStringFunc(text, func(match string) string {
		trigger := re.FindStringSubmatch(match)[1]
		if body, ok := byTrigger[strings.ToLower(trigger)]; ok {
			return body
		}
		return match
	})
}

// EditStaffReply reformats a staff reply with new body text and edits both
// transport copies. A reply that would exceed the length ceiling aborts
// without mutating anything. Unless quiet is set, a staff-channel
// notification carrying the original and new bodies is posted.
func (s *ThreadService) EditStaffReply(ctx context.Context, t *domain.Thread, messageNumber int, newBody string, quiet bool) (bool, error) {
	ctx, span := s.startSpan(ctx, "EditStaffReply", t.ID)
	defer span.End()

	rec, err := repo.GetMessageByNumber(ctx, s.DB, t.ID, messageNumber)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, ErrReplyNotFound
		}
		return false, err
	}
	oldBody := rec.Body

	edited := *rec
	edited.Body = newBody
	dmContent := s.Formatter.StaffReplyDM(&edited)
	if n := utf8.RuneCountInString(dmContent.Body); n > s.Cfg.MessageCharLimit {
		s.noticeReplyFailure(ctx, t, fmt.Sprintf(
			"Edit not applied: formatted content is %d characters, limit is %d.", n, s.Cfg.MessageCharLimit))
		return false, nil
	}

	if err := s.Transport.Edit(ctx, rec.DMChannelID, rec.DMMessageID, dmContent); err != nil {
		s.noticeReplyFailure(ctx, t, fmt.Sprintf("Editing reply [%d] failed: %v", messageNumber, err))
		return false, nil
	}
	if rec.InboxMessageID != "" {
		if err := s.Transport.Edit(ctx, t.StaffChannelID, rec.InboxMessageID, s.Formatter.StaffReplyMirror(&edited)); err != nil {
			log.Warn().Err(err).Str("record_id", rec.ID).Msg("editing staff mirror failed")
		}
	}

	if !quiet {
		note, err := repo.CreateMessage(ctx, s.DB, repo.NewMessageInput{
			ThreadID: t.ID,
			Type:     domain.TypeReplyEdited,
			UserID:   rec.UserID,
			UserName: rec.UserName,
			Body:     fmt.Sprintf("Reply [%d] edited", messageNumber),
			Metadata: domain.Metadata{"old_body": oldBody, "new_body": newBody},
		})
		if err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("persisting edit notification failed")
		} else if msg, merr := s.postToStaff(ctx, t, s.Formatter.EditNotification(rec, oldBody, newBody), nil); merr == nil {
			if err := repo.SetMessageInboxID(ctx, s.DB, note.ID, msg.ID); err != nil {
				log.Warn().Err(err).Str("record_id", note.ID).Msg("storing inbox id failed")
			}
		}
	}

	if err := repo.UpdateMessageBody(ctx, s.DB, rec.ID, newBody); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteStaffReply deletes both transport copies of a staff reply and then
// the underlying record. Unless quiet is set, a staff-channel deletion
// notification is posted first.
func (s *ThreadService) DeleteStaffReply(ctx context.Context, t *domain.Thread, messageNumber int, quiet bool) (bool, error) {
	ctx, span := s.startSpan(ctx, "DeleteStaffReply", t.ID)
	defer span.End()

	rec, err := repo.GetMessageByNumber(ctx, s.DB, t.ID, messageNumber)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, ErrReplyNotFound
		}
		return false, err
	}

	if err := s.Transport.Delete(ctx, rec.DMChannelID, rec.DMMessageID); err != nil {
		s.noticeReplyFailure(ctx, t, fmt.Sprintf("Deleting reply [%d] failed: %v", messageNumber, err))
		return false, nil
	}
	if rec.InboxMessageID != "" {
		if err := s.Transport.Delete(ctx, t.StaffChannelID, rec.InboxMessageID); err != nil {
			log.Warn().Err(err).Str("record_id", rec.ID).Msg("deleting staff mirror failed")
		}
	}

	if !quiet {
		if _, err := repo.CreateMessage(ctx, s.DB, repo.NewMessageInput{
			ThreadID: t.ID,
			Type:     domain.TypeReplyDeleted,
			UserID:   rec.UserID,
			UserName: rec.UserName,
			Body:     fmt.Sprintf("Reply [%d] deleted", messageNumber),
			Metadata: domain.Metadata{"old_body": rec.Body},
		}); err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("persisting delete notification failed")
		}
		if _, merr := s.postToStaff(ctx, t, s.Formatter.DeleteNotification(rec), nil); merr != nil && merr != ErrChannelMissing {
			log.Warn().Err(merr).Str("thread_id", t.ID).Msg("delete notification failed")
		}
	}

	return true, repo.DeleteMessage(ctx, s.DB, rec.ID)
}
