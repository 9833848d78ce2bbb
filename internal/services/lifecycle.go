// Package services – thread lifecycle state machine.
//
// States: OPEN (initial), CLOSED (terminal), SUSPENDED. Close tears down the
// staff channel and fires the after-close hooks; schedule operations write
// their field groups atomically through the repo layer.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/hooks"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// Close marks the thread CLOSED, tears down the staff channel, and fires the
// after-close hooks. Unless suppressNotice or silent is set, the user is told
// the thread was closed. Calling Close on an already-closed thread re-runs
// the side effects; callers gate on status.
func (s *ThreadService) Close(ctx context.Context, t *domain.Thread, suppressNotice, silent bool) error {
	ctx, span := s.startSpan(ctx, "Close", t.ID)
	defer span.End()

	if !suppressNotice && !silent {
		// The staff channel is about to disappear; skip the mirror.
		if _, err := s.SendSystemMessageToUser(ctx, t, "Thread closed. Message us again to open a new one.", true); err != nil {
			log.Warn().Err(err).Str("thread_id", t.ID).Msg("close notice to user failed")
		}
	}

	if err := repo.UpdateThreadStatus(ctx, s.DB, t.ID, domain.StatusClosed); err != nil {
		return err
	}
	t.Status = domain.StatusClosed
	s.Timers.Cancel(t.ID)

	if err := s.Transport.DeleteChannel(ctx, t.StaffChannelID); err != nil && !transport.IsChannelNotFound(err) {
		log.Warn().Err(err).Str("thread_id", t.ID).Msg("staff channel teardown failed")
	}

	s.Hooks.ThreadClosed(ctx, hooks.Event{Thread: t, UserID: t.UserID})
	return nil
}

// ScheduleClose arms a delayed close. All four scheduling fields are written
// atomically; the actual close is executed by an external driver when the
// scheduled time arrives.
func (s *ThreadService) ScheduleClose(ctx context.Context, t *domain.Thread, at time.Time, byID, byName string, silent bool) error {
	ctx, span := s.startSpan(ctx, "ScheduleClose", t.ID)
	defer span.End()

	if err := repo.SetScheduledClose(ctx, s.DB, t.ID, at, byID, byName, silent); err != nil {
		return err
	}
	at = at.UTC()
	t.ScheduledCloseAt = &at
	t.ScheduledCloseByID = byID
	t.ScheduledCloseByName = byName
	t.ScheduledCloseSilent = silent

	s.Hooks.CloseScheduled(ctx, hooks.Event{Thread: t, UserID: t.UserID})
	return nil
}

// CancelScheduledClose clears a scheduled close, if any.
func (s *ThreadService) CancelScheduledClose(ctx context.Context, t *domain.Thread) error {
	ctx, span := s.startSpan(ctx, "CancelScheduledClose", t.ID)
	defer span.End()

	if err := repo.ClearScheduledClose(ctx, s.DB, t.ID); err != nil {
		return err
	}
	t.ScheduledCloseAt = nil
	t.ScheduledCloseByID = ""
	t.ScheduledCloseByName = ""
	t.ScheduledCloseSilent = false

	s.Hooks.CloseScheduleCanceled(ctx, hooks.Event{Thread: t, UserID: t.UserID})
	return nil
}

// cancelScheduledCloseForActivity clears a scheduled close because new
// traffic arrived, posting a staff notice naming the scheduler.
func (s *ThreadService) cancelScheduledCloseForActivity(ctx context.Context, t *domain.Thread) {
	scheduledBy := t.ScheduledCloseByName
	if err := s.CancelScheduledClose(ctx, t); err != nil {
		log.Error().Err(err).Str("thread_id", t.ID).Msg("canceling scheduled close failed")
		return
	}
	notice := "Cancelling scheduled closing of this thread due to new activity"
	if scheduledBy != "" {
		notice = fmt.Sprintf("%s (scheduled by %s)", notice, scheduledBy)
	}
	if _, _, err := s.PostSystemMessage(ctx, t, notice); err != nil {
		log.Warn().Err(err).Str("thread_id", t.ID).Msg("schedule-cancel notice failed")
	}
}

// Suspend moves the thread to SUSPENDED and clears any scheduled suspension.
func (s *ThreadService) Suspend(ctx context.Context, t *domain.Thread) error {
	ctx, span := s.startSpan(ctx, "Suspend", t.ID)
	defer span.End()

	if err := repo.UpdateThreadStatus(ctx, s.DB, t.ID, domain.StatusSuspended); err != nil {
		return err
	}
	t.Status = domain.StatusSuspended
	if err := repo.ClearScheduledSuspend(ctx, s.DB, t.ID); err != nil {
		return err
	}
	t.ScheduledSuspendAt = nil
	t.ScheduledSuspendByID = ""
	t.ScheduledSuspendByName = ""
	return nil
}

// Unsuspend returns the thread to OPEN.
func (s *ThreadService) Unsuspend(ctx context.Context, t *domain.Thread) error {
	ctx, span := s.startSpan(ctx, "Unsuspend", t.ID)
	defer span.End()

	if err := repo.UpdateThreadStatus(ctx, s.DB, t.ID, domain.StatusOpen); err != nil {
		return err
	}
	t.Status = domain.StatusOpen
	return nil
}

// ScheduleSuspend arms a delayed suspension, writing its field group
// atomically. No hooks fire for suspension scheduling.
func (s *ThreadService) ScheduleSuspend(ctx context.Context, t *domain.Thread, at time.Time, byID, byName string) error {
	ctx, span := s.startSpan(ctx, "ScheduleSuspend", t.ID)
	defer span.End()

	if err := repo.SetScheduledSuspend(ctx, s.DB, t.ID, at, byID, byName); err != nil {
		return err
	}
	at = at.UTC()
	t.ScheduledSuspendAt = &at
	t.ScheduledSuspendByID = byID
	t.ScheduledSuspendByName = byName
	return nil
}

// CancelScheduledSuspend clears a scheduled suspension, if any.
func (s *ThreadService) CancelScheduledSuspend(ctx context.Context, t *domain.Thread) error {
	ctx, span := s.startSpan(ctx, "CancelScheduledSuspend", t.ID)
	defer span.End()

	if err := repo.ClearScheduledSuspend(ctx, s.DB, t.ID); err != nil {
		return err
	}
	t.ScheduledSuspendAt = nil
	t.ScheduledSuspendByID = ""
	t.ScheduledSuspendByName = ""
	return nil
}
