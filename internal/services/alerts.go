// Package services – the per-thread alert set and the auto-alert timer.
package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
)

// AddAlert subscribes a moderator to be pinged on the next user message.
// Adding an already-subscribed moderator is a no-op.
func (s *ThreadService) AddAlert(ctx context.Context, t *domain.Thread, moderatorID string) error {
	ctx, span := s.startSpan(ctx, "AddAlert", t.ID)
	defer span.End()

	if err := repo.AddThreadAlert(ctx, s.DB, t.ID, moderatorID); err != nil {
		return err
	}
	t.AlertIDs = t.AlertIDs.Add(moderatorID)
	return nil
}

// RemoveAlert unsubscribes a moderator. Removing an absent id is a no-op.
func (s *ThreadService) RemoveAlert(ctx context.Context, t *domain.Thread, moderatorID string) error {
	ctx, span := s.startSpan(ctx, "RemoveAlert", t.ID)
	defer span.End()

	if err := repo.RemoveThreadAlert(ctx, s.DB, t.ID, moderatorID); err != nil {
		return err
	}
	t.AlertIDs = t.AlertIDs.Remove(moderatorID)
	return nil
}

// ClearAlerts empties the alert set.
func (s *ThreadService) ClearAlerts(ctx context.Context, t *domain.Thread) error {
	ctx, span := s.startSpan(ctx, "ClearAlerts", t.ID)
	defer span.End()

	if err := repo.ClearThreadAlerts(ctx, s.DB, t.ID); err != nil {
		return err
	}
	t.AlertIDs = nil
	return nil
}

// StartAutoAlertTimer arms the delayed auto-alert for a moderator who just
// replied: if the thread is still open when the delay elapses, the moderator
// is added to the alert set. Arming replaces any previously armed timer for
// the thread.
func (s *ThreadService) StartAutoAlertTimer(t *domain.Thread, moderatorID string) {
	threadID := t.ID
	s.Timers.Arm(threadID, s.Cfg.AutoAlertDelay, func() {
		ctx := context.Background()
		cur, err := repo.GetThread(ctx, s.DB, threadID)
		if err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("auto-alert: thread lookup failed")
			return
		}
		if cur.Status != domain.StatusOpen {
			return
		}
		if err := repo.AddThreadAlert(ctx, s.DB, threadID, moderatorID); err != nil {
			log.Warn().Err(err).Str("thread_id", threadID).Msg("auto-alert: subscribe failed")
		}
	})
}
