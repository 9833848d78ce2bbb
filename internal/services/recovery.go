// Package services – downtime recovery.
//
// After an outage, messages the user sent while the service was down exist
// only in the private channel's history. Recovery fetches them past the last
// known cursor and replays them through the normal inbound path, so they pick
// up the same persistence, mirroring, and hook behavior as live traffic.
package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/metrics"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
)

// RecoverDowntimeMessages replays user messages missed during downtime.
// Blocked users are skipped entirely. At most one alert-notification side
// effect is issued across the whole batch, on the first replayed message.
func (s *ThreadService) RecoverDowntimeMessages(ctx context.Context, t *domain.Thread) error {
	ctx, span := s.startSpan(ctx, "RecoverDowntimeMessages", t.ID)
	defer span.End()

	if s.Blocklist != nil {
		blocked, err := s.Blocklist.IsBlocked(ctx, t.UserID)
		if err != nil {
			return err
		}
		if blocked {
			return nil
		}
	}

	lastID, err := repo.LastDMMessageID(ctx, s.DB, t.ID)
	if err != nil {
		return err
	}
	if lastID == "" {
		// No cursor to recover from.
		return nil
	}

	dmChannelID, err := s.Transport.OpenPrivateChannel(ctx, t.UserID)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", t.ID).Msg("recovery: private channel unavailable")
		return nil
	}

	history, err := s.Transport.HistoryAfter(ctx, dmChannelID, s.Cfg.RecoveryFetchLimit, lastID)
	if err != nil {
		return err
	}

	// Transport order is newest first; replay wants chronological order.
	// Only replay what the user authored: the system's own messages are
	// already in the transcript.
	chronological := make([]int, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].AuthorID == t.UserID {
			chronological = append(chronological, i)
		}
	}
	if len(chronological) == 0 {
		return nil
	}

	if _, _, err := s.PostSystemMessage(ctx, t, fmt.Sprintf(
		"**Recovering %d message(s) sent while the bot was offline**", len(chronological))); err != nil {
		log.Warn().Err(err).Str("thread_id", t.ID).Msg("recovery notice failed")
	}

	for n, idx := range chronological {
		msg := history[idx]
		if err := s.ReceiveUserMessage(ctx, t, &msg, n > 0); err != nil {
			return err
		}
		metrics.Recovered.Inc()
	}
	return nil
}
