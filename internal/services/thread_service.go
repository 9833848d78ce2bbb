// Package services – ThreadService.
//
// ThreadService is the Thread aggregate: it composes the transport client,
// the persistence store, the formatter, the hook bus, the per-thread timer
// set, and the attachment/snippet collaborators, and exposes the public relay
// contract.
//
// Consistency model: the outbound and inbound relay flows span two
// independent systems (transport and store) with no cross-system atomicity.
// Failures after the persistence step but before or during the primary send
// are handled by compensating deletes; failures during a secondary mirror
// step after a successful primary send are logged and left alone. The
// primary user-facing delivery is never rolled back once it has left the
// system's boundary.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// the thread identifier.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/modmailhq/go-modmail-backend/internal/attachments"
	"github.com/modmailhq/go-modmail-backend/internal/config"
	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/format"
	"github.com/modmailhq/go-modmail-backend/internal/hooks"
	"github.com/modmailhq/go-modmail-backend/internal/repo"
	"github.com/modmailhq/go-modmail-backend/internal/scheduler"
	"github.com/modmailhq/go-modmail-backend/internal/snippets"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// ModeratorInfo is the resolved identity of a staff member.
type ModeratorInfo struct {
	Username string
	Nickname string
	RoleName string
}

// MemberResolver looks up staff identities in the upstream directory.
type MemberResolver interface {
	Moderator(ctx context.Context, moderatorID string) (ModeratorInfo, error)
}

// Blocklist answers whether a user is blocked from the relay. Recovery skips
// blocked users entirely.
type Blocklist interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
}

// ThreadService coordinates all relay operations for threads.
type ThreadService struct {
	DB          *gorm.DB
	Transport   transport.Client
	Formatter   format.Formatter
	Hooks       *hooks.Bus
	Timers      *scheduler.Timers
	Snippets    snippets.Store
	Attachments attachments.Pipeline
	Members     MemberResolver
	Blocklist   Blocklist
	Cfg         config.Config
}

func (s *ThreadService) tracer() trace.Tracer {
	return otel.Tracer("services/ThreadService")
}

func (s *ThreadService) startSpan(ctx context.Context, name, threadID string) (context.Context, trace.Span) {
	return s.tracer().Start(ctx, name,
		trace.WithAttributes(attribute.String("thread.id", threadID)),
	)
}

// Get fetches a thread by ID.
func (s *ThreadService) Get(ctx context.Context, id string) (*domain.Thread, error) {
	t, err := repo.GetThread(ctx, s.DB, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	return t, nil
}

// postToStaff sends content to the thread's staff channel. A missing channel
// triggers the automatic close recovery path and surfaces ErrChannelMissing
// so callers can stop further staff-channel work.
func (s *ThreadService) postToStaff(ctx context.Context, t *domain.Thread, content transport.Content, files []transport.File) (*transport.Message, error) {
	msg, err := s.Transport.Send(ctx, t.StaffChannelID, content, files)
	if err != nil {
		if transport.IsChannelNotFound(err) {
			log.Warn().Str("thread_id", t.ID).Msg("staff channel missing, closing thread")
			if cerr := s.Close(ctx, t, true, true); cerr != nil {
				log.Error().Err(cerr).Str("thread_id", t.ID).Msg("auto-close after missing channel failed")
			}
			return nil, ErrChannelMissing
		}
		return nil, err
	}
	return msg, nil
}

// SetLogStorage records the transcript archive descriptor for a thread.
func (s *ThreadService) SetLogStorage(ctx context.Context, t *domain.Thread, storageType string, data domain.Metadata) error {
	ctx, span := s.startSpan(ctx, "SetLogStorage", t.ID)
	defer span.End()
	return repo.SetThreadLogStorage(ctx, s.DB, t.ID, storageType, data)
}

// SetMetadataValue sets one key in the thread's metadata map.
func (s *ThreadService) SetMetadataValue(ctx context.Context, t *domain.Thread, key, value string) error {
	ctx, span := s.startSpan(ctx, "SetMetadataValue", t.ID)
	defer span.End()
	return repo.SetThreadMetadataValue(ctx, s.DB, t.ID, key, value)
}

// Messages returns the full thread transcript in chronological order.
func (s *ThreadService) Messages(ctx context.Context, t *domain.Thread) ([]domain.MessageRecord, error) {
	ctx, span := s.startSpan(ctx, "Messages", t.ID)
	defer span.End()
	return repo.ListThreadMessages(ctx, s.DB, t.ID)
}
