// Package hooks dispatches thread lifecycle events to registered handlers.
// Handlers are registered at process start and run synchronously in
// registration order. The before-user-message event can veto processing.
package hooks

import (
	"context"

	"github.com/modmailhq/go-modmail-backend/internal/domain"
	"github.com/modmailhq/go-modmail-backend/internal/transport"
)

// Event carries the context of a dispatched hook.
type Event struct {
	Thread  *domain.Thread
	Message *transport.Message
	UserID  string
}

// BeforeUserMessageFunc runs before an incoming user message is relayed.
// Returning cancel=true aborts processing with no further effect.
type BeforeUserMessageFunc func(ctx context.Context, ev Event) (cancel bool)

// HandlerFunc runs after a lifecycle event. It cannot cancel anything.
type HandlerFunc func(ctx context.Context, ev Event)

// Bus holds the ordered handler lists for each lifecycle event.
type Bus struct {
	beforeUserMessage     []BeforeUserMessageFunc
	afterUserMessage      []HandlerFunc
	afterClose            []HandlerFunc
	afterCloseScheduled   []HandlerFunc
	afterCloseSchedCancel []HandlerFunc
}

// NewBus returns an empty hook bus.
func NewBus() *Bus { return &Bus{} }

// OnBeforeUserMessage registers a pre-receive handler.
func (b *Bus) OnBeforeUserMessage(fn BeforeUserMessageFunc) {
	b.beforeUserMessage = append(b.beforeUserMessage, fn)
}

// OnAfterUserMessage registers a post-receive handler.
func (b *Bus) OnAfterUserMessage(fn HandlerFunc) {
	b.afterUserMessage = append(b.afterUserMessage, fn)
}

// OnThreadClose registers an after-close handler.
func (b *Bus) OnThreadClose(fn HandlerFunc) {
	b.afterClose = append(b.afterClose, fn)
}

// OnCloseScheduled registers an after-schedule-close handler.
func (b *Bus) OnCloseScheduled(fn HandlerFunc) {
	b.afterCloseScheduled = append(b.afterCloseScheduled, fn)
}

// OnCloseScheduleCanceled registers an after-cancel-schedule-close handler.
func (b *Bus) OnCloseScheduleCanceled(fn HandlerFunc) {
	b.afterCloseSchedCancel = append(b.afterCloseSchedCancel, fn)
}

// BeforeUserMessage runs pre-receive handlers in order. The first handler
// that cancels short-circuits the rest.
func (b *Bus) BeforeUserMessage(ctx context.Context, ev Event) (cancel bool) {
	for _, fn := range b.beforeUserMessage {
		if fn(ctx, ev) {
			return true
		}
	}
	return false
}

// AfterUserMessage runs post-receive handlers in order.
func (b *Bus) AfterUserMessage(ctx context.Context, ev Event) {
	for _, fn := range b.afterUserMessage {
		fn(ctx, ev)
	}
}

// ThreadClosed runs after-close handlers in order.
func (b *Bus) ThreadClosed(ctx context.Context, ev Event) {
	for _, fn := range b.afterClose {
		fn(ctx, ev)
	}
}

// CloseScheduled runs after-schedule-close handlers in order.
func (b *Bus) CloseScheduled(ctx context.Context, ev Event) {
	for _, fn := range b.afterCloseScheduled {
		fn(ctx, ev)
	}
}

// CloseScheduleCanceled runs after-cancel-schedule-close handlers in order.
func (b *Bus) CloseScheduleCanceled(ctx context.Context, ev Event) {
	for _, fn := range b.afterCloseSchedCancel {
		fn(ctx, ev)
	}
}
