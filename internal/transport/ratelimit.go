// Package transport – rate-limited client wrapper.
//
// Chat transports throttle write operations per channel. This wrapper puts an
// in-process token bucket (golang.org/x/time/rate) in front of every write so
// bursts of relay traffic are smoothed out instead of bouncing off the
// transport's limiter.
//
// Notes:
//   - The limiter is process-local. A horizontally scaled deployment needs a
//     distributed limiter instead.
//   - Reads (HistoryAfter, OpenPrivateChannel) are not limited; transports
//     budget reads and writes separately.
package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Client so that write operations wait on the provided
// token bucket before reaching the underlying transport.
func RateLimited(c Client, l *rate.Limiter) Client {
	return &rateLimitedClient{inner: c, limiter: l}
}

type rateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

func (r *rateLimitedClient) wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

func (r *rateLimitedClient) OpenPrivateChannel(ctx context.Context, userID string) (string, error) {
	return r.inner.OpenPrivateChannel(ctx, userID)
}

func (r *rateLimitedClient) Send(ctx context.Context, channelID string, content Content, files []File) (*Message, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Send(ctx, channelID, content, files)
}

func (r *rateLimitedClient) Edit(ctx context.Context, channelID, messageID string, content Content) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.inner.Edit(ctx, channelID, messageID, content)
}

func (r *rateLimitedClient) Delete(ctx context.Context, channelID, messageID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.inner.Delete(ctx, channelID, messageID)
}

func (r *rateLimitedClient) DeleteChannel(ctx context.Context, channelID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.inner.DeleteChannel(ctx, channelID)
}

func (r *rateLimitedClient) React(ctx context.Context, channelID, messageID, emoji string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.inner.React(ctx, channelID, messageID, emoji)
}

func (r *rateLimitedClient) HistoryAfter(ctx context.Context, channelID string, limit int, afterMessageID string) ([]Message, error) {
	return r.inner.HistoryAfter(ctx, channelID, limit, afterMessageID)
}
