package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// countingClient records how many times each operation reached the inner
// transport.
type countingClient struct {
	sends, edits, deletes, reacts, opens, histories int
}

func (c *countingClient) OpenPrivateChannel(ctx context.Context, userID string) (string, error) {
	c.opens++
	return "dm", nil
}

func (c *countingClient) Send(ctx context.Context, channelID string, content Content, files []File) (*Message, error) {
	c.sends++
	return &Message{ID: "m1", ChannelID: channelID}, nil
}

func (c *countingClient) Edit(ctx context.Context, channelID, messageID string, content Content) error {
	c.edits++
	return nil
}

func (c *countingClient) Delete(ctx context.Context, channelID, messageID string) error {
	c.deletes++
	return nil
}

func (c *countingClient) DeleteChannel(ctx context.Context, channelID string) error { return nil }

func (c *countingClient) React(ctx context.Context, channelID, messageID, emoji string) error {
	c.reacts++
	return nil
}

func (c *countingClient) HistoryAfter(ctx context.Context, channelID string, limit int, afterMessageID string) ([]Message, error) {
	c.histories++
	return nil, nil
}

func TestRateLimited_PassesThrough(t *testing.T) {
	inner := &countingClient{}
	c := RateLimited(inner, rate.NewLimiter(rate.Inf, 1))
	ctx := context.Background()

	if _, err := c.Send(ctx, "ch", Content{Body: "x"}, nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := c.Edit(ctx, "ch", "m1", Content{}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if err := c.Delete(ctx, "ch", "m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.React(ctx, "ch", "m1", "📨"); err != nil {
		t.Fatalf("react: %v", err)
	}
	if inner.sends != 1 || inner.edits != 1 || inner.deletes != 1 || inner.reacts != 1 {
		t.Fatalf("calls not forwarded: %+v", inner)
	}
}

func TestRateLimited_WritesWait(t *testing.T) {
	inner := &countingClient{}
	// One token, refilled every 50ms: the second send must wait.
	c := RateLimited(inner, rate.NewLimiter(rate.Every(50*time.Millisecond), 1))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := c.Send(ctx, "ch", Content{}, nil); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second send should have waited, elapsed %v", elapsed)
	}
}

func TestRateLimited_ReadsNotLimited(t *testing.T) {
	inner := &countingClient{}
	// Empty bucket with no refill: any limited call would block forever.
	c := RateLimited(inner, rate.NewLimiter(rate.Every(time.Hour), 1))
	ctx := context.Background()

	if _, err := c.Send(ctx, "ch", Content{}, nil); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, err := c.OpenPrivateChannel(ctx, "u1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.HistoryAfter(ctx, "ch", 10, "m0"); err != nil {
		t.Fatalf("history: %v", err)
	}
	if inner.opens != 1 || inner.histories != 1 {
		t.Fatalf("reads not forwarded: %+v", inner)
	}
}

func TestRateLimited_CanceledContext(t *testing.T) {
	inner := &countingClient{}
	c := RateLimited(inner, rate.NewLimiter(rate.Every(time.Hour), 1))
	ctx := context.Background()

	if _, err := c.Send(ctx, "ch", Content{}, nil); err != nil {
		t.Fatalf("first send: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.Send(canceled, "ch", Content{}, nil); err == nil {
		t.Fatalf("canceled wait should surface an error")
	}
	if inner.sends != 1 {
		t.Fatalf("canceled send must not reach the transport: %d", inner.sends)
	}
}

func TestRateLimited_NilLimiter(t *testing.T) {
	inner := &countingClient{}
	c := RateLimited(inner, nil)
	if _, err := c.Send(context.Background(), "ch", Content{}, nil); err != nil {
		t.Fatalf("nil limiter should pass through: %v", err)
	}
}

func TestErrorClassifiers(t *testing.T) {
	wrapped := fmt.Errorf("sending: %w", ErrChannelNotFound)
	if !IsChannelNotFound(wrapped) {
		t.Fatalf("wrapped sentinel should classify")
	}
	if IsChannelNotFound(errors.New("other")) {
		t.Fatalf("unrelated error must not classify")
	}
	if !IsDMNotAllowed(fmt.Errorf("x: %w", ErrDMNotAllowed)) {
		t.Fatalf("dm sentinel should classify")
	}
	if !IsContentBlocked(fmt.Errorf("x: %w", ErrContentBlocked)) {
		t.Fatalf("content sentinel should classify")
	}
}
