package services

import (
	"context"
	"testing"
	"time"
)

func TestAlertSet_AddRemoveClear(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	th := seedThread(t, s)

	if err := s.AddAlert(ctx, th, "modA"); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Duplicate add is a no-op.
	if err := s.AddAlert(ctx, th, "modA"); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}
	if err := s.AddAlert(ctx, th, "modB"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := reloadThread(t, s, th.ID); len(got.AlertIDs) != 2 {
		t.Fatalf("expected 2 subscribers, got %v", got.AlertIDs)
	}

	if err := s.RemoveAlert(ctx, th, "modA"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// Removing an absent id is a no-op.
	if err := s.RemoveAlert(ctx, th, "ghost"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}
	got := reloadThread(t, s, th.ID)
	if len(got.AlertIDs) != 1 || !got.AlertIDs.Contains("modB") {
		t.Fatalf("expected only modB, got %v", got.AlertIDs)
	}

	if err := s.ClearAlerts(ctx, th); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := reloadThread(t, s, th.ID); len(got.AlertIDs) != 0 {
		t.Fatalf("alert set should be empty, got %v", got.AlertIDs)
	}
	if len(th.AlertIDs) != 0 {
		t.Fatalf("in-memory alert set should be empty, got %v", th.AlertIDs)
	}
}

func TestAutoAlertTimer_SubscribesWhenStillOpen(t *testing.T) {
	s, _ := newTestService(t)
	th := seedThread(t, s)
	s.Cfg.AutoAlertDelay = 10 * time.Millisecond

	s.StartAutoAlertTimer(th, "mod1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := reloadThread(t, s, th.ID)
		if got.AlertIDs.Contains("mod1") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("auto-alert never fired, alerts=%v", got.AlertIDs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAutoAlertTimer_SkipsClosedThread(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	th := seedThread(t, s)
	s.Cfg.AutoAlertDelay = 10 * time.Millisecond

	s.StartAutoAlertTimer(th, "mod1")
	if err := s.Close(ctx, th, true, true); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Close cancels the armed timer; even a racing fire must not subscribe
	// on a closed thread. Give the timer window time to pass.
	time.Sleep(50 * time.Millisecond)
	if got := reloadThread(t, s, th.ID); len(got.AlertIDs) != 0 {
		t.Fatalf("closed thread must not gain subscribers, got %v", got.AlertIDs)
	}
}

func TestAutoAlertTimer_RearmReplaces(t *testing.T) {
	s, _ := newTestService(t)
	th := seedThread(t, s)
	s.Cfg.AutoAlertDelay = 20 * time.Millisecond

	s.StartAutoAlertTimer(th, "modA")
	s.StartAutoAlertTimer(th, "modB")

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := reloadThread(t, s, th.ID)
		if got.AlertIDs.Contains("modB") {
			if got.AlertIDs.Contains("modA") {
				t.Fatalf("replaced timer must not fire, got %v", got.AlertIDs)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("re-armed timer never fired, alerts=%v", got.AlertIDs)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
