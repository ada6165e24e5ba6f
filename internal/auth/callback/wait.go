package callback

import (
	"context"
	"time"

	"github.com/brizzai/tutor-auth/internal/config"
)

// WaitState is a step of the bounded wait used when the callback carries no code.
type WaitState int

const (
	WaitingShort WaitState = iota
	WaitingExtended
	GivingUp
	Resolved
)

func (s WaitState) String() string {
	switch s {
	case WaitingShort:
		return "waiting_short"
	case WaitingExtended:
		return "waiting_extended"
	case GivingUp:
		return "giving_up"
	case Resolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// waitDelay is how long to stay in s before checking the session again.
func waitDelay(s WaitState, cfg config.CallbackConfig) time.Duration {
	switch s {
	case WaitingShort:
		return cfg.ShortWait
	case WaitingExtended:
		return cfg.ExtendedWait
	default:
		return 0
	}
}

// nextWait is the transition taken after a check of the session.
func nextWait(s WaitState, authenticated bool) WaitState {
	if authenticated {
		return Resolved
	}
	switch s {
	case WaitingShort:
		return WaitingExtended
	default:
		return GivingUp
	}
}

// Clock is the reconciler's only source of delay.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock sleeps on a timer and wakes early when ctx is done.
type RealClock struct{}

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
