package device

import (
	"context"
	"fmt"
	"time"
)

// DefaultCompletionDelay is the settle time used by the CW305 demo bitstream.
const DefaultCompletionDelay = 500 * time.Millisecond

// CompletionStrategy decides when a triggered computation is finished.
// Wait must return promptly once ctx is done, with ctx.Err() or an error
// wrapping it.
type CompletionStrategy interface {
	Wait(ctx context.Context, dev RegisterReader) error
	String() string
}

// FixedDelay waits a fixed duration and assumes the device is done.
//
// The device is never consulted. If it takes longer than Delay, the result
// register is read early and returns stale or partial data without error.
type FixedDelay struct {
	Delay time.Duration
}

func (f FixedDelay) Wait(ctx context.Context, _ RegisterReader) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(f.Delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (f FixedDelay) String() string {
	return fmt.Sprintf("fixed-delay(%s)", f.Delay)
}

// PollFlag polls a 1-byte status register until it reads non-zero.
type PollFlag struct {
	Register Register
	Interval time.Duration
}

// DefaultPollInterval is used when PollFlag.Interval is unset.
const DefaultPollInterval = 5 * time.Millisecond

func (p PollFlag) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultPollInterval
	}
	return p.Interval
}

func (p PollFlag) Wait(ctx context.Context, dev RegisterReader) error {
	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()

	for {
		flag, err := dev.ReadRegister(ctx, p.Register.Address, 1)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("poll %s: %w", p.Register.Name, err)
		}
		if len(flag) == 1 && flag[0] != 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p PollFlag) String() string {
	return fmt.Sprintf("poll(%s every %s)", p.Register.Name, p.interval())
}
