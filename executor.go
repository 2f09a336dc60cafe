// Package main - executor.go
//
// Action execution with per-command deadlines and bounded retry.
//
// The executor is the layer between the state machine and the raw device
// transport. It owns the retry policy: a device failure is retried with a
// doubling backoff up to the configured ceiling, and only once the ceiling
// is exhausted does the failure propagate - at which point the caller halts
// rather than blindly continuing against a device that is gone. All input
// helpers wait the configured settle delay after landing so the next capture
// sees the screen's reaction.
package main

import (
	"context"
	"image"
	"time"
)

// Device is the transport surface the executor drives. *ADBClient implements
// it; tests substitute fakes.
type Device interface {
	Screenshot(ctx context.Context) (*image.RGBA, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error
	KeyEvent(ctx context.Context, code int) error
}

// Scroll gesture endpoints, as fractions of the canonical frame height
const (
	scrollFromFraction = 0.70
	scrollToFraction   = 0.30
	scrollDurationMs   = 300
)

// Executor issues device actions with deadlines, retry, and settle delays.
type Executor struct {
	device     Device
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	tapDelay   time.Duration
}

// NewExecutor creates an executor over the given device
func NewExecutor(device Device, settings *Settings) *Executor {
	return &Executor{
		device:     device,
		timeout:    settings.ADB.CommandTimeout,
		maxRetries: settings.Automation.MaxDeviceRetries,
		backoff:    settings.Automation.RetryBackoff,
		tapDelay:   settings.Automation.TapDelay,
	}
}

// withRetry runs fn up to maxRetries times, backing off between attempts.
// Only device failures are retried; anything else returns immediately.
func (e *Executor) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	delay := e.backoff
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, e.timeout)
		err = fn(opCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !IsDeviceUnavailable(err) {
			return err
		}
		if attempt < e.maxRetries {
			LogWarn("Device failure during %s (attempt %d/%d), retrying in %v: %v",
				op, attempt, e.maxRetries, delay, err)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}
			delay *= 2
		}
	}
	LogError("Device failure during %s after %d attempts: %v", op, e.maxRetries, err)
	return err
}

// Capture grabs a frame, retrying device failures. A decodable-but-garbled
// capture returns ErrInvalidFrame without retry; the poll loop treats it as
// an unreadable screen and tries again next iteration.
func (e *Executor) Capture(ctx context.Context) (*image.RGBA, error) {
	var frame *image.RGBA
	err := e.withRetry(ctx, "screenshot", func(ctx context.Context) error {
		var err error
		frame, err = e.device.Screenshot(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Tap taps a point and waits for the screen to settle
func (e *Executor) Tap(ctx context.Context, p Point) error {
	err := e.withRetry(ctx, "tap", func(ctx context.Context) error {
		return e.device.Tap(ctx, p.X, p.Y)
	})
	if err != nil {
		return err
	}
	return e.settle(ctx)
}

// TapBounds taps the center of a matched region
func (e *Executor) TapBounds(ctx context.Context, b Bounds) error {
	return e.Tap(ctx, b.Center())
}

// ScrollDown swipes upward through the vertical center of the screen,
// moving list content down one step.
func (e *Executor) ScrollDown(ctx context.Context) error {
	x := CanonicalWidth / 2
	from := int(float64(CanonicalHeight) * scrollFromFraction)
	to := int(float64(CanonicalHeight) * scrollToFraction)
	err := e.withRetry(ctx, "scroll", func(ctx context.Context) error {
		return e.device.Swipe(ctx, x, from, x, to, scrollDurationMs)
	})
	if err != nil {
		return err
	}
	return e.settle(ctx)
}

// Back presses the Android back key
func (e *Executor) Back(ctx context.Context) error {
	err := e.withRetry(ctx, "back", func(ctx context.Context) error {
		return e.device.KeyEvent(ctx, KeycodeBack)
	})
	if err != nil {
		return err
	}
	return e.settle(ctx)
}

// settle waits the configured tap delay, honoring cancellation
func (e *Executor) settle(ctx context.Context) error {
	if !sleepCtx(ctx, e.tapDelay) {
		return ctx.Err()
	}
	return nil
}

// sleepCtx sleeps for d unless the context is cancelled first; returns
// false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
