package main

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice is a scriptable Device for loop and executor tests
type fakeDevice struct {
	frames    []*image.RGBA // served in order, last one repeats
	frameIdx  int
	failShots int // initial screenshots failing with a device error
	shots     int
	taps      []Point
	swipes    [][5]int
	keys      []int
	tapErr    error
}

func (d *fakeDevice) Screenshot(ctx context.Context) (*image.RGBA, error) {
	d.shots++
	if d.failShots > 0 {
		d.failShots--
		return nil, NewDeviceError("screenshot", errors.New("connection refused"))
	}
	if len(d.frames) == 0 {
		return newTestFrame(colGray), nil
	}
	frame := d.frames[d.frameIdx]
	if d.frameIdx < len(d.frames)-1 {
		d.frameIdx++
	}
	return frame, nil
}

func (d *fakeDevice) Tap(ctx context.Context, x, y int) error {
	if d.tapErr != nil {
		return d.tapErr
	}
	d.taps = append(d.taps, Point{X: x, Y: y})
	return nil
}

func (d *fakeDevice) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	d.swipes = append(d.swipes, [5]int{x1, y1, x2, y2, durationMs})
	return nil
}

func (d *fakeDevice) KeyEvent(ctx context.Context, code int) error {
	d.keys = append(d.keys, code)
	return nil
}

// fastSettings returns settings tuned so tests run without real waiting
func fastSettings() *Settings {
	return &Settings{
		ADB: ADBSettings{
			Path:           "adb",
			Serial:         "test",
			CommandTimeout: time.Second,
		},
		Matching: MatchingSettings{
			Threshold:        0.75,
			AmbiguityEpsilon: 0.05,
		},
		Automation: AutomationSettings{
			PollDelay:               time.Millisecond,
			TapDelay:                0,
			MaxUnknownPolls:         2,
			MaxDeviceRetries:        3,
			RetryBackoff:            time.Millisecond,
			MaxScrolls:              2,
			MaxAttemptsPerExpansion: 2,
			IdleDelay:               time.Millisecond,
		},
		Paths: PathSettings{
			ResetFlag: "nonexistent.flag",
		},
		Expansions: ExpansionSettings{Order: []string{"A"}},
	}
}

func TestCaptureRetriesThenSucceeds(t *testing.T) {
	device := &fakeDevice{failShots: 2}
	e := NewExecutor(device, fastSettings())

	frame, err := e.Capture(context.Background())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 3, device.shots)
}

func TestCaptureExhaustsRetryCeiling(t *testing.T) {
	device := &fakeDevice{failShots: 10}
	e := NewExecutor(device, fastSettings())

	_, err := e.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, IsDeviceUnavailable(err))
	assert.Equal(t, 3, device.shots, "retries must stop at the ceiling")
}

func TestNonDeviceErrorNotRetried(t *testing.T) {
	device := &fakeDevice{tapErr: errors.New("boom")}
	e := NewExecutor(device, fastSettings())

	err := e.Tap(context.Background(), Point{X: 1, Y: 2})
	require.Error(t, err)
	assert.False(t, IsDeviceUnavailable(err))
}

func TestScrollDownGesture(t *testing.T) {
	device := &fakeDevice{}
	e := NewExecutor(device, fastSettings())

	require.NoError(t, e.ScrollDown(context.Background()))
	require.Len(t, device.swipes, 1)
	s := device.swipes[0]
	assert.Equal(t, CanonicalWidth/2, s[0])
	assert.Equal(t, int(float64(CanonicalHeight)*scrollFromFraction), s[1])
	assert.Equal(t, CanonicalWidth/2, s[2])
	assert.Equal(t, int(float64(CanonicalHeight)*scrollToFraction), s[3])
	assert.Greater(t, s[1], s[3], "scroll down swipes upward")
}

func TestTapBoundsHitsCenter(t *testing.T) {
	device := &fakeDevice{}
	e := NewExecutor(device, fastSettings())

	require.NoError(t, e.TapBounds(context.Background(), NewBounds(100, 200, 40, 60)))
	require.Len(t, device.taps, 1)
	assert.Equal(t, Point{X: 120, Y: 230}, device.taps[0])
}

func TestBackSendsKeycode(t *testing.T) {
	device := &fakeDevice{}
	e := NewExecutor(device, fastSettings())

	require.NoError(t, e.Back(context.Background()))
	assert.Equal(t, []int{KeycodeBack}, device.keys)
}

func TestRetryStopsOnCancel(t *testing.T) {
	device := &fakeDevice{failShots: 10}
	settings := fastSettings()
	settings.Automation.RetryBackoff = time.Hour
	e := NewExecutor(device, settings)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := e.Capture(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, device.shots, "backoff wait must honor cancellation")
}
