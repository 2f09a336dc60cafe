// Package main - adb.go
//
// ADB transport: the only module that talks to the device.
//
// Every interaction with the phone or emulator goes through an external adb
// binary invoked per command. Each invocation carries a context deadline so a
// wedged adb server cannot stall the control loop, and every failure is
// wrapped as a DeviceError so callers can apply the bounded retry policy
// without inspecting exec internals.
//
// Responsibilities:
//   - Connect to a TCP device target and verify it is listed
//   - Capture screenshots (exec-out screencap -p, decoded and normalized)
//   - Inject input: taps, swipes, key events
package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"
)

// Android key codes used by the bot
const (
	KeycodeBack = 4
)

// DeviceInfo describes one entry from `adb devices`
type DeviceInfo struct {
	Serial string
	State  string
}

// ADBClient drives a single Android device through the adb binary.
type ADBClient struct {
	path   string
	serial string
}

// NewADBClient creates a client for the given adb binary and device serial
func NewADBClient(settings ADBSettings) *ADBClient {
	return &ADBClient{
		path:   settings.Path,
		serial: settings.Serial,
	}
}

// Serial returns the device target this client drives
func (c *ADBClient) Serial() string {
	return c.serial
}

// run executes one adb command against the configured device and returns
// its stdout. Any failure, including context expiry, becomes a DeviceError.
func (c *ADBClient) run(ctx context.Context, op string, args ...string) ([]byte, error) {
	full := append([]string{"-s", c.serial}, args...)
	cmd := exec.CommandContext(ctx, c.path, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, NewDeviceError(op, fmt.Errorf("%v: %w", err, ctx.Err()))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, NewDeviceError(op, fmt.Errorf("%v: %s", err, msg))
		}
		return nil, NewDeviceError(op, err)
	}
	return stdout.Bytes(), nil
}

// Connect establishes the TCP connection to the device target and verifies
// the device shows up in the device list. Targets without a port (USB
// serials) skip the connect step.
func (c *ADBClient) Connect(ctx context.Context) error {
	if strings.Contains(c.serial, ":") {
		cmd := exec.CommandContext(ctx, c.path, "connect", c.serial)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return NewDeviceError("connect", fmt.Errorf("%v: %s", err, strings.TrimSpace(string(out))))
		}
		// adb connect reports failure on stdout with exit code 0
		text := strings.ToLower(string(out))
		if strings.Contains(text, "cannot connect") || strings.Contains(text, "failed to connect") {
			return NewDeviceError("connect", fmt.Errorf("%s", strings.TrimSpace(string(out))))
		}
	}

	devices, err := c.Devices(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if d.Serial == c.serial {
			if d.State != "device" {
				return NewDeviceError("connect", fmt.Errorf("device %s in state %q", d.Serial, d.State))
			}
			LogInfo("Connected to device %s", c.serial)
			return nil
		}
	}
	return NewDeviceError("connect", fmt.Errorf("device %s not listed", c.serial))
}

// Devices lists devices known to the adb server
func (c *ADBClient) Devices(ctx context.Context) ([]DeviceInfo, error) {
	cmd := exec.CommandContext(ctx, c.path, "devices")
	out, err := cmd.Output()
	if err != nil {
		return nil, NewDeviceError("devices", err)
	}
	return parseDeviceList(string(out)), nil
}

// parseDeviceList parses `adb devices` output
func parseDeviceList(out string) []DeviceInfo {
	var devices []DeviceInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, DeviceInfo{Serial: fields[0], State: fields[1]})
	}
	return devices
}

// Screenshot captures the current screen and returns it as a canonical frame
func (c *ADBClient) Screenshot(ctx context.Context) (*image.RGBA, error) {
	data, err := c.run(ctx, "screenshot", "exec-out", "screencap", "-p")
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, NewDeviceError("screenshot", fmt.Errorf("empty screencap output"))
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		// Truncated or garbled capture - not a transport loss, the caller
		// treats it like an unreadable frame and polls again
		LogWarn("Screenshot decode failed (%d bytes): %v", len(data), err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}

	return NormalizeFrame(img)
}

// Tap injects a tap at the given canonical coordinates
func (c *ADBClient) Tap(ctx context.Context, x, y int) error {
	LogDebug("Tap at (%d, %d)", x, y)
	_, err := c.run(ctx, "tap", "shell", "input", "tap",
		fmt.Sprintf("%d", x), fmt.Sprintf("%d", y))
	return err
}

// Swipe injects a swipe between two points over the given duration
func (c *ADBClient) Swipe(ctx context.Context, x1, y1, x2, y2, durationMs int) error {
	LogDebug("Swipe (%d, %d) -> (%d, %d) over %dms", x1, y1, x2, y2, durationMs)
	_, err := c.run(ctx, "swipe", "shell", "input", "swipe",
		fmt.Sprintf("%d", x1), fmt.Sprintf("%d", y1),
		fmt.Sprintf("%d", x2), fmt.Sprintf("%d", y2),
		fmt.Sprintf("%d", durationMs))
	return err
}

// KeyEvent injects an Android key event (e.g. KeycodeBack)
func (c *ADBClient) KeyEvent(ctx context.Context, code int) error {
	LogDebug("KeyEvent %d", code)
	_, err := c.run(ctx, "keyevent", "shell", "input", "keyevent",
		fmt.Sprintf("%d", code))
	return err
}
