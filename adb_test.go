package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeviceList(t *testing.T) {
	out := `List of devices attached
127.0.0.1:5555	device
emulator-5554	offline
* daemon started successfully

`
	devices := parseDeviceList(out)
	require.Len(t, devices, 2)
	assert.Equal(t, DeviceInfo{Serial: "127.0.0.1:5555", State: "device"}, devices[0])
	assert.Equal(t, DeviceInfo{Serial: "emulator-5554", State: "offline"}, devices[1])
}

func TestParseDeviceListEmpty(t *testing.T) {
	assert.Empty(t, parseDeviceList("List of devices attached\n\n"))
}

func TestDeviceErrorWrapsSentinel(t *testing.T) {
	err := NewDeviceError("tap", errors.New("broken pipe"))
	assert.True(t, IsDeviceUnavailable(err))
	assert.Contains(t, err.Error(), "tap")
	assert.Contains(t, err.Error(), "broken pipe")

	assert.False(t, IsDeviceUnavailable(errors.New("something else")))
}
