package usbfs

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestCodes(t *testing.T) {
	require.Equal(t, uintptr(0x8004550F), usbdevfsClaimInterface)
	require.Equal(t, uintptr(0x80045510), usbdevfsReleaseInterface)
	require.Equal(t, uintptr(0x5516), usbdevfsDisconnect)
	require.Equal(t, uintptr(0x41045508), usbdevfsGetDriver)

	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		require.Equal(t, uintptr(0xC0185502), usbdevfsBulk)
		require.Equal(t, uintptr(0xC0105512), usbdevfsIoctl)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open("/dev/bus/usb/999/999")
	require.Error(t, err)
}

func TestClosedHandle(t *testing.T) {
	h := &Handle{fd: -1}
	_, err := h.Read(0x81, 64, 0)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, h.Claim(0), ErrClosed)
	_, err = h.Driver(0)
	require.ErrorIs(t, err, ErrClosed)
	require.Nil(t, h.Close())
}
