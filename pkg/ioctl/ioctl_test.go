package ioctl

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOR(t *testing.T) {
	// #define SNDRV_PCM_IOCTL_INFO		_IOR('A', 0x01, struct snd_pcm_info)
	if runtime.GOARCH == "arm64" {
		c := IOR('A', 0x01, 288)
		require.Equal(t, uintptr(0x81204101), c)
	}

	// #define USBDEVFS_CLAIMINTERFACE    _IOR('U', 15, unsigned int)
	require.Equal(t, uintptr(0x8004550F), IOR('U', 15, 4))
}

func TestIORW(t *testing.T) {
	// #define USBDEVFS_BULK              _IOWR('U', 2, struct usbdevfs_bulktransfer)
	require.Equal(t, uintptr(0xC0185502), IORW('U', 2, 24))
	require.Equal(t, uintptr(0xC0105502), IORW('U', 2, 16))
}

func TestIOW(t *testing.T) {
	// #define USBDEVFS_GETDRIVER         _IOW('U', 8, struct usbdevfs_getdriver)
	require.Equal(t, uintptr(0x41045508), IOW('U', 8, 260))
}

func TestIO(t *testing.T) {
	// #define USBDEVFS_RESET             _IO('U', 20)
	require.Equal(t, uintptr(0x5514), IO('U', 20))
}

func TestStr(t *testing.T) {
	require.Equal(t, "usbfs", Str([]byte("usbfs\x00\x00\x00")))
	require.Equal(t, "abc", Str([]byte("abc")))
}
