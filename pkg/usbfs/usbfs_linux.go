package usbfs

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/xrcap/xrcap/pkg/ioctl"
	"golang.org/x/sys/unix"
)

// linux/usbdevice_fs.h
type bulkTransfer struct {
	ep      uint32
	len     uint32
	timeout uint32
	data    unsafe.Pointer
}

type getDriver struct {
	iface  uint32
	driver [256]byte
}

type ioctlRequest struct {
	ifno int32
	code int32
	data unsafe.Pointer
}

var (
	usbdevfsBulk             = ioctl.IORW('U', 2, uint16(unsafe.Sizeof(bulkTransfer{})))
	usbdevfsGetDriver        = ioctl.IOW('U', 8, uint16(unsafe.Sizeof(getDriver{})))
	usbdevfsClaimInterface   = ioctl.IOR('U', 15, 4)
	usbdevfsReleaseInterface = ioctl.IOR('U', 16, 4)
	usbdevfsIoctl            = ioctl.IORW('U', 18, uint16(unsafe.Sizeof(ioctlRequest{})))
	usbdevfsDisconnect       = ioctl.IO('U', 22)
)

// Handle is an open usbfs device node. Transfers on different endpoints may
// run concurrently.
type Handle struct {
	Path string

	mu      sync.RWMutex
	fd      int
	claimed map[uint8]bool
}

func Open(path string) (*Handle, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("usbfs: open %s: %w", path, err)
	}
	return &Handle{Path: path, fd: fd, claimed: map[uint8]bool{}}, nil
}

// Driver returns the kernel driver bound to the interface, empty if none.
func (h *Handle) Driver(iface uint8) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.fd < 0 {
		return "", ErrClosed
	}

	req := getDriver{iface: uint32(iface)}
	if _, err := ioctl.Ioctl(h.fd, usbdevfsGetDriver, unsafe.Pointer(&req)); err != nil {
		if err == unix.ENODATA {
			return "", nil
		}
		return "", fmt.Errorf("usbfs: get driver iface=%d: %w", iface, err)
	}

	return ioctl.Str(req.driver[:]), nil
}

// Claim detaches any kernel driver bound to the interface and claims it.
func (h *Handle) Claim(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd < 0 {
		return ErrClosed
	}

	req := ioctlRequest{ifno: int32(iface), code: int32(usbdevfsDisconnect)}
	if _, err := ioctl.Ioctl(h.fd, usbdevfsIoctl, unsafe.Pointer(&req)); err != nil && err != unix.ENODATA {
		return fmt.Errorf("usbfs: detach driver iface=%d: %w", iface, err)
	}

	n := uint32(iface)
	if _, err := ioctl.Ioctl(h.fd, usbdevfsClaimInterface, unsafe.Pointer(&n)); err != nil {
		return fmt.Errorf("usbfs: claim iface=%d: %w", iface, err)
	}

	h.claimed[iface] = true
	return nil
}

func (h *Handle) Release(iface uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.release(iface)
}

func (h *Handle) release(iface uint8) error {
	if h.fd < 0 {
		return ErrClosed
	}

	n := uint32(iface)
	if _, err := ioctl.Ioctl(h.fd, usbdevfsReleaseInterface, unsafe.Pointer(&n)); err != nil {
		return fmt.Errorf("usbfs: release iface=%d: %w", iface, err)
	}

	delete(h.claimed, iface)
	return nil
}

func (h *Handle) bulk(ep uint8, b []byte, timeout time.Duration) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.fd < 0 {
		return 0, ErrClosed
	}

	ms := timeout.Milliseconds()
	if ms <= 0 {
		ms = 1
	}

	req := bulkTransfer{ep: uint32(ep), len: uint32(len(b)), timeout: uint32(ms)}
	if len(b) > 0 {
		req.data = unsafe.Pointer(&b[0])
	}

	n, err := ioctl.Ioctl(h.fd, usbdevfsBulk, unsafe.Pointer(&req))
	if err != nil {
		// unix.Errno reports ETIMEDOUT as Timeout()
		return 0, fmt.Errorf("usbfs: bulk ep=0x%02x: %w", ep, err)
	}
	return n, nil
}

// Write sends b to an OUT endpoint.
func (h *Handle) Write(ep uint8, b []byte, timeout time.Duration) (int, error) {
	return h.bulk(ep, b, timeout)
}

// Read receives at most size bytes from an IN endpoint.
func (h *Handle) Read(ep uint8, size int, timeout time.Duration) ([]byte, error) {
	b := make([]byte, size)
	n, err := h.bulk(ep, b, timeout)
	if err != nil {
		return nil, err
	}
	return b[:n], nil
}

// Close releases claimed interfaces and closes the node.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fd < 0 {
		return nil
	}

	for iface := range h.claimed {
		_ = h.release(iface)
	}

	err := unix.Close(h.fd)
	h.fd = -1
	return err
}
