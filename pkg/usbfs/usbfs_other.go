//go:build !linux

package usbfs

import "time"

type Handle struct {
	Path string
}

func Open(path string) (*Handle, error) {
	return nil, ErrUnsupported
}

func (h *Handle) Driver(iface uint8) (string, error) {
	return "", ErrUnsupported
}

func (h *Handle) Claim(iface uint8) error {
	return ErrUnsupported
}

func (h *Handle) Release(iface uint8) error {
	return ErrUnsupported
}

func (h *Handle) Write(ep uint8, b []byte, timeout time.Duration) (int, error) {
	return 0, ErrUnsupported
}

func (h *Handle) Read(ep uint8, size int, timeout time.Duration) ([]byte, error) {
	return nil, ErrUnsupported
}

func (h *Handle) Close() error {
	return nil
}
