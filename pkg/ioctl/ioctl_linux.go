package ioctl

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Ioctl returns the syscall result, which some requests use as a byte count.
func Ioctl(fd int, req uintptr, arg unsafe.Pointer) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return int(r), errno
	}
	return int(r), nil
}
