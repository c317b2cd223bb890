//go:build !windows && !linux

package telemetry

import (
	"syscall"
	"unsafe"
)

// isTerminal checks if the file descriptor is a terminal on BSD-derived
// Unix systems (darwin, freebsd, ...), which use TIOCGETA.
func isTerminal(fd uintptr) bool {
	var termios syscall.Termios
	_, _, err := syscall.Syscall6(
		syscall.SYS_IOCTL,
		fd,
		syscall.TIOCGETA,
		uintptr(unsafe.Pointer(&termios)),
		0, 0, 0,
	)
	return err == 0
}
