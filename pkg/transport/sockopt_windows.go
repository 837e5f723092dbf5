//go:build windows

package transport

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// controlSocket returns a ListenConfig control function that sets
// SO_REUSEADDR (rapid restarts) and, when requested, SO_BROADCAST.
func controlSocket(broadcast bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
			if opErr != nil {
				return
			}
			if broadcast {
				opErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
