//go:build !windows

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlSocket returns a ListenConfig control function that sets
// SO_REUSEADDR (rapid restarts) and, when requested, SO_BROADCAST.
func controlSocket(broadcast bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			if opErr != nil {
				return
			}
			if broadcast {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
			}
		})
		if err != nil {
			return err
		}
		return opErr
	}
}
