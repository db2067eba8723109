//go:build !linux

package futex

import "errors"

// ErrUnsupported is returned on platforms without shared futex support.
var ErrUnsupported = errors.New("futex operations not supported on this platform")

// Supported reports whether futex operations work on this platform.
func Supported() bool { return false }

// Wait is not supported on this platform.
func Wait(addr *uint32, val uint32) error {
	return ErrUnsupported
}

// Wake is not supported on this platform.
func Wake(addr *uint32, n int) (int, error) {
	return 0, ErrUnsupported
}
