//go:build !linux

package shmstatus

import (
	"errors"
	"os"
)

var errUnsupportedPlatform = errors.New("shared memory segments require linux")

func init() {
	unmapMemory = func([]byte) error { return nil }
}

// openOrCreateSegment is not supported on this platform.
func openOrCreateSegment(name string, perm os.FileMode) (*Segment, error) {
	return nil, errUnsupportedPlatform
}
