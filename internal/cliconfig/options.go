package cliconfig

import (
	"os"

	"github.com/zykowal/shmstatus"
)

// Options converts a loaded configuration into table open options.
func (c Config) Options() shmstatus.Options {
	opts := shmstatus.Options{Name: c.Segment}
	if c.Backend == "mutex" {
		opts.Backend = shmstatus.MutexBackend
	}
	if c.Perm != 0 {
		opts.Perm = os.FileMode(c.Perm)
	}
	return opts
}
