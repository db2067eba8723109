/*
 * Copyright 2025 shmstatus authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shmstatus

import (
	"os"
	"path/filepath"
)

// Default segment names. The leading slash of the POSIX shm object name is
// implied; the object lives at /dev/shm/<name>.
const (
	// RWLockSegmentName is the segment of the reader/writer-lock backend.
	RWLockSegmentName = "rwlock_optimized_status_memory"

	// MutexSegmentName is the segment of the mutex backend.
	MutexSegmentName = "optimized_status_memory"
)

// DefaultPerm is the permission bits new segments are created with.
const DefaultPerm = os.FileMode(0666)

// Platform-specific functions (implemented in platform-specific files).
var (
	// unmapMemory unmaps a memory-mapped region
	unmapMemory func([]byte) error
)

// Segment is a mapped shared-memory segment. It owns the per-process
// mapping, never the object itself: the object outlives every process and
// is removed only by Cleanup.
type Segment struct {
	File    *os.File // file descriptor of the shared memory object
	Mem     []byte   // memory-mapped region, exactly SegmentSize bytes
	Path    string   // file path of the object
	Created bool     // whether this process won the exclusive create
}

// Close unmaps the memory and closes the file descriptor. The shared object
// stays alive for other processes.
func (s *Segment) Close() error {
	var firstErr error

	if s.Mem != nil {
		if err := unmapMemory(s.Mem); err != nil && firstErr == nil {
			firstErr = err
		}
		s.Mem = nil
	}

	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.File = nil
	}

	return firstErr
}

// segmentPath returns the backing path of a named segment.
func segmentPath(name string) string {
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", name)
	}
	// Fallback for systems without a tmpfs mount at /dev/shm.
	return filepath.Join(os.TempDir(), name)
}

// isDevShmAvailable checks if /dev/shm is available and a directory.
func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}

// removeSegment unlinks a shared memory object by name. Returns
// os.ErrNotExist if no object with that name is present.
func removeSegment(name string) error {
	paths := []string{
		filepath.Join("/dev/shm", name),
		filepath.Join(os.TempDir(), name),
	}

	var lastErr error
	for _, path := range paths {
		if err := os.Remove(path); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			lastErr = err
		}
	}

	if lastErr != nil {
		return lastErr
	}
	return os.ErrNotExist
}

// SegmentExists checks whether a shared memory object with the given name
// is present.
func SegmentExists(name string) bool {
	paths := []string{
		filepath.Join("/dev/shm", name),
		filepath.Join(os.TempDir(), name),
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

// Cleanup unlinks the named segment. An absent segment is not an error:
// cleanup is an operator action and must be idempotent. Processes that still
// have the old segment mapped keep their mapping until they unmap it.
func Cleanup(name string) error {
	err := removeSegment(name)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return Error.Wrap(err)
}
