//go:build linux

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
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

func init() {
	unmapMemory = munmapImpl
}

// openOrCreateSegment opens the named shared memory object, creating it if
// no process has yet. Exactly one process observes Created==true per segment
// lifetime; everyone else attaches to whatever that process formats.
func openOrCreateSegment(name string, perm os.FileMode) (*Segment, error) {
	path := segmentPath(name)

	// Fast path: the object already exists.
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	created := false
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open segment %s: %w", path, err)
		}

		// Race to create it. Exclusive create means at most one winner.
		file, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, perm)
		if err == nil {
			created = true
		} else if os.IsExist(err) {
			// Another process won the race; attach to its object.
			file, err = os.OpenFile(path, os.O_RDWR, 0)
			if err != nil {
				return nil, fmt.Errorf("failed to open segment %s after create race: %w", path, err)
			}
		} else {
			return nil, fmt.Errorf("failed to create segment %s: %w", path, err)
		}
	}

	cleanup := func() {
		file.Close()
		if created {
			os.Remove(path)
		}
	}

	if created {
		if err := file.Truncate(SegmentSize); err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to size segment %s: %w", path, err)
		}
	} else {
		// The winner truncates after creating, so a racing attacher can
		// observe the object before it has its final size. Mapping past the
		// end of the file turns into SIGBUS on first touch, so wait for the
		// size to appear before mapping.
		if err := waitForSize(file, SegmentSize); err != nil {
			file.Close()
			return nil, fmt.Errorf("segment %s never reached its size: %w", path, err)
		}
	}

	mem, err := mmapFile(file, SegmentSize)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to mmap segment %s: %w", path, err)
	}

	return &Segment{
		File:    file,
		Mem:     mem,
		Path:    path,
		Created: created,
	}, nil
}

// waitForSize polls until the file reaches at least size bytes. The creator
// issues the truncate immediately after winning the create race, so this
// resolves in one or two polls in practice.
func waitForSize(file *os.File, size int64) error {
	for {
		info, err := file.Stat()
		if err != nil {
			return err
		}
		if info.Size() >= size {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// mmapFile maps size bytes of the file read+write with shared visibility.
func mmapFile(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	return data, nil
}

// munmapImpl unmaps a memory-mapped region.
func munmapImpl(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("munmap failed: %w", err)
	}
	return nil
}
