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

// Package futex wraps the Linux futex system call for words that live in
// memory shared between processes. The private-futex opcodes are deliberately
// not used: waiters and wakers sit in different address spaces, so the kernel
// must key the wait queue on the physical page, not the per-process mapping.
package futex

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared-mode futex opcodes (no FUTEX_PRIVATE_FLAG).
const (
	futexWaitShared = 0 // FUTEX_WAIT
	futexWakeShared = 1 // FUTEX_WAKE
)

// Supported reports whether futex operations work on this platform.
func Supported() bool { return true }

// Wait blocks until the value at addr is no longer val, another process
// calls Wake on the same word, or the call is interrupted. Callers must
// re-check their logical condition after Wait returns: spurious wakeups
// are expected.
func Wait(addr *uint32, val uint32) error {
	// Re-check atomically before entering the syscall and skip it if the
	// word already changed. A change after this check is caught by the
	// kernel's own compare, which returns EAGAIN below.
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), // uaddr
		futexWaitShared,               // futex_op
		uintptr(val),                  // expected value
		0,                             // timeout: infinite
		0,                             // uaddr2: unused
		0,                             // val3: unused
	)

	switch errno {
	case 0:
		return nil
	case unix.EAGAIN:
		// Value didn't match at syscall entry: the wake already happened.
		return nil
	case unix.EINTR:
		// Interrupted by a signal; the caller's loop re-checks.
		return nil
	default:
		return fmt.Errorf("futex wait failed: %w", errno)
	}
}

// Wake wakes up to n waiters blocked on addr and returns how many it woke.
func Wake(addr *uint32, n int) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), // uaddr
		futexWakeShared,               // futex_op
		uintptr(n),                    // waiters to wake
		0,                             // timeout: unused
		0,                             // uaddr2: unused
		0,                             // val3: unused
	)
	if errno != 0 {
		return 0, fmt.Errorf("futex wake failed: %w", errno)
	}
	return int(r1), nil
}
