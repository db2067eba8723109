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
	"sync/atomic"
	"unsafe"
)

// Memory layout constants. The on-segment header and slot array are the
// external contract between attached processes: every field offset below is
// pinned by tests and must never drift.
const (
	// Magic bytes for segment identification
	SegmentMagic = "SHMSTAT\x00"

	// Current segment format version
	SegmentVersion = uint32(1)

	// Segment header size (aligned to 64 bytes)
	HeaderSize = 64

	// Capacity is the fixed slot count. Must be a power of two; index math
	// uses the mask Capacity-1.
	Capacity = 2048

	// MaxLoad is the rehash trigger threshold on live+tombstone slots.
	MaxLoad = 0.75

	// MaxLive is the ceiling on occupied slots: floor(Capacity * MaxLoad).
	MaxLive = 1536

	// ValueCap is the slot value size in bytes, including the mandatory
	// trailing NUL. Effective payload is at most ValueCap-1 bytes.
	ValueCap = 256

	// SlotSize is the fixed per-slot footprint in bytes.
	SlotSize = 272

	// SegmentSize is the total byte size of a formatted segment.
	SegmentSize = HeaderSize + Capacity*SlotSize

	capMask = Capacity - 1
)

// Slot states.
const (
	slotEmpty     uint32 = 0
	slotOccupied  uint32 = 1
	slotTombstone uint32 = 2
)

// Header flag bits.
const (
	// flagMutexBackend marks a segment formatted by the mutex backend.
	// Readers serialize there, so an RW-lock process must not attach.
	flagMutexBackend = uint32(1 << 0)
)

// tableHeader lives at offset 0 of the segment, followed immediately by the
// slot array. Fields hold no pointers and no per-process addresses.
type tableHeader struct {
	magic       [8]byte  // 0x00: "SHMSTAT\0"
	version     uint32   // 0x08: segment format version
	flags       uint32   // 0x0C: backend flags
	initialized uint32   // 0x10: init barrier (0 -> 1, set once by creator)
	liveCount   int32    // 0x14: number of occupied slots
	tombCount   int32    // 0x18: number of tombstone slots
	hashSeed    uint32   // 0x1C: per-segment seed, set once by creator
	tableLock   uint32   // 0x20: table lock word (rwlock state or mutex word)
	initLock    uint32   // 0x24: init handshake mutex word (reserved)
	creatorPID  uint32   // 0x28: PID of the formatting process
	pad         uint32   // 0x2C: padding
	reserved    [16]byte // 0x30-0x3F: reserved/padding to 64B
}

// slot is one cell of the table array. The layout is byte-identical across
// processes: fixed size, four-byte alignment, no padding drift.
type slot struct {
	key         int32          // 0x000: the 32-bit key
	value       [ValueCap]byte // 0x004: NUL-terminated value bytes
	state       uint32         // 0x104: slotEmpty/slotOccupied/slotTombstone
	hashPrimary uint32         // 0x108: cached primary(key), for stats
	pad         uint32         // 0x10C: padding to SlotSize
}

// tableHeader atomic access methods. Counters mutate only under the write
// lock, but attachers and the init handshake read them from other processes,
// so every access goes through atomics.

// Initialized reports whether the creator has published the segment.
func (h *tableHeader) Initialized() bool {
	return atomic.LoadUint32(&h.initialized) != 0
}

// SetInitialized publishes the segment to attachers. The atomic store is the
// release fence paired with the acquire load in Initialized.
func (h *tableHeader) SetInitialized() {
	atomic.StoreUint32(&h.initialized, 1)
}

// Version returns the segment format version.
func (h *tableHeader) Version() uint32 {
	return atomic.LoadUint32(&h.version)
}

// SetVersion sets the segment format version.
func (h *tableHeader) SetVersion(v uint32) {
	atomic.StoreUint32(&h.version, v)
}

// Flags returns the backend flags word.
func (h *tableHeader) Flags() uint32 {
	return atomic.LoadUint32(&h.flags)
}

// SetFlags sets the backend flags word.
func (h *tableHeader) SetFlags(f uint32) {
	atomic.StoreUint32(&h.flags, f)
}

// LiveCount returns the number of occupied slots.
func (h *tableHeader) LiveCount() int32 {
	return atomic.LoadInt32(&h.liveCount)
}

// SetLiveCount sets the number of occupied slots.
func (h *tableHeader) SetLiveCount(n int32) {
	atomic.StoreInt32(&h.liveCount, n)
}

// AddLiveCount adjusts the occupied-slot count by delta.
func (h *tableHeader) AddLiveCount(delta int32) {
	atomic.AddInt32(&h.liveCount, delta)
}

// TombCount returns the number of tombstone slots.
func (h *tableHeader) TombCount() int32 {
	return atomic.LoadInt32(&h.tombCount)
}

// SetTombCount sets the number of tombstone slots.
func (h *tableHeader) SetTombCount(n int32) {
	atomic.StoreInt32(&h.tombCount, n)
}

// AddTombCount adjusts the tombstone-slot count by delta.
func (h *tableHeader) AddTombCount(delta int32) {
	atomic.AddInt32(&h.tombCount, delta)
}

// HashSeed returns the per-segment hash seed.
func (h *tableHeader) HashSeed() uint32 {
	return atomic.LoadUint32(&h.hashSeed)
}

// SetHashSeed sets the per-segment hash seed.
func (h *tableHeader) SetHashSeed(seed uint32) {
	atomic.StoreUint32(&h.hashSeed, seed)
}

// CreatorPID returns the PID of the process that formatted the segment.
func (h *tableHeader) CreatorPID() uint32 {
	return atomic.LoadUint32(&h.creatorPID)
}

// SetCreatorPID records the PID of the formatting process.
func (h *tableHeader) SetCreatorPID(pid uint32) {
	atomic.StoreUint32(&h.creatorPID, pid)
}

// slot access methods. Key, value, and hashPrimary are written only under
// the write lock and read only under a lock, so plain accesses are safe;
// state goes through atomics because it doubles as the probe terminator.

// State returns the slot state tag.
func (s *slot) State() uint32 {
	return atomic.LoadUint32(&s.state)
}

// SetState sets the slot state tag.
func (s *slot) SetState(state uint32) {
	atomic.StoreUint32(&s.state, state)
}

// setValue copies value bytes into the slot and NUL-terminates them.
// The caller has already rejected values of length >= ValueCap.
func (s *slot) setValue(value string) {
	n := copy(s.value[:ValueCap-1], value)
	s.value[n] = 0
}

// valueString returns the value bytes up to the first NUL as an owned string.
func (s *slot) valueString() string {
	for i := 0; i < ValueCap; i++ {
		if s.value[i] == 0 {
			return string(s.value[:i])
		}
	}
	// Unreachable while the NUL invariant holds; stop at the cap.
	return string(s.value[:ValueCap-1])
}

// validateHeader checks an initialized segment header against this build's
// layout assumptions and the requested backend.
func validateHeader(h *tableHeader, wantFlags uint32) error {
	magic := h.magic
	if string(magic[:]) != SegmentMagic {
		return fmt.Errorf("invalid magic bytes %q", magic)
	}
	if v := h.Version(); v != SegmentVersion {
		return fmt.Errorf("unsupported segment version %d, expected %d", v, SegmentVersion)
	}
	if f := h.Flags(); f != wantFlags {
		return fmt.Errorf("segment formatted with flags 0x%x, this process expects 0x%x", f, wantFlags)
	}
	return nil
}

// headerAt overlays a tableHeader on the start of a mapped segment.
func headerAt(mem []byte) *tableHeader {
	return (*tableHeader)(unsafe.Pointer(&mem[0]))
}

// slotAt returns the i'th slot of a mapped segment. Slots are addressed by
// index arithmetic from the mapping base: nothing position-dependent is ever
// stored in the segment itself.
func slotAt(mem []byte, i int) *slot {
	return (*slot)(unsafe.Pointer(uintptr(unsafe.Pointer(&mem[0])) + HeaderSize + uintptr(i)*SlotSize))
}
