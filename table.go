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

	"github.com/zykowal/shmstatus/internal/futex"
)

// Backend selects the synchronization flavor of a segment.
type Backend int

const (
	// RWLockBackend protects the table with a process-shared reader/writer
	// lock. Read operations from any number of processes proceed in
	// parallel. This is the primary backend.
	RWLockBackend Backend = iota

	// MutexBackend protects the table with a single process-shared mutex.
	// Semantics are identical but concurrent readers serialize.
	MutexBackend
)

// Options configures Open.
type Options struct {
	// Name of the shared memory object. Defaults to the conventional name
	// of the chosen backend (RWLockSegmentName or MutexSegmentName).
	Name string

	// Backend selects the lock flavor. Segments record which backend
	// formatted them; attaching with the other flavor fails.
	Backend Backend

	// Perm is the creation mode of the object. Defaults to 0666 so any
	// local process can attach.
	Perm os.FileMode
}

// name returns the effective segment name.
func (o Options) name() string {
	if o.Name != "" {
		return o.Name
	}
	if o.Backend == MutexBackend {
		return MutexSegmentName
	}
	return RWLockSegmentName
}

// flags returns the header flags the chosen backend formats and expects.
func (o Options) flags() uint32 {
	if o.Backend == MutexBackend {
		return flagMutexBackend
	}
	return 0
}

// Table is a handle on an attached status table. A handle owns its mapping
// and is safe for concurrent use by any number of goroutines; the table
// itself is additionally shared with every other attached process.
//
// Operations block on the table lock without timeout and run to completion
// once it is acquired. None of them are signal-safe.
type Table struct {
	seg     *Segment
	lk      tableLock
	created bool
}

// Open attaches to the named segment, creating and formatting it if this is
// the first process to arrive. All errors returned here are fatal bootstrap
// failures wrapped in the Error class: a caller seeing one must not proceed
// to table operations.
func Open(opts Options) (*Table, error) {
	if !futex.Supported() {
		return nil, Error.New("platform has no process-shared lock support")
	}

	perm := opts.Perm
	if perm == 0 {
		perm = DefaultPerm
	}

	seg, err := openOrCreateSegment(opts.name(), perm)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	t := &Table{seg: seg, created: seg.Created}
	h := t.header()

	if seg.Created {
		if err := t.format(opts.flags()); err != nil {
			seg.Close()
			removeSegment(opts.name())
			return nil, Error.Wrap(err)
		}
	} else {
		// Attachers wait for the creator to publish, then pair its release
		// store with an acquire load before the first lock use.
		for !h.Initialized() {
			time.Sleep(time.Millisecond)
		}
		if err := validateHeader(h, opts.flags()); err != nil {
			seg.Close()
			return nil, Error.Wrap(err)
		}
	}

	if opts.Backend == MutexBackend {
		t.lk = &sharedMutex{word: &h.tableLock}
	} else {
		t.lk = &rwLock{state: &h.tableLock}
	}
	return t, nil
}

// format performs the one-time creator initialization: locks constructed,
// counters zeroed, seed drawn, every slot reset, and only then the
// initialized flag published.
func (t *Table) format(flags uint32) error {
	h := t.header()

	seed, err := newSeed()
	if err != nil {
		return err
	}

	copy(h.magic[:], SegmentMagic)
	h.SetVersion(SegmentVersion)
	h.SetFlags(flags)
	h.SetLiveCount(0)
	h.SetTombCount(0)
	h.SetHashSeed(seed)
	h.SetCreatorPID(uint32(os.Getpid()))
	h.tableLock = 0
	h.initLock = 0

	for i := 0; i < Capacity; i++ {
		sl := t.slot(i)
		sl.key = 0
		sl.value[0] = 0
		sl.hashPrimary = 0
		sl.SetState(slotEmpty)
	}

	h.SetInitialized()
	return nil
}

// Close releases this process's mapping. The segment and its contents stay
// alive for other attachers; use Cleanup to destroy the object.
func (t *Table) Close() error {
	return t.seg.Close()
}

// Creator reports whether this handle formatted the segment. Creator
// identity is process-local bookkeeping only; it plays no role in teardown.
func (t *Table) Creator() bool {
	return t.created
}

func (t *Table) header() *tableHeader {
	return headerAt(t.seg.Mem)
}

func (t *Table) slot(i int) *slot {
	return slotAt(t.seg.Mem, i)
}

// findOccupied walks key's probe sequence and returns the index of the
// occupied slot holding key, or -1. Tombstones conduct the search; the
// first empty slot terminates it.
func (t *Table) findOccupied(key int32) int {
	h := t.header()
	seed := h.HashSeed()
	h1 := primaryHash(seed, key)
	h2 := secondaryHash(seed, key)

	for s := uint32(0); s < Capacity; s++ {
		pos := probeAt(h1, h2, s)
		sl := t.slot(int(pos))
		switch sl.State() {
		case slotEmpty:
			return -1
		case slotOccupied:
			if sl.key == key {
				return int(pos)
			}
		}
	}
	return -1
}

// findInsertSlot walks key's probe sequence looking for a home for key.
// It returns the index of the first tombstone on the path if any, otherwise
// the terminating empty slot. A second return of true means key is already
// occupied; -1 with false means the sequence is exhausted.
func (t *Table) findInsertSlot(key int32) (int, bool) {
	h := t.header()
	seed := h.HashSeed()
	h1 := primaryHash(seed, key)
	h2 := secondaryHash(seed, key)
	firstTomb := -1

	for s := uint32(0); s < Capacity; s++ {
		pos := probeAt(h1, h2, s)
		sl := t.slot(int(pos))
		switch sl.State() {
		case slotEmpty:
			if firstTomb != -1 {
				return firstTomb, false
			}
			return int(pos), false
		case slotTombstone:
			if firstTomb == -1 {
				firstTomb = int(pos)
			}
		case slotOccupied:
			if sl.key == key {
				return -1, true
			}
		}
	}
	return firstTomb, false
}

// needRehash reports whether one more insert would push live+tombstone
// slots past the load ceiling. Lazy deletion accumulates tombstones even
// when the live count stays low, so this fires on long add/remove churn.
func (t *Table) needRehash() bool {
	h := t.header()
	return h.LiveCount()+h.TombCount() >= MaxLive
}

// rehashInPlace compacts the table: snapshot the live entries, reset every
// slot, and re-insert. The snapshot is process-local, which is safe because
// the caller holds the write lock throughout. The seed does not change; the
// same probe sequences simply see no tombstones afterwards.
func (t *Table) rehashInPlace() error {
	h := t.header()

	type entry struct {
		key   int32
		value [ValueCap]byte
	}
	entries := make([]entry, 0, h.LiveCount())
	for i := 0; i < Capacity; i++ {
		sl := t.slot(i)
		if sl.State() == slotOccupied {
			e := entry{key: sl.key}
			e.value = sl.value
			entries = append(entries, e)
		}
	}

	for i := 0; i < Capacity; i++ {
		t.slot(i).SetState(slotEmpty)
	}
	h.SetLiveCount(0)
	h.SetTombCount(0)

	seed := h.HashSeed()
	for i := range entries {
		pos, _ := t.findInsertSlot(entries[i].key)
		if pos < 0 {
			// Cannot happen while the 0.75 ceiling and the full-cycle probe
			// hold; surfacing NO_SPACE matches the wire contract anyway.
			return ErrNoSpace
		}
		sl := t.slot(pos)
		sl.key = entries[i].key
		sl.value = entries[i].value
		sl.hashPrimary = primaryHash(seed, entries[i].key)
		sl.SetState(slotOccupied)
		h.AddLiveCount(1)
	}
	return nil
}

// insertLocked places a new key. The write lock is held.
func (t *Table) insertLocked(key int32, value string) error {
	h := t.header()

	if h.LiveCount() >= MaxLive {
		return ErrNoSpace
	}
	if t.needRehash() {
		if err := t.rehashInPlace(); err != nil {
			return err
		}
	}

	pos, dup := t.findInsertSlot(key)
	if dup {
		return ErrDuplicate
	}
	if pos < 0 {
		return ErrNoSpace
	}

	sl := t.slot(pos)
	if sl.State() == slotTombstone {
		h.AddTombCount(-1)
	}
	sl.key = key
	sl.setValue(value)
	sl.hashPrimary = primaryHash(h.HashSeed(), key)
	sl.SetState(slotOccupied)
	h.AddLiveCount(1)
	return nil
}

// Add inserts a new entry. It fails with ErrDuplicate if the key is already
// present, and with ErrNoSpace if the value is too long or the table is at
// its live ceiling. The value-length gate fires before any locking.
func (t *Table) Add(key int32, value string) error {
	if len(value) >= ValueCap {
		return ErrNoSpace
	}

	t.lk.Lock()
	defer t.lk.Unlock()

	return t.insertLocked(key, value)
}

// Update overwrites the value of an existing entry. It fails with
// ErrNotFound if the key is absent and ErrNoSpace if the value is too long.
func (t *Table) Update(key int32, value string) error {
	if len(value) >= ValueCap {
		return ErrNoSpace
	}

	t.lk.Lock()
	defer t.lk.Unlock()

	pos := t.findOccupied(key)
	if pos < 0 {
		return ErrNotFound
	}
	t.slot(pos).setValue(value)
	return nil
}

// Upsert overwrites the value if the key is present and inserts it
// otherwise. It fails only with ErrNoSpace.
func (t *Table) Upsert(key int32, value string) error {
	if len(value) >= ValueCap {
		return ErrNoSpace
	}

	t.lk.Lock()
	defer t.lk.Unlock()

	if pos := t.findOccupied(key); pos >= 0 {
		t.slot(pos).setValue(value)
		return nil
	}

	err := t.insertLocked(key, value)
	if err == ErrDuplicate {
		// Unreachable: the write lock is held across the lookup and the
		// insert, so the key cannot appear in between.
		err = nil
	}
	return err
}

// Get returns an owned copy of the key's value, or the empty string if the
// key is absent. An empty stored value and an absent key are distinguished
// by Contains.
func (t *Table) Get(key int32) string {
	t.lk.RLock()
	defer t.lk.RUnlock()

	pos := t.findOccupied(key)
	if pos < 0 {
		return ""
	}
	return t.slot(pos).valueString()
}

// Remove deletes the entry for key, leaving a tombstone that keeps longer
// probe sequences intact. It fails with ErrNotFound if the key is absent.
func (t *Table) Remove(key int32) error {
	t.lk.Lock()
	defer t.lk.Unlock()

	pos := t.findOccupied(key)
	if pos < 0 {
		return ErrNotFound
	}

	h := t.header()
	t.slot(pos).SetState(slotTombstone)
	h.AddLiveCount(-1)
	h.AddTombCount(1)
	return nil
}

// Contains reports whether key is currently occupied.
func (t *Table) Contains(key int32) bool {
	t.lk.RLock()
	defer t.lk.RUnlock()

	return t.findOccupied(key) >= 0
}

// Clear empties the table. Tombstones go too; the hash seed stays.
func (t *Table) Clear() error {
	t.lk.Lock()
	defer t.lk.Unlock()

	h := t.header()
	for i := 0; i < Capacity; i++ {
		t.slot(i).SetState(slotEmpty)
	}
	h.SetLiveCount(0)
	h.SetTombCount(0)
	return nil
}

// Count returns the number of live entries.
func (t *Table) Count() int {
	t.lk.RLock()
	defer t.lk.RUnlock()

	return int(t.header().LiveCount())
}

// LoadFactor returns live entries divided by capacity. The rehash trigger
// uses live+tombstones; this is the reported metric only.
func (t *Table) LoadFactor() float64 {
	t.lk.RLock()
	defer t.lk.RUnlock()

	return float64(t.header().LiveCount()) / float64(Capacity)
}

// BatchUpdate overwrites the values of the given keys under one write-lock
// acquisition. Keys that are absent and values that are too long are
// skipped; the return value is the number of entries actually updated.
// Batches never abort partway.
func (t *Table) BatchUpdate(entries map[int32]string) int {
	t.lk.Lock()
	defer t.lk.Unlock()

	updated := 0
	for key, value := range entries {
		if len(value) >= ValueCap {
			continue
		}
		pos := t.findOccupied(key)
		if pos < 0 {
			continue
		}
		t.slot(pos).setValue(value)
		updated++
	}
	return updated
}

// BatchGet clears dst and copies every live entry into it under one
// read-lock acquisition, returning the number copied. Tombstones are
// invisible; the result is a point-in-time snapshot.
func (t *Table) BatchGet(dst map[int32]string) int {
	t.lk.RLock()
	defer t.lk.RUnlock()

	clear(dst)
	for i := 0; i < Capacity; i++ {
		sl := t.slot(i)
		if sl.State() == slotOccupied {
			dst[sl.key] = sl.valueString()
		}
	}
	return len(dst)
}

// String identifies the handle for diagnostics.
func (t *Table) String() string {
	return fmt.Sprintf("shmstatus.Table(%s)", t.seg.Path)
}
