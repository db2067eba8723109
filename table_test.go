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

package shmstatus_test

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zykowal/shmstatus"
)

// testSegmentName derives a per-test segment name so parallel test binaries
// never collide on the shared /dev/shm namespace.
func testSegmentName(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("shmstatus-test-%d-%s", os.Getpid(), name)
}

// newTestTable creates a fresh table on a private segment and tears the
// segment down with the test.
func newTestTable(t *testing.T, backend shmstatus.Backend) *shmstatus.Table {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("shared memory tables require linux")
	}

	name := testSegmentName(t)
	table, err := shmstatus.Open(shmstatus.Options{Name: name, Backend: backend})
	require.NoError(t, err)
	require.True(t, table.Creator(), "test segment %s already existed", name)

	t.Cleanup(func() {
		table.Close()
		_ = shmstatus.Cleanup(name)
	})
	return table
}

func TestBasicAddGet(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	require.NoError(t, table.Add(1, "a"))
	require.NoError(t, table.Add(2, "b"))

	assert.Equal(t, "a", table.Get(1))
	assert.Equal(t, "b", table.Get(2))
	assert.Equal(t, 2, table.Count())
}

func TestDuplicateAdd(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	require.NoError(t, table.Add(1, "a"))

	err := table.Add(1, "b")
	assert.ErrorIs(t, err, shmstatus.ErrDuplicate)
	assert.Equal(t, shmstatus.CodeDuplicate, shmstatus.ReturnCode(err))

	// The losing add must not clobber the stored value.
	assert.Equal(t, "a", table.Get(1))
	assert.Equal(t, 1, table.Count())
}

func TestUpsertAndUpdate(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	require.NoError(t, table.Upsert(1, "a"))
	require.NoError(t, table.Upsert(1, "b"))
	assert.Equal(t, "b", table.Get(1))

	err := table.Update(2, "x")
	assert.ErrorIs(t, err, shmstatus.ErrNotFound)

	require.NoError(t, table.Update(1, "c"))
	assert.Equal(t, "c", table.Get(1))

	// Add after upsert still reports the duplicate.
	assert.ErrorIs(t, table.Add(1, "d"), shmstatus.ErrDuplicate)
}

func TestRemoveIdempotence(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	require.NoError(t, table.Add(7, "seven"))
	require.NoError(t, table.Remove(7))

	assert.ErrorIs(t, table.Remove(7), shmstatus.ErrNotFound)
	assert.False(t, table.Contains(7))
	assert.Equal(t, "", table.Get(7))
	assert.Equal(t, 0, table.Count())
}

func TestEmptyValue(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	// Zero-length values are legal; presence is what Contains reports.
	require.NoError(t, table.Add(5, ""))
	assert.True(t, table.Contains(5))
	assert.Equal(t, "", table.Get(5))
	assert.Equal(t, 1, table.Count())
}

func TestValueLengthGate(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)
	require.NoError(t, table.Add(1, "keep"))

	tooLong := strings.Repeat("x", shmstatus.ValueCap)
	exact := strings.Repeat("y", shmstatus.ValueCap-1)

	assert.ErrorIs(t, table.Add(2, tooLong), shmstatus.ErrNoSpace)
	assert.ErrorIs(t, table.Update(1, tooLong), shmstatus.ErrNoSpace)
	assert.ErrorIs(t, table.Upsert(1, tooLong), shmstatus.ErrNoSpace)

	// Nothing may have changed.
	assert.Equal(t, "keep", table.Get(1))
	assert.Equal(t, 1, table.Count())
	assert.False(t, table.Contains(2))

	// ValueCap-1 bytes is the largest storable payload.
	require.NoError(t, table.Update(1, exact))
	assert.Equal(t, exact, table.Get(1))
}

func TestCapacityBound(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	for i := 0; i < shmstatus.MaxLive; i++ {
		require.NoError(t, table.Add(int32(i), "v"), "add %d", i)
	}
	assert.Equal(t, shmstatus.MaxLive, table.Count())

	// One past the live ceiling must be refused.
	err := table.Add(int32(shmstatus.MaxLive), "v")
	assert.ErrorIs(t, err, shmstatus.ErrNoSpace)
	assert.Equal(t, shmstatus.MaxLive, table.Count())
}

func TestTombstoneReuse(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	const n = 1000
	for i := 0; i < n; i++ {
		require.NoError(t, table.Add(int32(i), fmt.Sprintf("v%d", i)))
	}
	for i := 0; i < n; i++ {
		require.NoError(t, table.Remove(int32(i)))
	}
	assert.Equal(t, 0, table.Count())

	for i := 0; i < n; i++ {
		require.NoError(t, table.Add(int32(i), fmt.Sprintf("w%d", i)), "re-add %d", i)
	}
	assert.Equal(t, n, table.Count())
	assert.InDelta(t, float64(n)/float64(shmstatus.Capacity), table.LoadFactor(), 1e-9)

	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("w%d", i), table.Get(int32(i)))
	}
}

func TestRehashReclaimsTombstones(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	// Alternating add/remove far past the slot count accumulates
	// tombstones that only the in-place rehash can reclaim. Every add must
	// keep succeeding even though the live count never exceeds one.
	for i := 0; i < 3*shmstatus.Capacity; i++ {
		key := int32(i)
		require.NoError(t, table.Add(key, "churn"), "add %d", i)
		require.NoError(t, table.Remove(key), "remove %d", i)
	}
	assert.Equal(t, 0, table.Count())

	// The table must still be fully usable afterwards.
	require.NoError(t, table.Add(-1, "after"))
	assert.Equal(t, "after", table.Get(-1))
}

func TestNoGhostKeysAfterRehash(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	// Force at least one rehash with a mix of live entries and tombstones,
	// then verify the survivors are exactly the expected set.
	want := map[int32]string{}
	for i := 0; i < 1200; i++ {
		require.NoError(t, table.Add(int32(i), fmt.Sprintf("v%d", i)))
	}
	for i := 0; i < 1200; i += 2 {
		require.NoError(t, table.Remove(int32(i)))
	}
	for i := 1; i < 1200; i += 2 {
		want[int32(i)] = fmt.Sprintf("v%d", i)
	}
	// Push live+tombstones over the ceiling so the next adds rehash.
	for i := 2000; i < 2900; i++ {
		require.NoError(t, table.Add(int32(i), fmt.Sprintf("v%d", i)))
		want[int32(i)] = fmt.Sprintf("v%d", i)
	}

	got := map[int32]string{}
	assert.Equal(t, len(want), table.BatchGet(got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	for k, v := range want {
		require.Equal(t, v, table.Get(k), "key %d", k)
	}
	for i := 0; i < 1200; i += 2 {
		require.False(t, table.Contains(int32(i)), "removed key %d resurrected", i)
	}
}

func TestBatchUpdate(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	require.NoError(t, table.Add(1, "a"))
	require.NoError(t, table.Add(2, "b"))

	updates := map[int32]string{
		1: "a2",                                     // present: updated
		2: strings.Repeat("x", shmstatus.ValueCap),  // too long: skipped
		3: "c",                                      // absent: skipped
	}
	assert.Equal(t, 1, table.BatchUpdate(updates))

	assert.Equal(t, "a2", table.Get(1))
	assert.Equal(t, "b", table.Get(2))
	assert.False(t, table.Contains(3))
}

func TestBatchGetSnapshot(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	want := map[int32]string{}
	for i := 0; i < 50; i++ {
		require.NoError(t, table.Add(int32(i), fmt.Sprintf("v%d", i)))
		want[int32(i)] = fmt.Sprintf("v%d", i)
	}
	require.NoError(t, table.Remove(10))
	delete(want, 10)

	// BatchGet clears stale content from the destination map.
	got := map[int32]string{999: "stale"}
	n := table.BatchGet(got)

	assert.Equal(t, len(want), n)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestClearKeepsSeed(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	for i := 0; i < 100; i++ {
		require.NoError(t, table.Add(int32(i), "v"))
	}
	seed := table.Stats().HashSeed

	require.NoError(t, table.Clear())
	assert.Equal(t, 0, table.Count())
	assert.Zero(t, table.Stats().Tombstones)
	assert.Equal(t, seed, table.Stats().HashSeed)

	// The cleared table accepts the same keys again.
	require.NoError(t, table.Add(1, "again"))
	assert.Equal(t, "again", table.Get(1))
}

func TestStats(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	for i := 0; i < 256; i++ {
		require.NoError(t, table.Add(int32(i), "v"))
	}
	require.NoError(t, table.Remove(0))

	stats := table.Stats()
	assert.Equal(t, shmstatus.Capacity, stats.Capacity)
	assert.Equal(t, 255, stats.Live)
	assert.Equal(t, 1, stats.Tombstones)
	assert.InDelta(t, 255.0/float64(shmstatus.Capacity), stats.LoadFactor, 1e-9)
	assert.GreaterOrEqual(t, stats.AvgProbe, 1.0)
	assert.GreaterOrEqual(t, stats.MaxProbe, 1)
	assert.LessOrEqual(t, stats.AvgProbe, float64(stats.MaxProbe))

	out := stats.String()
	assert.Contains(t, out, "Current Count: 255")
	assert.Contains(t, out, "Deleted Count: 1")
}

func TestReturnCodes(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	require.NoError(t, table.Add(1, "a"))

	tests := []struct {
		name string
		err  error
		want int32
	}{
		{"ok", nil, shmstatus.CodeOK},
		{"duplicate", table.Add(1, "b"), shmstatus.CodeDuplicate},
		{"not found", table.Remove(2), shmstatus.CodeNotFound},
		{"no space", table.Add(2, strings.Repeat("x", shmstatus.ValueCap)), shmstatus.CodeNoSpace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shmstatus.ReturnCode(tt.err))
		})
	}
}

func TestMutexBackendSemantics(t *testing.T) {
	// The degraded backend must satisfy the same operation contracts.
	table := newTestTable(t, shmstatus.MutexBackend)

	require.NoError(t, table.Add(1, "a"))
	assert.ErrorIs(t, table.Add(1, "b"), shmstatus.ErrDuplicate)
	require.NoError(t, table.Upsert(2, "b"))
	require.NoError(t, table.Update(2, "b2"))
	assert.Equal(t, "a", table.Get(1))
	assert.Equal(t, "b2", table.Get(2))
	assert.Equal(t, 2, table.Count())
	require.NoError(t, table.Remove(1))
	assert.ErrorIs(t, table.Remove(1), shmstatus.ErrNotFound)
	assert.Equal(t, 1, table.Count())
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)

	const keys = 128
	for i := 0; i < keys; i++ {
		require.NoError(t, table.Add(int32(i), "initial"))
	}

	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func() {
			for {
				select {
				case <-done:
					return
				default:
				}
				for i := 0; i < keys; i++ {
					// Values transition initial -> updated; anything else
					// would be a torn read.
					v := table.Get(int32(i))
					if v != "initial" && v != "updated" {
						t.Errorf("torn read: %q", v)
						return
					}
				}
			}
		}()
	}

	for round := 0; round < 20; round++ {
		for i := 0; i < keys; i++ {
			require.NoError(t, table.Update(int32(i), "updated"))
		}
		updates := make(map[int32]string, keys)
		for i := 0; i < keys; i++ {
			updates[int32(i)] = "initial"
		}
		require.Equal(t, keys, table.BatchUpdate(updates))
	}
	close(done)
}
