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
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zykowal/shmstatus"
)

func TestAttachSeesCreatorState(t *testing.T) {
	creator := newTestTable(t, shmstatus.RWLockBackend)
	name := testSegmentName(t)

	require.NoError(t, creator.Add(7001, "hello"))

	// A second handle is an independent mapping of the same object, which
	// is exactly what a separate process gets.
	attacher, err := shmstatus.Open(shmstatus.Options{Name: name})
	require.NoError(t, err)
	defer attacher.Close()

	assert.False(t, attacher.Creator())
	assert.Equal(t, "hello", attacher.Get(7001))
	assert.Equal(t, 1, attacher.Count())

	// Writes flow the other way too, after the next lock acquisition.
	require.NoError(t, attacher.Upsert(7002, "world"))
	assert.Equal(t, "world", creator.Get(7002))

	// Both handles observe the same seed: they share one header.
	assert.Equal(t, creator.Stats().HashSeed, attacher.Stats().HashSeed)
}

func TestOpenRaceSingleCreator(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("shared memory tables require linux")
	}
	name := testSegmentName(t)
	t.Cleanup(func() { _ = shmstatus.Cleanup(name) })

	// Many concurrent opens of a fresh name: exactly one must win the
	// exclusive create; everyone must end up attached and consistent.
	const openers = 8
	tables := make([]*shmstatus.Table, openers)
	var wg sync.WaitGroup
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table, err := shmstatus.Open(shmstatus.Options{Name: name})
			if err != nil {
				t.Errorf("open %d: %v", i, err)
				return
			}
			tables[i] = table
		}(i)
	}
	wg.Wait()

	creators := 0
	for _, table := range tables {
		require.NotNil(t, table)
		defer table.Close()
		if table.Creator() {
			creators++
		}
	}
	assert.Equal(t, 1, creators, "exactly one process may format the segment")

	// All handles share one table.
	require.NoError(t, tables[0].Add(1, "shared"))
	for i, table := range tables {
		assert.Equal(t, "shared", table.Get(1), "handle %d", i)
	}
}

func TestBackendMismatchRejected(t *testing.T) {
	_ = newTestTable(t, shmstatus.RWLockBackend)
	name := testSegmentName(t)

	_, err := shmstatus.Open(shmstatus.Options{Name: name, Backend: shmstatus.MutexBackend})
	require.Error(t, err)
	assert.True(t, shmstatus.Error.Has(err),
		"backend mismatch must surface as a bootstrap failure")
}

func TestCleanupIdempotent(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)
	name := testSegmentName(t)

	require.True(t, shmstatus.SegmentExists(name))
	table.Close()

	require.NoError(t, shmstatus.Cleanup(name))
	assert.False(t, shmstatus.SegmentExists(name))

	// Removing an absent segment is not an error.
	require.NoError(t, shmstatus.Cleanup(name))
}

func TestReopenAfterCleanupFormatsFresh(t *testing.T) {
	table := newTestTable(t, shmstatus.RWLockBackend)
	name := testSegmentName(t)

	require.NoError(t, table.Add(1, "old"))
	table.Close()
	require.NoError(t, shmstatus.Cleanup(name))

	fresh, err := shmstatus.Open(shmstatus.Options{Name: name})
	require.NoError(t, err)
	defer func() {
		fresh.Close()
		_ = shmstatus.Cleanup(name)
	}()

	assert.True(t, fresh.Creator())
	assert.Equal(t, 0, fresh.Count())
	assert.False(t, fresh.Contains(1))
}
