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
	"strings"
)

// Stats is a consistent snapshot of table health, taken under the read lock.
type Stats struct {
	Capacity   int     // fixed slot count
	Live       int     // occupied slots
	Tombstones int     // logically deleted slots
	LoadFactor float64 // Live / Capacity
	HashSeed   uint32  // per-segment seed
	AvgProbe   float64 // average probe count per occupied slot
	MaxProbe   int     // worst probe count over all occupied slots
}

// Stats recomputes probe-distance statistics over the whole table and
// returns them with the current counters.
func (t *Table) Stats() Stats {
	t.lk.RLock()
	defer t.lk.RUnlock()

	h := t.header()
	seed := h.HashSeed()

	totalProbes := 0
	maxProbes := 0
	occupied := 0

	for i := 0; i < Capacity; i++ {
		sl := t.slot(i)
		if sl.State() != slotOccupied {
			continue
		}
		occupied++

		// The effective probe count of the slot is the smallest s+1 with
		// probeAt(hashPrimary, secondary, s) == i. The probe invariant
		// guarantees a hit within Capacity steps.
		probes := 1
		if uint32(i) != sl.hashPrimary {
			h2 := secondaryHash(seed, sl.key)
			for s := uint32(0); s < Capacity; s++ {
				if probeAt(sl.hashPrimary, h2, s) == uint32(i) {
					probes = int(s) + 1
					break
				}
			}
		}

		totalProbes += probes
		if probes > maxProbes {
			maxProbes = probes
		}
	}

	stats := Stats{
		Capacity:   Capacity,
		Live:       int(h.LiveCount()),
		Tombstones: int(h.TombCount()),
		LoadFactor: float64(h.LiveCount()) / float64(Capacity),
		HashSeed:   seed,
		MaxProbe:   maxProbes,
	}
	if occupied > 0 {
		stats.AvgProbe = float64(totalProbes) / float64(occupied)
	}
	return stats
}

// String renders the statistics report.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Hash Table Statistics ===\n")
	fmt.Fprintf(&b, "Table Size: %d\n", s.Capacity)
	fmt.Fprintf(&b, "Current Count: %d\n", s.Live)
	fmt.Fprintf(&b, "Deleted Count: %d\n", s.Tombstones)
	fmt.Fprintf(&b, "Load Factor: %g\n", s.LoadFactor)
	fmt.Fprintf(&b, "Hash Seed: %d\n", s.HashSeed)
	if s.Live > 0 {
		fmt.Fprintf(&b, "Average Probe Distance: %g\n", s.AvgProbe)
		fmt.Fprintf(&b, "Max Probe Distance: %d\n", s.MaxProbe)
	}
	return b.String()
}
