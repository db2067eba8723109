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
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// primaryHash mixes (seed, key) with the 32-bit murmur3 finalizer and masks
// the result into table range. Every attached process computes identical
// values because the seed lives in the shared header.
func primaryHash(seed uint32, key int32) uint32 {
	k := uint32(key) ^ seed
	k ^= k >> 16
	k *= 0x85ebca6b
	k ^= k >> 13
	k *= 0xc2b2ae35
	k ^= k >> 16
	return k & capMask
}

// secondaryHash produces the probe step for (seed, key) with an independent
// mixer. The result is forced odd: an odd step against a power-of-two table
// makes the probe sequence visit every slot exactly once.
func secondaryHash(seed uint32, key int32) uint32 {
	k := uint32(key) ^ (seed + 0x9e3779b9)
	k ^= k >> 16
	k *= 0x21f0aaad
	k ^= k >> 15
	k *= 0x735a2d97
	k ^= k >> 15
	return (k & capMask) | 1
}

// probeAt returns the slot index visited at step s of key's probe sequence.
func probeAt(h1, h2, s uint32) uint32 {
	return (h1 + s*h2) & capMask
}

// newSeed draws a segment seed from the OS entropy source. The seed is set
// once by the creator and is stable for the segment's lifetime.
func newSeed() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to draw hash seed: %w", err)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
