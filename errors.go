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
	"errors"

	"github.com/zeebo/errs"
)

// Error is the class of all fatal bootstrap errors: segment open, truncate,
// or map failures. The table's invariants cannot hold without a mapped
// segment, so callers must not retry table operations after seeing one.
var Error = errs.Class("shmstatus")

// Table operation results. These are the stable, non-fatal outcomes of the
// public operations; everything else surfaced by Open is an Error-class
// bootstrap failure.
var (
	// ErrNotFound reports that the key is absent from the table.
	ErrNotFound = errors.New("key not found")

	// ErrNoSpace reports that the value is too long, the table is at its
	// live-entry ceiling, or a rehash could not place every live entry.
	ErrNoSpace = errors.New("no space")

	// ErrDuplicate reports an Add of a key that is already present.
	ErrDuplicate = errors.New("duplicate key")
)

// Integer return codes shared with every other attacher of the segment,
// regardless of implementation language.
const (
	CodeOK        int32 = 0
	CodeNotFound  int32 = -1
	CodeNoSpace   int32 = -2
	CodeDuplicate int32 = -3
)

// ReturnCode maps an operation result to the stable integer surface.
// A nil error is CodeOK; unknown errors (bootstrap failures) map to
// CodeNoSpace only because no better slot exists in the legacy surface —
// callers should check Error.Has(err) first.
func ReturnCode(err error) int32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDuplicate):
		return CodeDuplicate
	default:
		return CodeNoSpace
	}
}
