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

// Package shmstatus provides a fixed-capacity key→value table that lives in
// a POSIX shared-memory segment and is safely shared between processes.
//
// Keys are 32-bit signed integers and values are short NUL-terminated byte
// strings. The table is an open-addressed hash table with double hashing and
// lazy deletion, protected by a process-shared reader/writer lock built on
// Linux futexes. Multiple readers across threads and processes proceed in
// parallel; writers are exclusive.
//
// The first process to create the segment formats it; every later process
// attaches and waits until the creator publishes the initialized flag. The
// segment outlives any individual process and is destroyed only by an
// explicit Cleanup call.
package shmstatus
