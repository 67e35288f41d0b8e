// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store holds the engine's authoritative view of every project's
// open and claimed pledge sets and check statuses. All mutation happens on
// the scheduler's engine thread; other threads see changes only through
// mirrored snapshots plus a stream of diffs delivered on an executor of
// their choosing.
package store
