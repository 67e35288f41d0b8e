// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package scheduler provides the single-goroutine actor thread every other
// backend component runs its mutable state on. All pledge-store and
// check-status mutations happen on this one thread; cross-thread callers
// submit closures rather than taking locks.
package scheduler
