// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package backend wires the disk layer, the wallet, the chain backend, and
// a project server into the single orchestrator that owns PledgeStore and
// project lifecycle state: Backend. Every mutation of that state happens on
// the scheduler it owns; everything outside this package only ever sees it
// through mirrored snapshots.
package backend
