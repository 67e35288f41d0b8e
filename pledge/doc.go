// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pledge defines the data model shared by every other package in
// this module: projects, pledges, project lifecycle state, per-project check
// status and the per-project outpoint index used to detect double-pledged
// inputs. Nothing in this package talks to disk, the network or a wallet; it
// is pure data plus the stateless rules for deriving one value from another.
package pledge
