// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package claim implements Watcher, the confidence-driven detector that
// promotes a project's pledges into its claimed-set once their claim
// transaction propagates or confirms, and Assembler, which builds that
// claim transaction in the first place.
package claim
