// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package verify validates a pledge against the project it claims to
// contribute to and a UTXO snapshot of its inputs. It is stateless: every
// call receives everything it needs and holds nothing between calls.
package verify
