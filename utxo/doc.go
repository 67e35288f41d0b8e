// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package utxo implements Coordinator, the consistent-oracle-replicated
// UTXO query path every pledge check goes through before it ever reaches
// verify.Verify.
package utxo
