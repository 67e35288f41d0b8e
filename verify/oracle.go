// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package verify

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// UTXOInfo is what an Oracle reports about a single outpoint: whether it is
// currently unspent, and if so, the script and value of the output it
// references.
type UTXOInfo struct {
	Exists bool
	Script []byte
	Value  btcutil.Amount
}

// Oracle answers batched UTXO-existence queries. utxo.Coordinator is the
// production implementation, fanning a single batched query out to the
// P2P network's GetUTXOs-capable peers and reconciling their answers; tests
// supply a canned map instead.
type Oracle interface {
	Query(ctx context.Context, outpoints []wire.OutPoint) (map[wire.OutPoint]UTXOInfo, error)
}
