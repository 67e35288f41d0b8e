// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// GetUTXOsService is the service bit a peer must advertise for its answers
// to be usable by utxo.Coordinator. Real Bitcoin Core nodes with the
// (long-deprecated) getutxos extension advertise NODE_GETUTXOS; most
// deployments in practice answer via gettxout over RPC instead, which is
// what BtcdPeer below actually issues. The flag stays peer-capability
// shaped so each UTXOPeer reports for itself whether it can answer;
// NeutrinoPeer, which answers by scanning blocks, advertises it too.
const GetUTXOsService wire.ServiceFlag = 1 << 61

// minRequiredVersion is a protocol version floor for UTXO-query peers.
// Nothing reads it: PeerSet selects peers by service flag alone.
var minRequiredVersion = semver{major: 70002, minor: 0, patch: 0}

// UTXOPeer is the chain backend's entire surface: whether a given outpoint
// is currently unspent, and a way to broadcast the transaction the system
// eventually assembles. Everything else a full node chain.Interface would
// expose (rescans, filtered blocks, wallet address watching) is out of
// scope, since this backend never owns keys or a coin-selection wallet.
type UTXOPeer interface {
	// Start connects to the backing chain source.
	Start() error

	// Stop tears down the connection.
	Stop()

	// WaitForShutdown blocks until all internal goroutines have exited.
	WaitForShutdown()

	// Services reports the peer's advertised service flags.
	Services() wire.ServiceFlag

	// QueryUTXO reports the current UTXO state of a set of outpoints. A
	// missing key in the result means the peer could not answer at all
	// (network error), not that the output is spent: spent outputs are
	// reported with Exists=false.
	QueryUTXO(ctx context.Context, outpoints []wire.OutPoint) (map[wire.OutPoint]UTXOResult, error)

	// BroadcastTransaction relays a fully-signed transaction to the
	// network.
	BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error

	// Notifications returns the channel new-transaction and new-block
	// events are delivered on.
	Notifications() <-chan interface{}
}

// UTXOResult is a single outpoint's answer from a UTXOPeer.
type UTXOResult struct {
	Exists bool
	Script []byte
	Value  btcutil.Amount
}

// isCurrentDelta is the longest we'll consider a peer's best block time
// before treating it as not yet caught up to the tip.
const isCurrentDelta = 2 * time.Hour

// Notification types delivered over a UTXOPeer's Notifications channel.
// The backend hands each RawTxReceived to claim.Watcher, as BUILDING when
// Mined is set and PENDING otherwise, and treats BlockConnected as a new
// chain tip that schedules requeries.
type (
	// ClientConnected signals the peer connection is up.
	ClientConnected struct{}

	// BlockConnected is a notification for a newly attached block.
	BlockConnected struct {
		Hash   chainhash.Hash
		Height int32
		Time   time.Time
	}

	// RawTxReceived signals a new transaction was seen, either freshly
	// broadcast to the mempool or freshly mined. Mined is false for the
	// ZMQ/mempool fast path and true once it's confirmed a block carries
	// it.
	RawTxReceived struct {
		Tx    *wire.MsgTx
		Mined bool
	}
)

// BackEnds returns the names of the chain backends this package can
// construct a UTXOPeer for.
func BackEnds() []string {
	return []string{"btcd", "neutrino"}
}
