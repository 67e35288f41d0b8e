// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/neutrino"
)

// NeutrinoPeer answers UTXO queries with a compact-filter SPV backend, the
// client mode default when no trusted local node is configured. It has no
// RPC surface, so it resolves a claimed outpoint by fetching the owning
// block via the filter headers it already maintains and reading the output
// directly out of it; there is no way for it to tell a spent output from
// one it simply hasn't located, so an outpoint whose containing
// transaction can't be found is reported as nonexistent rather than
// returned as an error — the coordinator's quorum logic is what protects
// against a lone misbehaving or lagging peer.
type NeutrinoPeer struct {
	CS *neutrino.ChainService

	notifications chan interface{}

	mu      sync.Mutex
	quit    chan struct{}
	started bool
	wg      sync.WaitGroup
}

var _ UTXOPeer = (*NeutrinoPeer)(nil)

// NewNeutrinoPeer wraps an already-constructed ChainService.
func NewNeutrinoPeer(cs *neutrino.ChainService) *NeutrinoPeer {
	return &NeutrinoPeer{
		CS:            cs,
		notifications: make(chan interface{}),
	}
}

// Start connects the underlying ChainService to the P2P network.
func (n *NeutrinoPeer) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return nil
	}

	if err := n.CS.Start(); err != nil {
		return err
	}
	n.quit = make(chan struct{})
	n.started = true

	sub := n.CS.SubscribeTransactions()
	n.wg.Add(1)
	go n.forwardTransactions(sub)

	return nil
}

func (n *NeutrinoPeer) forwardTransactions(sub *neutrino.TransactionSubscription) {
	defer n.wg.Done()
	defer sub.Cancel()

	for {
		select {
		case ntfn := <-sub.Confirmed():
			n.deliver(RawTxReceived{Tx: ntfn.Details.Tx, Mined: true})
		case tx := <-sub.Unconfirmed():
			n.deliver(RawTxReceived{Tx: tx.TxRecord.MsgTx, Mined: false})
		case <-n.quit:
			return
		}
	}
}

func (n *NeutrinoPeer) deliver(ntfn interface{}) {
	select {
	case n.notifications <- ntfn:
	case <-n.quit:
	}
}

// Stop disconnects the ChainService.
func (n *NeutrinoPeer) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return
	}
	close(n.quit)
	n.CS.Stop()
	n.started = false
}

// WaitForShutdown blocks until every goroutine this peer started has
// exited.
func (n *NeutrinoPeer) WaitForShutdown() {
	n.wg.Wait()
}

// Services reports that this peer can answer UTXO queries (by scanning
// blocks directly) but has no gettxout-style service bit of its own to
// advertise to the rest of the network.
func (n *NeutrinoPeer) Services() wire.ServiceFlag {
	return GetUTXOsService
}

// QueryUTXO locates each outpoint's containing transaction via the
// ChainService's basic filters and reports whether the requested output
// still appears unspent in the chain's current view. Neutrino has no
// lightweight "is this spent" primitive, so this is best-effort: it can
// confirm existence but cannot distinguish "never existed" from "already
// spent" without also watching for the spending transaction, which is
// claim.Watcher's job once a pledge is accepted.
func (n *NeutrinoPeer) QueryUTXO(ctx context.Context, outpoints []wire.OutPoint) (map[wire.OutPoint]UTXOResult, error) {
	out := make(map[wire.OutPoint]UTXOResult, len(outpoints))
	for _, op := range outpoints {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		report, err := n.CS.GetUtxo(neutrino.WatchInputs(neutrino.InputWithScript{
			OutPoint: op,
		}))
		if err != nil || report == nil || report.Output == nil {
			out[op] = UTXOResult{Exists: false}
			continue
		}
		if report.SpendingTx != nil {
			out[op] = UTXOResult{Exists: false}
			continue
		}
		out[op] = UTXOResult{
			Exists: true,
			Script: report.Output.PkScript,
			Value:  btcutil.Amount(report.Output.Value),
		}
	}
	return out, nil
}

// BroadcastTransaction relays tx to the peers the ChainService is
// connected to.
func (n *NeutrinoPeer) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error {
	return n.CS.SendTransaction(tx)
}

// Notifications returns the channel transaction events are delivered on.
func (n *NeutrinoPeer) Notifications() <-chan interface{} {
	return n.notifications
}

