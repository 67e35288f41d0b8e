// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledgewallet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/lighthouse-io/lighthoused/pledge"
)

// Fake is an in-memory PledgingWallet used by tests elsewhere in this
// module. It performs no real signing; CreatePledge produces a
// syntactically valid, unsigned-but-tagged PSBT so that callers exercising
// the verification and watching pipelines have something to work with.
type Fake struct {
	mu sync.Mutex

	Params_ *chaincfg.Params
	Next    wire.OutPoint // next input CreatePledge will mint

	revoked   map[pledge.PledgeID]bool
	txs       map[chainhash.Hash]*wtxmgr.TxRecord
	pledgeFns []func(*pledge.Pledge)
	revokeFns []func(pledge.PledgeID)
}

// NewFake returns a ready-to-use Fake wallet for the given network.
func NewFake(params *chaincfg.Params) *Fake {
	return &Fake{
		Params_: params,
		revoked: make(map[pledge.PledgeID]bool),
		txs:     make(map[chainhash.Hash]*wtxmgr.TxRecord),
	}
}

func (f *Fake) Params() *chaincfg.Params { return f.Params_ }

func (f *Fake) CreatePledge(_ context.Context, project *pledge.Project,
	value btcutil.Amount) (*pledge.Pledge, error) {

	f.mu.Lock()
	in := f.Next
	f.Next.Index++
	f.mu.Unlock()

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&in, nil, nil))
	for _, out := range project.Outputs {
		tx.AddTxOut(out)
	}

	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("building pledge packet: %w", err)
	}
	pkt.Inputs[0].WitnessUtxo = &wire.TxOut{Value: int64(value)}
	pkt.Inputs[0].SighashType = PledgeSigHashType

	return &pledge.Pledge{ProjectID: project.ID, Main: pkt}, nil
}

func (f *Fake) AddWatchedScripts(_ [][]byte) error { return nil }

func (f *Fake) AddOnPledgeHandler(fn func(*pledge.Pledge)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pledgeFns = append(f.pledgeFns, fn)
}

func (f *Fake) AddOnRevokeHandler(fn func(pledge.PledgeID)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeFns = append(f.revokeFns, fn)
}

// Revoke marks id as revoked and fires any registered revoke handlers,
// simulating the wallet noticing a watched outpoint being spent elsewhere.
func (f *Fake) Revoke(id pledge.PledgeID) {
	f.mu.Lock()
	f.revoked[id] = true
	fns := append([]func(pledge.PledgeID){}, f.revokeFns...)
	f.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}

func (f *Fake) WasPledgeRevoked(_ context.Context, id pledge.PledgeID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[id], nil
}

func (f *Fake) Transactions() ([]*wtxmgr.TxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*wtxmgr.TxRecord, 0, len(f.txs))
	for _, rec := range f.txs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Received.After(out[j].Received)
	})
	return out, nil
}

func (f *Fake) GetTransaction(hash chainhash.Hash) (*wtxmgr.TxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.txs[hash]
	if !ok {
		return nil, fmt.Errorf("no such transaction: %v", hash)
	}
	return rec, nil
}

func (f *Fake) PublishTransaction(_ context.Context, tx *wire.MsgTx) error {
	rec, err := wtxmgr.NewTxRecordFromMsgTx(tx, time.Now())
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.txs[rec.Hash] = rec
	f.mu.Unlock()
	return nil
}
