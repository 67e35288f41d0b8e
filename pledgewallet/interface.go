// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledgewallet

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wtxmgr"
	"github.com/lighthouse-io/lighthoused/pledge"
)

// PledgingWallet is the subset of a full btcwallet-style wallet that the
// backend depends on. It owns private key material, coin selection, and
// chain synchronization; none of that is in scope here. What is in scope is
// the narrow contract the backend needs: create a pledge's main transaction,
// watch previously-made pledges for revocation, and surface the wallet's own
// transaction history so the claim watcher can recognize a claim as our own.
type PledgingWallet interface {
	// Params returns the network parameters the wallet was opened with.
	Params() *chaincfg.Params

	// CreatePledge builds and signs a new pledge against project, using
	// value worth of the wallet's own coins as the pledge's sole input
	// to start with. The resulting main transaction is signed with a
	// sighash flag that permits the backend (or a project server) to
	// append further pledgers' inputs later without invalidating this
	// signature.
	CreatePledge(ctx context.Context, project *pledge.Project,
		value btcutil.Amount) (*pledge.Pledge, error)

	// AddWatchedScripts registers output scripts the wallet should
	// notify about when spent, used to detect that a pledge's input has
	// been revoked (spent outside of any known claim transaction).
	AddWatchedScripts(scripts [][]byte) error

	// AddOnPledgeHandler registers a callback invoked whenever the
	// wallet learns of a new locally-created pledge, e.g. one made
	// through a separate UI session sharing the same wallet.
	AddOnPledgeHandler(fn func(*pledge.Pledge))

	// AddOnRevokeHandler registers a callback invoked when a watched
	// pledge's input is spent by a transaction other than the project's
	// claim transaction.
	AddOnRevokeHandler(fn func(pledge.PledgeID))

	// WasPledgeRevoked reports whether the given pledge's input has
	// already been spent by something other than a claim transaction,
	// for pledges that were loaded from disk rather than learned of via
	// AddOnRevokeHandler.
	WasPledgeRevoked(ctx context.Context, id pledge.PledgeID) (bool, error)

	// Transactions returns the wallet's known transaction history,
	// newest first.
	Transactions() ([]*wtxmgr.TxRecord, error)

	// GetTransaction returns a single transaction record by hash, or an
	// error if the wallet has no record of it.
	GetTransaction(hash chainhash.Hash) (*wtxmgr.TxRecord, error)

	// PublishTransaction broadcasts tx to the network and records it in
	// the wallet's own transaction history.
	PublishTransaction(ctx context.Context, tx *wire.MsgTx) error
}
