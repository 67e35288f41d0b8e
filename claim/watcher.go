// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package claim

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/scheduler"
	"github.com/lighthouse-io/lighthoused/store"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultMinBroadcastPeers is how many peers must report a transaction
// before Watcher treats a PENDING confidence as propagated, matching
// utxo.DefaultMinPeers.
const DefaultMinBroadcastPeers = 2

// Confidence is the propagation state the wallet or chain backend reports
// for a transaction at the moment it's handed to Watcher. It can move in
// either direction over a transaction's lifetime: PENDING to BUILDING to
// DEAD on a reorg, or straight to DEAD on a double-spend.
type Confidence int

const (
	// Unknown covers transitional wallet states Watcher has no opinion
	// about; handling it is a no-op.
	Unknown Confidence = iota
	// Pending means the transaction is unconfirmed. Whether that counts
	// as "propagated" depends on how many peers have relayed it; see
	// Watcher.HandleTx.
	Pending
	// Building means the transaction is mined into the best chain.
	Building
	// Dead means the transaction was evicted from the mempool, conflicts
	// with a transaction now confirmed, or was reorged out without being
	// remined.
	Dead
)

func (c Confidence) String() string {
	switch c {
	case Pending:
		return "PENDING"
	case Building:
		return "BUILDING"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// ProjectMatcher asks the disk layer whether a transaction's outputs match
// some known project's goal outputs. It's the collaborator Watcher needs
// from the component that actually owns project files and indexes them by
// output script, kept as a narrow interface so claim has no import-time
// dependency on that component.
type ProjectMatcher interface {
	ProjectForOutputs(outs []*wire.TxOut) (*pledge.Project, bool)
}

// StateSetter persists a project's lifecycle state. Owned by the disk
// layer (per spec.md's ProjectStateInfo comment); Watcher only mutates
// state through this seam.
type StateSetter interface {
	SetProjectState(id pledge.ProjectID, info pledge.ProjectStateInfo)
}

// ServerRefresher triggers a ServerClient status refresh. Watcher defers
// to it instead of mutating the claimed-set itself whenever a project
// trusts a server over local observation.
type ServerRefresher interface {
	RefreshProjectStatusFromServer(ctx context.Context, project *pledge.Project) error
}

// Watcher is the ClaimWatcher: it recognises transactions whose outputs
// match a known project's goal, tracks their confidence, and transitions
// the project between OPEN, CLAIMED and ERROR accordingly. Every method
// must run on the engine thread, matching the rest of this codebase's rule
// that wallet and chain callbacks are scheduled there before touching
// pledge state.
type Watcher struct {
	sched *scheduler.Scheduler
	store *store.Store

	matcher ProjectMatcher
	state   StateSetter
	server  ServerRefresher

	// MinBroadcastPeers is the min_broadcast threshold from the
	// confidence table: a PENDING transaction reported by fewer peers
	// than this is left pending.
	MinBroadcastPeers int

	// OnClaimed, if set, is called after a project is promoted to
	// CLAIMED directly (no server), with the claim transaction that
	// triggered it. The orchestrator uses this to remember the claim
	// transaction for later sync-algorithm reconciliation.
	OnClaimed func(pledge.ProjectID, *wire.MsgTx)
}

// New returns a Watcher. server may be nil if no project ever carries a
// payment URL (pure P2P deployments); with server nil, a propagated or
// mined claim for a project that has a payment URL is ignored and HandleTx
// returns nil.
func New(sched *scheduler.Scheduler, st *store.Store, matcher ProjectMatcher, state StateSetter, server ServerRefresher) *Watcher {
	return &Watcher{
		sched:             sched,
		store:             st,
		matcher:           matcher,
		state:             state,
		server:            server,
		MinBroadcastPeers: DefaultMinBroadcastPeers,
	}
}

// HandleTx is the single entry point, fed from wallet coin-receipt
// notifications and from transaction-confidence-change notifications
// alike — the confidence table is symmetric, so a transaction sliding
// from BUILDING back to DEAD on a reorg is handled by the same code path
// as one that just propagated.
func (w *Watcher) HandleTx(ctx context.Context, tx *wire.MsgTx, confidence Confidence, broadcastPeers int) error {
	w.sched.AssertOnThread()

	project, ok := w.matcher.ProjectForOutputs(tx.TxOut)
	if !ok {
		return nil
	}

	switch confidence {
	case Pending:
		if broadcastPeers < w.MinBroadcastPeers {
			log.Debugf("project %v: claim candidate %v pending with %d/%d "+
				"broadcast peers, waiting", project.ID, tx.TxHash(),
				broadcastPeers, w.MinBroadcastPeers)
			return nil
		}
		log.Debugf("project %v: claim candidate %v propagated, treating as mined",
			project.ID, tx.TxHash())
	case Building:
		log.Debugf("project %v: claim candidate %v mined", project.ID, tx.TxHash())
	case Dead:
		return w.markDead(project)
	case Unknown:
		return nil
	default:
		return nil
	}

	return w.promote(ctx, project, tx)
}

// promote is the "treat as propagated/mined; continue below" branch of the
// confidence table: delegate to a server refresh if the project trusts
// one, otherwise move the matching open pledges into the claimed-set
// directly and mark the project CLAIMED.
func (w *Watcher) promote(ctx context.Context, project *pledge.Project, tx *wire.MsgTx) error {
	if project.HasServer() {
		if w.server == nil {
			return nil
		}
		return w.server.RefreshProjectStatusFromServer(ctx, project)
	}

	moved := w.store.MoveOpenToClaimed(project.ID, tx)
	txHash := tx.TxHash()
	w.state.SetProjectState(project.ID, pledge.ProjectStateInfo{
		State:     pledge.StateClaimed,
		ClaimedBy: fn.Some(txHash),
	})
	log.Infof("project %v claimed by tx %v, %d pledge(s) moved to claimed-set",
		project.ID, txHash, len(moved))
	if w.OnClaimed != nil {
		w.OnClaimed(project.ID, tx)
	}
	return nil
}

// markDead handles the DEAD row: the claim transaction is gone for good
// (this round), so the project reverts to ERROR and its claimed-set is
// returned to open — they're no longer redeemed by anything, but they
// haven't been individually invalidated either, and deserve another
// verification pass rather than silent disappearance.
func (w *Watcher) markDead(project *pledge.Project) error {
	moved := w.store.MoveClaimedToOpen(project.ID)
	w.state.SetProjectState(project.ID, pledge.ProjectStateInfo{State: pledge.StateError})
	log.Warnf("project %v claim tx went DEAD, reverted to ERROR, %d pledge(s) moved back to open",
		project.ID, len(moved))
	return nil
}
