// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/scheduler"
	"github.com/lighthouse-io/lighthoused/verify"
	"golang.org/x/sync/errgroup"
)

// checkProject runs candidates through the fast sanity check and the
// UTXO-backed verifier, then reconciles the results into PledgeStore's
// open-set via reconcileOpenSet. checkingAll marks a full requery, which
// additionally drops any candidate that used to verify but no longer does.
func (b *Backend) checkProject(ctx context.Context, project *pledge.Project, candidates []*pledge.Pledge, checkingAll bool) {
	scheduler.RunOnThread(b.sched, func() struct{} {
		b.store.SetStatus(project.ID, pledge.InProgressStatus())
		return struct{}{}
	})

	if dup := b.findDuplicateOutpoint(project.ID, candidates); dup != nil {
		scheduler.RunOnThread(b.sched, func() struct{} {
			b.store.SetStatus(project.ID, pledge.ErrorStatus(&pledge.VerifyError{
				Kind:     pledge.DuplicatedOutPoint,
				Outpoint: dup,
			}))
			return struct{}{}
		})
		return
	}

	var (
		mu       sync.Mutex
		verified []*pledge.Pledge
	)
	var g errgroup.Group
	for _, p := range candidates {
		p := p
		g.Go(func() error {
			if err := verify.FastSanityCheck(b.mode, p); err != nil {
				log.Debugf("project %v: pledge failed fast sanity check: %v", project.ID, err)
				return nil
			}
			if err := verify.Verify(ctx, b.coordinator, project, p); err != nil {
				log.Debugf("project %v: pledge failed verification: %v", project.ID, err)
				return nil
			}
			mu.Lock()
			verified = append(verified, p)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	scheduler.RunOnThread(b.sched, func() struct{} {
		b.reconcileOpenSet(ctx, project.ID, candidates, verified, checkingAll)
		b.store.ClearStatus(project.ID)
		return struct{}{}
	})
}

// reconcileOpenSet is the sync algorithm: it applies the minimal set of
// additions and removals to PledgeStore's open-set needed to go from its
// current contents to what this round found, so mirrored observers see
// only true deltas rather than a wholesale replacement. Must run on the
// engine thread.
func (b *Backend) reconcileOpenSet(ctx context.Context, project pledge.ProjectID,
	tested, verified []*pledge.Pledge, checkingAll bool) {

	b.sched.AssertOnThread()

	currentOpen := b.store.Open(project)

	verifiedSet := make(map[pledge.PledgeID]*pledge.Pledge, len(verified))
	for _, p := range verified {
		id, err := p.ID()
		if err != nil {
			continue
		}
		verifiedSet[id] = p
	}

	for id, p := range verifiedSet {
		if _, already := currentOpen[id]; already {
			continue
		}
		if b.shouldDropLocally(ctx, project, p, id) {
			continue
		}
		b.store.AddOpen(project, id, p)
	}

	if !checkingAll {
		return
	}

	proj := b.projects[project]
	claimTx := b.claimTx[project]

	for _, p := range tested {
		id, err := p.ID()
		if err != nil {
			continue
		}
		if _, stillVerified := verifiedSet[id]; stillVerified {
			continue
		}
		if _, wasOpen := currentOpen[id]; !wasOpen {
			continue
		}

		if claimTx != nil && (proj == nil || !proj.HasServer()) && inputsSubsetOfTx(p.MainTx(), claimTx) {
			b.store.RemoveOpen(project, id)
			b.store.AddClaimed(project, id, p)
			continue
		}
		b.store.RemoveOpen(project, id)
	}
}

// shouldDropLocally applies the client-mode-only filtering §4.7 step 1
// calls out: drop a pledge the wallet knows to be revoked, and drop a
// pledge that is a scrubbed duplicate of one already open locally.
// Mirrors server.Client.shouldKeep's rules for the P2P verification path,
// which never goes through server.Client at all.
func (b *Backend) shouldDropLocally(ctx context.Context, project pledge.ProjectID, p *pledge.Pledge, id pledge.PledgeID) bool {
	if b.mode != ModeClient {
		return false
	}

	if p.OrigHash.IsSome() {
		orig := p.OrigHash.UnwrapOr(pledge.PledgeID{})
		if _, known := b.store.Open(project)[orig]; known {
			return true
		}
	}

	if b.wallet != nil {
		revoked, err := b.wallet.WasPledgeRevoked(ctx, id)
		if err == nil && revoked {
			return true
		}
	}
	return false
}

type outpointIndexResult struct {
	idx *pledge.OutpointIndex
	err error
}

// findDuplicateOutpoint reports the first outpoint, if any, that two of
// project's accepted pledges would both spend once candidates are admitted.
// It seeds the check from project's currently open set (skipping any
// candidate already open there, which happens during a full requery, where
// candidates is that same open set being rechecked) so an incrementally
// verified pledge is always compared against what this project has already
// accepted, not just against the other pledges in its own round. Mirrors
// getAllPledgedOutPointsFor in the original.
func (b *Backend) findDuplicateOutpoint(project pledge.ProjectID, candidates []*pledge.Pledge) *wire.OutPoint {
	candidateIDs := make(map[pledge.PledgeID]struct{}, len(candidates))
	for _, p := range candidates {
		if id, err := p.ID(); err == nil {
			candidateIDs[id] = struct{}{}
		}
	}

	built := scheduler.RunOnThread(b.sched, func() outpointIndexResult {
		seed := make(map[pledge.PledgeID]*pledge.Pledge)
		for id, p := range b.store.Open(project) {
			if _, excluded := candidateIDs[id]; excluded {
				continue
			}
			seed[id] = p
		}
		idx, err := pledge.BuildOutpointIndex(seed)
		return outpointIndexResult{idx, err}
	})
	if built.err != nil {
		// The open set itself already violates invariant 2, which
		// reconcileOpenSet never allows; nothing to compare candidates
		// against.
		return nil
	}
	idx := built.idx

	for _, p := range candidates {
		id, err := p.ID()
		if err != nil {
			continue
		}
		if err := idx.Add(id, p.MainTx()); err != nil {
			if verr, ok := err.(*pledge.VerifyError); ok {
				return verr.Outpoint
			}
		}
	}
	return nil
}

func inputsSubsetOfTx(tx *wire.MsgTx, superset *wire.MsgTx) bool {
	if len(tx.TxIn) == 0 {
		return false
	}
	spent := make(map[wire.OutPoint]struct{}, len(superset.TxIn))
	for _, in := range superset.TxIn {
		spent[in.PreviousOutPoint] = struct{}{}
	}
	for _, in := range tx.TxIn {
		if _, ok := spent[in.PreviousOutPoint]; !ok {
			return false
		}
	}
	return true
}

// SubmitPledge is the server-mode submission pipeline: fast sanity check
// synchronously, broadcast any dependency transactions with a per-tx
// deadline, verify against the UTXO oracle, then persist and register the
// pledge. Unlike the original's asynchronous future, this runs to
// completion and reports its outcome synchronously, matching the blocking
// style the rest of this codebase uses for anything that eventually must
// produce a single answer (e.g. server.Client.FetchStatus); a caller that
// wants it off the calling goroutine runs it in one of its own.
func (b *Backend) SubmitPledge(ctx context.Context, project *pledge.Project, p *pledge.Pledge) (*pledge.Pledge, error) {
	if err := verify.FastSanityCheck(b.mode, p); err != nil {
		return nil, err
	}

	if len(p.Dependencies) > 0 {
		depCtx, cancel := context.WithTimeout(ctx, b.cfg.DependencyBroadcastDeadline)
		defer cancel()
		for i, dep := range p.Dependencies {
			if err := b.broadcastDependency(depCtx, dep); err != nil {
				return nil, &pledge.VerifyError{
					Kind: pledge.TransportError,
					Err:  fmt.Errorf("broadcasting dependency %d: %w", i, err),
				}
			}
		}
	}

	if err := verify.Verify(ctx, b.coordinator, project, p); err != nil {
		return nil, err
	}

	id, err := p.ID()
	if err != nil {
		return nil, &pledge.VerifyError{Kind: pledge.BadFormat, Err: err}
	}

	if b.disk != nil {
		if err := b.disk.SavePledge(project.ID, p); err != nil {
			return nil, &pledge.VerifyError{Kind: pledge.IOError, Err: err}
		}
	}

	verifyErr := scheduler.RunOnThread(b.sched, func() error {
		if _, exists := b.store.Open(project.ID)[id]; exists {
			return nil
		}
		if dup := b.findDuplicateOutpoint(project.ID, []*pledge.Pledge{p}); dup != nil {
			return &pledge.VerifyError{Kind: pledge.DuplicatedOutPoint, Outpoint: dup}
		}
		b.store.AddOpen(project.ID, id, p)
		return nil
	})
	if verifyErr != nil {
		return nil, verifyErr
	}

	return p, nil
}

func (b *Backend) broadcastDependency(ctx context.Context, tx *wire.MsgTx) error {
	if b.peers == nil {
		return fmt.Errorf("no chain backend configured for broadcast")
	}
	return b.peers.Broadcast(ctx, tx)
}
