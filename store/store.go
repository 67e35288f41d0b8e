// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/scheduler"
)

// Store holds, per project, the open-pledge set, the claimed-pledge set,
// and the check status. Every method other than the mirror_* registration
// helpers must be called from the engine thread; each asserts that on
// entry.
type Store struct {
	sched *scheduler.Scheduler

	open    map[pledge.ProjectID]map[pledge.PledgeID]*pledge.Pledge
	claimed map[pledge.ProjectID]map[pledge.PledgeID]*pledge.Pledge
	status  map[pledge.ProjectID]pledge.CheckStatus

	openObservers    map[pledge.ProjectID][]*openObserver
	claimedObservers map[pledge.ProjectID][]*claimedObserver
	statusObservers  []*statusObserver
}

// New returns an empty Store bound to sched. sched need not be started yet.
func New(sched *scheduler.Scheduler) *Store {
	return &Store{
		sched:            sched,
		open:             make(map[pledge.ProjectID]map[pledge.PledgeID]*pledge.Pledge),
		claimed:          make(map[pledge.ProjectID]map[pledge.PledgeID]*pledge.Pledge),
		status:           make(map[pledge.ProjectID]pledge.CheckStatus),
		openObservers:    make(map[pledge.ProjectID][]*openObserver),
		claimedObservers: make(map[pledge.ProjectID][]*claimedObserver),
	}
}

// Open returns project's open-pledge set, creating an empty one if it
// doesn't exist yet.
func (s *Store) Open(project pledge.ProjectID) map[pledge.PledgeID]*pledge.Pledge {
	s.sched.AssertOnThread()
	set, ok := s.open[project]
	if !ok {
		set = make(map[pledge.PledgeID]*pledge.Pledge)
		s.open[project] = set
	}
	return set
}

// Claimed returns project's claimed-pledge set, creating an empty one if it
// doesn't exist yet.
func (s *Store) Claimed(project pledge.ProjectID) map[pledge.PledgeID]*pledge.Pledge {
	s.sched.AssertOnThread()
	set, ok := s.claimed[project]
	if !ok {
		set = make(map[pledge.PledgeID]*pledge.Pledge)
		s.claimed[project] = set
	}
	return set
}

// AddOpen adds p to project's open-pledge set and notifies mirror_open
// observers. A pledge already present is replaced without firing a
// spurious removal-then-add pair.
func (s *Store) AddOpen(project pledge.ProjectID, id pledge.PledgeID, p *pledge.Pledge) {
	s.sched.AssertOnThread()
	s.Open(project)[id] = p
	s.notifyOpen(project, OpenChange{Added: true, Pledge: p})
}

// RemoveOpen removes a pledge from project's open-pledge set if present.
func (s *Store) RemoveOpen(project pledge.ProjectID, id pledge.PledgeID) {
	s.sched.AssertOnThread()
	set := s.Open(project)
	p, ok := set[id]
	if !ok {
		return
	}
	delete(set, id)
	s.notifyOpen(project, OpenChange{Added: false, Pledge: p})
}

// RemoveClaimed removes a pledge from project's claimed-pledge set if
// present, used when the disk layer reports a pledge file gone and the
// wallet no longer vouches for it.
func (s *Store) RemoveClaimed(project pledge.ProjectID, id pledge.PledgeID) {
	s.sched.AssertOnThread()
	set := s.Claimed(project)
	p, ok := set[id]
	if !ok {
		return
	}
	delete(set, id)
	s.notifyClaimed(project, ClaimedChange{Added: false, Pledge: p})
}

// AddClaimed adds p directly to project's claimed-pledge set, used when a
// claim is first observed for a pledge this engine never saw as open (e.g.
// a server-originated pledge that was claimed before we learned of it).
func (s *Store) AddClaimed(project pledge.ProjectID, id pledge.PledgeID, p *pledge.Pledge) {
	s.sched.AssertOnThread()
	s.Claimed(project)[id] = p
	s.notifyClaimed(project, ClaimedChange{Added: true, Pledge: p})
}

// MoveOpenToClaimed moves every open pledge of project whose main
// transaction's inputs are all present among claimTx's inputs from the
// open-set into the claimed-set, and returns their ids. A pledge only
// partially represented in claimTx (some but not all of its inputs) is left
// untouched — the claim transaction doesn't actually redeem it.
func (s *Store) MoveOpenToClaimed(project pledge.ProjectID, claimTx *wire.MsgTx) []pledge.PledgeID {
	s.sched.AssertOnThread()

	spent := make(map[wire.OutPoint]struct{}, len(claimTx.TxIn))
	for _, in := range claimTx.TxIn {
		spent[in.PreviousOutPoint] = struct{}{}
	}

	openSet := s.Open(project)
	var moved []pledge.PledgeID
	for id, p := range openSet {
		if !allInputsIn(p.MainTx(), spent) {
			continue
		}
		delete(openSet, id)
		s.notifyOpen(project, OpenChange{Added: false, Pledge: p})

		s.Claimed(project)[id] = p
		s.notifyClaimed(project, ClaimedChange{Added: true, Pledge: p})

		moved = append(moved, id)
	}
	return moved
}

// MoveClaimedToOpen moves every pledge in project's claimed-set back into
// the open-set, used when a previously-observed claim transaction goes
// DEAD (reorg, double-spend): those pledges are no longer redeemed by
// anything, so they become claimable again and deserve re-verification
// rather than simply vanishing from every mirror.
func (s *Store) MoveClaimedToOpen(project pledge.ProjectID) []pledge.PledgeID {
	s.sched.AssertOnThread()

	claimedSet := s.Claimed(project)
	var moved []pledge.PledgeID
	for id, p := range claimedSet {
		delete(claimedSet, id)
		s.notifyClaimed(project, ClaimedChange{Added: false, Pledge: p})

		s.Open(project)[id] = p
		s.notifyOpen(project, OpenChange{Added: true, Pledge: p})

		moved = append(moved, id)
	}
	return moved
}

func allInputsIn(tx *wire.MsgTx, spent map[wire.OutPoint]struct{}) bool {
	if len(tx.TxIn) == 0 {
		return false
	}
	for _, in := range tx.TxIn {
		if _, ok := spent[in.PreviousOutPoint]; !ok {
			return false
		}
	}
	return true
}

// Status returns project's current check status and whether one exists. A
// project with no outstanding or recently-failed check has no entry at all.
func (s *Store) Status(project pledge.ProjectID) (pledge.CheckStatus, bool) {
	s.sched.AssertOnThread()
	st, ok := s.status[project]
	return st, ok
}

// SetStatus records project's check status, replacing any prior one.
func (s *Store) SetStatus(project pledge.ProjectID, st pledge.CheckStatus) {
	s.sched.AssertOnThread()
	s.status[project] = st
	s.notifyStatus(project, StatusChange{Present: true, Status: st})
}

// ClearStatus removes project's check status, meaning no check is running
// and the last one (if any) succeeded.
func (s *Store) ClearStatus(project pledge.ProjectID) {
	s.sched.AssertOnThread()
	if _, ok := s.status[project]; !ok {
		return
	}
	delete(s.status, project)
	s.notifyStatus(project, StatusChange{Present: false})
}
