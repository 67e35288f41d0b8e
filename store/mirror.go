// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/scheduler"
)

// Executor runs fn, however and wherever the caller likes — inline,
// scheduled on a UI toolkit's event loop, or dispatched through another
// Scheduler. Diffs posted to a mirror observer always go through the
// Executor the observer registered with, never directly on the engine
// thread.
type Executor func(fn func())

// OpenChange is a single addition or removal posted to an open-pledge
// mirror observer.
type OpenChange struct {
	Added  bool
	Pledge *pledge.Pledge
}

// ClaimedChange is the claimed-set analogue of OpenChange.
type ClaimedChange struct {
	Added  bool
	Pledge *pledge.Pledge
}

// StatusChange is posted to a check-status mirror observer. Present is
// false when a project's check status is cleared (no outstanding or failed
// check).
type StatusChange struct {
	Present bool
	Status  pledge.CheckStatus
}

type openObserver struct {
	exec Executor
	fn   func(OpenChange)
}

type claimedObserver struct {
	exec Executor
	fn   func(ClaimedChange)
}

type statusObserver struct {
	exec Executor
	fn   func(pledge.ProjectID, StatusChange)
}

type openMirrorResult struct {
	snapshot []*pledge.Pledge
	cancel   func()
}

// MirrorOpen returns a snapshot of project's currently open pledges and
// registers onChange to be called, via exec, with every subsequent
// addition or removal. It may be called from any thread; internally it is
// marshalled onto the engine thread to take the snapshot and register the
// listener atomically, so no change between the snapshot and the first
// delivered diff can be missed or double-counted.
func (s *Store) MirrorOpen(project pledge.ProjectID, exec Executor,
	onChange func(OpenChange)) ([]*pledge.Pledge, func()) {

	res := scheduler.RunOnThread(s.sched, func() openMirrorResult {
		set := s.Open(project)
		snapshot := make([]*pledge.Pledge, 0, len(set))
		for _, p := range set {
			snapshot = append(snapshot, p)
		}

		obs := &openObserver{exec: exec, fn: onChange}
		s.openObservers[project] = append(s.openObservers[project], obs)

		cancel := func() {
			s.sched.Submit(func() {
				s.removeOpenObserver(project, obs)
			})
		}
		return openMirrorResult{snapshot: snapshot, cancel: cancel}
	})
	return res.snapshot, res.cancel
}

func (s *Store) removeOpenObserver(project pledge.ProjectID, target *openObserver) {
	observers := s.openObservers[project]
	for i, obs := range observers {
		if obs == target {
			s.openObservers[project] = append(observers[:i], observers[i+1:]...)
			return
		}
	}
}

func (s *Store) notifyOpen(project pledge.ProjectID, change OpenChange) {
	for _, obs := range s.openObservers[project] {
		obs := obs
		obs.exec(func() { obs.fn(change) })
	}
}

type claimedMirrorResult struct {
	snapshot []*pledge.Pledge
	cancel   func()
}

// MirrorClaimed is the claimed-set analogue of MirrorOpen.
func (s *Store) MirrorClaimed(project pledge.ProjectID, exec Executor,
	onChange func(ClaimedChange)) ([]*pledge.Pledge, func()) {

	res := scheduler.RunOnThread(s.sched, func() claimedMirrorResult {
		set := s.Claimed(project)
		snapshot := make([]*pledge.Pledge, 0, len(set))
		for _, p := range set {
			snapshot = append(snapshot, p)
		}

		obs := &claimedObserver{exec: exec, fn: onChange}
		s.claimedObservers[project] = append(s.claimedObservers[project], obs)

		cancel := func() {
			s.sched.Submit(func() {
				s.removeClaimedObserver(project, obs)
			})
		}
		return claimedMirrorResult{snapshot: snapshot, cancel: cancel}
	})
	return res.snapshot, res.cancel
}

func (s *Store) removeClaimedObserver(project pledge.ProjectID, target *claimedObserver) {
	observers := s.claimedObservers[project]
	for i, obs := range observers {
		if obs == target {
			s.claimedObservers[project] = append(observers[:i], observers[i+1:]...)
			return
		}
	}
}

func (s *Store) notifyClaimed(project pledge.ProjectID, change ClaimedChange) {
	for _, obs := range s.claimedObservers[project] {
		obs := obs
		obs.exec(func() { obs.fn(change) })
	}
}

type statusMirrorResult struct {
	snapshot map[pledge.ProjectID]pledge.CheckStatus
	cancel   func()
}

// MirrorCheckStatus returns a snapshot of every project's current check
// status and registers onChange to be called, via exec, whenever any
// project's status is set or cleared.
func (s *Store) MirrorCheckStatus(exec Executor,
	onChange func(pledge.ProjectID, StatusChange)) (map[pledge.ProjectID]pledge.CheckStatus, func()) {

	res := scheduler.RunOnThread(s.sched, func() statusMirrorResult {
		snapshot := make(map[pledge.ProjectID]pledge.CheckStatus, len(s.status))
		for project, st := range s.status {
			snapshot[project] = st
		}

		obs := &statusObserver{exec: exec, fn: onChange}
		s.statusObservers = append(s.statusObservers, obs)

		cancel := func() {
			s.sched.Submit(func() {
				s.removeStatusObserver(obs)
			})
		}
		return statusMirrorResult{snapshot: snapshot, cancel: cancel}
	})
	return res.snapshot, res.cancel
}

func (s *Store) removeStatusObserver(target *statusObserver) {
	for i, obs := range s.statusObservers {
		if obs == target {
			s.statusObservers = append(s.statusObservers[:i], s.statusObservers[i+1:]...)
			return
		}
	}
}

func (s *Store) notifyStatus(project pledge.ProjectID, change StatusChange) {
	for _, obs := range s.statusObservers {
		obs := obs
		obs.exec(func() { obs.fn(project, change) })
	}
}
