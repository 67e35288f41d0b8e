// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/scheduler"
)

// TotalPledged is a reactive aggregate of total_input_value summed across a
// project's open and claimed pledges. It recomputes itself from scratch on
// every underlying change rather than trying to track a running delta,
// which is simpler and cheap enough given how rarely a project's pledge
// sets change relative to how often the value is read.
//
// TotalPledged holds the cancel functions of the two mirrors it subscribes
// through: the aggregate owns its inputs. The subscriptions stay
// registered with the Store until Cancel is called; dropping the last
// reference to a TotalPledged does not end them.
type TotalPledged struct {
	mu    sync.Mutex
	value btcutil.Amount

	onChange func(btcutil.Amount)

	cancelOpen    func()
	cancelClaimed func()
}

// Value returns the current total.
func (tp *TotalPledged) Value() btcutil.Amount {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.value
}

// Cancel unsubscribes from the underlying pledge sets. The TotalPledged is
// unusable afterward.
func (tp *TotalPledged) Cancel() {
	tp.cancelOpen()
	tp.cancelClaimed()
}

// MakeTotalPledged returns a TotalPledged tracking project, invoking
// onChange via exec whenever the total changes. onChange may be nil if the
// caller only intends to poll Value.
func (s *Store) MakeTotalPledged(project pledge.ProjectID, exec Executor,
	onChange func(btcutil.Amount)) *TotalPledged {

	tp := &TotalPledged{onChange: onChange}

	recompute := func() {
		total := scheduler.RunOnThread(s.sched, func() btcutil.Amount {
			return s.sumInputValues(project)
		})

		tp.mu.Lock()
		changed := tp.value != total
		tp.value = total
		tp.mu.Unlock()

		if changed && tp.onChange != nil {
			tp.onChange(total)
		}
	}

	openSnapshot, cancelOpen := s.MirrorOpen(project, exec, func(OpenChange) { recompute() })
	claimedSnapshot, cancelClaimed := s.MirrorClaimed(project, exec, func(ClaimedChange) { recompute() })
	tp.cancelOpen, tp.cancelClaimed = cancelOpen, cancelClaimed

	var initial btcutil.Amount
	for _, p := range openSnapshot {
		if v, err := p.TotalInputValue(); err == nil {
			initial += v
		}
	}
	for _, p := range claimedSnapshot {
		if v, err := p.TotalInputValue(); err == nil {
			initial += v
		}
	}
	tp.value = initial

	return tp
}

// sumInputValues must be called on the engine thread.
func (s *Store) sumInputValues(project pledge.ProjectID) btcutil.Amount {
	var total btcutil.Amount
	for _, p := range s.Open(project) {
		if v, err := p.TotalInputValue(); err == nil {
			total += v
		}
	}
	for _, p := range s.Claimed(project) {
		if v, err := p.TotalInputValue(); err == nil {
			total += v
		}
	}
	return total
}
