// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"testing"
	"time"

	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/stretchr/testify/require"
)

func syncExecutor(fn func()) { fn() }

func TestMirrorOpenDeliversSnapshotAndDiffs(t *testing.T) {
	s, sched := newTestStore(t)
	project := pledge.ProjectID{0x01}
	id1 := pledge.PledgeID{0x01}
	p1 := pledgeSpending(t, outpoint(1, 0))

	ready := make(chan struct{})
	sched.Submit(func() {
		s.AddOpen(project, id1, p1)
		close(ready)
	})
	<-ready

	changes := make(chan OpenChange, 4)
	snapshot, cancel := s.MirrorOpen(project, syncExecutor, func(c OpenChange) {
		changes <- c
	})
	require.Len(t, snapshot, 1)
	require.Same(t, p1, snapshot[0])

	id2 := pledge.PledgeID{0x02}
	p2 := pledgeSpending(t, outpoint(2, 0))

	added := make(chan struct{})
	sched.Submit(func() {
		s.AddOpen(project, id2, p2)
		close(added)
	})
	<-added

	select {
	case c := <-changes:
		require.True(t, c.Added)
		require.Same(t, p2, c.Pledge)
	case <-time.After(time.Second):
		t.Fatal("expected an addition diff")
	}

	removed := make(chan struct{})
	sched.Submit(func() {
		s.RemoveOpen(project, id2)
		close(removed)
	})
	<-removed

	select {
	case c := <-changes:
		require.False(t, c.Added)
		require.Same(t, p2, c.Pledge)
	case <-time.After(time.Second):
		t.Fatal("expected a removal diff")
	}

	cancel()
}

func TestMirrorCheckStatusDeliversChanges(t *testing.T) {
	s, sched := newTestStore(t)
	project := pledge.ProjectID{0x02}

	changes := make(chan StatusChange, 4)
	_, cancel := s.MirrorCheckStatus(syncExecutor, func(_ pledge.ProjectID, c StatusChange) {
		changes <- c
	})
	defer cancel()

	sched.Submit(func() {
		s.SetStatus(project, pledge.InProgressStatus())
	})

	select {
	case c := <-changes:
		require.True(t, c.Present)
		require.True(t, c.Status.InProgress)
	case <-time.After(time.Second):
		t.Fatal("expected a status-set diff")
	}

	sched.Submit(func() {
		s.ClearStatus(project)
	})

	select {
	case c := <-changes:
		require.False(t, c.Present)
	case <-time.After(time.Second):
		t.Fatal("expected a status-clear diff")
	}
}
