// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/scheduler"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.New()
	sched.Start()
	t.Cleanup(func() {
		sched.Stop()
		sched.WaitForShutdown()
	})
	return New(sched), sched
}

func pledgeSpending(t *testing.T, ops ...wire.OutPoint) *pledge.Pledge {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, op := range ops {
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	pkt, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	for i := range pkt.Inputs {
		pkt.Inputs[i].WitnessUtxo = &wire.TxOut{Value: 1000}
	}
	return &pledge.Pledge{Main: pkt}
}

func outpoint(b byte, vout uint32) wire.OutPoint {
	var h chainhash.Hash
	h[0] = b
	return wire.OutPoint{Hash: h, Index: vout}
}

func TestAddOpenAndRemoveOpen(t *testing.T) {
	s, sched := newTestStore(t)
	project := pledge.ProjectID{0x01}
	id := pledge.PledgeID{0x01}
	p := pledgeSpending(t, outpoint(1, 0))

	sched.Submit(func() {
		s.AddOpen(project, id, p)
	})
	sched.Submit(func() {
		open := s.Open(project)
		require.Len(t, open, 1)
		require.Same(t, p, open[id])
	})

	done := make(chan struct{})
	sched.Submit(func() {
		s.RemoveOpen(project, id)
		require.Empty(t, s.Open(project))
		close(done)
	})
	<-done
}

func TestMoveOpenToClaimedRequiresAllInputs(t *testing.T) {
	s, sched := newTestStore(t)
	project := pledge.ProjectID{0x01}

	opA := outpoint(1, 0)
	opB := outpoint(2, 0)
	idFull := pledge.PledgeID{0x01}
	idPartial := pledge.PledgeID{0x02}
	pFull := pledgeSpending(t, opA)
	pPartial := pledgeSpending(t, opB, outpoint(9, 0))

	claimTx := wire.NewMsgTx(wire.TxVersion)
	claimTx.AddTxIn(wire.NewTxIn(&opA, nil, nil))
	claimTx.AddTxIn(wire.NewTxIn(&opB, nil, nil))

	done := make(chan []pledge.PledgeID, 1)
	sched.Submit(func() {
		s.AddOpen(project, idFull, pFull)
		s.AddOpen(project, idPartial, pPartial)
		done <- s.MoveOpenToClaimed(project, claimTx)
	})

	moved := <-done
	require.Equal(t, []pledge.PledgeID{idFull}, moved)

	verify := make(chan struct{})
	sched.Submit(func() {
		_, stillOpen := s.Open(project)[idFull]
		require.False(t, stillOpen)
		_, stillOpenPartial := s.Open(project)[idPartial]
		require.True(t, stillOpenPartial)
		_, claimed := s.Claimed(project)[idFull]
		require.True(t, claimed)
		close(verify)
	})
	<-verify
}

func TestStatusLifecycle(t *testing.T) {
	s, sched := newTestStore(t)
	project := pledge.ProjectID{0x01}

	done := make(chan struct{})
	sched.Submit(func() {
		_, ok := s.Status(project)
		require.False(t, ok)

		s.SetStatus(project, pledge.InProgressStatus())
		st, ok := s.Status(project)
		require.True(t, ok)
		require.True(t, st.InProgress)

		s.ClearStatus(project)
		_, ok = s.Status(project)
		require.False(t, ok)

		close(done)
	})
	<-done
}

func TestMutatorsPanicOffThread(t *testing.T) {
	sched := scheduler.New()
	s := New(sched)
	require.Panics(t, func() {
		s.AddOpen(pledge.ProjectID{}, pledge.PledgeID{}, pledgeSpending(t))
	})
}
