// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledge

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func mustPacket(t *testing.T, tx *wire.MsgTx) *psbt.Packet {
	t.Helper()
	p, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		t.Fatalf("building packet: %v", err)
	}
	return p
}

func txSpending(ops ...wire.OutPoint) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, op := range ops {
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	return tx
}

func outpoint(txid byte, vout uint32) wire.OutPoint {
	var h chainhash.Hash
	h[0] = txid
	return wire.OutPoint{Hash: h, Index: vout}
}

func TestOutpointIndexAddNoConflict(t *testing.T) {
	idx := NewOutpointIndex()
	id1 := PledgeID{0x01}
	id2 := PledgeID{0x02}

	if err := idx.Add(id1, txSpending(outpoint(1, 0))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := idx.Add(id2, txSpending(outpoint(2, 0))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected 2 indexed outpoints, got %d", idx.Len())
	}
	if !idx.Contains(outpoint(1, 0)) {
		t.Fatal("expected outpoint(1,0) to be indexed")
	}
}

func TestOutpointIndexAddConflict(t *testing.T) {
	idx := NewOutpointIndex()
	id1 := PledgeID{0x01}
	id2 := PledgeID{0x02}

	op := outpoint(1, 0)
	if err := idx.Add(id1, txSpending(op)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := idx.Add(id2, txSpending(op))
	if err == nil {
		t.Fatal("expected a duplicated-outpoint error")
	}
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *VerifyError, got %T", err)
	}
	if verr.Kind != DuplicatedOutPoint {
		t.Fatalf("expected DuplicatedOutPoint, got %v", verr.Kind)
	}
	if !errors.Is(err, KindError(DuplicatedOutPoint)) {
		t.Fatal("expected errors.Is match against KindError(DuplicatedOutPoint)")
	}
	if verr.Outpoint == nil || *verr.Outpoint != op {
		t.Fatalf("expected outpoint %v recorded on error, got %v", op, verr.Outpoint)
	}
	// A failed Add must not have partially indexed the second pledge's
	// other outpoints.
	if idx.Len() != 1 {
		t.Fatalf("expected index to still hold exactly 1 outpoint, got %d", idx.Len())
	}
}

func TestOutpointIndexSelfConflictWithinOnePledge(t *testing.T) {
	idx := NewOutpointIndex()
	id := PledgeID{0x01}
	op := outpoint(5, 0)

	tx := txSpending(op, op)
	err := idx.Add(id, tx)
	if err == nil {
		t.Fatal("expected error when a single pledge spends the same outpoint twice")
	}
	if idx.Len() != 0 {
		t.Fatalf("expected no outpoints staged after a failed add, got %d", idx.Len())
	}
}

func TestOutpointIndexRemove(t *testing.T) {
	idx := NewOutpointIndex()
	id := PledgeID{0x01}
	op := outpoint(9, 3)

	if err := idx.Add(id, txSpending(op)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idx.Remove(txSpending(op))
	if idx.Contains(op) {
		t.Fatal("expected outpoint to be removed")
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d entries", idx.Len())
	}
}

func TestBuildOutpointIndexDetectsCrossPledgeCollision(t *testing.T) {
	op := outpoint(7, 1)

	pledges := map[PledgeID]*Pledge{
		{0x01}: {Main: mustPacket(t, txSpending(op))},
		{0x02}: {Main: mustPacket(t, txSpending(outpoint(8, 0)))},
		{0x03}: {Main: mustPacket(t, txSpending(op))},
	}

	_, err := BuildOutpointIndex(pledges)
	var verr *VerifyError
	if !errors.As(err, &verr) || verr.Kind != DuplicatedOutPoint {
		t.Fatalf("expected DuplicatedOutPoint error, got %v", err)
	}
}
