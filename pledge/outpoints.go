// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledge

import "github.com/btcsuite/btcd/wire"

// OutpointIndex is the set of outpoints consumed by a project's currently
// accepted (open or claimed) pledges. It is derived, not authoritative, and
// is rebuilt on every full-project check (invariant 2 in the spec's data
// model: no two accepted pledges may share an input outpoint).
type OutpointIndex struct {
	outpoints map[wire.OutPoint]PledgeID
}

// NewOutpointIndex returns an empty index.
func NewOutpointIndex() *OutpointIndex {
	return &OutpointIndex{outpoints: make(map[wire.OutPoint]PledgeID)}
}

// Add records every input outpoint of tx as belonging to pledge id. It
// returns a DuplicatedOutPoint VerifyError if any outpoint is already
// present, whether from this same call (a pledge spending the same outpoint
// twice) or an earlier one (two distinct pledges racing for the same coin).
func (idx *OutpointIndex) Add(id PledgeID, tx *wire.MsgTx) error {
	// Stage first so a mid-transaction failure doesn't leave a partial
	// pledge indexed.
	for _, in := range tx.TxIn {
		if existing, ok := idx.outpoints[in.PreviousOutPoint]; ok {
			return &VerifyError{
				Kind:     DuplicatedOutPoint,
				Outpoint: &in.PreviousOutPoint,
				Err:      duplicatePledgeErr{first: existing, second: id},
			}
		}
	}
	for _, in := range tx.TxIn {
		idx.outpoints[in.PreviousOutPoint] = id
	}
	return nil
}

// Remove drops every input outpoint of tx from the index.
func (idx *OutpointIndex) Remove(tx *wire.MsgTx) {
	for _, in := range tx.TxIn {
		delete(idx.outpoints, in.PreviousOutPoint)
	}
}

// Contains reports whether op is currently consumed by some indexed pledge.
func (idx *OutpointIndex) Contains(op wire.OutPoint) bool {
	_, ok := idx.outpoints[op]
	return ok
}

// Len returns the number of indexed outpoints.
func (idx *OutpointIndex) Len() int { return len(idx.outpoints) }

type duplicatePledgeErr struct {
	first, second PledgeID
}

func (e duplicatePledgeErr) Error() string {
	return "outpoint already claimed by pledge " + e.first.String() +
		", conflicts with pledge " + e.second.String()
}

// BuildOutpointIndex rebuilds an index from scratch given a project's full
// set of currently-accepted pledges, used whenever a round checks every
// pledge at once rather than incrementally.
func BuildOutpointIndex(pledges map[PledgeID]*Pledge) (*OutpointIndex, error) {
	idx := NewOutpointIndex()
	for id, p := range pledges {
		if err := idx.Add(id, p.MainTx()); err != nil {
			return nil, err
		}
	}
	return idx, nil
}
