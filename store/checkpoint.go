// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lightningnetwork/lnd/tlv"
)

var checkpointNamespaceKey = []byte("lighthoused-outpoint-checkpoint")

const (
	typeOutpointHash  tlv.Type = 0
	typeOutpointIndex tlv.Type = 1
	typePledgeID      tlv.Type = 2
)

// Checkpoint durably records, per project, the outpoint index computed by
// the last full verification round. It exists purely as a startup
// optimisation: the index itself is derived and gets rebuilt from whatever
// the disk layer, wallet, and server report, but replaying every pledge
// through a fresh UTXO round on every restart is wasteful when the previous
// round's answer is still probably correct. Checkpoint only stores and
// returns entries; nothing in this module saves or loads one, so the
// in-memory index is never seeded from it.
type Checkpoint struct {
	ns walletdb.Namespace
}

// OpenCheckpoint opens (creating if necessary) the checkpoint namespace in
// db.
func OpenCheckpoint(db walletdb.DB) (*Checkpoint, error) {
	ns, err := db.Namespace(checkpointNamespaceKey)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint namespace: %w", err)
	}
	return &Checkpoint{ns: ns}, nil
}

// Save overwrites the checkpointed outpoint index for project.
func (c *Checkpoint) Save(project pledge.ProjectID, entries map[wire.OutPoint]pledge.PledgeID) error {
	return c.ns.Update(func(tx walletdb.Tx) error {
		root := tx.RootBucket()

		if err := root.DeleteBucket(project[:]); err != nil &&
			err != walletdb.ErrBucketNotFound {
			return fmt.Errorf("clearing prior checkpoint: %w", err)
		}
		bucket, err := root.CreateBucket(project[:])
		if err != nil {
			return fmt.Errorf("creating project bucket: %w", err)
		}

		for op, id := range entries {
			key := outpointKey(op)
			val, err := encodeCheckpointEntry(op, id)
			if err != nil {
				return err
			}
			if err := bucket.Put(key, val); err != nil {
				return fmt.Errorf("writing checkpoint entry: %w", err)
			}
		}
		return nil
	})
}

// Load returns the checkpointed outpoint index for project, or an empty map
// if none was ever saved.
func (c *Checkpoint) Load(project pledge.ProjectID) (map[wire.OutPoint]pledge.PledgeID, error) {
	entries := make(map[wire.OutPoint]pledge.PledgeID)

	err := c.ns.View(func(tx walletdb.Tx) error {
		bucket := tx.RootBucket().Bucket(project[:])
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			op, id, err := decodeCheckpointEntry(v)
			if err != nil {
				return fmt.Errorf("decoding checkpoint entry: %w", err)
			}
			entries[op] = id
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func outpointKey(op wire.OutPoint) []byte {
	key := make([]byte, 36)
	copy(key[:32], op.Hash[:])
	binary.BigEndian.PutUint32(key[32:], op.Index)
	return key
}

func encodeCheckpointEntry(op wire.OutPoint, id pledge.PledgeID) ([]byte, error) {
	var (
		hash  [32]byte = op.Hash
		index          = op.Index
		pid   [32]byte = id
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeOutpointHash, &hash),
		tlv.MakePrimitiveRecord(typeOutpointIndex, &index),
		tlv.MakePrimitiveRecord(typePledgeID, &pid),
	)
	if err != nil {
		return nil, fmt.Errorf("building checkpoint entry stream: %w", err)
	}

	var buf bytes.Buffer
	if err := stream.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encoding checkpoint entry: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeCheckpointEntry(raw []byte) (wire.OutPoint, pledge.PledgeID, error) {
	var (
		hash  [32]byte
		index uint32
		pid   [32]byte
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(typeOutpointHash, &hash),
		tlv.MakePrimitiveRecord(typeOutpointIndex, &index),
		tlv.MakePrimitiveRecord(typePledgeID, &pid),
	)
	if err != nil {
		return wire.OutPoint{}, pledge.PledgeID{}, fmt.Errorf(
			"building checkpoint entry stream: %w", err)
	}

	if err := stream.Decode(bytes.NewReader(raw)); err != nil {
		return wire.OutPoint{}, pledge.PledgeID{}, fmt.Errorf(
			"decoding checkpoint entry: %w", err)
	}

	op := wire.OutPoint{Hash: hash, Index: index}
	return op, pledge.PledgeID(pid), nil
}
