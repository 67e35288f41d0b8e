// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledge

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"net/url"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// MaxDependencies is the number of dependency transactions a pledge may
// carry in server mode. The client-side desktop flow only ever produces a
// single main transaction and is checked against a stricter limit by the
// fast sanity check (see verify.Mode).
const MaxDependencies = 5

// ProjectID is the stable identifier of a project: the hash of its project
// file. The file format itself is owned by the disk layer and is out of
// scope here; we only ever receive and compare the hash.
type ProjectID = chainhash.Hash

// PledgeID identifies a pledge by the hash of its canonical byte
// representation. It doubles as the on-disk filename stem
// (<PledgeID>.pledge) used by the disk layer.
type PledgeID = chainhash.Hash

// Project describes a goal transaction: a set of outputs that, once
// collectively funded by pledges, become a single claim transaction.
type Project struct {
	ID ProjectID

	// Title is a human-readable, non-authoritative label.
	Title string

	// Outputs is the ordered set of target outputs that the assembled
	// claim transaction must pay.
	Outputs []*wire.TxOut

	// PaymentURL is the HTTPS status endpoint of a trusted project
	// server, if any. A project with no payment URL is checked purely
	// against the P2P network.
	PaymentURL fn.Option[*url.URL]
}

// GoalValue sums the project's target outputs. Overflow of this value
// against the sum of pledges is explicitly unchecked (spec Non-goal).
func (p *Project) GoalValue() btcutil.Amount {
	var total btcutil.Amount
	for _, out := range p.Outputs {
		total += btcutil.Amount(out.Value)
	}
	return total
}

// HasServer reports whether the project trusts a remote server for pledge
// status rather than the P2P network.
func (p *Project) HasServer() bool {
	return p.PaymentURL.IsSome()
}

// ProjectState is the coarse lifecycle state of a project, owned by the
// disk layer and mutated by ClaimWatcher and ServerClient.
type ProjectState int

const (
	// StateOpen is the initial state: still open for pledges.
	StateOpen ProjectState = iota
	// StateError means the last claim attempt failed (e.g. double spent).
	StateError
	// StateClaimed means a claim transaction has been observed.
	StateClaimed
)

func (s ProjectState) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateError:
		return "ERROR"
	case StateClaimed:
		return "CLAIMED"
	default:
		return "UNKNOWN"
	}
}

// ProjectStateInfo pairs a ProjectState with the claim transaction hash,
// when known. Both CLAIMED and ERROR are soft terminal states: external
// evidence (a reorg, a fresh server refresh) can revert them to OPEN.
type ProjectStateInfo struct {
	State     ProjectState
	ClaimedBy fn.Option[chainhash.Hash]
}

// Pledge is a partial, off-chain signed contribution toward a project's
// goal: a main transaction signed with a sighash flag that permits
// additional inputs and outputs to be appended, plus zero or more
// dependency transactions that the main transaction's inputs may spend from.
//
// The main transaction is carried as a PSBT packet (rather than a bare
// wire.MsgTx) precisely because the append-more-inputs discipline this
// protocol relies on is what PSBT's partial-signature model is for: a
// pledge is signed before every input is known, and the packet format is
// how we keep the witness/non-witness UTXO data the signature committed to
// alongside the signature itself.
type Pledge struct {
	ProjectID ProjectID

	// Main is the partially-signed main transaction.
	Main *psbt.Packet

	// Dependencies are raw transactions the main transaction's inputs
	// may depend on (e.g. a change output the pledger just created).
	// At most MaxDependencies long; enforced by verify.FastSanityCheck.
	Dependencies []*wire.MsgTx

	// OrigHash is set on a pledge returned by a server after metadata
	// scrubbing; it is the PledgeID of the original, unscrubbed pledge
	// the pledger uploaded. Used to deduplicate our own pledges coming
	// back to us from the server.
	OrigHash fn.Option[PledgeID]

	id     PledgeID
	idOnce bool
}

// ID returns the pledge's canonical identifier, computing and caching it on
// first use.
func (p *Pledge) ID() (PledgeID, error) {
	if p.idOnce {
		return p.id, nil
	}
	b, err := p.Bytes()
	if err != nil {
		return PledgeID{}, err
	}
	p.id = chainhash.Hash(sha256.Sum256(b))
	p.idOnce = true
	return p.id, nil
}

// Bytes returns a canonical, deterministic byte representation of the
// pledge: the serialized PSBT packet followed by each length-prefixed
// dependency transaction, in order. This is our own internal wire format
// for hashing and set-membership purposes; it is not the on-disk pledge
// file format, which is owned by the disk layer and out of scope here.
func (p *Pledge) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Main.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serializing pledge main tx: %w", err)
	}
	for _, dep := range p.Dependencies {
		var depBuf bytes.Buffer
		if err := dep.Serialize(&depBuf); err != nil {
			return nil, fmt.Errorf("serializing pledge dependency: %w", err)
		}
		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(depBuf.Len()))
		buf.Write(lenPrefix[:])
		buf.Write(depBuf.Bytes())
	}
	return buf.Bytes(), nil
}

// MainTx returns the pledge's unsigned transaction skeleton, the view most
// verification logic needs (inputs, outputs, no signature data).
func (p *Pledge) MainTx() *wire.MsgTx {
	return p.Main.UnsignedTx
}

// TotalInputValue sums the claimed value of every input the main
// transaction spends, using the value recorded in the PSBT's witness or
// non-witness UTXO fields. It does not verify that value against a UTXO
// oracle; see verify.PledgeVerifier for that.
func (p *Pledge) TotalInputValue() (btcutil.Amount, error) {
	var total btcutil.Amount
	for i, in := range p.Main.Inputs {
		switch {
		case in.WitnessUtxo != nil:
			total += btcutil.Amount(in.WitnessUtxo.Value)
		case in.NonWitnessUtxo != nil:
			vout := p.Main.UnsignedTx.TxIn[i].PreviousOutPoint.Index
			if int(vout) >= len(in.NonWitnessUtxo.TxOut) {
				return 0, fmt.Errorf("pledge input %d: vout %d out of range", i, vout)
			}
			total += btcutil.Amount(in.NonWitnessUtxo.TxOut[vout].Value)
		default:
			return 0, fmt.Errorf("pledge input %d: no UTXO value recorded", i)
		}
	}
	return total, nil
}
