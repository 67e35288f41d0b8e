// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/pledgewallet"
)

// Mode distinguishes the client and server roles for the purpose of the
// dependency-count policy: the desktop client flow only ever produces a
// single main transaction per pledge, while a project server accepts
// pledges with up to pledge.MaxDependencies dependency transactions.
type Mode int

const (
	ModeClient Mode = iota
	ModeServer
)

func maxDependencies(mode Mode) int {
	if mode == ModeClient {
		return 1
	}
	return pledge.MaxDependencies
}

// FastSanityCheck performs the checks that require no network access:
// the main transaction parses and links consistently to its dependencies,
// no input outpoint repeats within the pledge, the dependency count is
// within the mode's policy, and every signed input uses the
// append-more-inputs sighash discipline the project relies on.
func FastSanityCheck(mode Mode, p *pledge.Pledge) error {
	if p == nil || p.Main == nil || p.Main.UnsignedTx == nil {
		return &pledge.VerifyError{
			Kind: pledge.BadFormat,
			Err:  errors.New("pledge has no main transaction"),
		}
	}

	if max := maxDependencies(mode); len(p.Dependencies) > max {
		return &pledge.VerifyError{
			Kind: pledge.TooManyDependencies,
			Err: fmt.Errorf("pledge has %d dependencies, max %d for this mode",
				len(p.Dependencies), max),
		}
	}

	tx := p.Main.UnsignedTx
	if len(tx.TxIn) == 0 {
		return &pledge.VerifyError{
			Kind: pledge.BadFormat,
			Err:  errors.New("main transaction has no inputs"),
		}
	}
	if len(p.Main.Inputs) != len(tx.TxIn) {
		return &pledge.VerifyError{
			Kind: pledge.BadFormat,
			Err:  errors.New("psbt input count does not match transaction input count"),
		}
	}

	seen := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	referencedDeps := make(map[chainhash.Hash]bool)
	for i, in := range tx.TxIn {
		if _, dup := seen[in.PreviousOutPoint]; dup {
			return &pledge.VerifyError{
				Kind:     pledge.DuplicatedOutPoint,
				Outpoint: &in.PreviousOutPoint,
			}
		}
		seen[in.PreviousOutPoint] = struct{}{}

		pin := p.Main.Inputs[i]
		switch {
		case pin.WitnessUtxo != nil:
			// Values carried inline; no dependency needed.
		case pin.NonWitnessUtxo != nil:
			if pin.NonWitnessUtxo.TxHash() != in.PreviousOutPoint.Hash {
				return &pledge.VerifyError{
					Kind:     pledge.BadFormat,
					Outpoint: &in.PreviousOutPoint,
					Err:      errors.New("non-witness utxo does not match input's previous outpoint"),
				}
			}
			referencedDeps[in.PreviousOutPoint.Hash] = true
		default:
			referencedDeps[in.PreviousOutPoint.Hash] = true
		}
	}

	depHashes := make(map[chainhash.Hash]bool, len(p.Dependencies))
	for _, dep := range p.Dependencies {
		depHashes[dep.TxHash()] = true
	}
	for hash := range referencedDeps {
		if !depHashes[hash] {
			return &pledge.VerifyError{
				Kind: pledge.BadFormat,
				Err: fmt.Errorf(
					"input spends %s but no UTXO data or dependency transaction provides it",
					hash),
			}
		}
	}
	for hash := range depHashes {
		if !referencedDeps[hash] {
			return &pledge.VerifyError{
				Kind: pledge.BadFormat,
				Err:  fmt.Errorf("dependency %s is not referenced by any input", hash),
			}
		}
	}

	if err := pledgewallet.VerifyAppendableSighash(p.Main); err != nil {
		return &pledge.VerifyError{Kind: pledge.BadFormat, Err: err}
	}
	return nil
}

// Verify runs the network-dependent checks: every input outpoint exists
// per oracle, and the script and value it reports match what the pledge
// claims. project is not consulted: the pledged total is not compared with
// the goal, so goal overflow is never a failure.
func Verify(ctx context.Context, oracle Oracle, project *pledge.Project, p *pledge.Pledge) error {
	tx := p.MainTx()
	outpoints := make([]wire.OutPoint, len(tx.TxIn))
	for i, in := range tx.TxIn {
		outpoints[i] = in.PreviousOutPoint
	}

	infos, err := oracle.Query(ctx, outpoints)
	if err != nil {
		return &pledge.VerifyError{Kind: pledge.TransportError, Err: err}
	}

	for i, in := range tx.TxIn {
		info, ok := infos[in.PreviousOutPoint]
		if !ok || !info.Exists {
			return &pledge.VerifyError{
				Kind:     pledge.UnknownUTXO,
				Outpoint: &in.PreviousOutPoint,
			}
		}

		claimedScript, claimedValue, err := claimedUTXO(p, i, in.PreviousOutPoint)
		if err != nil {
			return &pledge.VerifyError{
				Kind:     pledge.BadFormat,
				Outpoint: &in.PreviousOutPoint,
				Err:      err,
			}
		}

		if !bytes.Equal(claimedScript, info.Script) || claimedValue != info.Value {
			return &pledge.VerifyError{
				Kind:     pledge.ScriptMismatch,
				Outpoint: &in.PreviousOutPoint,
			}
		}
	}

	return nil
}

func claimedUTXO(p *pledge.Pledge, inputIndex int, op wire.OutPoint) ([]byte, btcutil.Amount, error) {
	pin := p.Main.Inputs[inputIndex]
	switch {
	case pin.WitnessUtxo != nil:
		return pin.WitnessUtxo.PkScript, btcutil.Amount(pin.WitnessUtxo.Value), nil
	case pin.NonWitnessUtxo != nil:
		if int(op.Index) >= len(pin.NonWitnessUtxo.TxOut) {
			return nil, 0, fmt.Errorf("vout %d out of range for dependency %s", op.Index, op.Hash)
		}
		out := pin.NonWitnessUtxo.TxOut[op.Index]
		return out.PkScript, btcutil.Amount(out.Value), nil
	default:
		return nil, 0, fmt.Errorf("input %d has no UTXO data", inputIndex)
	}
}
