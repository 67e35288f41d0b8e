// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package claim

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/btcwallet/wallet/txsizes"
	"github.com/lighthouse-io/lighthoused/pkg/btcunit"
	"github.com/lighthouse-io/lighthoused/pledge"
)

// Assembler builds the claim transaction for a project once its open
// pledges sum to at least the goal: "any party can assemble and broadcast
// the claim transaction" from the original purpose text, an operation
// spec.md's distillation never gave its own component (SPEC_FULL
// supplemented feature #1). Every pledge already carries a fully signed
// SigHashAll|SigHashAnyOneCanPay main transaction, so assembly is pure
// merge — no coin selection, no new signatures — but still goes through
// txrules and txsizes for the sanity checks a hand-assembled transaction
// benefits from.
type Assembler struct {
	// RelayFeePerKB is used only to size-sanity-check the assembled
	// transaction's outputs for dust; the fee itself was already fixed
	// when each pledge was signed.
	RelayFeePerKB btcutil.Amount
}

// Assemble merges every pledge's inputs onto the project's target output
// set. All pledges must share byte-identical outputs — anything else means
// they were never actually pledging toward the same goal transaction, a
// fast-sanity-check-level bug that should have been caught long before a
// claim attempt.
func (a *Assembler) Assemble(project *pledge.Project, pledges []*pledge.Pledge) (*wire.MsgTx, error) {
	if len(pledges) == 0 {
		return nil, errors.New("no pledges to assemble a claim from")
	}

	claim := wire.NewMsgTx(wire.TxVersion)
	claim.TxOut = append(claim.TxOut, project.Outputs...)

	for _, out := range claim.TxOut {
		if txrules.IsDustOutput(out, a.dustRelayFee()) {
			return nil, fmt.Errorf("project output of %d sats is dust", out.Value)
		}
	}

	for i, p := range pledges {
		if err := sameOutputs(claim.TxOut, p.MainTx().TxOut); err != nil {
			return nil, fmt.Errorf("pledge %d: %w", i, err)
		}

		if err := psbt.MaybeFinalizeAll(p.Main); err != nil {
			return nil, fmt.Errorf("pledge %d: finalizing: %w", i, err)
		}
		extracted, err := psbt.Extract(p.Main)
		if err != nil {
			return nil, fmt.Errorf("pledge %d: extracting: %w", i, err)
		}
		claim.TxIn = append(claim.TxIn, extracted.TxIn...)
	}

	weight := btcunit.NewWeightUnit(uint64(blockchain.GetTransactionWeight(btcutil.NewTx(claim))))
	log.Debugf("assembled claim tx from %d pledges, %d inputs, %d bytes of outputs, %s (%s)",
		len(pledges), len(claim.TxIn), txsizes.SumOutputSerializeSizes(claim.TxOut),
		weight, weight.ToVB())

	return claim, nil
}

func (a *Assembler) dustRelayFee() btcutil.Amount {
	if a.RelayFeePerKB == 0 {
		return txrules.DefaultRelayFeePerKb
	}
	return a.RelayFeePerKB
}

func sameOutputs(want, got []*wire.TxOut) error {
	if len(want) != len(got) {
		return fmt.Errorf("output count mismatch: want %d, got %d", len(want), len(got))
	}
	for i := range want {
		if want[i].Value != got[i].Value || string(want[i].PkScript) != string(got[i].PkScript) {
			return fmt.Errorf("output %d does not match the project's goal outputs", i)
		}
	}
	return nil
}
