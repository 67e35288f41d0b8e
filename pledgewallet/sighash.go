// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledgewallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
)

// PledgeSigHashType is the sighash flag every pledge input must be signed
// with. SigHashAll commits the pledger to every output of the main
// transaction (the project's goal outputs plus their own change), while
// SigHashAnyOneCanPay leaves every *input* but their own unsigned, which is
// exactly the property a claim transaction relies on: it is assembled by
// simply appending every other pledger's inputs, and none of those
// additions invalidate a signature that never committed to them.
const PledgeSigHashType = txscript.SigHashAll | txscript.SigHashAnyOneCanPay

// VerifyAppendableSighash reports whether every input of pkt that carries a
// signature was signed with PledgeSigHashType. Inputs with no signature yet
// (still being assembled) are skipped. An error names the first offending
// input index.
func VerifyAppendableSighash(pkt *psbt.Packet) error {
	for i, in := range pkt.Inputs {
		if len(in.PartialSigs) == 0 && in.TaprootKeySpendSig == nil &&
			len(in.TaprootScriptSpendSig) == 0 {
			continue
		}
		if in.SighashType != PledgeSigHashType {
			return fmt.Errorf("input %d: signed with sighash %v, want %v",
				i, in.SighashType, PledgeSigHashType)
		}
	}
	return nil
}
