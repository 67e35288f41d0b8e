// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/pledgewallet"
	"github.com/stretchr/testify/require"
)

func simplePledge(t *testing.T, op wire.OutPoint, script []byte, value int64) *pledge.Pledge {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	tx.AddTxOut(&wire.TxOut{Value: value, PkScript: script})

	pkt, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	pkt.Inputs[0].WitnessUtxo = &wire.TxOut{Value: value, PkScript: script}
	pkt.Inputs[0].SighashType = pledgewallet.PledgeSigHashType

	return &pledge.Pledge{Main: pkt}
}

func TestFastSanityCheckAccepts(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	p := simplePledge(t, op, []byte{0x51}, 1000)
	require.NoError(t, FastSanityCheck(ModeServer, p))
}

func TestFastSanityCheckRejectsDuplicateOutpoint(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	pkt, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	for i := range pkt.Inputs {
		pkt.Inputs[i].WitnessUtxo = &wire.TxOut{Value: 1000}
	}
	p := &pledge.Pledge{Main: pkt}

	err = FastSanityCheck(ModeServer, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.DuplicatedOutPoint, verr.Kind)
}

func TestFastSanityCheckRejectsTooManyDependencies(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	p := simplePledge(t, op, []byte{0x51}, 1000)
	for i := 0; i < pledge.MaxDependencies+1; i++ {
		p.Dependencies = append(p.Dependencies, wire.NewMsgTx(wire.TxVersion))
	}

	err := FastSanityCheck(ModeServer, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.TooManyDependencies, verr.Kind)
}

func TestFastSanityCheckClientModeLimitsToOneDependency(t *testing.T) {
	dep := wire.NewMsgTx(wire.TxVersion)
	dep.AddTxOut(&wire.TxOut{Value: 500, PkScript: []byte{0x51}})
	depHash := dep.TxHash()

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: depHash, Index: 0}, nil, nil))
	tx.AddTxOut(&wire.TxOut{Value: 400, PkScript: []byte{0x51}})
	pkt, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	pkt.Inputs[0].SighashType = pledgewallet.PledgeSigHashType

	p := &pledge.Pledge{Main: pkt, Dependencies: []*wire.MsgTx{dep}}
	require.NoError(t, FastSanityCheck(ModeClient, p))

	p.Dependencies = append(p.Dependencies, wire.NewMsgTx(wire.TxVersion))
	err = FastSanityCheck(ModeClient, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.TooManyDependencies, verr.Kind)
}

func TestFastSanityCheckRejectsUnreferencedDependency(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	p := simplePledge(t, op, []byte{0x51}, 1000)
	p.Dependencies = []*wire.MsgTx{wire.NewMsgTx(wire.TxVersion)}

	err := FastSanityCheck(ModeServer, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.BadFormat, verr.Kind)
}

func TestFastSanityCheckRejectsWrongSighash(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	p := simplePledge(t, op, []byte{0x51}, 1000)
	p.Main.Inputs[0].PartialSigs = []*psbt.PartialSig{{PubKey: []byte{0x02}, Signature: []byte{0x01}}}
	p.Main.Inputs[0].SighashType = 0

	err := FastSanityCheck(ModeServer, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.BadFormat, verr.Kind)
}

type fakeOracle struct {
	info map[wire.OutPoint]UTXOInfo
	err  error
}

func (f *fakeOracle) Query(_ context.Context, outpoints []wire.OutPoint) (map[wire.OutPoint]UTXOInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[wire.OutPoint]UTXOInfo, len(outpoints))
	for _, op := range outpoints {
		if info, ok := f.info[op]; ok {
			out[op] = info
		}
	}
	return out, nil
}

func TestVerifyAcceptsMatchingUTXO(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	script := []byte{0x51}
	p := simplePledge(t, op, script, 1000)
	oracle := &fakeOracle{info: map[wire.OutPoint]UTXOInfo{
		op: {Exists: true, Script: script, Value: 1000},
	}}

	require.NoError(t, Verify(context.Background(), oracle, &pledge.Project{}, p))
}

func TestVerifyRejectsMissingUTXO(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	p := simplePledge(t, op, []byte{0x51}, 1000)
	oracle := &fakeOracle{info: map[wire.OutPoint]UTXOInfo{}}

	err := Verify(context.Background(), oracle, &pledge.Project{}, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.UnknownUTXO, verr.Kind)
}

func TestVerifyRejectsScriptMismatch(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	p := simplePledge(t, op, []byte{0x51}, 1000)
	oracle := &fakeOracle{info: map[wire.OutPoint]UTXOInfo{
		op: {Exists: true, Script: []byte{0x52}, Value: 1000},
	}}

	err := Verify(context.Background(), oracle, &pledge.Project{}, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.ScriptMismatch, verr.Kind)
}

func TestVerifyRejectsValueMismatch(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	script := []byte{0x51}
	p := simplePledge(t, op, script, 1000)
	oracle := &fakeOracle{info: map[wire.OutPoint]UTXOInfo{
		op: {Exists: true, Script: script, Value: 999},
	}}

	err := Verify(context.Background(), oracle, &pledge.Project{}, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.ScriptMismatch, verr.Kind)
}

func TestVerifyPropagatesOracleTransportError(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	p := simplePledge(t, op, []byte{0x51}, 1000)
	oracle := &fakeOracle{err: errors.New("dial tcp: connection refused")}

	err := Verify(context.Background(), oracle, &pledge.Project{}, p)
	var verr *pledge.VerifyError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, pledge.TransportError, verr.Kind)
}

func TestVerifyGoalOverflowIsNotAFailure(t *testing.T) {
	op := wire.OutPoint{Index: 0}
	script := []byte{0x51}
	p := simplePledge(t, op, script, 1_000_000)
	oracle := &fakeOracle{info: map[wire.OutPoint]UTXOInfo{
		op: {Exists: true, Script: script, Value: 1_000_000},
	}}

	project := &pledge.Project{Outputs: []*wire.TxOut{{Value: 100}}}
	require.Less(t, int64(project.GoalValue()), int64(1_000_000))
	require.NoError(t, Verify(context.Background(), oracle, project, p))
}
