// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func sampleTx(inputs ...wire.OutPoint) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, op := range inputs {
		tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}
	tx.AddTxOut(&wire.TxOut{Value: 1, PkScript: []byte{0x51}})
	return tx
}

func TestMempoolTracksSpentInputs(t *testing.T) {
	m := newMempool()
	op := wire.OutPoint{Index: 0}
	tx := sampleTx(op)

	m.add(tx)

	require.True(t, m.containsTx(tx.TxHash()))
	spender, ok := m.containsInput(op)
	require.True(t, ok)
	require.Equal(t, tx.TxHash(), spender)
}

func TestMempoolCleanRemovesTxAndInputs(t *testing.T) {
	m := newMempool()
	op := wire.OutPoint{Index: 0}
	tx := sampleTx(op)
	m.add(tx)

	m.clean([]*wire.MsgTx{tx})

	require.False(t, m.containsTx(tx.TxHash()))
	_, ok := m.containsInput(op)
	require.False(t, ok)
}

func TestMempoolDeleteUnmarkedDropsStaleEntries(t *testing.T) {
	m := newMempool()
	op1 := wire.OutPoint{Index: 0}
	op2 := wire.OutPoint{Index: 1}
	tx1 := sampleTx(op1)
	tx2 := sampleTx(op2)
	m.add(tx1)
	m.add(tx2)

	m.unmarkAll()
	m.mark(tx1.TxHash())
	m.deleteUnmarked()

	require.True(t, m.containsTx(tx1.TxHash()))
	require.False(t, m.containsTx(tx2.TxHash()))
	_, ok := m.containsInput(op2)
	require.False(t, ok)
}
