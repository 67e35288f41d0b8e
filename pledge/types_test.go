// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package pledge

import (
	"net/url"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/fn/v2"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing url: %v", err)
	}
	return u
}

func TestProjectGoalValueSumsOutputs(t *testing.T) {
	p := &Project{
		Outputs: []*wire.TxOut{
			{Value: 1000},
			{Value: 2500},
		},
	}
	if got, want := p.GoalValue(), int64(3500); int64(got) != want {
		t.Fatalf("expected goal value %d, got %d", want, got)
	}
}

func TestProjectHasServer(t *testing.T) {
	p := &Project{}
	if p.HasServer() {
		t.Fatal("expected no server by default")
	}
	p.PaymentURL = fn.Some(mustURL(t, "https://example.org/status"))
	if !p.HasServer() {
		t.Fatal("expected HasServer once PaymentURL is set")
	}
}

func TestProjectStateString(t *testing.T) {
	cases := map[ProjectState]string{
		StateOpen:    "OPEN",
		StateError:   "ERROR",
		StateClaimed: "CLAIMED",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("state %d: expected %q, got %q", state, want, got)
		}
	}
}

func TestPledgeIDIsStableAndCached(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		t.Fatalf("building packet: %v", err)
	}
	p := &Pledge{Main: pkt}

	id1, err := p.ID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	id2, err := p.ID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id2 {
		t.Fatal("expected ID to be stable across calls")
	}

	other := &Pledge{Main: pkt}
	id3, err := other.ID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != id3 {
		t.Fatal("expected identical pledges to hash to the same ID")
	}
}

func TestPledgeTotalInputValueFromWitnessUTXO(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 1}, nil, nil))
	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		t.Fatalf("building packet: %v", err)
	}
	pkt.Inputs[0].WitnessUtxo = &wire.TxOut{Value: 1500}
	pkt.Inputs[1].WitnessUtxo = &wire.TxOut{Value: 2500}

	p := &Pledge{Main: pkt}
	got, err := p.TotalInputValue()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if int64(got) != 4000 {
		t.Fatalf("expected total 4000, got %d", got)
	}
}

func TestPledgeTotalInputValueMissingUTXOErrors(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0}, nil, nil))
	pkt, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		t.Fatalf("building packet: %v", err)
	}

	p := &Pledge{Main: pkt}
	if _, err := p.TotalInputValue(); err == nil {
		t.Fatal("expected an error when no UTXO data is recorded")
	}
}
