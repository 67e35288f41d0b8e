// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

type fakeRevocationChecker struct {
	revoked map[pledge.PledgeID]bool
}

func (f *fakeRevocationChecker) WasPledgeRevoked(_ context.Context, id pledge.PledgeID) (bool, error) {
	return f.revoked[id], nil
}

func buildPledge(t *testing.T, op wire.OutPoint) *pledge.Pledge {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	tx.AddTxOut(&wire.TxOut{Value: 50000, PkScript: []byte{0x51}})
	pkt, err := psbt.NewFromUnsignedTx(tx)
	require.NoError(t, err)
	pkt.Inputs[0].WitnessUtxo = &wire.TxOut{Value: 60000}
	return &pledge.Pledge{Main: pkt}
}

func serveJSON(t *testing.T, body statusResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
}

func testProject(t *testing.T, rawURL string) *pledge.Project {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return &pledge.Project{
		ID:         pledge.ProjectID{0x01},
		PaymentURL: fn.Some(u),
	}
}

func TestFetchStatusDecodesPledgesAndClaimedBy(t *testing.T) {
	p := buildPledge(t, wire.OutPoint{Index: 1})
	wp, err := encodePledge(p)
	require.NoError(t, err)

	claimHash := make([]byte, 32)
	claimHash[0] = 0xAB
	srv := serveJSON(t, statusResponse{
		Pledges:   []wirePledge{wp},
		ClaimedBy: hex.EncodeToString(claimHash),
	})
	defer srv.Close()

	c := &Client{}
	result, err := c.FetchStatus(context.Background(), testProject(t, srv.URL), nil)
	require.NoError(t, err)
	require.Len(t, result.Pledges, 1)
	require.True(t, result.ClaimedBy.IsSome())
}

func TestFetchStatusClientModeDropsScrubbedDuplicate(t *testing.T) {
	// Spec scenario f: client uploaded p with orig_hash H; server returns
	// p' with orig_hash H but scrubbed metadata. Only the local original
	// should remain visible, so FetchStatus must drop p'.
	origID := pledge.PledgeID{0x42}
	scrubbed := buildPledge(t, wire.OutPoint{Index: 2})
	scrubbed.OrigHash = fn.Some(origID)

	wp, err := encodePledge(scrubbed)
	require.NoError(t, err)

	srv := serveJSON(t, statusResponse{Pledges: []wirePledge{wp}})
	defer srv.Close()

	c := &Client{ClientMode: true}
	known := map[pledge.PledgeID]struct{}{origID: {}}
	result, err := c.FetchStatus(context.Background(), testProject(t, srv.URL), known)
	require.NoError(t, err)
	require.Empty(t, result.Pledges)
}

func TestFetchStatusClientModeDropsRevokedPledge(t *testing.T) {
	p := buildPledge(t, wire.OutPoint{Index: 3})
	id, err := p.ID()
	require.NoError(t, err)

	wp, err := encodePledge(p)
	require.NoError(t, err)

	srv := serveJSON(t, statusResponse{Pledges: []wirePledge{wp}})
	defer srv.Close()

	c := &Client{
		ClientMode: true,
		Wallet:     &fakeRevocationChecker{revoked: map[pledge.PledgeID]bool{id: true}},
	}
	result, err := c.FetchStatus(context.Background(), testProject(t, srv.URL), nil)
	require.NoError(t, err)
	require.Empty(t, result.Pledges)
}

func TestFetchStatusServerModeKeepsEverything(t *testing.T) {
	origID := pledge.PledgeID{0x42}
	p := buildPledge(t, wire.OutPoint{Index: 4})
	p.OrigHash = fn.Some(origID)

	wp, err := encodePledge(p)
	require.NoError(t, err)

	srv := serveJSON(t, statusResponse{Pledges: []wirePledge{wp}})
	defer srv.Close()

	c := &Client{ClientMode: false}
	known := map[pledge.PledgeID]struct{}{origID: {}}
	result, err := c.FetchStatus(context.Background(), testProject(t, srv.URL), known)
	require.NoError(t, err)
	require.Len(t, result.Pledges, 1)
}

func TestFetchStatusNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{}
	_, err := c.FetchStatus(context.Background(), testProject(t, srv.URL), nil)
	require.Error(t, err)
}
