// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package server

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// statusResponse is the JSON body of a project's HTTPS status endpoint:
// the server-accepted pledge list plus an optional claim txid. The wire
// format itself is this module's own invention, documented in DESIGN.md.
type statusResponse struct {
	Pledges   []wirePledge `json:"pledges"`
	ClaimedBy string       `json:"claimed_by,omitempty"`
}

// wirePledge mirrors pledge.Pledge's fields in a JSON-transportable form:
// the PSBT and its dependency transactions base64-encoded, and orig_hash
// hex-encoded when the server has scrubbed the pledge's metadata.
type wirePledge struct {
	Main         string   `json:"main"`
	Dependencies []string `json:"dependencies,omitempty"`
	OrigHash     string   `json:"orig_hash,omitempty"`
}

func decodePledge(project pledge.ProjectID, wp wirePledge) (*pledge.Pledge, error) {
	pkt, err := psbt.NewFromRawBytes(strings.NewReader(wp.Main), true)
	if err != nil {
		return nil, fmt.Errorf("decoding main psbt: %w", err)
	}

	deps := make([]*wire.MsgTx, 0, len(wp.Dependencies))
	for i, depB64 := range wp.Dependencies {
		raw, err := base64.StdEncoding.DecodeString(depB64)
		if err != nil {
			return nil, fmt.Errorf("decoding dependency %d: %w", i, err)
		}
		tx := wire.NewMsgTx(wire.TxVersion)
		if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("deserializing dependency %d: %w", i, err)
		}
		deps = append(deps, tx)
	}

	p := &pledge.Pledge{ProjectID: project, Main: pkt, Dependencies: deps}
	if wp.OrigHash != "" {
		h, err := parseHash(wp.OrigHash)
		if err != nil {
			return nil, fmt.Errorf("decoding orig_hash: %w", err)
		}
		p.OrigHash = fn.Some(h)
	}
	return p, nil
}

// encodePledge is decodePledge's inverse, used by tests to build fixture
// server responses without hand-writing base64.
func encodePledge(p *pledge.Pledge) (wirePledge, error) {
	var mainBuf bytes.Buffer
	if err := p.Main.Serialize(&mainBuf); err != nil {
		return wirePledge{}, fmt.Errorf("serializing main psbt: %w", err)
	}

	deps := make([]string, 0, len(p.Dependencies))
	for i, dep := range p.Dependencies {
		var depBuf bytes.Buffer
		if err := dep.Serialize(&depBuf); err != nil {
			return wirePledge{}, fmt.Errorf("serializing dependency %d: %w", i, err)
		}
		deps = append(deps, base64.StdEncoding.EncodeToString(depBuf.Bytes()))
	}

	wp := wirePledge{
		Main:         base64.StdEncoding.EncodeToString(mainBuf.Bytes()),
		Dependencies: deps,
	}
	if p.OrigHash.IsSome() {
		orig := p.OrigHash.UnwrapOr(pledge.PledgeID{})
		wp.OrigHash = hex.EncodeToString(orig[:])
	}
	return wp, nil
}

// parseHash decodes a plain (non-reversed) hex-encoded 32-byte hash, the
// convention this module's own wire formats use for pledge and project
// identifiers. Unlike a block-explorer txid these aren't meant for human
// display, so there's no reason to pay chainhash's byte-reversal.
func parseHash(s string) (chainhash.Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != chainhash.HashSize {
		return chainhash.Hash{}, fmt.Errorf("expected %d bytes, got %d", chainhash.HashSize, len(b))
	}
	var h chainhash.Hash
	copy(h[:], b)
	return h, nil
}
