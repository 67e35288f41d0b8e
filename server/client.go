// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultTimeout bounds a single status fetch; spec §5's "whatever the
// transport reports" cancellation policy still needs some finite bound so
// a wedged server can't hang the caller's jittered refresh indefinitely.
const DefaultTimeout = 30 * time.Second

// RevocationChecker reports whether the wallet knows a pledge to have been
// revoked, the collaborator Client needs to drop revoked pledges a server
// still lists (client mode only, per spec §4.6).
type RevocationChecker interface {
	WasPledgeRevoked(ctx context.Context, id pledge.PledgeID) (bool, error)
}

// Result is what a status fetch produces: the pledges the server vouches
// for (already filtered, in client mode, of anything the wallet knows to
// be stale) and the claim txid the server reports, if any.
type Result struct {
	Pledges   []*pledge.Pledge
	ClaimedBy fn.Option[chainhash.Hash]
}

// Client is the ServerClient of spec §4.6: it fetches a project's status
// from its payment URL and applies client-mode trust rules. Server
// responses are otherwise trusted outright, since the recipient of the
// funds runs the server.
type Client struct {
	// HTTPClient is used for the status fetch. Defaults to a client with
	// DefaultTimeout if nil.
	HTTPClient *http.Client

	// Wallet is consulted, in client mode, to drop server-returned
	// pledges the wallet already knows were revoked. May be nil in
	// server mode, where no such filtering applies.
	Wallet RevocationChecker

	// ClientMode gates the revoked/scrubbed-duplicate filtering spec
	// §4.6 restricts to client mode; a server trusts its own pledge list
	// unconditionally.
	ClientMode bool
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

// FetchStatus fetches and decodes project's status. knownLocalHashes is a
// snapshot of pledge IDs already present in the local open-set for this
// project, used to recognise a scrubbed duplicate of a pledge this wallet
// itself originated (matched via orig_hash, spec §4.6's second client-mode
// rule). The caller takes this snapshot on the engine thread since Client
// itself never touches engine-thread state.
func (c *Client) FetchStatus(ctx context.Context, project *pledge.Project,
	knownLocalHashes map[pledge.PledgeID]struct{}) (Result, error) {

	if project.PaymentURL.IsNone() {
		return Result{}, fmt.Errorf("project %v has no payment URL", project.ID)
	}
	u := project.PaymentURL.UnwrapOr(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("building status request: %w", err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetching project status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("project status endpoint returned %s", resp.Status)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decoding status response: %w", err)
	}

	result := Result{Pledges: make([]*pledge.Pledge, 0, len(body.Pledges))}
	for i, wp := range body.Pledges {
		p, err := decodePledge(project.ID, wp)
		if err != nil {
			return Result{}, fmt.Errorf("pledge %d: %w", i, err)
		}

		keep, err := c.shouldKeep(ctx, p, knownLocalHashes)
		if err != nil {
			return Result{}, fmt.Errorf("pledge %d: %w", i, err)
		}
		if !keep {
			continue
		}
		result.Pledges = append(result.Pledges, p)
	}

	if body.ClaimedBy != "" {
		h, err := parseHash(body.ClaimedBy)
		if err != nil {
			return Result{}, fmt.Errorf("decoding claimed_by: %w", err)
		}
		result.ClaimedBy = fn.Some(h)
	}

	log.Debugf("project %v: fetched %d pledge(s) from server, claimed=%v",
		project.ID, len(result.Pledges), result.ClaimedBy.IsSome())

	return result, nil
}

// shouldKeep applies spec §4.6's two client-mode-only trust rules: drop a
// pledge the wallet knows was revoked, and drop a pledge that's a
// metadata-scrubbed copy of one we already hold locally (matched by
// orig_hash). Neither rule applies in server mode.
func (c *Client) shouldKeep(ctx context.Context, p *pledge.Pledge,
	knownLocalHashes map[pledge.PledgeID]struct{}) (bool, error) {

	if !c.ClientMode {
		return true, nil
	}

	if p.OrigHash.IsSome() {
		orig := p.OrigHash.UnwrapOr(pledge.PledgeID{})
		if _, known := knownLocalHashes[orig]; known {
			return false, nil
		}
	}

	if c.Wallet != nil {
		id, err := p.ID()
		if err != nil {
			return false, fmt.Errorf("hashing pledge: %w", err)
		}
		revoked, err := c.Wallet.WasPledgeRevoked(ctx, id)
		if err != nil {
			return false, fmt.Errorf("checking revocation: %w", err)
		}
		if revoked {
			return false, nil
		}
	}

	return true, nil
}
