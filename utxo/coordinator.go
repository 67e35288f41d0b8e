// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/chain"
	"github.com/lighthouse-io/lighthoused/verify"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultMinPeers is the number of GetUTXOs-capable peers a round waits
// for before dispatching, outside regtest.
const DefaultMinPeers = 2

// RegtestMinPeers is the regtest override: a solo regtest node is its own
// quorum of one.
const RegtestMinPeers = 1

// DefaultQueryDeadline bounds how long a round waits on peer responses
// before deciding with whatever quorum it already has.
const DefaultQueryDeadline = 10 * time.Second

// Config configures a Coordinator.
type Config struct {
	Peers    *chain.PeerSet
	MinPeers int
	Deadline time.Duration
}

// Coordinator is the UTXOQueryCoordinator of spec §4.4: it batches the
// outpoints of every pledge check in flight into one request per round,
// fans that request out to every capable peer, and reconciles their
// answers by consistent-oracle replication before handing verify.Verify a
// single map it can trust.
//
// At most one round is ever in flight — concurrent Query calls that land
// while a round is being assembled join it rather than starting their
// own, and singleflight collapses concurrent attempts to start the actual
// network round into one.
type Coordinator struct {
	cfg Config

	mu      sync.Mutex
	current *batch

	sf singleflight.Group
}

var _ verify.Oracle = (*Coordinator)(nil)

// New constructs a Coordinator. A zero MinPeers defaults to
// DefaultMinPeers; callers running against regtest should pass
// RegtestMinPeers explicitly (SPEC_FULL supplemented feature #2).
func New(cfg Config) *Coordinator {
	if cfg.MinPeers == 0 {
		cfg.MinPeers = DefaultMinPeers
	}
	if cfg.Deadline == 0 {
		cfg.Deadline = DefaultQueryDeadline
	}
	return &Coordinator{cfg: cfg, current: newBatch()}
}

// Query implements verify.Oracle. It joins the round currently being
// assembled (or starts one) and blocks for that round's reconciled
// answer.
func (c *Coordinator) Query(ctx context.Context, outpoints []wire.OutPoint) (map[wire.OutPoint]verify.UTXOInfo, error) {
	c.mu.Lock()
	b := c.current
	w := b.add(outpoints)
	c.mu.Unlock()

	go c.runRound(ctx, b)

	return w.wait(ctx)
}

// runRound collapses concurrent attempts to start the network round for
// batch b into one via singleflight, then reconciles and delivers the
// result to every waiter b had accumulated when the round actually
// started.
func (c *Coordinator) runRound(ctx context.Context, b *batch) {
	c.sf.Do("round", func() (interface{}, error) {
		c.mu.Lock()
		if c.current == b {
			c.current = newBatch()
		}
		c.mu.Unlock()

		outpoints, waiters := b.drain()
		if len(waiters) == 0 {
			return nil, nil
		}

		info, err := c.dispatch(ctx, outpoints)
		deliver(waiters, info, err)
		return nil, nil
	})
}

// dispatch waits for enough capable peers, fans the batched request out
// to all of them, and reconciles their answers.
func (c *Coordinator) dispatch(ctx context.Context, outpoints []wire.OutPoint) (map[wire.OutPoint]verify.UTXOInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()

	peers, err := c.cfg.Peers.WaitForPeers(ctx, c.cfg.MinPeers)
	if err != nil {
		return nil, err
	}
	// Re-filter immediately before dispatch: a peer's capability can
	// have flipped since WaitForPeers last checked it (SPEC_FULL
	// supplemented feature #3).
	peers = c.cfg.Peers.CapablePeers()

	answers := make([]map[wire.OutPoint]chain.UTXOResult, len(peers))
	var g errgroup.Group
	for i, p := range peers {
		i, p := i, p
		g.Go(func() error {
			res, err := p.QueryUTXO(ctx, outpoints)
			if err != nil {
				log.Debugf("utxo query to peer failed: %v", err)
				return nil
			}
			answers[i] = res
			return nil
		})
	}
	// Errors from individual peers are swallowed above: a slow or
	// failing peer should not fail the round, only shrink its quorum.
	_ = g.Wait()

	responded := make([]map[wire.OutPoint]chain.UTXOResult, 0, len(answers))
	for _, a := range answers {
		if a != nil {
			responded = append(responded, a)
		}
	}

	return reconcile(outpoints, responded), nil
}

// reconcile applies consistent-oracle replication: an outpoint is only
// trusted if a strict majority of responding peers agree on its
// existence, script and value. Disagreement (or no majority at all)
// leaves the outpoint out of the result entirely, which verify.Verify
// treats identically to an outpoint that was never answered: UnknownUTXO.
func reconcile(outpoints []wire.OutPoint, responses []map[wire.OutPoint]chain.UTXOResult) map[wire.OutPoint]verify.UTXOInfo {
	out := make(map[wire.OutPoint]verify.UTXOInfo, len(outpoints))
	if len(responses) == 0 {
		return out
	}

	for _, op := range outpoints {
		votes := make(map[string]verify.UTXOInfo)
		counts := make(map[string]int)
		answered := 0
		for _, resp := range responses {
			res, ok := resp[op]
			if !ok {
				continue
			}
			answered++
			key := voteKey(res)
			votes[key] = verify.UTXOInfo{
				Exists: res.Exists,
				Script: res.Script,
				Value:  res.Value,
			}
			counts[key]++
		}
		if answered == 0 {
			continue
		}

		var bestKey string
		var bestCount int
		for k, n := range counts {
			if n > bestCount {
				bestKey, bestCount = k, n
			}
		}
		if bestCount*2 > answered {
			out[op] = votes[bestKey]
		}
	}
	return out
}

func voteKey(res chain.UTXOResult) string {
	if !res.Exists {
		return "absent"
	}
	var buf bytes.Buffer
	buf.WriteString("present:")
	buf.Write(res.Script)
	buf.WriteByte(':')
	buf.WriteString(res.Value.String())
	return buf.String()
}
