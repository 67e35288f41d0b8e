// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scheduler

import (
	"math/rand"
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

// TickerFactory builds the ticker Schedule uses to back a delayed task.
// Tests substitute a force-fired ticker so a delayed task can be made to
// fire without waiting out real time.
type TickerFactory func(time.Duration) ticker.Ticker

func defaultTickerFactory(d time.Duration) ticker.Ticker {
	return ticker.New(d)
}

// Schedule runs fn on the engine thread after delay has elapsed. It returns
// immediately; fn is dispatched via SubmitASAP once the delay's ticker
// fires, prioritising it ahead of routine work the way a requery triggered
// by a new best block should jump the queue. Calling Stop on the Scheduler
// cancels any pending Schedule calls that haven't fired yet.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) {
	t := s.newTicker(delay)
	t.Resume()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.Stop()

		select {
		case <-t.Ticks():
			s.SubmitASAP(fn)
		case <-s.quit:
		}
	}()
}

// JitterDelay returns a random delay uniformly distributed between 1 second
// and maxJitterSeconds, inclusive, mirroring jitteredExecute in the original
// implementation: after a new best block arrives, every node should requery
// at a slightly different time so peers aren't all hit simultaneously. A
// non-positive maxJitterSeconds disables jitter entirely.
func JitterDelay(maxJitterSeconds int) time.Duration {
	if maxJitterSeconds <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(maxJitterSeconds))+1) * time.Second
}

// BlockPropagationDelay is the time to wait after observing a new best
// block before trusting that block has propagated to the UTXO-query peers,
// mirroring BLOCK_PROPAGATION_TIME_SECS in the original implementation.
const BlockPropagationDelay = 30 * time.Second

// TxPropagationDelay is the analogous wait used after broadcasting a
// transaction (a pledge's dependencies, or a claim) before querying peers
// about its effects, mirroring TX_PROPAGATION_TIME_SECS.
const TxPropagationDelay = 5 * time.Second
