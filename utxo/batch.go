// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package utxo

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/verify"
)

// batch accumulates the outpoints of every pledge check that arrives while
// a query round is being assembled, so the coordinator can issue one
// on-wire request per round instead of one per pledge. Each caller waits
// on its own result channel but contributes to (and reads from) the
// shared round's reconciled answer.
type batch struct {
	mu        sync.Mutex
	outpoints map[wire.OutPoint]struct{}
	waiters   []*waiter
}

type waiter struct {
	outpoints []wire.OutPoint
	result    chan roundResult
}

type roundResult struct {
	info map[wire.OutPoint]verify.UTXOInfo
	err  error
}

func newBatch() *batch {
	return &batch{outpoints: make(map[wire.OutPoint]struct{})}
}

// add registers outpoints as wanted by this round and returns the waiter
// that will receive the round's answer.
func (b *batch) add(outpoints []wire.OutPoint) *waiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, op := range outpoints {
		b.outpoints[op] = struct{}{}
	}
	w := &waiter{outpoints: outpoints, result: make(chan roundResult, 1)}
	b.waiters = append(b.waiters, w)
	return w
}

// drain returns the union of outpoints accumulated so far and every
// waiter registered, clearing the batch for the next round.
func (b *batch) drain() ([]wire.OutPoint, []*waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()

	outpoints := make([]wire.OutPoint, 0, len(b.outpoints))
	for op := range b.outpoints {
		outpoints = append(outpoints, op)
	}
	waiters := b.waiters

	b.outpoints = make(map[wire.OutPoint]struct{})
	b.waiters = nil
	return outpoints, waiters
}

// deliver fans a round's reconciled answer out to every waiter that asked
// for it, each only seeing the keys it actually requested.
func deliver(waiters []*waiter, info map[wire.OutPoint]verify.UTXOInfo, err error) {
	for _, w := range waiters {
		if err != nil {
			w.result <- roundResult{err: err}
			continue
		}
		subset := make(map[wire.OutPoint]verify.UTXOInfo, len(w.outpoints))
		for _, op := range w.outpoints {
			if v, ok := info[op]; ok {
				subset[op] = v
			}
		}
		w.result <- roundResult{info: subset}
	}
}

// wait blocks for the waiter's result or ctx cancellation.
func (w *waiter) wait(ctx context.Context) (map[wire.OutPoint]verify.UTXOInfo, error) {
	select {
	case r := <-w.result:
		return r.info, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
