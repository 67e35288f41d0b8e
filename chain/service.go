// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightningnetwork/lnd/ticker"
)

// PeerSetConfig configures a PeerSet.
type PeerSetConfig struct {
	// Peers is the fixed set of chain backends this PeerSet multiplexes.
	// A client-mode process typically configures exactly one (its
	// configured btcd/neutrino backend); a server process configures
	// several neutrino peers to get independent answers for quorum.
	Peers []UTXOPeer

	// RefreshInterval is how often capability readiness is re-checked
	// while waiting for enough capable peers to appear.
	RefreshInterval time.Duration

	// NewTicker constructs the ticker used for RefreshInterval. Defaults
	// to lnd/ticker.New; tests substitute a mock.
	NewTicker func(time.Duration) ticker.Ticker
}

// PeerSet tracks a fixed set of UTXOPeers and their advertised
// capabilities, giving utxo.Coordinator the "wait for N peers advertising
// a GetUTXOs-capable service flag, then re-filter before dispatch"
// two-stage behavior the original constructor relies on (SPEC_FULL
// supplemented feature #3): a peer can be connected but have its
// capability bit flip between the wait and the dispatch, so both stages
// filter independently rather than trusting a single snapshot.
type PeerSet struct {
	cfg PeerSetConfig

	mu           sync.Mutex
	started      bool
	notify       chan interface{}
	notifyWg     sync.WaitGroup
	notifyCancel chan struct{}
}

// NewPeerSet constructs a PeerSet from its config, applying sane defaults.
func NewPeerSet(cfg PeerSetConfig) *PeerSet {
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 10 * time.Second
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = func(d time.Duration) ticker.Ticker {
			return ticker.New(d)
		}
	}
	return &PeerSet{cfg: cfg}
}

// Start connects every configured peer and begins fanning their
// notifications into the single channel Notifications returns.
func (s *PeerSet) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	for _, p := range s.cfg.Peers {
		if err := p.Start(); err != nil {
			return err
		}
	}

	s.notify = make(chan interface{}, 64)
	s.notifyCancel = make(chan struct{})
	for _, p := range s.cfg.Peers {
		p := p
		s.notifyWg.Add(1)
		go func() {
			defer s.notifyWg.Done()
			for {
				select {
				case n, ok := <-p.Notifications():
					if !ok {
						return
					}
					select {
					case s.notify <- n:
					case <-s.notifyCancel:
						return
					}
				case <-s.notifyCancel:
					return
				}
			}
		}()
	}

	s.started = true
	return nil
}

// Stop disconnects every configured peer and stops the notification fan-in.
func (s *PeerSet) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	close(s.notifyCancel)
	for _, p := range s.cfg.Peers {
		p.Stop()
	}
	s.notifyWg.Wait()
	s.started = false
}

// Notifications merges every configured peer's notification channel into
// one. Valid only after Start; callers that need it before then should call
// Start first.
func (s *PeerSet) Notifications() <-chan interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify
}

// Broadcast relays tx through every capable peer, treating the send as
// successful if at least one peer accepts it. Used for dependency and claim
// transaction broadcast, where the caller (not PeerSet) owns the retry and
// deadline policy.
func (s *PeerSet) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	peers := s.CapablePeers()
	if len(peers) == 0 {
		peers = s.cfg.Peers
	}

	var lastErr error
	for _, p := range peers {
		if err := p.BroadcastTransaction(ctx, tx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no peers configured")
	}
	return lastErr
}

// CapablePeers returns the subset of configured peers currently
// advertising GetUTXOsService.
func (s *PeerSet) CapablePeers() []UTXOPeer {
	capable := make([]UTXOPeer, 0, len(s.cfg.Peers))
	for _, p := range s.cfg.Peers {
		if satisfiesGetUTXOs(p.Services()) {
			capable = append(capable, p)
		}
	}
	return capable
}

// satisfiesGetUTXOs reports whether a peer's advertised services make it
// usable for UTXO queries.
func satisfiesGetUTXOs(services wire.ServiceFlag) bool {
	return services&GetUTXOsService == GetUTXOsService
}

// WaitForPeers blocks, polling every RefreshInterval, until at least want
// peers advertise GetUTXOsService or ctx is done. It returns the capable
// set at the moment the threshold is reached; callers that dispatch
// asynchronously should re-filter with CapablePeers just before sending,
// since a peer's capability can still change in between.
func (s *PeerSet) WaitForPeers(ctx context.Context, want int) ([]UTXOPeer, error) {
	if capable := s.CapablePeers(); len(capable) >= want {
		return capable, nil
	}

	t := s.cfg.NewTicker(s.cfg.RefreshInterval)
	t.Resume()
	defer t.Stop()

	for {
		select {
		case <-t.Ticks():
			if capable := s.CapablePeers(); len(capable) >= want {
				return capable, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
