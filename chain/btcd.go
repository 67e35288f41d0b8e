// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// BtcdPeer answers UTXO queries against a trusted full node's RPC
// interface, using gettxout the way every RPC-backed oracle in the
// retrieval pack does (bitcoind's own RPC has no getutxos extension
// either; gettxout against the live UTXO set is the portable answer).
type BtcdPeer struct {
	*rpcclient.Client

	chainParams *chaincfg.Params

	notifications chan interface{}

	// mempool is this peer's view of which transactions it has already
	// delivered a RawTxReceived notification for, reconciled against
	// getrawmempool on every pollMempool cycle.
	mempool *mempool

	mempoolPollInterval time.Duration

	wg      sync.WaitGroup
	quit    chan struct{}
	quitMtx sync.Mutex
	started bool
}

var _ UTXOPeer = (*BtcdPeer)(nil)

// defaultMempoolPollInterval is how often BtcdPeer re-polls getrawmempool
// to catch transactions OnTxAccepted missed across a reconnect.
const defaultMempoolPollInterval = 30 * time.Second

// BtcdPeerConfig carries the RPC connection parameters for a BtcdPeer.
type BtcdPeerConfig struct {
	Conn  *rpcclient.ConnConfig
	Chain *chaincfg.Params

	// MempoolPollInterval overrides defaultMempoolPollInterval. Tests set
	// this low to avoid waiting on the real default.
	MempoolPollInterval time.Duration
}

func (c *BtcdPeerConfig) validate() error {
	if c == nil {
		return errors.New("missing rpc config")
	}
	if c.Chain == nil {
		return errors.New("missing chain params config")
	}
	if c.Conn == nil {
		return errors.New("missing conn config")
	}
	if !c.Conn.DisableTLS && c.Conn.Certificates == nil {
		return errors.New("must provide certs when TLS is enabled")
	}
	return nil
}

// NewBtcdPeer connects to the server described by cfg. The connection is
// not established until Start is called.
func NewBtcdPeer(cfg *BtcdPeerConfig) (*BtcdPeer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.Conn.DisableAutoReconnect = false
	cfg.Conn.DisableConnectOnNew = true

	pollInterval := cfg.MempoolPollInterval
	if pollInterval == 0 {
		pollInterval = defaultMempoolPollInterval
	}

	p := &BtcdPeer{
		chainParams:         cfg.Chain,
		notifications:       make(chan interface{}),
		mempool:             newMempool(),
		mempoolPollInterval: pollInterval,
		quit:                make(chan struct{}),
	}

	ntfnHandlers := &rpcclient.NotificationHandlers{
		OnClientConnected: func() {
			p.deliver(ClientConnected{})
		},
		OnBlockConnected: func(hash *chainhash.Hash, height int32, t time.Time) {
			if block, err := p.Client.GetBlock(hash); err == nil {
				p.mempool.clean(block.Transactions)
			}
			p.deliver(BlockConnected{Hash: *hash, Height: height, Time: t})
		},
		OnTxAccepted: func(hash *chainhash.Hash, amount btcutil.Amount) {
			if p.mempool.containsTx(*hash) {
				return
			}
			tx, err := p.Client.GetRawTransaction(hash)
			if err != nil {
				log.Warnf("could not fetch newly accepted tx %v: %v", hash, err)
				return
			}
			p.mempool.add(tx.MsgTx())
			p.deliver(RawTxReceived{Tx: tx.MsgTx(), Mined: false})
		},
	}

	client, err := rpcclient.New(cfg.Conn, ntfnHandlers)
	if err != nil {
		return nil, err
	}
	p.Client = client
	return p, nil
}

func (p *BtcdPeer) deliver(ntfn interface{}) {
	select {
	case p.notifications <- ntfn:
	case <-p.quit:
	}
}

// Start establishes the RPC connection and begins streaming notifications.
func (p *BtcdPeer) Start() error {
	if err := p.Connect(20); err != nil {
		return err
	}

	net, err := p.GetCurrentNet()
	if err != nil {
		p.Disconnect()
		return err
	}
	if net != p.chainParams.Net {
		p.Disconnect()
		return errors.New("mismatched networks")
	}

	if err := p.NotifyBlocks(); err != nil {
		p.Disconnect()
		return fmt.Errorf("subscribing to new blocks: %w", err)
	}
	if err := p.NotifyNewTransactions(false); err != nil {
		p.Disconnect()
		return fmt.Errorf("subscribing to new transactions: %w", err)
	}

	p.quitMtx.Lock()
	p.started = true
	p.quitMtx.Unlock()

	p.wg.Add(1)
	go p.mempoolPoller()

	return nil
}

// mempoolPoller periodically reconciles this peer's mempool view against
// getrawmempool, delivering RawTxReceived for anything OnTxAccepted missed
// across a reconnect.
func (p *BtcdPeer) mempoolPoller() {
	defer p.wg.Done()

	t := time.NewTicker(p.mempoolPollInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			p.pollMempool()
		case <-p.quit:
			return
		}
	}
}

// pollMempool fetches the current mempool, delivers a notification for any
// transaction not already known, and evicts anything no longer reported.
func (p *BtcdPeer) pollMempool() {
	txids, err := p.GetRawMempool()
	if err != nil {
		log.Errorf("unable to retrieve mempool: %v", err)
		return
	}

	p.mempool.unmarkAll()

	for _, txid := range txids {
		if p.mempool.containsTx(*txid) {
			p.mempool.mark(*txid)
			continue
		}

		tx, err := p.Client.GetRawTransaction(txid)
		if err != nil {
			log.Errorf("unable to fetch mempool tx %v: %v", txid, err)
			continue
		}
		p.mempool.add(tx.MsgTx())
		p.mempool.mark(*txid)
		p.deliver(RawTxReceived{Tx: tx.MsgTx(), Mined: false})
	}

	p.mempool.deleteUnmarked()
}

// Stop shuts down the RPC connection.
func (p *BtcdPeer) Stop() {
	p.quitMtx.Lock()
	defer p.quitMtx.Unlock()
	if !p.started {
		return
	}
	close(p.quit)
	p.Shutdown()
	p.started = false
}

// WaitForShutdown blocks until the underlying RPC client has shut down.
func (p *BtcdPeer) WaitForShutdown() {
	p.Client.WaitForShutdown()
	p.wg.Wait()
}

// Services reports the capability flags this peer answers for. A
// gettxout-backed RPC connection can always answer UTXO queries, so it
// always reports GetUTXOsService.
func (p *BtcdPeer) Services() wire.ServiceFlag {
	return GetUTXOsService | wire.SFNodeNetwork
}

// QueryUTXO issues one gettxout call per outpoint, one after another.
// bitcoind's RPC has no batched equivalent; utxo.Coordinator sends each
// peer the whole batch in a single call and runs the peers concurrently.
func (p *BtcdPeer) QueryUTXO(ctx context.Context, outpoints []wire.OutPoint) (map[wire.OutPoint]UTXOResult, error) {
	out := make(map[wire.OutPoint]UTXOResult, len(outpoints))
	for _, op := range outpoints {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		res, err := p.GetTxOut(&op.Hash, op.Index, true)
		if err != nil {
			return out, fmt.Errorf("gettxout %s: %w", op, err)
		}
		if res == nil {
			out[op] = UTXOResult{Exists: false}
			continue
		}

		script, err := hex.DecodeString(res.ScriptPubKey.Hex)
		if err != nil {
			return out, fmt.Errorf("decoding scriptPubKey for %s: %w", op, err)
		}
		value, err := btcutil.NewAmount(res.Value)
		if err != nil {
			return out, fmt.Errorf("decoding value for %s: %w", op, err)
		}
		out[op] = UTXOResult{Exists: true, Script: script, Value: value}
	}
	return out, nil
}

// BroadcastTransaction relays tx via sendrawtransaction.
func (p *BtcdPeer) BroadcastTransaction(ctx context.Context, tx *wire.MsgTx) error {
	_, err := p.SendRawTransaction(tx, false)
	return err
}

// Notifications returns the channel new-transaction notifications are
// delivered on.
func (p *BtcdPeer) Notifications() <-chan interface{} {
	return p.notifications
}
