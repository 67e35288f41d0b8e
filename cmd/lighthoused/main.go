// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/rpcclient"
	"github.com/lighthouse-io/lighthoused/backend"
	"github.com/lighthouse-io/lighthoused/chain"
	"github.com/lightninglabs/neutrino"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

// lighthoudMain is the true entry point. It is a separate function from
// main so that deferred cleanups run before the process exits with a
// non-zero status, the same split the teacher's walletMain/main uses.
func lighthoudMain() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	defer log.Info("Shutdown complete")

	log.Infof("Starting lighthoused in %s mode on %s", cfg.Mode, activeNet.Params.Name)

	peer, err := newChainPeer(cfg)
	if err != nil {
		return fmt.Errorf("configuring chain backend: %w", err)
	}

	peerSet := chain.NewPeerSet(chain.PeerSetConfig{
		Peers: []chain.UTXOPeer{peer},
	})

	mode := backend.ModeClient
	if cfg.Mode == "server" {
		mode = backend.ModeServer
	}

	be := backend.New(mode, peerSet, nil, nil, backend.Config{
		MinPeersForUTXOQuery:        cfg.MinPeersForUTXOQuery,
		MaxJitterSeconds:            cfg.MaxJitterSeconds,
		UTXOQueryDeadline:           cfg.UTXOQueryDeadline,
		DependencyBroadcastDeadline: cfg.DependencyBroadcastDeadline,
		RelayFeePerKB:               cfg.RelayFeePerKB.Amount,
		HTTPTimeout:                 cfg.HTTPTimeout,
	})

	if err := be.Start(); err != nil {
		return fmt.Errorf("starting backend: %w", err)
	}

	addInterruptHandler(func() {
		log.Info("Received interrupt signal. Shutting down...")
		be.Stop()
	})

	if err := be.WaitForInit(); err != nil {
		log.Errorf("Initial load failed: %v", err)
	}

	<-interruptHandlersDone
	be.WaitForShutdown()

	return nil
}

// newChainPeer builds the single UTXO oracle a client-mode process talks to:
// a trusted full node's RPC interface when one is configured, or a
// neutrino-backed SPV client otherwise. A server-mode deployment wanting
// several independent neutrino peers for quorum constructs its PeerSetConfig
// the same way, just with more entries in Peers; the single-peer case is
// all this binary needs since it has no multi-peer configuration surface
// yet.
func newChainPeer(cfg *config) (chain.UTXOPeer, error) {
	if cfg.RPCConnect != "" {
		var certs []byte
		if !cfg.NoRPCTLS {
			var err error
			certs, err = os.ReadFile(cfg.RPCCert)
			if err != nil {
				return nil, fmt.Errorf("reading RPC certificate: %w", err)
			}
		}
		return chain.NewBtcdPeer(&chain.BtcdPeerConfig{
			Chain: activeNet.Params,
			Conn: &rpcclient.ConnConfig{
				Host:         cfg.RPCConnect,
				User:         cfg.RPCUser,
				Pass:         cfg.RPCPass,
				Certificates: certs,
				DisableTLS:   cfg.NoRPCTLS,
				HTTPPostMode: true,
			},
		})
	}

	netDir := filepath.Join(cfg.DataDir, activeNet.Params.Name)
	if err := checkCreateDir(netDir); err != nil {
		return nil, err
	}
	spvDB, err := walletdb.Create("bdb", filepath.Join(netDir, "neutrino.db"))
	if err != nil {
		return nil, fmt.Errorf("creating neutrino database: %w", err)
	}

	chainService, err := neutrino.NewChainService(neutrino.Config{
		DataDir:      netDir,
		Database:     spvDB,
		ChainParams:  *activeNet.Params,
		ConnectPeers: cfg.ConnectPeers,
	})
	if err != nil {
		spvDB.Close()
		return nil, fmt.Errorf("creating neutrino chain service: %w", err)
	}

	return chain.NewNeutrinoPeer(chainService), nil
}

func main() {
	if err := lighthoudMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
