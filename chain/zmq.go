// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lightninglabs/gozmq"
)

const (
	// rawTxZMQCommand is the command bitcoind tags a rawtx publication
	// with.
	rawTxZMQCommand = "rawtx"

	// maxRawTxSize is the largest transaction this package will
	// deserialize off the wire.
	maxRawTxSize = 4e6

	// seqNumLen is the length in bytes of the sequence number bitcoind
	// appends to every ZMQ message.
	seqNumLen = 4
)

// ZMQConfig holds the connection parameters for a bitcoind ZMQ rawtx
// subscription.
type ZMQConfig struct {
	// Host is the IP address and port of bitcoind's rawtx publisher.
	Host string

	// ReadDeadline is the read deadline applied to the ZMQ socket.
	ReadDeadline time.Duration
}

// ZMQTxWatcher delivers every transaction bitcoind broadcasts to its rawtx
// ZMQ socket, well before it has a chance of being mined. It only
// delivers transactions; it assigns no confidence, and neither the
// backend nor cmd/lighthoused constructs one.
type ZMQTxWatcher struct {
	conn *gozmq.Conn

	txNtfns chan *wire.MsgTx

	wg   sync.WaitGroup
	quit chan struct{}
}

// NewZMQTxWatcher subscribes to bitcoind's rawtx ZMQ publisher.
func NewZMQTxWatcher(cfg *ZMQConfig) (*ZMQTxWatcher, error) {
	conn, err := gozmq.Subscribe(
		cfg.Host, []string{rawTxZMQCommand}, cfg.ReadDeadline,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to subscribe for zmq tx events: %w", err)
	}

	return &ZMQTxWatcher{
		conn:    conn,
		txNtfns: make(chan *wire.MsgTx),
		quit:    make(chan struct{}),
	}, nil
}

// Start spins off the ZMQ read loop.
func (z *ZMQTxWatcher) Start() error {
	z.wg.Add(1)
	go z.txEventHandler()
	return nil
}

// Stop closes the ZMQ socket and waits for the read loop to exit.
func (z *ZMQTxWatcher) Stop() error {
	err := z.conn.Close()
	close(z.quit)
	z.wg.Wait()
	return err
}

// TxNotifications returns the channel every rawtx-published transaction is
// delivered on.
func (z *ZMQTxWatcher) TxNotifications() <-chan *wire.MsgTx {
	return z.txNtfns
}

func (z *ZMQTxWatcher) txEventHandler() {
	defer z.wg.Done()

	log.Infof("Started listening for bitcoind raw tx notifications via "+
		"ZMQ on %v", z.conn.RemoteAddr())

	var (
		command [len(rawTxZMQCommand)]byte
		seqNum  [seqNumLen]byte
		data    = make([]byte, maxRawTxSize)
	)

	for {
		select {
		case <-z.quit:
			return
		default:
		}

		bufs := [][]byte{command[:], data, seqNum[:]}
		bufs, err := z.conn.Receive(bufs)
		if err != nil {
			if err == io.EOF {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			log.Errorf("unable to receive zmq %v message: %v", rawTxZMQCommand, err)
			continue
		}

		eventType := string(bufs[0])
		if eventType != rawTxZMQCommand {
			if eventType != "" && isASCII(eventType) {
				log.Warnf("received unexpected event type from %v subscription: %v",
					rawTxZMQCommand, eventType)
			}
			continue
		}

		tx := &wire.MsgTx{}
		if err := tx.Deserialize(bytes.NewReader(bufs[1])); err != nil {
			log.Errorf("unable to deserialize transaction: %v", err)
			continue
		}

		select {
		case z.txNtfns <- tx:
		case <-z.quit:
			return
		}
	}
}

func isASCII(s string) bool {
	for _, c := range s {
		if c > 127 {
			return false
		}
	}
	return true
}
