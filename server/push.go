// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package server

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sync"

	"github.com/btcsuite/websocket"
	"github.com/lighthouse-io/lighthoused/pledge"
)

// PushConfig configures a PushClient's connection to a server's push
// endpoint.
type PushConfig struct {
	// URL is the websocket endpoint, e.g. wss://host/push.
	URL string

	// Header carries any auth headers the server requires for the
	// upgrade request.
	Header http.Header
}

// pushMessage is the one message shape a push endpoint sends: "this
// project's status changed, refresh it." Like statusResponse, this wire
// format is this module's own invention (see DESIGN.md).
type pushMessage struct {
	ProjectID string `json:"project_id"`
}

// PushClient is the optional push channel from spec §4.6's "whatever the
// transport reports" allowance: a server may offer a websocket so a
// client learns about a status change before its next jittered poll.
// Losing the connection is not fatal — the jittered poll is still there as
// a fallback — so PushClient makes no attempt to reconnect; the caller
// decides whether and when to redial.
type PushClient struct {
	conn          *websocket.Conn
	notifications chan pledge.ProjectID

	wg   sync.WaitGroup
	quit chan struct{}
}

// PushURLForProject derives a project's websocket push endpoint from its
// HTTPS payment URL: same host and path, scheme swapped to ws/wss and
// "push" appended. Like statusResponse's wire shape, this derivation rule
// is this module's own invention — spec.md names the push channel's
// existence but not a URL convention for finding it.
func PushURLForProject(paymentURL *url.URL) string {
	scheme := "ws"
	if paymentURL.Scheme == "https" {
		scheme = "wss"
	}
	u := *paymentURL
	u.Scheme = scheme
	u.Path = path.Join(u.Path, "push")
	return u.String()
}

// Dial connects to a push endpoint and returns a PushClient ready to
// Start.
func Dial(cfg PushConfig) (*PushClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(cfg.URL, cfg.Header)
	if err != nil {
		return nil, fmt.Errorf("dialing push endpoint: %w", err)
	}
	return &PushClient{
		conn:          conn,
		notifications: make(chan pledge.ProjectID, 16),
		quit:          make(chan struct{}),
	}, nil
}

// Start begins reading push messages in the background.
func (c *PushClient) Start() {
	c.wg.Add(1)
	go c.readLoop()
}

func (c *PushClient) readLoop() {
	defer c.wg.Done()
	for {
		var msg pushMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			log.Debugf("push client: read loop exiting: %v", err)
			return
		}

		id, err := parseHash(msg.ProjectID)
		if err != nil {
			log.Warnf("push client: malformed project_id %q: %v", msg.ProjectID, err)
			continue
		}

		select {
		case c.notifications <- id:
		case <-c.quit:
			return
		}
	}
}

// Notifications delivers the project IDs a server has told this client to
// refresh.
func (c *PushClient) Notifications() <-chan pledge.ProjectID {
	return c.notifications
}

// Stop closes the underlying connection, unblocking the read loop.
func (c *PushClient) Stop() error {
	close(c.quit)
	return c.conn.Close()
}

// WaitForShutdown blocks until the read loop has exited.
func (c *PushClient) WaitForShutdown() {
	c.wg.Wait()
}
