// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/chain"
	"github.com/lighthouse-io/lighthoused/claim"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/scheduler"
	"github.com/lighthouse-io/lighthoused/server"
)

// Start connects the chain backend, begins draining its wallet, disk, and
// chain notification sources, and begins the initial disk load in the
// background. Call WaitForInit to block until that load finishes.
func (b *Backend) Start() error {
	if b.peers != nil {
		if err := b.peers.Start(); err != nil {
			return fmt.Errorf("starting chain backend: %w", err)
		}
	}
	b.sched.Start()

	if b.wallet != nil {
		b.wallet.AddOnPledgeHandler(b.onWalletPledge)
		b.wallet.AddOnRevokeHandler(b.onWalletRevoke)
	}

	b.wg.Add(1)
	go b.loadInitial()

	if b.peers != nil {
		b.wg.Add(1)
		go b.watchChainNotifications()
	}

	if b.disk != nil {
		b.wg.Add(1)
		go b.watchDisk()
	}

	return nil
}

// Stop signals every background goroutine and the engine thread to exit.
func (b *Backend) Stop() {
	close(b.quit)
	if b.peers != nil {
		b.peers.Stop()
	}
	b.sched.Stop()
}

// WaitForShutdown blocks until Start's background goroutines and the engine
// thread have both exited.
func (b *Backend) WaitForShutdown() {
	b.wg.Wait()
	b.sched.WaitForShutdown()
}

func (b *Backend) loadInitial() {
	defer b.wg.Done()
	if b.disk == nil {
		b.finishInit(nil)
		return
	}
	projects, err := b.disk.LoadAll()
	if err != nil {
		b.finishInit(fmt.Errorf("loading projects from disk: %w", err))
		return
	}
	for _, project := range projects {
		b.handleProjectAdded(project)
	}
	b.finishInit(nil)
}

// handleProjectAdded is the "disk project added" event of the orchestrator:
// register the project, then either kick off a server refresh (client with
// a server) or wait for its pledge directory to be watched — the existing
// pledges there arrive as ordinary "disk pledge added" events.
func (b *Backend) handleProjectAdded(project *pledge.Project) {
	scheduler.RunOnThread(b.sched, func() struct{} {
		b.addProject(project)
		return struct{}{}
	})

	if project.HasServer() && b.mode == ModeClient {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HTTPTimeout)
			defer cancel()
			if err := b.RefreshProjectStatusFromServer(ctx, project); err != nil {
				log.Warnf("project %v: initial server refresh: %v", project.ID, err)
			}
		}()

		b.wg.Add(1)
		go b.watchPush(project)
	}
}

func (b *Backend) handleProjectRemoved(id pledge.ProjectID) {
	scheduler.RunOnThread(b.sched, func() struct{} {
		b.removeProject(id)
		if cancel, ok := b.pushCancel[id]; ok {
			cancel()
			delete(b.pushCancel, id)
		}
		return struct{}{}
	})
	log.Infof("project %v removed from disk", id)
}

// pushClient is the subset of server.PushClient's behavior Backend needs,
// kept as an interface so a test can substitute a fake rather than dial a
// real websocket.
type pushClient interface {
	Start()
	Notifications() <-chan pledge.ProjectID
	Stop() error
	WaitForShutdown()
}

// watchPush dials project's websocket push channel, if it has one, and
// feeds every notification through the same RefreshProjectStatusFromServer
// path the jittered poll uses. A dial failure or a dropped connection is
// never treated as an error up the stack — the jittered poll is always
// still running as a fallback, per PushClient's own doc comment.
func (b *Backend) watchPush(project *pledge.Project) {
	defer b.wg.Done()

	u := project.PaymentURL.UnwrapOr(nil)
	if u == nil {
		return
	}

	client, err := b.cfg.PushDialer(server.PushConfig{URL: server.PushURLForProject(u)})
	if err != nil {
		log.Debugf("project %v: push channel unavailable, relying on jittered poll: %v",
			project.ID, err)
		return
	}
	client.Start()
	defer func() {
		client.Stop()
		client.WaitForShutdown()
	}()

	quit := make(chan struct{})
	scheduler.RunOnThread(b.sched, func() struct{} {
		b.pushCancel[project.ID] = func() {
			select {
			case <-quit:
			default:
				close(quit)
			}
		}
		return struct{}{}
	})

	for {
		select {
		case id, ok := <-client.Notifications():
			if !ok {
				return
			}
			target := project
			if p, found := b.GetProjectByID(id); found {
				target = p
			}
			ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HTTPTimeout)
			if err := b.RefreshProjectStatusFromServer(ctx, target); err != nil {
				log.Warnf("project %v: push-triggered refresh: %v", target.ID, err)
			}
			cancel()
		case <-quit:
			return
		case <-b.quit:
			return
		}
	}
}

// handlePledgeAdded is the "disk pledge added" event: if unknown, schedule
// verification after a jittered TX_PROPAGATION_TIME_SECS delay so any
// dependency transactions the pledge references have time to spread.
func (b *Backend) handlePledgeAdded(projectID pledge.ProjectID, p *pledge.Pledge) {
	id, err := p.ID()
	if err != nil {
		log.Warnf("project %v: malformed pledge on disk: %v", projectID, err)
		return
	}

	known := scheduler.RunOnThread(b.sched, func() bool {
		_, open := b.store.Open(projectID)[id]
		_, claimed := b.store.Claimed(projectID)[id]
		return open || claimed
	})
	if known {
		return
	}

	delay := scheduler.TxPropagationDelay + scheduler.JitterDelay(b.cfg.MaxJitterSeconds)
	b.sched.Schedule(delay, func() {
		project, ok := b.projects[projectID]
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.UTXOQueryDeadline+10*time.Second)
		defer cancel()
		b.checkProject(ctx, project, []*pledge.Pledge{p}, false)
	})
}

// handlePledgeRemoved is the "disk pledge removed" event: a pledge the
// wallet itself authored and still has a record of is a benign redundancy
// loss (the disk copy simply isn't needed), so it's left alone. Anything
// else is removed from both sets.
func (b *Backend) handlePledgeRemoved(projectID pledge.ProjectID, p *pledge.Pledge) {
	id, err := p.ID()
	if err != nil {
		return
	}

	if b.wallet != nil {
		if _, err := b.wallet.GetTransaction(p.MainTx().TxHash()); err == nil {
			log.Debugf("project %v: pledge %v removed from disk but wallet still holds it",
				projectID, id)
			return
		}
	}

	scheduler.RunOnThread(b.sched, func() struct{} {
		b.store.RemoveOpen(projectID, id)
		b.store.RemoveClaimed(projectID, id)
		return struct{}{}
	})
}

func (b *Backend) watchDisk() {
	defer b.wg.Done()

	projectEvents := make(chan ProjectEvent, 16)
	pledgeEvents := make(chan PledgeEvent, 64)
	cancel, err := b.disk.Watch(projectEvents, pledgeEvents)
	if err != nil {
		log.Errorf("watching disk: %v", err)
		return
	}
	defer cancel()

	for {
		select {
		case ev, ok := <-projectEvents:
			if !ok {
				return
			}
			if ev.Removed {
				b.handleProjectRemoved(ev.Project.ID)
			} else {
				b.handleProjectAdded(ev.Project)
			}
		case ev, ok := <-pledgeEvents:
			if !ok {
				return
			}
			if ev.Removed {
				b.handlePledgeRemoved(ev.Project, ev.Pledge)
			} else {
				b.handlePledgeAdded(ev.Project, ev.Pledge)
			}
		case <-b.quit:
			return
		}
	}
}

// watchChainNotifications is the bridge that closes the gap between
// PledgingWallet (which exposes no coin-receipt or confidence-change
// callback of its own) and ClaimWatcher's requirement for both: every coin
// a wallet receives first appears as a transaction this chain backend
// already observes, so RawTxReceived and BlockConnected notifications from
// the configured peers stand in for both event sources.
func (b *Backend) watchChainNotifications() {
	defer b.wg.Done()

	notifications := b.peers.Notifications()
	for {
		select {
		case n, ok := <-notifications:
			if !ok {
				return
			}
			switch e := n.(type) {
			case chain.BlockConnected:
				b.onChainTip()
			case chain.RawTxReceived:
				b.onIncomingTx(e.Tx, e.Mined)
			}
		case <-b.quit:
			return
		}
	}
}

func (b *Backend) onIncomingTx(tx *wire.MsgTx, mined bool) {
	confidence := claim.Pending
	if mined {
		confidence = claim.Building
	}
	broadcastPeers := len(b.peers.CapablePeers())

	b.sched.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HTTPTimeout)
		defer cancel()
		if err := b.watcher.HandleTx(ctx, tx, confidence, broadcastPeers); err != nil {
			log.Warnf("handling incoming tx %v: %v", tx.TxHash(), err)
		}
	})
}

// onChainTip is the "chain tip advanced" event: for every known project,
// client-with-server gets a jittered server refresh, everything else gets
// a jittered full P2P requery of its currently open pledges.
func (b *Backend) onChainTip() {
	projects := scheduler.RunOnThread(b.sched, func() []*pledge.Project {
		out := make([]*pledge.Project, 0, len(b.projects))
		for _, p := range b.projects {
			out = append(out, p)
		}
		return out
	})

	for _, project := range projects {
		project := project
		delay := scheduler.BlockPropagationDelay + scheduler.JitterDelay(b.cfg.MaxJitterSeconds)

		if project.HasServer() && b.mode == ModeClient {
			b.sched.Schedule(delay, func() {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HTTPTimeout)
					defer cancel()
					if err := b.RefreshProjectStatusFromServer(ctx, project); err != nil {
						log.Warnf("project %v: server refresh: %v", project.ID, err)
					}
				}()
			})
			continue
		}

		b.sched.Schedule(delay, func() {
			set := b.store.Open(project.ID)
			candidates := make([]*pledge.Pledge, 0, len(set))
			for _, p := range set {
				candidates = append(candidates, p)
			}
			ctx, cancel := context.WithTimeout(context.Background(), b.cfg.UTXOQueryDeadline+10*time.Second)
			defer cancel()
			b.checkProject(ctx, project, candidates, true)
		})
	}
}

func (b *Backend) onWalletPledge(p *pledge.Pledge) {
	id, err := p.ID()
	if err != nil {
		log.Warnf("wallet produced malformed pledge: %v", err)
		return
	}
	b.sched.Submit(func() {
		b.store.AddOpen(p.ProjectID, id, p)
	})
}

func (b *Backend) onWalletRevoke(id pledge.PledgeID) {
	b.sched.Submit(func() {
		for projectID := range b.projects {
			if _, ok := b.store.Open(projectID)[id]; ok {
				b.store.RemoveOpen(projectID, id)
				return
			}
		}
	})
}

// addProject registers project, watches its output scripts with the
// wallet so revocations and claims can be recognised, and (in server mode)
// indexes it by payment-URL path for HTTP routing. A server-mode project
// with no payment URL cannot be routed to at all, so it is rejected
// outright rather than registered half-usable. Must run on the engine
// thread.
func (b *Backend) addProject(project *pledge.Project) {
	b.sched.AssertOnThread()
	if _, exists := b.projects[project.ID]; exists {
		return
	}

	if b.mode == ModeServer {
		if err := b.indexByURLPath(project); err != nil {
			log.Errorf("project %v: %v", project.ID, err)
			return
		}
	}

	b.projects[project.ID] = project
	b.notifyProjects(ProjectChange{Added: true, Project: project})

	if b.wallet != nil {
		scripts := make([][]byte, len(project.Outputs))
		for i, out := range project.Outputs {
			scripts[i] = out.PkScript
		}
		if err := b.wallet.AddWatchedScripts(scripts); err != nil {
			log.Warnf("project %v: watching output scripts: %v", project.ID, err)
		}
	}
}

// removeProject must run on the engine thread.
func (b *Backend) removeProject(id pledge.ProjectID) {
	b.sched.AssertOnThread()
	project, ok := b.projects[id]
	if !ok {
		return
	}
	delete(b.projects, id)
	b.notifyProjects(ProjectChange{Added: false, Project: project})

	if b.mode == ModeServer {
		if u := project.PaymentURL.UnwrapOr(nil); u != nil {
			b.urlMu.Lock()
			delete(b.urlIndex, u.Path)
			b.urlMu.Unlock()
		}
	}
}

// indexByURLPath indexes project under its payment URL's path, the
// routing key a server process resolves incoming HTTP requests with. A
// project cannot be hosted without one.
func (b *Backend) indexByURLPath(project *pledge.Project) error {
	u := project.PaymentURL.UnwrapOr(nil)
	if u == nil {
		return fmt.Errorf("project has no payment URL: cannot work like this")
	}
	b.urlMu.Lock()
	b.urlIndex[u.Path] = project.ID
	b.urlMu.Unlock()
	return nil
}

// AssembleAndBroadcastClaim merges every currently open pledge of project
// into a claim transaction and broadcasts it — the "any party can
// assemble and broadcast the claim transaction" operation from the
// original purpose text.
func (b *Backend) AssembleAndBroadcastClaim(ctx context.Context, project *pledge.Project) (*wire.MsgTx, error) {
	pledges := scheduler.RunOnThread(b.sched, func() []*pledge.Pledge {
		set := b.store.Open(project.ID)
		out := make([]*pledge.Pledge, 0, len(set))
		for _, p := range set {
			out = append(out, p)
		}
		return out
	})

	claimTx, err := b.assembler.Assemble(project, pledges)
	if err != nil {
		return nil, err
	}

	if b.peers != nil {
		if err := b.peers.Broadcast(ctx, claimTx); err != nil {
			return nil, &pledge.VerifyError{Kind: pledge.TransportError, Err: err}
		}
	}

	return claimTx, nil
}
