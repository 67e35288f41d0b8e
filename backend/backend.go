// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/lighthouse-io/lighthoused/chain"
	"github.com/lighthouse-io/lighthoused/claim"
	"github.com/lighthouse-io/lighthoused/pledge"
	"github.com/lighthouse-io/lighthoused/pledgewallet"
	"github.com/lighthouse-io/lighthoused/scheduler"
	"github.com/lighthouse-io/lighthoused/server"
	"github.com/lighthouse-io/lighthoused/store"
	"github.com/lighthouse-io/lighthoused/utxo"
	"github.com/lighthouse-io/lighthoused/verify"
)

// Mode distinguishes a desktop client (wallet non-empty, trusts a server
// over local observation when a project has one) from a project server
// (wallet typically empty, indexes projects by payment-URL path). It is the
// same distinction verify.FastSanityCheck's dependency-count policy and
// server.Client's trust filtering key off, so Backend reuses that type
// rather than inventing a parallel one.
type Mode = verify.Mode

const (
	ModeClient = verify.ModeClient
	ModeServer = verify.ModeServer
)

// Config groups Backend's tunable knobs beyond its required collaborators.
type Config struct {
	// MinPeersForUTXOQuery is how many GetUTXOs-capable peers a round
	// waits for. Zero defaults to utxo.RegtestMinPeers (1) when the
	// wallet's params are regtest and to utxo.DefaultMinPeers (2)
	// otherwise.
	MinPeersForUTXOQuery int

	// MaxJitterSeconds bounds the random delay added to scheduled
	// requeries. Zero defaults to scheduler.BlockPropagationDelay's
	// second count (30); cmd/lighthoused passes 1 on regtest.
	MaxJitterSeconds int

	// UTXOQueryDeadline overrides utxo.DefaultQueryDeadline.
	UTXOQueryDeadline time.Duration

	// DependencyBroadcastDeadline bounds each dependency transaction's
	// broadcast during SubmitPledge, per spec's 30s-per-tx policy.
	DependencyBroadcastDeadline time.Duration

	// RelayFeePerKB is forwarded to claim.Assembler for dust-sanity
	// checking an assembled claim transaction.
	RelayFeePerKB btcutil.Amount

	// HTTPTimeout bounds a single server status fetch.
	HTTPTimeout time.Duration

	// SchedulerTickerFactory overrides the ticker backing every jittered
	// Schedule call the engine thread makes. Nil uses the real clock;
	// tests substitute a force-fired ticker so a delayed requery can be
	// made to run without waiting out real time.
	SchedulerTickerFactory scheduler.TickerFactory

	// PushDialer overrides how a client-mode project's websocket push
	// channel is dialed. Nil uses server.Dial against
	// server.PushURLForProject; tests substitute a fake so they don't
	// open a real connection. Losing or never establishing this
	// connection is never fatal — the jittered poll RefreshProjectStatus
	// already performs is the fallback.
	PushDialer func(server.PushConfig) (pushClient, error)
}

func (c Config) withDefaults(params *chaincfg.Params) Config {
	if c.MinPeersForUTXOQuery == 0 {
		if params != nil && params.Net == chaincfg.RegressionNetParams.Net {
			c.MinPeersForUTXOQuery = utxo.RegtestMinPeers
		} else {
			c.MinPeersForUTXOQuery = utxo.DefaultMinPeers
		}
	}
	if c.MaxJitterSeconds == 0 {
		c.MaxJitterSeconds = 30
	}
	if c.UTXOQueryDeadline == 0 {
		c.UTXOQueryDeadline = utxo.DefaultQueryDeadline
	}
	if c.DependencyBroadcastDeadline == 0 {
		c.DependencyBroadcastDeadline = 30 * time.Second
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = server.DefaultTimeout
	}
	if c.PushDialer == nil {
		c.PushDialer = func(cfg server.PushConfig) (pushClient, error) {
			return server.Dial(cfg)
		}
	}
	return c
}

// projectObserver and stateObserver back Backend's own two observable
// collections (the project set and the per-project lifecycle state map);
// PledgeStore only ever models pledges, not the projects that own them, so
// Backend mirrors those the same way PledgeStore mirrors pledges.
type projectObserver struct {
	exec store.Executor
	fn   func(ProjectChange)
}

type stateObserver struct {
	exec store.Executor
	fn   func(pledge.ProjectID, pledge.ProjectStateInfo)
}

// ProjectChange is a single project addition or removal posted to a
// mirror_projects observer.
type ProjectChange struct {
	Added   bool
	Project *pledge.Project
}

// Backend is the orchestrator: it wires the disk layer, the wallet, the
// chain backend, and an optional project server to PledgeStore, and is the
// sole owner of the project registry and project lifecycle state. Every
// method that touches that state runs on, or marshals through, its
// scheduler.
type Backend struct {
	mode Mode
	cfg  Config

	sched  *scheduler.Scheduler
	store  *store.Store
	peers  *chain.PeerSet
	wallet pledgewallet.PledgingWallet
	disk   DiskManager

	coordinator  *utxo.Coordinator
	assembler    *claim.Assembler
	watcher      *claim.Watcher
	serverClient *server.Client

	// Engine-thread-only state.
	projects    map[pledge.ProjectID]*pledge.Project
	states      map[pledge.ProjectID]pledge.ProjectStateInfo
	claimTx     map[pledge.ProjectID]*wire.MsgTx
	projectObs  []*projectObserver
	stateObs    []*stateObserver

	// pushCancel stops the watchPush goroutine for a client-mode project
	// with a server, keyed the same way claimTx is. Engine-thread-only.
	pushCancel map[pledge.ProjectID]func()

	// urlIndex is the one structure touched from outside the engine
	// thread (an HTTP handler resolving a payment-URL path to a
	// project), so it is guarded by its own mutex rather than the
	// scheduler.
	urlMu    sync.Mutex
	urlIndex map[string]pledge.ProjectID

	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	wg   sync.WaitGroup
	quit chan struct{}
}

// New constructs a Backend. It does not yet touch the disk, wallet or
// network; call Start to begin operating and WaitForInit to block until the
// initial disk load has completed.
func New(mode Mode, peers *chain.PeerSet, wallet pledgewallet.PledgingWallet, disk DiskManager, cfg Config) *Backend {
	var params *chaincfg.Params
	if wallet != nil {
		params = wallet.Params()
	}
	cfg = cfg.withDefaults(params)

	var schedOpts []scheduler.Option
	if cfg.SchedulerTickerFactory != nil {
		schedOpts = append(schedOpts, scheduler.WithTickerFactory(cfg.SchedulerTickerFactory))
	}
	sched := scheduler.New(schedOpts...)
	st := store.New(sched)

	b := &Backend{
		mode:       mode,
		cfg:        cfg,
		sched:      sched,
		store:      st,
		peers:      peers,
		wallet:     wallet,
		disk:       disk,
		projects:   make(map[pledge.ProjectID]*pledge.Project),
		states:     make(map[pledge.ProjectID]pledge.ProjectStateInfo),
		claimTx:    make(map[pledge.ProjectID]*wire.MsgTx),
		urlIndex:   make(map[string]pledge.ProjectID),
		pushCancel: make(map[pledge.ProjectID]func()),
		initDone:   make(chan struct{}),
		quit:       make(chan struct{}),
	}

	b.coordinator = utxo.New(utxo.Config{
		Peers:    peers,
		MinPeers: cfg.MinPeersForUTXOQuery,
		Deadline: cfg.UTXOQueryDeadline,
	})
	b.assembler = &claim.Assembler{RelayFeePerKB: cfg.RelayFeePerKB}
	b.watcher = claim.New(sched, st, b, b, b)
	b.watcher.OnClaimed = b.rememberClaimTx

	b.serverClient = &server.Client{
		ClientMode: mode == ModeClient,
		Wallet:     wallet,
	}
	if cfg.HTTPTimeout > 0 {
		b.serverClient.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	return b
}

// WaitForInit blocks until Backend's initial disk load has completed (or
// failed). Safe to call from any thread.
func (b *Backend) WaitForInit() error {
	<-b.initDone
	return b.initErr
}

func (b *Backend) finishInit(err error) {
	b.initOnce.Do(func() {
		b.initErr = err
		close(b.initDone)
	})
}

// MirrorProjects returns a snapshot of every known project and registers
// onChange to be called, via exec, on every subsequent addition or removal.
func (b *Backend) MirrorProjects(exec store.Executor, onChange func(ProjectChange)) ([]*pledge.Project, func()) {
	return scheduler.RunOnThread(b.sched, func() mirrorResult {
		snapshot := make([]*pledge.Project, 0, len(b.projects))
		for _, p := range b.projects {
			snapshot = append(snapshot, p)
		}
		obs := &projectObserver{exec: exec, fn: onChange}
		b.projectObs = append(b.projectObs, obs)
		cancel := func() {
			b.sched.Submit(func() { b.removeProjectObserver(obs) })
		}
		return mirrorResult{snapshot: snapshot, cancel: cancel}
	}).unpack()
}

type mirrorResult struct {
	snapshot []*pledge.Project
	cancel   func()
}

func (r mirrorResult) unpack() ([]*pledge.Project, func()) { return r.snapshot, r.cancel }

func (b *Backend) removeProjectObserver(target *projectObserver) {
	for i, obs := range b.projectObs {
		if obs == target {
			b.projectObs = append(b.projectObs[:i], b.projectObs[i+1:]...)
			return
		}
	}
}

func (b *Backend) notifyProjects(change ProjectChange) {
	for _, obs := range b.projectObs {
		obs := obs
		obs.exec(func() { obs.fn(change) })
	}
}

// MirrorProjectStates returns a snapshot of every project's current
// lifecycle state and registers onChange for subsequent updates.
func (b *Backend) MirrorProjectStates(exec store.Executor,
	onChange func(pledge.ProjectID, pledge.ProjectStateInfo)) (map[pledge.ProjectID]pledge.ProjectStateInfo, func()) {

	return scheduler.RunOnThread(b.sched, func() stateMirrorResult {
		snapshot := make(map[pledge.ProjectID]pledge.ProjectStateInfo, len(b.states))
		for id, info := range b.states {
			snapshot[id] = info
		}
		obs := &stateObserver{exec: exec, fn: onChange}
		b.stateObs = append(b.stateObs, obs)
		cancel := func() {
			b.sched.Submit(func() { b.removeStateObserver(obs) })
		}
		return stateMirrorResult{snapshot: snapshot, cancel: cancel}
	}).unpack()
}

type stateMirrorResult struct {
	snapshot map[pledge.ProjectID]pledge.ProjectStateInfo
	cancel   func()
}

func (r stateMirrorResult) unpack() (map[pledge.ProjectID]pledge.ProjectStateInfo, func()) {
	return r.snapshot, r.cancel
}

func (b *Backend) removeStateObserver(target *stateObserver) {
	for i, obs := range b.stateObs {
		if obs == target {
			b.stateObs = append(b.stateObs[:i], b.stateObs[i+1:]...)
			return
		}
	}
}

func (b *Backend) notifyStates(id pledge.ProjectID, info pledge.ProjectStateInfo) {
	for _, obs := range b.stateObs {
		obs := obs
		obs.exec(func() { obs.fn(id, info) })
	}
}

// MirrorOpenPledges delegates to PledgeStore.
func (b *Backend) MirrorOpenPledges(project pledge.ProjectID, exec store.Executor,
	onChange func(store.OpenChange)) ([]*pledge.Pledge, func()) {
	return b.store.MirrorOpen(project, exec, onChange)
}

// MirrorClaimedPledges delegates to PledgeStore.
func (b *Backend) MirrorClaimedPledges(project pledge.ProjectID, exec store.Executor,
	onChange func(store.ClaimedChange)) ([]*pledge.Pledge, func()) {
	return b.store.MirrorClaimed(project, exec, onChange)
}

// MirrorCheckStatuses delegates to PledgeStore.
func (b *Backend) MirrorCheckStatuses(exec store.Executor,
	onChange func(pledge.ProjectID, store.StatusChange)) (map[pledge.ProjectID]pledge.CheckStatus, func()) {
	return b.store.MirrorCheckStatus(exec, onChange)
}

// MakeTotalPledgedProperty delegates to PledgeStore's reactive aggregate.
func (b *Backend) MakeTotalPledgedProperty(project pledge.ProjectID, exec store.Executor,
	onChange func(btcutil.Amount)) *store.TotalPledged {
	return b.store.MakeTotalPledged(project, exec, onChange)
}

// GetProjectByID returns a known project by id. Safe from any thread.
func (b *Backend) GetProjectByID(id pledge.ProjectID) (*pledge.Project, bool) {
	return scheduler.RunOnThread(b.sched, func() projectLookup {
		p, ok := b.projects[id]
		return projectLookup{project: p, ok: ok}
	}).unpack()
}

type projectLookup struct {
	project *pledge.Project
	ok      bool
}

func (r projectLookup) unpack() (*pledge.Project, bool) { return r.project, r.ok }

// GetProjectFromURL resolves a payment-URL path (server mode) to its
// project. It is the one lookup driven directly off urlIndex, which is why
// urlIndex is guarded by its own mutex instead of living on the engine
// thread: an HTTP handler must be able to resolve it without round-tripping
// through the scheduler on every request.
func (b *Backend) GetProjectFromURL(urlPath string) (*pledge.Project, bool) {
	b.urlMu.Lock()
	id, ok := b.urlIndex[urlPath]
	b.urlMu.Unlock()
	if !ok {
		return nil, false
	}
	return b.GetProjectByID(id)
}

// ProjectForOutputs implements claim.ProjectMatcher: it finds the project,
// if any, whose goal outputs byte-match outs exactly.
func (b *Backend) ProjectForOutputs(outs []*wire.TxOut) (*pledge.Project, bool) {
	b.sched.AssertOnThread()
	for _, p := range b.projects {
		if sameOutputSet(p.Outputs, outs) {
			return p, true
		}
	}
	return nil, false
}

func sameOutputSet(a, b []*wire.TxOut) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Value != b[i].Value || string(a[i].PkScript) != string(b[i].PkScript) {
			return false
		}
	}
	return true
}

// SetProjectState implements claim.StateSetter: it persists info through
// the disk layer, updates Backend's own cache, and notifies
// mirror_project_states observers.
func (b *Backend) SetProjectState(id pledge.ProjectID, info pledge.ProjectStateInfo) {
	b.sched.AssertOnThread()
	if b.disk != nil {
		if err := b.disk.PersistProjectState(id, info); err != nil {
			log.Errorf("project %v: persisting state %v: %v", id, info.State, err)
		}
	}
	b.states[id] = info
	b.notifyStates(id, info)
}

func (b *Backend) rememberClaimTx(id pledge.ProjectID, tx *wire.MsgTx) {
	b.claimTx[id] = tx
}

// SaveProject persists project through the disk layer and registers it
// immediately, so a caller creating a project through this API sees it in
// the next mirror_projects snapshot without waiting on the disk watcher to
// notice its own write.
func (b *Backend) SaveProject(project *pledge.Project) (*pledge.Project, error) {
	if b.disk == nil {
		return nil, fmt.Errorf("no disk manager configured")
	}
	if err := b.disk.SaveProject(project); err != nil {
		return nil, &pledge.VerifyError{Kind: pledge.IOError, Err: err}
	}
	scheduler.RunOnThread(b.sched, func() struct{} {
		b.addProject(project)
		return struct{}{}
	})
	return project, nil
}

// AddProjectFile registers an externally supplied project file.
func (b *Backend) AddProjectFile(path string) error {
	if b.disk == nil {
		return fmt.Errorf("no disk manager configured")
	}
	return b.disk.AddProjectFile(path)
}

// RefreshProjectStatusFromServer implements claim.ServerRefresher and is
// also reachable directly as the backend's own external operation: it
// fetches a project's status and reconciles it into PledgeStore via the
// sync algorithm.
func (b *Backend) RefreshProjectStatusFromServer(ctx context.Context, project *pledge.Project) error {
	known := scheduler.RunOnThread(b.sched, func() map[pledge.PledgeID]struct{} {
		set := b.store.Open(project.ID)
		out := make(map[pledge.PledgeID]struct{}, len(set))
		for id := range set {
			out[id] = struct{}{}
		}
		return out
	})

	result, err := b.serverClient.FetchStatus(ctx, project, known)
	if err != nil {
		scheduler.RunOnThread(b.sched, func() struct{} {
			b.store.SetStatus(project.ID, pledge.ErrorStatus(err))
			return struct{}{}
		})
		return err
	}

	scheduler.RunOnThread(b.sched, func() struct{} {
		b.reconcileOpenSet(ctx, project.ID, nil, result.Pledges, false)

		if result.ClaimedBy.IsSome() {
			if cur, ok := b.states[project.ID]; !ok || cur.State != pledge.StateClaimed {
				b.SetProjectState(project.ID, pledge.ProjectStateInfo{
					State:     pledge.StateClaimed,
					ClaimedBy: result.ClaimedBy,
				})
			}
		}
		b.store.ClearStatus(project.ID)
		return struct{}{}
	})
	return nil
}
