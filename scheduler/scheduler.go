// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package scheduler

import (
	"sync"
	"sync/atomic"
)

// Scheduler is a single-threaded cooperative executor: the engine thread
// every mutation of the pledge store and check-status maps runs on. Work
// originating off-thread — HTTP handlers, wallet callbacks, server RPCs,
// peer notifications — is handed off to it via Submit or SubmitASAP rather
// than taking a lock.
//
// No locks are held across a suspension point: every task runs to
// completion (or blocks only on channels it owns) before the next task is
// dequeued, which is what lets mutators assume exclusive access to shared
// state for the duration of their call.
type Scheduler struct {
	tasks chan func()
	asap  chan func()
	quit  chan struct{}
	wg    sync.WaitGroup

	onThread atomic.Bool
	newTicker TickerFactory
}

// Option customizes a Scheduler at construction time.
type Option func(*Scheduler)

// WithTickerFactory overrides the ticker implementation Schedule uses to
// back its delay, letting tests force a delayed task to fire immediately
// instead of waiting out real time.
func WithTickerFactory(f TickerFactory) Option {
	return func(s *Scheduler) { s.newTicker = f }
}

// New returns a Scheduler that is not yet running; call Start to begin
// draining submitted tasks.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:     make(chan func()),
		asap:      make(chan func()),
		quit:      make(chan struct{}),
		newTicker: defaultTickerFactory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the engine thread. It must be called at most once.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop signals the engine thread to exit once its current task, if any,
// completes. It does not wait for in-flight Schedule timers to drain; call
// WaitForShutdown for that.
func (s *Scheduler) Stop() {
	close(s.quit)
}

// WaitForShutdown blocks until the engine thread and every task scheduled
// via Schedule have exited.
func (s *Scheduler) WaitForShutdown() {
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		// submit_asap tasks are prioritised ahead of regular ones:
		// drain the asap queue first, non-blockingly, before falling
		// back to a blocking select across both.
		select {
		case fn := <-s.asap:
			s.exec(fn)
			continue
		default:
		}

		select {
		case fn := <-s.asap:
			s.exec(fn)
		case fn := <-s.tasks:
			s.exec(fn)
		case <-s.quit:
			return
		}
	}
}

func (s *Scheduler) exec(fn func()) {
	s.onThread.Store(true)
	defer s.onThread.Store(false)
	fn()
}

// Submit enqueues fn to run on the engine thread, after any already-queued
// regular or ASAP tasks.
func (s *Scheduler) Submit(fn func()) {
	select {
	case s.tasks <- fn:
	case <-s.quit:
	}
}

// SubmitASAP enqueues fn ahead of regular tasks. Schedule uses it to
// dispatch a delayed task once its delay has elapsed.
func (s *Scheduler) SubmitASAP(fn func()) {
	select {
	case s.asap <- fn:
	case <-s.quit:
	}
}

// RunOnThread runs f on the engine thread and returns its result. If the
// caller is already executing on the engine thread (a mutator calling into
// another mutator), f runs inline instead of deadlocking on a self-submit.
func RunOnThread[T any](s *Scheduler, f func() T) T {
	if s.onThread.Load() {
		return f()
	}
	result := make(chan T, 1)
	s.Submit(func() { result <- f() })
	return <-result
}

// AssertOnThread panics unless a task dispatched by this Scheduler is
// currently running. It checks a flag set for the duration of each task,
// not the caller's goroutine, so a call from another goroutine while a task
// runs does not panic. Every PledgeStore mutator calls this defensively on
// entry.
func (s *Scheduler) AssertOnThread() {
	if !s.onThread.Load() {
		panic("scheduler: called off the engine thread")
	}
}
