// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package timer provides cancellable millisecond timers with deferred
// callbacks.
//
// A Handle must be explicitly deleted. Deleting a handle from inside its own
// callback is deferred until the callback returns.
package timer

import (
	"errors"
	"sync"
	"time"
)

var ErrDeleted = errors.New("timer deleted")

// Canceler stops a scheduled function; *time.Timer is one.
type Canceler interface {
	Stop() bool
}

// Scheduler runs f after d on another goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Canceler
}

type wallclock struct{}

func (wallclock) AfterFunc(d time.Duration, f func()) Canceler {
	return time.AfterFunc(d, f)
}

type Service struct {
	mutex   sync.Mutex
	sched   Scheduler
	handles map[*Handle]struct{}
}

// New returns a Service on the wall clock, or on the given scheduler.
func New(sched ...Scheduler) *Service {
	s := &Service{
		sched:   wallclock{},
		handles: make(map[*Handle]struct{}),
	}
	if len(sched) > 0 && sched[0] != nil {
		s.sched = sched[0]
	}
	return s
}

type Handle struct {
	mutex sync.Mutex
	svc   *Service
	name  string
	fn    func(param int)
	param int

	pending  Canceler
	gen      uint64
	running  bool
	deferDel bool
	deleted  bool
}

func (s *Service) Create(name string, fn func(param int), param int) *Handle {
	h := &Handle{svc: s, name: name, fn: fn, param: param}
	s.mutex.Lock()
	s.handles[h] = struct{}{}
	s.mutex.Unlock()
	return h
}

// Len is the number of live handles.
func (s *Service) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.handles)
}

func (h *Handle) String() string { return h.name }

// Start (re)arms the handle to fire once after ms milliseconds.
func (h *Handle) Start(ms int) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.deleted || h.deferDel {
		return ErrDeleted
	}
	h.stop()
	h.gen++
	gen := h.gen
	h.pending = h.svc.sched.AfterFunc(time.Duration(ms)*time.Millisecond,
		func() { h.fire(gen) })
	return nil
}

func (h *Handle) Stop() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.stop()
}

// Pending reports whether the handle is armed and hasn't fired.
func (h *Handle) Pending() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.pending != nil
}

func (h *Handle) Delete() {
	h.mutex.Lock()
	if h.deleted {
		h.mutex.Unlock()
		return
	}
	h.stop()
	if h.running {
		h.deferDel = true
		h.mutex.Unlock()
		return
	}
	h.deleted = true
	h.mutex.Unlock()
	h.svc.forget(h)
}

func (h *Handle) stop() {
	if h.pending != nil {
		h.pending.Stop()
		h.pending = nil
	}
	h.gen++
}

func (h *Handle) fire(gen uint64) {
	h.mutex.Lock()
	if gen != h.gen || h.deleted {
		h.mutex.Unlock()
		return
	}
	h.pending = nil
	h.running = true
	h.mutex.Unlock()

	h.fn(h.param)

	h.mutex.Lock()
	h.running = false
	del := h.deferDel && !h.deleted
	if del {
		h.deleted = true
	}
	h.mutex.Unlock()
	if del {
		h.svc.forget(h)
	}
}

func (s *Service) forget(h *Handle) {
	s.mutex.Lock()
	delete(s.handles, h)
	s.mutex.Unlock()
}
