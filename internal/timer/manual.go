// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package timer

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler whose clock only moves on Advance. Expired
// functions run synchronously on the advancing goroutine in deadline order.
type Manual struct {
	mutex sync.Mutex
	now   time.Duration
	seq   uint64
	queue []*manualEntry
}

type manualEntry struct {
	m    *Manual
	when time.Duration
	seq  uint64
	f    func()
	done bool
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) AfterFunc(d time.Duration, f func()) Canceler {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.seq++
	e := &manualEntry{m: m, when: m.now + d, seq: m.seq, f: f}
	m.queue = append(m.queue, e)
	return e
}

func (e *manualEntry) Stop() bool {
	e.m.mutex.Lock()
	defer e.m.mutex.Unlock()
	if e.done {
		return false
	}
	e.done = true
	return true
}

// Now is the time elapsed since NewManual.
func (m *Manual) Now() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.now
}

// Advance moves the clock forward by d, running everything due. Functions
// scheduled by callbacks within the window also run.
func (m *Manual) Advance(d time.Duration) {
	m.mutex.Lock()
	end := m.now + d
	m.mutex.Unlock()
	for {
		e := m.next(end)
		if e == nil {
			break
		}
		e.f()
	}
	m.mutex.Lock()
	m.now = end
	m.mutex.Unlock()
}

// AdvanceMs is Advance in milliseconds.
func (m *Manual) AdvanceMs(ms int) { m.Advance(time.Duration(ms) * time.Millisecond) }

// Waiting is the number of scheduled functions that haven't run or stopped.
func (m *Manual) Waiting() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, e := range m.queue {
		if !e.done {
			n++
		}
	}
	return n
}

func (m *Manual) next(end time.Duration) *manualEntry {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	live := m.queue[:0]
	for _, e := range m.queue {
		if !e.done {
			live = append(live, e)
		}
	}
	m.queue = live
	sort.Slice(m.queue, func(i, j int) bool {
		a, b := m.queue[i], m.queue[j]
		if a.when != b.when {
			return a.when < b.when
		}
		return a.seq < b.seq
	})
	if len(m.queue) == 0 || m.queue[0].when > end {
		return nil
	}
	e := m.queue[0]
	e.done = true
	if e.when > m.now {
		m.now = e.when
	}
	return e
}
