// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regbus

import "sync"

// Access is one byte written through a Mem.
type Access struct {
	Reg Reg
	Val byte
}

// Mem is an in-memory Bus for tests. Status registers may be declared write
// one to clear; registers with hooks behave as non-incrementing ports.
type Mem struct {
	mutex sync.Mutex
	regs  [NPages][256]byte
	w1c   map[Reg]bool
	feed  map[Reg][]byte
	rhook map[Reg]func() byte
	whook map[Reg]func(byte)
	fail  map[Reg]error

	Writes []Access
	Reads  map[Reg]int
}

func NewMem() *Mem {
	return &Mem{
		w1c:   make(map[Reg]bool),
		feed:  make(map[Reg][]byte),
		rhook: make(map[Reg]func() byte),
		whook: make(map[Reg]func(byte)),
		fail:  make(map[Reg]error),
		Reads: make(map[Reg]int),
	}
}

// W1C declares write-one-to-clear registers.
func (m *Mem) W1C(regs ...Reg) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, r := range regs {
		m.w1c[r] = true
	}
}

// Feed queues values returned by successive reads of r before it falls back
// to the stored value.
func (m *Mem) Feed(r Reg, vals ...byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.feed[r] = append(m.feed[r], vals...)
}

func (m *Mem) OnRead(r Reg, f func() byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rhook[r] = f
}

// OnWrite hooks are called without the Mem lock so that they may Poke.
func (m *Mem) OnWrite(r Reg, f func(byte)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.whook[r] = f
}

// Fail makes every access of r return err; nil clears it.
func (m *Mem) Fail(r Reg, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if err == nil {
		delete(m.fail, r)
	} else {
		m.fail[r] = err
	}
}

func (m *Mem) Peek(r Reg) byte {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.regs[r.Page()][r.Offset()]
}

func (m *Mem) Poke(r Reg, v byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.regs[r.Page()][r.Offset()] = v
}

// Raise sets bits in r, as the chip does when latching status.
func (m *Mem) Raise(r Reg, bits byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.regs[r.Page()][r.Offset()] |= bits
}

// Wrote returns the values written to r, oldest first.
func (m *Mem) Wrote(r Reg) (vals []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, w := range m.Writes {
		if w.Reg == r {
			vals = append(vals, w.Val)
		}
	}
	return
}

// WroteAny reports whether anything in the page range [lo, hi] was written.
func (m *Mem) WroteAny(lo, hi Reg) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, w := range m.Writes {
		if w.Reg >= lo && w.Reg <= hi {
			return true
		}
	}
	return false
}

func (m *Mem) ResetLog() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Writes = m.Writes[:0]
	m.Reads = make(map[Reg]int)
}

func (m *Mem) Read(r Reg, p []byte) error {
	if r.Page() >= NPages {
		return &Error{"read", r, ErrPage}
	}
	m.mutex.Lock()
	if err := m.fail[r]; err != nil {
		m.mutex.Unlock()
		return &Error{"read", r, err}
	}
	hook := m.rhook[r]
	m.mutex.Unlock()
	if hook != nil {
		for i := range p {
			p[i] = hook()
		}
		m.mutex.Lock()
		m.Reads[r]++
		m.mutex.Unlock()
		return nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Reads[r]++
	for i := range p {
		x := r.Add(i)
		if q := m.feed[x]; len(q) > 0 {
			p[i] = q[0]
			m.feed[x] = q[1:]
			continue
		}
		p[i] = m.regs[x.Page()][x.Offset()]
	}
	return nil
}

func (m *Mem) Write(r Reg, p []byte) error {
	if r.Page() >= NPages {
		return &Error{"write", r, ErrPage}
	}
	m.mutex.Lock()
	if err := m.fail[r]; err != nil {
		m.mutex.Unlock()
		return &Error{"write", r, err}
	}
	hook := m.whook[r]
	if hook != nil {
		for _, v := range p {
			m.Writes = append(m.Writes, Access{r, v})
		}
		m.mutex.Unlock()
		for _, v := range p {
			hook(v)
		}
		return nil
	}
	defer m.mutex.Unlock()
	for i, v := range p {
		x := r.Add(i)
		m.Writes = append(m.Writes, Access{x, v})
		if m.w1c[x] {
			m.regs[x.Page()][x.Offset()] &^= v
		} else {
			m.regs[x.Page()][x.Offset()] = v
		}
	}
	return nil
}
