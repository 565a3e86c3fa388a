// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package emsc

import "errors"

const (
	Slots    = 8
	SlotSize = 256
)

var (
	ErrFull    = errors.New("emsc ring full")
	ErrEmpty   = errors.New("emsc ring empty")
	ErrTooLong = errors.New("emsc message too long")
)

// Ring is a fixed FIFO of received messages. One slot is always left free
// so head == tail means empty; at most Slots-1 messages are held.
type Ring struct {
	slots      [Slots][SlotSize]byte
	lens       [Slots]int
	head, tail int
}

func (r *Ring) Len() int { return (r.head - r.tail + Slots) % Slots }

func (r *Ring) Full() bool { return r.Len() == Slots-1 }

// Alloc claims the next slot for an n byte message. The returned buffer is
// the message; it stays valid until the slot is freed.
func (r *Ring) Alloc(n int) ([]byte, error) {
	if n > SlotSize || n < 0 {
		return nil, ErrTooLong
	}
	if r.Full() {
		return nil, ErrFull
	}
	i := r.head
	r.lens[i] = n
	r.head = (r.head + 1) % Slots
	return r.slots[i][:n], nil
}

// Put copies p into a new slot.
func (r *Ring) Put(p []byte) error {
	b, err := r.Alloc(len(p))
	if err == nil {
		copy(b, p)
	}
	return err
}

// Peek returns the oldest message without freeing it.
func (r *Ring) Peek() ([]byte, error) {
	if r.Len() == 0 {
		return nil, ErrEmpty
	}
	return r.slots[r.tail][:r.lens[r.tail]], nil
}

// Free releases the oldest message.
func (r *Ring) Free() error {
	if r.Len() == 0 {
		return ErrEmpty
	}
	r.lens[r.tail] = 0
	r.tail = (r.tail + 1) % Slots
	return nil
}

// Drain passes each message to f oldest first and frees it.
func (r *Ring) Drain(f func([]byte)) {
	for {
		b, err := r.Peek()
		if err != nil {
			return
		}
		f(b)
		r.Free()
	}
}

func (r *Ring) Reset() {
	r.head, r.tail = 0, 0
	r.lens = [Slots]int{}
}
