// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"errors"
	"reflect"
	"testing"

	"github.com/platinasystems/mhl/internal/notify"
)

// idle brings a legacy link up with nothing queued.
func (r *rig) idle() {
	r.t.Helper()
	r.discover()
	r.devcap(legacyDevcap)
	if q := r.d.cbus.inflight; q != nil || len(r.d.cbus.pending) != 0 {
		r.t.Fatal("queue busy:", q)
	}
	r.msc = nil
}

func (c *chip) sent(cmd, offset byte) (n int) {
	for _, x := range c.msc {
		if x.cmd == cmd && x.offset == offset {
			n++
		}
	}
	return
}

func TestSubmitNotConnected(t *testing.T) {
	r := newRig(t)
	if _, err := r.d.Submit(MscWriteStat, 0x31, 1); !errors.Is(err, ErrInvalidMode) {
		t.Error("wrong:", err)
	}
	r.idle()
	if _, err := r.d.Submit(MscWriteStat, 0x31, 1, 2, 3); !errors.Is(err, ErrTooLong) {
		t.Error("wrong:", err)
	}
	a, _ := r.d.Submit(MscWriteStat, 0x31, 1)
	b, _ := r.d.Submit(MscWriteStat, 0x32, 1)
	if b <= a {
		t.Error("wrong:", a, b)
	}
}

func TestNackRetries(t *testing.T) {
	r := newRig(t)
	r.idle()
	seq, err := r.d.Submit(MscWriteStat, 0x31, 0x01)
	if err != nil {
		t.Fatal(err)
	}
	tries := r.cfg.MSCRetries() + 1
	for i := 0; i < tries; i++ {
		if r.ev.Count(notify.RequestFailed) != 0 {
			t.Fatal("failed early at", i)
		}
		r.fire(srcMsc, CbusInt0CmdNack)
	}
	if n := r.sent(MscWriteStat, 0x31); n != tries {
		t.Error("wrong tries:", n)
	}
	e, ok := r.ev.Last(notify.RequestFailed)
	if !ok || e.Param != seq {
		t.Fatal("wrong:", e)
	}
	if want := []byte{byte(reqMSC), MscWriteStat, 0x31}; !reflect.DeepEqual(e.Payload, want) {
		t.Error("wrong payload:", e.Payload)
	}
	if r.d.cbus.inflight != nil {
		t.Error("still in flight")
	}
}

func TestAbortHoldoff(t *testing.T) {
	r := newRig(t)
	r.idle()
	r.d.Submit(MscWriteStat, 0x31, 0x01)
	r.d.Submit(MscWriteStat, 0x32, 0x02)
	r.fire(srcMerr, CbusInt1CmdAbort)
	if !r.d.cbus.abortWait || r.d.cbus.inflight != nil {
		t.Fatal("no holdoff")
	}
	n := len(r.msc)
	r.clock.AdvanceMs(int(r.cfg.AbortDelay().Milliseconds()) - 1)
	if len(r.msc) != n {
		t.Fatal("issued during holdoff")
	}
	r.clock.AdvanceMs(1)
	if len(r.msc) != n+1 {
		t.Fatal("not reissued")
	}
	if m := r.msc[n]; m.offset != 0x31 {
		t.Error("wrong order:", m)
	}
	r.drain()
	if got := r.stats(); !reflect.DeepEqual(got, [][2]byte{
		{0x31, 0x01}, {0x31, 0x01}, {0x32, 0x02},
	}) {
		t.Error("wrong:", got)
	}
}

func TestPeerAbortHoldoff(t *testing.T) {
	r := newRig(t)
	r.idle()
	r.fire(srcMerr, CbusInt1PeerAbort)
	r.d.Submit(MscWriteStat, 0x31, 0x01)
	if len(r.msc) != 0 {
		t.Fatal("issued during holdoff")
	}
	r.clock.AdvanceMs(int(r.cfg.AbortDelay().Milliseconds()))
	if len(r.msc) != 1 {
		t.Error("not issued:", r.msc)
	}
}

func TestCancelRequest(t *testing.T) {
	r := newRig(t)
	r.idle()
	a, _ := r.d.Submit(MscWriteStat, 0x31, 0x01)
	b, _ := r.d.Submit(MscWriteStat, 0x32, 0x02)
	if !r.d.CancelRequest(b) {
		t.Fatal("pending not canceled")
	}
	r.drain()
	if n := r.sent(MscWriteStat, 0x32); n != 0 {
		t.Error("canceled request sent")
	}
	if r.d.CancelRequest(a) {
		t.Error("finished request canceled")
	}

	c, _ := r.d.Submit(MscWriteStat, 0x33, 0x03)
	if !r.d.CancelRequest(c) {
		t.Fatal("in flight not canceled")
	}
	r.fire(srcMsc, CbusInt0CmdNack)
	if r.sent(MscWriteStat, 0x33) != 1 || r.ev.Count(notify.RequestFailed) != 0 {
		t.Error("canceled request retried")
	}
}

func TestQueueOrder(t *testing.T) {
	r := newRig(t)
	r.idle()
	for i := byte(0); i < 5; i++ {
		r.d.Submit(MscWriteStat, 0x40+i, i)
	}
	for i := 0; i < 5; i++ {
		if len(r.msc) != i+1 {
			t.Fatal("more than one in flight:", len(r.msc))
		}
		r.fire(srcMsc, CbusInt0CmdDone)
	}
	for i, m := range r.msc {
		if m.offset != 0x40+byte(i) {
			t.Error("wrong order:", m)
		}
	}
}
