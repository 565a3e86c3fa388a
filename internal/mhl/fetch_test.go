// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/platinasystems/mhl/internal/notify"
)

// sink brings up a legacy link with HPD already high, leaving the read of
// EDID block 0 in flight.
func (r *rig) sink() {
	r.t.Helper()
	r.Poke(RegCbusStatus, CbusStatHPD)
	r.discover()
	r.devcap(legacyDevcap)
	if q := r.d.cbus.inflight; q == nil || q.kind != reqReadEDID || q.offset != 0 {
		r.t.Fatal("no edid read:", q)
	}
}

func TestDevcapRead(t *testing.T) {
	r := newRig(t)
	r.discover()
	r.devcap(v3Devcap)
	p, ok := r.d.PeerDevcap()
	if !ok || p != v3Devcap {
		t.Error("wrong:", p)
	}
	e, _ := r.ev.Last(notify.DevcapReady)
	if e.Param != 0x30 || !bytes.Equal(e.Payload, v3Devcap[:]) {
		t.Error("wrong:", e)
	}
	if m := r.msc[0]; m.cmd != MscReadDevcap {
		t.Error("wrong:", m)
	}
	r.xdevcap(v3XDevcap)
	if x, ok := r.d.PeerXDevcap(); !ok || x != v3XDevcap {
		t.Error("wrong:", x)
	}
}

func TestDevcapRoundTrip(t *testing.T) {
	r := newRig(t)
	r.discover()
	for _, x := range []struct {
		view  byte
		local [DevcapSize]byte
	}{
		{EdidCtlViewDevcap, localDevcap},
		{EdidCtlViewXDev, localXDevcap},
	} {
		if got := r.view(x.view)[:DevcapSize]; !bytes.Equal(got, x.local[:]) {
			t.Errorf("view %#x wrong: % x", x.view, got)
		}
		r.d.err = nil
		got := r.d.readFifo(x.view, DevcapSize)
		if r.d.err != nil {
			t.Fatal(r.d.err)
		}
		if !bytes.Equal(got, x.local[:]) {
			t.Errorf("view %#x wrong: % x", x.view, got)
		}
		p := make([]byte, DevcapSize)
		for i := range p {
			p[i] = byte(i) ^ x.view
		}
		r.d.writeFifo(x.view, p)
		if got = r.d.readFifo(x.view, DevcapSize); !bytes.Equal(got, p) {
			t.Errorf("view %#x wrong: % x", x.view, got)
		}
	}
}

func TestDevcapChange(t *testing.T) {
	r := newRig(t)
	r.idle()
	r.Poke(RegPeerInt, RchangeDcapChg)
	r.fire(srcMsc, CbusInt0SetInt)
	if v := r.Peek(RegPeerInt); v != 0 {
		t.Error("set int not cleared:", v)
	}
	q := r.d.cbus.inflight
	if q == nil || q.kind != reqReadDevcap {
		t.Fatal("no devcap read:", q)
	}
	// a second change while the read is under way adds nothing
	r.Poke(RegPeerInt, RchangeDcapChg)
	r.fire(srcMsc, CbusInt0SetInt)
	if len(r.d.cbus.pending) != 0 {
		t.Error("duplicate read:", r.d.cbus.pending)
	}
	p := legacyDevcap
	p[DevcapFeatureFlag] |= FeatureUCPRecv
	r.devcap(p)
	if n := r.ev.Count(notify.DevcapReady); n != 2 {
		t.Error("wrong:", n)
	}
	if got, _ := r.d.PeerDevcap(); got != p {
		t.Error("wrong:", got)
	}
}

func TestEDID(t *testing.T) {
	r := newRig(t)
	r.sink()
	var want []byte
	for i := 0; i < 3; i++ {
		b := edidBlock(i, 2)
		want = append(want, b...)
		r.edid(b)
	}
	if !reflect.DeepEqual(r.block, []int{0, 1, 2}) {
		t.Error("wrong blocks:", r.block)
	}
	e, ok := r.ev.Last(notify.EDIDReady)
	if !ok || e.Param != 3 || !bytes.Equal(e.Payload, want) {
		t.Fatal("wrong:", e)
	}
	if !bytes.Equal(r.d.EDID(), want) {
		t.Error("wrong edid")
	}
	if r.Peek(RegTmdsCtl)&TmdsCtlOutEn == 0 {
		t.Error("tmds off")
	}
	stats := r.stats()
	if last := stats[len(stats)-1]; last != [2]byte{StatLinkMode,
		LinkModeClkNormal | LinkModePathEn} {
		t.Error("wrong:", stats)
	}
}

func TestEDIDTooManyBlocks(t *testing.T) {
	r := newRig(t)
	r.sink()
	for i := 0; i < EDIDMaxBlocks; i++ {
		r.edid(edidBlock(i, 7))
	}
	if e, _ := r.ev.Last(notify.EDIDReady); e.Param != EDIDMaxBlocks {
		t.Error("wrong:", e)
	}
	if q := r.d.cbus.inflight; q != nil {
		t.Error("still reading:", q)
	}
}

func TestEDIDBadChecksum(t *testing.T) {
	r := newRig(t)
	r.sink()
	bad := edidBlock(0, 0)
	bad[20] ^= 1
	n := r.cfg.EDIDRetries() + 1
	for i := 0; i < n; i++ {
		r.edid(bad)
	}
	e, ok := r.ev.Last(notify.EDIDError)
	if !ok || e.Param != uint32(n) {
		t.Error("wrong:", e)
	}
	if len(r.block) != n || r.ev.Count(notify.EDIDReady) != 0 {
		t.Error("wrong:", r.block)
	}
	if r.d.EDID() != nil || r.d.pathEn {
		t.Error("path up without edid")
	}
}

func TestEDIDBadHeader(t *testing.T) {
	r := newRig(t)
	r.sink()
	b := edidBlock(0, 0)
	b[0], b[127] = 0xff, b[127]+1
	r.edid(b)
	r.edid(edidBlock(0, 0))
	if r.ev.Count(notify.EDIDReady) != 1 || len(r.block) != 2 {
		t.Error("wrong:", r.block)
	}
}

func TestEDIDFetchError(t *testing.T) {
	r := newRig(t)
	r.sink()
	r.edid(edidBlock(0, 1))
	r.fire(srcFetch, Intr9FetchErr)
	// the read starts over from block 0
	if q := r.d.cbus.inflight; q == nil || q.kind != reqReadEDID || q.offset != 0 {
		t.Fatal("wrong:", q)
	}
	r.edid(edidBlock(0, 1))
	r.fire(srcMerr, CbusInt1DDCAbort)
	r.edid(edidBlock(0, 1))
	r.edid(edidBlock(1, 1))
	if e, _ := r.ev.Last(notify.EDIDReady); e.Param != 2 {
		t.Error("wrong:", e)
	}
	if !reflect.DeepEqual(r.block, []int{0, 1, 0, 1, 0, 1}) {
		t.Error("wrong:", r.block)
	}
}

func TestEDIDCanceledAbort(t *testing.T) {
	r := newRig(t)
	r.sink()
	q := r.d.cbus.inflight
	if q == nil || q.kind != reqReadEDID {
		t.Fatal("wrong:", q)
	}
	if !r.d.CancelRequest(q.seq) {
		t.Fatal("not canceled")
	}
	r.fire(srcMerr, CbusInt1DDCAbort)
	if r.d.queued(reqReadEDID) || r.d.fetch.retries != 0 {
		t.Error("canceled read retried")
	}
	if !reflect.DeepEqual(r.block, []int{0}) {
		t.Error("wrong:", r.block)
	}
}

func TestHPDLoss(t *testing.T) {
	r := newRig(t)
	r.sink()
	r.edid(edidBlock(0, 1))
	r.Poke(RegCbusStatus, 0)
	r.fire(srcMsc, CbusInt0HPDChg)
	e, ok := r.ev.Last(notify.EDIDError)
	if !ok || e.Param != 0 {
		t.Fatal("wrong:", e)
	}
	// the block in flight completes but is ignored
	r.fire(srcFetch, Intr9EDIDDone)
	if r.ev.Count(notify.EDIDReady) != 0 || r.d.EDID() != nil {
		t.Error("edid kept")
	}
	if r.d.queued(reqReadEDID) {
		t.Error("still reading")
	}

	r.Poke(RegCbusStatus, CbusStatHPD)
	r.fire(srcMsc, CbusInt0HPDChg)
	r.drain()
	r.edid(edidBlock(0, 0))
	if r.ev.Count(notify.EDIDReady) != 1 || !r.d.pathEn {
		t.Error("no edid after hpd")
	}

	r.Poke(RegCbusStatus, 0)
	r.fire(srcMsc, CbusInt0HPDChg)
	if r.d.pathEn || r.Peek(RegTmdsCtl)&TmdsCtlOutEn != 0 {
		t.Error("path still up")
	}
	if r.ev.Count(notify.EDIDError) != 1 {
		t.Error("error without a read")
	}
}

func TestEDIDChange(t *testing.T) {
	r := newRig(t)
	r.sink()
	r.edid(edidBlock(0, 0))
	r.Poke(RegPeerInt.Add(1), DchangeEDIDChg)
	r.fire(srcMsc, CbusInt0SetInt)
	r.drain()
	r.edid(edidBlock(0, 0))
	if r.ev.Count(notify.EDIDReady) != 2 {
		t.Error("edid not reread")
	}
}

func TestPackedPixel(t *testing.T) {
	for _, x := range []struct {
		force  string
		devcap [DevcapSize]byte
		packed bool
	}{
		{"false", v3Devcap, false},
		{"true", v3Devcap, true},
		{"true", legacyDevcap, false},
	} {
		r := newRig(t, "force.packed_pixel", x.force)
		r.discover()
		r.devcap(x.devcap)
		packed := r.Peek(RegVidMode)&VidModePacked != 0
		if packed != x.packed {
			t.Error("wrong:", x.force, packed)
		}
		if x.packed && r.d.linkMode&LinkModeClkMask != LinkModeClkPacked {
			t.Error("wrong link mode:", r.d.linkMode)
		}
	}
}
