// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"errors"
	"reflect"
	"testing"

	"github.com/platinasystems/mhl/internal/emsc"
	"github.com/platinasystems/mhl/internal/notify"
)

// stage leaves a received eMSC message in the chip without interrupting.
func (r *rig) stage(msg []byte) {
	r.rx = append([]byte(nil), msg...)
	r.Poke(RegEmscRxCount, byte(len(msg)))
	r.Poke(RegEmscRxCount.Add(1), byte(len(msg)>>8))
}

func (r *rig) recv(ack uint8, bursts ...emsc.Burst) []byte {
	r.t.Helper()
	blk := emsc.Block{Ack: ack}
	for _, b := range bursts {
		blk.Payload = append(blk.Payload, b.Bytes()...)
	}
	msg := blk.Bytes()
	r.stage(msg)
	r.fire(srcEmsc, EmscIntrRxReady)
	return msg
}

// sentBursts decodes everything transmitted over eMSC.
func (r *rig) sentBursts() (bursts []emsc.Burst) {
	r.t.Helper()
	for _, msg := range r.tx {
		blocks, err := emsc.Blocks(msg)
		if err != nil {
			r.t.Fatal(err)
		}
		for _, blk := range blocks {
			b, err := emsc.Parse(blk.Payload)
			if err != nil {
				r.t.Fatal(err)
			}
			bursts = append(bursts, b...)
		}
	}
	return
}

func TestEMSCStartup(t *testing.T) {
	r := newRig(t)
	r.v3()
	r.ecbus()
	bursts := r.sentBursts()
	if len(bursts) != 2 {
		t.Fatal("wrong:", bursts)
	}
	es, ok := bursts[1].(*emsc.EMSCSupport)
	if !ok || !reflect.DeepEqual(es.IDs, emscAccepted) {
		t.Error("wrong:", bursts[1])
	}
	if v := r.Peek(RegEmscCtl); v != EmscCtlEnable {
		t.Error("wrong:", v)
	}
}

func TestEMSCVCAssign(t *testing.T) {
	r := newRig(t)
	r.v3()
	r.ecbus()
	r.tx = nil
	credit := r.d.emsc.credit
	assign := &emsc.VirtualChannels{
		Burst:   emsc.IDVCAssign,
		Header:  emsc.Header{TotalEntries: 1, SeqIndex: 1},
		Entries: []emsc.VCEntry{{VC: 2, Feature: 1, Slots: 20}},
	}
	msg := r.recv(16, assign)
	if r.d.emsc.rxBytes != len(msg) {
		t.Error("wrong rx count:", r.d.emsc.rxBytes)
	}
	if len(r.tx) != 1 {
		t.Fatal("no reply")
	}
	// the reply returns the credit of the message it answers
	if ack := int(r.tx[0][0]); ack != len(msg) {
		t.Error("wrong ack:", ack)
	}
	if want := credit + 16 - len(r.tx[0]); r.d.emsc.credit != want {
		t.Error("wrong credit:", r.d.emsc.credit, want)
	}
	bursts := r.sentBursts()
	vc, ok := bursts[0].(*emsc.VirtualChannels)
	if !ok || vc.ID() != emsc.IDVCConfirm || !reflect.DeepEqual(vc.Entries,
		assign.Entries) {
		t.Error("wrong:", bursts[0])
	}
}

func TestEMSCCredit(t *testing.T) {
	r := newRig(t)
	r.v3()
	r.ecbus()
	r.tx = nil
	sent := r.d.emsc.txBytes
	r.recv(0, &emsc.BufferInfo{Size: 10})
	if r.d.emsc.credit != 10 {
		t.Fatal("wrong:", r.d.emsc.credit)
	}
	hid := &emsc.HIDPayload{Data: make([]byte, 20)}
	if err := r.d.SendBurst(hid); err != nil {
		t.Fatal(err)
	}
	if len(r.tx) != 0 || r.d.emsc.tx.Len() != 1 {
		t.Fatal("sent without credit")
	}
	r.recv(100)
	if len(r.tx) != 1 || r.d.emsc.tx.Len() != 0 {
		t.Fatal("not sent with credit")
	}
	if r.d.Status().EMSCTx != sent+len(r.tx[0]) {
		t.Error("wrong:", r.d.Status())
	}
}

func TestEMSCRingStall(t *testing.T) {
	r := newRig(t)
	r.v3()
	r.ecbus()
	for !r.d.emsc.ring.Full() {
		if err := r.d.emsc.ring.Put([]byte{0, 0}); err != nil {
			t.Fatal(err)
		}
	}
	msg := emsc.Block{Payload: (&emsc.BufferInfo{Size: 99}).Bytes()}.Bytes()
	r.stage(msg)
	r.fire(srcEmsc, EmscIntrRxReady)
	// held in the chip, with the interrupt pending, until there's room
	if len(r.rx) != len(msg) || r.Peek(RegEmscIntr)&EmscIntrRxReady == 0 {
		t.Fatal("message taken from a full ring")
	}
	if r.d.emsc.ring.Len() != 0 {
		t.Fatal("ring not drained")
	}
	r.fire(srcEmsc, 0)
	if len(r.rx) != 0 || r.d.emsc.credit != 99 {
		t.Error("message not taken:", r.d.emsc.credit)
	}
	if r.Peek(RegEmscIntr) != 0 {
		t.Error("not acked")
	}
}

func TestEMSCOversize(t *testing.T) {
	r := newRig(t)
	r.v3()
	r.ecbus()
	r.stage(make([]byte, emsc.SlotSize+1))
	r.fire(srcEmsc, EmscIntrRxReady)
	if len(r.rx) != 0 || r.d.emsc.rxBytes != 0 {
		t.Error("wrong:", len(r.rx), r.d.emsc.rxBytes)
	}
}

func TestEMSCEvents(t *testing.T) {
	r := newRig(t)
	r.v3()
	r.ecbus()
	r.recv(0,
		&emsc.EMSCSupport{IDs: []emsc.ID{emsc.IDHIDPayload}},
		&emsc.BISTReturnStat{ECBUSErrors: 3, AVLinkErrors: 4})
	if e, ok := r.ev.Last(notify.EMSCSupport); !ok || e.Param != 1 {
		t.Error("wrong:", e)
	}
	if !reflect.DeepEqual(r.d.emsc.peerIDs, []emsc.ID{emsc.IDHIDPayload}) {
		t.Error("wrong:", r.d.emsc.peerIDs)
	}
	if e, ok := r.ev.Last(notify.BISTStatus); !ok || e.Param != 3<<16|4 {
		t.Error("wrong:", e)
	}
}

func TestSendBurstScratchpad(t *testing.T) {
	r := newRig(t)
	r.idle()
	if err := r.d.SendBurst(&emsc.HIDPayload{Data: []byte{1, 2}}); err != nil {
		t.Fatal(err)
	}
	if len(r.tx) != 0 {
		t.Error("sent over emsc")
	}
	if got := r.stats(); !reflect.DeepEqual(got, [][2]byte{
		{RchangeInt, RchangeReqWrt},
	}) {
		t.Error("wrong:", got)
	}
}

func TestEMSCOversizeBurst(t *testing.T) {
	r := newRig(t)
	r.v3()
	r.ecbus()
	r.tx = nil
	vics := &emsc.Descriptors{
		Burst:   emsc.ID3DVIC,
		Header:  emsc.Header{TotalEntries: 130, SeqIndex: 1},
		Entries: make([]uint16, 130),
	}
	if err := r.d.SendBurst(vics); !errors.Is(err, emsc.ErrTooLong) {
		t.Error("wrong:", err)
	}
	if n := r.d.emsc.tx.Len(); n != 0 {
		t.Error("queued:", n)
	}
	stat := &emsc.BISTReturnStat{ECBUSErrors: 3}
	if err := r.d.SendBurst(stat); err != nil {
		t.Fatal(err)
	}
	r.recv(200)
	bursts := r.sentBursts()
	if len(bursts) != 1 || !reflect.DeepEqual(bursts[0].Bytes(), stat.Bytes()) {
		t.Error("wrong:", bursts)
	}
	if r.d.emsc.tx.Len() != 0 {
		t.Error("still queued:", r.d.emsc.tx.Len())
	}
}
