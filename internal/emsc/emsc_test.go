// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package emsc

import (
	"bytes"
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

func TestRingFull(t *testing.T) {
	var r Ring
	for i := 0; i < Slots-1; i++ {
		if err := r.Put([]byte{byte(i)}); err != nil {
			t.Fatal(i, err)
		}
	}
	if !r.Full() {
		t.Fatal("not full:", r.Len())
	}
	if err := r.Put([]byte{0xff}); err != ErrFull {
		t.Fatal("wrong:", err)
	}
	// the rejected put mustn't disturb what's held
	for i := 0; i < Slots-1; i++ {
		b, err := r.Peek()
		if err != nil || len(b) != 1 || b[0] != byte(i) {
			t.Fatal("wrong:", i, b, err)
		}
		r.Free()
	}
	if _, err := r.Peek(); err != ErrEmpty {
		t.Error("wrong:", err)
	}
	if err := r.Free(); err != ErrEmpty {
		t.Error("wrong:", err)
	}
}

func TestRingTooLong(t *testing.T) {
	var r Ring
	if _, err := r.Alloc(SlotSize + 1); err != ErrTooLong {
		t.Error("wrong:", err)
	}
	if r.Len() != 0 {
		t.Error("wrong:", r.Len())
	}
}

func TestRingFIFO(t *testing.T) {
	var r Ring
	rng := rand.New(rand.NewSource(1))
	var held [][]byte
	next := byte(0)
	for i := 0; i < 10000; i++ {
		if rng.Intn(2) == 0 && len(held) < Slots-1 {
			n := 1 + rng.Intn(SlotSize)
			b, err := r.Alloc(n)
			if err != nil {
				t.Fatal(i, err)
			}
			for j := range b {
				b[j] = next
			}
			held = append(held, bytes.Repeat([]byte{next}, n))
			next++
		} else if len(held) > 0 {
			b, err := r.Peek()
			if err != nil {
				t.Fatal(i, err)
			}
			if !bytes.Equal(b, held[0]) {
				t.Fatal("order or overwrite at", i)
			}
			r.Free()
			held = held[1:]
		}
		if r.Len() != len(held) {
			t.Fatal("wrong len:", r.Len(), len(held))
		}
	}
}

func TestRingDrain(t *testing.T) {
	var r Ring
	r.Put([]byte{1})
	r.Put([]byte{2, 2})
	var got [][]byte
	r.Drain(func(b []byte) { got = append(got, append([]byte(nil), b...)) })
	if !reflect.DeepEqual(got, [][]byte{{1}, {2, 2}}) || r.Len() != 0 {
		t.Error("wrong:", got)
	}
}

func TestConsumedLength(t *testing.T) {
	for _, x := range []struct {
		b    Burst
		want int
	}{
		{&Descriptors{Burst: ID3DVIC, Entries: []uint16{1, 2, 3}}, 12},
		{&Descriptors{Burst: IDHEVDTD}, 6},
		{&Timing{Burst: IDHEVDTDA}, 16},
		{&VirtualChannels{Burst: IDVCAssign, Entries: []VCEntry{{1, 2, 3}, {4, 5, 6}}}, 12},
		{&AudioDelay{Delay: 0x123456}, 16},
		{&AudioDescriptor{}, 16},
		{&BISTSetup{}, 16},
		{&BISTReturnStat{}, 16},
		{&EMSCSupport{IDs: []ID{IDHIDPayload}}, 8},
		{&HIDPayload{Data: []byte{1, 2, 3, 4}}, 7},
		{&BufferInfo{Size: 256}, 4},
		{&BitsPerPixel{Entries: []PixelFormat{{0, 1}}}, 8},
		{&Vendor{Burst: 0x0142, Data: []byte{9, 9}}, 5},
	} {
		if n := x.b.ConsumedLength(); n != x.want {
			t.Error("wrong:", x.b.ID(), n)
		}
		if n := len(x.b.Bytes()); n != x.want {
			t.Error("wrong bytes:", x.b.ID(), n)
		}
	}
}

func TestParse(t *testing.T) {
	in := []Burst{
		&BufferInfo{Size: 1024},
		&Descriptors{Burst: ID3DDTD, Header: Header{TotalEntries: 2, NumEntries: 2},
			Entries: []uint16{0x0102, 0x0304}},
		&BISTSetup{ECBUSDuration: 5, ECBUSPattern: 1, AVLinkDataRate: 2,
			AVLinkPattern: 2, AVLinkFixedPattern: 0x3ff},
		&Vendor{Burst: 0x7e01, Data: []byte("abc")},
		&VirtualChannels{Burst: IDVCConfirm, Header: Header{NumEntries: 1},
			Entries: []VCEntry{{1, 0, 20}}},
		&EMSCSupport{Header: Header{NumEntries: 2},
			IDs: []ID{IDHIDPayload, IDBitsPerPixelFmt}},
	}
	var p []byte
	for _, b := range in {
		p = append(p, b.Bytes()...)
	}
	out, err := Parse(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatal("wrong:", out)
	}
	for i := range in {
		if out[i].ID() != in[i].ID() {
			t.Error("wrong id:", i, out[i].ID())
		}
		if !bytes.Equal(out[i].Bytes(), in[i].Bytes()) {
			t.Error("wrong:", out[i].ID(), out[i].Bytes(), in[i].Bytes())
		}
	}
	if s := out[2].(*BISTSetup); s.AVLinkFixedPattern != 0x3ff ||
		s.ECBUSDuration != 5 {
		t.Error("wrong:", s)
	}
	if v := out[3].(*Vendor); string(v.Data) != "abc" {
		t.Error("wrong:", v)
	}
}

func TestParseUnknown(t *testing.T) {
	p := append((&BufferInfo{Size: 8}).Bytes(), 0x00, 0x99, 1, 2, 3)
	p = append(p, (&BufferInfo{Size: 9}).Bytes()...)
	out, err := Parse(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatal("wrong:", out)
	}
	u, ok := out[1].(*Unknown)
	if !ok || u.ConsumedLength() != 9 || u.ID() != 0x0099 {
		t.Error("wrong:", out[1])
	}
}

func TestParseChecksum(t *testing.T) {
	bad := (&AudioDescriptor{}).Bytes()
	bad[5] ^= 1
	p := append(bad, (&BufferInfo{Size: 8}).Bytes()...)
	out, err := Parse(p)
	if !errors.Is(err, ErrChecksum) {
		t.Error("wrong:", err)
	}
	if len(out) != 1 || out[0].ID() != IDBlkRcvBufferInfo {
		t.Error("wrong:", out)
	}
}

func TestParseTruncated(t *testing.T) {
	p := (&EMSCSupport{IDs: []ID{1, 2, 3}}).Bytes()
	if _, err := Parse(p[:len(p)-1]); !errors.Is(err, ErrTruncated) {
		t.Error("wrong:", err)
	}
	if _, err := Parse([]byte{0}); !errors.Is(err, ErrTruncated) {
		t.Error("wrong:", err)
	}
	if _, err := Parse([]byte{0x01, 0x00}); !errors.Is(err, ErrTruncated) {
		t.Error("wrong:", err)
	}
}

func TestBlocks(t *testing.T) {
	msg := append(Block{3, []byte{1, 2}}.Bytes(), Block{0, []byte{9}}.Bytes()...)
	blocks, err := Blocks(msg)
	if err != nil {
		t.Fatal(err)
	}
	want := []Block{{3, []byte{1, 2}}, {0, []byte{9}}}
	if !reflect.DeepEqual(blocks, want) {
		t.Error("wrong:", blocks)
	}
	if _, err = Blocks([]byte{0, 5, 1}); !errors.Is(err, ErrTruncated) {
		t.Error("wrong:", err)
	}
}

func TestTxQueue(t *testing.T) {
	var q TxQueue
	q.Push(&BufferInfo{Size: 256})
	q.Push(&BISTReturnStat{ECBUSErrors: 1})
	q.Push(&BufferInfo{Size: 512})
	blk, ok := q.Pack(0, BlockHdr+4+fixedLen)
	if !ok || len(blk.Payload) != 20 || q.Len() != 1 {
		t.Fatal("wrong:", blk, q.Len())
	}
	if _, ok = q.Pack(0, BlockHdr+3); ok {
		t.Error("packed without room")
	}
	blk, ok = q.Pack(7, BlockMax)
	if !ok || blk.Ack != 7 || q.Len() != 0 {
		t.Error("wrong:", blk)
	}
}

func TestTxQueueTooLong(t *testing.T) {
	var q TxQueue
	vics := &Descriptors{
		Burst:   ID3DVIC,
		Entries: make([]uint16, (BurstMax-listHdr)/2+1),
	}
	if err := q.Push(vics); !errors.Is(err, ErrTooLong) {
		t.Error("wrong:", err)
	}
	vics.Entries = vics.Entries[:len(vics.Entries)-1]
	if err := q.Push(vics); err != nil {
		t.Fatal(err)
	}
	if err := q.Push(&BufferInfo{Size: 64}); err != nil {
		t.Fatal(err)
	}
	blk, ok := q.Pack(0, BlockMax)
	if !ok || len(blk.Payload) != BurstMax || q.Len() != 1 {
		t.Error("wrong:", len(blk.Payload), q.Len())
	}
}
