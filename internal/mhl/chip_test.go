// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"testing"
	"time"

	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/notify"
	"github.com/platinasystems/mhl/internal/regbus"
	"github.com/platinasystems/mhl/internal/timer"
)

type mscCmd struct {
	cmd, offset byte
	data        []byte
}

// chip is a register file with the FIFOs and command ports of the
// transmitter wired up.
type chip struct {
	*regbus.Mem
	fifo  map[byte]*[256]byte
	addr  int
	msc   []mscCmd
	block []int
	wb    []byte
	mdt   []byte
	rx    []byte
	tx    [][]byte
	txCur []byte
	rcvid []byte
}

func newChip() *chip {
	c := &chip{
		Mem:  regbus.NewMem(),
		fifo: make(map[byte]*[256]byte),
	}
	c.Poke(RegDevIDL, 0x20)
	c.Poke(RegDevIDH, 0x86)
	for _, r := range intrRegs {
		c.W1C(r.status)
	}
	for i := 0; i < 4; i++ {
		c.W1C(RegPeerInt.Add(i))
	}
	c.OnWrite(RegEdidFifoAddr, func(v byte) { c.addr = int(v) })
	c.OnWrite(RegEdidFifoWrData, func(v byte) {
		c.buf()[c.addr&0xff] = v
		c.addr++
	})
	c.OnRead(RegEdidFifoRdData, func() byte {
		v := c.buf()[c.addr&0xff]
		c.addr++
		return v
	})
	c.OnWrite(RegMscWbFifo, func(v byte) { c.wb = append(c.wb, v) })
	c.OnWrite(RegMscStart, func(byte) {
		m := mscCmd{
			cmd:    c.Peek(RegMscCmd),
			offset: c.Peek(RegMscOffset),
			data:   []byte{c.Peek(RegMscData)},
		}
		if m.cmd == MscWriteBurst {
			m.data, c.wb = c.wb, nil
		}
		c.msc = append(c.msc, m)
	})
	c.OnWrite(RegEdidStart, func(byte) {
		c.block = append(c.block, int(c.Peek(RegEdidBlock)))
	})
	c.OnRead(RegMdtRcvFifo, pop(&c.mdt))
	c.OnRead(RegEmscRxFifo, pop(&c.rx))
	c.OnRead(RegHdcp2xRcvIDFifo, pop(&c.rcvid))
	c.OnWrite(RegEmscTxFifo, func(v byte) { c.txCur = append(c.txCur, v) })
	c.OnWrite(RegEmscTxStart, func(byte) {
		c.tx = append(c.tx, c.txCur)
		c.txCur = nil
	})
	return c
}

func pop(q *[]byte) func() byte {
	return func() byte {
		if len(*q) == 0 {
			return 0
		}
		v := (*q)[0]
		*q = (*q)[1:]
		return v
	}
}

func (c *chip) view(k byte) *[256]byte {
	b := c.fifo[k]
	if b == nil {
		b = new([256]byte)
		c.fifo[k] = b
	}
	return b
}

func (c *chip) buf() *[256]byte {
	return c.view(c.Peek(RegEdidCtl) & (EdidCtlView | EdidCtlParity))
}

func (c *chip) load(k byte, p []byte) { copy(c.view(k)[:], p) }

// raise latches status bits and the source's group bit.
func (c *chip) raise(src int, bits byte) {
	c.Raise(intrRegs[src].status, bits)
	c.Raise(RegFastIntrStat.Add(src/8), 1<<uint(src%8))
}

// msgs returns the MSC_MSG commands issued, as sub-command, value pairs.
func (c *chip) msgs() (m [][2]byte) {
	for _, x := range c.msc {
		if x.cmd == MscMsg {
			m = append(m, [2]byte{x.offset, x.data[0]})
		}
	}
	return
}

func (c *chip) stats() (m [][2]byte) {
	for _, x := range c.msc {
		if x.cmd == MscWriteStat {
			m = append(m, [2]byte{x.offset, x.data[0]})
		}
	}
	return
}

type rig struct {
	*chip
	t      *testing.T
	d      *Device
	cfg    *config.Config
	ev     *notify.Recorder
	clock  *timer.Manual
	sleeps int
}

func newRig(t *testing.T, settings ...string) *rig {
	r := &rig{
		chip:  newChip(),
		t:     t,
		cfg:   config.New(),
		ev:    new(notify.Recorder),
		clock: timer.NewManual(),
	}
	settings = append([]string{"auto.ecbus", "false"}, settings...)
	for i := 0; i+1 < len(settings); i += 2 {
		if err := r.cfg.Set(settings[i], settings[i+1]); err != nil {
			t.Fatal(err)
		}
	}
	r.d = New(r.chip, r.cfg, r.ev, timer.New(r.clock))
	r.d.Sleep = func(time.Duration) { r.sleeps++ }
	if err := r.d.Start(); err != nil {
		t.Fatal(err)
	}
	r.ResetLog()
	return r
}

// fire raises a source and services the interrupt line.
func (r *rig) fire(src int, bits byte) {
	r.t.Helper()
	r.raise(src, bits)
	if err := r.d.HandleIRQ(); err != nil {
		r.t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		r.Poke(RegFastIntrStat.Add(i), 0)
	}
}

// drain completes MSC commands as the peer would until a fetch, or
// nothing, is in flight.
func (r *rig) drain() {
	r.t.Helper()
	for i := 0; i < 64; i++ {
		q := r.d.cbus.inflight
		if q == nil || q.kind.fetch() {
			return
		}
		r.fire(srcMsc, CbusInt0CmdDone)
	}
	r.t.Fatal("queue never drained")
}

func (r *rig) discover() {
	r.t.Helper()
	r.Poke(RegDiscStat2, Rgnd1k)
	r.fire(srcDisc, DiscRGNDReady)
	r.fire(srcDisc, DiscMHLEst)
}

func (r *rig) devcap(p [DevcapSize]byte) {
	r.t.Helper()
	r.load(EdidCtlViewDevcap, p[:])
	r.fire(srcFetch, Intr9DevcapDone)
	r.drain()
}

func (r *rig) xdevcap(p [DevcapSize]byte) {
	r.t.Helper()
	r.load(EdidCtlViewXDev, p[:])
	r.fire(srcFetch, Intr9DevcapDone)
	r.drain()
}

var (
	legacyDevcap = [DevcapSize]byte{
		DevcapMHLVersion:  0x21,
		DevcapFeatureFlag: FeatureRCP | FeatureRAP,
		DevcapScratchpad:  ScratchpadSize,
	}
	v3Devcap = [DevcapSize]byte{
		DevcapMHLVersion:  0x30,
		DevcapVidLinkMode: VidLinkSuppPPixel,
		DevcapFeatureFlag: FeatureRCP | FeatureRAP | FeatureUCPRecv,
		DevcapScratchpad:  ScratchpadSize,
	}
	v3XDevcap = [DevcapSize]byte{
		XDevcapECBUSSpeeds: ECBUSS075,
	}
)

// v3 brings the rig up to PeerIsV3 with the capability reads done.
func (r *rig) v3() {
	r.t.Helper()
	r.discover()
	r.devcap(v3Devcap)
	r.xdevcap(v3XDevcap)
	if m := r.d.mode; m != PeerIsV3 {
		r.t.Fatal("wrong mode:", m)
	}
}

// ecbus escalates a v3 rig to eCBUS-S.
func (r *rig) ecbus() {
	r.t.Helper()
	r.Poke(RegCocStat0, CocStatLocked)
	if err := r.d.RequestECBUS(SpeedS, DefaultTDM(SpeedS, 4)); err != nil {
		r.t.Fatal(err)
	}
	r.drain()
	r.fire(srcCoc, CocIntrDone)
	r.Poke(RegTdmStat, TdmStatSynced)
	r.fire(srcTdm, TrxIntHSync)
	if m := r.d.mode; m != ECBUSS {
		r.t.Fatal("wrong mode:", m)
	}
}

func (r *rig) modes() (m []Mode) {
	for _, e := range r.ev.Events() {
		if e.Kind == notify.ModeChange {
			m = append(m, Mode(e.Param))
		}
	}
	return
}

// edidBlock returns a valid EDID block announcing ext extensions.
func edidBlock(n, ext int) []byte {
	p := make([]byte, EDIDBlockSize)
	if n == 0 {
		copy(p, edidHeader[:])
		p[EDIDExtCount] = byte(ext)
	} else {
		p[0] = 0x02
		p[1] = byte(n)
	}
	var sum byte
	for _, b := range p[:EDIDBlockSize-1] {
		sum += b
	}
	p[EDIDBlockSize-1] = -sum
	return p
}

// edid serves block n of the EDID read in flight.
func (r *rig) edid(p []byte) {
	r.t.Helper()
	q := r.d.cbus.inflight
	if q == nil || q.kind != reqReadEDID {
		r.t.Fatal("no edid read in flight")
	}
	r.load(edidView(int(q.offset)), p)
	r.fire(srcFetch, Intr9EDIDDone)
	r.drain()
}
