// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"bytes"

	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/notify"
)

// The DEVCAP, XDEVCAP and EDID fetches share one FIFO; RegEdidCtl selects
// which of them it currently shows. EDID blocks alternate between the two
// halves of the FIFO by block parity.

type fetchState struct {
	active  bool
	blocks  int
	retries int
	edid    []byte
}

func edidView(block int) byte {
	v := byte(EdidCtlViewEDID)
	if block&1 != 0 {
		v |= EdidCtlParity
	}
	return v
}

func (d *Device) writeFifo(view byte, p []byte) {
	d.wr(RegEdidCtl, view)
	d.wr(RegEdidFifoAddr, 0)
	d.wrn(RegEdidFifoWrData, p)
}

func (d *Device) readFifo(view byte, n int) []byte {
	d.wr(RegEdidCtl, view)
	d.wr(RegEdidFifoAddr, 0)
	return d.rdn(RegEdidFifoRdData, n)
}

// readDevcap queues a DEVCAP read unless one is already on its way.
func (d *Device) readDevcap() {
	if !d.queued(reqReadDevcap) {
		d.queue(&cbusRequest{kind: reqReadDevcap, cmd: MscReadDevcap})
	}
}

func (d *Device) readXDevcap() {
	if !d.queued(reqReadXDevcap) {
		d.queue(&cbusRequest{
			kind:   reqReadXDevcap,
			cmd:    MscReadXDevcap,
			offset: XDevcapBase,
		})
	}
}

func (d *Device) fetchIntr(rec *intrRecord, st byte) int {
	r := d.cbus.inflight
	if r == nil || !r.kind.fetch() {
		d.logf(config.Info, "fetch %#02x with nothing in flight", st)
		return 0
	}
	if st&Intr9FetchErr != 0 {
		if r.kind == reqReadEDID {
			d.cbus.inflight = nil
			if !r.cancel {
				d.edidRetry("fetch error")
			}
		} else {
			d.cbusFail(false)
		}
		return 0
	}
	switch r.kind {
	case reqReadDevcap:
		if st&Intr9DevcapDone != 0 {
			p := d.readFifo(EdidCtlViewDevcap, DevcapSize)
			if d.cbusDone(true) != nil && d.err == nil {
				d.devcapDone(p)
			}
		}
	case reqReadXDevcap:
		if st&Intr9DevcapDone != 0 {
			p := d.readFifo(EdidCtlViewXDev, DevcapSize)
			if d.cbusDone(true) != nil && d.err == nil {
				d.xdevcapDone(p)
			}
		}
	case reqReadEDID:
		if st&Intr9EDIDDone != 0 {
			p := d.readFifo(edidView(int(r.offset)), EDIDBlockSize)
			if d.cbusDone(true) != nil && d.err == nil {
				d.edidBlock(int(r.offset), p)
			}
		}
	}
	return 0
}

func (d *Device) devcapDone(p []byte) {
	first := !d.haveDevcap
	copy(d.peerDevcap[:], p)
	d.haveDevcap = true
	d.logf(config.Info, "devcap % x", p)
	d.emit(notify.DevcapReady, uint32(p[DevcapMHLVersion]), p)

	if d.mode == VersionPending {
		if p[DevcapMHLVersion] >= MHLVersion3 && !d.cfg.ForceLegacy() {
			d.setMode(PeerIsV3)
			d.readXDevcap()
		} else {
			d.setMode(PeerIsLegacy)
			d.wr(RegTxZoneCtl1, ZoneAuto)
		}
	}
	d.setLinkMode()
	if first && d.hpd {
		d.edidStart()
	}
}

func (d *Device) xdevcapDone(p []byte) {
	copy(d.peerXDevcap[:], p)
	d.haveXDevcap = true
	d.logf(config.Info, "xdevcap % x", p)
	d.emit(notify.XDevcapReady, uint32(p[XDevcapECBUSSpeeds]), p)

	speeds := p[XDevcapECBUSSpeeds] & localXDevcap[XDevcapECBUSSpeeds]
	if d.mode == PeerIsV3 && d.cfg.AutoECBUS() && speeds&ECBUSS075 != 0 {
		err := d.requestECBUS(SpeedS, DefaultTDM(SpeedS, d.cfg.TDMSEMSC()))
		if err != nil {
			d.logf(config.Warn, "ecbus: %v", err)
		}
	}
}

// setLinkMode chooses the TMDS clock mode; packed pixel needs both the
// override and a peer that accepts it.
func (d *Device) setLinkMode() {
	packed := d.cfg.ForcePacked() &&
		d.peerDevcap[DevcapVidLinkMode]&VidLinkSuppPPixel != 0
	mode := byte(LinkModeClkNormal)
	vid := byte(0)
	if packed {
		mode, vid = LinkModeClkPacked, VidModePacked
	}
	mode |= d.linkMode &^ LinkModeClkMask
	d.modify(RegVidMode, VidModePacked, vid)
	if mode != d.linkMode {
		d.linkMode = mode
		d.writeStat(StatLinkMode, d.linkMode)
	}
}

// edidStart begins a fresh read of the sink's EDID from block 0.
func (d *Device) edidStart() {
	if !d.hpd || !d.haveDevcap {
		return
	}
	d.abandonEDID()
	d.fetch = fetchState{active: true}
	d.queueEDID(0)
}

func (d *Device) queueEDID(block int) {
	d.queueFront(&cbusRequest{
		kind:   reqReadEDID,
		offset: byte(block),
	})
}

// abandonEDID cancels any queued or in-flight block read.
func (d *Device) abandonEDID() {
	d.dequeue(reqReadEDID)
	if r := d.cbus.inflight; r != nil && r.kind == reqReadEDID {
		r.cancel = true
	}
}

func (d *Device) edidBlock(n int, p []byte) {
	if !d.fetch.active {
		return
	}
	if !edidValid(n, p) {
		d.edidRetry("bad block")
		return
	}
	if n == 0 {
		d.fetch.edid = d.fetch.edid[:0]
		d.fetch.blocks = 1 + int(p[EDIDExtCount])
		if d.fetch.blocks > EDIDMaxBlocks {
			d.logf(config.Warn, "edid has %d blocks, reading %d",
				d.fetch.blocks, EDIDMaxBlocks)
			d.fetch.blocks = EDIDMaxBlocks
		}
	}
	d.fetch.edid = append(d.fetch.edid, p...)
	if n+1 < d.fetch.blocks {
		d.queueEDID(n + 1)
		return
	}
	d.edidDone()
}

func edidValid(n int, p []byte) bool {
	var sum byte
	for _, b := range p {
		sum += b
	}
	if sum != 0 {
		return false
	}
	return n != 0 || bytes.Equal(p[:len(edidHeader)], edidHeader[:])
}

// edidRetry restarts the read from block 0 until retries run out.
func (d *Device) edidRetry(why string) {
	if !d.fetch.active {
		return
	}
	d.fetch.retries++
	if d.fetch.retries > d.cfg.EDIDRetries() {
		d.logf(config.Warn, "edid: %s, giving up", why)
		d.edidGiveUp()
		return
	}
	d.logf(config.Info, "edid: %s, retry %d", why, d.fetch.retries)
	d.abandonEDID()
	d.fetch.edid = nil
	d.queueEDID(0)
}

func (d *Device) edidGiveUp() {
	if !d.fetch.active {
		return
	}
	d.abandonEDID()
	d.emit(notify.EDIDError, uint32(d.fetch.retries), nil)
	d.fetch = fetchState{}
}

func (d *Device) edidDone() {
	d.edid = d.fetch.edid
	d.fetch = fetchState{}
	d.logf(config.Note, "edid %d bytes", len(d.edid))
	d.emit(notify.EDIDReady, uint32(len(d.edid)/EDIDBlockSize),
		append([]byte(nil), d.edid...))
	d.pathEnable()
}

// hpdChange follows the sink's hot plug; the path only exists with HPD.
func (d *Device) hpdChange(hpd bool) {
	if hpd == d.hpd {
		return
	}
	d.hpd = hpd
	d.logf(config.Info, "hpd %v", hpd)
	if hpd {
		d.edidStart()
		return
	}
	if d.fetch.active {
		d.abandonEDID()
		d.emit(notify.EDIDError, 0, nil)
		d.fetch = fetchState{}
	}
	d.edid = nil
	d.pathDisable()
}

func (d *Device) ddcIntr(rec *intrRecord, st byte) int {
	if r := d.cbus.inflight; r != nil && r.kind == reqReadEDID {
		d.cbus.inflight = nil
		if !r.cancel {
			d.edidRetry("ddc error")
		}
	}
	return 0
}

func (d *Device) pathEnable() {
	if d.pathEn {
		return
	}
	d.pathEn = true
	d.linkMode |= LinkModePathEn
	d.writeStat(StatLinkMode, d.linkMode)
	d.setTMDS(true)
	d.hdcpCheck()
}

func (d *Device) pathDisable() {
	if !d.pathEn {
		return
	}
	d.pathEn = false
	d.hdcpStop()
	d.setTMDS(false)
	d.linkMode &^= LinkModePathEn
	d.writeStat(StatLinkMode, d.linkMode)
}

func (d *Device) setTMDS(on bool) {
	v := byte(0)
	if on {
		v = TmdsCtlOutEn
	}
	d.modify(RegTmdsCtl, TmdsCtlOutEn, v)
}
