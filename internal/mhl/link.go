// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/notify"
)

const (
	discEstablished = DiscMHL3Est | DiscMHLEst
	discLost        = DiscNotMHLEst | DiscMHL12Discon | DiscMHL3Discon
)

var rgndNames = [...]string{
	RgndOpen:  "open",
	Rgnd2k:    "2k",
	Rgnd1k:    "1k",
	RgndShort: "short",
}

func (d *Device) discIntr(rec *intrRecord, st byte) int {
	if st&discLost != 0 {
		d.hardReset("discovery lost")
		return -1
	}
	if st&DiscRGNDReady != 0 {
		d.rgndReady()
	}
	if st&discEstablished != 0 {
		d.established3(st&DiscMHL3Est != 0)
	}
	return 0
}

// rgndReady classifies the cable's ground impedance; only 1k is an MHL
// sink.
func (d *Device) rgndReady() {
	v := d.rd(RegDiscStat2) & RgndMask
	if d.err != nil {
		return
	}
	if v != Rgnd1k {
		d.logf(config.Note, "rgnd %s, not mhl", rgndNames[v])
		return
	}
	d.wr(RegDiscCtl1, DiscCtl1Enable)
	d.setMask(srcDisc, discEstablished|discLost)
	d.setMode(VersionPending)
}

// established3 brings up the CBUS link once discovery completes, v3 if the
// chip saw MHL3 signalling.
func (d *Device) established3(v3 bool) {
	if d.established {
		return
	}
	if d.mode == NoConnection {
		d.setMode(VersionPending)
	}
	if d.mode != VersionPending {
		d.logf(config.Warn, "established in %v", d.mode)
		return
	}
	d.established = true
	d.logf(config.Note, "connected, mhl3 %v", v3)
	d.emit(notify.Connect, boolParam(v3), nil)

	for src, v := range connectMasks {
		if v != 0 {
			d.setMask(src, v)
		}
	}
	d.writeFifo(EdidCtlViewDevcap, localDevcap[:])
	d.writeFifo(EdidCtlViewXDev, localXDevcap[:])
	d.hpd = d.rd(RegCbusStatus)&CbusStatHPD != 0
	d.scdt = d.rd(RegSysStat)&SysStatSCDT != 0

	d.readDevcap()
	d.writeStat(StatConnectedRdy, ConnRdyDcapRdy|ConnRdyXDevcapSupp)
	d.linkMode = LinkModeClkNormal
	d.writeStat(StatLinkMode, d.linkMode)
}

// hardReset returns the transmitter to its disconnected state: every
// request dropped, timers and engines stopped, electrical and time division
// defaults restored, only cable discovery armed.
func (d *Device) hardReset(why string) {
	was := d.mode
	d.cbusFlush()
	d.settleTimer.Stop()
	d.bistHalt()
	d.hdcpStop()

	d.wr(RegTmdsCtl, 0)
	d.wr(RegVidMode, 0)
	d.wr(RegTxZoneCtl1, ZoneFixed)
	d.wr(RegTdmCtl, 0)
	d.wr(RegTdmVC0Slots, 1)
	d.wr(RegTdmVC1Slots, uint8(d.cfg.TDMSEMSC()))
	d.wr(RegTdmVC2Slots, uint8(25-d.cfg.TDMSEMSC()))
	d.wr(RegCocCtl0, 0)
	d.wr(RegEmscCtl, EmscCtlRxReset)

	d.rearm()

	d.established = false
	d.peerDevcap = [DevcapSize]byte{}
	d.haveDevcap = false
	d.peerXDevcap = [DevcapSize]byte{}
	d.haveXDevcap = false
	d.peerStat = [4]byte{}
	d.linkMode = 0
	d.hpd = false
	d.scdt = false
	d.pathEn = false
	d.peerPathEn = false
	d.edid = nil
	d.tdm = TDMSlots{}
	d.syncRetries = 0
	d.wb = wbState{}
	d.fetch = fetchState{}
	d.emscReset()

	d.setMode(NoConnection)
	if was != NoConnection {
		d.logf(config.Note, "disconnected: %s", why)
		d.emit(notify.Disconnect, uint32(was), nil)
	}
}

// rearm leaves only cable discovery enabled. It runs even after an earlier
// write of the reset failed; if its own writes fail, dispatch retries it
// before anything else.
func (d *Device) rearm() {
	err := d.err
	d.err = nil
	for src := range d.masks {
		d.setMask(src, 0)
	}
	for _, r := range intrRegs {
		d.wr(r.status, 0xff)
	}
	d.setMask(srcDisc, DiscRGNDReady)
	d.rearmPending = d.err != nil
	if d.err == nil {
		d.err = err
	}
}
