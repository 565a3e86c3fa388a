// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/notify"
)

type hdcpEngine uint8

const (
	engineNone hdcpEngine = iota
	engine1x
	engine2x
)

func (e hdcpEngine) String() string {
	switch e {
	case engine1x:
		return "1.x"
	case engine2x:
		return "2.x"
	}
	return "none"
}

// Only the engine that owns the output mute may change it; the owner is
// the engine that was last started.
type hdcpState struct {
	engine   hdcpEngine
	owner    hdcpEngine
	unmuted  bool
	settling bool
}

// hdcpCheck runs authentication while there's video on an enabled path.
func (d *Device) hdcpCheck() {
	want := d.scdt && d.pathEn && d.cfg.HDCP() != config.HDCPOff
	switch {
	case want && d.hdcp.engine == engineNone:
		d.hdcpStart()
	case !want && d.hdcp.engine != engineNone:
		d.hdcpStop()
	}
}

func (d *Device) hdcpStart() {
	e := engine1x
	switch d.cfg.HDCP() {
	case config.HDCP2x:
		e = engine2x
	case config.HDCPAuto:
		if d.rd(RegHdcp2xCaps)&Hdcp2xCapsPeer != 0 {
			e = engine2x
		}
	}
	d.hdcp = hdcpState{engine: e, owner: e}
	d.logf(config.Info, "hdcp %v start", e)
	d.mute(e)
	if e == engine1x {
		d.setMask(srcHdcp1, TpiIntrKeyDone|TpiIntrAuthChg|TpiIntrLinkChg)
		d.hdcp1KeyExchange()
		return
	}
	d.wr(RegHdcp2xStreamType, d.contentType)
	d.setMask(srcHdcp2, Hdcp2xIntrDone|Hdcp2xIntrFail|Hdcp2xIntrRcvID)
	d.wr(RegHdcp2xCtrl0, 0)
	d.wr(RegHdcp2xCtrl0, Hdcp2xCtrlEnable|Hdcp2xCtrlPoller)
}

// hdcpStop halts the running engine, leaving the output muted.
func (d *Device) hdcpStop() {
	d.settleTimer.Stop()
	switch d.hdcp.engine {
	case engine1x:
		d.mute(engine1x)
		d.wr(RegTpiHdcpCtl, 0)
		d.setMask(srcHdcp1, 0)
	case engine2x:
		d.mute(engine2x)
		d.wr(RegHdcp2xCtrl0, 0)
		d.setMask(srcHdcp2, 0)
	default:
		return
	}
	d.logf(config.Info, "hdcp %v stop", d.hdcp.engine)
	d.hdcp = hdcpState{}
}

func (d *Device) hdcpRestart() {
	d.hdcpStop()
	d.hdcpCheck()
}

func (d *Device) mute(e hdcpEngine) bool {
	if d.hdcp.owner != e {
		d.logf(config.Warn, "hdcp %v mute, owner %v", e, d.hdcp.owner)
		return false
	}
	d.modify(RegTpiSC, TpiSCAVMute, TpiSCAVMute)
	d.hdcp.unmuted = false
	return d.err == nil
}

// unmute clears the output mute; it's a no-op if already clear.
func (d *Device) unmute(e hdcpEngine) bool {
	if d.hdcp.owner != e {
		d.logf(config.Warn, "hdcp %v unmute, owner %v", e, d.hdcp.owner)
		return false
	}
	v := d.rd(RegTpiSC)
	if d.err != nil {
		return false
	}
	if v&TpiSCAVMute != 0 {
		d.wr(RegTpiSC, v&^TpiSCAVMute)
	}
	return d.err == nil
}

func (d *Device) authenticated(e hdcpEngine) {
	if d.hdcp.unmuted {
		return
	}
	if d.unmute(e) {
		d.hdcp.unmuted = true
		d.logf(config.Note, "hdcp %v authenticated", e)
		d.emit(notify.HDCPAuthenticated, uint32(e), nil)
	}
}

func (d *Device) hdcp1KeyExchange() {
	d.wr(RegTpiHdcpCtl, 0)
	d.wr(RegTpiHdcpCtl, HdcpCtlKeyExchange)
}

func (d *Device) hdcp1Auth() {
	d.wr(RegTpiHdcpCtl, HdcpCtlKeyExchange|HdcpCtlAuth)
}

func (d *Device) settleExpired() {
	if !d.hdcp.settling || d.hdcp.engine != engine1x {
		return
	}
	d.hdcp.settling = false
	d.hdcp1Auth()
}

func (d *Device) hdcp1Intr(rec *intrRecord, st byte) int {
	if d.hdcp.engine != engine1x {
		return 0
	}
	if st&TpiIntrKeyDone != 0 {
		if d.rd(RegTpiBcaps)&BcapsRepeater != 0 {
			d.hdcp.settling = true
			d.settleTimer.Start(ms(d.cfg.RepeaterSettle()))
		} else {
			d.hdcp1Auth()
		}
	}
	if st&TpiIntrAuthChg != 0 {
		switch v := d.rd(RegTpiCopyStat) & CopyStatMask; v {
		case CopyStatLocal, CopyStatExtended:
			d.authenticated(engine1x)
		default:
			d.hdcp1Failed(v)
			return 0
		}
	}
	if st&TpiIntrLinkChg != 0 {
		switch v := d.rd(RegTpiHdcpStat) & LinkStatMask; v {
		case LinkStatReneg:
			d.logf(config.Info, "hdcp 1.x renegotiate")
			d.hdcp1KeyExchange()
		case LinkStatLost, LinkStatSuspended:
			d.hdcp1Failed(v)
		}
	}
	return 0
}

func (d *Device) hdcp1Failed(v byte) {
	diag := []byte{v, d.rd(RegTpiHdcpDiag), d.rd(RegTpiAuthErrCnt)}
	d.logf(config.Warn, "hdcp 1.x failed % x", diag)
	d.emit(notify.HDCPFailed, uint32(engine1x), diag)
	d.hdcpRestart()
}

func (d *Device) hdcp2Intr(rec *intrRecord, st byte) int {
	if d.hdcp.engine != engine2x {
		return 0
	}
	if st&Hdcp2xIntrDone != 0 {
		d.authenticated(engine2x)
	}
	if st&Hdcp2xIntrFail != 0 {
		diag := []byte{d.rd(RegHdcp2xStat), d.rd(RegHdcp2xErr),
			d.rd(RegHdcp2xState)}
		d.logf(config.Warn, "hdcp 2.x failed % x", diag)
		d.emit(notify.HDCPFailed, uint32(engine2x), diag)
		d.mute(engine2x)
	}
	if st&Hdcp2xIntrRcvID != 0 {
		n := int(d.rd(RegHdcp2xRcvIDCount) & 0x1f)
		ids := d.rdn(RegHdcp2xRcvIDFifo, 5*n)
		if d.err == nil {
			d.emit(notify.HDCPReceiverIDs, uint32(n), ids)
		}
	}
	return 0
}
