// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/notify"
)

// Interrupt sources, by their group bit in RegFastIntrStat.
const (
	srcDisc = iota
	srcG2WB
	srcCoc
	srcTdm
	srcMsc
	srcMerr
	srcEmsc
	srcFetch
	srcSCDT
	srcHdcp1
	srcHdcp2
	srcBist
	srcRSEN
	srcDDC
	srcXstat
	srcInfr
	nSources
)

// A handler returns the status bits to leave unacknowledged, or -1 to skip
// the acknowledgement entirely because it reset the chip.
type intrSource struct {
	name   string
	status reg
	mask   reg
	handle func(d *Device, rec *intrRecord, status byte) int
}

var intrRegs = [nSources]struct {
	name   string
	status reg
	mask   reg
}{
	srcDisc:  {"disc", RegCbusDiscIntr0, RegCbusDiscIntr0Mask},
	srcG2WB:  {"g2wb", RegMdtIntr0, RegMdtIntr0Mask},
	srcCoc:   {"coc", RegCocIntr, RegCocIntrMask},
	srcTdm:   {"tdm", RegTrxIntH, RegTrxIntHMask},
	srcMsc:   {"msc", RegCbusInt0, RegCbusInt0Mask},
	srcMerr:  {"merr", RegCbusInt1, RegCbusInt1Mask},
	srcEmsc:  {"emsc", RegEmscIntr, RegEmscIntrMask},
	srcFetch: {"fetch", RegIntr9, RegIntr9Mask},
	srcSCDT:  {"scdt", RegIntr5, RegIntr5Mask},
	srcHdcp1: {"hdcp1", RegTpiIntrSt0, RegTpiIntrEn},
	srcHdcp2: {"hdcp2", RegHdcp2xIntr0, RegHdcp2xIntr0Mask},
	srcBist:  {"bist", RegBistIntr, RegBistIntrMask},
	srcRSEN:  {"rsen", RegIntr1, RegIntr1Mask},
	srcDDC:   {"ddc", RegDdcIntr, RegDdcIntrMask},
	srcXstat: {"xstat", RegCbusXstatIntr, RegCbusXstatMask},
	srcInfr:  {"infr", RegInfrIntr, RegInfrIntrMask},
}

// intrTable is the dispatch order of a pass.
var intrTable []intrSource

func init() {
	handlers := [nSources]func(*Device, *intrRecord, byte) int{
		srcDisc:  (*Device).discIntr,
		srcG2WB:  (*Device).g2wbIntr,
		srcCoc:   (*Device).cocIntr,
		srcTdm:   (*Device).tdmIntr,
		srcMsc:   (*Device).mscIntr,
		srcMerr:  (*Device).merrIntr,
		srcEmsc:  (*Device).emscIntr,
		srcFetch: (*Device).fetchIntr,
		srcSCDT:  (*Device).scdtIntr,
		srcHdcp1: (*Device).hdcp1Intr,
		srcHdcp2: (*Device).hdcp2Intr,
		srcBist:  (*Device).bistIntr,
		srcRSEN:  (*Device).rsenIntr,
		srcDDC:   (*Device).ddcIntr,
		srcXstat: (*Device).xstatIntr,
		srcInfr:  (*Device).infrIntr,
	}
	for i, r := range intrRegs {
		intrTable = append(intrTable, intrSource{
			name:   r.name,
			status: r.status,
			mask:   r.mask,
			handle: handlers[i],
		})
	}
}

// The connection-time enables of every source other than discovery, whose
// mask follows the link, and those armed on demand (coc, tdm, emsc, hdcp,
// bist).
var connectMasks = [nSources]byte{
	srcG2WB:  MdtIntrRcvDone,
	srcMsc:   0x7f,
	srcMerr:  CbusInt1CmdAbort | CbusInt1PeerAbort | CbusInt1DDCAbort,
	srcFetch: Intr9DevcapDone | Intr9EDIDDone | Intr9FetchErr,
	srcSCDT:  Intr5SCDTChg,
	srcRSEN:  Intr1RSENChg,
	srcDDC:   DdcIntrErr,
	srcXstat: XstatIntrRcv,
	srcInfr:  InfrIntrChg,
}

type recFlag uint8

const (
	recEmscRx recFlag = 1 << iota
)

// intrRecord collects what handlers defer to the end of a pass.
type intrRecord struct {
	flags  recFlag
	msgs   [][2]byte
	bursts [][]byte
}

func (d *Device) setMask(src int, v byte) {
	d.masks[src] = v
	d.wr(intrRegs[src].mask, v)
}

// HandleIRQ services the interrupt line: it runs dispatch passes while
// the line stays asserted, up to the configured limit.
func (d *Device) HandleIRQ() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !d.started {
		return ErrInvalidMode
	}
	n := d.cfg.IRQRetries()
	for pass := 0; pass < n; pass++ {
		if err := d.dispatch(); err != nil {
			d.logf(config.Err, "irq: %v", err)
			return err
		}
		if d.Line == nil || !d.Line() {
			return nil
		}
	}
	d.logf(config.Warn, "irq: line still asserted after %d passes", n)
	return nil
}

func (d *Device) dispatch() error {
	var rec intrRecord
	d.err = nil
	if d.rearmPending {
		d.rearm()
		if d.err != nil {
			return d.err
		}
	}
	grp := d.rdn(RegFastIntrStat, 3)
	if d.err != nil {
		return d.err
	}
	for i, src := range intrTable {
		if d.masks[i] == 0 || grp[i/8]&(1<<uint(i%8)) == 0 {
			continue
		}
		st := d.rd(src.status) & d.masks[i]
		if d.err != nil {
			return d.err
		}
		if st == 0 {
			continue
		}
		d.logf(config.Debug, "%s %#02x", src.name, st)
		ret := src.handle(d, &rec, st)
		if d.err != nil {
			return d.err
		}
		if ret < 0 {
			continue
		}
		if ack := st &^ byte(ret); ack != 0 {
			d.wr(src.status, ack)
		}
	}
	d.post(&rec)
	return d.err
}

// post runs the work handlers recorded, then pushes out whatever is queued.
func (d *Device) post(rec *intrRecord) {
	for _, m := range rec.msgs {
		d.mscMsg(m[0], m[1])
	}
	for _, b := range rec.bursts {
		d.writeBurstRcvd(b)
	}
	if rec.flags&recEmscRx != 0 {
		d.emscConsume()
	}
	d.kick()
}

func (d *Device) kick() {
	d.emscFlush()
	d.cbusKick()
}

func (d *Device) rsenIntr(rec *intrRecord, st byte) int {
	if d.rd(RegSysStat)&SysStatRSEN != 0 || !d.mode.Connected() {
		return 0
	}
	d.hardReset("rsen lost")
	return -1
}

func (d *Device) scdtIntr(rec *intrRecord, st byte) int {
	scdt := d.rd(RegSysStat)&SysStatSCDT != 0
	if d.err != nil || scdt == d.scdt {
		return 0
	}
	d.scdt = scdt
	d.logf(config.Info, "scdt %v", scdt)
	d.emit(notify.VideoChange, boolParam(scdt), nil)
	d.hdcpCheck()
	return 0
}

func (d *Device) infrIntr(rec *intrRecord, st byte) int {
	v := d.rd(RegInfrStat)
	if d.err == nil {
		d.emit(notify.VideoChange, 0x100|uint32(v), nil)
	}
	return 0
}

func (d *Device) xstatIntr(rec *intrRecord, st byte) int {
	p := d.rdn(RegXstatRcv, 2)
	if d.err != nil {
		return 0
	}
	d.logf(config.Info, "xstat %#02x = %#02x", p[0], p[1])
	d.emit(notify.StatusChange, uint32(p[0])<<8|uint32(p[1]), nil)
	return 0
}

func boolParam(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
