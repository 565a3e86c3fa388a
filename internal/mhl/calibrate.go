// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"fmt"

	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/emsc"
)

// TDMSlots divides an eCBUS frame among the virtual channels. CBUS1 is
// always one slot; EMSC and TCBUS share the 25 (eCBUS-S) or 200 (eCBUS-D)
// data slots of the frame.
type TDMSlots struct {
	CBUS1 int
	EMSC  int
	TCBUS int
}

func frameSlots(speed Speed) int {
	if speed == SpeedD {
		return 200
	}
	return 25
}

// DefaultTDM gives the data slots left after emscSlots to TCBUS.
func DefaultTDM(speed Speed, emscSlots int) TDMSlots {
	return TDMSlots{1, emscSlots, frameSlots(speed) - emscSlots}
}

func (s TDMSlots) Validate(speed Speed) error {
	n := frameSlots(speed)
	switch {
	case s.CBUS1 != 1:
	case s.EMSC < 1 || s.EMSC > n-1:
	case s.TCBUS < 0:
	case s.EMSC+s.TCBUS != n:
	default:
		return nil
	}
	return fmt.Errorf("%w: ecbus-%v %d/%d/%d", ErrInvalidTDM, speed,
		s.CBUS1, s.EMSC, s.TCBUS)
}

// RequestECBUS escalates an MHL3 link to eCBUS at the given speed and slot
// division. It returns once the PLL has locked; the rest of the escalation
// follows from interrupts.
func (d *Device) RequestECBUS(speed Speed, slots TDMSlots) error {
	return d.op(func() error {
		return d.requestECBUS(speed, slots)
	})
}

func (d *Device) requestECBUS(speed Speed, slots TDMSlots) error {
	if err := slots.Validate(speed); err != nil {
		return err
	}
	if d.mode != PeerIsV3 {
		return fmt.Errorf("%w: %v", ErrInvalidMode, d.mode)
	}
	ctl, xstat, next := byte(TdmCtlEnable), byte(XstatECBUSS), TransitionalS
	if speed == SpeedD {
		ctl |= TdmCtlSpeedD
		xstat, next = XstatECBUSD, TransitionalD
	}
	d.speed = speed
	d.tdm = slots
	d.syncRetries = 0
	d.queueMSC(MscWriteXstat, XstatCurrECBUSMode, xstat)
	d.wr(RegTdmVC0Slots, uint8(slots.CBUS1))
	d.wr(RegTdmVC1Slots, uint8(slots.EMSC))
	d.wr(RegTdmVC2Slots, uint8(slots.TCBUS))
	d.wr(RegTdmCtl, ctl)
	d.wr(RegTxZoneCtl1, ZoneAuto)
	if d.err != nil {
		return d.err
	}
	d.setMode(next)
	return d.calibrate()
}

// calibrate resets the eCBUS PLL and polls for lock.
func (d *Device) calibrate() error {
	d.wr(RegCocCtl0, CocCtlReset)
	d.wr(RegCocCtl0, CocCtlEnable)
	n := d.cfg.CalibrationRetries()
	for i := 0; i < n; i++ {
		if i > 0 {
			d.sleep(d.cfg.CalibrationDelay())
		}
		v := d.rd(RegCocStat0)
		if d.err != nil {
			return d.err
		}
		if v&CocStatMask == CocStatLocked {
			d.logf(config.Info, "pll locked after %d polls", i+1)
			d.setMask(srcCoc, CocIntrDone)
			return nil
		}
	}
	d.logf(config.Warn, "pll not locked after %d polls", n)
	d.hardReset("calibration")
	return ErrCalibration
}

func (d *Device) cocIntr(rec *intrRecord, st byte) int {
	var next Mode
	switch d.mode {
	case TransitionalS:
		next = TransitionalSCalibrated
	case TransitionalD:
		next = TransitionalDCalibrated
	default:
		d.logf(config.Debug, "coc done in %v", d.mode)
		return 0
	}
	d.setMask(srcCoc, 0)
	d.setMask(srcTdm, TrxIntHSync|TrxIntHWait)
	d.setMode(next)
	return 0
}

func (d *Device) tdmIntr(rec *intrRecord, st byte) int {
	var next Mode
	switch d.mode {
	case TransitionalSCalibrated:
		next = ECBUSS
	case TransitionalDCalibrated:
		next = ECBUSD
	default:
		d.logf(config.Debug, "tdm %#02x in %v", st, d.mode)
		return 0
	}
	v := d.rd(RegTdmStat)
	if d.err != nil {
		return 0
	}
	if st&TrxIntHSync != 0 && v&TdmStatMask == TdmStatSynced {
		d.setMask(srcTdm, 0)
		d.setMode(next)
		d.ecbusUp()
		return 0
	}
	d.syncRetries++
	if d.syncRetries > d.cfg.CalibrationRetries() {
		d.logf(config.Warn, "tdm never synced, stat %#02x", v)
		d.hardReset("tdm sync")
		return -1
	}
	d.logf(config.Info, "tdm stat %#02x, pll reset %d", v, d.syncRetries)
	d.wr(RegCocCtl0, CocCtlReset)
	d.wr(RegCocCtl0, CocCtlEnable)
	return 0
}

// ecbusUp starts eMSC on a synchronized eCBUS link.
func (d *Device) ecbusUp() {
	d.emscReset()
	d.emsc.credit = emsc.BlockMax
	d.wr(RegEmscCtl, EmscCtlRxReset|EmscCtlEnable)
	d.wr(RegEmscCtl, EmscCtlEnable)
	d.setMask(srcEmsc, EmscIntrRxReady)
	d.emsc.tx.Push(&emsc.BufferInfo{Size: emscBufferSize})
	d.emsc.tx.Push(&emsc.EMSCSupport{IDs: emscAccepted})
}
