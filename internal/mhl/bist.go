// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/emsc"
	"github.com/platinasystems/mhl/internal/notify"
)

var ErrInvalidBIST = errors.New("invalid bist setup")

type BISTPattern uint8

const (
	BISTPatternPRBS BISTPattern = iota
	BISTPatternFixed8
	BISTPatternFixed10
)

// AV link data rates.
type BISTRate uint8

const (
	BISTRate1_5 BISTRate = iota
	BISTRate3
	BISTRate6
)

// Impedance test modes run 0 through BISTImpedanceModes-1.
const BISTImpedanceModes = 6

// BIST_TRIGGER test selection
const (
	BISTTriggerECBUS     = BistCtlECBUS
	BISTTriggerAVLink    = BistCtlAV
	BISTTriggerImpedance = BistCtlImp
	bistTriggerAll       = BISTTriggerECBUS | BISTTriggerAVLink |
		BISTTriggerImpedance
)

type BISTStatus uint8

const (
	BISTStatusOK BISTStatus = iota
	BISTStatusInvalidSetup
	BISTStatusNotReady
	BISTStatusBusy
	BISTStatusInvalidMode
)

var bistStatusNames = [...]string{
	BISTStatusOK:           "ok",
	BISTStatusInvalidSetup: "invalid setup",
	BISTStatusNotReady:     "not ready",
	BISTStatusBusy:         "busy",
	BISTStatusInvalidMode:  "invalid mode",
}

func (s BISTStatus) String() string {
	if int(s) < len(bistStatusNames) {
		return bistStatusNames[s]
	}
	return fmt.Sprint("status(", uint8(s), ")")
}

// BISTSetup is the test configuration a later trigger runs. Durations are
// in seconds, zero running until stopped.
type BISTSetup struct {
	ECBUSDuration    uint8
	ECBUSPattern     BISTPattern
	ECBUSFixed       uint16
	AVLinkRate       BISTRate
	AVLinkPattern    BISTPattern
	AVLinkVideoMode  uint8
	AVLinkDuration   uint8
	AVLinkFixed      uint16
	AVLinkRandomizer bool
	ImpedanceMode    uint8
}

func (s *BISTSetup) Validate() error {
	switch {
	case s.ECBUSPattern > BISTPatternFixed8:
		return fmt.Errorf("%w: ecbus pattern %d", ErrInvalidBIST,
			s.ECBUSPattern)
	case s.AVLinkPattern > BISTPatternFixed10:
		return fmt.Errorf("%w: av link pattern %d", ErrInvalidBIST,
			s.AVLinkPattern)
	case s.AVLinkRate > BISTRate6:
		return fmt.Errorf("%w: av link rate %d", ErrInvalidBIST,
			s.AVLinkRate)
	case s.AVLinkPattern == BISTPatternFixed10 && s.AVLinkFixed > 0x3ff:
		return fmt.Errorf("%w: av link fixed %#x", ErrInvalidBIST,
			s.AVLinkFixed)
	case s.ImpedanceMode >= BISTImpedanceModes:
		return fmt.Errorf("%w: impedance mode %d", ErrInvalidBIST,
			s.ImpedanceMode)
	}
	return nil
}

// SetupFromBurst converts a received BIST_SETUP.
func SetupFromBurst(b *emsc.BISTSetup) BISTSetup {
	return BISTSetup{
		ECBUSDuration:    b.ECBUSDuration,
		ECBUSPattern:     BISTPattern(b.ECBUSPattern),
		ECBUSFixed:       b.ECBUSFixedPattern,
		AVLinkRate:       BISTRate(b.AVLinkDataRate),
		AVLinkPattern:    BISTPattern(b.AVLinkPattern),
		AVLinkVideoMode:  b.AVLinkVideoMode,
		AVLinkDuration:   b.AVLinkDuration,
		AVLinkFixed:      b.AVLinkFixedPattern,
		AVLinkRandomizer: b.AVLinkRandomizer != 0,
		ImpedanceMode:    b.ImpedanceMode,
	}
}

// Burst returns s as a BIST_SETUP.
func (s *BISTSetup) Burst() *emsc.BISTSetup {
	b := &emsc.BISTSetup{
		ECBUSDuration:      s.ECBUSDuration,
		ECBUSPattern:       uint8(s.ECBUSPattern),
		ECBUSFixedPattern:  s.ECBUSFixed,
		AVLinkDataRate:     uint8(s.AVLinkRate),
		AVLinkPattern:      uint8(s.AVLinkPattern),
		AVLinkVideoMode:    s.AVLinkVideoMode,
		AVLinkDuration:     s.AVLinkDuration,
		AVLinkFixedPattern: s.AVLinkFixed,
		ImpedanceMode:      s.ImpedanceMode,
	}
	if s.AVLinkRandomizer {
		b.AVLinkRandomizer = 1
	}
	return b
}

type bistState struct {
	setup   BISTSetup
	ready   bool
	running byte
	// run counts triggers; timed is the run the duration timer was
	// armed for, 0 if none
	run   uint
	timed uint
	// electrical settings to restore when the tests end
	saved        [3]byte
	ecbusErrors  uint16
	avLinkErrors uint16
}

// BISTSetup stores s for the next trigger. An invalid s changes nothing.
func (d *Device) BISTSetup(s BISTSetup) (st BISTStatus) {
	if s.Validate() != nil {
		return BISTStatusInvalidSetup
	}
	st = BISTStatusInvalidMode
	d.op(func() error {
		st = d.bistSetup(s)
		return nil
	})
	return
}

func (d *Device) bistSetup(s BISTSetup) BISTStatus {
	if err := s.Validate(); err != nil {
		d.logf(config.Warn, "bist: %v", err)
		return BISTStatusInvalidSetup
	}
	if d.bist.running != 0 {
		return BISTStatusBusy
	}
	d.bist.setup = s
	d.bist.ready = true
	return BISTStatusOK
}

// bistSetupBurst takes a peer's BIST_SETUP and answers BIST_READY with the
// tests it may now trigger.
func (d *Device) bistSetupBurst(b *emsc.BISTSetup) {
	st := d.bistSetup(SetupFromBurst(b))
	d.emit(notify.BISTStatus, uint32(st), b.Bytes())
	var ready byte
	if st == BISTStatusOK {
		ready = BISTTriggerAVLink | BISTTriggerImpedance
		if d.mode.ECBUS() {
			ready |= BISTTriggerECBUS
		}
	}
	d.sendMsg(MsgBISTReady, ready)
}

// BISTTrigger starts the selected tests with the stored setup.
func (d *Device) BISTTrigger(tests byte) (st BISTStatus) {
	st = BISTStatusInvalidMode
	d.op(func() error {
		st = d.bistTrigger(tests)
		return nil
	})
	return
}

func (d *Device) bistTrigger(tests byte) BISTStatus {
	switch {
	case tests == 0 || tests&^bistTriggerAll != 0:
		return BISTStatusInvalidSetup
	case !d.bist.ready:
		return BISTStatusNotReady
	case d.bist.running != 0:
		return BISTStatusBusy
	case !d.mode.Escalated():
		return BISTStatusInvalidMode
	case tests&BISTTriggerECBUS != 0 && !d.mode.ECBUS():
		return BISTStatusInvalidMode
	}
	s := &d.bist.setup
	if err := s.Validate(); err != nil {
		return BISTStatusInvalidSetup
	}
	d.bist.saved = [3]byte{
		d.rd(RegTxZoneCtl1),
		d.rd(RegTxSwingCtl),
		d.rd(RegTmdsCtl),
	}
	var fixed [2]byte
	if tests&BISTTriggerECBUS != 0 {
		d.wr(RegBistECBUSPat, uint8(s.ECBUSPattern))
		binary.BigEndian.PutUint16(fixed[:], s.ECBUSFixed)
		d.wrn(RegBistECBUSFixed, fixed[:])
	}
	if tests&BISTTriggerAVLink != 0 {
		d.wr(RegBistAVPat, uint8(s.AVLinkPattern))
		d.wr(RegBistAVRate, uint8(s.AVLinkRate))
		binary.BigEndian.PutUint16(fixed[:], s.AVLinkFixed)
		d.wrn(RegBistAVFixed, fixed[:])
		d.wr(RegBistAVRand, uint8(boolParam(s.AVLinkRandomizer)))
		d.setTMDS(true)
	}
	if tests&BISTTriggerImpedance != 0 {
		d.wr(RegBistImpMode, s.ImpedanceMode)
	}
	d.setMask(srcBist, tests)
	d.wr(RegBistCtl, tests)
	if d.err != nil {
		return BISTStatusNotReady
	}
	d.bist.running = tests
	d.bist.run++
	d.bist.timed = 0
	d.bist.ecbusErrors, d.bist.avLinkErrors = 0, 0

	var secs uint8
	if tests&BISTTriggerECBUS != 0 {
		secs = s.ECBUSDuration
	}
	if tests&BISTTriggerAVLink != 0 && s.AVLinkDuration > secs {
		secs = s.AVLinkDuration
	}
	if secs > 0 {
		d.bist.timed = d.bist.run
		d.bistTimer.Start(int(secs) * 1000)
	}
	d.logf(config.Info, "bist %#02x for %ds", tests, secs)
	return BISTStatusOK
}

// BISTStop ends any running tests.
func (d *Device) BISTStop() error {
	return d.op(func() error {
		d.bistStop()
		return nil
	})
}

// BISTResult returns the error counts of the last tests.
func (d *Device) BISTResult() (ecbus, avLink uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bist.ecbusErrors, d.bist.avLinkErrors
}

func (d *Device) bistCounters() {
	p := d.rdn(RegBistECBUSErr, 4)
	if d.err == nil {
		d.bist.ecbusErrors = binary.BigEndian.Uint16(p)
		d.bist.avLinkErrors = binary.BigEndian.Uint16(p[2:])
	}
}

func (d *Device) bistIntr(rec *intrRecord, st byte) int {
	done := st & d.bist.running
	if done == 0 {
		return 0
	}
	d.bistCounters()
	d.bist.running &^= done
	if d.bist.running == 0 {
		d.bistFinish()
	}
	d.emit(notify.BISTDone, uint32(done),
		[]byte{byte(d.bist.ecbusErrors >> 8), byte(d.bist.ecbusErrors),
			byte(d.bist.avLinkErrors >> 8), byte(d.bist.avLinkErrors)})
	return 0
}

// bistExpired ends the timed run unless the expiry raced with its end and
// a later trigger.
func (d *Device) bistExpired() {
	if d.bist.timed != d.bist.run || d.bistTimer.Pending() {
		d.logf(config.Debug, "bist: stale expiry")
		return
	}
	d.logf(config.Info, "bist duration over")
	d.bistStop()
}

func (d *Device) bistStop() {
	done := d.bist.running
	if done == 0 {
		return
	}
	d.bistCounters()
	d.bist.running = 0
	d.bistFinish()
	d.emit(notify.BISTDone, uint32(done), nil)
}

// bistHalt abandons running tests without a report.
func (d *Device) bistHalt() {
	d.bistTimer.Stop()
	if d.bist.running != 0 {
		d.bist.running = 0
		d.bistFinish()
	}
	d.bist.ready = false
}

func (d *Device) bistFinish() {
	d.bistTimer.Stop()
	d.wr(RegBistCtl, BistCtlStop)
	d.setMask(srcBist, 0)
	d.wr(RegTxZoneCtl1, d.bist.saved[0])
	d.wr(RegTxSwingCtl, d.bist.saved[1])
	d.wr(RegTmdsCtl, d.bist.saved[2])
}

// bistReturnStat answers BIST_REQUEST_STAT.
func (d *Device) bistReturnStat() {
	d.sendBurst(&emsc.BISTReturnStat{
		ECBUSErrors:  d.bist.ecbusErrors,
		AVLinkErrors: d.bist.avLinkErrors,
	})
}
