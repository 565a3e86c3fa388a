// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mhl is the control plane of an MHL transmitter. A Device is
// driven by its interrupt line: each HandleIRQ reads the chip's aggregated
// interrupt status, runs the handler of every pending source, then turns
// what the handlers recorded into outgoing CBUS, eMSC and timer work.
//
// All device state is guarded by one mutex that HandleIRQ, every exported
// method and every timer callback take.
package mhl

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/notify"
	"github.com/platinasystems/mhl/internal/regbus"
	"github.com/platinasystems/mhl/internal/timer"
)

var (
	ErrClosed      = errors.New("device closed")
	ErrInvalidMode = errors.New("invalid cbus mode")
	ErrInvalidTDM  = errors.New("invalid tdm slots")
	ErrBusy        = errors.New("busy")
	ErrUnknownChip = errors.New("unknown chip")
	ErrCalibration = errors.New("ecbus calibration timeout")
	ErrTooLong     = errors.New("payload too long")
	ErrUnsupported = errors.New("unsupported by peer")
)

// Device ids this package drives.
var ChipIDs = []uint16{0x8620, 0x8630}

type Device struct {
	mu sync.Mutex

	// Line reports whether the interrupt line is still asserted after a
	// dispatch pass. Nil means one pass per HandleIRQ.
	Line func() bool
	// Sleep waits between calibration polls; nil is time.Sleep.
	Sleep func(time.Duration)

	id     int
	bus    regbus.Bus
	cfg    *config.Config
	sink   notify.Sink
	timers *timer.Service

	abortTimer  *timer.Handle
	settleTimer *timer.Handle
	bistTimer   *timer.Handle

	// sticky bus error of the current operation
	err error

	started bool
	closed  bool
	chipID  uint16
	rev     byte

	mode        Mode
	established bool
	masks       [nSources]byte

	// the last rearm didn't reach the chip
	rearmPending bool

	peerDevcap  [DevcapSize]byte
	haveDevcap  bool
	peerXDevcap [DevcapSize]byte
	haveXDevcap bool
	peerStat    [4]byte
	linkMode    byte
	hpd         bool
	scdt        bool
	pathEn      bool
	peerPathEn  bool
	edid        []byte
	contentType byte
	speed       Speed
	tdm         TDMSlots
	syncRetries int

	cbus  cbusQueue
	wb    wbState
	fetch fetchState
	hdcp  hdcpState
	emsc  emscState
	bist  bistState
}

var registry = struct {
	sync.Mutex
	next    int
	devices map[int]*Device
}{devices: make(map[int]*Device)}

// New returns a Device on the given bus. Nil cfg, sink and timers are
// replaced by defaults.
func New(bus regbus.Bus, cfg *config.Config, sink notify.Sink,
	timers *timer.Service) *Device {
	if cfg == nil {
		cfg = config.New()
	}
	if sink == nil {
		sink = notify.Discard
	}
	if timers == nil {
		timers = timer.New()
	}
	return &Device{
		bus:    bus,
		cfg:    cfg,
		sink:   sink,
		timers: timers,
	}
}

func lookup(id int) *Device {
	registry.Lock()
	defer registry.Unlock()
	return registry.devices[id]
}

// locked wraps a timer callback so that it runs with the device's lock and
// is ignored once the device is gone.
func locked(f func(d *Device)) func(int) {
	return func(id int) {
		d := lookup(id)
		if d == nil {
			return
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			return
		}
		d.err = nil
		f(d)
		d.kick()
		if d.err != nil {
			d.logf(config.Err, "timer: %v", d.err)
		}
	}
}

// Start identifies the chip, powers the transmitter and arms cable
// discovery.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.started {
		return nil
	}
	d.err = nil
	id := d.rdn(RegDevIDL, 2)
	if d.err != nil {
		return d.err
	}
	d.chipID = uint16(id[1])<<8 | uint16(id[0])
	known := false
	for _, x := range ChipIDs {
		known = known || x == d.chipID
	}
	if !known {
		return fmt.Errorf("%w: %#04x", ErrUnknownChip, d.chipID)
	}
	d.rev = d.rd(RegDevRev)

	registry.Lock()
	registry.next++
	d.id = registry.next
	registry.devices[d.id] = d
	registry.Unlock()

	d.abortTimer = d.timers.Create(fmt.Sprint("mhl", d.id, ".abort"),
		locked((*Device).abortExpired), d.id)
	d.settleTimer = d.timers.Create(fmt.Sprint("mhl", d.id, ".settle"),
		locked((*Device).settleExpired), d.id)
	d.bistTimer = d.timers.Create(fmt.Sprint("mhl", d.id, ".bist"),
		locked((*Device).bistExpired), d.id)

	d.wr(RegSysCtrl1, SysCtrl1TxPower)
	d.wr(RegDPD, 0)
	d.hardReset("start")
	if d.err != nil {
		return d.err
	}
	d.started = true
	d.logf(config.Note, "chip %#04x rev %d", d.chipID, d.rev)
	return nil
}

// Close disarms every interrupt and releases the device's timers.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.err = nil
	if d.started {
		d.hardReset("close")
		d.setMask(srcDisc, 0)
		d.abortTimer.Delete()
		d.settleTimer.Delete()
		d.bistTimer.Delete()
		registry.Lock()
		delete(registry.devices, d.id)
		registry.Unlock()
	}
	d.closed = true
	return d.err
}

// op runs f as an exported operation: locked, with a fresh bus error, and
// followed by the post-processing of any work f queued.
func (d *Device) op(f func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !d.started {
		return ErrInvalidMode
	}
	d.err = nil
	err := f()
	d.kick()
	if err == nil {
		err = d.err
	}
	return err
}

func (d *Device) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// PeerDevcap returns the peer's capability registers, if read.
func (d *Device) PeerDevcap() ([DevcapSize]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peerDevcap, d.haveDevcap
}

func (d *Device) PeerXDevcap() ([DevcapSize]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peerXDevcap, d.haveXDevcap
}

// EDID returns a copy of the last complete EDID, nil if none.
func (d *Device) EDID() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.edid == nil {
		return nil
	}
	return append([]byte(nil), d.edid...)
}

type Status struct {
	Mode        Mode
	HPD         bool
	SCDT        bool
	PathEnabled bool
	HDCP        string
	Authorized  bool
	BIST        byte
	Queued      int
	EMSCRx      int
	EMSCTx      int
	EMSCCredit  int
}

func (d *Device) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Status{
		Mode:        d.mode,
		HPD:         d.hpd,
		SCDT:        d.scdt,
		PathEnabled: d.pathEn,
		HDCP:        d.hdcp.engine.String(),
		Authorized:  d.hdcp.unmuted,
		BIST:        d.bist.running,
		Queued:      len(d.cbus.pending),
		EMSCRx:      d.emsc.rxBytes,
		EMSCTx:      d.emsc.txBytes,
		EMSCCredit:  d.emsc.credit,
	}
	if d.cbus.inflight != nil {
		s.Queued++
	}
	return s
}

// SetContentType sets the HDCP 2.x stream type used from the next
// authentication.
func (d *Device) SetContentType(t byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.contentType = t
}

func (d *Device) setMode(m Mode) bool {
	if m == d.mode {
		return true
	}
	if !CanAdvance(d.mode, m) {
		d.logf(config.Err, "illegal mode change %v -> %v", d.mode, m)
		return false
	}
	d.logf(config.Info, "%v -> %v", d.mode, m)
	d.mode = m
	d.emit(notify.ModeChange, uint32(m), nil)
	return true
}

func (d *Device) emit(k notify.Kind, param uint32, payload []byte) {
	d.sink.Notify(notify.Event{Kind: k, Param: param, Payload: payload})
}

var priNames = [...]string{
	config.Err:   "err",
	config.Warn:  "warn",
	config.Note:  "note",
	config.Info:  "info",
	config.Debug: "debug",
}

func (d *Device) logf(pri int, format string, args ...interface{}) {
	if pri > d.cfg.Verbosity() {
		return
	}
	log.Printf(priNames[pri], "mhl%d: %s", d.id, fmt.Sprintf(format, args...))
}

func (d *Device) sleep(t time.Duration) {
	if d.Sleep != nil {
		d.Sleep(t)
	} else {
		time.Sleep(t)
	}
}

func ms(t time.Duration) int { return int(t / time.Millisecond) }

// Register access with a sticky error; once an access fails the rest of
// the operation is skipped and the error returned from HandleIRQ or the
// exported method.

func (d *Device) rd(r reg) byte {
	if d.err != nil {
		return 0
	}
	v, err := regbus.ReadByte(d.bus, r)
	d.err = err
	return v
}

func (d *Device) rdn(r reg, n int) []byte {
	p := make([]byte, n)
	if d.err == nil {
		d.err = d.bus.Read(r, p)
	}
	return p
}

func (d *Device) wr(r reg, v byte) {
	if d.err == nil {
		d.err = regbus.WriteByte(d.bus, r, v)
	}
}

func (d *Device) wrn(r reg, p []byte) {
	if d.err == nil {
		d.err = d.bus.Write(r, p)
	}
}

func (d *Device) modify(r reg, mask, v byte) {
	if d.err == nil {
		d.err = regbus.Modify(d.bus, r, mask, v)
	}
}
