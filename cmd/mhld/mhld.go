// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mhld is the MHL transmitter daemon. It finds the chip through the
// device tree, services its interrupt line, publishes link status and events
// to redis and takes configuration and commands through redis hset.
package mhld

import (
	"errors"
	"fmt"
	"net/rpc"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/mattn/go-isatty"
	"github.com/platinasystems/atsock"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/mhl/internal/board"
	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/lang"
	"github.com/platinasystems/mhl/internal/mhl"
	"github.com/platinasystems/mhl/internal/notify"
	"github.com/platinasystems/mhl/internal/regbus"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
	"github.com/satori/go.uuid"
)

const Name = "mhld"

// Prefix of every field mhld publishes or accepts.
const Prefix = "mhl"

// Channel carries one PUBLISH per event.
const Channel = "mhl.events"

const defaultPoll = 10 * time.Millisecond

type Command struct {
	Info
	Init func()
	init sync.Once
}

type Info struct {
	mutex   sync.Mutex
	rpc     *atsock.RpcServer
	pub     *notify.Publisher
	events  *notify.Channel
	stop    chan struct{}
	once    sync.Once
	closed  sync.Once
	cfg     *config.Config
	dev     device
	line    *gpioLine
	reset   *gpioLine
	forced  int
	session string
	last    map[string]string
	limit   *log.RateLimited
}

// device is the part of *mhl.Device the daemon drives.
type device interface {
	Start() error
	Close() error
	HandleIRQ() error
	Status() mhl.Status
	RequestECBUS(mhl.Speed, mhl.TDMSlots) error
	SendRCP(byte) error
	SendUCP(byte) error
	SendRAP(byte) error
	SetContentType(byte)
	BISTTrigger(byte) mhl.BISTStatus
	BISTStop() error
	CancelRequest(uint32) bool
}

func (*Command) String() string { return Name }

func (*Command) Usage() string {
	return Name + " [-no-redis] [-foreground] [-dtb FILE] [-bus N] [-addr ADDR]" +
		" [-int PIN] [-gpio PIN] [-poll MS]"
}

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "mhl transmitter daemon",
	}
}

func (c *Command) Main(args ...string) error {
	if c.Init != nil {
		c.init.Do(c.Init)
	}

	flag, args := flags.New(args, "-no-redis", "-foreground")
	parm, args := parms.New(args, "-dtb", "-bus", "-addr", "-int", "-gpio",
		"-poll")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}

	poll := defaultPoll
	if s := parm.ByName["-poll"]; len(s) > 0 {
		ms, err := strconv.Atoi(s)
		if err != nil || ms <= 0 {
			return fmt.Errorf("-poll %s: invalid", s)
		}
		poll = time.Duration(ms) * time.Millisecond
	}

	bd, err := findBoard(parm.ByName)
	if err != nil {
		return err
	}
	if bd.Bus < 0 {
		return errors.New("no i2c bus, use -bus")
	}

	c.stopping()
	c.last = make(map[string]string)
	c.forced = config.GPIONone
	c.cfg = config.New()
	c.session = uuid.NewV4().String()
	c.limit = log.NewRateLimited(10, time.Minute)
	defer c.limit.Close()

	if bd.HasIntPin {
		c.line = &gpioLine{pin: bd.IntPin}
	}
	if bd.HasResetPin {
		c.reset = &gpioLine{pin: bd.ResetPin}
		if err = c.reset.pin.SetDirection(); err != nil {
			log.Print("warn", "reset pin: ", err)
		}
	}

	var sinks notify.Tee
	if !flag.ByName["-no-redis"] {
		if err = redis.IsReady(); err != nil {
			return err
		}
		if c.pub, err = notify.NewPublisher(Prefix); err != nil {
			return err
		}
		defer c.pub.Close()
		sinks = append(sinks, c.pub)
		if c.events, err = notify.NewChannel(Channel); err != nil {
			return err
		}
		defer c.events.Close()
		sinks = append(sinks, c.events)
	}
	if flag.ByName["-foreground"] && isatty.IsTerminal(os.Stdout.Fd()) {
		sinks = append(sinks, &notify.Writer{W: os.Stdout, Prefix: Prefix + ": "})
	}

	bus := regbus.NewI2C(bd.Bus)
	bus.Rebase(bd.Addr)
	d := mhl.New(bus, c.cfg, sinks, nil)
	if c.line != nil {
		d.Line = c.line.asserted
	}
	c.dev = d

	if err = c.start(poll); err != nil {
		return err
	}
	defer c.dev.Close()
	log.Print("daemon", "info", "session ", c.session, " ", bd)
	c.publish("session", c.session)

	if !flag.ByName["-no-redis"] {
		if c.rpc, err = atsock.NewRpcServer(Name); err != nil {
			return err
		}
		defer c.rpc.Close()
		rpc.Register(&c.Info)
		err = redis.Assign(redis.DefaultHash+":"+Prefix+".", Name, "Info")
		if err != nil {
			return err
		}
	}

	return c.loop(poll)
}

func (c *Command) Close() error {
	c.closed.Do(func() { close(c.stopping()) })
	return nil
}

// stopping returns the channel closed by Close, which may run first.
func (i *Info) stopping() chan struct{} {
	i.once.Do(func() { i.stop = make(chan struct{}) })
	return i.stop
}

// findBoard takes the transmitter's location from the device tree with any
// command line parameter overriding it.
func findBoard(parm parms.ByName) (*board.Board, error) {
	fn := parm["-dtb"]
	explicit := len(fn) > 0
	if !explicit {
		fn = board.File
	}
	bd, err := board.Load(fn)
	if err != nil {
		if explicit {
			return nil, err
		}
		bd = &board.Board{Bus: -1, Addr: regbus.DefaultPageAddrs[0]}
	}
	if s := parm["-bus"]; len(s) > 0 {
		if bd.Bus, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("-bus %s: %v", s, err)
		}
	}
	if s := parm["-addr"]; len(s) > 0 {
		a, err := strconv.ParseUint(s, 0, 7)
		if err != nil {
			return nil, fmt.Errorf("-addr %s: %v", s, err)
		}
		bd.Addr = int(a)
	}
	if s := parm["-int"]; len(s) > 0 {
		if bd.IntPin, bd.HasIntPin = findPin(s); !bd.HasIntPin {
			return nil, fmt.Errorf("-int %s: not found", s)
		}
	}
	if s := parm["-gpio"]; len(s) > 0 {
		if bd.ResetPin, bd.HasResetPin = findPin(s); !bd.HasResetPin {
			return nil, fmt.Errorf("-gpio %s: not found", s)
		}
	}
	return bd, nil
}

// start retries until the chip answers.
func (c *Command) start(poll time.Duration) error {
	b := &backoff.Backoff{
		Min:    poll,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: false,
	}
	for {
		err := c.dev.Start()
		if err == nil {
			return nil
		}
		if errors.Is(err, mhl.ErrUnknownChip) {
			return err
		}
		c.limit.Print("warn", "start: ", err)
		select {
		case <-c.stop:
			return mhl.ErrClosed
		case <-time.After(b.Duration()):
		}
	}
}

func (c *Command) loop(poll time.Duration) error {
	b := &backoff.Backoff{
		Min:    poll,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: false,
	}
	t := time.NewTimer(poll)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return nil
		case <-t.C:
		}
		next := poll
		if err := c.update(); err != nil {
			c.limit.Print("err", "update: ", err)
			next = b.Duration()
		} else {
			b.Reset()
		}
		t.Reset(next)
	}
}

// update services the interrupt line then publishes what changed.
func (c *Command) update() error {
	c.Info.mutex.Lock()
	defer c.Info.mutex.Unlock()

	c.force()
	if c.line == nil || c.line.asserted() {
		if err := c.dev.HandleIRQ(); err != nil {
			return err
		}
	}
	for _, kv := range statusFields(c.dev.Status()) {
		if v, found := c.last[kv[0]]; !found || v != kv[1] {
			c.publish(kv[0], kv[1])
			c.last[kv[0]] = kv[1]
		}
	}
	return nil
}

// force drives the reset pin to the configured level, releasing it when
// the override is cleared.
func (i *Info) force() {
	v := i.cfg.ForceGPIO()
	if v == i.forced || i.reset == nil {
		return
	}
	level := v != 0
	if v == config.GPIONone {
		level = true
	}
	if err := i.reset.pin.SetValue(level); err != nil {
		i.limit.Print("warn", "force.gpio: ", err)
		return
	}
	i.forced = v
}

func statusFields(s mhl.Status) [][2]string {
	return [][2]string{
		{"mode", s.Mode.String()},
		{"hpd", strconv.FormatBool(s.HPD)},
		{"scdt", strconv.FormatBool(s.SCDT)},
		{"path", strconv.FormatBool(s.PathEnabled)},
		{"hdcp", s.HDCP},
		{"hdcp.authorized", strconv.FormatBool(s.Authorized)},
		{"bist", fmt.Sprintf("%#x", s.BIST)},
		{"cbus.queued", strconv.Itoa(s.Queued)},
		{"emsc.rx", strconv.Itoa(s.EMSCRx)},
		{"emsc.tx", strconv.Itoa(s.EMSCTx)},
		{"emsc.credit", strconv.Itoa(s.EMSCCredit)},
	}
}
