// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package config is the transmitter's process-wide set of debug overrides
// and protocol tunables. Everything is read and written by name, as the
// daemon's Hset and the console's set commands do.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrName  = errors.New("unknown config name")
	ErrValue = errors.New("invalid config value")
)

// Verbosity levels.
const (
	Err = iota
	Warn
	Note
	Info
	Debug
)

type HDCPPolicy uint8

const (
	HDCPAuto HDCPPolicy = iota
	HDCP1x
	HDCP2x
	HDCPOff
)

var hdcpNames = []string{"auto", "1x", "2x", "off"}

func (p HDCPPolicy) String() string {
	if int(p) < len(hdcpNames) {
		return hdcpNames[p]
	}
	return "hdcp(" + strconv.Itoa(int(p)) + ")"
}

// GPIO override; GPIONone leaves the line to the chip.
const GPIONone = -1

type Config struct {
	mutex sync.Mutex

	verbosity   int
	forceGPIO   int
	forcePacked bool
	forceLegacy bool
	autoECBUS   bool
	hdcp        HDCPPolicy
	calRetries  int
	calDelay    time.Duration
	irqRetries  int
	edidRetries int
	mscRetries  int
	abortDelay  time.Duration
	settleDelay time.Duration
	tdmSEMSC    int
	tdmDEMSC    int
}

func New() *Config {
	return &Config{
		verbosity:   Warn,
		forceGPIO:   GPIONone,
		autoECBUS:   true,
		hdcp:        HDCPAuto,
		calRetries:  6,
		calDelay:    10 * time.Millisecond,
		irqRetries:  4,
		edidRetries: 3,
		mscRetries:  3,
		abortDelay:  2000 * time.Millisecond,
		settleDelay: 100 * time.Millisecond,
		tdmSEMSC:    4,
		tdmDEMSC:    39,
	}
}

type field struct {
	get func(c *Config) string
	set func(c *Config, s string) error
}

func intField(p func(c *Config) *int, lo, hi int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, s string) error {
			i, err := strconv.Atoi(s)
			if err != nil || i < lo || i > hi {
				return fmt.Errorf("%q: %w [%d, %d]", s, ErrValue, lo, hi)
			}
			*p(c) = i
			return nil
		},
	}
}

func boolField(p func(c *Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, s string) error {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return fmt.Errorf("%q: %w", s, ErrValue)
			}
			*p(c) = b
			return nil
		},
	}
}

func msField(p func(c *Config) *time.Duration, hi int) field {
	return field{
		get: func(c *Config) string {
			return strconv.Itoa(int(*p(c) / time.Millisecond))
		},
		set: func(c *Config, s string) error {
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 || i > hi {
				return fmt.Errorf("%q: %w [0, %d]", s, ErrValue, hi)
			}
			*p(c) = time.Duration(i) * time.Millisecond
			return nil
		},
	}
}

var fields = map[string]field{
	"verbosity": intField(func(c *Config) *int { return &c.verbosity }, Err, Debug),
	"force.gpio": {
		get: func(c *Config) string {
			if c.forceGPIO == GPIONone {
				return "none"
			}
			return strconv.Itoa(c.forceGPIO)
		},
		set: func(c *Config, s string) error {
			switch s {
			case "none", "":
				c.forceGPIO = GPIONone
			case "0", "low":
				c.forceGPIO = 0
			case "1", "high":
				c.forceGPIO = 1
			default:
				return fmt.Errorf("%q: %w {none, 0, 1}", s, ErrValue)
			}
			return nil
		},
	},
	"force.packed_pixel": boolField(func(c *Config) *bool { return &c.forcePacked }),
	"force.legacy":       boolField(func(c *Config) *bool { return &c.forceLegacy }),
	"auto.ecbus":         boolField(func(c *Config) *bool { return &c.autoECBUS }),
	"hdcp": {
		get: func(c *Config) string { return c.hdcp.String() },
		set: func(c *Config, s string) error {
			for i, name := range hdcpNames {
				if strings.EqualFold(s, name) {
					c.hdcp = HDCPPolicy(i)
					return nil
				}
			}
			return fmt.Errorf("%q: %w {%s}", s, ErrValue,
				strings.Join(hdcpNames, ", "))
		},
	},
	"calibration.retries":  intField(func(c *Config) *int { return &c.calRetries }, 1, 100),
	"calibration.delay.ms": msField(func(c *Config) *time.Duration { return &c.calDelay }, 1000),
	"irq.retries":          intField(func(c *Config) *int { return &c.irqRetries }, 1, 32),
	"edid.retries":         intField(func(c *Config) *int { return &c.edidRetries }, 0, 16),
	"msc.retries":          intField(func(c *Config) *int { return &c.mscRetries }, 0, 16),
	"abort.delay.ms":       msField(func(c *Config) *time.Duration { return &c.abortDelay }, 60000),
	"repeater.settle.ms":   msField(func(c *Config) *time.Duration { return &c.settleDelay }, 10000),
	"tdm.s.emsc":           intField(func(c *Config) *int { return &c.tdmSEMSC }, 1, 24),
	"tdm.d.emsc":           intField(func(c *Config) *int { return &c.tdmDEMSC }, 1, 199),
}

// Names returns every settable name, sorted.
func Names() []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Config) Get(name string) (string, error) {
	f, found := fields[name]
	if !found {
		return "", fmt.Errorf("%s: %w", name, ErrName)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return f.get(c), nil
}

// Set validates and stores the named value; an invalid value leaves the
// previous one in place.
func (c *Config) Set(name, value string) error {
	f, found := fields[name]
	if !found {
		return fmt.Errorf("%s: %w", name, ErrName)
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := f.set(c, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Snapshot returns every name and its current value.
func (c *Config) Snapshot() map[string]string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	m := make(map[string]string, len(fields))
	for name, f := range fields {
		m[name] = f.get(c)
	}
	return m
}

func (c *Config) Verbosity() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.verbosity
}

func (c *Config) ForceGPIO() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.forceGPIO
}

func (c *Config) ForcePacked() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.forcePacked
}

func (c *Config) ForceLegacy() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.forceLegacy
}

func (c *Config) AutoECBUS() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.autoECBUS
}

func (c *Config) HDCP() HDCPPolicy {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.hdcp
}

func (c *Config) CalibrationRetries() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.calRetries
}

func (c *Config) CalibrationDelay() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.calDelay
}

func (c *Config) IRQRetries() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.irqRetries
}

func (c *Config) EDIDRetries() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.edidRetries
}

func (c *Config) MSCRetries() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.mscRetries
}

func (c *Config) AbortDelay() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.abortDelay
}

func (c *Config) RepeaterSettle() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.settleDelay
}

func (c *Config) TDMSEMSC() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.tdmSEMSC
}

func (c *Config) TDMDEMSC() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.tdmDEMSC
}
