// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package board finds the MHL transmitter in the machine's flattened device
// tree: the i2c bus and address it answers on and the gpio pins wired to its
// interrupt and reset lines.
package board

import (
	"errors"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/gpio"
)

const Compatible = "sil,sii8620"

// Names given to the transmitter's pins in gpio.Pins.
const (
	IntPinName   = "MHL_INT_L"
	ResetPinName = "MHL_RST_L"
)

var File = "/boot/linux.dtb"

var ErrNotFound = errors.New("no " + Compatible + " in device tree")

type Board struct {
	// Bus is the i2c adapter index, -1 if the tree doesn't alias it.
	Bus  int
	Addr int

	IntPin      gpio.Pin
	HasIntPin   bool
	ResetPin    gpio.Pin
	HasResetPin bool
}

func (b *Board) String() string {
	s := fmt.Sprintf("i2c-%d@%#x", b.Bus, b.Addr)
	if b.HasIntPin {
		s += fmt.Sprint(" int ", b.IntPin.Index())
	}
	if b.HasResetPin {
		s += fmt.Sprint(" reset ", b.ResetPin.Index())
	}
	return s
}

// Load parses the named device tree blob.
func Load(fn string) (*Board, error) {
	b, err := ioutil.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	bd, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", fn, err)
	}
	return bd, nil
}

type gather struct {
	t        *fdt.Tree
	buses    map[string]int
	phandles map[uint32]string
	board    *Board
}

// Parse rebuilds gpio.Aliases and gpio.Pins from the blob, adds the
// transmitter's pins to them, and returns where the transmitter is.
func Parse(b []byte) (*Board, error) {
	gpio.Aliases = make(gpio.GpioAliasMap)
	gpio.Pins = make(gpio.PinMap)

	g := &gather{
		t:        &fdt.Tree{Debug: false, IsLittleEndian: false},
		buses:    make(map[string]int),
		phandles: make(map[uint32]string),
	}
	if err := g.t.Parse(b); err != nil {
		return nil, err
	}
	if g.t.RootNode == nil {
		return nil, ErrNotFound
	}
	g.t.MatchNode("aliases", g.aliases)
	g.t.EachProperty("gpio-controller", "", g.pins)
	g.walk(g.t.RootNode, nil)
	if g.board == nil {
		return nil, ErrNotFound
	}
	return g.board, nil
}

// aliases maps gpio banks and i2c adapters to their node names.
func (g *gather) aliases(n *fdt.Node) {
	for p, pn := range n.Properties {
		val := strings.Split(string(pn), "\x00")
		v := strings.Split(val[0], "/")
		name := v[len(v)-1]
		switch {
		case strings.Contains(p, "gpio"):
			gpio.Aliases[p] = name
		case strings.HasPrefix(p, "i2c"):
			if i, err := strconv.Atoi(p[len("i2c"):]); err == nil {
				g.buses[name] = i
			}
		}
	}
}

// pins builds the map of named pins for this gpio controller and notes its
// phandle for the transmitter's references.
func (g *gather) pins(n *fdt.Node, name string, value string) {
	var pn []string
	var mode string

	for na, al := range gpio.Aliases {
		if al != n.Name {
			continue
		}
		for _, prop := range []string{"phandle", "linux,phandle"} {
			if v, found := n.Properties[prop]; found && len(v) >= 4 {
				g.phandles[g.t.PropUint32(v)] = na
			}
		}
		for _, c := range n.Children {
			for p := range c.Properties {
				switch p {
				case "gpio-pin-desc":
					pn = strings.Split(c.Name, "@")
				case "output-high", "output-low", "input":
					mode = p
				}
			}
			if mode != "" && len(pn) == 2 {
				i, _ := strconv.Atoi(pn[1])
				gpio.Pins[pn[0]] = gpio.GpioPinMode[mode] |
					gpio.GpioBankToBase[na] |
					gpio.Pin(i)
			}
			mode = ""
			pn = nil
		}
	}
}

func (g *gather) walk(n, parent *fdt.Node) {
	if g.board != nil {
		return
	}
	if g.isTransmitter(n) {
		g.transmitter(n, parent)
		return
	}
	for _, c := range n.Children {
		g.walk(c, n)
	}
}

func (g *gather) isTransmitter(n *fdt.Node) bool {
	v, found := n.Properties["compatible"]
	if !found {
		return false
	}
	if st, found := n.Properties["status"]; found &&
		g.t.PropString(st) == "disabled" {
		return false
	}
	for _, s := range g.t.PropStringSlice(v) {
		if s == Compatible {
			return true
		}
	}
	return false
}

func (g *gather) transmitter(n, parent *fdt.Node) {
	bd := &Board{Bus: -1}
	if v, found := n.Properties["reg"]; found && len(v) >= 4 {
		bd.Addr = int(g.t.PropUint32(v))
	} else if at := strings.Split(n.Name, "@"); len(at) == 2 {
		if a, err := strconv.ParseUint(at[1], 16, 8); err == nil {
			bd.Addr = int(a)
		}
	}
	if parent != nil {
		if i, found := g.buses[parent.Name]; found {
			bd.Bus = i
		}
	}
	bd.IntPin, bd.HasIntPin = g.ref(n, "int-gpios", gpio.IsInput)
	if bd.HasIntPin {
		gpio.Pins[IntPinName] = bd.IntPin
	}
	bd.ResetPin, bd.HasResetPin = g.ref(n, "reset-gpios", gpio.IsOutputHi)
	if bd.HasResetPin {
		gpio.Pins[ResetPinName] = bd.ResetPin
	}
	g.board = bd
}

// ref resolves a <&bank index flags> property to a pin.
func (g *gather) ref(n *fdt.Node, prop string, mode gpio.Pin) (gpio.Pin, bool) {
	v, found := n.Properties[prop]
	if !found || len(v) < 8 {
		return 0, false
	}
	cells := g.t.PropUint32Slice(v)
	bank, found := g.phandles[cells[0]]
	if !found {
		return 0, false
	}
	return mode | gpio.GpioBankToBase[bank] | gpio.Pin(cells[1]), true
}
