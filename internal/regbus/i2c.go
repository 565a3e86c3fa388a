// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package regbus

import (
	"sync"

	"github.com/platinasystems/i2c"
)

const blockMax = 32

// DefaultPageAddrs are the 7-bit slave addresses of the transmitter's
// register pages.
var DefaultPageAddrs = [NPages]int{0x39, 0x3d, 0x49, 0x4d, 0x60, 0x64, 0x66, 0x68}

// I2C is a Bus over /dev/i2c-INDEX where each register page is its own slave
// address.
type I2C struct {
	mutex sync.Mutex
	Index int
	Addrs [NPages]int
}

func NewI2C(index int) *I2C {
	return &I2C{Index: index, Addrs: DefaultPageAddrs}
}

// Rebase shifts every page address so that page 0 is at addr.
func (b *I2C) Rebase(addr int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	delta := addr - b.Addrs[0]
	for i := range b.Addrs {
		b.Addrs[i] += delta
	}
}

func (b *I2C) Read(r Reg, p []byte) error {
	return b.do("read", r, p, func(bus *i2c.Bus, off uint8, chunk []byte) error {
		var data i2c.SMBusData
		if len(chunk) == 1 {
			if err := bus.Read(off, i2c.ByteData, &data); err != nil {
				return err
			}
			chunk[0] = data[0]
			return nil
		}
		data[0] = byte(len(chunk))
		if err := bus.Read(off, i2c.I2CBlockData, &data); err != nil {
			return err
		}
		copy(chunk, data[1:1+len(chunk)])
		return nil
	})
}

func (b *I2C) Write(r Reg, p []byte) error {
	return b.do("write", r, p, func(bus *i2c.Bus, off uint8, chunk []byte) error {
		var data i2c.SMBusData
		if len(chunk) == 1 {
			data[0] = chunk[0]
			return bus.Write(off, i2c.ByteData, &data)
		}
		data[0] = byte(len(chunk))
		copy(data[1:], chunk)
		return bus.Write(off, i2c.I2CBlockData, &data)
	})
}

// do splits p into SMBus block sized chunks. FIFO port registers don't
// auto-increment so every chunk of a port access restarts at its offset.
func (b *I2C) do(op string, r Reg, p []byte,
	f func(bus *i2c.Bus, off uint8, chunk []byte) error) error {
	if r.Page() >= NPages {
		return &Error{op, r, ErrPage}
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	err := i2c.Do(b.Index, b.Addrs[r.Page()], func(bus *i2c.Bus) error {
		off := r.Offset()
		for len(p) > 0 {
			n := len(p)
			if n > blockMax {
				n = blockMax
			}
			if err := f(bus, off, p[:n]); err != nil {
				return err
			}
			if !isPort(r) {
				off += uint8(n)
			}
			p = p[n:]
		}
		return nil
	})
	if err != nil {
		return &Error{op, r, err}
	}
	return nil
}

var ports = map[Reg]bool{}

// MarkPort declares r a non-incrementing FIFO port register.
func MarkPort(regs ...Reg) {
	for _, r := range regs {
		ports[r] = true
	}
}

func isPort(r Reg) bool { return ports[r] }
