// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package regbus provides paged byte and block access to the registers of a
// companion chip.
package regbus

import (
	"errors"
	"fmt"
)

// Number of register pages addressable through a Reg.
const NPages = 8

var ErrPage = errors.New("invalid register page")

// Reg encodes a register as page<<8 | offset.
type Reg uint16

func (r Reg) Page() int     { return int(r >> 8) }
func (r Reg) Offset() uint8 { return uint8(r) }

// Add returns the register n bytes after r in the same page.
func (r Reg) Add(n int) Reg { return r&0xff00 | Reg(uint8(int(r.Offset())+n)) }

func (r Reg) String() string { return fmt.Sprintf("%d:%#02x", r.Page(), r.Offset()) }

// Bus is a synchronous register bus. A block access of len(p) bytes starts
// at the given register; whether the chip auto-increments is its business.
type Bus interface {
	Read(r Reg, p []byte) error
	Write(r Reg, p []byte) error
}

// Error records the failed bus operation and register.
type Error struct {
	Op  string
	Reg Reg
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprint(e.Op, " ", e.Reg, ": ", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func ReadByte(b Bus, r Reg) (byte, error) {
	var v [1]byte
	err := b.Read(r, v[:])
	return v[0], err
}

func WriteByte(b Bus, r Reg, v byte) error {
	return b.Write(r, []byte{v})
}

// Modify does a read-modify-write of the bits in mask.
func Modify(b Bus, r Reg, mask, v byte) error {
	old, err := ReadByte(b, r)
	if err != nil {
		return err
	}
	return WriteByte(b, r, old&^mask|v&mask)
}

func SetBits(b Bus, r Reg, bits byte) error   { return Modify(b, r, bits, bits) }
func ClearBits(b Bus, r Reg, bits byte) error { return Modify(b, r, bits, 0) }

// Seq is a list of byte writes applied in order; the first failure stops
// the sequence.
type Seq []struct {
	Reg Reg
	Val byte
}

func (s Seq) Write(b Bus) error {
	for _, w := range s {
		if err := WriteByte(b, w.Reg, w.Val); err != nil {
			return err
		}
	}
	return nil
}
