// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package emsc provides the enhanced MSC block transport: the receive ring
// and the burst messages carried in each block.
//
// Every burst starts with a big-endian 16-bit id. Most carry a checksum
// byte that makes the sum of the burst's bytes zero. Bursts with a list
// of entries follow the id with:
//
//	checksum, total entries, sequence index, entries in this burst
//
// and then the entries.
package emsc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrTruncated = errors.New("truncated burst")
	ErrChecksum  = errors.New("burst checksum")
)

type ID uint16

const (
	ID3DVIC            ID = 0x0010
	ID3DDTD            ID = 0x0011
	IDHEVVIC           ID = 0x0020
	IDHEVDTD           ID = 0x0021
	IDHEVDTDA          ID = 0x0022
	IDHEVDTDB          ID = 0x0023
	IDVCAssign         ID = 0x0038
	IDVCConfirm        ID = 0x0039
	IDAudioDelay       ID = 0x0040
	IDADT              ID = 0x0041
	IDBISTSetup        ID = 0x0051
	IDBISTReturnStat   ID = 0x0052
	IDEMSCSupport      ID = 0x0061
	IDHIDPayload       ID = 0x0062
	IDBlkRcvBufferInfo ID = 0x0063
	IDBitsPerPixelFmt  ID = 0x0064
)

var idNames = map[ID]string{
	ID3DVIC:            "3D_VIC",
	ID3DDTD:            "3D_DTD",
	IDHEVVIC:           "HEV_VIC",
	IDHEVDTD:           "HEV_DTD",
	IDHEVDTDA:          "HEV_DTDA",
	IDHEVDTDB:          "HEV_DTDB",
	IDVCAssign:         "VC_ASSIGN",
	IDVCConfirm:        "VC_CONFIRM",
	IDAudioDelay:       "AUD_DELAY",
	IDADT:              "ADT",
	IDBISTSetup:        "BIST_SETUP",
	IDBISTReturnStat:   "BIST_RETURN_STAT",
	IDEMSCSupport:      "EMSC_SUPPORT",
	IDHIDPayload:       "HID_PAYLOAD",
	IDBlkRcvBufferInfo: "BLK_RCV_BUFFER_INFO",
	IDBitsPerPixelFmt:  "BITS_PER_PIXEL_FMT",
}

func (id ID) String() string {
	if s, found := idNames[id]; found {
		return s
	}
	if id.Vendor() {
		return fmt.Sprintf("vendor(%#04x)", uint16(id))
	}
	return fmt.Sprintf("burst(%#04x)", uint16(id))
}

// Vendor ids have a nonzero, non-0xff high byte.
func (id ID) Vendor() bool {
	hi := uint8(id >> 8)
	return hi != 0 && hi != 0xff
}

// Known reports whether id is one of the standard bursts.
func (id ID) Known() bool {
	_, found := idNames[id]
	return found
}

// Burst is one decoded burst. ConsumedLength is its size on the wire.
type Burst interface {
	ID() ID
	ConsumedLength() int
	Bytes() []byte
}

const (
	fixedLen  = 16
	listHdr   = 6
	vendorHdr = 3
)

// Header is the list preamble following the id.
type Header struct {
	Checksum     uint8
	TotalEntries uint8
	SeqIndex     uint8
	NumEntries   uint8
}

func (h *Header) parse(b []byte) {
	h.Checksum, h.TotalEntries, h.SeqIndex, h.NumEntries = b[2], b[3], b[4], b[5]
}

func (h Header) put(b []byte, id ID, n int) {
	binary.BigEndian.PutUint16(b, uint16(id))
	b[3], b[4], b[5] = h.TotalEntries, h.SeqIndex, uint8(n)
}

// Descriptors is a 3D or high end video VIC/DTD list of 16-bit entries.
type Descriptors struct {
	Burst ID
	Header
	Entries []uint16
}

func (d *Descriptors) ID() ID              { return d.Burst }
func (d *Descriptors) ConsumedLength() int { return listHdr + 2*len(d.Entries) }

func (d *Descriptors) Bytes() []byte {
	b := make([]byte, d.ConsumedLength())
	d.Header.put(b, d.Burst, len(d.Entries))
	for i, e := range d.Entries {
		binary.BigEndian.PutUint16(b[listHdr+2*i:], e)
	}
	return sum(b)
}

// Timing is a fixed high end video detailed timing, part A or B.
type Timing struct {
	Burst    ID
	Checksum uint8
	Data     [fixedLen - 3]byte
}

func (t *Timing) ID() ID              { return t.Burst }
func (t *Timing) ConsumedLength() int { return fixedLen }

func (t *Timing) Bytes() []byte {
	b := make([]byte, fixedLen)
	binary.BigEndian.PutUint16(b, uint16(t.Burst))
	copy(b[3:], t.Data[:])
	return sum(b)
}

type VCEntry struct {
	VC, Feature, Slots uint8
}

// VirtualChannels is a VC_ASSIGN or VC_CONFIRM.
type VirtualChannels struct {
	Burst ID
	Header
	Entries []VCEntry
}

func (v *VirtualChannels) ID() ID              { return v.Burst }
func (v *VirtualChannels) ConsumedLength() int { return listHdr + 3*len(v.Entries) }

func (v *VirtualChannels) Bytes() []byte {
	b := make([]byte, v.ConsumedLength())
	v.Header.put(b, v.Burst, len(v.Entries))
	for i, e := range v.Entries {
		p := b[listHdr+3*i:]
		p[0], p[1], p[2] = e.VC, e.Feature, e.Slots
	}
	return sum(b)
}

type AudioDelay struct {
	Checksum uint8
	// Delay in microseconds, 24 bits.
	Delay uint32
	Data  [fixedLen - 6]byte
}

func (*AudioDelay) ID() ID              { return IDAudioDelay }
func (*AudioDelay) ConsumedLength() int { return fixedLen }

func (a *AudioDelay) Bytes() []byte {
	b := make([]byte, fixedLen)
	binary.BigEndian.PutUint16(b, uint16(IDAudioDelay))
	b[3], b[4], b[5] = uint8(a.Delay>>16), uint8(a.Delay>>8), uint8(a.Delay)
	copy(b[6:], a.Data[:])
	return sum(b)
}

// AudioDescriptor is an ADT burst.
type AudioDescriptor struct {
	Checksum uint8
	Data     [fixedLen - 3]byte
}

func (*AudioDescriptor) ID() ID              { return IDADT }
func (*AudioDescriptor) ConsumedLength() int { return fixedLen }

func (a *AudioDescriptor) Bytes() []byte {
	b := make([]byte, fixedLen)
	binary.BigEndian.PutUint16(b, uint16(IDADT))
	copy(b[3:], a.Data[:])
	return sum(b)
}

type BISTSetup struct {
	Checksum           uint8
	ECBUSDuration      uint8
	ECBUSPattern       uint8
	ECBUSFixedPattern  uint16
	AVLinkDataRate     uint8
	AVLinkPattern      uint8
	AVLinkVideoMode    uint8
	AVLinkDuration     uint8
	AVLinkFixedPattern uint16
	AVLinkRandomizer   uint8
	ImpedanceMode      uint8
}

func (*BISTSetup) ID() ID              { return IDBISTSetup }
func (*BISTSetup) ConsumedLength() int { return fixedLen }

func (s *BISTSetup) parse(b []byte) {
	s.Checksum = b[2]
	s.ECBUSDuration = b[3]
	s.ECBUSPattern = b[4]
	s.ECBUSFixedPattern = binary.BigEndian.Uint16(b[5:])
	s.AVLinkDataRate = b[7]
	s.AVLinkPattern = b[8]
	s.AVLinkVideoMode = b[9]
	s.AVLinkDuration = b[10]
	s.AVLinkFixedPattern = binary.BigEndian.Uint16(b[11:])
	s.AVLinkRandomizer = b[13]
	s.ImpedanceMode = b[14]
}

func (s *BISTSetup) Bytes() []byte {
	b := make([]byte, fixedLen)
	binary.BigEndian.PutUint16(b, uint16(IDBISTSetup))
	b[3] = s.ECBUSDuration
	b[4] = s.ECBUSPattern
	binary.BigEndian.PutUint16(b[5:], s.ECBUSFixedPattern)
	b[7] = s.AVLinkDataRate
	b[8] = s.AVLinkPattern
	b[9] = s.AVLinkVideoMode
	b[10] = s.AVLinkDuration
	binary.BigEndian.PutUint16(b[11:], s.AVLinkFixedPattern)
	b[13] = s.AVLinkRandomizer
	b[14] = s.ImpedanceMode
	return sum(b)
}

type BISTReturnStat struct {
	Checksum     uint8
	ECBUSErrors  uint16
	AVLinkErrors uint16
}

func (*BISTReturnStat) ID() ID              { return IDBISTReturnStat }
func (*BISTReturnStat) ConsumedLength() int { return fixedLen }

func (s *BISTReturnStat) Bytes() []byte {
	b := make([]byte, fixedLen)
	binary.BigEndian.PutUint16(b, uint16(IDBISTReturnStat))
	binary.BigEndian.PutUint16(b[12:], s.ECBUSErrors)
	binary.BigEndian.PutUint16(b[14:], s.AVLinkErrors)
	return sum(b)
}

// EMSCSupport lists the burst ids a device accepts over eMSC.
type EMSCSupport struct {
	Header
	IDs []ID
}

func (*EMSCSupport) ID() ID                { return IDEMSCSupport }
func (e *EMSCSupport) ConsumedLength() int { return listHdr + 2*len(e.IDs) }

func (e *EMSCSupport) Bytes() []byte {
	b := make([]byte, e.ConsumedLength())
	e.Header.put(b, IDEMSCSupport, len(e.IDs))
	for i, id := range e.IDs {
		binary.BigEndian.PutUint16(b[listHdr+2*i:], uint16(id))
	}
	return sum(b)
}

// HIDPayload is an opaque HID report with a one byte length.
type HIDPayload struct {
	Data []byte
}

func (*HIDPayload) ID() ID                { return IDHIDPayload }
func (h *HIDPayload) ConsumedLength() int { return vendorHdr + len(h.Data) }

func (h *HIDPayload) Bytes() []byte {
	return lengthPrefixed(IDHIDPayload, h.Data)
}

// BufferInfo announces the receiver's eMSC buffer size in bytes.
type BufferInfo struct {
	Size uint16
}

func (*BufferInfo) ID() ID              { return IDBlkRcvBufferInfo }
func (*BufferInfo) ConsumedLength() int { return 4 }

func (i *BufferInfo) Bytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b, uint16(IDBlkRcvBufferInfo))
	binary.LittleEndian.PutUint16(b[2:], i.Size)
	return b
}

type PixelFormat struct {
	StreamID, Format uint8
}

type BitsPerPixel struct {
	Header
	Entries []PixelFormat
}

func (*BitsPerPixel) ID() ID                { return IDBitsPerPixelFmt }
func (p *BitsPerPixel) ConsumedLength() int { return listHdr + 2*len(p.Entries) }

func (p *BitsPerPixel) Bytes() []byte {
	b := make([]byte, p.ConsumedLength())
	p.Header.put(b, IDBitsPerPixelFmt, len(p.Entries))
	for i, e := range p.Entries {
		b[listHdr+2*i], b[listHdr+2*i+1] = e.StreamID, e.Format
	}
	return sum(b)
}

// Vendor is a burst in a vendor namespace; a length byte follows the id.
type Vendor struct {
	Burst ID
	Data  []byte
}

func (v *Vendor) ID() ID              { return v.Burst }
func (v *Vendor) ConsumedLength() int { return vendorHdr + len(v.Data) }
func (v *Vendor) Bytes() []byte       { return lengthPrefixed(v.Burst, v.Data) }

// Unknown holds an unrecognized burst and everything after it.
type Unknown struct {
	Burst ID
	Raw   []byte
}

func (u *Unknown) ID() ID              { return u.Burst }
func (u *Unknown) ConsumedLength() int { return len(u.Raw) }
func (u *Unknown) Bytes() []byte       { return append([]byte(nil), u.Raw...) }

func lengthPrefixed(id ID, data []byte) []byte {
	b := make([]byte, vendorHdr+len(data))
	binary.BigEndian.PutUint16(b, uint16(id))
	b[2] = uint8(len(data))
	copy(b[vendorHdr:], data)
	return b
}

// sum sets the checksum byte so that b sums to zero.
func sum(b []byte) []byte {
	b[2] = 0
	var s uint8
	for _, v := range b {
		s += v
	}
	b[2] = -s
	return b
}

func checksumOK(b []byte) bool {
	var s uint8
	for _, v := range b {
		s += v
	}
	return s == 0
}

// length returns the wire size of the burst at the start of p, or -1 if
// p is too short to tell.
func length(id ID, p []byte) int {
	switch id {
	case ID3DVIC, ID3DDTD, IDHEVVIC, IDHEVDTD, IDEMSCSupport,
		IDBitsPerPixelFmt:
		if len(p) < listHdr {
			return -1
		}
		return listHdr + 2*int(p[5])
	case IDVCAssign, IDVCConfirm:
		if len(p) < listHdr {
			return -1
		}
		return listHdr + 3*int(p[5])
	case IDHEVDTDA, IDHEVDTDB, IDAudioDelay, IDADT, IDBISTSetup,
		IDBISTReturnStat:
		return fixedLen
	case IDBlkRcvBufferInfo:
		return 4
	case IDHIDPayload:
		if len(p) < vendorHdr {
			return -1
		}
		return vendorHdr + int(p[2])
	}
	if id.Vendor() {
		if len(p) < vendorHdr {
			return -1
		}
		return vendorHdr + int(p[2])
	}
	return len(p)
}

// Parse decodes the concatenated bursts of a block payload in order. A
// burst with a bad checksum is skipped and reported with ErrChecksum; a
// truncated burst ends the parse with ErrTruncated. An unknown id takes
// the rest of p.
func Parse(p []byte) (bursts []Burst, err error) {
	for len(p) > 0 {
		if len(p) < 2 {
			return bursts, fmt.Errorf("%d trailing byte: %w", len(p),
				ErrTruncated)
		}
		id := ID(binary.BigEndian.Uint16(p))
		n := length(id, p)
		if n < 0 || n > len(p) {
			return bursts, fmt.Errorf("%v: %w", id, ErrTruncated)
		}
		raw := p[:n]
		p = p[n:]
		b := decode(id, raw)
		if hasChecksum(id) && !checksumOK(raw) {
			if err == nil {
				err = fmt.Errorf("%v: %w", id, ErrChecksum)
			}
			continue
		}
		bursts = append(bursts, b)
	}
	return
}

func hasChecksum(id ID) bool {
	switch id {
	case IDBlkRcvBufferInfo, IDHIDPayload:
		return false
	}
	return id.Known()
}

func decode(id ID, raw []byte) Burst {
	switch id {
	case ID3DVIC, ID3DDTD, IDHEVVIC, IDHEVDTD:
		d := &Descriptors{Burst: id}
		d.Header.parse(raw)
		for i := listHdr; i+1 < len(raw); i += 2 {
			d.Entries = append(d.Entries, binary.BigEndian.Uint16(raw[i:]))
		}
		return d
	case IDHEVDTDA, IDHEVDTDB:
		t := &Timing{Burst: id, Checksum: raw[2]}
		copy(t.Data[:], raw[3:])
		return t
	case IDVCAssign, IDVCConfirm:
		v := &VirtualChannels{Burst: id}
		v.Header.parse(raw)
		for i := listHdr; i+2 < len(raw); i += 3 {
			v.Entries = append(v.Entries,
				VCEntry{raw[i], raw[i+1], raw[i+2]})
		}
		return v
	case IDAudioDelay:
		a := &AudioDelay{
			Checksum: raw[2],
			Delay: uint32(raw[3])<<16 | uint32(raw[4])<<8 |
				uint32(raw[5]),
		}
		copy(a.Data[:], raw[6:])
		return a
	case IDADT:
		a := &AudioDescriptor{Checksum: raw[2]}
		copy(a.Data[:], raw[3:])
		return a
	case IDBISTSetup:
		s := new(BISTSetup)
		s.parse(raw)
		return s
	case IDBISTReturnStat:
		return &BISTReturnStat{
			Checksum:     raw[2],
			ECBUSErrors:  binary.BigEndian.Uint16(raw[12:]),
			AVLinkErrors: binary.BigEndian.Uint16(raw[14:]),
		}
	case IDEMSCSupport:
		e := new(EMSCSupport)
		e.Header.parse(raw)
		for i := listHdr; i+1 < len(raw); i += 2 {
			e.IDs = append(e.IDs, ID(binary.BigEndian.Uint16(raw[i:])))
		}
		return e
	case IDHIDPayload:
		return &HIDPayload{Data: append([]byte(nil), raw[vendorHdr:]...)}
	case IDBlkRcvBufferInfo:
		return &BufferInfo{Size: binary.LittleEndian.Uint16(raw[2:])}
	case IDBitsPerPixelFmt:
		p := new(BitsPerPixel)
		p.Header.parse(raw)
		for i := listHdr; i+1 < len(raw); i += 2 {
			p.Entries = append(p.Entries, PixelFormat{raw[i], raw[i+1]})
		}
		return p
	}
	if id.Vendor() {
		return &Vendor{Burst: id, Data: append([]byte(nil), raw[vendorHdr:]...)}
	}
	return &Unknown{Burst: id, Raw: append([]byte(nil), raw...)}
}
