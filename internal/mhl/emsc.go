// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/emsc"
	"github.com/platinasystems/mhl/internal/notify"
)

// What we announce in BLK_RCV_BUFFER_INFO: the ring less its gap slot.
const emscBufferSize = (emsc.Slots - 1) * emsc.SlotSize

// Burst ids accepted over eMSC.
var emscAccepted = []emsc.ID{
	emsc.IDBlkRcvBufferInfo,
	emsc.IDBISTSetup,
	emsc.IDBISTReturnStat,
	emsc.IDEMSCSupport,
	emsc.IDHIDPayload,
	emsc.IDVCAssign,
	emsc.IDBitsPerPixelFmt,
}

type emscState struct {
	ring emsc.Ring
	tx   emsc.TxQueue

	rxBytes int
	txBytes int
	// bytes the peer may still take from us
	credit int
	// bytes we've unloaded and not yet acknowledged to the peer
	unloadAck int
	peerIDs   []emsc.ID
}

func (d *Device) emscReset() {
	d.emsc.ring.Reset()
	d.emsc.tx.Reset()
	d.emsc.rxBytes = 0
	d.emsc.txBytes = 0
	d.emsc.credit = 0
	d.emsc.unloadAck = 0
	d.emsc.peerIDs = nil
}

// emscIntr moves a received message from the chip into the ring. With the
// ring full the interrupt is left pending and the chip holds the message
// until the consumer frees a slot.
func (d *Device) emscIntr(rec *intrRecord, st byte) int {
	c := d.rdn(RegEmscRxCount, 2)
	if d.err != nil {
		return 0
	}
	n := int(c[0]) | int(c[1])<<8
	switch {
	case n == 0:
		return 0
	case n > emsc.SlotSize:
		d.logf(config.Warn, "emsc: dropped %d byte message", n)
		d.rdn(RegEmscRxFifo, n)
		return 0
	case d.emsc.ring.Full():
		d.logf(config.Info, "emsc: ring full, holding %d bytes", n)
		rec.flags |= recEmscRx
		return EmscIntrRxReady
	}
	p := d.rdn(RegEmscRxFifo, n)
	if d.err != nil {
		return 0
	}
	if err := d.emsc.ring.Put(p); err != nil {
		d.logf(config.Warn, "emsc: %v", err)
		return 0
	}
	d.emsc.rxBytes += n
	rec.flags |= recEmscRx
	return 0
}

// emscConsume dispatches every held message, freeing the ring.
func (d *Device) emscConsume() {
	d.emsc.ring.Drain(func(msg []byte) {
		blocks, err := emsc.Blocks(msg)
		if err != nil {
			d.logf(config.Warn, "emsc: %v", err)
		}
		for _, blk := range blocks {
			d.emsc.credit += int(blk.Ack)
			d.emsc.unloadAck += emsc.BlockHdr + len(blk.Payload)
			bursts, err := emsc.Parse(blk.Payload)
			if err != nil {
				d.logf(config.Warn, "emsc: %v", err)
			}
			for _, b := range bursts {
				d.burst(b)
			}
		}
	})
}

// emscFlush sends queued bursts as far as the peer's credit allows.
func (d *Device) emscFlush() {
	if !d.mode.ECBUS() || d.err != nil {
		return
	}
	for d.emsc.tx.Len() > 0 {
		ack := d.emsc.unloadAck
		if ack > 0xff {
			ack = 0xff
		}
		blk, ok := d.emsc.tx.Pack(uint8(ack), d.emsc.credit)
		if !ok {
			d.logf(config.Debug, "emsc: %d queued, credit %d",
				d.emsc.tx.Len(), d.emsc.credit)
			return
		}
		p := blk.Bytes()
		d.wrn(RegEmscTxFifo, p)
		d.wr(RegEmscTxStart, 1)
		if d.err != nil {
			return
		}
		d.emsc.unloadAck -= ack
		d.emsc.credit -= len(p)
		d.emsc.txBytes += len(p)
	}
}

// burst acts on one received burst, from eMSC or a scratchpad.
func (d *Device) burst(b emsc.Burst) {
	switch b := b.(type) {
	case *emsc.BufferInfo:
		d.logf(config.Info, "emsc: peer buffer %d", b.Size)
		d.emsc.credit = int(b.Size)
	case *emsc.BISTSetup:
		d.bistSetupBurst(b)
	case *emsc.BISTReturnStat:
		d.emit(notify.BISTStatus,
			uint32(b.ECBUSErrors)<<16|uint32(b.AVLinkErrors), b.Bytes())
	case *emsc.EMSCSupport:
		d.emsc.peerIDs = b.IDs
		d.emit(notify.EMSCSupport, uint32(len(b.IDs)), b.Bytes())
	case *emsc.VirtualChannels:
		if b.ID() != emsc.IDVCAssign {
			d.logf(config.Info, "%v %v", b.ID(), b.Entries)
			break
		}
		d.sendBurst(&emsc.VirtualChannels{
			Burst: emsc.IDVCConfirm,
			Header: emsc.Header{
				TotalEntries: b.TotalEntries,
				SeqIndex:     b.SeqIndex,
			},
			Entries: b.Entries,
		})
	case *emsc.Unknown:
		d.logf(config.Err, "unknown burst %v, %d bytes", b.ID(),
			b.ConsumedLength())
	case *emsc.Vendor:
		d.logf(config.Info, "vendor burst %v % x", b.ID(), b.Data)
	default:
		d.logf(config.Debug, "burst %v", b.ID())
	}
}
