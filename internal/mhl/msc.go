// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"encoding/binary"
	"fmt"

	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/emsc"
	"github.com/platinasystems/mhl/internal/notify"
)

func (d *Device) mscIntr(rec *intrRecord, st byte) int {
	if st&CbusInt0CmdDone != 0 {
		if r := d.cbusDone(false); r != nil {
			d.logf(config.Debug, "done %v", r)
		}
	}
	if st&CbusInt0CmdNack != 0 {
		d.cbusFail(false)
	}
	if st&CbusInt0HPDChg != 0 {
		hpd := d.rd(RegCbusStatus)&CbusStatHPD != 0
		if d.err == nil {
			d.hpdChange(hpd)
		}
	}
	if st&CbusInt0WriteStat != 0 {
		p := d.rdn(RegPeerStat, len(d.peerStat))
		if d.err == nil {
			d.peerStatChange(p)
		}
	}
	if st&CbusInt0MscMsg != 0 {
		p := d.rdn(RegMscMsgRcv, 2)
		if d.err == nil {
			rec.msgs = append(rec.msgs, [2]byte{p[0], p[1]})
		}
	}
	if st&CbusInt0WriteBurst != 0 {
		p := d.rdn(RegMdtRcvFifo, ScratchpadSize)
		if d.err == nil {
			rec.bursts = append(rec.bursts, p)
		}
	}
	if st&CbusInt0SetInt != 0 {
		p := d.rdn(RegPeerInt, 4)
		d.wrn(RegPeerInt, p)
		if d.err == nil {
			d.peerSetInt(p)
		}
	}
	return 0
}

// g2wbIntr receives an MHL3 write burst from the MDT FIFO.
func (d *Device) g2wbIntr(rec *intrRecord, st byte) int {
	p := d.rdn(RegMdtRcvFifo, ScratchpadSize)
	if d.err == nil {
		rec.bursts = append(rec.bursts, p)
	}
	return 0
}

func (d *Device) peerStatChange(p []byte) {
	for i := range d.peerStat {
		was, v := d.peerStat[i], p[i]
		if v == was {
			continue
		}
		d.peerStat[i] = v
		offset := byte(StatConnectedRdy + i)
		d.logf(config.Info, "peer stat %#02x = %#02x", offset, v)
		d.emit(notify.StatusChange, uint32(offset)<<8|uint32(v), nil)
		switch offset {
		case StatConnectedRdy:
			if v&^was&ConnRdyDcapRdy != 0 {
				d.readDevcap()
			}
			if v&^was&ConnRdyXDevcapSupp != 0 && d.mode.Escalated() {
				d.readXDevcap()
			}
		case StatLinkMode:
			d.peerPathEn = v&LinkModePathEn != 0
		}
	}
}

func (d *Device) peerSetInt(p []byte) {
	rchange, dchange := p[0], p[1]
	if rchange&RchangeDcapChg != 0 {
		d.readDevcap()
	}
	if rchange&RchangeReqWrt != 0 {
		d.setInt(RchangeInt, RchangeGrtWrt)
	}
	if rchange&RchangeGrtWrt != 0 {
		d.grantedWrite()
	}
	if rchange&Rchange3DReq != 0 {
		// no 3D formats to offer, so both lists go out empty
		d.sendBurst(&emsc.Descriptors{Burst: emsc.ID3DVIC})
		d.sendBurst(&emsc.Descriptors{Burst: emsc.ID3DDTD})
	}
	if rchange&RchangeFeatReq != 0 {
		for _, b := range supportBursts(emscAccepted) {
			if err := d.sendBurst(b); err != nil {
				d.logf(config.Warn, "feature reply: %v", err)
			}
		}
		d.sendBurst(&emsc.BitsPerPixel{})
		d.setInt(RchangeInt, RchangeFeatComplete)
	}
	if dchange&DchangeEDIDChg != 0 {
		d.logf(config.Info, "edid changed")
		d.edidStart()
	}
}

// EMSC_SUPPORT ids that fit one scratchpad after the list header.
const supportPerBurst = 5

// supportBursts splits an EMSC_SUPPORT list into scratchpad sized parts.
func supportBursts(ids []emsc.ID) (bursts []emsc.Burst) {
	for i := 0; i < len(ids); i += supportPerBurst {
		j := i + supportPerBurst
		if j > len(ids) {
			j = len(ids)
		}
		bursts = append(bursts, &emsc.EMSCSupport{
			Header: emsc.Header{
				TotalEntries: uint8(len(ids)),
				SeqIndex:     uint8(len(bursts) + 1),
			},
			IDs: ids[i:j],
		})
	}
	return
}

func (d *Device) mscMsg(sub, v byte) {
	d.logf(config.Debug, "msg %#02x %#02x", sub, v)
	switch sub {
	case MsgRCP:
		d.emit(notify.RCP, uint32(v), nil)
		if !rcpSupported[v&0x7f] {
			d.sendMsg(MsgRCPE, RCPEIneffective)
		}
		d.sendMsg(MsgRCPK, v)
	case MsgRCPK:
		d.emit(notify.RCPK, uint32(v), nil)
	case MsgRCPE:
		d.emit(notify.RCPE, uint32(v), nil)
	case MsgUCP:
		d.emit(notify.UCP, uint32(v), nil)
		if v >= 0x80 {
			d.sendMsg(MsgUCPE, UCPEIneffective)
		}
		d.sendMsg(MsgUCPK, v)
	case MsgUCPK:
		d.emit(notify.UCPK, uint32(v), nil)
	case MsgUCPE:
		d.emit(notify.UCPE, uint32(v), nil)
	case MsgRAP:
		d.emit(notify.RAP, uint32(v), nil)
		d.sendMsg(MsgRAPK, d.rap(v))
	case MsgRAPK:
		d.emit(notify.RAPK, uint32(v), nil)
	case MsgBISTTrigger:
		if st := d.bistTrigger(v); st != BISTStatusOK {
			d.logf(config.Warn, "bist trigger %#02x: %v", v, st)
		}
	case MsgBISTReqStat:
		d.bistReturnStat()
	case MsgBISTStop:
		d.bistStop()
	case MsgBISTReady:
		d.emit(notify.BISTReady, uint32(v), nil)
	default:
		d.logf(config.Warn, "unknown msg %#02x %#02x", sub, v)
	}
}

// rap acts on a request action protocol message, returning the RAPK code.
func (d *Device) rap(action byte) byte {
	switch action {
	case RAPPoll:
		return RAPKNoError
	case RAPContentOn:
		if d.pathEn {
			d.setTMDS(true)
		}
		return RAPKNoError
	case RAPContentOff:
		d.setTMDS(false)
		return RAPKNoError
	case RAPCbusDown, RAPCbusUp:
		return RAPKUnsupported
	}
	return RAPKUnrecognized
}

// writeBurstRcvd reports a received scratchpad and acts on the burst it
// holds if it's one of the standard ones.
func (d *Device) writeBurstRcvd(p []byte) {
	id := emsc.ID(binary.BigEndian.Uint16(p))
	d.logf(config.Debug, "write burst %v", id)
	d.emit(notify.WriteBurst, uint32(id), p)
	if !id.Known() {
		return
	}
	bursts, err := emsc.Parse(p)
	if err != nil {
		d.logf(config.Warn, "write burst: %v", err)
	}
	if len(bursts) > 0 {
		d.burst(bursts[0])
	}
}

// wbState holds outgoing scratchpad writes waiting on GRT_WRT.
type wbState struct {
	pending   [][]byte
	requested bool
}

func (d *Device) queueWriteBurst(p []byte) error {
	if len(p) > ScratchpadSize {
		return fmt.Errorf("%w: %d byte write burst", ErrTooLong, len(p))
	}
	pad := make([]byte, ScratchpadSize)
	copy(pad, p)
	d.wb.pending = append(d.wb.pending, pad)
	if !d.wb.requested {
		d.wb.requested = true
		d.setInt(RchangeInt, RchangeReqWrt)
	}
	return nil
}

func (d *Device) grantedWrite() {
	d.wb.requested = false
	if len(d.wb.pending) == 0 {
		return
	}
	p := d.wb.pending[0]
	d.wb.pending = d.wb.pending[1:]
	d.queue(&cbusRequest{kind: reqWriteBurst, cmd: MscWriteBurst,
		offset: ScratchpadOffset, data: p})
	d.setInt(RchangeInt, RchangeDscrChg)
	if len(d.wb.pending) > 0 {
		d.wb.requested = true
		d.setInt(RchangeInt, RchangeReqWrt)
	}
}

// sendBurst sends over eMSC when the link has it, otherwise through the
// scratchpad.
func (d *Device) sendBurst(b emsc.Burst) error {
	if d.mode.ECBUS() {
		return d.emsc.tx.Push(b)
	}
	return d.queueWriteBurst(b.Bytes())
}

func (d *Device) connected() error {
	if !d.established {
		return fmt.Errorf("%w: %v", ErrInvalidMode, d.mode)
	}
	return nil
}

func (d *Device) peerFeature(bit byte) error {
	if d.haveDevcap && d.peerDevcap[DevcapFeatureFlag]&bit == 0 {
		return ErrUnsupported
	}
	return nil
}

// SendRCP sends a remote control key code.
func (d *Device) SendRCP(key byte) error {
	return d.op(func() error {
		if err := d.connected(); err != nil {
			return err
		}
		if err := d.peerFeature(FeatureRCP); err != nil {
			return err
		}
		d.sendMsg(MsgRCP, key)
		return nil
	})
}

// SendUCP sends one UTF-8 code unit.
func (d *Device) SendUCP(c byte) error {
	return d.op(func() error {
		if err := d.connected(); err != nil {
			return err
		}
		if err := d.peerFeature(FeatureUCPRecv); err != nil {
			return err
		}
		d.sendMsg(MsgUCP, c)
		return nil
	})
}

func (d *Device) SendRAP(action byte) error {
	return d.op(func() error {
		if err := d.connected(); err != nil {
			return err
		}
		if err := d.peerFeature(FeatureRAP); err != nil {
			return err
		}
		d.sendMsg(MsgRAP, action)
		return nil
	})
}

// SendWriteBurst writes up to a scratchpad of data to the peer.
func (d *Device) SendWriteBurst(p []byte) error {
	return d.op(func() error {
		if err := d.connected(); err != nil {
			return err
		}
		return d.queueWriteBurst(p)
	})
}

// SendBurst sends a structured burst, over eMSC when in eCBUS.
func (d *Device) SendBurst(b emsc.Burst) error {
	return d.op(func() error {
		if err := d.connected(); err != nil {
			return err
		}
		return d.sendBurst(b)
	})
}

// Submit queues a raw MSC command, returning the sequence number that
// CancelRequest takes.
func (d *Device) Submit(cmd, offset byte, data ...byte) (seq uint32, err error) {
	if len(data) > 2 {
		return 0, fmt.Errorf("%w: %d msc data bytes", ErrTooLong, len(data))
	}
	err = d.op(func() error {
		if err := d.connected(); err != nil {
			return err
		}
		seq = d.queueMSC(cmd, offset, data...)
		return nil
	})
	return
}
