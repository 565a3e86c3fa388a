// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhl

import (
	"fmt"

	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/notify"
)

type reqKind uint8

const (
	reqMSC reqKind = iota
	reqWriteBurst
	reqReadDevcap
	reqReadXDevcap
	reqReadEDID
)

var reqKindNames = [...]string{
	reqMSC:         "msc",
	reqWriteBurst:  "write-burst",
	reqReadDevcap:  "read-devcap",
	reqReadXDevcap: "read-xdevcap",
	reqReadEDID:    "read-edid",
}

func (k reqKind) String() string { return reqKindNames[k] }

// fetch reports whether completion comes through the fetch FIFO rather
// than the MSC command done interrupt.
func (k reqKind) fetch() bool { return k >= reqReadDevcap }

type cbusRequest struct {
	kind    reqKind
	cmd     byte
	offset  byte
	data    []byte
	retries int
	seq     uint32
	cancel  bool
}

func (r *cbusRequest) String() string {
	return fmt.Sprintf("%v[%d] %#02x %#02x % x", r.kind, r.seq, r.cmd,
		r.offset, r.data)
}

// cbusQueue serializes requests to the peer; at most one is in flight.
type cbusQueue struct {
	pending   []*cbusRequest
	inflight  *cbusRequest
	seq       uint32
	abortWait bool
}

func (d *Device) queue(r *cbusRequest) uint32 {
	d.cbus.seq++
	r.seq = d.cbus.seq
	d.cbus.pending = append(d.cbus.pending, r)
	return r.seq
}

func (d *Device) queueFront(r *cbusRequest) {
	if r.seq == 0 {
		d.cbus.seq++
		r.seq = d.cbus.seq
	}
	d.cbus.pending = append([]*cbusRequest{r}, d.cbus.pending...)
}

func (d *Device) queueMSC(cmd, offset byte, data ...byte) uint32 {
	return d.queue(&cbusRequest{
		kind:   reqMSC,
		cmd:    cmd,
		offset: offset,
		data:   data,
	})
}

func (d *Device) writeStat(offset, v byte) { d.queueMSC(MscWriteStat, offset, v) }

func (d *Device) setInt(offset, bits byte) { d.queueMSC(MscWriteStat, offset, bits) }

func (d *Device) sendMsg(sub, v byte) uint32 { return d.queueMSC(MscMsg, sub, v) }

// queued reports whether a request of kind is pending or in flight.
func (d *Device) queued(kind reqKind) bool {
	if r := d.cbus.inflight; r != nil && r.kind == kind && !r.cancel {
		return true
	}
	for _, r := range d.cbus.pending {
		if r.kind == kind && !r.cancel {
			return true
		}
	}
	return false
}

// dequeue cancels every pending request of kind.
func (d *Device) dequeue(kind reqKind) {
	for _, r := range d.cbus.pending {
		if r.kind == kind {
			r.cancel = true
		}
	}
}

// CancelRequest marks a queued request so that it's dropped instead of
// sent, or its outcome ignored if already in flight. It returns false if
// the request has already finished.
func (d *Device) CancelRequest(seq uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r := d.cbus.inflight; r != nil && r.seq == seq {
		r.cancel = true
		return true
	}
	for _, r := range d.cbus.pending {
		if r.seq == seq {
			r.cancel = true
			return true
		}
	}
	return false
}

// cbusKick issues the next request unless one is in flight or an abort
// holdoff is running.
func (d *Device) cbusKick() {
	q := &d.cbus
	if q.inflight != nil || q.abortWait || !d.mode.Connected() ||
		d.err != nil {
		return
	}
	for len(q.pending) > 0 {
		r := q.pending[0]
		q.pending = q.pending[1:]
		if r.cancel {
			d.logf(config.Debug, "drop %v", r)
			continue
		}
		q.inflight = r
		d.issue(r)
		if d.err != nil {
			q.inflight = nil
			q.pending = append([]*cbusRequest{r}, q.pending...)
		}
		return
	}
}

func (d *Device) issue(r *cbusRequest) {
	d.logf(config.Debug, "issue %v", r)
	switch r.kind {
	case reqMSC:
		d.wr(RegMscCmd, r.cmd)
		d.wr(RegMscOffset, r.offset)
		if len(r.data) > 0 {
			d.wrn(RegMscData, r.data)
		}
	case reqWriteBurst:
		d.wr(RegMscCmd, MscWriteBurst)
		d.wr(RegMscOffset, ScratchpadOffset)
		d.wrn(RegMscWbFifo, r.data)
	case reqReadDevcap:
		d.wr(RegEdidCtl, EdidCtlViewDevcap|EdidCtlFetchEn)
		d.wr(RegMscCmd, MscReadDevcap)
		d.wr(RegMscOffset, 0)
	case reqReadXDevcap:
		d.wr(RegEdidCtl, EdidCtlViewXDev|EdidCtlFetchEn)
		d.wr(RegMscCmd, MscReadXDevcap)
		d.wr(RegMscOffset, XDevcapBase)
	case reqReadEDID:
		d.wr(RegEdidCtl, edidView(int(r.offset))|EdidCtlFetchEn)
		d.wr(RegEdidBlock, r.offset)
		d.wr(RegEdidStart, 1)
		return
	}
	d.wr(RegMscStart, MscStartGo)
}

// cbusDone retires the in-flight request if it's of the given sort.
func (d *Device) cbusDone(fetch bool) *cbusRequest {
	r := d.cbus.inflight
	if r == nil || r.kind.fetch() != fetch {
		return nil
	}
	d.cbus.inflight = nil
	if r.cancel {
		d.logf(config.Debug, "canceled %v done", r)
		return nil
	}
	return r
}

// cbusFail retries the in-flight request, after the abort holdoff if the
// command was aborted, until it runs out of retries.
func (d *Device) cbusFail(abort bool) {
	r := d.cbus.inflight
	if r == nil {
		if abort {
			d.abortHoldoff()
		}
		return
	}
	d.cbus.inflight = nil
	if abort {
		d.abortHoldoff()
	}
	if r.cancel {
		return
	}
	r.retries++
	if r.retries > d.cfg.MSCRetries() {
		d.logf(config.Warn, "%v failed after %d tries", r, r.retries)
		d.emit(notify.RequestFailed, r.seq,
			[]byte{byte(r.kind), r.cmd, r.offset})
		if r.kind == reqReadEDID {
			d.edidGiveUp()
		}
		return
	}
	d.logf(config.Info, "retry %d %v", r.retries, r)
	d.queueFront(r)
}

func (d *Device) abortHoldoff() {
	d.cbus.abortWait = true
	d.abortTimer.Start(ms(d.cfg.AbortDelay()))
}

func (d *Device) abortExpired() {
	if !d.cbus.abortWait {
		return
	}
	d.logf(config.Debug, "abort holdoff done")
	d.cbus.abortWait = false
}

// cbusFlush drops every request without notice.
func (d *Device) cbusFlush() {
	d.cbus.pending = nil
	d.cbus.inflight = nil
	d.cbus.abortWait = false
	d.abortTimer.Stop()
}

func (d *Device) merrIntr(rec *intrRecord, st byte) int {
	if st&CbusInt1DDCAbort != 0 {
		if r := d.cbus.inflight; r != nil && r.kind == reqReadEDID {
			d.cbus.inflight = nil
			if !r.cancel {
				d.edidRetry("ddc abort")
			}
		}
	}
	if st&CbusInt1CmdAbort != 0 {
		d.logf(config.Info, "abort, msc err %#02x", d.rd(RegMscErr))
		d.cbusFail(true)
	} else if st&CbusInt1PeerAbort != 0 {
		d.logf(config.Info, "peer abort")
		d.abortHoldoff()
	}
	return 0
}
