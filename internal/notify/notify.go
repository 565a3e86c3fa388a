// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package notify carries link events from the transmitter core to whatever
// presents them: a redis hash, a redis channel, a log, or a test.
package notify

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
)

type Kind uint8

const (
	Connect Kind = iota
	Disconnect
	ModeChange
	StatusChange
	DevcapReady
	XDevcapReady
	EDIDReady
	EDIDError
	RCP
	RCPK
	RCPE
	UCP
	UCPK
	UCPE
	RAP
	RAPK
	WriteBurst
	HDCPAuthenticated
	HDCPFailed
	HDCPReceiverIDs
	BISTReady
	BISTDone
	BISTStatus
	RequestFailed
	EMSCSupport
	VideoChange
	NKinds
)

var kindNames = [...]string{
	Connect:           "connect",
	Disconnect:        "disconnect",
	ModeChange:        "mode",
	StatusChange:      "status",
	DevcapReady:       "devcap",
	XDevcapReady:      "xdevcap",
	EDIDReady:         "edid",
	EDIDError:         "edid.error",
	RCP:               "rcp",
	RCPK:              "rcpk",
	RCPE:              "rcpe",
	UCP:               "ucp",
	UCPK:              "ucpk",
	UCPE:              "ucpe",
	RAP:               "rap",
	RAPK:              "rapk",
	WriteBurst:        "write.burst",
	HDCPAuthenticated: "hdcp.authenticated",
	HDCPFailed:        "hdcp.failed",
	HDCPReceiverIDs:   "hdcp.rcvid",
	BISTReady:         "bist.ready",
	BISTDone:          "bist.done",
	BISTStatus:        "bist.status",
	RequestFailed:     "request.failed",
	EMSCSupport:       "emsc.support",
	VideoChange:       "video",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprint("kind(", uint8(k), ")")
}

// KindByName is the inverse of Kind.String.
func KindByName(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return NKinds, false
}

type Event struct {
	Kind    Kind
	Param   uint32
	Payload []byte
}

// String formats the event as "kind param[ payload-hex]".
func (e Event) String() string { return e.Kind.String() + " " + e.Value() }

// Value is the event's parameter and payload without its kind.
func (e Event) Value() string {
	s := fmt.Sprintf("%#x", e.Param)
	if len(e.Payload) > 0 {
		s += " " + hex.EncodeToString(e.Payload)
	}
	return s
}

// Sink receives events synchronously; it must not call back into the
// device that emitted them.
type Sink interface {
	Notify(Event)
}

// Func adapts a function to a Sink.
type Func func(Event)

func (f Func) Notify(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = Func(func(Event) {})

// Tee copies every event to each sink in order.
type Tee []Sink

func (t Tee) Notify(e Event) {
	for _, s := range t {
		s.Notify(e)
	}
}

// Writer prints one line per event prefixed by Prefix.
type Writer struct {
	mutex  sync.Mutex
	W      io.Writer
	Prefix string
}

func (w *Writer) Notify(e Event) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	fmt.Fprint(w.W, w.Prefix, e, "\n")
}

// Recorder keeps every event; the zero value is ready.
type Recorder struct {
	mutex  sync.Mutex
	events []Event
}

func (r *Recorder) Notify(e Event) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if e.Payload != nil {
		e.Payload = append([]byte(nil), e.Payload...)
	}
	r.events = append(r.events, e)
}

func (r *Recorder) Events() []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Kinds() []Kind {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Last returns the most recent event of kind k.
func (r *Recorder) Last(k Kind) (Event, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == k {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func (r *Recorder) Count(k Kind) (n int) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, e := range r.events {
		if e.Kind == k {
			n++
		}
	}
	return
}

func (r *Recorder) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = r.events[:0]
}

func (r *Recorder) String() string {
	var b strings.Builder
	for _, e := range r.Events() {
		fmt.Fprintln(&b, e)
	}
	return b.String()
}
