// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package timer

import (
	"testing"
	"time"
)

func TestStartFires(t *testing.T) {
	clk := NewManual()
	s := New(clk)
	var got []int
	h := s.Create("abort", func(p int) { got = append(got, p) }, 7)
	h.Start(100)
	clk.AdvanceMs(99)
	if len(got) != 0 {
		t.Fatal("early:", got)
	}
	clk.AdvanceMs(1)
	if len(got) != 1 || got[0] != 7 {
		t.Fatal("wrong:", got)
	}
	if h.Pending() {
		t.Error("still pending")
	}
	clk.AdvanceMs(1000)
	if len(got) != 1 {
		t.Error("fired twice:", got)
	}
}

func TestRestart(t *testing.T) {
	clk := NewManual()
	s := New(clk)
	n := 0
	h := s.Create("settle", func(int) { n++ }, 0)
	h.Start(50)
	clk.AdvanceMs(40)
	h.Start(50)
	clk.AdvanceMs(40)
	if n != 0 {
		t.Fatal("old deadline fired")
	}
	clk.AdvanceMs(10)
	if n != 1 {
		t.Fatal("wrong:", n)
	}
}

func TestStop(t *testing.T) {
	clk := NewManual()
	s := New(clk)
	n := 0
	h := s.Create("bist", func(int) { n++ }, 0)
	h.Start(10)
	h.Stop()
	clk.AdvanceMs(100)
	if n != 0 {
		t.Error("stopped timer fired")
	}
	if clk.Waiting() != 0 {
		t.Error("wrong:", clk.Waiting())
	}
}

func TestDelete(t *testing.T) {
	s := New(NewManual())
	h := s.Create("x", func(int) {}, 0)
	if s.Len() != 1 {
		t.Fatal("wrong:", s.Len())
	}
	h.Delete()
	h.Delete()
	if s.Len() != 0 {
		t.Error("wrong:", s.Len())
	}
	if err := h.Start(1); err != ErrDeleted {
		t.Error("wrong:", err)
	}
}

func TestDeleteInCallback(t *testing.T) {
	clk := NewManual()
	s := New(clk)
	var h *Handle
	ran := false
	h = s.Create("self", func(int) {
		h.Delete()
		if s.Len() != 1 {
			t.Error("deleted while running")
		}
		if err := h.Start(5); err != ErrDeleted {
			t.Error("restart after delete:", err)
		}
		ran = true
	}, 0)
	h.Start(1)
	clk.AdvanceMs(1)
	if !ran {
		t.Fatal("didn't run")
	}
	if s.Len() != 0 {
		t.Error("not deleted:", s.Len())
	}
}

func TestRestartInCallback(t *testing.T) {
	clk := NewManual()
	s := New(clk)
	var h *Handle
	n := 0
	h = s.Create("poll", func(int) {
		if n++; n < 3 {
			h.Start(10)
		}
	}, 0)
	h.Start(10)
	clk.AdvanceMs(100)
	if n != 3 {
		t.Error("wrong:", n)
	}
	if clk.Now() != 100*time.Millisecond {
		t.Error("wrong:", clk.Now())
	}
}

func TestWallclock(t *testing.T) {
	s := New()
	done := make(chan int, 1)
	h := s.Create("wall", func(p int) { done <- p }, 3)
	defer h.Delete()
	h.Start(1)
	select {
	case p := <-done:
		if p != 3 {
			t.Error("wrong:", p)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
}
