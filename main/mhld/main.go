// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// This runs the mhl transmitter daemon outside of a goes machine.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinasystems/mhl/cmd/mhld"
)

var Args = os.Args
var Exit = os.Exit
var Stderr io.Writer = os.Stderr

func main() {
	c := new(mhld.Command)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		c.Close()
	}()
	if err := c.Main(Args[1:]...); err != nil {
		fmt.Fprintln(Stderr, "mhld:", err)
		Exit(1)
	}
}
