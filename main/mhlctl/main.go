// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// This is the console of a running mhld.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/platinasystems/mhl/cmd/mhlctl"
)

var Args = os.Args
var Exit = os.Exit
var Stderr io.Writer = os.Stderr

func main() {
	if err := new(mhlctl.Command).Main(Args[1:]...); err != nil {
		fmt.Fprintln(Stderr, "mhlctl:", err)
		Exit(1)
	}
}
