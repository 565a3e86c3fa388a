// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhld

import (
	"strconv"

	"github.com/platinasystems/gpio"
)

// gpioLine is an active low pin.
type gpioLine struct {
	pin gpio.Pin
}

func (l *gpioLine) asserted() bool {
	v, err := l.pin.Value()
	return err == nil && !v
}

// findPin looks up a named pin, or takes a bare number as a sysfs input.
func findPin(name string) (gpio.Pin, bool) {
	if pin, found := gpio.Pins[name]; found {
		return pin, true
	}
	if i, err := strconv.Atoi(name); err == nil && i >= 0 {
		return gpio.IsInput | gpio.Pin(i), true
	}
	return 0, false
}
