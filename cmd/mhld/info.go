// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mhld

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/mhl"
	"github.com/platinasystems/redis/rpc/args"
	"github.com/platinasystems/redis/rpc/reply"
)

// Hset fields that run a command rather than store a setting.
var commands = map[string]func(i *Info, v string) error{
	"ecbus": func(i *Info, v string) error {
		var speed mhl.Speed
		var slots int
		switch v {
		case "s":
			speed, slots = mhl.SpeedS, i.cfg.TDMSEMSC()
		case "d":
			speed, slots = mhl.SpeedD, i.cfg.TDMDEMSC()
		default:
			return fmt.Errorf("%q: expected s or d", v)
		}
		return i.dev.RequestECBUS(speed, mhl.DefaultTDM(speed, slots))
	},
	"rcp": byteCommand(func(i *Info, b byte) error { return i.dev.SendRCP(b) }),
	"ucp": byteCommand(func(i *Info, b byte) error { return i.dev.SendUCP(b) }),
	"rap": byteCommand(func(i *Info, b byte) error { return i.dev.SendRAP(b) }),
	"content_type": byteCommand(func(i *Info, b byte) error {
		if b > 1 {
			return fmt.Errorf("%d: expected 0 or 1", b)
		}
		i.dev.SetContentType(b)
		return nil
	}),
	"bist.trigger": byteCommand(func(i *Info, b byte) error {
		if st := i.dev.BISTTrigger(b); st != mhl.BISTStatusOK {
			return fmt.Errorf("bist: %v", st)
		}
		return nil
	}),
	"bist.stop": func(i *Info, v string) error {
		return i.dev.BISTStop()
	},
	"cancel": func(i *Info, v string) error {
		seq, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return err
		}
		if !i.dev.CancelRequest(uint32(seq)) {
			return fmt.Errorf("%d: not queued", seq)
		}
		return nil
	},
}

func byteCommand(f func(i *Info, b byte) error) func(i *Info, v string) error {
	return func(i *Info, v string) error {
		u, err := strconv.ParseUint(v, 0, 8)
		if err != nil {
			return fmt.Errorf("%q: %v", v, err)
		}
		return f(i, byte(u))
	}
}

func (i *Info) Hset(args args.Hset, reply *reply.Hset) error {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	v := string(args.Value)
	v = strings.TrimRight(v, "\n") // Be conservative in what we accept

	err := i.set(args.Field, v)
	if err == nil {
		*reply = 1
	}
	return err
}

func (i *Info) set(field, v string) error {
	name := strings.TrimPrefix(field, Prefix+".")
	if f, found := commands[name]; found {
		if err := f(i, v); err != nil {
			return fmt.Errorf("%s: %v", name, err)
		}
		log.Print("info", name, ": ", v)
		return nil
	}
	if err := i.cfg.Set(name, v); err != nil {
		return err
	}
	s, _ := i.cfg.Get(name)
	if name == "verbosity" || i.cfg.Verbosity() >= config.Note {
		log.Print("note", name, " set to ", s)
	}
	i.publish(name, s)
	return nil
}

func (i *Info) publish(key string, value interface{}) {
	if i.pub != nil {
		i.pub.Print(Prefix, ".", key, ": ", value)
	}
}
