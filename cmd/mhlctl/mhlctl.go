// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mhlctl is the console of the mhl daemon. It reads and sets the
// daemon's redis fields and follows its event channel, either for one
// command line, a script on stdin, or interactively.
package mhlctl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	redigo "github.com/garyburd/redigo/redis"
	"github.com/mattn/go-isatty"
	"github.com/platinasystems/liner"
	"github.com/platinasystems/mhl/cmd/mhld"
	"github.com/platinasystems/mhl/internal/config"
	"github.com/platinasystems/mhl/internal/lang"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/redis"
)

const Name = "mhlctl"

// Fields of mhld that run a command rather than hold a setting.
var Commands = []string{
	"bist.stop",
	"bist.trigger",
	"cancel",
	"content_type",
	"ecbus",
	"rap",
	"rcp",
	"ucp",
}

const usage = "get NAME | set NAME VALUE | show | watch [-n COUNT]"

var ErrUsage = errors.New("usage: " + usage)

type store interface {
	Hget(key, field string) (string, error)
	Hset(key, field string, v interface{}) (int, error)
	Hkeys(key string) ([]string, error)
}

type redisStore struct{}

func (redisStore) Hget(key, field string) (string, error) {
	return redis.Hget(key, field)
}

func (redisStore) Hset(key, field string, v interface{}) (int, error) {
	return redis.Hset(key, field, v)
}

func (redisStore) Hkeys(key string) ([]string, error) {
	return redis.Hkeys(key)
}

type Command struct {
	store store
	w     io.Writer
	// subscribe returns the event channel; nil is redis.Subscribe.
	subscribe func(channel string) (redigo.PubSubConn, error)
}

func (*Command) String() string { return Name }

func (*Command) Usage() string {
	return Name + " [" + usage + "]"
}

func (*Command) Apropos() lang.Alt {
	return lang.Alt{
		lang.EnUS: "mhl transmitter console",
	}
}

func (c *Command) Main(args ...string) error {
	if c.store == nil {
		if err := redis.IsReady(); err != nil {
			return err
		}
		c.store = redisStore{}
	}
	if c.w == nil {
		c.w = os.Stdout
	}
	if len(args) > 0 {
		return c.exec(args...)
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return c.script(os.Stdin)
	}
	return c.interactive()
}

func (c *Command) interactive() error {
	l := liner.NewLiner()
	defer l.Close()
	l.SetCtrlCAborts(true)
	l.SetCompleter(complete)
	for {
		s, err := l.Prompt(Name + "> ")
		if err == liner.ErrPromptAborted {
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(c.w)
			return nil
		}
		if err != nil {
			return err
		}
		args := fields(s)
		if len(args) == 0 {
			continue
		}
		l.AppendHistory(s)
		if args[0] == "quit" || args[0] == "exit" {
			return nil
		}
		if err = c.exec(args...); err != nil {
			fmt.Fprintln(c.w, err)
		}
	}
}

// script runs each line of r, stopping at the first failure.
func (c *Command) script(r io.Reader) error {
	scan := bufio.NewScanner(r)
	for n := 1; scan.Scan(); n++ {
		args := fields(scan.Text())
		if len(args) == 0 {
			continue
		}
		if err := c.exec(args...); err != nil {
			return fmt.Errorf("line %d: %v", n, err)
		}
	}
	return scan.Err()
}

func fields(s string) []string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	return strings.Fields(s)
}

func (c *Command) exec(args ...string) error {
	switch args[0] {
	case "get":
		if len(args) != 2 {
			return ErrUsage
		}
		s, err := c.store.Hget(redis.DefaultHash, mhld.Prefix+"."+args[1])
		if err != nil {
			return err
		}
		fmt.Fprint(c.w, args[1], ": ", s, "\n")
	case "set":
		if len(args) < 3 {
			return ErrUsage
		}
		if !settable(args[1]) {
			return fmt.Errorf("%s: %v", args[1], config.ErrName)
		}
		v := strings.Join(args[2:], " ")
		if _, err := c.store.Hset(redis.DefaultHash,
			mhld.Prefix+"."+args[1], v); err != nil {
			return err
		}
	case "show":
		if len(args) != 1 {
			return ErrUsage
		}
		return c.show()
	case "watch":
		return c.watch(args[1:]...)
	case "help":
		fmt.Fprint(c.w, Name, ": ", c.Apropos(), "\n")
		fmt.Fprintln(c.w, usage)
		fmt.Fprintln(c.w, "settings:", strings.Join(config.Names(), " "))
		fmt.Fprintln(c.w, "commands:", strings.Join(Commands, " "))
	default:
		return fmt.Errorf("%s: unknown command", args[0])
	}
	return nil
}

func settable(name string) bool {
	for _, list := range [][]string{config.Names(), Commands} {
		for _, s := range list {
			if s == name {
				return true
			}
		}
	}
	return false
}

func (c *Command) show() error {
	keys, err := c.store.Hkeys(redis.DefaultHash)
	if err != nil {
		return err
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, mhld.Prefix+".") {
			continue
		}
		s, err := c.store.Hget(redis.DefaultHash, k)
		if err != nil {
			return err
		}
		fmt.Fprint(c.w, k[len(mhld.Prefix)+1:], ": ", s, "\n")
	}
	return nil
}

// watch prints events from mhld until count of them or the channel closes.
func (c *Command) watch(args ...string) error {
	parm, args := parms.New(args, "-n")
	if len(args) > 0 {
		return ErrUsage
	}
	count := -1
	if s := parm.ByName["-n"]; len(s) > 0 {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("-n %s: invalid", s)
		}
		count = n
	}
	subscribe := c.subscribe
	if subscribe == nil {
		subscribe = redis.Subscribe
	}
	psc, err := subscribe(mhld.Channel)
	if err != nil {
		return err
	}
	defer psc.Close()
	for count != 0 {
		switch v := psc.Receive().(type) {
		case redigo.Message:
			fmt.Fprintln(c.w, string(v.Data))
			count--
		case error:
			return v
		}
	}
	return nil
}

func complete(line string) (lines []string) {
	args := strings.Fields(line)
	more := len(line) > 0 && line[len(line)-1] == ' '
	var candidates []string
	prefix, last := "", ""
	switch {
	case len(args) == 0:
	case len(args) == 1 && !more:
		last = args[0]
	case args[0] != "get" && args[0] != "set":
		return nil
	case len(args) == 1:
		prefix = args[0] + " "
	case len(args) == 2 && !more:
		prefix, last = args[0]+" ", args[1]
	default:
		return nil
	}
	if len(prefix) == 0 {
		candidates = []string{"get", "set", "show", "watch", "help", "quit"}
	} else {
		candidates = append(config.Names(), Commands...)
	}
	for _, s := range candidates {
		if strings.HasPrefix(s, last) {
			lines = append(lines, prefix+s)
		}
	}
	if len(lines) == 1 {
		lines[0] += " "
	}
	return
}
