// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package notify

import (
	"sync"

	redigo "github.com/garyburd/redigo/redis"
	"github.com/platinasystems/log"
	"github.com/platinasystems/redis"
	"github.com/platinasystems/redis/publisher"
)

// Printer is the part of *publisher.Publisher used by Publisher.
type Printer interface {
	Print(a ...interface{}) (int, error)
}

// Publisher sets "Prefix.kind: param[ payload]" fields in the default redis
// hash through the redisd publisher socket.
type Publisher struct {
	mutex  sync.Mutex
	pub    Printer
	Prefix string
}

// NewPublisher dials the local redisd publisher.
func NewPublisher(prefix string) (*Publisher, error) {
	pub, err := publisher.New()
	if err != nil {
		return nil, err
	}
	return &Publisher{pub: pub, Prefix: prefix}, nil
}

// PublishTo wraps an existing printer.
func PublishTo(p Printer, prefix string) *Publisher {
	return &Publisher{pub: p, Prefix: prefix}
}

func (p *Publisher) Notify(e Event) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if _, err := p.pub.Print(p.Prefix, ".", e.Kind, ": ", e.Value()); err != nil {
		log.Print("warn", "publish ", e.Kind, ": ", err)
	}
}

// Print passes through to the publisher for non-event fields.
func (p *Publisher) Print(a ...interface{}) (int, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.pub.Print(a...)
}

func (p *Publisher) Close() error {
	if c, ok := p.pub.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Channel PUBLISHes each event, formatted as Event.String, on a redis
// channel.
type Channel struct {
	mutex sync.Mutex
	conn  redigo.Conn
	Name  string
}

// NewChannel connects to the local redisd.
func NewChannel(name string) (*Channel, error) {
	conn, err := redis.Connect()
	if err != nil {
		return nil, err
	}
	return &Channel{conn: conn, Name: name}, nil
}

// ChannelOn wraps an existing connection.
func ChannelOn(conn redigo.Conn, name string) *Channel {
	return &Channel{conn: conn, Name: name}
}

func (c *Channel) Notify(e Event) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if _, err := c.conn.Do("PUBLISH", c.Name, e.String()); err != nil {
		log.Print("warn", "PUBLISH ", c.Name, ": ", err)
	}
}

func (c *Channel) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.conn.Close()
}
