// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package emsc

import "fmt"

// A block is [unload ack count][payload length][payload]; one received
// message may hold several.
const (
	BlockHdr = 2
	BlockMax = SlotSize
	// BurstMax is the largest burst one block can carry.
	BurstMax = BlockMax - BlockHdr
)

type Block struct {
	// Ack is the number of bytes the sender has unloaded from our
	// transmissions, returning that much credit.
	Ack     uint8
	Payload []byte
}

func (b Block) Bytes() []byte {
	p := make([]byte, BlockHdr+len(b.Payload))
	p[0], p[1] = b.Ack, uint8(len(b.Payload))
	copy(p[BlockHdr:], b.Payload)
	return p
}

// Blocks splits a received message into its blocks.
func Blocks(msg []byte) (blocks []Block, err error) {
	for len(msg) > 0 {
		if len(msg) < BlockHdr {
			return blocks, fmt.Errorf("block header: %w", ErrTruncated)
		}
		n := int(msg[1])
		if BlockHdr+n > len(msg) {
			return blocks, fmt.Errorf("block length %d of %d: %w",
				n, len(msg)-BlockHdr, ErrTruncated)
		}
		blocks = append(blocks, Block{msg[0], msg[BlockHdr : BlockHdr+n]})
		msg = msg[BlockHdr+n:]
	}
	return
}

// TxQueue holds outgoing bursts until credit allows sending them.
type TxQueue struct {
	bursts [][]byte
}

// Push queues b unless it is too large to ever fit a block.
func (q *TxQueue) Push(b Burst) error {
	p := b.Bytes()
	if len(p) > BurstMax {
		return fmt.Errorf("%v of %d bytes: %w", b.ID(), len(p), ErrTooLong)
	}
	q.bursts = append(q.bursts, p)
	return nil
}

// Pack takes as many whole bursts, in order, as fit a block of at most
// room bytes. It returns false if nothing fits.
func (q *TxQueue) Pack(ack uint8, room int) (Block, bool) {
	if room > BlockMax {
		room = BlockMax
	}
	room -= BlockHdr
	blk := Block{Ack: ack}
	for len(q.bursts) > 0 && len(q.bursts[0]) <= room-len(blk.Payload) &&
		len(blk.Payload)+len(q.bursts[0]) <= 0xff {
		blk.Payload = append(blk.Payload, q.bursts[0]...)
		q.bursts = q.bursts[1:]
	}
	return blk, len(blk.Payload) > 0
}
