// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package handshaketest provides in-memory transports and fake collaborators
// for exercising handshakes in tests.
package handshaketest

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/handshake"
)

const maxRounds = 10_000

var _ handshake.Channel = (*Channel)(nil)

type pipe struct {
	lock   sync.Mutex
	bufs   [2]bytes.Buffer
	closed [2]bool
}

// Channel is one end of an in-memory non-blocking transport. Reads and
// writes move at most Chunk bytes per call, which simulates partial delivery.
type Channel struct {
	p    *pipe
	side int

	// Chunk bounds the bytes moved by one Read or Write. Zero means
	// unbounded.
	Chunk int
	// Addr is reported by RemoteAddr.
	Addr net.Addr
}

// NewChannelPair returns two connected channels moving at most chunk bytes
// per call.
func NewChannelPair(chunk int) (*Channel, *Channel) {
	p := &pipe{}
	return &Channel{p: p, side: 0, Chunk: chunk}, &Channel{p: p, side: 1, Chunk: chunk}
}

func (c *Channel) limit(n int) int {
	if c.Chunk > 0 && n > c.Chunk {
		return c.Chunk
	}
	return n
}

func (c *Channel) Read(b []byte) (int, error) {
	c.p.lock.Lock()
	defer c.p.lock.Unlock()

	src := &c.p.bufs[1-c.side]
	if src.Len() == 0 {
		if c.p.closed[0] || c.p.closed[1] {
			return 0, io.EOF
		}
		return 0, nil
	}
	return src.Read(b[:c.limit(len(b))])
}

func (c *Channel) Write(b []byte) (int, error) {
	c.p.lock.Lock()
	defer c.p.lock.Unlock()

	if c.p.closed[0] || c.p.closed[1] {
		return 0, io.ErrClosedPipe
	}
	return c.p.bufs[c.side].Write(b[:c.limit(len(b))])
}

// Close closes both directions. Buffered bytes can still be read.
func (c *Channel) Close() error {
	c.p.lock.Lock()
	defer c.p.lock.Unlock()

	c.p.closed[c.side] = true
	return nil
}

// Closed reports whether this end has been closed.
func (c *Channel) Closed() bool {
	c.p.lock.Lock()
	defer c.p.lock.Unlock()

	return c.p.closed[c.side]
}

// Inject makes b readable from this end as if the peer had written it.
func (c *Channel) Inject(b []byte) {
	c.p.lock.Lock()
	defer c.p.lock.Unlock()

	c.p.bufs[1-c.side].Write(b)
}

// Pending returns the bytes this end has written that the peer has not read.
func (c *Channel) Pending() []byte {
	c.p.lock.Lock()
	defer c.p.lock.Unlock()

	return bytes.Clone(c.p.bufs[c.side].Bytes())
}

func (c *Channel) RemoteAddr() net.Addr {
	return c.Addr
}

// Drive processes both handshakes until each has finished, the way a reactor
// would on every readiness notification. It fails the test if they do not
// settle.
func Drive(t testing.TB, a, b *handshake.NonBlocking) (errA error, errB error) {
	var doneA, doneB bool
	for i := 0; !doneA || !doneB; i++ {
		require.Less(t, i, maxRounds, "handshakes did not settle")
		if !doneA {
			doneA, errA = a.Process()
		}
		if !doneB {
			doneB, errB = b.Process()
		}
	}
	return errA, errB
}
