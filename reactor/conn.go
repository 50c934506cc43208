// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reactor

import (
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/luxfi/handshake"
)

const readBufferSize = 4096

var _ handshake.Channel = (*channel)(nil)

// channel exposes a net.Conn as a non-blocking handshake channel. A reader
// goroutine and a writer goroutine move bytes between the connection and
// in-memory buffers, and notify is called whenever the channel may have
// become readable.
type channel struct {
	conn   net.Conn
	notify func()

	lock     sync.Mutex
	cond     *sync.Cond
	in       []byte
	readErr  error
	out      []byte
	writeErr error
	stopping bool

	readerDone chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newChannel(conn net.Conn, notify func()) *channel {
	c := &channel{
		conn:       conn,
		notify:     notify,
		readerDone: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.lock)
	return c
}

// start launches the reader and writer goroutines.
func (c *channel) start() {
	go c.readLoop()
	go c.writeLoop()
}

func (c *channel) readLoop() {
	defer close(c.readerDone)

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		c.lock.Lock()
		c.in = append(c.in, buf[:n]...)
		c.readErr = err
		c.lock.Unlock()

		c.notify()
		if err != nil {
			return
		}
	}
}

func (c *channel) writeLoop() {
	defer close(c.writerDone)

	for {
		c.lock.Lock()
		for len(c.out) == 0 && !c.stopping {
			c.cond.Wait()
		}
		buf := c.out
		c.out = nil
		c.lock.Unlock()

		if len(buf) == 0 {
			return
		}
		if _, err := c.conn.Write(buf); err != nil {
			c.lock.Lock()
			c.writeErr = err
			c.lock.Unlock()

			c.notify()
			return
		}
	}
}

// Read returns buffered bytes, or 0 and a nil error if none have arrived.
func (c *channel) Read(p []byte) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if len(c.in) > 0 {
		n := copy(p, c.in)
		c.in = c.in[n:]
		return n, nil
	}
	return 0, c.readErr
}

// Write queues p for the writer goroutine. It never blocks.
func (c *channel) Write(p []byte) (int, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.writeErr != nil {
		return 0, c.writeErr
	}
	if c.stopping {
		return 0, net.ErrClosed
	}
	c.out = append(c.out, p...)
	c.cond.Signal()
	return len(p), nil
}

func (c *channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close lets the writer flush any queued rejection in the background and then
// closes the underlying connection. The connection deadline set at
// registration bounds the flush.
func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		c.stop()
		go func() {
			<-c.writerDone
			_ = c.conn.Close()
		}()
	})
	return nil
}

func (c *channel) stop() {
	c.lock.Lock()
	c.stopping = true
	c.cond.Broadcast()
	c.lock.Unlock()
}

func (c *channel) stopWriter() {
	c.stop()
	<-c.writerDone
}

// release stops both goroutines once every queued byte has been written, and
// returns the connection with its deadlines cleared together with the bytes
// read but not yet consumed.
func (c *channel) release() (net.Conn, []byte, error) {
	c.stopWriter()
	if err := c.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, nil, err
	}
	<-c.readerDone

	c.lock.Lock()
	leftover := c.in
	c.in = nil
	readErr, writeErr := c.readErr, c.writeErr
	c.lock.Unlock()

	if writeErr != nil {
		return nil, nil, writeErr
	}
	if readErr != nil && !errors.Is(readErr, os.ErrDeadlineExceeded) && !errors.Is(readErr, io.EOF) {
		return nil, nil, readErr
	}
	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return nil, nil, err
	}
	return c.conn, leftover, nil
}
