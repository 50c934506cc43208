// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/luxfi/log"

	"github.com/luxfi/handshake/headers"
)

const scratchSize = 2048

// Channel is a non-blocking byte transport. Read and Write return 0 and a nil
// error when no progress can be made until the next readiness notification.
// Read returns io.EOF once the peer has closed its side.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// state is one discrete read or write of the non-blocking handshake.
type state interface {
	reading() bool
	// process makes as much progress as the channel allows and reports
	// whether the state is complete.
	process(n *NonBlocking) (bool, error)
	// complete hands the finished state to the session and returns the next
	// operation.
	complete(n *NonBlocking) (step, error)
}

// NonBlocking runs a handshake as a sequence of read and write states that
// are re-entered on every readiness notification. It never blocks.
//
// NonBlocking is not safe for concurrent use; Process must be called from a
// single goroutine.
type NonBlocking struct {
	s       *session
	ch      Channel
	scratch []byte
	buf     []byte
	current state

	done      bool
	err       error
	closeOnce sync.Once
}

// NewNonBlocking returns a handshaker for ch. If ch exposes RemoteAddr, the
// observed address is written in Remote-IP. If ch implements io.Closer it is
// closed when the handshake fails or answers a crawler.
func NewNonBlocking(
	ch Channel,
	cfg *Config,
	outgoing bool,
	request *headers.Map,
	responder Responder,
) *NonBlocking {
	n := &NonBlocking{
		s:       newSession(cfg, outgoing, request, responder, remoteAddr(ch)),
		ch:      ch,
		scratch: make([]byte, scratchSize),
	}
	n.current = n.stateFor(n.s.begin())
	return n
}

func (n *NonBlocking) stateFor(next step) state {
	switch next {
	case stepWrite:
		return &writeState{data: n.s.pending}
	case stepRead:
		return &readBlockState{parser: newBlockParser(n.s.cfg.MaxHeaders)}
	case stepReadLine:
		return &readLineState{}
	default:
		return nil
	}
}

// Reading reports whether the handshake is waiting for the channel to become
// readable.
func (n *NonBlocking) Reading() bool {
	return n.current != nil && n.current.reading()
}

// Writing reports whether the handshake is waiting for the channel to become
// writable.
func (n *NonBlocking) Writing() bool {
	return n.current != nil && !n.current.reading()
}

// Process advances the handshake as far as the channel allows. It returns
// true once the handshake has finished, together with the error that ended
// it, if any.
func (n *NonBlocking) Process() (bool, error) {
	if n.done {
		return true, n.err
	}
	for {
		finished, err := n.current.process(n)
		if err != nil {
			return true, n.fail(err)
		}
		if !finished {
			return false, nil
		}
		next, err := n.current.complete(n)
		if err != nil {
			return true, n.fail(err)
		}
		if next == stepDone {
			n.done = true
			n.current = nil
			n.s.end(nil)
			if n.s.outcome == OutcomeCrawler {
				n.close()
			}
			return true, nil
		}
		n.current = n.stateFor(next)
	}
}

func (n *NonBlocking) fail(err error) error {
	n.done = true
	n.err = err
	n.current = nil
	n.s.end(err)
	n.close()
	return err
}

// Close aborts the handshake. A later Process call reports ErrClosed.
func (n *NonBlocking) Close() error {
	if !n.done {
		n.fail(ErrClosed)
	}
	return nil
}

func (n *NonBlocking) close() {
	n.closeOnce.Do(func() {
		c, ok := n.ch.(io.Closer)
		if !ok {
			return
		}
		if err := c.Close(); err != nil {
			n.s.log.Debug("failed to close channel", log.Err(err))
		}
	})
}

// fill performs one read from the channel into buf. It returns false when no
// bytes were available.
func (n *NonBlocking) fill() (bool, error) {
	read, err := n.ch.Read(n.scratch)
	if read > 0 {
		n.buf = append(n.buf, n.scratch[:read]...)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return read > 0, fmt.Errorf("reading handshake: %w", io.ErrUnexpectedEOF)
		}
		return false, fmt.Errorf("reading handshake: %w", err)
	}
	return read > 0, nil
}

// Result returns the outcome once Process has reported completion.
func (n *NonBlocking) Result() Result {
	var remaining []byte
	if n.done && n.err == nil && n.s.outcome == OutcomeAccepted {
		remaining = n.Remaining()
	}
	return n.s.result(remaining)
}

// Remaining returns a copy of the bytes read past the last header block.
func (n *NonBlocking) Remaining() []byte {
	if len(n.buf) == 0 {
		return nil
	}
	return append([]byte(nil), n.buf...)
}

// HeadersRead returns a copy of every header the peer has sent so far.
func (n *NonBlocking) HeadersRead() *headers.Map {
	return n.s.HeadersRead()
}

// HeadersWritten returns a copy of every header we have sent so far.
func (n *NonBlocking) HeadersWritten() *headers.Map {
	return n.s.HeadersWritten()
}

// writeState drains one serialized block into the channel.
type writeState struct {
	data []byte
	off  int
}

func (*writeState) reading() bool {
	return false
}

func (w *writeState) process(n *NonBlocking) (bool, error) {
	for w.off < len(w.data) {
		written, err := n.ch.Write(w.data[w.off:])
		w.off += written
		if err != nil {
			return false, fmt.Errorf("writing handshake: %w", err)
		}
		if written == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (*writeState) complete(n *NonBlocking) (step, error) {
	return n.s.wrote()
}

// readBlockState accumulates lines until a blank line ends the block.
type readBlockState struct {
	parser   *blockParser
	consumed int
}

func (*readBlockState) reading() bool {
	return true
}

func (r *readBlockState) process(n *NonBlocking) (bool, error) {
	for {
		done, err := r.drain(n)
		if done || err != nil {
			return done, err
		}
		more, err := n.fill()
		if err != nil {
			// Lines that arrived with the end of stream still count.
			if done, derr := r.drain(n); done || derr != nil {
				return done, derr
			}
			return false, err
		}
		if !more {
			return false, nil
		}
	}
}

// drain feeds every complete line in the buffer to the parser.
func (r *readBlockState) drain(n *NonBlocking) (bool, error) {
	for {
		line, used, err := nextLine(n.buf, n.s.cfg.MaxLineLength)
		if err != nil || used == 0 {
			return false, err
		}
		n.buf = n.buf[used:]
		r.consumed += used
		done, err := r.parser.feed(line)
		if done || err != nil {
			return done, err
		}
	}
}

func (r *readBlockState) complete(n *NonBlocking) (step, error) {
	return n.s.readBlock(r.parser.first, r.parser.headers, r.consumed)
}

// readLineState waits for the single line a crawler sends after our reply.
// The end of the stream completes it as well.
type readLineState struct {
	consumed int
}

func (*readLineState) reading() bool {
	return true
}

func (l *readLineState) process(n *NonBlocking) (bool, error) {
	for {
		if _, used, err := nextLine(n.buf, n.s.cfg.MaxLineLength); err != nil || used > 0 {
			l.consumed = used
			n.buf = n.buf[used:]
			return true, nil
		}
		more, err := n.fill()
		if err != nil {
			return true, nil
		}
		if !more {
			return false, nil
		}
	}
}

func (l *readLineState) complete(n *NonBlocking) (step, error) {
	return n.s.readLine(l.consumed), nil
}
