// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/handshake/headers"
)

// Blocking runs a handshake synchronously on the calling goroutine. Every
// read and write is bounded by a deadline on the connection.
type Blocking struct {
	s      *session
	conn   net.Conn
	reader *bufio.Reader

	closeOnce sync.Once
}

// NewBlocking returns a handshaker for conn. request is the block sent after
// the connect line of an outgoing session and is ignored for incoming ones.
func NewBlocking(
	conn net.Conn,
	cfg *Config,
	outgoing bool,
	request *headers.Map,
	responder Responder,
) *Blocking {
	s := newSession(cfg, outgoing, request, responder, remoteAddr(conn))
	return &Blocking{
		s:    s,
		conn: conn,
		// A maximal line plus its CRLF fits in the buffer.
		reader: bufio.NewReaderSize(conn, s.cfg.MaxLineLength+2),
	}
}

// Shake runs the handshake to completion. Cancelling ctx closes the
// connection, which aborts any blocked read or write. The connection is
// closed when an error is returned and after answering a crawler; otherwise
// it is left open with its deadlines cleared.
func (b *Blocking) Shake(ctx context.Context) (Result, error) {
	stop := context.AfterFunc(ctx, b.close)
	err := b.run()
	if !stop() {
		// ctx was cancelled and the connection is already closed.
		if err == nil {
			err = ctx.Err()
		} else {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
	}

	b.s.end(err)
	var remaining []byte
	switch {
	case err != nil, b.s.outcome == OutcomeCrawler:
		b.close()
	default:
		remaining = b.remaining()
		if err := b.conn.SetDeadline(time.Time{}); err != nil {
			b.s.log.Debug("failed to clear deadline", log.Err(err))
		}
	}
	return b.s.result(remaining), err
}

func (b *Blocking) run() error {
	next := b.s.begin()
	for {
		var err error
		switch next {
		case stepWrite:
			err = b.write()
			if err == nil {
				next, err = b.s.wrote()
			}
		case stepRead:
			var (
				first string
				h     *headers.Map
				n     int
			)
			first, h, n, err = b.readBlock()
			if err == nil {
				next, err = b.s.readBlock(first, h, n)
			}
		case stepReadLine:
			// The crawler's last line carries nothing we act on.
			_, n, _ := b.readLine()
			next = b.s.readLine(n)
		case stepDone:
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (b *Blocking) write() error {
	if err := b.conn.SetWriteDeadline(time.Now().Add(b.s.cfg.ReadTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := b.conn.Write(b.s.pending); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}
	return nil
}

func (b *Blocking) readBlock() (string, *headers.Map, int, error) {
	if err := b.conn.SetReadDeadline(time.Now().Add(b.s.readTimeout())); err != nil {
		return "", nil, 0, fmt.Errorf("setting read deadline: %w", err)
	}
	p := newBlockParser(b.s.cfg.MaxHeaders)
	total := 0
	for {
		line, n, err := b.readLine()
		total += n
		if err != nil {
			return "", nil, total, err
		}
		done, err := p.feed(line)
		if err != nil {
			return "", nil, total, err
		}
		if done {
			return p.first, p.headers, total, nil
		}
	}
}

func (b *Blocking) readLine() (string, int, error) {
	raw, err := b.reader.ReadSlice('\n')
	n := len(raw)
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return "", n, fmt.Errorf("%w: limit is %d", ErrLineTooLong, b.s.cfg.MaxLineLength)
	case errors.Is(err, io.EOF):
		return "", n, fmt.Errorf("reading handshake: %w", io.ErrUnexpectedEOF)
	case err != nil:
		return "", n, fmt.Errorf("reading handshake: %w", err)
	}
	line := trimCR(raw[:n-1])
	if len(line) > b.s.cfg.MaxLineLength {
		return "", n, fmt.Errorf("%w: limit is %d", ErrLineTooLong, b.s.cfg.MaxLineLength)
	}
	return string(line), n, nil
}

func (b *Blocking) remaining() []byte {
	n := b.reader.Buffered()
	if n == 0 {
		return nil
	}
	buf, _ := b.reader.Peek(n)
	return append([]byte(nil), buf...)
}

func (b *Blocking) close() {
	b.closeOnce.Do(func() {
		if err := b.conn.Close(); err != nil {
			b.s.log.Debug("failed to close connection", log.Err(err))
		}
	})
}

// HeadersRead returns a copy of every header the peer has sent so far.
func (b *Blocking) HeadersRead() *headers.Map {
	return b.s.HeadersRead()
}

// HeadersWritten returns a copy of every header we have sent so far.
func (b *Blocking) HeadersWritten() *headers.Map {
	return b.s.HeadersWritten()
}
