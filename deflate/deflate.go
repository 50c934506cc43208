// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package deflate applies the deflate stream encoding negotiated during the
// handshake to the connection that follows it.
package deflate

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/klauspost/compress/flate"
)

var _ net.Conn = (*conn)(nil)

type conn struct {
	net.Conn

	reader   io.Reader
	inflater io.ReadCloser

	writeLock sync.Mutex
	deflater  *flate.Writer
}

// Wrap returns c with leftover replayed ahead of its reads. When inflate is
// set reads are decompressed; when compress is set writes are compressed and
// flushed on every Write. c is returned unchanged if there is nothing to do.
func Wrap(c net.Conn, leftover []byte, inflate, compress bool) (net.Conn, error) {
	if len(leftover) == 0 && !inflate && !compress {
		return c, nil
	}

	var src io.Reader = c
	if len(leftover) > 0 {
		src = io.MultiReader(bytes.NewReader(leftover), c)
	}
	w := &conn{
		Conn:   c,
		reader: src,
	}
	if inflate {
		w.inflater = flate.NewReader(src)
		w.reader = w.inflater
	}
	if compress {
		d, err := flate.NewWriter(c, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		w.deflater = d
	}
	return w, nil
}

func (c *conn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *conn) Write(p []byte) (int, error) {
	if c.deflater == nil {
		return c.Conn.Write(p)
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	n, err := c.deflater.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.deflater.Flush()
}

func (c *conn) Close() error {
	var errs []error
	if c.inflater != nil {
		errs = append(errs, c.inflater.Close())
	}
	errs = append(errs, c.Conn.Close())
	return errors.Join(errs...)
}
