// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"context"
	"net"

	"github.com/luxfi/handshake/deflate"
	"github.com/luxfi/handshake/headers"
)

var (
	_ Upgrader = (*serverUpgrader)(nil)
	_ Upgrader = (*clientUpgrader)(nil)
)

// Upgrader runs the handshake over a freshly opened connection and returns
// the connection the post-handshake stream flows over.
type Upgrader interface {
	// Upgrade returns a nil connection and a nil error when the peer was a
	// crawler. Must be thread safe.
	Upgrade(ctx context.Context, conn net.Conn) (net.Conn, Result, error)
}

// ResponderFactory builds the responder for a single connection.
type ResponderFactory func(conn net.Conn) Responder

type serverUpgrader struct {
	config       *Config
	newResponder ResponderFactory
}

func NewServerUpgrader(config *Config, newResponder ResponderFactory) Upgrader {
	return &serverUpgrader{
		config:       config,
		newResponder: newResponder,
	}
}

func (u *serverUpgrader) Upgrade(ctx context.Context, conn net.Conn) (net.Conn, Result, error) {
	b := NewBlocking(conn, u.config, false, nil, u.newResponder(conn))
	return upgrade(ctx, b, conn)
}

type clientUpgrader struct {
	config       *Config
	request      func(conn net.Conn) *headers.Map
	newResponder ResponderFactory
}

// NewClientUpgrader returns an upgrader for connections we open. request
// builds the block sent after the connect line.
func NewClientUpgrader(
	config *Config,
	request func(conn net.Conn) *headers.Map,
	newResponder ResponderFactory,
) Upgrader {
	return &clientUpgrader{
		config:       config,
		request:      request,
		newResponder: newResponder,
	}
}

func (u *clientUpgrader) Upgrade(ctx context.Context, conn net.Conn) (net.Conn, Result, error) {
	b := NewBlocking(conn, u.config, true, u.request(conn), u.newResponder(conn))
	return upgrade(ctx, b, conn)
}

func upgrade(ctx context.Context, b *Blocking, conn net.Conn) (net.Conn, Result, error) {
	res, err := b.Shake(ctx)
	if err != nil || res.Outcome != OutcomeAccepted {
		return nil, res, err
	}

	// An incoming session's Received carries every header the peer sent.
	inflate := res.Received.IsDeflateEnabled()
	compress := res.Sent.IsDeflateEnabled()
	wrapped, err := deflate.Wrap(conn, res.Remaining, inflate, compress)
	if err != nil {
		_ = conn.Close()
		return nil, res, err
	}
	return wrapped, res, nil
}
