// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake_test

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/handshake"
	"github.com/luxfi/handshake/handshaketest"
	"github.com/luxfi/handshake/headers"
)

type upgraded struct {
	conn   net.Conn
	result handshake.Result
	err    error
}

func upgradePair(t *testing.T, client, server handshake.Upgrader) (upgraded, upgraded) {
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		_ = clientConn.Close()
		_ = serverConn.Close()
	})

	ctx := context.Background()
	var (
		eg      errgroup.Group
		out, in upgraded
	)
	eg.Go(func() error {
		out.conn, out.result, out.err = client.Upgrade(ctx, clientConn)
		return nil
	})
	eg.Go(func() error {
		in.conn, in.result, in.err = server.Upgrade(ctx, serverConn)
		return nil
	})
	require.NoError(t, eg.Wait())
	return out, in
}

func TestUpgradeDeflates(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	c.Hosts = nil
	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true)
	m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(true)

	cfg := handshaketest.NewConfig(t)
	settings := handshaketest.Settings()
	client := handshake.NewClientUpgrader(
		cfg,
		func(net.Conn) *headers.Map {
			return handshaketest.GoodLeaf()
		},
		func(net.Conn) handshake.Responder {
			return handshake.NewLeafResponder(settings, handshake.DefaultPolicy(), c)
		},
	)
	server := handshake.NewServerUpgrader(cfg, func(net.Conn) handshake.Responder {
		return handshake.NewUltrapeerResponder(settings, handshake.DefaultPolicy(), c)
	})

	out, in := upgradePair(t, client, server)
	require.NoError(out.err)
	require.NoError(in.err)
	require.Equal(headers.DeflateValue, out.result.Sent.Header(headers.ContentEncoding))
	require.Equal(headers.DeflateValue, in.result.Sent.Header(headers.ContentEncoding))

	var eg errgroup.Group
	eg.Go(func() error {
		if _, err := out.conn.Write([]byte("ping")); err != nil {
			return err
		}
		buf := make([]byte, 4)
		if _, err := io.ReadFull(out.conn, buf); err != nil {
			return err
		}
		if string(buf) != "pong" {
			return io.ErrUnexpectedEOF
		}
		return nil
	})

	buf := make([]byte, 4)
	_, err := io.ReadFull(in.conn, buf)
	require.NoError(err)
	require.Equal("ping", string(buf))
	_, err = in.conn.Write([]byte("pong"))
	require.NoError(err)
	require.NoError(eg.Wait())
}

func TestUpgradeRejected(t *testing.T) {
	require := require.New(t)

	cfg := handshaketest.NewConfig(t)
	client := handshake.NewClientUpgrader(
		cfg,
		func(net.Conn) *headers.Map {
			return handshaketest.GoodLeaf()
		},
		func(net.Conn) handshake.Responder {
			return handshaketest.Accepting(nil)
		},
	)
	server := handshake.NewServerUpgrader(cfg, func(net.Conn) handshake.Responder {
		return handshaketest.Rejecting(headers.StatusSlotsFull, headers.StatusSlotsFullMessage)
	})

	out, in := upgradePair(t, client, server)
	require.ErrorIs(out.err, handshake.ErrRemoteRejected)
	require.Nil(out.conn)
	require.ErrorIs(in.err, handshake.ErrLocalRejected)
	require.Nil(in.conn)
}

func TestUpgradePlain(t *testing.T) {
	require := require.New(t)

	cfg := handshaketest.NewConfig(t)
	client := handshake.NewClientUpgrader(
		cfg,
		func(net.Conn) *headers.Map {
			return handshaketest.GoodLeaf()
		},
		func(net.Conn) handshake.Responder {
			return handshaketest.Accepting(nil)
		},
	)
	server := handshake.NewServerUpgrader(cfg, func(net.Conn) handshake.Responder {
		return handshaketest.Accepting(handshaketest.GoodUltrapeer())
	})

	out, in := upgradePair(t, client, server)
	require.NoError(out.err)
	require.NoError(in.err)

	// Neither side wrote Content-Encoding, so the connections pass through.
	go func() {
		_, _ = out.conn.Write([]byte("raw"))
	}()
	buf := make([]byte, 3)
	_, err := io.ReadFull(in.conn, buf)
	require.NoError(err)
	require.Equal("raw", string(buf))
}
