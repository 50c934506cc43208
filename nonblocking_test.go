// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake_test

import (
	"bytes"
	"io"
	"net"
	"net/netip"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/handshake"
	"github.com/luxfi/handshake/handshaketest"
	"github.com/luxfi/handshake/headers"
)

// drain reads everything the channel has buffered.
func drain(ch *handshaketest.Channel) string {
	var b bytes.Buffer
	buf := make([]byte, 512)
	for {
		n, err := ch.Read(buf)
		b.Write(buf[:n])
		if n == 0 || err != nil {
			return b.String()
		}
	}
}

func TestNonBlockingAccepted(t *testing.T) {
	for _, chunk := range []int{0, 1, 7} {
		t.Run("chunk="+strconv.Itoa(chunk), func(t *testing.T) {
			require := require.New(t)

			a, b := handshaketest.NewChannelPair(chunk)
			cfg := handshaketest.NewConfig(t)
			client := handshake.NewNonBlocking(a, cfg, true, handshaketest.GoodLeaf(), handshaketest.Accepting(nil))
			server := handshake.NewNonBlocking(b, cfg, false, nil, handshaketest.Accepting(handshaketest.GoodUltrapeer()))
			require.True(client.Writing())
			require.True(server.Reading())

			errA, errB := handshaketest.Drive(t, client, server)
			require.NoError(errA)
			require.NoError(errB)

			out, in := client.Result(), server.Result()
			require.Equal(handshake.OutcomeAccepted, out.Outcome)
			require.Equal(handshake.OutcomeAccepted, in.Outcome)
			require.True(out.Received.IsGoodUltrapeer())
			require.True(in.Received.IsLeaf())
			require.False(a.Closed())
			require.False(b.Closed())
			require.False(client.Reading())
			require.False(client.Writing())

			done, err := client.Process()
			require.True(done)
			require.NoError(err)
		})
	}
}

func TestNonBlockingLeafRejectsLeaf(t *testing.T) {
	require := require.New(t)

	a, b := handshaketest.NewChannelPair(3)
	cfg := handshaketest.NewConfig(t)
	leaf := handshake.NewLeafResponder(handshaketest.Settings(), handshake.DefaultPolicy(), handshake.Collaborators{})
	client := handshake.NewNonBlocking(a, cfg, true, handshaketest.GoodLeaf(), leaf)
	server := handshake.NewNonBlocking(b, cfg, false, nil, handshaketest.Accepting(handshaketest.GoodLeaf()))

	errA, errB := handshaketest.Drive(t, client, server)
	require.ErrorIs(errA, handshake.ErrLocalRejected)
	require.ErrorIs(errB, handshake.ErrRemoteRejected)
	require.True(a.Closed())
	require.Equal(headers.StatusShieldedMessage, client.Result().Sent.StatusMessage())
}

func TestNonBlockingMalformedStatusLine(t *testing.T) {
	require := require.New(t)

	a, peer := handshaketest.NewChannelPair(0)
	client := handshake.NewNonBlocking(a, handshaketest.NewConfig(t), true, handshaketest.GoodLeaf(), handshaketest.Accepting(nil))

	done, err := client.Process()
	require.False(done)
	require.NoError(err)
	require.True(client.Reading())
	require.Contains(drain(peer), headers.ConnectLine+"\r\n")

	_, err = peer.Write([]byte("OK\r\n\r\n"))
	require.NoError(err)
	done, err = client.Process()
	require.True(done)
	require.ErrorIs(err, handshake.ErrMalformedStatusLine)
	require.Equal(handshake.OutcomeFailed, client.Result().Outcome)
	require.True(a.Closed())
}

func TestNonBlockingCrawler(t *testing.T) {
	tests := []struct {
		name  string
		after func(peer *handshaketest.Channel) error
	}{
		{
			name: "final line",
			after: func(peer *handshaketest.Channel) error {
				_, err := peer.Write([]byte("GNUTELLA/0.6 200 OK\r\n"))
				return err
			},
		},
		{
			name: "closed",
			after: func(peer *handshaketest.Channel) error {
				return peer.Close()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			m, c := newMocks(t)
			m.topology.EXPECT().Ultrapeers().Return([]netip.AddrPort{hostA})
			m.topology.EXPECT().Leaves().Return(nil)

			b, peer := handshaketest.NewChannelPair(0)
			server := handshake.NewNonBlocking(
				b,
				handshaketest.NewConfig(t),
				false,
				nil,
				handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c),
			)

			_, err := peer.Write([]byte(headers.ConnectLine + "\r\nUser-Agent: Crawler/1.0\r\nCrawler: 0.1\r\n\r\n"))
			require.NoError(err)
			done, err := server.Process()
			require.False(done)
			require.NoError(err)
			require.True(server.Reading())

			reply := drain(peer)
			require.Contains(reply, "GNUTELLA/0.6 593 Hi\r\n")
			require.Contains(reply, "Peers: 1.1.1.1:6346\r\n")

			require.NoError(tt.after(peer))
			done, err = server.Process()
			require.True(done)
			require.NoError(err)
			require.Equal(handshake.OutcomeCrawler, server.Result().Outcome)
			require.True(b.Closed())
		})
	}
}

func TestNonBlockingRemaining(t *testing.T) {
	require := require.New(t)

	b, peer := handshaketest.NewChannelPair(0)
	server := handshake.NewNonBlocking(b, handshaketest.NewConfig(t), false, nil, handshaketest.Accepting(nil))

	_, err := peer.Write([]byte(headers.ConnectLine + "\r\n\r\n"))
	require.NoError(err)
	done, err := server.Process()
	require.False(done)
	require.NoError(err)
	require.Equal("GNUTELLA/0.6 200 OK\r\n\r\n", drain(peer))

	_, err = peer.Write([]byte("GNUTELLA/0.6 200 OK\r\n\r\npayload"))
	require.NoError(err)
	done, err = server.Process()
	require.True(done)
	require.NoError(err)
	require.Equal([]byte("payload"), server.Result().Remaining)
}

func TestNonBlockingRemoteIP(t *testing.T) {
	require := require.New(t)

	a, peer := handshaketest.NewChannelPair(0)
	a.Addr = &net.TCPAddr{IP: net.ParseIP("10.0.0.9"), Port: 6346}
	client := handshake.NewNonBlocking(a, handshaketest.NewConfig(t), true, handshaketest.GoodLeaf(), handshaketest.Accepting(nil))

	_, err := client.Process()
	require.NoError(err)
	require.Contains(drain(peer), "Remote-IP: 10.0.0.9\r\n")
	require.Equal("10.0.0.9", client.HeadersWritten().Value(headers.RemoteIP))
}

func TestNonBlockingPrematureClose(t *testing.T) {
	require := require.New(t)

	b, peer := handshaketest.NewChannelPair(0)
	server := handshake.NewNonBlocking(b, handshaketest.NewConfig(t), false, nil, handshaketest.Accepting(nil))

	_, err := peer.Write([]byte(headers.ConnectLine + "\r\nUser-Agent: Lime"))
	require.NoError(err)
	done, err := server.Process()
	require.False(done)
	require.NoError(err)

	require.NoError(peer.Close())
	done, err = server.Process()
	require.True(done)
	require.ErrorIs(err, io.ErrUnexpectedEOF)
}

func TestNonBlockingLineTooLong(t *testing.T) {
	require := require.New(t)

	b, peer := handshaketest.NewChannelPair(0)
	cfg := handshaketest.NewConfig(t)
	cfg.MaxLineLength = 64
	server := handshake.NewNonBlocking(b, cfg, false, nil, handshaketest.Accepting(nil))

	_, err := peer.Write(bytes.Repeat([]byte("a"), 100))
	require.NoError(err)
	done, err := server.Process()
	require.True(done)
	require.ErrorIs(err, handshake.ErrLineTooLong)
	require.True(b.Closed())
}

func TestNonBlockingClose(t *testing.T) {
	require := require.New(t)

	a, _ := handshaketest.NewChannelPair(0)
	client := handshake.NewNonBlocking(a, handshaketest.NewConfig(t), true, handshaketest.GoodLeaf(), handshaketest.Accepting(nil))
	require.NoError(client.Close())

	done, err := client.Process()
	require.True(done)
	require.ErrorIs(err, handshake.ErrClosed)
	require.True(a.Closed())
	require.False(client.Reading())
	require.False(client.Writing())
}

func TestNonBlockingUltrapeerGuidesToLeaf(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	c.Hosts = nil
	m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(true)
	m.admission.EXPECT().SupernodeNeeded().Return(false)

	a, b := handshaketest.NewChannelPair(5)
	cfg := handshaketest.NewConfig(t)
	client := handshake.NewNonBlocking(a, cfg, true, handshaketest.GoodUltrapeer(), handshaketest.Accepting(nil))
	server := handshake.NewNonBlocking(
		b,
		cfg,
		false,
		nil,
		handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c),
	)

	errA, errB := handshaketest.Drive(t, client, server)
	require.NoError(errA)
	require.NoError(errB)
	require.Equal(headers.False, server.Result().Sent.Header(headers.UltrapeerNeeded))
	require.True(client.Result().Received.HasLeafGuidance())
}
