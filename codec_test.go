// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/handshake/headers"
)

func TestFormatBlock(t *testing.T) {
	h := headers.New(headers.UserAgent, "LimeWire/4.9.0", headers.Ultrapeer, headers.True)
	require.Equal(
		t,
		"GNUTELLA CONNECT/0.6\r\nUser-Agent: LimeWire/4.9.0\r\nX-Ultrapeer: True\r\n\r\n",
		string(formatBlock(headers.ConnectLine, h)),
	)
	require.Equal(t, "GNUTELLA/0.6 200 OK\r\n\r\n", string(formatBlock(statusLine(Accept(nil, DefaultPolicy())), nil)))
}

func TestCheckConnectLine(t *testing.T) {
	tests := []struct {
		line    string
		wantErr error
	}{
		{line: "GNUTELLA CONNECT/0.6"},
		{line: "GNUTELLA CONNECT/0.7"},
		{line: "GNUTELLA CONNECT/1.0"},
		{line: "GNUTELLA CONNECT/0.4", wantErr: ErrBadConnectLine},
		{line: "GNUTELLA CONNECT/x", wantErr: ErrBadConnectLine},
		{line: "GNUTELLA/0.6 200 OK", wantErr: ErrBadConnectLine},
		{line: "GET / HTTP/1.1", wantErr: ErrBadConnectLine},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			require.ErrorIs(t, checkConnectLine(tt.line), tt.wantErr)
		})
	}
}

func TestParseRemoteStatus(t *testing.T) {
	require := require.New(t)

	code, message, err := parseRemoteStatus("GNUTELLA/0.6 503 Service unavailable")
	require.NoError(err)
	require.Equal(503, code)
	require.Equal("Service unavailable", message)

	_, _, err = parseRemoteStatus("OK")
	require.ErrorIs(err, ErrMalformedStatusLine)

	_, _, err = parseRemoteStatus("GNUTELLA/0.6 OK")
	require.ErrorIs(err, ErrMalformedStatusLine)
}

func TestBlockParser(t *testing.T) {
	require := require.New(t)

	p := newBlockParser(DefaultMaxHeaders)
	for _, line := range []string{
		"GNUTELLA/0.6 200 OK",
		"User-Agent: LimeWire/4.9.0",
		"no colon here",
		": no name",
		"X-Try-Ultrapeers:  1.2.3.4:6346 ",
	} {
		done, err := p.feed(line)
		require.NoError(err)
		require.False(done)
	}
	done, err := p.feed("")
	require.NoError(err)
	require.True(done)

	require.Equal("GNUTELLA/0.6 200 OK", p.first)
	require.Equal([]string{headers.UserAgent, headers.TryUltrapeers}, p.headers.Names())
	require.Equal("1.2.3.4:6346", p.headers.Value(headers.TryUltrapeers))
}

func TestBlockParserHeaderLimit(t *testing.T) {
	require := require.New(t)

	p := newBlockParser(2)
	_, err := p.feed("GNUTELLA CONNECT/0.6")
	require.NoError(err)
	_, err = p.feed("A: 1")
	require.NoError(err)
	_, err = p.feed("B: 2")
	require.NoError(err)
	_, err = p.feed("C: 3")
	require.ErrorIs(err, ErrTooManyHeaders)
}

func TestNextLine(t *testing.T) {
	require := require.New(t)

	line, n, err := nextLine([]byte("200 OK\r\nrest"), 10)
	require.NoError(err)
	require.Equal("200 OK", line)
	require.Equal(8, n)

	line, n, err = nextLine([]byte("bare\nrest"), 10)
	require.NoError(err)
	require.Equal("bare", line)
	require.Equal(5, n)

	_, n, err = nextLine([]byte("partial"), 10)
	require.NoError(err)
	require.Zero(n)

	_, _, err = nextLine([]byte(strings.Repeat("a", 12)), 10)
	require.ErrorIs(err, ErrLineTooLong)

	_, _, err = nextLine([]byte(strings.Repeat("a", 11)+"\r\n"), 10)
	require.ErrorIs(err, ErrLineTooLong)

	line, _, err = nextLine([]byte(strings.Repeat("a", 10)+"\r\n"), 10)
	require.NoError(err)
	require.Len(line, 10)
}
