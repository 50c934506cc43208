// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"net"
	"net/netip"
)

// Result is the terminal state of a handshake. Sent and Received are the last
// blocks exchanged and are populated on rejection as well as success. For an
// incoming session Received carries every header the peer sent.
type Result struct {
	Outcome  Outcome
	Sent     *Response
	Received *Response
	// Remaining holds bytes the peer sent after its last header block. They
	// belong to the post-handshake stream.
	Remaining []byte
}

type remoteAddresser interface {
	RemoteAddr() net.Addr
}

// remoteAddr returns the observed address of the peer behind v, if v exposes
// one.
func remoteAddr(v any) netip.Addr {
	ra, ok := v.(remoteAddresser)
	if !ok {
		return netip.Addr{}
	}
	addr := ra.RemoteAddr()
	if addr == nil {
		return netip.Addr{}
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.AddrPort().Addr().Unmap()
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return netip.Addr{}
	}
	return ap.Addr().Unmap()
}
