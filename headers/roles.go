// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package headers

import (
	"net/netip"
	"strconv"
)

// Settings are the live node settings a role header set is built from.
type Settings struct {
	// UserAgent is written verbatim, e.g. "LimeWire/4.9.0".
	UserAgent string
	// ListenAddr is the address we accept incoming connections on. It is
	// omitted when invalid.
	ListenAddr netip.AddrPort
	Locale     string
	// Degree is the number of intra-ultrapeer connections we maintain.
	Degree int
	MaxTTL int
	// AcceptDeflate advertises that we can read a deflated stream.
	AcceptDeflate bool
	GUESS         bool
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		UserAgent:     DefaultUserAgentVendor + "/4.9.0",
		Locale:        DefaultLocale,
		Degree:        DefaultUltrapeerDegree,
		MaxTTL:        DefaultMaxTTL,
		AcceptDeflate: true,
	}
}

// ClientHeaders returns the header set of a plain client that declares no role.
// remote is the address we observe for the peer; it is omitted when invalid.
func ClientHeaders(s Settings, remote netip.Addr) *Map {
	m := &Map{}
	m.Set(UserAgent, s.UserAgent)
	if s.ListenAddr.IsValid() {
		m.Set(ListenIP, s.ListenAddr.String())
	}
	if remote.IsValid() {
		m.Set(RemoteIP, remote.String())
	}
	m.Set(QueryRouting, QueryRoutingVersion)
	m.Set(GGEP, GGEPVersion)
	m.Set(VendorMessage, VendorMessageVersion)
	m.Set(PongCaching, PongCachingVersion)
	if s.GUESS {
		m.Set(GUESS, GUESSVersion)
	}
	m.Set(MaxTTL, strconv.Itoa(s.MaxTTL))
	m.Set(DynamicQuerying, DynamicQueryVersion)
	m.Set(ProbeQueries, ProbeQueriesVersion)
	m.Set(Requeries, False)
	if s.Locale != "" {
		m.Set(LocalePref, s.Locale)
	}
	if s.AcceptDeflate {
		m.Set(AcceptEncoding, DeflateValue)
	}
	return m
}

// LeafHeaders returns the header set of a node that wants to be a shielded leaf.
func LeafHeaders(s Settings, remote netip.Addr) *Map {
	m := ClientHeaders(s, remote)
	m.Set(Ultrapeer, False)
	return m
}

// UltrapeerHeaders returns the header set of a node acting as an ultrapeer.
func UltrapeerHeaders(s Settings, remote netip.Addr) *Map {
	m := ClientHeaders(s, remote)
	m.Set(Ultrapeer, True)
	m.Set(UltrapeerQueryRouting, UltrapeerQueryRoutingVersion)
	m.Set(Degree, strconv.Itoa(s.Degree))
	return m
}

// Authenticated returns a copy of base carrying the given credentials.
func Authenticated(base *Map, username, password string) *Map {
	m := base.Clone()
	m.Set(Username, username)
	m.Set(Password, password)
	return m
}
