// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package headers holds the handshake header vocabulary, an ordered header
// map, and the role-specific header sets a node advertises during the
// connection handshake.
package headers

// Header names exchanged during the handshake.
const (
	UserAgent              = "User-Agent"
	ListenIP               = "Listen-IP"
	RemoteIP               = "Remote-IP"
	QueryRouting           = "X-Query-Routing"
	UltrapeerQueryRouting  = "X-Ultrapeer-Query-Routing"
	Ultrapeer              = "X-Ultrapeer"
	UltrapeerNeeded        = "X-Ultrapeer-Needed"
	MaxTTL                 = "X-Max-TTL"
	DynamicQuerying        = "X-Dynamic-Querying"
	ProbeQueries           = "X-Ext-Probes"
	Requeries              = "X-Requeries"
	Degree                 = "X-Degree"
	LocalePref             = "X-Locale-Pref"
	AcceptEncoding         = "Accept-Encoding"
	ContentEncoding        = "Content-Encoding"
	PongCaching            = "Pong-Caching"
	GUESS                  = "X-Guess"
	Crawler                = "Crawler"
	Peers                  = "Peers"
	Leaves                 = "Leaves"
	TryUltrapeers          = "X-Try-Ultrapeers"
	GGEP                   = "GGEP"
	VendorMessage          = "Vendor-Message"
	Version                = "X-Version"
	TempConnection         = "X-Temp-Connection"
	Username               = "X-Username"
	Password               = "X-Password"
	DomainsAuthenticated   = "X-Domains-Authenticated"
	AuthenticationRealm    = "X-Auth-Realm"
	DeflateValue           = "deflate"
	DefaultLocale          = "en"
	DefaultUserAgentVendor = "LimeWire"
)

// Canonical values written on the wire. Reads are case-insensitive.
const (
	True  = "True"
	False = "False"

	QueryRoutingVersion          = "0.1"
	UltrapeerQueryRoutingVersion = "0.1"
	DynamicQueryVersion          = "0.1"
	ProbeQueriesVersion          = "0.1"
	PongCachingVersion           = "0.1"
	GUESSVersion                 = "0.1"
	GGEPVersion                  = "0.5"
	VendorMessageVersion         = "0.1"
	CrawlerVersion               = "0.1"

	// DefaultMaxTTL is advertised in X-Max-TTL.
	DefaultMaxTTL = 3
	// DefaultUltrapeerDegree is advertised in X-Degree by ultrapeers.
	DefaultUltrapeerDegree = 32
	// MaxTryHosts bounds the number of endpoints in an X-Try-Ultrapeers value.
	MaxTryHosts = 10
)

// Protocol lines.
const (
	Connect         = "CONNECT/"
	ConnectLine     = "GNUTELLA CONNECT/0.6"
	ProtocolVersion = "GNUTELLA/0.6"
	CRLF            = "\r\n"
)

// Status codes and messages.
const (
	StatusOK        = 200
	StatusOKMessage = "OK"
	// StatusAuthenticatingMessage accompanies a 200 that is not yet final.
	StatusAuthenticatingMessage = "AUTHENTICATING"

	StatusUnauthorized        = 401
	StatusUnauthorizedMessage = "Unauthorized"

	StatusSlotsFull         = 503
	StatusSlotsFullMessage  = "Service unavailable"
	StatusShieldedMessage   = "I am a shielded leaf node"
	StatusDefaultBadMessage = "Service Not Available"

	StatusLocaleNoMatch        = 577
	StatusLocaleNoMatchMessage = "Service Not Available"

	StatusCrawler        = 593
	StatusCrawlerMessage = "Hi"
)

// Bool returns the canonical wire encoding of b.
func Bool(b bool) string {
	if b {
		return True
	}
	return False
}
