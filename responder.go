// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/luxfi/handshake/headers"
)

// Role is the topological role a responder negotiates for.
type Role int

const (
	RoleClient Role = iota
	RoleLeaf
	RoleUltrapeer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleLeaf:
		return "leaf"
	case RoleUltrapeer:
		return "ultrapeer"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole parses the String form of a role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "client":
		return RoleClient, nil
	case "leaf":
		return RoleLeaf, nil
	case "ultrapeer":
		return RoleUltrapeer, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Responder computes our side of a response round. It is consulted once per
// round with the peer's latest block. A capacity or role rejection is
// expressed through the returned status code; an error is reserved for
// failures that must abort the session.
type Responder interface {
	Respond(peer *Response, outgoing bool) (*Response, error)
	Role() Role
}

// Admission is the capacity oracle consulted before admitting a connection.
type Admission interface {
	AllowConnection(peer *Response) bool
	AllowConnectionAsLeaf(peer *Response) bool
	// SupernodeNeeded reports whether more ultrapeers are wanted.
	SupernodeNeeded() bool
	// AllowLeafDemotion reports whether we may give up the ultrapeer role.
	AllowLeafDemotion() bool
}

// Topology is the current view of established connections.
type Topology interface {
	Ultrapeers() []netip.AddrPort
	Leaves() []netip.AddrPort
	// HasPreferredUpstream reports whether a client already has an ultrapeer
	// to route through.
	HasPreferredUpstream() bool
}

// HostSource suggests alternative hosts for X-Try-Ultrapeers.
type HostSource interface {
	PreferredHosts(ultrapeers bool, locale string, n int) []netip.AddrPort
}

// Authenticator validates credentials, returning the domains they grant.
type Authenticator interface {
	Authenticate(username, password, realm string) ([]string, bool)
}

// Credentials are a username and password for a remote host.
type Credentials struct {
	Username string
	Password string
}

// CredentialCache remembers the last credentials that worked for a host.
type CredentialCache interface {
	Get(host string) (Credentials, bool)
	Put(host string, c Credentials)
}

// Prompter asks the user for credentials. It may block for up to the
// authentication timeout.
type Prompter interface {
	Prompt(host, realm string) (Credentials, bool)
}

// Collaborators groups the dependencies shared by the role responders.
type Collaborators struct {
	Admission Admission
	Topology  Topology
	// Hosts is optional. Without it no X-Try-Ultrapeers header is written.
	Hosts HostSource
}

// joinEndpoints formats up to limit endpoints as "addr:port,addr:port".
func joinEndpoints(endpoints []netip.AddrPort, limit int) string {
	if len(endpoints) > limit {
		endpoints = endpoints[:limit]
	}
	parts := make([]string, len(endpoints))
	for i, ep := range endpoints {
		parts[i] = ep.String()
	}
	return strings.Join(parts, ",")
}

// addTryHosts advertises alternative hosts of the peer's role and locale.
func (c *Collaborators) addTryHosts(h *headers.Map, peer *Response) *headers.Map {
	if c.Hosts == nil {
		return h
	}
	hosts := c.Hosts.PreferredHosts(peer.IsUltrapeer(), peer.Locale(), headers.MaxTryHosts)
	if len(hosts) == 0 {
		return h
	}
	h.Set(headers.TryUltrapeers, joinEndpoints(hosts, headers.MaxTryHosts))
	return h
}

// crawlerResponse lists our current connections for a crawler.
func (c *Collaborators) crawlerResponse(agent string, ultrapeer bool, p Policy) *Response {
	h := headers.New(
		headers.UserAgent, agent,
		headers.Ultrapeer, headers.Bool(ultrapeer),
	)
	if c.Topology != nil {
		peers, leaves := c.Topology.Ultrapeers(), c.Topology.Leaves()
		h.Set(headers.Peers, joinEndpoints(peers, len(peers)))
		h.Set(headers.Leaves, joinEndpoints(leaves, len(leaves)))
	}
	return NewResponse(headers.StatusCrawler, headers.StatusCrawlerMessage, h, p)
}

// withDeflate adds Content-Encoding: deflate when p enables compression and
// the peer accepts it.
func withDeflate(h *headers.Map, peer *Response, p Policy) *headers.Map {
	if p.EncodeDeflate && peer.AcceptsDeflate() {
		h.Set(headers.ContentEncoding, headers.DeflateValue)
	}
	return h
}
