// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"net/netip"
	"strings"

	"github.com/luxfi/handshake/headers"
)

var (
	_ Responder = (*ClientResponder)(nil)
	_ Responder = (*LeafResponder)(nil)
	_ Responder = (*UltrapeerResponder)(nil)
)

// ClientResponder negotiates for a node that declares no role.
type ClientResponder struct {
	Settings      headers.Settings
	Policy        Policy
	Collaborators Collaborators
}

func NewClientResponder(s headers.Settings, p Policy, c Collaborators) *ClientResponder {
	return &ClientResponder{
		Settings:      s,
		Policy:        p,
		Collaborators: c,
	}
}

func (*ClientResponder) Role() Role {
	return RoleClient
}

func (r *ClientResponder) Respond(peer *Response, outgoing bool) (*Response, error) {
	if outgoing {
		return Accept(&headers.Map{}, r.Policy), nil
	}
	c := &r.Collaborators
	if c.Topology != nil && c.Topology.HasPreferredUpstream() {
		h := c.addTryHosts(&headers.Map{}, peer)
		return NewResponse(headers.StatusSlotsFull, headers.StatusShieldedMessage, h, r.Policy), nil
	}
	h := c.addTryHosts(headers.ClientHeaders(r.Settings, netip.Addr{}), peer)
	return Accept(h, r.Policy), nil
}

// LeafResponder negotiates for a node that wants to be a shielded leaf.
type LeafResponder struct {
	Settings      headers.Settings
	Policy        Policy
	Collaborators Collaborators
	// LocalePreferencing rejects outgoing connections to ultrapeers that
	// declare another locale.
	LocalePreferencing bool
}

func NewLeafResponder(s headers.Settings, p Policy, c Collaborators) *LeafResponder {
	return &LeafResponder{
		Settings:      s,
		Policy:        p,
		Collaborators: c,
	}
}

func (*LeafResponder) Role() Role {
	return RoleLeaf
}

func (r *LeafResponder) Respond(peer *Response, outgoing bool) (*Response, error) {
	if outgoing {
		return r.respondOutgoing(peer), nil
	}
	return r.respondIncoming(peer), nil
}

func (r *LeafResponder) respondOutgoing(peer *Response) *Response {
	if !peer.IsUltrapeer() {
		return NewResponse(headers.StatusSlotsFull, headers.StatusShieldedMessage, nil, r.Policy)
	}
	if r.LocalePreferencing && !strings.EqualFold(peer.Locale(), r.Settings.Locale) {
		return NewResponse(headers.StatusLocaleNoMatch, headers.StatusLocaleNoMatchMessage, nil, r.Policy)
	}
	if !r.Collaborators.Admission.AllowConnection(peer) {
		return NewResponse(headers.StatusSlotsFull, headers.StatusSlotsFullMessage, nil, r.Policy)
	}
	h := headers.New(headers.Ultrapeer, headers.False)
	return Accept(withDeflate(h, peer, r.Policy), r.Policy)
}

func (r *LeafResponder) respondIncoming(peer *Response) *Response {
	c := &r.Collaborators
	if peer.IsCrawler() {
		return c.crawlerResponse(r.Settings.UserAgent, false, r.Policy)
	}
	if !peer.IsUltrapeer() || !c.Admission.AllowConnection(peer) {
		h := c.addTryHosts(&headers.Map{}, peer)
		return NewResponse(headers.StatusSlotsFull, headers.StatusShieldedMessage, h, r.Policy)
	}
	h := headers.LeafHeaders(r.Settings, netip.Addr{})
	return Accept(c.addTryHosts(withDeflate(h, peer, r.Policy), peer), r.Policy)
}

// UltrapeerResponder negotiates for a node acting as an ultrapeer. When
// Forced is set the node never gives up the ultrapeer role.
type UltrapeerResponder struct {
	Settings      headers.Settings
	Policy        Policy
	Collaborators Collaborators
	Forced        bool
}

func NewUltrapeerResponder(s headers.Settings, p Policy, c Collaborators) *UltrapeerResponder {
	return &UltrapeerResponder{
		Settings:      s,
		Policy:        p,
		Collaborators: c,
	}
}

// NewForcedUltrapeerResponder returns a responder that always advertises the
// ultrapeer role and ignores capacity on outgoing connections.
func NewForcedUltrapeerResponder(s headers.Settings, p Policy, c Collaborators) *UltrapeerResponder {
	r := NewUltrapeerResponder(s, p, c)
	r.Forced = true
	return r
}

func (*UltrapeerResponder) Role() Role {
	return RoleUltrapeer
}

func (r *UltrapeerResponder) Respond(peer *Response, outgoing bool) (*Response, error) {
	if outgoing {
		return r.respondOutgoing(peer), nil
	}
	return r.respondIncoming(peer), nil
}

func (r *UltrapeerResponder) respondOutgoing(peer *Response) *Response {
	a := r.Collaborators.Admission
	h := &headers.Map{}
	switch {
	case r.Forced:
		h.Set(headers.Ultrapeer, headers.True)
		if peer.HasLeafGuidance() {
			return NewResponse(headers.StatusSlotsFull, headers.StatusSlotsFullMessage, h, r.Policy)
		}
	case !a.AllowConnection(peer):
		return NewResponse(headers.StatusSlotsFull, headers.StatusSlotsFullMessage, nil, r.Policy)
	case peer.HasLeafGuidance() && a.AllowLeafDemotion() && peer.IsGoodUltrapeer():
		h.Set(headers.Ultrapeer, headers.False)
	}
	return Accept(withDeflate(h, peer, r.Policy), r.Policy)
}

func (r *UltrapeerResponder) respondIncoming(peer *Response) *Response {
	c := &r.Collaborators
	if peer.IsCrawler() {
		return c.crawlerResponse(r.Settings.UserAgent, true, r.Policy)
	}

	h := headers.UltrapeerHeaders(r.Settings, netip.Addr{})
	if !r.admit(peer, h) {
		h := c.addTryHosts(&headers.Map{}, peer)
		if r.Forced {
			h.Set(headers.Ultrapeer, headers.True)
		}
		return NewResponse(headers.StatusSlotsFull, headers.StatusSlotsFullMessage, h, r.Policy)
	}
	return Accept(c.addTryHosts(withDeflate(h, peer, r.Policy), peer), r.Policy)
}

// admit decides whether an incoming peer is accepted, adding any role
// guidance to h. Leaf admission must be consulted before ultrapeer
// admission.
func (r *UltrapeerResponder) admit(peer *Response, h *headers.Map) bool {
	a := r.Collaborators.Admission
	if peer.IsLeaf() {
		return a.AllowConnectionAsLeaf(peer)
	}
	if a.AllowConnectionAsLeaf(peer) && !a.SupernodeNeeded() {
		h.Set(headers.UltrapeerNeeded, headers.False)
		return true
	}
	if a.AllowConnection(peer) {
		if a.SupernodeNeeded() {
			h.Set(headers.UltrapeerNeeded, headers.True)
		}
		return true
	}
	return false
}
