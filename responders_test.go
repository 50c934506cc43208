// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake_test

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/handshake"
	"github.com/luxfi/handshake/admission/admissionmock"
	"github.com/luxfi/handshake/handshaketest"
	"github.com/luxfi/handshake/headers"
)

var (
	hostA = netip.MustParseAddrPort("1.1.1.1:6346")
	hostB = netip.MustParseAddrPort("2.2.2.2:6347")
)

type mocks struct {
	admission *admissionmock.Admission
	topology  *admissionmock.Topology
	hosts     *admissionmock.HostSource
}

func newMocks(t *testing.T) (mocks, handshake.Collaborators) {
	ctrl := gomock.NewController(t)
	m := mocks{
		admission: admissionmock.NewAdmission(ctrl),
		topology:  admissionmock.NewTopology(ctrl),
		hosts:     admissionmock.NewHostSource(ctrl),
	}
	return m, handshake.Collaborators{
		Admission: m.admission,
		Topology:  m.topology,
		Hosts:     m.hosts,
	}
}

func accept(h *headers.Map) *handshake.Response {
	return handshake.Accept(h, handshake.DefaultPolicy())
}

func TestUltrapeerGuidesLeafCapablePeer(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(true)
	m.admission.EXPECT().SupernodeNeeded().Return(false)
	// AllowConnection would answer false, but is never consulted.
	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(false).Times(0)
	m.hosts.EXPECT().PreferredHosts(true, headers.DefaultLocale, headers.MaxTryHosts).Return([]netip.AddrPort{hostA})

	r := handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	resp, err := r.Respond(accept(handshaketest.GoodUltrapeer()), false)
	require.NoError(err)
	require.True(resp.Accepted())
	require.Equal(headers.False, resp.Header(headers.UltrapeerNeeded))
	require.Equal(headers.True, resp.Header(headers.Ultrapeer))
	require.Equal(hostA.String(), resp.XTryUltrapeers())
	require.Equal(headers.DeflateValue, resp.Header(headers.ContentEncoding))
}

func TestUltrapeerAcceptsPeerWhenSupernodeNeeded(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	gomock.InOrder(
		m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(false),
		m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true),
		m.admission.EXPECT().SupernodeNeeded().Return(true),
	)
	m.hosts.EXPECT().PreferredHosts(true, headers.DefaultLocale, headers.MaxTryHosts).Return(nil)

	r := handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	resp, err := r.Respond(accept(handshaketest.GoodUltrapeer()), false)
	require.NoError(err)
	require.True(resp.Accepted())
	require.Equal(headers.True, resp.Header(headers.UltrapeerNeeded))
}

func TestUltrapeerRejectsWithTryHosts(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(false)
	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(false)
	m.hosts.EXPECT().PreferredHosts(true, "ja", headers.MaxTryHosts).Return([]netip.AddrPort{hostA, hostB})

	h := handshaketest.GoodUltrapeer()
	h.Set(headers.LocalePref, "ja")
	r := handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	resp, err := r.Respond(accept(h), false)
	require.NoError(err)
	require.Equal(headers.StatusSlotsFull, resp.StatusCode())
	require.Equal(headers.StatusSlotsFullMessage, resp.StatusMessage())
	require.Equal("1.1.1.1:6346,2.2.2.2:6347", resp.XTryUltrapeers())
	require.False(resp.HasHeader(headers.Ultrapeer))
}

func TestUltrapeerAdmitsLeaf(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(true)
	m.hosts.EXPECT().PreferredHosts(false, headers.DefaultLocale, headers.MaxTryHosts).Return(nil)

	r := handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	resp, err := r.Respond(accept(handshaketest.GoodLeaf()), false)
	require.NoError(err)
	require.True(resp.Accepted())
	require.False(resp.HasHeader(headers.UltrapeerNeeded))
}

func TestUltrapeerAnswersCrawler(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	m.topology.EXPECT().Ultrapeers().Return([]netip.AddrPort{hostA, hostB})
	m.topology.EXPECT().Leaves().Return([]netip.AddrPort{hostB})

	r := handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	resp, err := r.Respond(accept(handshaketest.Crawler()), false)
	require.NoError(err)
	require.Equal(headers.StatusCrawler, resp.StatusCode())
	require.Equal(headers.StatusCrawlerMessage, resp.StatusMessage())
	require.Equal("1.1.1.1:6346,2.2.2.2:6347", resp.Header(headers.Peers))
	require.Equal("2.2.2.2:6347", resp.Header(headers.Leaves))
	require.Equal(headers.True, resp.Header(headers.Ultrapeer))
	require.Equal(handshaketest.Settings().UserAgent, resp.UserAgent())
}

func TestUltrapeerOutgoing(t *testing.T) {
	guided := func() *headers.Map {
		h := handshaketest.GoodUltrapeer()
		h.Set(headers.UltrapeerNeeded, headers.False)
		return h
	}

	tests := []struct {
		name          string
		forced        bool
		peer          *headers.Map
		setup         func(m mocks)
		wantCode      int
		wantUltrapeer string
	}{
		{
			name: "no slots",
			peer: handshaketest.GoodUltrapeer(),
			setup: func(m mocks) {
				m.admission.EXPECT().AllowConnection(gomock.Any()).Return(false)
			},
			wantCode: headers.StatusSlotsFull,
		},
		{
			name: "plain accept",
			peer: handshaketest.GoodUltrapeer(),
			setup: func(m mocks) {
				m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true)
			},
			wantCode: headers.StatusOK,
		},
		{
			name: "demoted",
			peer: guided(),
			setup: func(m mocks) {
				m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true)
				m.admission.EXPECT().AllowLeafDemotion().Return(true)
			},
			wantCode:      headers.StatusOK,
			wantUltrapeer: headers.False,
		},
		{
			name: "demotion refused",
			peer: guided(),
			setup: func(m mocks) {
				m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true)
				m.admission.EXPECT().AllowLeafDemotion().Return(false)
			},
			wantCode: headers.StatusOK,
		},
		{
			name:          "forced",
			forced:        true,
			peer:          handshaketest.GoodUltrapeer(),
			setup:         func(mocks) {},
			wantCode:      headers.StatusOK,
			wantUltrapeer: headers.True,
		},
		{
			name:          "forced with leaf guidance",
			forced:        true,
			peer:          guided(),
			setup:         func(mocks) {},
			wantCode:      headers.StatusSlotsFull,
			wantUltrapeer: headers.True,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			m, c := newMocks(t)
			tt.setup(m)

			r := handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
			r.Forced = tt.forced
			resp, err := r.Respond(accept(tt.peer), true)
			require.NoError(err)
			require.Equal(tt.wantCode, resp.StatusCode())
			require.Equal(tt.wantUltrapeer, resp.Header(headers.Ultrapeer))
		})
	}
}

func TestLeafOutgoing(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	r := handshake.NewLeafResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	r.LocalePreferencing = true

	resp, err := r.Respond(accept(handshaketest.GoodLeaf()), true)
	require.NoError(err)
	require.Equal(headers.StatusSlotsFull, resp.StatusCode())
	require.Equal(headers.StatusShieldedMessage, resp.StatusMessage())

	ja := handshaketest.GoodUltrapeer()
	ja.Set(headers.LocalePref, "ja")
	resp, err = r.Respond(accept(ja), true)
	require.NoError(err)
	require.Equal(headers.StatusLocaleNoMatch, resp.StatusCode())

	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(false)
	resp, err = r.Respond(accept(handshaketest.GoodUltrapeer()), true)
	require.NoError(err)
	require.Equal(headers.StatusSlotsFull, resp.StatusCode())
	require.Equal(headers.StatusSlotsFullMessage, resp.StatusMessage())

	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true)
	resp, err = r.Respond(accept(handshaketest.GoodUltrapeer()), true)
	require.NoError(err)
	require.True(resp.Accepted())
	require.Equal(headers.False, resp.Header(headers.Ultrapeer))
	require.Equal(headers.DeflateValue, resp.Header(headers.ContentEncoding))
}

func TestLeafOutgoingLocaleIgnoresCase(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	r := handshake.NewLeafResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	r.LocalePreferencing = true

	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true)
	h := handshaketest.GoodUltrapeer()
	h.Set(headers.LocalePref, "EN")
	resp, err := r.Respond(accept(h), true)
	require.NoError(err)
	require.True(resp.Accepted())
}

func TestResponderPolicyDisablesDeflate(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	policy := handshake.DefaultPolicy()
	policy.EncodeDeflate = false

	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true)
	leaf := handshake.NewLeafResponder(handshaketest.Settings(), policy, c)
	resp, err := leaf.Respond(accept(handshaketest.GoodUltrapeer()), true)
	require.NoError(err)
	require.True(resp.Accepted())
	require.False(resp.HasHeader(headers.ContentEncoding))

	m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(true)
	m.hosts.EXPECT().PreferredHosts(false, headers.DefaultLocale, headers.MaxTryHosts).Return(nil)
	up := handshake.NewUltrapeerResponder(handshaketest.Settings(), policy, c)
	resp, err = up.Respond(accept(handshaketest.GoodLeaf()), false)
	require.NoError(err)
	require.True(resp.Accepted())
	require.False(resp.HasHeader(headers.ContentEncoding))
}

func TestForcedUltrapeerRejectsIncoming(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(false)
	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(false)
	m.hosts.EXPECT().PreferredHosts(true, headers.DefaultLocale, headers.MaxTryHosts).Return(nil)

	r := handshake.NewForcedUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	resp, err := r.Respond(accept(handshaketest.GoodUltrapeer()), false)
	require.NoError(err)
	require.Equal(headers.StatusSlotsFull, resp.StatusCode())
	require.Equal(headers.True, resp.Header(headers.Ultrapeer))
	require.False(resp.HasXTryUltrapeers())
}

func TestLeafIncoming(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	r := handshake.NewLeafResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)

	m.hosts.EXPECT().PreferredHosts(false, headers.DefaultLocale, headers.MaxTryHosts).Return([]netip.AddrPort{hostA})
	resp, err := r.Respond(accept(handshaketest.GoodLeaf()), false)
	require.NoError(err)
	require.Equal(headers.StatusSlotsFull, resp.StatusCode())
	require.Equal(headers.StatusShieldedMessage, resp.StatusMessage())
	require.Equal(hostA.String(), resp.XTryUltrapeers())

	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(true)
	m.hosts.EXPECT().PreferredHosts(true, headers.DefaultLocale, headers.MaxTryHosts).Return(nil)
	resp, err = r.Respond(accept(handshaketest.GoodUltrapeer()), false)
	require.NoError(err)
	require.True(resp.Accepted())
	require.Equal(headers.False, resp.Header(headers.Ultrapeer))
	// Nothing to advertise, so no empty X-Try-Ultrapeers.
	require.False(resp.HasXTryUltrapeers())
}

func TestLeafAnswersCrawler(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	m.topology.EXPECT().Ultrapeers().Return([]netip.AddrPort{hostA})
	m.topology.EXPECT().Leaves().Return(nil)

	r := handshake.NewLeafResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	resp, err := r.Respond(accept(handshaketest.Crawler()), false)
	require.NoError(err)
	require.Equal(headers.StatusCrawler, resp.StatusCode())
	require.Equal(headers.False, resp.Header(headers.Ultrapeer))
	require.Equal(hostA.String(), resp.Header(headers.Peers))
	require.True(resp.HasHeader(headers.Leaves))
}

func TestClientResponder(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	r := handshake.NewClientResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	require.Equal(handshake.RoleClient, r.Role())

	resp, err := r.Respond(accept(handshaketest.GoodUltrapeer()), true)
	require.NoError(err)
	require.True(resp.Accepted())
	require.Zero(resp.Headers().Len())

	m.topology.EXPECT().HasPreferredUpstream().Return(true)
	m.hosts.EXPECT().PreferredHosts(true, headers.DefaultLocale, headers.MaxTryHosts).Return([]netip.AddrPort{hostA})
	resp, err = r.Respond(accept(handshaketest.GoodUltrapeer()), false)
	require.NoError(err)
	require.Equal(headers.StatusSlotsFull, resp.StatusCode())
	require.Equal(headers.StatusShieldedMessage, resp.StatusMessage())

	m.topology.EXPECT().HasPreferredUpstream().Return(false)
	m.hosts.EXPECT().PreferredHosts(true, headers.DefaultLocale, headers.MaxTryHosts).Return(nil)
	resp, err = r.Respond(accept(handshaketest.GoodUltrapeer()), false)
	require.NoError(err)
	require.True(resp.Accepted())
	require.False(resp.HasHeader(headers.Ultrapeer))
	require.Equal(handshaketest.Settings().UserAgent, resp.UserAgent())
}

func TestCollaboratorsWithoutHosts(t *testing.T) {
	require := require.New(t)

	m, c := newMocks(t)
	c.Hosts = nil
	m.admission.EXPECT().AllowConnectionAsLeaf(gomock.Any()).Return(false)
	m.admission.EXPECT().AllowConnection(gomock.Any()).Return(false)

	r := handshake.NewUltrapeerResponder(handshaketest.Settings(), handshake.DefaultPolicy(), c)
	resp, err := r.Respond(accept(handshaketest.GoodUltrapeer()), false)
	require.NoError(err)
	require.Equal(headers.StatusSlotsFull, resp.StatusCode())
	require.False(resp.HasXTryUltrapeers())
}

func TestParseRole(t *testing.T) {
	require := require.New(t)

	for _, role := range []handshake.Role{handshake.RoleClient, handshake.RoleLeaf, handshake.RoleUltrapeer} {
		got, err := handshake.ParseRole(role.String())
		require.NoError(err)
		require.Equal(role, got)
	}
	_, err := handshake.ParseRole("supernode")
	require.Error(err)
}
