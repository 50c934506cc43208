// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshaketest

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/handshake"
	"github.com/luxfi/handshake/headers"
)

var (
	_ handshake.Responder     = (*Responder)(nil)
	_ handshake.Prompter      = (*Prompter)(nil)
	_ handshake.StatsRecorder = (*Stats)(nil)
)

// NewConfig returns a handshake config with short timeouts.
func NewConfig(testing.TB) *handshake.Config {
	cfg := handshake.DefaultConfig()
	cfg.Log = log.NewNoOpLogger()
	cfg.ReadTimeout = 5 * time.Second
	cfg.AuthTimeout = 5 * time.Second
	return cfg
}

// Settings returns node settings with a fixed listen address.
func Settings() headers.Settings {
	s := headers.DefaultSettings()
	s.ListenAddr = netip.MustParseAddrPort("10.0.0.1:6346")
	return s
}

// GoodUltrapeer returns the headers of an ultrapeer that classifies as good.
func GoodUltrapeer() *headers.Map {
	return headers.UltrapeerHeaders(Settings(), netip.Addr{})
}

// GoodLeaf returns the headers of a leaf that classifies as good.
func GoodLeaf() *headers.Map {
	h := headers.LeafHeaders(Settings(), netip.Addr{})
	h.Set(headers.UltrapeerQueryRouting, headers.UltrapeerQueryRoutingVersion)
	h.Set(headers.Degree, "32")
	return h
}

// Crawler returns the headers a crawler opens with.
func Crawler() *headers.Map {
	return headers.New(
		headers.UserAgent, "Crawler/1.0",
		headers.Crawler, headers.CrawlerVersion,
	)
}

// Responder answers every round with F and counts the calls.
type Responder struct {
	R handshake.Role
	F func(peer *handshake.Response, outgoing bool) (*handshake.Response, error)

	lock  sync.Mutex
	peers []*handshake.Response
}

func (r *Responder) Role() handshake.Role {
	return r.R
}

func (r *Responder) Respond(peer *handshake.Response, outgoing bool) (*handshake.Response, error) {
	r.lock.Lock()
	r.peers = append(r.peers, peer)
	r.lock.Unlock()
	return r.F(peer, outgoing)
}

// Peers returns every response passed to Respond.
func (r *Responder) Peers() []*handshake.Response {
	r.lock.Lock()
	defer r.lock.Unlock()

	return append([]*handshake.Response(nil), r.peers...)
}

// Accepting returns a responder that accepts with h.
func Accepting(h *headers.Map) *Responder {
	return &Responder{
		F: func(*handshake.Response, bool) (*handshake.Response, error) {
			return handshake.Accept(h, handshake.DefaultPolicy()), nil
		},
	}
}

// Rejecting returns a responder that answers code and message.
func Rejecting(code int, message string) *Responder {
	return &Responder{
		F: func(*handshake.Response, bool) (*handshake.Response, error) {
			return handshake.NewResponse(code, message, nil, handshake.DefaultPolicy()), nil
		},
	}
}

// Prompter returns fixed credentials and counts prompts.
type Prompter struct {
	Credentials handshake.Credentials
	OK          bool

	lock  sync.Mutex
	calls int
}

func (p *Prompter) Prompt(string, string) (handshake.Credentials, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.calls++
	return p.Credentials, p.OK
}

func (p *Prompter) Calls() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.calls
}

// Authenticator accepts a single username and password.
type Authenticator struct {
	Username string
	Password string
	Domains  []string
}

func (a *Authenticator) Authenticate(username, password, _ string) ([]string, bool) {
	if username != a.Username || password != a.Password {
		return nil, false
	}
	return a.Domains, true
}

// Observation is one finished handshake recorded by Stats.
type Observation struct {
	Outgoing bool
	Role     handshake.Role
	Outcome  handshake.Outcome
}

// Stats records observations in memory.
type Stats struct {
	lock         sync.Mutex
	observations []Observation
	read         int
	written      int
}

func (s *Stats) Observe(outgoing bool, role handshake.Role, outcome handshake.Outcome, _ time.Duration) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.observations = append(s.observations, Observation{
		Outgoing: outgoing,
		Role:     role,
		Outcome:  outcome,
	})
}

func (s *Stats) HeaderBytes(read bool, n int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if read {
		s.read += n
	} else {
		s.written += n
	}
}

func (s *Stats) Observations() []Observation {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]Observation(nil), s.observations...)
}

// Bytes returns the header bytes read and written.
func (s *Stats) Bytes() (read int, written int) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.read, s.written
}
