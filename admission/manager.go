// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package admission decides whether a handshaking peer fits in the node's
// connection slots, and tracks the connections that were admitted.
package admission

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/luxfi/log"

	"github.com/luxfi/handshake"
)

const supernodeNeededRatio = 0.9

var (
	_ handshake.Admission = (*Manager)(nil)
	_ handshake.Topology  = (*Manager)(nil)

	errDuplicateConnection = errors.New("duplicate connection")
	errUnknownKind         = errors.New("unknown connection kind")
)

// Kind is the relationship of an admitted connection to this node.
type Kind int

const (
	// KindUpstream is an ultrapeer shielding us while we are a leaf.
	KindUpstream Kind = iota
	// KindLeaf is a leaf we shield.
	KindLeaf
	// KindPeer is a fellow ultrapeer.
	KindPeer
)

func (k Kind) String() string {
	switch k {
	case KindUpstream:
		return "upstream"
	case KindLeaf:
		return "leaf"
	case KindPeer:
		return "peer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

type Config struct {
	// Ultrapeer is true while we are capable of and acting as an ultrapeer.
	Ultrapeer bool
	// ForceUltrapeer keeps us in ultrapeer mode regardless of guidance.
	ForceUltrapeer bool

	// PreferredConnections is the number of ultrapeers we keep: fellow
	// ultrapeers when we are one, upstreams when we are a leaf.
	PreferredConnections int
	MaxLeaves            int
	// ReservedForeignLeaves leaf slots are kept for other vendors.
	ReservedForeignLeaves int
	// MinForeignPeers and MaxForeignPeers bound the share of ultrapeer slots
	// given to other vendors.
	MinForeignPeers float64
	MaxForeignPeers float64

	LocalePreferencing bool
	Locale             string
	// LocaleSlots ultrapeer slots are kept for peers of our locale.
	LocaleSlots int

	// BannedAgents are lowercase User-Agent fragments we never connect to.
	BannedAgents []string
	// DemotionLimit is the number of demotion requests ignored before we
	// agree to become a leaf.
	DemotionLimit int
}

func DefaultConfig() Config {
	return Config{
		PreferredConnections:  32,
		MaxLeaves:             30,
		ReservedForeignLeaves: 2,
		MinForeignPeers:       0.1,
		MaxForeignPeers:       0.2,
		LocalePreferencing:    true,
		Locale:                "en",
		LocaleSlots:           2,
		BannedAgents:          []string{"morpheus"},
	}
}

type connection struct {
	addr    netip.AddrPort
	kind    Kind
	foreign bool
	locale  string
}

// Manager is the capacity oracle and topology view of a node. It is safe for
// concurrent use.
type Manager struct {
	log log.Logger

	lock        sync.RWMutex
	config      Config
	connections map[netip.AddrPort]connection
	leafTries   int
}

func NewManager(logger log.Logger, config Config) *Manager {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &Manager{
		log:         logger,
		config:      config,
		connections: make(map[netip.AddrPort]connection),
	}
}

// Add records an admitted connection described by the peer's headers.
func (m *Manager) Add(addr netip.AddrPort, kind Kind, peer *handshake.Response) error {
	if kind < KindUpstream || kind > KindPeer {
		return fmt.Errorf("%w: %d", errUnknownKind, kind)
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.connections[addr]; ok {
		return fmt.Errorf("%w: %s", errDuplicateConnection, addr)
	}
	m.connections[addr] = connection{
		addr:    addr,
		kind:    kind,
		foreign: !peer.IsSelfVendor(),
		locale:  peer.Locale(),
	}
	m.log.Debug("connection added",
		log.Stringer("addr", addr),
		log.Stringer("kind", kind),
	)
	return nil
}

// Remove forgets a connection. It reports whether it was known.
func (m *Manager) Remove(addr netip.AddrPort) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.connections[addr]; !ok {
		return false
	}
	delete(m.connections, addr)
	return true
}

// SetUltrapeer switches between ultrapeer and leaf mode.
func (m *Manager) SetUltrapeer(ultrapeer bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.config.Ultrapeer = ultrapeer
}

// SetDemotionLimit resets the count of demotion requests and sets how many
// are ignored before we agree to become a leaf.
func (m *Manager) SetDemotionLimit(limit int) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.config.DemotionLimit = limit
	m.leafTries = 0
}

func (m *Manager) AllowConnection(peer *handshake.Response) bool {
	return m.allow(peer, !peer.IsUltrapeer())
}

func (m *Manager) AllowConnectionAsLeaf(peer *handshake.Response) bool {
	return m.allow(peer, true)
}

// allow applies the slot policy. asLeaf treats the peer as a prospective leaf
// even if it declared itself an ultrapeer.
func (m *Manager) allow(peer *handshake.Response, asLeaf bool) bool {
	// Peers that declare no role speak an older protocol.
	if !peer.IsLeaf() && !peer.IsUltrapeer() {
		return false
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	c := m.counts()
	switch {
	case m.isLeaf(c):
		if !peer.IsUltrapeer() || !peer.IsGoodUltrapeer() {
			return false
		}
		return c.upstreams < m.config.PreferredConnections
	case peer.IsLeaf() || asLeaf:
		return m.allowLeaf(peer, c)
	case peer.IsGoodUltrapeer():
		return m.allowPeer(peer, c)
	default:
		return false
	}
}

func (m *Manager) allowLeaf(peer *handshake.Response, c counts) bool {
	if !m.allowAgent(peer) {
		return false
	}
	reserved := m.config.ReservedForeignLeaves
	if !peer.IsSelfVendor() && c.leaves < m.config.MaxLeaves && c.foreignLeaves < reserved {
		return true
	}
	if !peer.IsGoodLeaf() {
		return false
	}
	return c.leaves+max(0, reserved-c.foreignLeaves) < m.config.MaxLeaves
}

func (m *Manager) allowPeer(peer *handshake.Response, c counts) bool {
	if !m.allowAgent(peer) {
		return false
	}
	preferred := m.config.PreferredConnections
	if preferred <= 0 {
		return false
	}

	localeSlots := 0
	if m.config.LocalePreferencing {
		if strings.EqualFold(peer.Locale(), m.config.Locale) && c.localePeers < m.config.LocaleSlots {
			return true
		}
		localeSlots = max(0, m.config.LocaleSlots-c.localePeers)
	}

	if !peer.IsSelfVendor() {
		ratio := float64(c.foreignPeers) / float64(preferred)
		return ratio < m.config.MaxForeignPeers
	}
	minForeign := int(m.config.MinForeignPeers * float64(preferred))
	return c.peers+max(0, minForeign-c.foreignPeers)+localeSlots < preferred
}

// allowAgent rejects peers that hide their vendor or run a banned one.
func (m *Manager) allowAgent(peer *handshake.Response) bool {
	if peer.IsSelfVendor() {
		return true
	}
	agent := strings.ToLower(peer.UserAgent())
	if agent == "" {
		return false
	}
	for _, banned := range m.config.BannedAgents {
		if strings.Contains(agent, banned) {
			return false
		}
	}
	return true
}

// SupernodeNeeded reports whether our leaf slots are nearly full.
func (m *Manager) SupernodeNeeded() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return float64(m.counts().leaves) >= supernodeNeededRatio*float64(m.config.MaxLeaves)
}

// AllowLeafDemotion records a request to become a leaf and reports whether we
// agree to it.
func (m *Manager) AllowLeafDemotion() bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.leafTries++
	if m.config.ForceUltrapeer {
		return false
	}
	c := m.counts()
	if m.config.Ultrapeer && c.upstreams == 0 && c.peers+c.leaves > 0 {
		return false
	}
	return m.leafTries >= m.config.DemotionLimit
}

func (m *Manager) Ultrapeers() []netip.AddrPort {
	return m.addrs(func(k Kind) bool {
		return k == KindUpstream || k == KindPeer
	})
}

func (m *Manager) Leaves() []netip.AddrPort {
	return m.addrs(func(k Kind) bool {
		return k == KindLeaf
	})
}

// HasPreferredUpstream reports whether we are shielded by an ultrapeer.
func (m *Manager) HasPreferredUpstream() bool {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.counts().upstreams > 0
}

func (m *Manager) addrs(include func(Kind) bool) []netip.AddrPort {
	m.lock.RLock()
	defer m.lock.RUnlock()

	var addrs []netip.AddrPort
	for addr, c := range m.connections {
		if include(c.kind) {
			addrs = append(addrs, addr)
		}
	}
	slices.SortFunc(addrs, netip.AddrPort.Compare)
	return addrs
}

type counts struct {
	upstreams     int
	leaves        int
	foreignLeaves int
	peers         int
	foreignPeers  int
	localePeers   int
}

// counts must be called with the lock held.
func (m *Manager) counts() counts {
	var c counts
	for _, conn := range m.connections {
		switch conn.kind {
		case KindUpstream:
			c.upstreams++
		case KindLeaf:
			c.leaves++
			if conn.foreign {
				c.foreignLeaves++
			}
		case KindPeer:
			c.peers++
			if conn.foreign {
				c.foreignPeers++
			}
			if strings.EqualFold(conn.locale, m.config.Locale) {
				c.localePeers++
			}
		}
	}
	return c
}

// isLeaf must be called with the lock held.
func (m *Manager) isLeaf(c counts) bool {
	return !m.config.Ultrapeer || c.upstreams > 0
}
