// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hostcache remembers recently seen hosts with free connection slots
// and suggests them to peers we cannot serve.
package hostcache

import (
	"net/netip"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSize = 400

// Host is a remote node that recently advertised free slots.
type Host struct {
	Addr netip.AddrPort
	// Locale is the host's declared locale, "" if unknown.
	Locale             string
	FreeUltrapeerSlots bool
	FreeLeafSlots      bool
}

// Cache is a bounded, recency-ordered set of hosts. It is safe for concurrent
// use.
type Cache struct {
	hosts *lru.Cache[netip.AddrPort, Host]
}

func New(size int) (*Cache, error) {
	hosts, err := lru.New[netip.AddrPort, Host](size)
	if err != nil {
		return nil, err
	}
	return &Cache{hosts: hosts}, nil
}

// Add records h as the most recently seen host.
func (c *Cache) Add(h Host) {
	c.hosts.Add(h.Addr, h)
}

// Remove forgets addr, e.g. after it rejected us for lack of slots.
func (c *Cache) Remove(addr netip.AddrPort) {
	c.hosts.Remove(addr)
}

func (c *Cache) Len() int {
	return c.hosts.Len()
}

// AddFromHeader records every endpoint listed in an X-Try-Ultrapeers value
// and returns how many were valid. Listed hosts are assumed to have free
// slots of both kinds.
func (c *Cache) AddFromHeader(value string) int {
	added := 0
	for _, field := range strings.Split(value, ",") {
		addr, err := netip.ParseAddrPort(strings.TrimSpace(field))
		if err != nil || !addr.Addr().IsValid() || addr.Port() == 0 {
			continue
		}
		c.Add(Host{
			Addr:               addr,
			FreeUltrapeerSlots: true,
			FreeLeafSlots:      true,
		})
		added++
	}
	return added
}

// PreferredHosts returns up to n hosts, most recently seen first, that have
// free ultrapeer slots when ultrapeers is set and free leaf slots otherwise.
// Hosts declaring locale come before the rest.
func (c *Cache) PreferredHosts(ultrapeers bool, locale string, n int) []netip.AddrPort {
	if n <= 0 {
		return nil
	}
	values := c.hosts.Values()

	var matching, others []netip.AddrPort
	for i := len(values) - 1; i >= 0; i-- {
		h := values[i]
		free := h.FreeLeafSlots
		if ultrapeers {
			free = h.FreeUltrapeerSlots
		}
		if !free {
			continue
		}
		if locale != "" && strings.EqualFold(h.Locale, locale) {
			matching = append(matching, h.Addr)
		} else {
			others = append(others, h.Addr)
		}
	}
	hosts := append(matching, others...)
	if len(hosts) > n {
		hosts = hosts[:n]
	}
	return hosts
}
