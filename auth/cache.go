// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auth provides the credential store and authenticator used by the
// handshake's authentication exchange.
package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/luxfi/handshake"
)

const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = 24 * time.Hour
)

var _ handshake.CredentialCache = (*Cache)(nil)

// Cache remembers the last credentials that were accepted by each remote
// host. Entries expire after a fixed TTL. It is safe for concurrent use.
type Cache struct {
	entries *expirable.LRU[string, handshake.Credentials]
}

func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{
		entries: expirable.NewLRU[string, handshake.Credentials](size, nil, ttl),
	}
}

func (c *Cache) Get(host string) (handshake.Credentials, bool) {
	return c.entries.Get(host)
}

func (c *Cache) Put(host string, creds handshake.Credentials) {
	c.entries.Add(host, creds)
}

// Forget drops the credentials of host.
func (c *Cache) Forget(host string) {
	c.entries.Remove(host)
}
