// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/luxfi/handshake"
)

func TestCache(t *testing.T) {
	require := require.New(t)

	c := NewCache(DefaultCacheSize, DefaultCacheTTL)
	_, ok := c.Get("1.2.3.4")
	require.False(ok)

	creds := handshake.Credentials{Username: "alice", Password: "secret"}
	c.Put("1.2.3.4", creds)
	got, ok := c.Get("1.2.3.4")
	require.True(ok)
	require.Equal(creds, got)

	c.Forget("1.2.3.4")
	_, ok = c.Get("1.2.3.4")
	require.False(ok)
}

func TestCacheExpires(t *testing.T) {
	require := require.New(t)

	c := NewCache(DefaultCacheSize, 10*time.Millisecond)
	c.Put("host", handshake.Credentials{Username: "bob"})
	require.Eventually(func() bool {
		_, ok := c.Get("host")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator("lime", bcrypt.MinCost)
	require.NoError(t, a.AddUser("alice", "secret", "music", "video"))
	require.ErrorIs(t, a.AddUser("", "secret"), errEmptyUsername)
	require.Error(t, a.AddHash("carol", []byte("not a hash")))

	tests := []struct {
		name     string
		username string
		password string
		realm    string
		domains  []string
		ok       bool
	}{
		{name: "valid", username: "alice", password: "secret", realm: "lime", domains: []string{"music", "video"}, ok: true},
		{name: "no realm given", username: "alice", password: "secret", domains: []string{"music", "video"}, ok: true},
		{name: "wrong password", username: "alice", password: "nope", realm: "lime"},
		{name: "unknown user", username: "bob", password: "secret", realm: "lime"},
		{name: "wrong realm", username: "alice", password: "secret", realm: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			domains, ok := a.Authenticate(tt.username, tt.password, tt.realm)
			require.Equal(tt.ok, ok)
			require.Equal(tt.domains, domains)
		})
	}
}
