// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"errors"
	"slices"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/luxfi/handshake"
)

var (
	_ handshake.Authenticator = (*StaticAuthenticator)(nil)

	errEmptyUsername = errors.New("empty username")
)

type account struct {
	hash    []byte
	domains []string
}

// StaticAuthenticator checks credentials against a fixed set of accounts
// whose passwords are stored as bcrypt hashes.
type StaticAuthenticator struct {
	realm string
	cost  int

	lock     sync.RWMutex
	accounts map[string]account
}

// NewStaticAuthenticator returns an authenticator for realm. An empty realm
// accepts any realm.
func NewStaticAuthenticator(realm string, cost int) *StaticAuthenticator {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &StaticAuthenticator{
		realm:    realm,
		cost:     cost,
		accounts: make(map[string]account),
	}
}

// AddUser hashes password and grants username the given domains.
func (a *StaticAuthenticator) AddUser(username, password string, domains ...string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return err
	}
	return a.AddHash(username, hash, domains...)
}

// AddHash registers an account from a precomputed bcrypt hash.
func (a *StaticAuthenticator) AddHash(username string, hash []byte, domains ...string) error {
	if username == "" {
		return errEmptyUsername
	}
	if _, err := bcrypt.Cost(hash); err != nil {
		return err
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	a.accounts[username] = account{
		hash:    slices.Clone(hash),
		domains: slices.Clone(domains),
	}
	return nil
}

func (a *StaticAuthenticator) Authenticate(username, password, realm string) ([]string, bool) {
	if a.realm != "" && realm != "" && realm != a.realm {
		return nil, false
	}

	a.lock.RLock()
	acct, ok := a.accounts[username]
	a.lock.RUnlock()
	if !ok {
		return nil, false
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return nil, false
	}
	return slices.Clone(acct.domains), true
}
