// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"strings"

	"github.com/luxfi/handshake/headers"
)

var _ Responder = (*AuthResponder)(nil)

// AuthResponder wraps another responder with username/password
// authentication. It holds per-session state and must not be shared between
// sessions.
type AuthResponder struct {
	Next   Responder
	Policy Policy
	Realm  string

	// Authenticator checks credentials offered by incoming peers. When nil,
	// incoming peers are not challenged.
	Authenticator Authenticator

	// Host keys the credential cache for outgoing sessions.
	Host string
	// Request is the block we opened the outgoing session with. It is resent
	// with credentials attached when the peer challenges us.
	Request  *headers.Map
	Cache    CredentialCache
	Prompter Prompter

	authenticated bool
	offered       bool
	triedCache    bool
	pending       Credentials
}

func (a *AuthResponder) Role() Role {
	return a.Next.Role()
}

func (a *AuthResponder) Respond(peer *Response, outgoing bool) (*Response, error) {
	if outgoing {
		return a.respondOutgoing(peer)
	}
	return a.respondIncoming(peer)
}

func (a *AuthResponder) respondIncoming(peer *Response) (*Response, error) {
	if a.Authenticator == nil || a.authenticated {
		return a.Next.Respond(peer, false)
	}

	username := peer.Header(headers.Username)
	if username == "" {
		return a.challenge(), nil
	}
	domains, ok := a.Authenticator.Authenticate(username, peer.Header(headers.Password), a.Realm)
	if !ok {
		return a.challenge(), nil
	}
	a.authenticated = true

	resp, err := a.Next.Respond(peer, false)
	if err != nil || !resp.Accepted() {
		return resp, err
	}
	return resp.WithHeader(headers.DomainsAuthenticated, strings.Join(domains, ",")), nil
}

func (a *AuthResponder) challenge() *Response {
	h := &headers.Map{}
	if a.Realm != "" {
		h.Set(headers.AuthenticationRealm, a.Realm)
	}
	return NewResponse(headers.StatusUnauthorized, headers.StatusUnauthorizedMessage, h, a.Policy)
}

func (a *AuthResponder) respondOutgoing(peer *Response) (*Response, error) {
	if peer.StatusCode() == headers.StatusUnauthorized {
		creds, ok := a.credentials(peer.Header(headers.AuthenticationRealm))
		if !ok {
			return NewResponse(headers.StatusUnauthorized, headers.StatusUnauthorizedMessage, nil, a.Policy), nil
		}
		a.offered = true
		a.pending = creds
		h := headers.Authenticated(a.Request, creds.Username, creds.Password)
		return NewResponse(headers.StatusOK, headers.StatusAuthenticatingMessage, h, a.Policy), nil
	}
	if a.offered && peer.Accepted() && a.Cache != nil {
		a.Cache.Put(a.Host, a.pending)
	}
	return a.Next.Respond(peer, true)
}

// credentials returns the cached credentials for the host on the first
// challenge, and asks the prompter afterwards.
func (a *AuthResponder) credentials(realm string) (Credentials, bool) {
	if !a.triedCache && a.Cache != nil {
		a.triedCache = true
		if c, ok := a.Cache.Get(a.Host); ok {
			return c, true
		}
	}
	if a.Prompter == nil {
		return Credentials{}, false
	}
	return a.Prompter.Prompt(a.Host, realm)
}
