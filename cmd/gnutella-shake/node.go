// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/luxfi/handshake"
	"github.com/luxfi/handshake/admission"
	"github.com/luxfi/handshake/auth"
	"github.com/luxfi/handshake/headers"
	"github.com/luxfi/handshake/hostcache"
	"github.com/luxfi/handshake/reactor"
)

const metricsNamespace = "gnutella"

var _ handshake.Prompter = (*staticPrompter)(nil)

// staticPrompter answers every challenge with the configured credentials.
type staticPrompter struct {
	creds handshake.Credentials
}

func (p *staticPrompter) Prompt(string, string) (handshake.Credentials, bool) {
	return p.creds, p.creds.Username != ""
}

// node holds everything a handshake needs, whichever execution model runs
// it.
type node struct {
	log      *zap.Logger
	opts     *options
	role     handshake.Role
	settings headers.Settings
	config   *handshake.Config

	manager       *admission.Manager
	hosts         *hostcache.Cache
	creds         *auth.Cache
	authenticator handshake.Authenticator
	prompter      *staticPrompter
	metrics       *handshake.Metrics

	// loop drives the handshakes in non-blocking mode and is nil otherwise.
	loop   *reactor.Loop
	client handshake.Upgrader
	server handshake.Upgrader
}

// newNode wires the engine. Handshake internals log through engineLog; the
// node's own records go to logger.
func newNode(logger *zap.Logger, engineLog log.Logger, o *options) (*node, error) {
	role, err := handshake.ParseRole(o.Role)
	if err != nil {
		return nil, err
	}
	hosts, err := hostcache.New(hostcache.DefaultSize)
	if err != nil {
		return nil, err
	}
	metrics, err := handshake.NewMetrics(metricsNamespace, metric.NewRegistry())
	if err != nil {
		return nil, err
	}

	mc := admission.DefaultConfig()
	mc.Ultrapeer = role == handshake.RoleUltrapeer
	mc.ForceUltrapeer = o.ForceUltrapeer
	mc.Locale = o.Locale

	policy := handshake.DefaultPolicy()
	policy.EncodeDeflate = o.Deflate
	policy.DefaultLocale = o.Locale

	cfg := handshake.DefaultConfig()
	cfg.Log = engineLog
	cfg.Metrics = metrics
	cfg.Hosts = hosts
	cfg.Policy = policy
	cfg.ReadTimeout = o.ReadTimeout
	cfg.AuthTimeout = o.AuthTimeout

	n := &node{
		log:      logger,
		opts:     o,
		role:     role,
		settings: o.settings(),
		config:   cfg,
		manager:  admission.NewManager(engineLog, mc),
		hosts:    hosts,
		creds:    auth.NewCache(auth.DefaultCacheSize, auth.DefaultCacheTTL),
		prompter: &staticPrompter{
			creds: handshake.Credentials{
				Username: o.Auth.Username,
				Password: o.Auth.Password,
			},
		},
		metrics: metrics,
	}
	if len(o.Auth.Users) > 0 {
		a := auth.NewStaticAuthenticator(o.Auth.Realm, 0)
		for _, u := range o.Auth.Users {
			if err := a.AddUser(u.Name, u.Password, u.Domains...); err != nil {
				return nil, err
			}
		}
		n.authenticator = a
	}
	if o.Mode == modeNonBlocking {
		n.loop = reactor.NewLoop(engineLog, o.HandshakeTimeout)
	}
	n.client = handshake.NewClientUpgrader(
		cfg,
		func(net.Conn) *headers.Map {
			return n.request()
		},
		func(conn net.Conn) handshake.Responder {
			return n.responder(conn)
		},
	)
	n.server = handshake.NewServerUpgrader(cfg, n.responder)
	return n, nil
}

func (n *node) collaborators() handshake.Collaborators {
	return handshake.Collaborators{
		Admission: n.manager,
		Topology:  n.manager,
		Hosts:     n.hosts,
	}
}

// request is the block we open outgoing connections with.
func (n *node) request() *headers.Map {
	switch n.role {
	case handshake.RoleClient:
		return headers.ClientHeaders(n.settings, netip.Addr{})
	case handshake.RoleLeaf:
		return headers.LeafHeaders(n.settings, netip.Addr{})
	default:
		return headers.UltrapeerHeaders(n.settings, netip.Addr{})
	}
}

// responder returns a fresh responder for conn. Authentication state is per
// connection, so responders are never shared.
func (n *node) responder(conn net.Conn) handshake.Responder {
	var next handshake.Responder
	c := n.collaborators()
	switch {
	case n.role == handshake.RoleClient:
		next = handshake.NewClientResponder(n.settings, n.config.Policy, c)
	case n.role == handshake.RoleLeaf:
		next = handshake.NewLeafResponder(n.settings, n.config.Policy, c)
	case n.opts.ForceUltrapeer:
		next = handshake.NewForcedUltrapeerResponder(n.settings, n.config.Policy, c)
	default:
		next = handshake.NewUltrapeerResponder(n.settings, n.config.Policy, c)
	}
	return &handshake.AuthResponder{
		Next:          next,
		Policy:        n.config.Policy,
		Realm:         n.opts.Auth.Realm,
		Authenticator: n.authenticator,
		Host:          conn.RemoteAddr().String(),
		Request:       n.request(),
		Cache:         n.creds,
		Prompter:      n.prompter,
	}
}

// shake runs the handshake over conn with the configured execution model and
// returns the post-handshake connection. The returned connection is nil
// unless the peer was accepted.
func (n *node) shake(ctx context.Context, conn net.Conn, outgoing bool) (net.Conn, handshake.Result, error) {
	if n.loop == nil {
		if outgoing {
			return n.client.Upgrade(ctx, conn)
		}
		return n.server.Upgrade(ctx, conn)
	}

	var request *headers.Map
	if outgoing {
		request = n.request()
	}
	c := <-n.loop.Register(conn, n.config, outgoing, request, n.responder(conn))
	return c.Conn, c.Result, c.Err
}

// kind is the relationship an accepted peer has to us.
func (n *node) kind(peer *handshake.Response) admission.Kind {
	switch {
	case n.role != handshake.RoleUltrapeer:
		return admission.KindUpstream
	case peer.IsLeaf():
		return admission.KindLeaf
	default:
		return admission.KindPeer
	}
}

// serve records an accepted connection and holds it until the peer closes
// it or ctx is cancelled.
func (n *node) serve(ctx context.Context, conn net.Conn, res handshake.Result) {
	defer conn.Close()

	addr, err := netip.ParseAddrPort(conn.RemoteAddr().String())
	if err != nil {
		n.log.Debug("unusable remote address", zap.Error(err))
		return
	}
	if err := n.manager.Add(addr, n.kind(res.Received), res.Received); err != nil {
		n.log.Debug("failed to record connection", zap.Error(err))
		return
	}
	defer n.manager.Remove(addr)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	read, err := io.Copy(io.Discard, conn)
	n.log.Info("connection closed",
		zap.Stringer("remote", addr),
		zap.Int64("bytes", read),
		zap.Error(err),
	)
}

// serveMetrics serves /metrics on addr until ctx is cancelled.
func (n *node) serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		_ = srv.Close()
	})
	defer stop()

	n.log.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func logResult(logger *zap.Logger, remote net.Addr, res handshake.Result, err error) {
	fields := []zap.Field{
		zap.Stringer("remote", remote),
		zap.Stringer("outcome", res.Outcome),
	}
	if res.Received != nil {
		fields = append(fields, zap.String("userAgent", res.Received.UserAgent()))
	}
	if err != nil {
		logger.Info("handshake failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("handshake finished", fields...)
}
