// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package reactor drives many non-blocking handshakes from a single
// goroutine.
package reactor

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/handshake"
	"github.com/luxfi/handshake/deflate"
	"github.com/luxfi/handshake/headers"
)

// DefaultTimeout bounds a whole handshake driven by a Loop.
const DefaultTimeout = 30 * time.Second

// Completion is delivered once per registered handshake.
type Completion struct {
	// Conn carries the post-handshake stream. It is nil unless the handshake
	// was accepted.
	Conn   net.Conn
	Result handshake.Result
	Err    error
}

type session struct {
	channel   *channel
	handshake *handshake.NonBlocking
	done      chan Completion
	queued    atomic.Bool
	finished  bool
}

// Loop processes registered handshakes on the goroutine calling Run.
type Loop struct {
	log     log.Logger
	timeout time.Duration

	lock     sync.Mutex
	ready    []*session
	sessions map[*session]struct{}
	signal   chan struct{}
}

func NewLoop(logger log.Logger, timeout time.Duration) *Loop {
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Loop{
		log:      logger,
		timeout:  timeout,
		sessions: make(map[*session]struct{}),
		signal:   make(chan struct{}, 1),
	}
}

// Register starts a handshake over conn. The returned channel receives
// exactly one completion.
func (l *Loop) Register(
	conn net.Conn,
	cfg *handshake.Config,
	outgoing bool,
	request *headers.Map,
	responder handshake.Responder,
) <-chan Completion {
	s := &session{
		done: make(chan Completion, 1),
	}
	if err := conn.SetDeadline(time.Now().Add(l.timeout)); err != nil {
		_ = conn.Close()
		s.done <- Completion{Err: err}
		return s.done
	}
	s.channel = newChannel(conn, func() {
		l.schedule(s)
	})
	s.handshake = handshake.NewNonBlocking(s.channel, cfg, outgoing, request, responder)

	l.lock.Lock()
	l.sessions[s] = struct{}{}
	l.lock.Unlock()

	s.channel.start()
	l.schedule(s)
	return s.done
}

// schedule queues s for processing. It never blocks.
func (l *Loop) schedule(s *session) {
	if !s.queued.CompareAndSwap(false, true) {
		return
	}
	l.lock.Lock()
	l.ready = append(l.ready, s)
	l.lock.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Run processes handshakes until ctx is cancelled. Handshakes still running
// at that point are aborted.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.abort(ctx.Err())
			return ctx.Err()
		case <-l.signal:
		}

		l.lock.Lock()
		ready := l.ready
		l.ready = nil
		l.lock.Unlock()

		for _, s := range ready {
			s.queued.Store(false)
			l.process(s)
		}
	}
}

func (l *Loop) process(s *session) {
	if s.finished {
		return
	}
	done, err := s.handshake.Process()
	if !done {
		return
	}
	l.complete(s, err)
}

func (l *Loop) complete(s *session, err error) {
	s.finished = true
	l.lock.Lock()
	delete(l.sessions, s)
	l.lock.Unlock()

	c := Completion{
		Result: s.handshake.Result(),
		Err:    err,
	}
	if err == nil && c.Result.Outcome == handshake.OutcomeAccepted {
		c.Conn, c.Err = l.release(s)
	}
	s.done <- c
}

// release hands the connection back for the post-handshake stream.
func (l *Loop) release(s *session) (net.Conn, error) {
	conn, leftover, err := s.channel.release()
	if err != nil {
		l.log.Debug("failed to release connection", log.Err(err))
		_ = s.channel.Close()
		return nil, err
	}
	res := s.handshake.Result()
	wrapped, err := deflate.Wrap(
		conn,
		append(res.Remaining, leftover...),
		res.Received.IsDeflateEnabled(),
		res.Sent.IsDeflateEnabled(),
	)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return wrapped, nil
}

func (l *Loop) abort(err error) {
	l.lock.Lock()
	sessions := make([]*session, 0, len(l.sessions))
	for s := range l.sessions {
		sessions = append(sessions, s)
	}
	l.lock.Unlock()

	for _, s := range sessions {
		if s.finished {
			continue
		}
		_ = s.handshake.Close()
		l.complete(s, err)
	}
	if len(sessions) > 0 {
		l.log.Debug("aborted handshakes", log.Int("count", len(sessions)))
	}
}
