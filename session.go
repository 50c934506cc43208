// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"net/netip"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/handshake/headers"
)

// step is the next transport operation a session asks its driver for.
type step int

const (
	stepWrite    step = iota // write session.pending
	stepRead                 // read one status line and header block
	stepReadLine             // read a single line, then finish as a crawler
	stepDone
)

type phase int

const (
	phaseRequest  phase = iota // connect line and request headers
	phaseResponse              // first response, ours or theirs
	phaseFinal                 // confirmation of the response
	phaseCrawler
)

// session is the transport-independent state of one handshake. Both the
// blocking and non-blocking drivers feed it complete blocks and write what it
// hands back, so the two produce identical wire behavior.
type session struct {
	cfg       *Config
	log       log.Logger
	outgoing  bool
	responder Responder
	remote    netip.Addr
	request   *headers.Map

	phase    phase
	attempts int
	pending  []byte

	// Guards the fields below, which diagnostics may read mid-session.
	lock     sync.Mutex
	read     *headers.Map
	written  *headers.Map
	sent     *Response
	received *Response

	start   time.Time
	endOnce sync.Once
	outcome Outcome
}

func newSession(
	cfg *Config,
	outgoing bool,
	request *headers.Map,
	responder Responder,
	remote netip.Addr,
) *session {
	cfg = cfg.withDefaults()
	return &session{
		cfg:       cfg,
		log:       cfg.Log,
		outgoing:  outgoing,
		responder: responder,
		remote:    remote,
		request:   request.Clone(),
		read:      &headers.Map{},
		written:   &headers.Map{},
		start:     time.Now(),
	}
}

// begin returns the first operation of the session.
func (s *session) begin() step {
	if !s.outgoing {
		return stepRead
	}
	h := s.request.Clone()
	if s.remote.IsValid() {
		h.Set(headers.RemoteIP, s.remote.String())
	}
	s.lock.Lock()
	s.written.Merge(h)
	s.lock.Unlock()
	s.setPending(headers.ConnectLine, h)
	return stepWrite
}

func (s *session) setPending(first string, h *headers.Map) {
	s.pending = formatBlock(first, h)
	s.log.Debug("writing handshake block",
		log.String("direction", directionString(s.outgoing)),
		log.Stringer("remote", s.remote),
		log.String("line", first),
		log.Stringer("headers", h),
	)
}

// wrote is called once session.pending has been fully written.
func (s *session) wrote() (step, error) {
	s.recordBytes(false, len(s.pending))
	s.pending = nil

	if s.outgoing {
		if s.phase == phaseRequest {
			s.phase = phaseResponse
			return stepRead, nil
		}
		sent := s.Sent()
		if !sent.Accepted() {
			return stepDone, NewLocalUnknown(sent.StatusCode())
		}
		if sent.Final() {
			return s.finish(OutcomeAccepted), nil
		}
		// We answered a challenge and expect the peer's verdict.
		s.phase = phaseResponse
		return stepRead, nil
	}

	sent := s.Sent()
	switch code := sent.StatusCode(); {
	case code == headers.StatusCrawler:
		s.phase = phaseCrawler
		return stepReadLine, nil
	case code != headers.StatusOK && code != headers.StatusUnauthorized:
		return stepDone, NewLocalUnknown(code)
	default:
		s.phase = phaseFinal
		return stepRead, nil
	}
}

// readBlock is called with each complete block read from the peer.
func (s *session) readBlock(first string, h *headers.Map, n int) (step, error) {
	s.recordBytes(true, n)
	s.log.Debug("read handshake block",
		log.String("direction", directionString(s.outgoing)),
		log.Stringer("remote", s.remote),
		log.String("line", first),
		log.Stringer("headers", h),
	)

	if !s.outgoing && s.phase == phaseRequest {
		if err := checkConnectLine(first); err != nil {
			return stepDone, err
		}
		s.setReceived(headers.StatusOK, headers.StatusOKMessage, h, false)
		return s.respond()
	}

	code, message, err := parseRemoteStatus(first)
	if err != nil {
		return stepDone, err
	}

	if s.outgoing {
		s.setReceived(code, message, h, false)
		if code != headers.StatusOK && code != headers.StatusUnauthorized {
			return stepDone, NewRemoteUnknown(code)
		}
		return s.respond()
	}

	// The responder sees everything an incoming peer has sent so far, since
	// its later blocks only add to the request.
	s.setReceived(code, message, h, true)
	switch {
	case code != headers.StatusOK:
		return stepDone, NewRemoteUnknown(code)
	case s.Sent().Accepted():
		return s.finish(OutcomeAccepted), nil
	default:
		// The peer answered our challenge.
		return s.respond()
	}
}

// readLine is called with the single line a crawler sends after our reply.
func (s *session) readLine(n int) step {
	s.recordBytes(true, n)
	return s.finish(OutcomeCrawler)
}

// setReceived records a block read from the peer. When merged is set the
// resulting response carries every header read so far.
func (s *session) setReceived(code int, message string, h *headers.Map, merged bool) {
	s.lock.Lock()
	s.read.Merge(h)
	block := h
	if merged {
		block = s.read
	}
	s.received = NewResponse(code, message, block, s.cfg.Policy)
	s.lock.Unlock()

	if v, ok := h.Get(headers.TryUltrapeers); ok && s.cfg.Hosts != nil {
		s.cfg.Hosts.AddFromHeader(v)
	}
}

// respond consults the responder for our next block.
func (s *session) respond() (step, error) {
	s.attempts++
	if s.attempts > s.cfg.MaxAttempts {
		if s.outgoing {
			return stepDone, ErrUnresolvedRemote
		}
		return stepDone, ErrUnresolvedLocal
	}

	ours, err := s.responder.Respond(s.Received(), s.outgoing)
	if err != nil {
		return stepDone, err
	}
	if !s.outgoing && s.remote.IsValid() && ours.StatusCode() != headers.StatusCrawler {
		ours = ours.WithHeader(headers.RemoteIP, s.remote.String())
	}

	s.lock.Lock()
	s.sent = ours
	s.written.Merge(ours.headers)
	s.lock.Unlock()

	if s.outgoing {
		s.phase = phaseFinal
	} else {
		s.phase = phaseResponse
	}
	s.setPending(statusLine(ours), ours.headers)
	return stepWrite, nil
}

// readTimeout bounds the next read. A peer answering our challenge may need
// to ask its user for credentials.
func (s *session) readTimeout() time.Duration {
	if sent := s.Sent(); !s.outgoing && sent != nil && sent.StatusCode() == headers.StatusUnauthorized {
		return s.cfg.AuthTimeout
	}
	return s.cfg.ReadTimeout
}

func (s *session) finish(o Outcome) step {
	s.outcome = o
	return stepDone
}

// end records the terminal state of the session. Only the first call has an
// effect.
func (s *session) end(err error) {
	s.endOnce.Do(func() {
		if err != nil {
			s.outcome = Classify(err)
		}
		elapsed := time.Since(s.start)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.Observe(s.outgoing, s.responder.Role(), s.outcome, elapsed)
		}
		direction := directionString(s.outgoing)
		switch s.outcome {
		case OutcomeAccepted:
			s.log.Debug("handshake finished",
				log.String("direction", direction),
				log.Stringer("remote", s.remote),
				log.Stringer("role", s.responder.Role()),
				log.Stringer("elapsed", elapsed),
			)
		case OutcomeCrawler:
			s.log.Debug("answered crawler",
				log.Stringer("remote", s.remote),
			)
		default:
			s.log.Debug("could not establish peer connection",
				log.String("direction", direction),
				log.Stringer("remote", s.remote),
				log.Stringer("outcome", s.outcome),
				log.Err(err),
			)
		}
	})
}

func (s *session) recordBytes(read bool, n int) {
	if s.cfg.Metrics != nil && n > 0 {
		s.cfg.Metrics.HeaderBytes(read, n)
	}
}

func (s *session) result(remaining []byte) Result {
	s.lock.Lock()
	defer s.lock.Unlock()

	return Result{
		Outcome:   s.outcome,
		Sent:      s.sent,
		Received:  s.received,
		Remaining: remaining,
	}
}

// Sent returns the last response we wrote, nil before the first one.
func (s *session) Sent() *Response {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.sent
}

// Received returns the last block the peer sent, nil before the first one.
func (s *session) Received() *Response {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.received
}

// HeadersRead returns a copy of every header the peer has sent.
func (s *session) HeadersRead() *headers.Map {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.read.Clone()
}

// HeadersWritten returns a copy of every header we have sent.
func (s *session) HeadersWritten() *headers.Map {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.written.Clone()
}
