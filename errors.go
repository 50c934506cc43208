// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"errors"
	"fmt"

	"github.com/luxfi/handshake/headers"
)

// I/O failures. These are fatal to the session and are never retried by the
// handshaker.
var (
	ErrMalformedStatusLine = errors.New("malformed status line")
	ErrBadConnectLine      = errors.New("bad connect line")
	ErrTooManyHeaders      = errors.New("too many headers")
	ErrLineTooLong         = errors.New("header line too long")
	ErrClosed              = errors.New("handshake closed")
)

// RejectError is returned when the handshake completed mechanically but a
// status other than OK was exchanged.
type RejectError struct {
	// Local is true when this node sent the non-OK status.
	Local bool
	// Code is the status code that was exchanged, or -1 if none applies.
	Code    int
	Message string
}

func (e *RejectError) Error() string {
	if e == nil {
		return ""
	}
	side := "remote"
	if e.Local {
		side = "local"
	}
	return fmt.Sprintf("%s rejection %d: %s", side, e.Code, e.Message)
}

var (
	// ErrRemoteRejected is returned when the peer answered 503.
	ErrRemoteRejected = &RejectError{
		Local:   false,
		Code:    headers.StatusSlotsFull,
		Message: "remote node has no slots available",
	}
	// ErrLocalRejected is returned when we answered 503.
	ErrLocalRejected = &RejectError{
		Local:   true,
		Code:    headers.StatusSlotsFull,
		Message: "rejected by local connection policy",
	}
	// ErrLocaleRejected is returned when we answered 577.
	ErrLocaleRejected = &RejectError{
		Local:   true,
		Code:    headers.StatusLocaleNoMatch,
		Message: "locale preference does not match",
	}
	// ErrUnresolvedRemote is returned when the peer kept the exchange going
	// past the attempt limit.
	ErrUnresolvedRemote = &RejectError{
		Local:   false,
		Code:    -1,
		Message: "remote node did not settle the handshake",
	}
	// ErrUnresolvedLocal is returned when we kept the exchange going past the
	// attempt limit.
	ErrUnresolvedLocal = &RejectError{
		Local:   true,
		Code:    -1,
		Message: "local node did not settle the handshake",
	}
)

// NewRemoteUnknown returns the error for an unexpected status sent by the peer.
func NewRemoteUnknown(code int) *RejectError {
	if code == headers.StatusSlotsFull {
		return ErrRemoteRejected
	}
	return &RejectError{
		Local:   false,
		Code:    code,
		Message: fmt.Sprintf("remote node sent unknown status %d", code),
	}
}

// NewLocalUnknown returns the error for an unexpected status sent by us.
func NewLocalUnknown(code int) *RejectError {
	switch code {
	case headers.StatusSlotsFull:
		return ErrLocalRejected
	case headers.StatusLocaleNoMatch:
		return ErrLocaleRejected
	}
	return &RejectError{
		Local:   true,
		Code:    code,
		Message: fmt.Sprintf("local node sent unknown status %d", code),
	}
}

// Outcome is the terminal variant of a handshake.
type Outcome int

const (
	// OutcomeFailed is an I/O failure: timeout, premature close, or malformed
	// input.
	OutcomeFailed Outcome = iota
	// OutcomeAccepted means both sides exchanged OK.
	OutcomeAccepted
	// OutcomeRejected means a non-OK status was exchanged.
	OutcomeRejected
	// OutcomeCrawler means we answered a crawler and ended the session.
	OutcomeCrawler
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCrawler:
		return "crawler"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Classify maps the error returned by a handshake to its outcome. A nil error
// is classified as accepted.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeAccepted
	}
	var rej *RejectError
	if errors.As(err, &rej) {
		return OutcomeRejected
	}
	return OutcomeFailed
}
