// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"errors"
	"time"

	"github.com/luxfi/metric"
)

const (
	directionLabel = "direction"
	roleLabel      = "role"
	outcomeLabel   = "outcome"
	ioLabel        = "io"

	incomingLabel = "incoming"
	outgoingLabel = "outgoing"
	readLabel     = "read"
	writtenLabel  = "written"
)

var (
	_ StatsRecorder = (*Metrics)(nil)

	handshakeLabels = []string{directionLabel, roleLabel, outcomeLabel}
	ioLabels        = []string{ioLabel}
	directionLabels = []string{directionLabel}
)

// StatsRecorder is the statistics sink a handshake reports to. It must be
// safe for concurrent use.
type StatsRecorder interface {
	// Observe records a finished handshake.
	Observe(outgoing bool, role Role, outcome Outcome, elapsed time.Duration)
	// HeaderBytes records n bytes of handshake blocks read or written.
	HeaderBytes(read bool, n int)
}

type Metrics struct {
	Handshakes metric.CounterVec // direction + role + outcome
	Bytes      metric.CounterVec // io
	Time       metric.CounterVec // direction
}

func NewMetrics(namespace string, registerer metric.Registerer) (*Metrics, error) {
	m := &Metrics{
		Handshakes: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "handshakes",
				Help:      "number of finished handshakes",
			},
			handshakeLabels,
		),
		Bytes: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "header_bytes",
				Help:      "number of handshake bytes read and written",
			},
			ioLabels,
		),
		Time: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "handshake_time",
				Help:      "time spent completing handshakes (s)",
			},
			directionLabels,
		),
	}
	return m, errors.Join()
}

func (m *Metrics) Observe(outgoing bool, role Role, outcome Outcome, elapsed time.Duration) {
	direction := directionString(outgoing)
	m.Handshakes.With(metric.Labels{
		directionLabel: direction,
		roleLabel:      role.String(),
		outcomeLabel:   outcome.String(),
	}).Inc()
	m.Time.With(metric.Labels{
		directionLabel: direction,
	}).Add(elapsed.Seconds())
}

func (m *Metrics) HeaderBytes(read bool, n int) {
	io := writtenLabel
	if read {
		io = readLabel
	}
	m.Bytes.With(metric.Labels{
		ioLabel: io,
	}).Add(float64(n))
}

func directionString(outgoing bool) string {
	if outgoing {
		return outgoingLabel
	}
	return incomingLabel
}
