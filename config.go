// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"time"

	"github.com/luxfi/log"
)

const (
	DefaultReadTimeout   = 8 * time.Second
	DefaultAuthTimeout   = 2 * time.Minute
	DefaultMaxHeaders    = 30
	DefaultMaxLineLength = 4096
	DefaultMaxAttempts   = 5
)

// HostLearner records hosts advertised by peers in X-Try-Ultrapeers.
type HostLearner interface {
	AddFromHeader(value string) int
}

type Config struct {
	Log log.Logger
	// Metrics receives one observation per finished handshake. May be nil.
	Metrics StatsRecorder
	// Hosts learns alternative hosts advertised by peers. May be nil.
	Hosts  HostLearner
	Policy Policy

	// Bounds each blocking read of a header block.
	ReadTimeout time.Duration
	// Replaces ReadTimeout while we wait for a peer to answer our 401.
	AuthTimeout time.Duration

	MaxHeaders    int
	MaxLineLength int
	// MaxAttempts bounds the number of response rounds, including
	// authentication retries.
	MaxAttempts int
}

func DefaultConfig() *Config {
	return &Config{
		Log:           log.NewNoOpLogger(),
		Policy:        DefaultPolicy(),
		ReadTimeout:   DefaultReadTimeout,
		AuthTimeout:   DefaultAuthTimeout,
		MaxHeaders:    DefaultMaxHeaders,
		MaxLineLength: DefaultMaxLineLength,
		MaxAttempts:   DefaultMaxAttempts,
	}
}

// withDefaults returns a copy of c with every unset field filled in.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	cp := *c
	if cp.Log == nil {
		cp.Log = d.Log
	}
	// EncodeDeflate is left as given; false is a meaningful setting.
	if cp.Policy.DefaultLocale == "" {
		cp.Policy.DefaultLocale = d.Policy.DefaultLocale
	}
	if cp.Policy.Vendor == "" {
		cp.Policy.Vendor = d.Policy.Vendor
	}
	if cp.ReadTimeout <= 0 {
		cp.ReadTimeout = d.ReadTimeout
	}
	if cp.AuthTimeout <= 0 {
		cp.AuthTimeout = d.AuthTimeout
	}
	if cp.MaxHeaders <= 0 {
		cp.MaxHeaders = d.MaxHeaders
	}
	if cp.MaxLineLength <= 0 {
		cp.MaxLineLength = d.MaxLineLength
	}
	if cp.MaxAttempts <= 0 {
		cp.MaxAttempts = d.MaxAttempts
	}
	return &cp
}
