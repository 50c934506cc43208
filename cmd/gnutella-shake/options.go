// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/luxfi/handshake"
	"github.com/luxfi/handshake/headers"
)

const (
	modeBlocking    = "blocking"
	modeNonBlocking = "nonblocking"
)

var (
	errUnknownMode   = errors.New("unknown execution mode")
	errInvalidLimits = errors.New("accept burst and max pending must be positive")
)

type user struct {
	Name     string   `yaml:"name"`
	Password string   `yaml:"password"`
	Domains  []string `yaml:"domains"`
}

type authOptions struct {
	Realm string `yaml:"realm"`
	// Users are the accounts incoming peers may authenticate as.
	Users []user `yaml:"users"`
	// Username and Password answer challenges from the peers we dial.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type logOptions struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type options struct {
	Mode           string `yaml:"mode"`
	Role           string `yaml:"role"`
	ForceUltrapeer bool   `yaml:"force_ultrapeer"`

	Listen    string `yaml:"listen"`
	UserAgent string `yaml:"user_agent"`
	Locale    string `yaml:"locale"`
	Degree    int    `yaml:"degree"`
	MaxTTL    int    `yaml:"max_ttl"`
	Deflate   bool   `yaml:"deflate"`

	ReadTimeout      time.Duration `yaml:"read_timeout"`
	AuthTimeout      time.Duration `yaml:"auth_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// AcceptRate limits incoming handshakes per second.
	AcceptRate  float64 `yaml:"accept_rate"`
	AcceptBurst int     `yaml:"accept_burst"`
	// MaxPending bounds handshakes in flight.
	MaxPending int64 `yaml:"max_pending"`

	Metrics string      `yaml:"metrics"`
	Log     logOptions  `yaml:"log"`
	Auth    authOptions `yaml:"auth"`
}

func defaultOptions() options {
	s := headers.DefaultSettings()
	return options{
		Mode:             modeBlocking,
		Role:             handshake.RoleUltrapeer.String(),
		Listen:           "0.0.0.0:6346",
		UserAgent:        s.UserAgent,
		Locale:           s.Locale,
		Degree:           s.Degree,
		MaxTTL:           s.MaxTTL,
		Deflate:          s.AcceptDeflate,
		ReadTimeout:      handshake.DefaultReadTimeout,
		AuthTimeout:      handshake.DefaultAuthTimeout,
		HandshakeTimeout: 30 * time.Second,
		AcceptRate:       20,
		AcceptBurst:      10,
		MaxPending:       64,
		Log: logOptions{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
		Auth: authOptions{
			Realm: "gnutella",
		},
	}
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Mode, "mode", o.Mode, "execution model: blocking or nonblocking")
	fs.StringVar(&o.Role, "role", o.Role, "role to negotiate: client, leaf or ultrapeer")
	fs.BoolVar(&o.ForceUltrapeer, "force-ultrapeer", o.ForceUltrapeer, "never give up the ultrapeer role")
	fs.StringVar(&o.Listen, "listen", o.Listen, "address to accept connections on and advertise")
	fs.StringVar(&o.UserAgent, "user-agent", o.UserAgent, "User-Agent to advertise")
	fs.StringVar(&o.Locale, "locale", o.Locale, "locale to advertise")
	fs.BoolVar(&o.Deflate, "deflate", o.Deflate, "offer and accept deflate compression")
	fs.DurationVar(&o.ReadTimeout, "read-timeout", o.ReadTimeout, "timeout of each header block read")
	fs.DurationVar(&o.HandshakeTimeout, "handshake-timeout", o.HandshakeTimeout, "timeout of a whole non-blocking handshake")
	fs.Float64Var(&o.AcceptRate, "accept-rate", o.AcceptRate, "incoming handshakes started per second")
	fs.Int64Var(&o.MaxPending, "max-pending", o.MaxPending, "handshakes in flight")
	fs.StringVar(&o.Metrics, "metrics", o.Metrics, "address to serve /metrics on, empty to disable")
	fs.StringVar(&o.Log.Level, "log-level", o.Log.Level, "log level")
	fs.StringVar(&o.Log.File, "log-file", o.Log.File, "rotated log file, empty to log to stderr only")
	fs.StringVar(&o.Auth.Username, "username", o.Auth.Username, "username offered when challenged")
	fs.StringVar(&o.Auth.Password, "password", o.Auth.Password, "password offered when challenged")
}

// load reads the YAML file at path into o. Flags set on the command line take
// precedence over the file.
func (o *options) load(path string, fs *pflag.FlagSet) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	changed := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	if err := yaml.Unmarshal(data, o); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (o *options) validate() error {
	switch o.Mode {
	case modeBlocking, modeNonBlocking:
	default:
		return fmt.Errorf("%w: %q", errUnknownMode, o.Mode)
	}
	if _, err := handshake.ParseRole(o.Role); err != nil {
		return err
	}
	if _, err := netip.ParseAddrPort(o.Listen); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	if o.AcceptBurst < 1 || o.MaxPending < 1 {
		return errInvalidLimits
	}
	return nil
}

func (o *options) settings() headers.Settings {
	s := headers.DefaultSettings()
	s.UserAgent = o.UserAgent
	s.Locale = o.Locale
	s.Degree = o.Degree
	s.MaxTTL = o.MaxTTL
	s.AcceptDeflate = o.Deflate
	if addr, err := netip.ParseAddrPort(o.Listen); err == nil && !addr.Addr().IsUnspecified() {
		s.ListenAddr = addr
	}
	return s
}

// bind registers the shared flags on cmd and loads the config file before
// it runs.
func bind(cmd *cobra.Command, o *options) {
	var path string
	fs := cmd.Flags()
	fs.StringVar(&path, "config", "", "YAML config file")
	o.addFlags(fs)
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := o.load(path, cmd.Flags()); err != nil {
			return err
		}
		return o.validate()
	}
}
