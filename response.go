// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/luxfi/handshake/headers"
)

const (
	defaultDegree = 6
	defaultMaxTTL = 4

	highDegree    = 15
	goodMaxTTL    = 5
	minVersion    = 0.1
	legacyMajor   = 3
	legacyMinor   = 4
	versionTokens = 3
)

// Policy holds the local settings that influence how a received header block
// is interpreted.
type Policy struct {
	// EncodeDeflate enables compressing the post-handshake stream.
	EncodeDeflate bool
	// DefaultLocale is assumed when a peer does not declare one.
	DefaultLocale string
	// Vendor is the User-Agent prefix of our own implementation family.
	Vendor string
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		EncodeDeflate: true,
		DefaultLocale: headers.DefaultLocale,
		Vendor:        headers.DefaultUserAgentVendor,
	}
}

// Response is an immutable status line plus header block, with capability
// predicates derived once at construction. It is safe to share between
// goroutines.
type Response struct {
	statusCode    int
	statusMessage string
	headers       *headers.Map
	policy        Policy

	degree         int
	maxTTL         byte
	highDegree     bool
	ultrapeerQRP   bool
	dynamicQuery   bool
	probeQueries   bool
	noRequerying   bool
	selfVendor     bool
	legacyVendor   bool
	goodUltrapeer  bool
	goodLeaf       bool
	ultrapeer      bool
	leaf           bool
	deflateEnabled bool
	acceptsDeflate bool
	pongCaching    bool
	guess          bool
	crawler        bool
	leafGuidance   bool
	locale         string
}

// NewResponse returns a response holding a copy of h.
func NewResponse(code int, message string, h *headers.Map, p Policy) *Response {
	r := &Response{
		statusCode:    code,
		statusMessage: message,
		headers:       h.Clone(),
		policy:        p,
	}
	r.derive()
	return r
}

// Accept returns a 200 OK response holding a copy of h.
func Accept(h *headers.Map, p Policy) *Response {
	return NewResponse(headers.StatusOK, headers.StatusOKMessage, h, p)
}

// ParseResponse builds a response from a received status line of the form
// "<code> <message>".
func ParseResponse(statusLine string, h *headers.Map, p Policy) (*Response, error) {
	code, message, err := parseStatus(statusLine)
	if err != nil {
		return nil, err
	}
	return NewResponse(code, message, h, p), nil
}

func parseStatus(line string) (int, string, error) {
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedStatusLine, line)
	}
	code, err := strconv.Atoi(strings.TrimSpace(line[:i]))
	if err != nil || code < 0 {
		return 0, "", fmt.Errorf("%w: could not parse status code: %q", ErrMalformedStatusLine, line)
	}
	return code, strings.TrimSpace(line[i:]), nil
}

func (r *Response) derive() {
	h := r.headers
	r.degree = intValue(h, headers.Degree, defaultDegree)
	r.highDegree = r.degree >= highDegree
	r.ultrapeerQRP = versionAtLeast(h, headers.UltrapeerQueryRouting, minVersion)
	r.maxTTL = byteValue(h, headers.MaxTTL, defaultMaxTTL)
	r.dynamicQuery = versionAtLeast(h, headers.DynamicQuerying, minVersion)
	r.probeQueries = versionAtLeast(h, headers.ProbeQueries, minVersion)
	r.noRequerying = isFalse(h, headers.Requeries)

	agent := h.Value(headers.UserAgent)
	r.selfVendor = r.policy.Vendor != "" &&
		strings.HasPrefix(strings.ToLower(agent), strings.ToLower(r.policy.Vendor))
	r.legacyVendor = r.selfVendor && isLegacyVersion(agent)

	r.goodUltrapeer = r.highDegree &&
		r.ultrapeerQRP &&
		r.maxTTL < goodMaxTTL &&
		r.dynamicQuery
	r.goodLeaf = r.goodUltrapeer && (r.selfVendor || r.noRequerying)

	r.ultrapeer = isTrue(h, headers.Ultrapeer)
	r.leaf = isFalse(h, headers.Ultrapeer)
	r.deflateEnabled = strings.EqualFold(h.Value(headers.ContentEncoding), headers.DeflateValue)
	r.acceptsDeflate = containsToken(h, headers.AcceptEncoding, headers.DeflateValue)
	r.pongCaching = versionAtLeast(h, headers.PongCaching, minVersion)
	r.guess = versionAtLeast(h, headers.GUESS, minVersion)
	r.crawler = versionAtLeast(h, headers.Crawler, minVersion)
	r.leafGuidance = isFalse(h, headers.UltrapeerNeeded)

	r.locale = h.Value(headers.LocalePref)
	if r.locale == "" {
		r.locale = r.policy.DefaultLocale
	}
}

// isLegacyVersion reports whether a "Vendor/major.minor..." agent predates
// 3.4.
func isLegacyVersion(agent string) bool {
	tokens := strings.FieldsFunc(agent, func(r rune) bool {
		return r == '/' || r == '.'
	})
	if len(tokens) < versionTokens {
		return false
	}
	major, err := strconv.Atoi(tokens[1])
	if err != nil {
		return false
	}
	minor, err := strconv.Atoi(tokens[2])
	if err != nil {
		return false
	}
	return major < legacyMajor || (major == legacyMajor && minor < legacyMinor)
}

// WithHeader returns a copy of r with name set to value.
func (r *Response) WithHeader(name, value string) *Response {
	h := r.headers.Clone()
	h.Set(name, value)
	return NewResponse(r.statusCode, r.statusMessage, h, r.policy)
}

func (r *Response) StatusCode() int {
	return r.statusCode
}

func (r *Response) StatusMessage() string {
	return r.statusMessage
}

// StatusLine returns "<code> <message>".
func (r *Response) StatusLine() string {
	return strconv.Itoa(r.statusCode) + " " + r.statusMessage
}

// Accepted reports whether the status is 200 OK.
func (r *Response) Accepted() bool {
	return r.statusCode == headers.StatusOK
}

// Final reports whether the response settles the exchange. A 200 carrying a
// message other than OK asks the peer for another round.
func (r *Response) Final() bool {
	return r.statusCode != headers.StatusOK || r.statusMessage == headers.StatusOKMessage
}

// Headers returns a copy of the header block.
func (r *Response) Headers() *headers.Map {
	return r.headers.Clone()
}

// Header returns the value of name, or "" if it is absent.
func (r *Response) Header(name string) string {
	return r.headers.Value(name)
}

func (r *Response) HasHeader(name string) bool {
	return r.headers.Has(name)
}

func (r *Response) UserAgent() string {
	return r.headers.Value(headers.UserAgent)
}

func (r *Response) Version() string {
	return r.headers.Value(headers.Version)
}

func (r *Response) XTryUltrapeers() string {
	return r.headers.Value(headers.TryUltrapeers)
}

func (r *Response) HasXTryUltrapeers() bool {
	return r.headers.Has(headers.TryUltrapeers)
}

// Degree returns the advertised X-Degree, 6 if absent or unparsable.
func (r *Response) Degree() int {
	return r.degree
}

func (r *Response) IsHighDegree() bool {
	return r.highDegree
}

// MaxTTL returns the advertised X-Max-TTL, 4 if absent or unparsable.
func (r *Response) MaxTTL() byte {
	return r.maxTTL
}

func (r *Response) IsUltrapeer() bool {
	return r.ultrapeer
}

// IsLeaf reports whether the peer wrote "X-Ultrapeer: false". A missing
// header is not a leaf.
func (r *Response) IsLeaf() bool {
	return r.leaf
}

func (r *Response) IsGoodUltrapeer() bool {
	return r.goodUltrapeer
}

func (r *Response) IsGoodLeaf() bool {
	return r.goodLeaf
}

func (r *Response) SupportsUltrapeerQueryRouting() bool {
	return r.ultrapeerQRP
}

func (r *Response) IsQueryRoutingEnabled() bool {
	return versionAtLeast(r.headers, headers.QueryRouting, minVersion)
}

func (r *Response) SupportsDynamicQuery() bool {
	return r.dynamicQuery
}

func (r *Response) SupportsProbeQueries() bool {
	return r.probeQueries
}

func (r *Response) SupportsPongCaching() bool {
	return r.pongCaching
}

func (r *Response) SupportsGGEP() bool {
	return r.headers.Has(headers.GGEP)
}

// VendorMessageVersion returns the advertised Vendor-Message version, 0 if
// absent or unparsable.
func (r *Response) VendorMessageVersion() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.headers.Value(headers.VendorMessage)), 32)
	if err != nil {
		return 0
	}
	return v
}

// NoRequerying reports whether the peer wrote "X-Requeries: false".
func (r *Response) NoRequerying() bool {
	return r.noRequerying
}

func (r *Response) IsGUESSCapable() bool {
	return r.guess
}

func (r *Response) IsGUESSUltrapeer() bool {
	return r.guess && r.ultrapeer
}

func (r *Response) IsCrawler() bool {
	return r.crawler
}

func (r *Response) IsTempConnection() bool {
	return isTrue(r.headers, headers.TempConnection)
}

// IsDeflateEnabled reports whether the peer will deflate what it sends.
func (r *Response) IsDeflateEnabled() bool {
	return r.deflateEnabled
}

// AcceptsDeflate reports whether the peer lists deflate in Accept-Encoding.
// Whether we actually compress is up to the responder's Policy.
func (r *Response) AcceptsDeflate() bool {
	return r.acceptsDeflate
}

// HasLeafGuidance reports whether the peer wrote "X-Ultrapeer-Needed: false".
func (r *Response) HasLeafGuidance() bool {
	return r.leafGuidance
}

// Locale returns the peer's declared locale, or the policy default.
func (r *Response) Locale() string {
	return r.locale
}

// IsSelfVendor reports whether the peer runs our implementation family.
func (r *Response) IsSelfVendor() bool {
	return r.selfVendor
}

// IsLegacyVendor reports whether the peer runs a pre-3.4 release of our
// implementation family.
func (r *Response) IsLegacyVendor() bool {
	return r.legacyVendor
}

func (r *Response) String() string {
	return "<" + strconv.Itoa(r.statusCode) + ", " + r.statusMessage + ">" + r.headers.String()
}

func isTrue(h *headers.Map, name string) bool {
	v, ok := h.Get(name)
	return ok && strings.EqualFold(strings.TrimSpace(v), "true")
}

func isFalse(h *headers.Map, name string) bool {
	v, ok := h.Get(name)
	return ok && strings.EqualFold(strings.TrimSpace(v), "false")
}

// containsToken reports whether the value of name equals token or lists it
// among comma-separated tokens, ignoring case.
func containsToken(h *headers.Map, name, token string) bool {
	v, ok := h.Get(name)
	if !ok {
		return false
	}
	if strings.EqualFold(v, token) {
		return true
	}
	for _, t := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(t), token) {
			return true
		}
	}
	return false
}

func versionAtLeast(h *headers.Map, name string, min float64) bool {
	v, ok := h.Get(name)
	if !ok {
		return false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		return false
	}
	return f >= min
}

func intValue(h *headers.Map, name string, def int) int {
	v, ok := h.Get(name)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return i
}

func byteValue(h *headers.Map, name string, def byte) byte {
	v, ok := h.Get(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseUint(strings.TrimSpace(v), 10, 8)
	if err != nil {
		return def
	}
	return byte(b)
}
