// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package handshake

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/luxfi/handshake/headers"
)

const minConnectVersion = 0.6

var protocolPrefix = headers.ProtocolVersion + " "

// formatBlock serializes a first line and header block, terminated by a blank
// line.
func formatBlock(first string, h *headers.Map) []byte {
	var b bytes.Buffer
	b.WriteString(first)
	b.WriteString(headers.CRLF)
	h.Each(func(name, value string) {
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteString(headers.CRLF)
	})
	b.WriteString(headers.CRLF)
	return b.Bytes()
}

// statusLine returns the wire form of r's status, "GNUTELLA/0.6 <code> <msg>".
func statusLine(r *Response) string {
	return protocolPrefix + r.StatusLine()
}

// parseRemoteStatus parses a received "GNUTELLA/0.6 <code> <msg>" line.
func parseRemoteStatus(line string) (int, string, error) {
	if !strings.HasPrefix(line, headers.ProtocolVersion) {
		return 0, "", fmt.Errorf("%w: %q", ErrMalformedStatusLine, line)
	}
	return parseStatus(strings.TrimSpace(line[len(headers.ProtocolVersion):]))
}

// checkConnectLine verifies a received "GNUTELLA CONNECT/<version>" line.
func checkConnectLine(line string) error {
	const prefix = "GNUTELLA " + headers.Connect
	if !strings.HasPrefix(line, prefix) {
		return fmt.Errorf("%w: %q", ErrBadConnectLine, line)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(line[len(prefix):]), 32)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadConnectLine, line)
	}
	if v < minConnectVersion {
		return fmt.Errorf("%w: unsupported version %q", ErrBadConnectLine, line)
	}
	return nil
}

// blockParser assembles a first line and header block from lines delivered
// one at a time, with terminators already stripped.
type blockParser struct {
	maxHeaders int

	first    string
	gotFirst bool
	headers  *headers.Map
	count    int
}

func newBlockParser(maxHeaders int) *blockParser {
	return &blockParser{
		maxHeaders: maxHeaders,
		headers:    &headers.Map{},
	}
}

// feed consumes one line and reports whether the blank line ending the block
// has been seen.
func (p *blockParser) feed(line string) (bool, error) {
	if !p.gotFirst {
		p.first = line
		p.gotFirst = true
		return false, nil
	}
	if line == "" {
		return true, nil
	}
	p.count++
	if p.count > p.maxHeaders {
		return false, fmt.Errorf("%w: limit is %d", ErrTooManyHeaders, p.maxHeaders)
	}
	// Lines without a name are skipped.
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return false, nil
	}
	p.headers.Set(strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]))
	return false, nil
}

// nextLine extracts the first complete line of buf. n is the number of bytes
// consumed, 0 if buf does not hold a full line yet.
func nextLine(buf []byte, maxLength int) (string, int, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if len(buf) > maxLength+1 {
			return "", 0, fmt.Errorf("%w: limit is %d", ErrLineTooLong, maxLength)
		}
		return "", 0, nil
	}
	line := trimCR(buf[:i])
	if len(line) > maxLength {
		return "", 0, fmt.Errorf("%w: limit is %d", ErrLineTooLong, maxLength)
	}
	return string(line), i + 1, nil
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}
