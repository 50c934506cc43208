// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package headers

import (
	"strings"
)

type entry struct {
	name  string
	value string
}

// Map is an insertion-ordered header map. Names keep the case they were set
// with so they are written back verbatim; lookups are case-insensitive.
//
// The zero value is an empty map ready to use.
type Map struct {
	entries []entry
	index   map[string]int
}

// New returns a map holding the given name/value pairs in order.
func New(pairs ...string) *Map {
	m := &Map{}
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i], pairs[i+1])
	}
	return m
}

// Set assigns value to name. An existing entry keeps its position.
func (m *Map) Set(name, value string) {
	key := strings.ToLower(name)
	if m.index == nil {
		m.index = make(map[string]int)
	}
	if i, ok := m.index[key]; ok {
		m.entries[i].value = value
		return
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, entry{name: name, value: value})
}

// Get returns the value of name and whether it is present.
func (m *Map) Get(name string) (string, bool) {
	if m == nil || m.index == nil {
		return "", false
	}
	i, ok := m.index[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return m.entries[i].value, true
}

// Value returns the value of name, or "" if it is absent.
func (m *Map) Value(name string) string {
	v, _ := m.Get(name)
	return v
}

// Has reports whether name is present.
func (m *Map) Has(name string) bool {
	_, ok := m.Get(name)
	return ok
}

// Delete removes name, preserving the order of the remaining entries.
func (m *Map) Delete(name string) {
	if m == nil || m.index == nil {
		return
	}
	key := strings.ToLower(name)
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.entries = append(m.entries[:i], m.entries[i+1:]...)
	delete(m.index, key)
	for j := i; j < len(m.entries); j++ {
		m.index[strings.ToLower(m.entries[j].name)] = j
	}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Names returns the header names in insertion order.
func (m *Map) Names() []string {
	if m == nil {
		return nil
	}
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.name
	}
	return names
}

// Each calls f for every entry in insertion order.
func (m *Map) Each(f func(name, value string)) {
	if m == nil {
		return
	}
	for _, e := range m.entries {
		f(e.name, e.value)
	}
}

// Merge copies every entry of other into m.
func (m *Map) Merge(other *Map) {
	other.Each(m.Set)
}

// Clone returns a deep copy. Cloning a nil map returns an empty map.
func (m *Map) Clone() *Map {
	c := &Map{}
	m.Each(c.Set)
	return c
}

func (m *Map) String() string {
	if m == nil {
		return "{}"
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(e.name)
		sb.WriteByte('=')
		sb.WriteString(e.value)
	}
	sb.WriteByte('}')
	return sb.String()
}
