package dkimsign

import (
	"bytes"
	"io"
	"sync"

	"github.com/synqronlabs/dkimsign/utils"
)

// Header represents a single message header field as per RFC 5322.
type Header struct {
	// Name is the header field name (e.g., "From", "Subject").
	Name string `json:"name"`
	// Value is the unfolded header field value.
	Value string `json:"value"`
}

// Headers is an ordered collection of message headers with helper methods.
type Headers []Header

// Get returns the first header value with the given name (case-insensitive).
func (h Headers) Get(name string) string {
	for _, hdr := range h {
		if utils.EqualFoldASCII(hdr.Name, name) {
			return hdr.Value
		}
	}
	return ""
}

// GetAll returns all header values with the given name (case-insensitive).
func (h Headers) GetAll(name string) []string {
	var values []string
	for _, hdr := range h {
		if utils.EqualFoldASCII(hdr.Name, name) {
			values = append(values, hdr.Value)
		}
	}
	return values
}

// Index returns the position of the first header with the given name, or -1.
func (h Headers) Index(name string) int {
	for i, hdr := range h {
		if utils.EqualFoldASCII(hdr.Name, name) {
			return i
		}
	}
	return -1
}

// Message is an RFC 5322 message: an ordered header section and a body.
//
// All methods are safe for concurrent use. ReplaceHeaders swaps the whole
// header section under a single lock, so readers never see a partially
// rewritten header list.
type Message struct {
	mu      sync.RWMutex
	headers Headers
	body    []byte
}

// NewMessage creates an empty Message.
func NewMessage() *Message {
	return &Message{headers: make(Headers, 0)}
}

// Body returns a copy of the message body.
func (m *Message) Body() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return bytes.Clone(m.body)
}

// SetBody replaces the message body.
func (m *Message) SetBody(body []byte) {
	m.mu.Lock()
	m.body = bytes.Clone(body)
	m.mu.Unlock()
}

// Headers returns a copy of the header list in insertion order.
func (m *Message) Headers() Headers {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Headers, len(m.headers))
	copy(out, m.headers)
	return out
}

// Header returns the first header with the given name (case-insensitive).
func (m *Message) Header(name string) (Header, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.headers.Index(name); i >= 0 {
		return m.headers[i], true
	}
	return Header{}, false
}

// AddHeader appends a header to the message.
func (m *Message) AddHeader(name, value string) {
	m.mu.Lock()
	m.headers = append(m.headers, Header{Name: name, Value: value})
	m.mu.Unlock()
}

// AddHeaders appends headers to the message, keeping their order.
func (m *Message) AddHeaders(headers ...Header) {
	m.mu.Lock()
	m.headers = append(m.headers, headers...)
	m.mu.Unlock()
}

// RemoveHeader removes every header with the given name and reports how
// many were removed.
func (m *Message) RemoveHeader(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.headers[:0]
	removed := 0
	for _, h := range m.headers {
		if utils.EqualFoldASCII(h.Name, name) {
			removed++
			continue
		}
		kept = append(kept, h)
	}
	clear(m.headers[len(kept):])
	m.headers = kept
	return removed
}

// ClearHeaders removes all headers.
func (m *Message) ClearHeaders() {
	m.mu.Lock()
	m.headers = make(Headers, 0)
	m.mu.Unlock()
}

// ReplaceHeaders atomically replaces the whole header section.
func (m *Message) ReplaceHeaders(headers Headers) {
	next := make(Headers, len(headers))
	copy(next, headers)
	m.mu.Lock()
	m.headers = next
	m.mu.Unlock()
}

// Bytes returns the message in wire format: one "Name: Value" line per
// header, an empty line, then the body.
func (m *Message) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = m.WriteTo(&buf)
	return buf.Bytes()
}

// WriteTo writes the message in wire format to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var buf bytes.Buffer
	for _, h := range m.headers {
		buf.WriteString(h.Name)
		buf.WriteString(": ")
		buf.WriteString(h.Value)
		buf.WriteString("\r\n")
	}
	buf.WriteString("\r\n")
	buf.Write(m.body)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}
