package dkimsign

import (
	"bytes"
	"fmt"
	"strings"
)

// Parse parses raw message data into headers and body per RFC 5322.
//
// The header section ends at the first empty line. Lines may end in CRLF or
// a bare LF. Folded header lines are unfolded into a single value joined by
// one space. The body is kept byte for byte. A message without an empty line
// is treated as a header section with no body.
func Parse(data []byte) (*Message, error) {
	m := NewMessage()

	var currentName, currentValue string
	flush := func() {
		if currentName != "" {
			m.headers = append(m.headers, Header{Name: currentName, Value: currentValue})
		}
		currentName, currentValue = "", ""
	}

	rest := data
	for len(rest) > 0 {
		line := rest
		rest = nil
		if i := bytes.IndexByte(line, '\n'); i >= 0 {
			line, rest = line[:i], line[i+1:]
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})

		// Empty line separates headers from the body
		if len(line) == 0 {
			flush()
			m.body = bytes.Clone(rest)
			if m.body == nil {
				m.body = []byte{}
			}
			return m, nil
		}

		// Continuation of previous header (folded header per RFC 5322)
		if line[0] == ' ' || line[0] == '\t' {
			if currentName == "" {
				return nil, fmt.Errorf("%w: continuation line before first header", ErrMalformedMessage)
			}
			currentValue += " " + strings.TrimSpace(string(line))
			continue
		}

		flush()

		name, value, found := strings.Cut(string(line), ":")
		name = strings.TrimRight(name, " \t")
		if !found || !validFieldName(name) {
			return nil, fmt.Errorf("%w: invalid header line %q", ErrMalformedMessage, line)
		}
		currentName = name
		currentValue = strings.TrimSpace(value)
	}

	flush()
	return m, nil
}

// validFieldName checks the RFC 5322 ftext rule: printable US-ASCII
// except colon.
func validFieldName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c >= 0x7f || c == ':' {
			return false
		}
	}
	return true
}
