package dkim

import (
	"bytes"
	"regexp"
	"slices"

	"github.com/synqronlabs/dkimsign"
)

var crlf = []byte("\r\n")

// newlines matches every line break sequence: CRLF, LF, CR, VT, FF, NEL,
// LINE SEPARATOR and PARAGRAPH SEPARATOR.
var newlines = regexp.MustCompile("\r\n|[\n\v\f\r\u0085\u2028\u2029]")

// sigName is the lower-cased HeaderName as it appears in h= and in the
// canonical block.
const sigName = "dkim-signature"

// trailingSpace is the set of bytes stripped from the end of the body and of
// the canonical header block.
const trailingSpace = " \t\r\n\x00\v"

// NormalizeBody rewrites every line break to CRLF and makes the body end
// with exactly one CRLF. Trailing blank lines and trailing whitespace are
// dropped; an empty body becomes a single CRLF. The result is idempotent
// under NormalizeBody.
func NormalizeBody(body []byte) []byte {
	normalized := newlines.ReplaceAll(body, crlf)
	normalized = bytes.TrimRight(normalized, trailingSpace)
	out := make([]byte, 0, len(normalized)+2)
	out = append(out, normalized...)
	return append(out, crlf...)
}

// collapseWhitespace replaces every run of whitespace (space, tab, CR, LF,
// VT, FF) with a single space. Leading and trailing runs are collapsed, not
// removed.
func collapseWhitespace(value string) string {
	var b []byte
	prevWS := false
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch c {
		case ' ', '\t', '\r', '\n', '\v', '\f':
			if !prevWS {
				b = append(b, ' ')
				prevWS = true
			}
		default:
			b = append(b, c)
			prevWS = false
		}
	}
	return string(b)
}

// canonicalHeaderSet accumulates relaxed-canonical header lines for a single
// signing operation.
type canonicalHeaderSet struct {
	buf bytes.Buffer
}

// append adds one "name:value\r\n" line.
func (c *canonicalHeaderSet) append(lname, value string) {
	c.buf.WriteString(lname)
	c.buf.WriteByte(':')
	c.buf.WriteString(collapseWhitespace(value))
	c.buf.Write(crlf)
}

// Bytes returns the signing input: the concatenated lines without the
// trailing line break.
func (c *canonicalHeaderSet) Bytes() []byte {
	return bytes.TrimRight(c.buf.Bytes(), trailingSpace)
}

// headerLookup finds a message header by case-insensitive name.
type headerLookup func(name string) (dkimsign.Header, bool)

// canonicalizeHeaders walks the names in configured order, followed by the
// synthetic "dkim-signature" entry when the list does not already name it.
// Names absent from the message are skipped. The "dkim-signature" entry
// always resolves to emptyHeader, the unsigned header built for this call.
func canonicalizeHeaders(names []string, emptyHeader string, lookup headerLookup) []byte {
	var set canonicalHeaderSet

	selected := names
	if !slices.Contains(names, sigName) {
		selected = append(names[:len(names):len(names)], sigName)
	}

	for _, name := range selected {
		if name == sigName {
			set.append(name, emptyHeader)
			continue
		}
		hdr, ok := lookup(name)
		if !ok {
			continue
		}
		set.append(name, hdr.Value)
	}
	return set.Bytes()
}
