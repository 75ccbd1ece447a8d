package dkim

import (
	"crypto/sha1"
	"encoding/base64"
	"strings"
)

// signatureWrap is the number of base64 characters between the spaces
// inserted into the b= value.
const signatureWrap = 73

// Tag is one key=value component of a DKIM-Signature header value.
type Tag struct {
	Key   string
	Value string
}

// Tags is an ordered tag list. Rendering keeps insertion order.
type Tags []Tag

// Get returns the value of the first tag with the given key.
func (t Tags) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// String renders the tags as "k=v; k=v; ..." without the final semicolon.
func (t Tags) String() string {
	var b strings.Builder
	for _, tag := range t {
		b.WriteString(tag.Key)
		b.WriteByte('=')
		b.WriteString(tag.Value)
		b.WriteString("; ")
	}
	return strings.TrimSuffix(strings.TrimSpace(b.String()), ";")
}

// BodyHash returns base64(SHA-1(body)) for the bh= tag. The body must
// already be normalized.
func BodyHash(body []byte) string {
	sum := sha1.Sum(body)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// emptyHeader builds the unsigned DKIM-Signature tag list. Tag order is
// fixed: v, a, bh, c, d, h, s, b, and b is always empty.
func emptyHeader(p Params, bodyHash string) Tags {
	return Tags{
		{Key: "v", Value: p.Version},
		{Key: "a", Value: p.Algorithm},
		{Key: "bh", Value: bodyHash},
		{Key: "c", Value: string(CanonRelaxed)},
		{Key: "d", Value: p.Domain},
		{Key: "h", Value: p.Headers},
		{Key: "s", Value: p.Selector},
		{Key: "b", Value: ""},
	}
}

// wrapSignature inserts a single space after every signatureWrap characters
// of the base64 signature.
func wrapSignature(encoded string) string {
	if len(encoded) <= signatureWrap {
		return encoded
	}
	var b strings.Builder
	b.Grow(len(encoded) + len(encoded)/signatureWrap)
	for len(encoded) > signatureWrap {
		b.WriteString(encoded[:signatureWrap])
		b.WriteByte(' ')
		encoded = encoded[signatureWrap:]
	}
	b.WriteString(encoded)
	return b.String()
}
