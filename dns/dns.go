// Package dns looks up the TXT records that publish DKIM keys.
package dns

import (
	"context"
	"errors"
)

// Resolver looks up TXT records.
type Resolver interface {
	// LookupTXT returns the TXT records at name. The character-strings of
	// each record are joined.
	LookupTXT(ctx context.Context, name string) (Result[string], error)
}

// Result holds the records of a lookup.
type Result[T any] struct {
	Records []T

	// Authentic is true when the answer was DNSSEC validated by the
	// upstream resolver.
	Authentic bool
}

// Lookup errors.
var (
	ErrDNSNotFound = errors.New("dns: no such record")
	ErrDNSTimeout  = errors.New("dns: timeout")
	ErrDNSServFail = errors.New("dns: server failure")
	ErrDNSRefused  = errors.New("dns: query refused")
	ErrDNSBogus    = errors.New("dns: DNSSEC validation failed")
)

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDNSNotFound)
}

// IsTimeout reports whether err is a lookup timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrDNSTimeout)
}

// IsServFail reports whether err is a server failure.
func IsServFail(err error) bool {
	return errors.Is(err, ErrDNSServFail)
}

// IsTemporary reports whether retrying the lookup later may succeed.
func IsTemporary(err error) bool {
	return IsTimeout(err) || IsServFail(err) || errors.Is(err, context.DeadlineExceeded)
}
