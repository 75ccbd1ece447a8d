package dns

import (
	"context"
	"slices"

	mdns "github.com/miekg/dns"
)

// MockResolver is a Resolver used for testing.
// TXT maps FQDNs (with trailing dot) to records.
type MockResolver struct {
	TXT map[string][]string

	// Fail lists names whose lookups return a temporary error (SERVFAIL).
	Fail []string

	// AllAuthentic sets the default value for Authentic in responses.
	AllAuthentic bool

	// Authentic lists names whose answers have Authentic=true.
	Authentic []string
}

var _ Resolver = MockResolver{}

// LookupTXT returns TXT records for the given name.
func (r MockResolver) LookupTXT(ctx context.Context, name string) (Result[string], error) {
	fqdn := mdns.Fqdn(name)
	result := Result[string]{Authentic: r.AllAuthentic || slices.Contains(r.Authentic, fqdn)}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if slices.Contains(r.Fail, fqdn) {
		return result, ErrDNSServFail
	}

	records, ok := r.TXT[fqdn]
	if !ok || len(records) == 0 {
		return result, ErrDNSNotFound
	}

	result.Records = records
	return result, nil
}
