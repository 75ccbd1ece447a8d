package dkim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	dkimdns "github.com/synqronlabs/dkimsign/dns"
)

// Errors returned by CheckRecord.
var (
	ErrRecordNotPublished = errors.New("dkim: no key record published")
	ErrRecordMismatch     = errors.New("dkim: published key does not match the signing key")
	ErrRecordRevoked      = errors.New("dkim: published key is revoked")
)

// CheckRecord looks up the key record at RecordName and reports whether it
// publishes this signer's public key. It returns the matching record.
//
// Lookup failures are returned as is; use the dns package helpers to tell
// temporary failures apart.
func (s *Signer) CheckRecord(ctx context.Context, resolver dkimdns.Resolver) (*Record, error) {
	want, err := s.Record()
	if err != nil {
		return nil, err
	}
	name := s.RecordName()

	res, err := resolver.LookupTXT(ctx, name)
	if dkimdns.IsNotFound(err) {
		return nil, fmt.Errorf("%w at %s", ErrRecordNotPublished, name)
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", name, err)
	}

	var lastErr error
	for _, txt := range res.Records {
		record, err := ParseRecord(txt)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case record.PublicKey == nil:
			lastErr = fmt.Errorf("%w at %s", ErrRecordRevoked, name)
		case !record.PublicKey.Equal(want.PublicKey):
			lastErr = fmt.Errorf("%w at %s", ErrRecordMismatch, name)
		default:
			s.logger.Debug("DKIM key record matches",
				slog.String("name", name),
				slog.Bool("authentic", res.Authentic),
				slog.Bool("testing", record.IsTesting()),
			)
			return record, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w at %s", ErrRecordNotPublished, name)
	}
	return nil, lastErr
}
