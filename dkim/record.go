package dkim

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// maxTXTString is the longest character-string allowed in a TXT record.
const maxTXTString = 255

// Record represents a DKIM key record (RFC 6376 Section 3.6.1), published
// as a TXT record at <selector>._domainkey.<domain>.
type Record struct {
	// Version is the record version, must be "DKIM1".
	Version string

	// Hashes is the list of acceptable hash algorithms (e.g., "sha1").
	// Empty means all algorithms are acceptable.
	Hashes []string

	// Key is the key type. Only "rsa" is supported.
	Key string

	// Notes contains optional human-readable notes.
	Notes string

	// Services lists acceptable service types.
	// Empty or containing "*" means all services.
	Services []string

	// Flags contains key flags:
	//   "y" - Domain is testing DKIM
	//   "s" - i= domain must exactly match d= domain
	Flags []string

	// PublicKey is the RSA public key. Nil means the key has been revoked.
	PublicKey *rsa.PublicKey
}

// IsTesting returns true if the key is marked for testing (t=y).
func (r *Record) IsTesting() bool {
	for _, f := range r.Flags {
		if strings.EqualFold(f, "y") {
			return true
		}
	}
	return false
}

// ToTXT generates the TXT record text from this Record.
func (r *Record) ToTXT() (string, error) {
	var parts []string

	if r.Version != "DKIM1" {
		return "", fmt.Errorf("invalid version: %s", r.Version)
	}
	parts = append(parts, "v=DKIM1")

	if len(r.Hashes) > 0 {
		parts = append(parts, "h="+strings.Join(r.Hashes, ":"))
	}

	// k=rsa is the default and is left out.
	if r.Key != "" && !strings.EqualFold(r.Key, "rsa") {
		return "", fmt.Errorf("unsupported key type: %s", r.Key)
	}

	if r.Notes != "" {
		parts = append(parts, "n="+encodeQPSection(r.Notes))
	}

	if len(r.Services) > 0 && !(len(r.Services) == 1 && r.Services[0] == "*") {
		parts = append(parts, "s="+strings.Join(r.Services, ":"))
	}

	if len(r.Flags) > 0 {
		parts = append(parts, "t="+strings.Join(r.Flags, ":"))
	}

	var pk []byte
	if r.PublicKey != nil {
		var err error
		pk, err = x509.MarshalPKIXPublicKey(r.PublicKey)
		if err != nil {
			return "", err
		}
	}
	parts = append(parts, "p="+base64.StdEncoding.EncodeToString(pk))

	return strings.Join(parts, "; "), nil
}

// TXT returns the record as a DNS resource record owned by name. The text is
// split into character-strings of at most 255 bytes.
func (r *Record) TXT(name string, ttl uint32) (*dns.TXT, error) {
	txt, err := r.ToTXT()
	if err != nil {
		return nil, err
	}
	var chunks []string
	for len(txt) > maxTXTString {
		chunks = append(chunks, txt[:maxTXTString])
		txt = txt[maxTXTString:]
	}
	chunks = append(chunks, txt)

	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(name),
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    ttl,
		},
		Txt: chunks,
	}, nil
}

// Record returns the key record receivers need to verify this signer's
// signatures.
func (s *Signer) Record() (*Record, error) {
	pub, ok := s.key.Public().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, s.key.Public())
	}
	return &Record{
		Version:   "DKIM1",
		Hashes:    []string{"sha1"},
		Key:       "rsa",
		PublicKey: pub,
	}, nil
}

// RecordName returns the fully qualified owner name of the key record,
// <selector>._domainkey.<domain>.
func (s *Signer) RecordName() string {
	return dns.Fqdn(s.Params().recordName())
}

// encodeQPSection encodes a string for use in DKIM record notes.
func encodeQPSection(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i, c := range []byte(s) {
		// First character cannot be whitespace
		if (i == 0 && (c == ' ' || c == '\t')) || c > ' ' && c < 0x7f && c != '=' && c != ';' {
			b.WriteByte(c)
		} else {
			b.WriteByte('=')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}

// ParseRecord parses the text of a DKIM key record. Multiple TXT
// character-strings must be joined before parsing.
func ParseRecord(txt string) (*Record, error) {
	record := &Record{
		Version:  "DKIM1",
		Key:      "rsa",
		Services: []string{"*"},
	}

	seen := make(map[string]bool)
	var pubkey []byte

	for _, part := range strings.Split(txt, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrRecordSyntax, part)
		}
		tag = strings.TrimSpace(tag)
		value = strings.TrimSpace(value)

		if seen[tag] {
			return nil, fmt.Errorf("%w: duplicate tag %s", ErrRecordSyntax, tag)
		}
		seen[tag] = true

		switch tag {
		case "v":
			if value != "DKIM1" {
				return nil, fmt.Errorf("%w: version %q", ErrRecordSyntax, value)
			}
		case "h":
			record.Hashes = splitList(value)
		case "k":
			record.Key = strings.ToLower(value)
		case "n":
			record.Notes = decodeQPSection(value)
		case "s":
			record.Services = splitList(value)
		case "t":
			record.Flags = splitList(value)
		case "p":
			cleaned := strings.Map(func(r rune) rune {
				if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
					return -1
				}
				return r
			}, value)
			if cleaned != "" {
				decoded, err := base64.StdEncoding.DecodeString(cleaned)
				if err != nil {
					return nil, fmt.Errorf("%w: invalid public key encoding: %w", ErrRecordSyntax, err)
				}
				pubkey = decoded
			}
		}
	}

	if !seen["p"] {
		return nil, fmt.Errorf("%w: missing public key (p=)", ErrRecordSyntax)
	}
	if record.Key != "rsa" {
		return nil, fmt.Errorf("%w: unsupported key type %s", ErrRecordSyntax, record.Key)
	}

	if len(pubkey) > 0 {
		pk, err := x509.ParsePKIXPublicKey(pubkey)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid RSA public key: %w", ErrRecordSyntax, err)
		}
		rsaPK, ok := pk.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected RSA public key, got %T", ErrRecordSyntax, pk)
		}
		record.PublicKey = rsaPK
	}

	return record, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ":") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// decodeQPSection decodes a quoted-printable encoded section.
func decodeQPSection(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '=' && i+2 < len(s) {
			hi := hexVal(s[i+1])
			lo := hexVal(s[i+2])
			if hi >= 0 && lo >= 0 {
				b.WriteByte(byte(hi<<4 | lo))
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c - 'A' + 10)
	case c >= 'a' && c <= 'f':
		return int(c - 'a' + 10)
	}
	return -1
}
