package dkim

import (
	"crypto"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"

	"github.com/synqronlabs/dkimsign"
	"github.com/synqronlabs/dkimsign/utils"
)

// Signer provides DKIM message signing.
//
// A Signer is safe for concurrent use. The private key is read-only after
// construction, and every SignMessage call works on its own snapshot of the
// params; all per-call state is local to the call.
type Signer struct {
	mu     sync.RWMutex
	params Params

	key    crypto.Signer
	logger *slog.Logger
}

// Option configures a Signer.
type Option func(*Signer)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Signer) {
		s.logger = logger
	}
}

// WithKey uses an already loaded RSA signing key instead of the key
// material in Config.
func WithKey(key crypto.Signer) Option {
	return func(s *Signer) {
		s.key = key
	}
}

// New creates a Signer. The private key is parsed once here, and the params
// are validated eagerly: a missing key, malformed key material, an unknown
// param name, an empty d, h or s, or an invalid signing domain are all
// configuration errors.
func New(cfg Config, opts ...Option) (*Signer, error) {
	s := &Signer{
		params: DefaultParams(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.key == nil {
		material, err := cfg.loadPrivateKeyMaterial()
		if err != nil {
			return nil, err
		}
		key, err := ParsePrivateKey(material)
		if err != nil {
			return nil, err
		}
		s.key = key
	}

	if err := cfg.applyParams(&s.params); err != nil {
		return nil, err
	}
	if err := s.params.validate(); err != nil {
		return nil, err
	}
	if err := s.params.validateDomain(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetParam sets a single tag value. Valid keys are v, a, d, h and s.
// Empty values are accepted here and rejected when signing.
func (s *Signer) SetParam(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.set(key, value)
}

// SetParams sets several tag values. Nothing is changed if any key is
// unknown.
func (s *Signer) SetParams(params map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.params
	if err := (Config{Params: params}).applyParams(&next); err != nil {
		return err
	}
	s.params = next
	return nil
}

// Params returns a copy of the current params.
func (s *Signer) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SignMessage signs msg in place.
//
// The body is replaced by its normalized form, and on success the header
// list is replaced by the completed DKIM-Signature header followed by the
// message's other headers in their original order. Any earlier
// DKIM-Signature headers are dropped.
//
// On a configuration error nothing is modified. On a cryptographic error the
// header list is restored to its state before the call; the body stays
// normalized.
func (s *Signer) SignMessage(msg Message) error {
	params := s.Params()
	if err := params.validate(); err != nil {
		return err
	}

	body := NormalizeBody(msg.Body())
	msg.SetBody(body)

	unsigned := emptyHeader(params, BodyHash(body)).String()

	original := msg.Headers()
	msg.AddHeader(HeaderName, unsigned)

	block := canonicalizeHeaders(params.HeaderNames(), unsigned, msg.Header)

	signature, err := s.sign(params.Algorithm, block)
	if err != nil {
		msg.ReplaceHeaders(original)
		s.logger.Warn("DKIM signing failed, headers restored",
			slog.String("domain", params.Domain),
			slog.String("selector", params.Selector),
			slog.Any("error", err),
		)
		return err
	}

	msg.ReplaceHeaders(splice(dkimsign.Header{Name: HeaderName, Value: unsigned + signature}, msg.Headers()))

	s.logger.Debug("DKIM signature added",
		slog.String("domain", params.Domain),
		slog.String("selector", params.Selector),
		slog.String("headers", params.Headers),
		slog.String("body_hash", BodyHash(body)),
	)
	return nil
}

// SignBytes parses an RFC 5322 message, signs it and returns the signed
// message in wire format.
func (s *Signer) SignBytes(raw []byte) ([]byte, error) {
	msg, err := dkimsign.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing message: %w", err)
	}
	if err := s.SignMessage(msg); err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

// sign produces the wrapped base64 signature over the canonical header
// block.
func (s *Signer) sign(algorithm string, data []byte) (string, error) {
	if s.key == nil {
		return "", ErrNoPrivateKey
	}

	hash, err := hashForAlgorithm(algorithm)
	if err != nil {
		return "", err
	}

	h := hash.New()
	h.Write(data)

	sig, err := signWithKey(s.key, hash, h.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}
	return wrapSignature(base64.StdEncoding.EncodeToString(sig)), nil
}

// splice returns the final header list: sig first, then every header of
// headers except DKIM-Signature, in order.
func splice(sig dkimsign.Header, headers dkimsign.Headers) dkimsign.Headers {
	out := make(dkimsign.Headers, 0, len(headers))
	out = append(out, sig)
	for _, h := range headers {
		if utils.EqualFoldASCII(h.Name, HeaderName) {
			continue
		}
		out = append(out, h)
	}
	return out
}
