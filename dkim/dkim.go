// Package dkim signs messages with a DKIM-Signature header per RFC 6376.
//
// A message is signed by adding a DKIM-Signature header that carries an
// RSA-SHA1 signature over a selected set of headers and a hash of the
// normalized body. Headers are canonicalized with the relaxed whitespace
// folding rule (c=relaxed).
//
// Signing runs as a strictly sequential pipeline:
//
//  1. the body is normalized to CRLF line endings with one trailing CRLF,
//  2. the empty DKIM-Signature header (all tags, b= empty) is built,
//  3. the configured headers plus the empty signature header are
//     canonicalized in configured order,
//  4. the canonical block is signed and the signature is spliced into a
//     DKIM-Signature header placed first in the message.
//
// # Basic Usage
//
//	signer, err := dkim.New(dkim.Config{
//	    PrivateKey: pemBody,
//	    Params: map[string]string{
//	        "d": "example.com",
//	        "h": "from:to:subject:date",
//	        "s": "selector1",
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	err = signer.SignMessage(msg)
package dkim

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
)

// Algorithm represents a DKIM signing algorithm.
type Algorithm string

const (
	// AlgRSASHA1 is the RSA-SHA1 algorithm, the only one this signer produces.
	AlgRSASHA1 Algorithm = "rsa-sha1"
)

// Canonicalization represents header/body canonicalization algorithms.
type Canonicalization string

const (
	// CanonRelaxed uses the "relaxed" canonicalization algorithm.
	CanonRelaxed Canonicalization = "relaxed"
)

// HeaderName is the field name of the header produced by the signer.
const HeaderName = "DKIM-Signature"

// Error families. Every error returned by New, SetParam and SignMessage
// matches exactly one of them with errors.Is.
var (
	// ErrConfig marks configuration errors: missing or malformed settings.
	// They are raised before any message mutation or cryptographic work.
	ErrConfig = errors.New("dkim: configuration error")

	// ErrCrypto marks failures of the signing primitive itself.
	ErrCrypto = errors.New("dkim: cryptographic failure")
)

// Configuration errors.
var (
	ErrNoConfig      = fmt.Errorf("%w: no dkim config block", ErrConfig)
	ErrNoPrivateKey  = fmt.Errorf("%w: no private key given", ErrConfig)
	ErrInvalidKey    = fmt.Errorf("%w: invalid private key given", ErrConfig)
	ErrMissingParams = fmt.Errorf("%w: missing params", ErrConfig)
	ErrInvalidParam  = fmt.Errorf("%w: invalid param", ErrConfig)
	ErrInvalidDomain = fmt.Errorf("%w: invalid domain", ErrConfig)
	ErrTLD           = fmt.Errorf("%w: signing domain is a public suffix", ErrConfig)
)

// Cryptographic errors.
var (
	ErrSigningFailed        = fmt.Errorf("%w: signing failed", ErrCrypto)
	ErrUnsupportedAlgorithm = fmt.Errorf("%w: unsupported algorithm", ErrCrypto)
)

// ErrRecordSyntax is returned by ParseRecord for malformed key records.
var ErrRecordSyntax = errors.New("dkim: key record syntax error")

// DefaultSignedHeaders is a reasonable h= list for outgoing mail.
var DefaultSignedHeaders = []string{
	"from",
	"to",
	"cc",
	"subject",
	"date",
	"message-id",
	"reply-to",
	"mime-version",
	"content-type",
	"content-transfer-encoding",
}

// cryptoRand is the random source for signing.
var cryptoRand = rand.Reader

// hashForAlgorithm returns the digest for the a= tag value.
func hashForAlgorithm(alg string) (crypto.Hash, error) {
	switch Algorithm(strings.ToLower(alg)) {
	case AlgRSASHA1:
		return crypto.SHA1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

// signWithKey signs a precomputed digest with the given private key.
func signWithKey(key crypto.Signer, hash crypto.Hash, digest []byte) ([]byte, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(cryptoRand, k, hash, digest)
	default:
		// Keys held outside the process (HSM, agent) only need to be RSA.
		if _, ok := key.Public().(*rsa.PublicKey); !ok {
			return nil, fmt.Errorf("%w: key type %T", ErrUnsupportedAlgorithm, key.Public())
		}
		return key.Sign(cryptoRand, digest, hash)
	}
}
