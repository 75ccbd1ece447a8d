package dkim

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/synqronlabs/dkimsign"
)

var testKey = sync.OnceValue(func() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	return key
})

// spyKey records every signing call and optionally fails it.
type spyKey struct {
	key   *rsa.PrivateKey
	calls atomic.Int32
	err   error
}

func (s *spyKey) Public() crypto.PublicKey { return &s.key.PublicKey }

func (s *spyKey) Sign(r io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.key.Sign(r, digest, opts)
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func exampleParams() map[string]string {
	return map[string]string{
		"d": "example.com",
		"h": "from:to:subject",
		"s": "sel1",
	}
}

func newTestSigner(t *testing.T, key crypto.Signer, params map[string]string) *Signer {
	t.Helper()
	s, err := New(Config{Params: params}, WithKey(key), WithLogger(discardLogger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func exampleMessage() *dkimsign.Message {
	msg := dkimsign.NewMessage()
	msg.AddHeader("From", "a@x")
	msg.AddHeader("To", "b@x")
	msg.AddHeader("Subject", "Hi")
	msg.SetBody([]byte("Hello"))
	return msg
}

// splitSignature splits a DKIM-Signature value into the unsigned part
// (ending in "b=") and the decoded signature.
func splitSignature(t *testing.T, value string) (string, []byte) {
	t.Helper()
	i := strings.Index(value, "; b=")
	if i < 0 {
		t.Fatalf("no b= tag in %q", value)
	}
	unsigned := value[:i+len("; b=")]
	sig, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(value[len(unsigned):], " ", ""))
	if err != nil {
		t.Fatalf("decoding b=: %v", err)
	}
	return unsigned, sig
}

// verifySigned checks the signature of msg against pub, rebuilding the
// canonical header block from the message's headers.
func verifySigned(t *testing.T, pub *rsa.PublicKey, msg *dkimsign.Message, names ...string) {
	t.Helper()
	headers := msg.Headers()
	unsigned, sig := splitSignature(t, headers[0].Value)

	var block strings.Builder
	for _, name := range names {
		if i := headers[1:].Index(name); i >= 0 {
			block.WriteString(name + ":" + collapseWhitespace(headers[1+i].Value) + "\r\n")
		}
	}
	block.WriteString("dkim-signature:" + unsigned)

	digest := sha1.Sum([]byte(block.String()))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], sig); err != nil {
		t.Errorf("signature does not verify over %q: %v", block.String(), err)
	}
}

func TestSignMessageExample(t *testing.T) {
	key := testKey()
	signer := newTestSigner(t, key, exampleParams())
	msg := exampleMessage()

	if err := signer.SignMessage(msg); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}

	headers := msg.Headers()
	if len(headers) != 4 {
		t.Fatalf("len(headers) = %d, want 4", len(headers))
	}
	if headers[0].Name != HeaderName {
		t.Fatalf("first header = %s, want %s", headers[0].Name, HeaderName)
	}
	value := headers[0].Value

	wantPrefix := "v=1; a=rsa-sha1; bh=/t0YeXgRpK9llnjqXbYY+NyRSAs=; c=relaxed; d=example.com; h=from:to:subject; s=sel1; b="
	if !strings.HasPrefix(value, wantPrefix) {
		t.Errorf("header value = %q, want prefix %q", value, wantPrefix)
	}
	if !strings.Contains(value, "d=example.com; h=from:to:subject; s=sel1;") {
		t.Errorf("header value %q is missing the d/h/s tags", value)
	}
	if len(value) == len(wantPrefix) {
		t.Error("b= is empty")
	}

	if got := string(msg.Body()); got != "Hello\r\n" {
		t.Errorf("body = %q, want normalized %q", got, "Hello\r\n")
	}

	wantRest := dkimsign.Headers{
		{Name: "From", Value: "a@x"},
		{Name: "To", Value: "b@x"},
		{Name: "Subject", Value: "Hi"},
	}
	if !slices.Equal(headers[1:], wantRest) {
		t.Errorf("remaining headers = %v, want %v", headers[1:], wantRest)
	}

	verifySigned(t, &key.PublicKey, msg, "from", "to", "subject")
}

func TestSignMessageDeterministic(t *testing.T) {
	signer := newTestSigner(t, testKey(), exampleParams())

	first := exampleMessage()
	second := exampleMessage()
	if err := signer.SignMessage(first); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}
	if err := signer.SignMessage(second); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}

	a, _ := first.Header(HeaderName)
	b, _ := second.Header(HeaderName)
	if a.Value != b.Value {
		t.Errorf("signatures differ:\n%s\n%s", a.Value, b.Value)
	}
}

func TestSignMessageResign(t *testing.T) {
	signer := newTestSigner(t, testKey(), exampleParams())
	msg := exampleMessage()

	if err := signer.SignMessage(msg); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}
	firstHeaders := msg.Headers()

	if err := signer.SignMessage(msg); err != nil {
		t.Fatalf("second SignMessage() error = %v", err)
	}
	if got := msg.Headers(); !slices.Equal(got, firstHeaders) {
		t.Errorf("re-signing changed headers:\n%v\n%v", got, firstHeaders)
	}
}

func TestSignMessageReplacesExistingSignatures(t *testing.T) {
	key := testKey()
	signer := newTestSigner(t, key, exampleParams())

	msg := dkimsign.NewMessage()
	msg.AddHeader("Received", "from relay")
	msg.AddHeader("DKIM-Signature", "v=1; a=rsa-sha256; d=other.example; b=AAAA")
	msg.AddHeader("From", "a@x")
	msg.AddHeader("dkim-signature", "v=1; a=rsa-sha256; d=third.example; b=BBBB")
	msg.AddHeader("Subject", "Hi")
	msg.SetBody([]byte("Hello\n"))

	if err := signer.SignMessage(msg); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}

	headers := msg.Headers()
	if n := len(headers.GetAll(HeaderName)); n != 1 {
		t.Fatalf("found %d DKIM-Signature headers, want 1", n)
	}
	if headers[0].Name != HeaderName {
		t.Errorf("first header = %s, want %s", headers[0].Name, HeaderName)
	}
	wantRest := []string{"Received", "From", "Subject"}
	var gotRest []string
	for _, h := range headers[1:] {
		gotRest = append(gotRest, h.Name)
	}
	if !slices.Equal(gotRest, wantRest) {
		t.Errorf("remaining headers = %v, want %v", gotRest, wantRest)
	}

	verifySigned(t, &key.PublicKey, msg, "from", "to", "subject")
}

func TestSignMessageAbsentHeaders(t *testing.T) {
	key := testKey()
	params := exampleParams()
	params["h"] = "From:Cc:Subject:Date:Reply-To"
	signer := newTestSigner(t, key, params)

	msg := exampleMessage()
	if err := signer.SignMessage(msg); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}

	hdr, _ := msg.Header(HeaderName)
	// h= keeps the configured spelling.
	if !strings.Contains(hdr.Value, "h=From:Cc:Subject:Date:Reply-To;") {
		t.Errorf("header value = %q, want configured h=", hdr.Value)
	}
	verifySigned(t, &key.PublicKey, msg, "from", "cc", "subject", "date", "reply-to")
}

func TestSignMessageFoldedValues(t *testing.T) {
	key := testKey()
	signer := newTestSigner(t, key, exampleParams())

	msg := exampleMessage()
	msg.ReplaceHeaders(dkimsign.Headers{
		{Name: "From", Value: "Alice   <a@x>"},
		{Name: "To", Value: "b@x,\t c@x"},
		{Name: "Subject", Value: "a  long\t\tsubject"},
	})
	if err := signer.SignMessage(msg); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}
	verifySigned(t, &key.PublicKey, msg, "from", "to", "subject")
}

func TestSignMessageSignatureWrapping(t *testing.T) {
	signer := newTestSigner(t, testKey(), exampleParams())
	msg := exampleMessage()
	if err := signer.SignMessage(msg); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}

	hdr, _ := msg.Header(HeaderName)
	i := strings.Index(hdr.Value, "; b=")
	b := hdr.Value[i+len("; b="):]
	chunks := strings.Split(b, " ")
	// A 2048-bit signature is 344 base64 characters.
	if len(chunks) != 5 {
		t.Fatalf("b= has %d chunks, want 5: %q", len(chunks), b)
	}
	for _, c := range chunks[:len(chunks)-1] {
		if len(c) != signatureWrap {
			t.Errorf("chunk %q has length %d, want %d", c, len(c), signatureWrap)
		}
	}
	if last := chunks[len(chunks)-1]; last == "" || len(last) > signatureWrap {
		t.Errorf("last chunk %q has bad length", last)
	}
}

func TestSignMessageMissingParams(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"d", ""},
		{"h", ""},
		{"h", "::"},
		{"s", ""},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			spy := &spyKey{key: testKey()}
			signer := newTestSigner(t, spy, exampleParams())
			if err := signer.SetParam(tt.key, tt.value); err != nil {
				t.Fatalf("SetParam() error = %v", err)
			}

			msg := exampleMessage()
			before := msg.Headers()

			err := signer.SignMessage(msg)
			if !errors.Is(err, ErrMissingParams) {
				t.Fatalf("SignMessage() error = %v, want ErrMissingParams", err)
			}
			if !errors.Is(err, ErrConfig) || errors.Is(err, ErrCrypto) {
				t.Errorf("error %v is not a configuration error", err)
			}
			if n := spy.calls.Load(); n != 0 {
				t.Errorf("key was used %d times before validation failed", n)
			}
			if got := msg.Headers(); !slices.Equal(got, before) {
				t.Errorf("headers modified: %v", got)
			}
			if got := string(msg.Body()); got != "Hello" {
				t.Errorf("body modified: %q", got)
			}
		})
	}
}

func TestSignMessageCryptoFailureRollsBack(t *testing.T) {
	tests := []struct {
		name    string
		key     crypto.Signer
		param   [2]string
		wantErr error
	}{
		{
			name:    "signing primitive fails",
			key:     &spyKey{key: testKey(), err: errors.New("hsm offline")},
			wantErr: ErrSigningFailed,
		},
		{
			name:    "unsupported algorithm",
			key:     testKey(),
			param:   [2]string{"a", "rsa-sha256"},
			wantErr: ErrUnsupportedAlgorithm,
		},
		{
			name:    "non-RSA key",
			key:     ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)),
			wantErr: ErrUnsupportedAlgorithm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := newTestSigner(t, tt.key, exampleParams())
			if tt.param[0] != "" {
				if err := signer.SetParam(tt.param[0], tt.param[1]); err != nil {
					t.Fatalf("SetParam() error = %v", err)
				}
			}

			msg := exampleMessage()
			msg.AddHeader("DKIM-Signature", "v=1; d=earlier.example; b=AAAA")
			before := msg.Headers()

			err := signer.SignMessage(msg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SignMessage() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrCrypto) || errors.Is(err, ErrConfig) {
				t.Errorf("error %v is not a cryptographic error", err)
			}
			if got := msg.Headers(); !slices.Equal(got, before) {
				t.Errorf("headers not restored:\n got %v\nwant %v", got, before)
			}
		})
	}
}

func TestSignMessageConcurrent(t *testing.T) {
	key := testKey()
	signer := newTestSigner(t, key, exampleParams())

	reference := exampleMessage()
	if err := signer.SignMessage(reference); err != nil {
		t.Fatalf("SignMessage() error = %v", err)
	}
	want, _ := reference.Header(HeaderName)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := exampleMessage()
			errs[i] = signer.SignMessage(msg)
			hdr, _ := msg.Header(HeaderName)
			results[i] = hdr.Value
		}()
	}
	// Readers of the params run alongside the signers.
	for j := 0; j < workers; j++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = signer.Params()
			_ = signer.RecordName()
		}()
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Errorf("worker %d: SignMessage() error = %v", i, errs[i])
			continue
		}
		if results[i] != want.Value {
			t.Errorf("worker %d: signature differs", i)
		}
	}
}

func TestSignBytes(t *testing.T) {
	key := testKey()
	signer := newTestSigner(t, key, exampleParams())

	raw := []byte("From: a@x\nTo: b@x\nSubject: Hi\n\nHello\n\n\n")
	signed, err := signer.SignBytes(raw)
	if err != nil {
		t.Fatalf("SignBytes() error = %v", err)
	}
	if !bytes.HasPrefix(signed, []byte("DKIM-Signature: v=1; a=rsa-sha1; ")) {
		t.Errorf("signed message does not start with the signature: %q", signed)
	}
	if !bytes.HasSuffix(signed, []byte("\r\n\r\nHello\r\n")) {
		t.Errorf("signed message body not normalized: %q", signed)
	}

	msg, err := dkimsign.Parse(signed)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	verifySigned(t, &key.PublicKey, msg, "from", "to", "subject")

	// The same message with CRLF line endings signs identically.
	crlfSigned, err := signer.SignBytes(bytes.ReplaceAll(raw, []byte("\n"), []byte("\r\n")))
	if err != nil {
		t.Fatalf("SignBytes() error = %v", err)
	}
	if !bytes.Equal(signed, crlfSigned) {
		t.Errorf("line ending style changed the result:\n%q\n%q", signed, crlfSigned)
	}
}

func TestSignBytesMalformed(t *testing.T) {
	signer := newTestSigner(t, testKey(), exampleParams())
	_, err := signer.SignBytes([]byte(" folded first\r\n\r\nbody"))
	if !errors.Is(err, dkimsign.ErrMalformedMessage) {
		t.Errorf("SignBytes() error = %v, want ErrMalformedMessage", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		opts    []Option
		wantErr error
	}{
		{
			name:    "no key",
			cfg:     Config{Params: exampleParams()},
			wantErr: ErrNoPrivateKey,
		},
		{
			name:    "malformed key",
			cfg:     Config{PrivateKey: "bm90IGEga2V5", Params: exampleParams()},
			wantErr: ErrInvalidKey,
		},
		{
			name:    "unknown param",
			cfg:     Config{Params: map[string]string{"d": "example.com", "h": "from", "s": "sel1", "x": "1"}},
			opts:    []Option{WithKey(testKey())},
			wantErr: ErrInvalidParam,
		},
		{
			name:    "missing domain",
			cfg:     Config{Params: map[string]string{"h": "from", "s": "sel1"}},
			opts:    []Option{WithKey(testKey())},
			wantErr: ErrMissingParams,
		},
		{
			name:    "missing everything",
			cfg:     Config{},
			opts:    []Option{WithKey(testKey())},
			wantErr: ErrMissingParams,
		},
		{
			name:    "public suffix domain",
			cfg:     Config{Params: map[string]string{"d": "co.uk", "h": "from", "s": "sel1"}},
			opts:    []Option{WithKey(testKey())},
			wantErr: ErrTLD,
		},
		{
			name:    "invalid domain",
			cfg:     Config{Params: map[string]string{"d": strings.Repeat("a", 64) + ".com", "h": "from", "s": "sel1"}},
			opts:    []Option{WithKey(testKey())},
			wantErr: ErrInvalidDomain,
		},
		{
			name: "valid",
			cfg:  Config{Params: exampleParams()},
			opts: []Option{WithKey(testKey())},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithLogger(discardLogger)}, tt.opts...)
			s, err := New(tt.cfg, opts...)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("New() error = %v", err)
				}
				if s == nil {
					t.Fatal("New() returned nil signer")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrConfig) {
				t.Errorf("error %v is not a configuration error", err)
			}
		})
	}
}

func TestSignerParams(t *testing.T) {
	signer := newTestSigner(t, testKey(), exampleParams())

	p := signer.Params()
	if p.Version != "1" || p.Algorithm != "rsa-sha1" {
		t.Errorf("defaults = v=%s a=%s, want v=1 a=rsa-sha1", p.Version, p.Algorithm)
	}

	if err := signer.SetParam("q", "dns/txt"); !errors.Is(err, ErrInvalidParam) {
		t.Errorf("SetParam(q) error = %v, want ErrInvalidParam", err)
	}

	err := signer.SetParams(map[string]string{"d": "other.example", "zz": "1"})
	if !errors.Is(err, ErrInvalidParam) {
		t.Errorf("SetParams() error = %v, want ErrInvalidParam", err)
	}
	if got := signer.Params().Domain; got != "example.com" {
		t.Errorf("domain = %s after failed SetParams, want example.com", got)
	}

	if err := signer.SetParams(map[string]string{"d": "other.example", "s": "sel2"}); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}
	if got := signer.RecordName(); got != "sel2._domainkey.other.example." {
		t.Errorf("RecordName() = %s", got)
	}

	// The returned params are a copy.
	p = signer.Params()
	p.Domain = "changed.example"
	if got := signer.Params().Domain; got != "other.example" {
		t.Errorf("domain = %s, want other.example", got)
	}
}

func TestParamsHeaderNames(t *testing.T) {
	p := Params{Headers: "From: To :subject::DKIM-Signature"}
	want := []string{"from", "to", "subject", "dkim-signature"}
	if got := p.HeaderNames(); !slices.Equal(got, want) {
		t.Errorf("HeaderNames() = %v, want %v", got, want)
	}
}

func TestTags(t *testing.T) {
	tags := emptyHeader(Params{
		Version:   "1",
		Algorithm: "rsa-sha1",
		Domain:    "example.com",
		Headers:   "from:to",
		Selector:  "sel1",
	}, BodyHash([]byte("\r\n")))

	want := "v=1; a=rsa-sha1; bh=uoq1oCgLlTqpdDX/iUbLy7J1Wic=; c=relaxed; d=example.com; h=from:to; s=sel1; b="
	if got := tags.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	var keys []string
	for _, tag := range tags {
		keys = append(keys, tag.Key)
	}
	if want := []string{"v", "a", "bh", "c", "d", "h", "s", "b"}; !slices.Equal(keys, want) {
		t.Errorf("tag order = %v, want %v", keys, want)
	}
	if v, _ := tags.Get("c"); v != "relaxed" {
		t.Errorf("c = %q, want relaxed", v)
	}
}

func TestBodyHash(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"", "uoq1oCgLlTqpdDX/iUbLy7J1Wic="},
		{"\n\n", "uoq1oCgLlTqpdDX/iUbLy7J1Wic="},
		{"Hello", "/t0YeXgRpK9llnjqXbYY+NyRSAs="},
		{"Hello\r\n\r\n", "/t0YeXgRpK9llnjqXbYY+NyRSAs="},
	}

	for _, tt := range tests {
		if got := BodyHash(NormalizeBody([]byte(tt.body))); got != tt.want {
			t.Errorf("BodyHash(%q) = %s, want %s", tt.body, got, tt.want)
		}
	}
}

func TestWrapSignature(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "abc", "abc"},
		{"exact", strings.Repeat("a", 73), strings.Repeat("a", 73)},
		{"one over", strings.Repeat("a", 74), strings.Repeat("a", 73) + " a"},
		{
			"two chunks and rest",
			strings.Repeat("a", 73) + strings.Repeat("b", 73) + "cd",
			strings.Repeat("a", 73) + " " + strings.Repeat("b", 73) + " cd",
		},
		{
			"two full chunks",
			strings.Repeat("a", 146),
			strings.Repeat("a", 73) + " " + strings.Repeat("a", 73),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wrapSignature(tt.in); got != tt.want {
				t.Errorf("wrapSignature() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsTLD(t *testing.T) {
	tests := []struct {
		domain string
		isTLD  bool
	}{
		{"com", true},
		{"org", true},
		{"co.uk", true},
		{"com.au", true},
		{"", true},

		{"example.com", false},
		{"example.co.uk", false},
		{"mail.example.com", false},
		{"example.com.", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			if got := isTLD(tt.domain); got != tt.isTLD {
				t.Errorf("isTLD(%q) = %v, want %v", tt.domain, got, tt.isTLD)
			}
		})
	}
}
