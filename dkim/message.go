package dkim

import "github.com/synqronlabs/dkimsign"

// Message is the mail object a Signer works on. Header lookups are
// case-insensitive; Headers returns the header list in order.
//
// ReplaceHeaders must swap the header list atomically so that no reader can
// observe the signature header without the rest of the headers.
type Message interface {
	Body() []byte
	SetBody(body []byte)
	Headers() dkimsign.Headers
	Header(name string) (dkimsign.Header, bool)
	AddHeader(name, value string)
	ReplaceHeaders(headers dkimsign.Headers)
}

var _ Message = (*dkimsign.Message)(nil)
