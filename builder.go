package dkimsign

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/synqronlabs/dkimsign/utils"
)

// MessageBuilder provides a fluent API for constructing Message objects.
type MessageBuilder struct {
	msg        *Message
	from       *mail.Address
	recipients int
	now        func() time.Time
	errors     []error
}

// NewMessageBuilder creates a new MessageBuilder instance.
func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{
		msg: NewMessage(),
		now: time.Now,
	}
}

// From sets the From header.
func (b *MessageBuilder) From(address string) *MessageBuilder {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid from address %q: %w", address, err))
		return b
	}
	b.from = parsed
	b.msg.AddHeader("From", formatAddress(parsed))
	return b
}

// To adds recipients to the To header.
func (b *MessageBuilder) To(addresses ...string) *MessageBuilder {
	return b.addressHeader("To", addresses)
}

// Cc adds recipients to the Cc header.
func (b *MessageBuilder) Cc(addresses ...string) *MessageBuilder {
	return b.addressHeader("Cc", addresses)
}

// ReplyTo sets the Reply-To header.
func (b *MessageBuilder) ReplyTo(address string) *MessageBuilder {
	parsed, err := mail.ParseAddress(address)
	if err != nil {
		b.errors = append(b.errors, fmt.Errorf("invalid reply-to address %q: %w", address, err))
		return b
	}
	b.msg.AddHeader("Reply-To", formatAddress(parsed))
	return b
}

// Subject sets the Subject header.
func (b *MessageBuilder) Subject(subject string) *MessageBuilder {
	if utils.ContainsNonASCII(subject) {
		subject = encodeRFC2047(subject)
	}
	b.msg.AddHeader("Subject", subject)
	return b
}

// Header adds a custom header to the message.
func (b *MessageBuilder) Header(name, value string) *MessageBuilder {
	b.msg.AddHeader(name, value)
	return b
}

// MessageID sets the Message-ID header.
func (b *MessageBuilder) MessageID(id string) *MessageBuilder {
	if !strings.HasPrefix(id, "<") {
		id = "<" + id + ">"
	}
	b.msg.AddHeader("Message-ID", id)
	return b
}

// Date sets the Date header. If not called, Build() will use the current time.
func (b *MessageBuilder) Date(t time.Time) *MessageBuilder {
	b.msg.AddHeader("Date", t.Format(time.RFC1123Z))
	return b
}

// TextBody sets a plain text body for the message.
// Line endings are normalized to CRLF.
func (b *MessageBuilder) TextBody(body string) *MessageBuilder {
	normalizedBody := normalizeLineEndings(body)
	b.msg.SetBody([]byte(normalizedBody))
	b.msg.AddHeader("Content-Type", "text/plain; charset=utf-8")

	if utils.ContainsNonASCII(normalizedBody) {
		b.msg.AddHeader("Content-Transfer-Encoding", "8bit")
	} else {
		b.msg.AddHeader("Content-Transfer-Encoding", "7bit")
	}
	return b
}

// Build finalizes the Message and returns it.
// The builder adds a Date header and a Message-ID when they are missing, and
// a MIME-Version header in front of Content-Type.
func (b *MessageBuilder) Build() (*Message, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("message builder errors: %w", errors.Join(b.errors...))
	}
	if b.from == nil {
		return nil, ErrMissingFrom
	}
	if b.recipients == 0 {
		return nil, ErrNoRecipients
	}

	headers := b.msg.Headers()

	if headers.Get("Date") == "" {
		headers = append(headers, Header{Name: "Date", Value: b.now().Format(time.RFC1123Z)})
	}

	if headers.Get("Message-ID") == "" {
		domain := "localhost"
		if _, d, ok := strings.Cut(b.from.Address, "@"); ok && d != "" {
			domain = d
		}
		headers = append(headers, Header{Name: "Message-ID", Value: "<" + utils.GenerateID() + "@" + domain + ">"})
	}

	if headers.Get("Content-Type") != "" && headers.Get("MIME-Version") == "" {
		withVersion := make(Headers, 0, len(headers)+1)
		for _, h := range headers {
			if h.Name == "Content-Type" {
				withVersion = append(withVersion, Header{Name: "MIME-Version", Value: "1.0"})
			}
			withVersion = append(withVersion, h)
		}
		headers = withVersion
	}

	b.msg.ReplaceHeaders(headers)
	if b.msg.Body() == nil {
		b.msg.SetBody([]byte{})
	}
	return b.msg, nil
}

// MustBuild is like Build but panics on error.
func (b *MessageBuilder) MustBuild() *Message {
	msg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return msg
}

// addressHeader parses addresses and appends them to the named header,
// creating it when absent.
func (b *MessageBuilder) addressHeader(name string, addresses []string) *MessageBuilder {
	var parsed []*mail.Address
	for _, addr := range addresses {
		p, err := mail.ParseAddress(addr)
		if err != nil {
			b.errors = append(b.errors, fmt.Errorf("invalid %s address %q: %w", strings.ToLower(name), addr, err))
			continue
		}
		parsed = append(parsed, p)
	}
	if len(parsed) == 0 {
		return b
	}
	b.recipients += len(parsed)

	headers := b.msg.Headers()
	if i := headers.Index(name); i >= 0 {
		headers[i].Value += ", " + formatAddressList(parsed)
		b.msg.ReplaceHeaders(headers)
		return b
	}
	b.msg.AddHeader(name, formatAddressList(parsed))
	return b
}

// formatAddress formats an address for use in headers.
func formatAddress(addr *mail.Address) string {
	if addr.Name == "" {
		return addr.Address
	}
	displayName := addr.Name
	if utils.ContainsNonASCII(displayName) {
		displayName = encodeRFC2047(displayName)
	} else if strings.ContainsAny(displayName, `"(),.:;<>@[\]`) {
		displayName = `"` + strings.ReplaceAll(displayName, `"`, `\"`) + `"`
	}
	return displayName + " <" + addr.Address + ">"
}

// formatAddressList formats multiple addresses for use in headers.
func formatAddressList(addresses []*mail.Address) string {
	formatted := make([]string, len(addresses))
	for i, addr := range addresses {
		formatted[i] = formatAddress(addr)
	}
	return strings.Join(formatted, ", ")
}

// encodeRFC2047 encodes a string using RFC 2047 Base64 encoding.
func encodeRFC2047(s string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(s))
	return "=?UTF-8?B?" + encoded + "?="
}

// normalizeLineEndings converts all line endings to CRLF.
// Handles LF, CR, and CRLF inputs.
func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
