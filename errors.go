package dkimsign

import "errors"

var (
	ErrMalformedMessage = errors.New("dkimsign: malformed message")
	ErrMissingFrom      = errors.New("dkimsign: from address is required")
	ErrNoRecipients     = errors.New("dkimsign: at least one recipient is required")
)
