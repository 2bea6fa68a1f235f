package wire

import "errors"

var (
	ErrMalformedHeader  = errors.New("malformed header")
	ErrMalformedMessage = errors.New("malformed message")
	ErrNoDelimiter      = errors.New("missing empty delimiter frame")
	ErrMessageTooLarge  = errors.New("message too large")
)
