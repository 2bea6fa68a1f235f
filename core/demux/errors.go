package demux

import "errors"

var (
	ErrFrontendFailed = errors.New("demux frontend failed")
	ErrNotStarted     = errors.New("demux not started")
	ErrAlreadyStarted = errors.New("demux already started")
	ErrMalformedFrame = errors.New("malformed frame")
)
