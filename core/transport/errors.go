package transport

import "errors"

var (
	ErrClosed            = errors.New("socket closed")
	ErrAddressInUse      = errors.New("address already in use")
	ErrConnectionRefused = errors.New("connection refused")
	ErrConnectionReset   = errors.New("connection reset by peer")
	ErrDisconnected      = errors.New("peer disconnected")
	ErrPeerNotFound      = errors.New("no such peer")
	ErrNoIdentity        = errors.New("message has no identity frame")
	ErrPollTimeout       = errors.New("poll timeout")
	ErrHighWaterMark     = errors.New("peer queue full, message dropped")
)
