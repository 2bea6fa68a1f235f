package node

import "errors"

var (
	ErrInvalidPhase     = errors.New("invalid node phase")
	ErrNoBinding        = errors.New("binding is required")
	ErrProxyStopped     = errors.New("proxy stopped")
	ErrDrainTimeout     = errors.New("dispatch pool drain timed out")
	ErrDestinationDead  = errors.New("destination is dead")
	ErrMalformedReply   = errors.New("malformed reply")
	ErrTooManyParts     = errors.New("too many additional parts")
	ErrUnexpectedStatus = errors.New("unexpected routing status")
	ErrClientBroken     = errors.New("client broken by an abandoned call")
)
