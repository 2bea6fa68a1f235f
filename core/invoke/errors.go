package invoke

import "errors"

var (
	ErrNoSuchType      = errors.New("no such type")
	ErrNoSuchMethod    = errors.New("no such method")
	ErrAmbiguousMethod = errors.New("ambiguous method")
	ErrNoSuchTarget    = errors.New("no such target")
	ErrTargetType      = errors.New("target has unexpected type")
	ErrArgumentCount   = errors.New("wrong number of arguments")
	ErrNotFuture       = errors.New("return value is not a future")
	ErrPanic           = errors.New("invocation panicked")
	ErrStreamEnded     = errors.New("stream ended before all async parts were filled")
	ErrNoAsyncResults  = errors.New("method produces no async results")
)
