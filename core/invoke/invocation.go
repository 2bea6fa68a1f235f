package invoke

import (
	"errors"
	"fmt"
	"strings"
)

// Invocation is one method call request.
type Invocation struct {
	Type string `json:"type"`
	// Name selects a named target of Type; empty selects the default one.
	Name   string `json:"name,omitempty"`
	Method string `json:"method"`
	// Parameters is the ordered parameter type signature. Empty matches a
	// method that has a single registration.
	Parameters []string `json:"parameters,omitempty"`
	// Arguments are payload-encoded argument values.
	Arguments [][]byte `json:"arguments,omitempty"`
}

func (inv *Invocation) String() string {
	var b strings.Builder
	b.WriteString(inv.Type)
	if inv.Name != "" {
		b.WriteString("[" + inv.Name + "]")
	}
	b.WriteString("#" + inv.Method + "(" + strings.Join(inv.Parameters, ",") + ")")
	return b.String()
}

// Result is a successful outcome. Value is payload-encoded; it is empty for
// methods whose return value is ignored.
type Result struct {
	OK    bool   `json:"ok"`
	Value []byte `json:"value,omitempty"`
}

// Error is a failed outcome as it travels on the wire.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	cause error
}

// Error kinds.
const (
	KindResolution = "ResolutionError"
	KindInvocation = "InvocationError"
	KindPanic      = "Panic"
	KindCodec      = "CodecError"
	KindProtocol   = "ProtocolError"
)

func (e *Error) Error() string {
	if e.Type == "" {
		return e.Message
	}
	return e.Type + ": " + e.Message
}

// Unwrap returns the local cause. It is nil for errors decoded off the wire.
func (e *Error) Unwrap() error { return e.cause }

// NewError captures err as an Error of the given kind.
func NewError(kind string, err error) *Error {
	return &Error{Type: kind, Message: err.Error(), cause: err}
}

// AsError converts err into an *Error, classifying sentinel errors of
// this package. Errors that already are *Error pass through.
func AsError(err error) *Error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}
	switch {
	case errors.Is(err, ErrNoSuchType),
		errors.Is(err, ErrNoSuchMethod),
		errors.Is(err, ErrAmbiguousMethod),
		errors.Is(err, ErrNoSuchTarget):
		return NewError(KindResolution, err)
	case errors.Is(err, ErrPanic):
		return NewError(KindPanic, err)
	}
	return NewError(KindInvocation, err)
}

type (
	ResultConsumer func(Result)
	ErrorConsumer  func(*Error)
	// AsyncErrorConsumer receives the terminal async error together with the
	// async part it stands in for.
	AsyncErrorConsumer func(part int, err *Error)
)

func errorf(kind, format string, args ...any) *Error {
	return NewError(kind, fmt.Errorf(format, args...))
}
