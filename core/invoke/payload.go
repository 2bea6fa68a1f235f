package invoke

import "github.com/NamazuStudios/elements-sub015/internal/codec"

// PayloadReader decodes payload bytes into v.
type PayloadReader interface {
	Read(data []byte, v any) error
}

// PayloadWriter encodes v into payload bytes.
type PayloadWriter interface {
	Write(v any) ([]byte, error)
}

type Codec interface {
	PayloadReader
	PayloadWriter
}

type codecAdapter struct{ c codec.Codec }

func (a codecAdapter) Read(data []byte, v any) error { return a.c.Unmarshal(data, v) }
func (a codecAdapter) Write(v any) ([]byte, error)   { return a.c.Marshal(v) }

// NewCodec adapts a marshal/unmarshal codec to the payload boundary.
func NewCodec(c codec.Codec) Codec { return codecAdapter{c: c} }

// JSON is the default payload codec.
var JSON = NewCodec(codec.JSON{})

// Args gives a call function typed access to the invocation's arguments.
type Args struct {
	raw [][]byte
	r   PayloadReader
}

func NewArgs(r PayloadReader, raw [][]byte) Args { return Args{raw: raw, r: r} }

func (a Args) Len() int { return len(a.raw) }

// Decode decodes argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a.raw) {
		return errorf(KindInvocation, "argument %d of %d: %w", i, len(a.raw), ErrArgumentCount)
	}
	if err := a.r.Read(a.raw[i], v); err != nil {
		return NewError(KindCodec, err)
	}
	return nil
}

// EncodeArgs encodes each value with w, for building invocations.
func EncodeArgs(w PayloadWriter, values ...any) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		b, err := w.Write(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
