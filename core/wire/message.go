package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Message is one multi-part message. Routers address peers by identity
// frames placed in front of an empty delimiter frame:
//
//	request: [identity..., "", RoutingHeader?, RequestHeader, payload]
//	reply:   [identity..., "", RoutingHeader?, ResponseHeader, payload]
type Message [][]byte

// Clone deep-copies the message so it can cross goroutines safely.
func (m Message) Clone() Message {
	out := make(Message, len(m))
	for i, f := range m {
		out[i] = bytes.Clone(f)
		if out[i] == nil {
			out[i] = []byte{}
		}
	}
	return out
}

// Split separates the identity envelope from the body at the first empty
// delimiter frame.
func (m Message) Split() (envelope Message, body Message, err error) {
	for i, f := range m {
		if len(f) == 0 {
			return m[:i], m[i+1:], nil
		}
	}
	return nil, nil, ErrNoDelimiter
}

// Join builds [envelope..., "", body...].
func Join(envelope Message, body ...[]byte) Message {
	out := make(Message, 0, len(envelope)+1+len(body))
	out = append(out, envelope...)
	out = append(out, []byte{})
	return append(out, body...)
}

// Prepend returns [frame, m...].
func (m Message) Prepend(frame []byte) Message {
	out := make(Message, 0, len(m)+1)
	out = append(out, frame)
	return append(out, m...)
}

// Size returns the total payload bytes of all frames.
func (m Message) Size() int {
	n := 0
	for _, f := range m {
		n += len(f)
	}
	return n
}

// ===== stream framing =====

// MaxMessageSize bounds a single encoded message on stream transports.
const MaxMessageSize = 64 * 1024 * 1024

// maxParts bounds the number of frames in one message.
const maxParts = 1 << 16

// AppendEncoded encodes m as [4 body len][2 parts]{[4 part len][part]}.
func AppendEncoded(dst []byte, m Message) []byte {
	bodyLen := 2
	for _, f := range m {
		bodyLen += 4 + len(f)
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(bodyLen))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(m)))
	for _, f := range m {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(f)))
		dst = append(dst, f...)
	}
	return dst
}

// Encode returns the stream encoding of m.
func Encode(m Message) ([]byte, error) {
	if len(m) >= maxParts {
		return nil, fmt.Errorf("%w: %d parts", ErrMessageTooLarge, len(m))
	}
	if m.Size()+2+4*len(m) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, m.Size())
	}
	return AppendEncoded(nil, m), nil
}

// Decode parses one stream-encoded message occupying all of b.
func Decode(b []byte) (Message, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("%w: short length prefix", ErrMalformedMessage)
	}
	n := binary.BigEndian.Uint32(b)
	if int(n) != len(b)-4 {
		return nil, fmt.Errorf("%w: length prefix %d, have %d", ErrMalformedMessage, n, len(b)-4)
	}
	return decodeBody(b[4:])
}

// ReadMessage reads one stream-encoded message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n < 2 || n > MaxMessageSize {
		return nil, fmt.Errorf("%w: body length %d", ErrMalformedMessage, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decodeBody(body)
}

// WriteMessage writes the stream encoding of m to w in a single call.
func WriteMessage(w io.Writer, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func decodeBody(b []byte) (Message, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: missing part count", ErrMalformedMessage)
	}
	parts := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	m := make(Message, 0, parts)
	for i := 0; i < parts; i++ {
		if len(b) < 4 {
			return nil, fmt.Errorf("%w: part %d truncated", ErrMalformedMessage, i)
		}
		l := int(binary.BigEndian.Uint32(b))
		b = b[4:]
		if l > len(b) {
			return nil, fmt.Errorf("%w: part %d wants %d bytes, have %d", ErrMalformedMessage, i, l, len(b))
		}
		f := make([]byte, l)
		copy(f, b[:l])
		m = append(m, f)
		b = b[l:]
	}
	if len(b) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedMessage, len(b))
	}
	return m, nil
}
