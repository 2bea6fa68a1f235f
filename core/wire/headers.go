package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Status tells the demultiplexer what to do with a frame.
type Status uint8

const (
	// StatusContinue asks for the frame to be routed to its destination.
	StatusContinue Status = 1
	// StatusDead reports that the destination is unknown or unreachable.
	StatusDead Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusContinue:
		return "CONTINUE"
	case StatusDead:
		return "DEAD"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// ResponseType tells whether a response payload carries a result or an error.
type ResponseType uint8

const (
	ResponseResult ResponseType = 1
	ResponseError  ResponseType = 2
)

func (t ResponseType) String() string {
	switch t {
	case ResponseResult:
		return "RESULT"
	case ResponseError:
		return "ERROR"
	default:
		return fmt.Sprintf("ResponseType(%d)", uint8(t))
	}
}

const (
	RoutingHeaderSize  = 1 + 16
	RequestHeaderSize  = 4
	ResponseHeaderSize = 1 + 4
)

// RoutingHeader is prepended to frames at the demultiplexer hop only.
// Layout: [1 status][16 destination uuid].
type RoutingHeader struct {
	Status      Status
	Destination uuid.UUID
}

func (h RoutingHeader) Size() int { return RoutingHeaderSize }

func (h RoutingHeader) Append(dst []byte) []byte {
	dst = append(dst, byte(h.Status))
	return append(dst, h.Destination[:]...)
}

func (h RoutingHeader) MarshalBinary() ([]byte, error) {
	return h.Append(make([]byte, 0, RoutingHeaderSize)), nil
}

func (h *RoutingHeader) UnmarshalBinary(b []byte) error {
	if len(b) != RoutingHeaderSize {
		return fmt.Errorf("%w: routing header has %d bytes, want %d", ErrMalformedHeader, len(b), RoutingHeaderSize)
	}
	s := Status(b[0])
	if s != StatusContinue && s != StatusDead {
		return fmt.Errorf("%w: unknown routing status %d", ErrMalformedHeader, b[0])
	}
	h.Status = s
	copy(h.Destination[:], b[1:])
	return nil
}

// RequestHeader declares how many asynchronous parts the caller accepts
// beyond the synchronous reply. Layout: [4 additional parts, big endian].
type RequestHeader struct {
	AdditionalParts int32
}

func (h RequestHeader) Size() int { return RequestHeaderSize }

func (h RequestHeader) Append(dst []byte) []byte {
	return binary.BigEndian.AppendUint32(dst, uint32(h.AdditionalParts))
}

func (h RequestHeader) MarshalBinary() ([]byte, error) {
	if h.AdditionalParts < 0 {
		return nil, fmt.Errorf("%w: negative additional parts %d", ErrMalformedHeader, h.AdditionalParts)
	}
	return h.Append(make([]byte, 0, RequestHeaderSize)), nil
}

func (h *RequestHeader) UnmarshalBinary(b []byte) error {
	if len(b) != RequestHeaderSize {
		return fmt.Errorf("%w: request header has %d bytes, want %d", ErrMalformedHeader, len(b), RequestHeaderSize)
	}
	n := int32(binary.BigEndian.Uint32(b))
	if n < 0 {
		return fmt.Errorf("%w: negative additional parts %d", ErrMalformedHeader, n)
	}
	h.AdditionalParts = n
	return nil
}

// ResponseHeader correlates a reply with its slot. Part 0 is the
// synchronous reply, parts >= 1 are asynchronous slots.
// Layout: [1 type][4 part, big endian].
type ResponseHeader struct {
	Type ResponseType
	Part int32
}

func (h ResponseHeader) Size() int { return ResponseHeaderSize }

func (h ResponseHeader) Append(dst []byte) []byte {
	dst = append(dst, byte(h.Type))
	return binary.BigEndian.AppendUint32(dst, uint32(h.Part))
}

func (h ResponseHeader) MarshalBinary() ([]byte, error) {
	return h.Append(make([]byte, 0, ResponseHeaderSize)), nil
}

func (h *ResponseHeader) UnmarshalBinary(b []byte) error {
	if len(b) != ResponseHeaderSize {
		return fmt.Errorf("%w: response header has %d bytes, want %d", ErrMalformedHeader, len(b), ResponseHeaderSize)
	}
	t := ResponseType(b[0])
	if t != ResponseResult && t != ResponseError {
		return fmt.Errorf("%w: unknown response type %d", ErrMalformedHeader, b[0])
	}
	part := int32(binary.BigEndian.Uint32(b[1:]))
	if part < 0 {
		return fmt.Errorf("%w: negative part %d", ErrMalformedHeader, part)
	}
	h.Type = t
	h.Part = part
	return nil
}

// IsSync reports whether the header addresses the synchronous slot.
func (h ResponseHeader) IsSync() bool { return h.Part == 0 }
