package wire

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHeaders_RoundTrip(t *testing.T) {
	t.Run("routing", func(t *testing.T) {
		for _, in := range []RoutingHeader{
			{Status: StatusContinue, Destination: uuid.New()},
			{Status: StatusDead, Destination: uuid.Nil},
		} {
			b, err := in.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, b, in.Size())

			var out RoutingHeader
			require.NoError(t, out.UnmarshalBinary(b))
			require.Equal(t, in, out)

			again, _ := out.MarshalBinary()
			require.Equal(t, b, again)
		}
	})

	t.Run("request", func(t *testing.T) {
		for _, n := range []int32{0, 1, 7, 1 << 30} {
			in := RequestHeader{AdditionalParts: n}
			b, err := in.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, b, in.Size())

			var out RequestHeader
			require.NoError(t, out.UnmarshalBinary(b))
			require.Equal(t, in, out)
		}
	})

	t.Run("response", func(t *testing.T) {
		for _, in := range []ResponseHeader{
			{Type: ResponseResult, Part: 0},
			{Type: ResponseError, Part: 0},
			{Type: ResponseResult, Part: 3},
		} {
			b, err := in.MarshalBinary()
			require.NoError(t, err)
			require.Len(t, b, in.Size())

			var out ResponseHeader
			require.NoError(t, out.UnmarshalBinary(b))
			require.Equal(t, in, out)
		}
	})
}

func TestHeaders_Layout(t *testing.T) {
	dest := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	b, _ := RoutingHeader{Status: StatusContinue, Destination: dest}.MarshalBinary()
	require.Equal(t, append([]byte{1}, dest[:]...), b)

	b, _ = RequestHeader{AdditionalParts: 2}.MarshalBinary()
	require.Equal(t, []byte{0, 0, 0, 2}, b)

	b, _ = ResponseHeader{Type: ResponseError, Part: 258}.MarshalBinary()
	require.Equal(t, []byte{2, 0, 0, 1, 2}, b)
}

func TestHeaders_Malformed(t *testing.T) {
	var rh RoutingHeader
	require.ErrorIs(t, rh.UnmarshalBinary([]byte{1, 2, 3}), ErrMalformedHeader)
	require.ErrorIs(t, rh.UnmarshalBinary(make([]byte, RoutingHeaderSize)), ErrMalformedHeader)

	var req RequestHeader
	require.ErrorIs(t, req.UnmarshalBinary([]byte{0xff, 0xff, 0xff, 0xff}), ErrMalformedHeader)
	_, err := RequestHeader{AdditionalParts: -1}.MarshalBinary()
	require.ErrorIs(t, err, ErrMalformedHeader)

	var resp ResponseHeader
	require.ErrorIs(t, resp.UnmarshalBinary([]byte{9, 0, 0, 0, 0}), ErrMalformedHeader)
	require.ErrorIs(t, resp.UnmarshalBinary(nil), ErrMalformedHeader)
}

func TestMessage_Split(t *testing.T) {
	m := Join(Message{[]byte("a"), []byte("b")}, []byte("h"), []byte("p"))
	require.Len(t, m, 5)

	env, body, err := m.Split()
	require.NoError(t, err)
	require.Equal(t, Message{[]byte("a"), []byte("b")}, env)
	require.Equal(t, Message{[]byte("h"), []byte("p")}, body)

	_, _, err = Message{[]byte("a"), []byte("b")}.Split()
	require.ErrorIs(t, err, ErrNoDelimiter)

	env, body, err = Message{{}, []byte("x")}.Split()
	require.NoError(t, err)
	require.Empty(t, env)
	require.Equal(t, Message{[]byte("x")}, body)
}

func TestMessage_Encoding(t *testing.T) {
	in := Message{[]byte("id"), {}, []byte{1, 2, 3}, bytes.Repeat([]byte("x"), 1000)}

	b, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, in, out)

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, in))
	require.NoError(t, WriteMessage(&buf, Message{[]byte("second")}))

	out, err = ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, in, out)

	out, err = ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, Message{[]byte("second")}, out)

	_, err = Decode(b[:len(b)-1])
	require.ErrorIs(t, err, ErrMalformedMessage)
}
