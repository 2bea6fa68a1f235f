package tcp

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/core/wire"
)

func recv(t *testing.T, s transport.Socket) wire.Message {
	t.Helper()
	select {
	case m := <-s.Recv():
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestTCP_RoundTrip(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)
	n := NewNetwork(Options{})

	r, err := n.Bind(t.Context(), "")
	require.NoError(t, err)
	defer r.Close()

	c, err := n.Dial(t.Context(), r.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Send(t.Context(), wire.Message{{}, []byte("ping"), []byte{0, 1, 2}}))
	in := recv(t, r)
	require.Len(t, in, 4)
	require.Equal(t, []byte("ping"), in[2])
	require.Equal(t, []byte{0, 1, 2}, in[3])

	require.NoError(t, r.Send(t.Context(), wire.Message{in[0], {}, []byte("pong")}))
	require.Equal(t, wire.Message{{}, []byte("pong")}, recv(t, c))

	require.ErrorIs(t, r.Send(t.Context(), wire.Message{[]byte("nobody"), {}}), transport.ErrPeerNotFound)
}

func TestTCP_Disconnect(t *testing.T) {
	n := NewNetwork(Options{})
	r, err := n.Bind(t.Context(), "")
	require.NoError(t, err)

	c, err := n.Dial(t.Context(), r.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Send(t.Context(), wire.Message{{}, []byte("hi")}))
	in := recv(t, r)
	require.NoError(t, r.Disconnect(in[0]))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("peer still connected")
	}

	require.NoError(t, r.Close())
	select {
	case <-r.Done():
	default:
		t.Fatal("router not done")
	}
	_, err = n.Dial(t.Context(), r.Addr())
	require.ErrorIs(t, err, transport.ErrConnectionRefused)
}

func TestTCP_TrySend(t *testing.T) {
	n := NewNetwork(Options{})
	r, err := n.Bind(t.Context(), "")
	require.NoError(t, err)
	defer r.Close()

	c, err := n.Dial(t.Context(), r.Addr())
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.TrySend(wire.Message{{}, []byte("hi")}))
	id := recv(t, r)[0]

	// c never reads: once the socket buffers and the queue are full,
	// messages are dropped instead of blocking the sender
	payload := make([]byte, 64<<10)
	for i := 0; i < 10_000 && err == nil; i++ {
		err = r.TrySend(wire.Message{id, payload})
	}
	require.ErrorIs(t, err, transport.ErrHighWaterMark)

	require.NoError(t, c.Close())
	require.ErrorIs(t, c.TrySend(wire.Message{{}}), transport.ErrClosed)
}
