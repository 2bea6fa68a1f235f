package transport

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NamazuStudios/elements-sub015/core/wire"
)

func recv(t *testing.T, s Socket) wire.Message {
	t.Helper()
	select {
	case m := <-s.Recv():
		return m
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestMemoryNetwork_RoundTrip(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	n := NewMemoryNetwork().WithLog(slog.Default())
	t.Cleanup(func() { require.NoError(t, n.Close()) })

	r, err := n.Bind(t.Context(), "mem://a")
	require.NoError(t, err)
	require.Equal(t, "mem://a", r.Addr())

	c, err := n.Dial(t.Context(), "mem://a")
	require.NoError(t, err)

	require.NoError(t, c.Send(t.Context(), wire.Message{{}, []byte("ping")}))

	in := recv(t, r)
	require.Len(t, in, 3)
	require.Equal(t, []byte("ping"), in[2])

	// reply addressed by identity
	require.NoError(t, r.Send(t.Context(), wire.Message{in[0], {}, []byte("pong")}))
	out := recv(t, c)
	require.Equal(t, wire.Message{{}, []byte("pong")}, out)

	require.Equal(t, int64(1), n.Dials())
}

func TestMemoryNetwork_Errors(t *testing.T) {
	n := NewMemoryNetwork()

	_, err := n.Dial(t.Context(), "mem://missing")
	require.ErrorIs(t, err, ErrConnectionRefused)

	r, err := n.Bind(t.Context(), "")
	require.NoError(t, err)
	require.Contains(t, r.Addr(), "mem://")

	_, err = n.Bind(t.Context(), r.Addr())
	require.ErrorIs(t, err, ErrAddressInUse)

	err = r.Send(t.Context(), wire.Message{[]byte("nobody"), {}})
	require.ErrorIs(t, err, ErrPeerNotFound)

	c, err := n.Dial(t.Context(), r.Addr())
	require.NoError(t, err)
	require.NoError(t, c.Send(t.Context(), wire.Message{{}}))
	id := recv(t, r)[0]

	require.NoError(t, r.Disconnect(id))
	<-c.Done()
	require.ErrorIs(t, c.Err(), ErrDisconnected)

	// closing the router resets the remaining peers and frees the address
	c2, err := n.Dial(t.Context(), r.Addr())
	require.NoError(t, err)
	require.NoError(t, r.Close())
	<-c2.Done()
	require.ErrorIs(t, c2.Err(), ErrConnectionReset)

	r2, err := n.Bind(t.Context(), r.Addr())
	require.NoError(t, err)
	require.NoError(t, r2.Close())

	require.NoError(t, n.Close())
	_, err = n.Bind(t.Context(), "x")
	require.ErrorIs(t, err, ErrClosed)
}

func TestPoller(t *testing.T) {
	n := NewMemoryNetwork()
	r, err := n.Bind(t.Context(), "mem://p")
	require.NoError(t, err)
	c, err := n.Dial(t.Context(), "mem://p")
	require.NoError(t, err)

	p := NewPoller()
	defer p.Close()

	rs := p.Register(r)
	cs := p.Register(c)
	require.NotEqual(t, rs, cs)
	require.Equal(t, 2, p.Len())

	_, err = p.Poll(t.Context(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrPollTimeout)

	require.NoError(t, c.Send(t.Context(), wire.Message{{}, []byte("1")}))
	ev, err := p.Poll(t.Context(), time.Second)
	require.NoError(t, err)
	require.Equal(t, rs, ev.Slot)
	require.Equal(t, []byte("1"), ev.Msg[2])

	require.NoError(t, r.Disconnect(ev.Msg[0]))
	ev, err = p.Poll(t.Context(), time.Second)
	require.NoError(t, err)
	require.Equal(t, cs, ev.Slot)
	require.ErrorIs(t, ev.Err, ErrDisconnected)

	p.Deregister(cs)
	require.Equal(t, 1, p.Len())
}

func TestMemoryNetwork_TrySend(t *testing.T) {
	n := NewMemoryNetwork()
	t.Cleanup(func() { require.NoError(t, n.Close()) })

	r, err := n.Bind(t.Context(), "")
	require.NoError(t, err)
	c, err := n.Dial(t.Context(), r.Addr())
	require.NoError(t, err)

	require.NoError(t, c.TrySend(wire.Message{{}, []byte("hello")}))
	id := recv(t, r)[0]

	// the caller never reads its replies
	for range memQueueSize {
		require.NoError(t, r.TrySend(wire.Message{id, []byte("x")}))
	}
	require.ErrorIs(t, r.TrySend(wire.Message{id, []byte("x")}), ErrHighWaterMark)

	// draining makes room again
	recv(t, c)
	require.NoError(t, r.TrySend(wire.Message{id, []byte("x")}))

	for range memQueueSize {
		require.NoError(t, c.TrySend(wire.Message{[]byte("y")}))
	}
	require.ErrorIs(t, c.TrySend(wire.Message{[]byte("y")}), ErrHighWaterMark)

	require.NoError(t, c.Close())
	require.ErrorIs(t, c.TrySend(wire.Message{[]byte("y")}), ErrClosed)
}
