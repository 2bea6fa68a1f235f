package nats

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
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestNats_Network(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a nats container")
	}
	slog.SetLogLoggerLevel(slog.LevelDebug)

	n, err := NewNetwork(NetworkConfig{Connect: NewTestContainer(t), SubjectPrefix: "test"})
	require.NoError(t, err)
	defer n.Close()

	r, err := n.Bind(t.Context(), "")
	require.NoError(t, err)
	defer r.Close()
	require.Contains(t, r.Addr(), "test.router.")

	c, err := n.Dial(t.Context(), r.Addr())
	require.NoError(t, err)
	defer c.Close()

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, c.Send(t.Context(), wire.Message{{}, []byte("ping")}))

		in := recv(t, r)
		require.Len(t, in, 3)
		require.Equal(t, []byte("ping"), in[2])

		require.NoError(t, r.Send(t.Context(), wire.Message{in[0], {}, []byte("pong")}))
		require.Equal(t, wire.Message{{}, []byte("pong")}, recv(t, c))
	})

	t.Run("disconnect", func(t *testing.T) {
		require.NoError(t, c.Send(t.Context(), wire.Message{{}, []byte("hello")}))
		in := recv(t, r)

		require.NoError(t, r.Disconnect(in[0]))
		select {
		case <-c.Done():
			require.ErrorIs(t, c.Err(), transport.ErrDisconnected)
		case <-time.After(5 * time.Second):
			t.Fatal("socket not disconnected")
		}
		require.ErrorIs(t, c.Send(t.Context(), wire.Message{{}, []byte("again")}), transport.ErrDisconnected)
	})

	t.Run("close disconnects peers", func(t *testing.T) {
		r2, err := n.Bind(t.Context(), n.NodeSubject("n2"))
		require.NoError(t, err)
		require.Equal(t, "test.node.n2", r2.Addr())

		c2, err := n.Dial(t.Context(), r2.Addr())
		require.NoError(t, err)
		defer c2.Close()
		require.NoError(t, c2.Send(t.Context(), wire.Message{{}, []byte("hi")}))
		recv(t, r2)

		require.NoError(t, r2.Close())
		waitDone(t, c2)
		require.ErrorIs(t, c2.Err(), transport.ErrDisconnected)
	})

	t.Run("no responders", func(t *testing.T) {
		c3, err := n.Dial(t.Context(), n.NodeSubject("nobody"))
		require.NoError(t, err)
		defer c3.Close()

		require.NoError(t, c3.TrySend(wire.Message{{}, []byte("anyone?")}))
		waitDone(t, c3)
		require.ErrorIs(t, c3.Err(), transport.ErrConnectionReset)
	})
}

func waitDone(t *testing.T, s transport.Socket) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("socket still open")
	}
}

func TestRouter_Prune(t *testing.T) {
	t0 := time.Now()
	r := &router{
		peers:  make(map[string]time.Time),
		gone:   make(map[string]time.Time),
		pruned: t0,
	}

	require.True(t, r.seen("a", t0))
	require.True(t, r.seen("b", t0))
	r.gone["x"] = t0

	// nothing is pruned before pruneEvery
	require.True(t, r.seen("c", t0.Add(pruneEvery/2)))
	require.Len(t, r.peers, 3)
	require.Len(t, r.gone, 1)
	require.False(t, r.seen("x", t0.Add(pruneEvery/2)))

	// b stays active, a goes idle
	later := t0.Add(peerIdle + pruneEvery)
	require.True(t, r.seen("b", later))
	require.True(t, r.seen("d", later.Add(time.Second)))
	require.NotContains(t, r.peers, "a")
	require.Contains(t, r.peers, "b")
	require.Contains(t, r.peers, "d")

	// an expired disconnect is forgotten
	require.Empty(t, r.gone)
	require.True(t, r.seen("x", later.Add(time.Second)))
}
