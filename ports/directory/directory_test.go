package directory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NamazuStudios/elements-sub015/core/ids"
)

func TestStoreDirectory(t *testing.T) {
	d := NewMemory()
	id := ids.NodeFor(ids.NewInstanceID(), ids.ApplicationFromName("game"))

	_, err := d.Lookup(t.Context(), id)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.Register(t.Context(), id, "mem://n1"))
	addr, err := d.Lookup(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, "mem://n1", addr)

	rec, err := d.Record(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, id, rec.NodeID)
	require.False(t, rec.RegisteredAt.IsZero())

	require.NoError(t, d.Register(t.Context(), id, "mem://n2"))
	addr, _ = d.Lookup(t.Context(), id)
	require.Equal(t, "mem://n2", addr)

	require.NoError(t, d.Deregister(t.Context(), id))
	require.NoError(t, d.Deregister(t.Context(), id))
	_, err = d.Lookup(t.Context(), id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_TTL(t *testing.T) {
	now := time.Unix(100, 0)
	s := NewMemStore()
	s.now = func() time.Time { return now }

	d := NewStoreDirectory(StoreDirectoryOpts{Store: s, TTL: time.Minute, Now: s.now})
	id := ids.NodeFor(ids.NewInstanceID(), ids.MasterApplication)
	require.NoError(t, d.Register(t.Context(), id, "addr"))

	_, err := d.Lookup(t.Context(), id)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = d.Lookup(t.Context(), id)
	require.ErrorIs(t, err, ErrNotFound)
}
