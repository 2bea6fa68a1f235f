package nats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/ports/directory"
)

func TestKvStore_Directory(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a nats container")
	}
	kv, err := NewKvStore(t.Context(), KvConfig{Bucket: "nodes", Connect: NewTestContainer(t)})
	require.NoError(t, err)
	defer kv.Close()

	_, err = kv.Get(t.Context(), "missing")
	require.ErrorIs(t, err, directory.ErrNotFound)

	dir := directory.NewStoreDirectory(directory.StoreDirectoryOpts{Store: kv})
	id := ids.NodeFor(ids.NewInstanceID(), ids.ApplicationFromName("app"))

	require.NoError(t, dir.Register(t.Context(), id, "clstr.router.a"))
	addr, err := dir.Lookup(t.Context(), id)
	require.NoError(t, err)
	require.Equal(t, "clstr.router.a", addr)

	require.NoError(t, dir.Deregister(t.Context(), id))
	require.NoError(t, dir.Deregister(t.Context(), id))
	_, err = dir.Lookup(t.Context(), id)
	require.ErrorIs(t, err, directory.ErrNotFound)
}
