package nats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReuseConnection(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a nats container")
	}
	connect := ReuseConnection(NewTestContainer(t))

	nc1, release1, err := connect()
	require.NoError(t, err)
	nc2, release2, err := connect()
	require.NoError(t, err)
	require.Same(t, nc1, nc2)
	require.Equal(t, "CONNECTED", nc1.Status().String())

	release1()
	release1()
	require.Equal(t, "CONNECTED", nc1.Status().String())
	release2()
	require.Equal(t, "CLOSED", nc1.Status().String())

	nc3, release3, err := connect()
	require.NoError(t, err)
	defer release3()
	require.NotSame(t, nc1, nc3)
	require.Equal(t, "CONNECTED", nc3.Status().String())
}
