package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}
	var c Codec = JSON{}

	b, err := c.Marshal(point{1, 2})
	require.NoError(t, err)
	require.JSONEq(t, `{"x":1,"y":2}`, string(b))

	var p point
	require.NoError(t, c.Unmarshal(b, &p))
	require.Equal(t, point{1, 2}, p)

	var ptr *point
	require.NoError(t, c.Unmarshal(nil, &ptr))
	require.Nil(t, ptr)

	require.Error(t, c.Unmarshal([]byte("{"), &p))
	_, err = c.Marshal(make(chan int))
	require.Error(t, err)
}
