package ds

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSet_AddRemove(t *testing.T) {
	s := NewSet[string]()
	require.True(t, s.IsEmpty())

	require.True(t, s.Add("a"))
	require.False(t, s.Add("a"))
	s.Add("b")
	s.Add("c")
	require.Equal(t, []string{"a", "b", "c"}, s.Values())

	require.True(t, s.Remove("a"))
	require.False(t, s.Remove("a"))
	require.Equal(t, []string{"b", "c"}, s.Values())

	// indexes follow the shift
	require.True(t, s.Remove("c"))
	require.True(t, s.Contains("b"))
	require.Equal(t, 1, s.Len())
}

func TestSet_Iteration(t *testing.T) {
	s := NewSet(3, 1, 2)
	require.Equal(t, []int{3, 1, 2}, slices.Collect(s.All()))
	require.Equal(t, []int{2, 1, 3}, slices.Collect(s.Backward()))

	for v := range s.All() {
		if v == 1 {
			break
		}
	}
}

func TestSet_Diff(t *testing.T) {
	cur := NewSet("a", "b", "c")
	other := NewSet("b", "c", "d", "e")

	add, remove := cur.Diff(other)
	require.Equal(t, []string{"d", "e"}, add.Values())
	require.Equal(t, []string{"a"}, remove.Values())

	add, remove = cur.Diff(cur.Copy())
	require.True(t, add.IsEmpty())
	require.True(t, remove.IsEmpty())
}

func TestSet_JSON(t *testing.T) {
	s := NewSet("hello", "world", "!")

	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.Equal(t, `["hello","world","!"]`, string(data))

	var back Set[string]
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, s.Values(), back.Values())
}
