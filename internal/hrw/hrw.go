// Package hrw implements rendezvous (highest random weight) hashing over
// 16-byte identifiers such as instance and node ids.
package hrw

import (
	"cmp"
	"encoding/binary"
	"slices"

	"golang.org/x/crypto/blake2b"
)

// ID is any 16-byte identifier.
type ID interface{ ~[16]byte }

// TopK returns up to k candidates with the highest scores for key, best
// first. seed is optional and separates independent placements.
func TopK[T ID](key string, candidates []T, k int, seed string) []T {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	type entry struct {
		score uint64
		idx   int
	}
	scored := make([]entry, len(candidates))
	for i, c := range candidates {
		scored[i] = entry{score: score([]byte(key), c, seed), idx: i}
	}
	slices.SortFunc(scored, func(a, b entry) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.idx, b.idx)
	})

	out := make([]T, k)
	for i := range out {
		out[i] = candidates[scored[i].idx]
	}
	return out
}

// Best returns the top-1 candidate. ok is false if there are none.
func Best[T ID](key string, candidates []T, seed string) (best T, ok bool) {
	if len(candidates) == 0 {
		return best, false
	}
	return TopK(key, candidates, 1, seed)[0], true
}

func score[T ID](key []byte, id T, seed string) uint64 {
	// 8-byte digest => uint64 score
	h, _ := blake2b.New(8, nil)
	if seed != "" {
		h.Write([]byte(seed))
		h.Write([]byte{0})
	}
	h.Write(key)
	h.Write([]byte{0})
	raw := [16]byte(id)
	h.Write(raw[:])
	return binary.BigEndian.Uint64(h.Sum(nil))
}
