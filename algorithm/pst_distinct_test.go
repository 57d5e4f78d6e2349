package algorithm

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/pstree/xerrors"
)

func TestDistinctCounter(t *testing.T) {
	d, err := NewDistinctCounter([]int{1, 1, 2, 1, 3})
	require.NoError(t, err)

	cases := []struct {
		l, r int
		want int64
	}{
		{1, 5, 3},
		{1, 2, 1},
		{2, 4, 2},
		{3, 5, 3},
		{4, 4, 1},
	}
	for _, tc := range cases {
		got, err := d.Count(tc.l, tc.r)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "[%d, %d]", tc.l, tc.r)
	}

	_, err = d.Count(0, 3)
	assert.ErrorIs(t, err, xerrors.ErrOutOfRange)
	_, err = d.Count(4, 2)
	assert.ErrorIs(t, err, xerrors.ErrOutOfRange)
}

func TestDistinctCounterMatchesBruteForce(t *testing.T) {
	const n = 150
	rng := rand.New(rand.NewPCG(31, 37))
	values := make([]int, n)
	for i := range values {
		values[i] = rng.IntN(20)
	}
	d, err := NewDistinctCounter(values)
	require.NoError(t, err)

	for range 300 {
		l := rng.IntN(n) + 1
		r := l + rng.IntN(n-l+1)
		seen := make(map[int]struct{})
		for _, v := range values[l-1 : r] {
			seen[v] = struct{}{}
		}
		got, err := d.Count(l, r)
		require.NoError(t, err)
		require.Equal(t, int64(len(seen)), got, "[%d, %d]", l, r)
	}
	require.NoError(t, d.Tree().Verify(d.Tree().Latest()))
}

func TestDistinctCounterEmpty(t *testing.T) {
	d, err := NewDistinctCounter([]string{})
	assert.Nil(t, d)
	assert.ErrorIs(t, err, xerrors.ErrInvalidDomain)

	_, err = NewDistinctCounter[int](nil)
	assert.ErrorIs(t, err, xerrors.ErrInvalidDomain)
}
