package cuckoo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextPowOf2(t *testing.T) {
	cases := map[int]int{
		-1:   1,
		0:    1,
		1:    1,
		2:    2,
		3:    4,
		4:    4,
		5:    8,
		1000: 1024,
		1024: 1024,
		1025: 2048,
	}
	for in, want := range cases {
		require.Equal(t, want, nextPowOf2(in), "nextPowOf2(%d)", in)
	}
}

func TestCalcTableBase(t *testing.T) {
	require.EqualValues(t, defaultTableBase, calcTableBase(0))
	require.EqualValues(t, defaultTableBase, calcTableBase(-5))
	// Tiny hints clamp to the minimum base.
	require.EqualValues(t, minTableBase, calcTableBase(1))
	require.EqualValues(t, minTableBase, calcTableBase(bucketSlots<<minTableBase))
	// A hint of N entries needs at least N/bucketSlots buckets.
	for _, hint := range []int{1000, 4096, 100000, 1 << 20} {
		base := calcTableBase(hint)
		buckets := 1 << base
		require.GreaterOrEqual(t, buckets*bucketSlots, hint, "hint %d", hint)
		require.Less(t, (buckets>>1)*bucketSlots, hint, "hint %d overshoots", hint)
	}
}

func TestCalcSizeLen(t *testing.T) {
	for _, cpus := range []int{1, 2, 8, 17} {
		for _, tableLen := range []int{1 << minTableBase, 512, 1 << 14, 1 << 20} {
			sizeLen := calcSizeLen(tableLen, cpus)
			require.Zero(t, sizeLen&(sizeLen-1), "stripe count must be a power of two")
			require.GreaterOrEqual(t, sizeLen, 1)
			require.LessOrEqual(t, sizeLen, nextPowOf2(cpus))
		}
	}
}
