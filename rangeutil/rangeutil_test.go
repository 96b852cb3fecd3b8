package rangeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRangesMergesOverlapAndAdjacency(t *testing.T) {
	in := []Range{{1, 4}, {2, 6}, {9, 20}, {21, 23}}
	got := CompressRanges(in)
	require.Equal(t, []Range{{1, 6}, {9, 23}}, got)
}

func TestCompressRangesEmpty(t *testing.T) {
	assert.Nil(t, CompressRanges(nil))
}

func TestCompressRangesUnsortedInput(t *testing.T) {
	in := []Range{{21, 23}, {1, 4}, {9, 20}, {2, 6}}
	got := CompressRanges(in)
	require.Equal(t, []Range{{1, 6}, {9, 23}}, got)
}

func TestCompressRangesIdempotent(t *testing.T) {
	in := []Range{{1, 4}, {2, 6}, {9, 20}, {21, 23}, {100, 110}}
	once := CompressRanges(in)
	twice := CompressRanges(once)
	require.Equal(t, once, twice)
}

func TestCompressRangesPreservesUnion(t *testing.T) {
	in := []Range{{1, 4}, {2, 6}, {9, 20}, {21, 23}}
	out := CompressRanges(in)

	covered := func(ranges []Range, x int64) bool {
		for _, r := range ranges {
			if x >= r.Start && x <= r.End {
				return true
			}
		}
		return false
	}

	for x := int64(0); x <= 25; x++ {
		assert.Equalf(t, covered(in, x), covered(out, x), "mismatch at x=%d", x)
	}
}

func TestFindPlaceInRangeListInsideAndBetween(t *testing.T) {
	ranges := []Range{{1, 2}, {4, 5}, {7, 8}, {10, 11}}

	assert.Equal(t, 0.5, FindPlaceInRangeList(ranges, 3))
	assert.Equal(t, float64(1), FindPlaceInRangeList(ranges, 4))
	assert.Equal(t, -0.5, FindPlaceInRangeList(ranges, 0))
}

func TestFindPlaceInRangeListEdges(t *testing.T) {
	ranges := []Range{{1, 2}, {4, 5}, {7, 8}, {10, 11}}

	assert.Equal(t, float64(len(ranges))-0.5, FindPlaceInRangeList(ranges, 100))
	assert.Equal(t, 0.5, FindPlaceInRangeList(nil, 5))
	assert.Equal(t, float64(0), FindPlaceInRangeList(ranges, 1))
	assert.Equal(t, float64(0), FindPlaceInRangeList(ranges, 2))
	assert.Equal(t, float64(3), FindPlaceInRangeList(ranges, 11))
}
