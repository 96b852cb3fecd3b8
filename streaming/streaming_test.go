package streaming

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/search"
)

func TestExtendPendingRangesMergesAdjacentFrames(t *testing.T) {
	pending := []search.DetectionRange{{ObjUID: 1, StartMs: 1000, StartFrame: 10, StopMs: 1100, StopFrame: 11}}
	newRanges := []search.DetectionRange{{ObjUID: 1, StartMs: 1200, StartFrame: 12, StopMs: 1300, StopFrame: 13}}

	out := ExtendPendingRanges(pending, newRanges, true)
	require.Len(t, out, 1)
	require.Equal(t, int64(1300), out[0].StopMs)
	require.Equal(t, int64(13), out[0].StopFrame)
}

func TestExtendPendingRangesNonCombiningDoesNotMerge(t *testing.T) {
	pending := []search.DetectionRange{{ObjUID: 1, StartMs: 1000, StartFrame: 10, StopMs: 1100, StopFrame: 11}}
	newRanges := []search.DetectionRange{{ObjUID: 1, StartMs: 1200, StartFrame: 12, StopMs: 1300, StopFrame: 13}}

	out := ExtendPendingRanges(pending, newRanges, false)
	require.Len(t, out, 2)
}

func TestSessionAdvanceEmitsOnlyWhenPastHorizon(t *testing.T) {
	s := NewSession("front")
	opts := search.Options{StartOffsetMs: 1000, StopOffsetMs: 1000, ShouldCombineClips: true}

	ranges := []search.DetectionRange{{ObjUID: 1, StartMs: 1000, StartFrame: 0, StopMs: 2000, StopFrame: 10}}

	// Still too recent relative to ms: nothing should be emitted yet.
	done := s.Advance(ranges, 2500, opts, nil, zerolog.Nop())
	require.Empty(t, done)

	// Advance far enough that the object can no longer be extended.
	done = s.Advance(nil, 10000, opts, nil, zerolog.Nop())
	require.Len(t, done, 1)
	require.Equal(t, int64(1), done[0].ObjList[0])
}

func TestSessionResetStartsFreshClip(t *testing.T) {
	s := NewSession("front")
	opts := search.Options{StartOffsetMs: 1000, StopOffsetMs: 1000, ShouldCombineClips: true}

	ranges := []search.DetectionRange{{ObjUID: 1, StartMs: 1000, StartFrame: 0, StopMs: 2000, StopFrame: 10}}
	s.Advance(ranges, 2500, opts, nil, zerolog.Nop())

	s.Reset()
	require.Empty(t, s.pending)
	require.Zero(t, s.prevStopTime)
}

func TestPullOutDoneClipsMonotonicStopTime(t *testing.T) {
	pending := []search.DetectionRange{
		{ObjUID: 1, StartMs: 1000, StopMs: 2000},
		{ObjUID: 2, StartMs: 1500, StopMs: 2500},
	}
	opts := search.Options{StartOffsetMs: 0, StopOffsetMs: 0}
	curResults := search.MakeResultsFromRanges(pending, "front", opts)

	newPrev, done, remaining := PullOutDoneClips(curResults, pending, 100000, 0, 0, false, 0, zerolog.Nop())
	require.Len(t, done, 2)
	require.Empty(t, remaining)
	require.Equal(t, int64(2500), newPrev)
	for i := 1; i < len(done); i++ {
		require.Greater(t, done[i].StopTime, done[i-1].StopTime)
	}
}
