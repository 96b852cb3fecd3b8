package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/models"
)

func TestMakeResultsFromRangesInstantaneousEvent(t *testing.T) {
	ranges := []DetectionRange{{ObjUID: 7, StartMs: 1_000_000, StartFrame: 100, StopMs: 1_000_000, StopFrame: 100}}
	opts := Options{StartOffsetMs: 3000, StopOffsetMs: 3000, PlayOffsetMs: 0, ShouldCombineClips: false}

	clips := MakeResultsFromRanges(ranges, "front", opts)

	require.Len(t, clips, 1)
	c := clips[0]
	require.Equal(t, int64(997_000), c.StartTime)
	require.Equal(t, int64(1_003_000), c.StopTime)
	require.Equal(t, int64(1_000_000), c.PlayStart)
	require.Equal(t, int64(1_000_000), c.PreviewMs)
	require.Equal(t, []int64{7}, c.ObjList)
}

func TestCombineMergesCrossObjectOverlap(t *testing.T) {
	ranges := []DetectionRange{
		{ObjUID: 1, StartMs: 1000, StartFrame: 10, StopMs: 3000, StopFrame: 20},
		{ObjUID: 2, StartMs: 1500, StartFrame: 15, StopMs: 3500, StopFrame: 25},
	}
	opts := Options{StartOffsetMs: 1000, StopOffsetMs: 1000, ShouldCombineClips: true}

	clips := MakeResultsFromRanges(ranges, "front", opts)
	require.Len(t, clips, 2)

	merged := CombineOverlappingClips(clips, func(int64, int64) int { return 0 }, false)
	require.Len(t, merged, 1)
	require.Equal(t, int64(0), merged[0].StartTime)
	require.Equal(t, int64(4500), merged[0].StopTime)
	require.ElementsMatch(t, []int64{1, 2}, merged[0].ObjList)
}

func TestCombineMergeTakesEarliestPlayStartAndPreview(t *testing.T) {
	// Object 2's short clip stops first, so after the stop-time sort it
	// is "prev" and object 1's longer clip is merged into it. Object
	// 1's play start and preview are both earlier and must survive the
	// merge.
	ranges := []DetectionRange{
		{ObjUID: 1, StartMs: 1000, StartFrame: 10, StopMs: 5000, StopFrame: 50},
		{ObjUID: 2, StartMs: 4000, StartFrame: 40, StopMs: 4400, StopFrame: 44},
	}
	opts := Options{StartOffsetMs: 1000, StopOffsetMs: 1000, ShouldCombineClips: true}

	clips := MakeResultsFromRanges(ranges, "front", opts)
	require.Len(t, clips, 2)
	require.Equal(t, int64(4000), clips[0].PlayStart, "short clip sorts first")

	merged := CombineOverlappingClips(clips, func(int64, int64) int { return 0 }, false)
	require.Len(t, merged, 1)
	require.Equal(t, int64(1000), merged[0].PlayStart)
	require.Equal(t, int64(3000), merged[0].PreviewMs)
	require.ElementsMatch(t, []int64{1, 2}, merged[0].ObjList)
}

func TestFrameCounterResetDoesNotMerge(t *testing.T) {
	ranges := []DetectionRange{
		{ObjUID: 1, StartMs: 1000, StartFrame: 10, StopMs: 3000, StopFrame: 20},
		{ObjUID: 1, StartMs: 20000, StartFrame: 0, StopMs: 22000, StopFrame: 10},
	}
	opts := Options{StartOffsetMs: 1000, StopOffsetMs: 1000, ShouldCombineClips: true}

	clips := MakeResultsFromRanges(ranges, "front", opts)
	require.Len(t, clips, 2, "stage 1 must not extend across the 17s gap for the same object")

	merged := CombineOverlappingClips(clips, func(int64, int64) int { return 0 }, false)
	require.Len(t, merged, 2, "frame-reset adjacency must not falsely merge across a pipeline restart")
}

func TestAddCamAndSaveInfoPendingWindow(t *testing.T) {
	clips := []models.MatchingClip{
		{RealStopTime: 5000},
		{RealStopTime: 15000},
	}
	AddCamAndSaveInfo(clips, true, 10000, 20000, func(int64) bool { return false })

	require.True(t, clips[0].IsSaved.IsNo())
	require.True(t, clips[1].IsSaved.IsPending())
	require.Equal(t, int64(15000), clips[1].IsSaved.RetryAtMs())
}
