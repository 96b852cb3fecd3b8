package search

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/objectindex"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	clips, err := clipindex.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { clips.Close() })

	objects, err := objectindex.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { objects.Close() })

	return &Engine{Clips: clips, Objects: objects}
}

func TestSearchAbortsBetweenCameras(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Search(ctx, Request{Cameras: []string{"a", "b"}, NextMidnightMs: 1000, NowMs: 2000})
	require.ErrorIs(t, err, context.Canceled)
}

func TestThresholdLookupUsesMinimumInWindow(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Clips.AddMergeThreshold(1000, 30))
	require.NoError(t, e.Clips.AddMergeThreshold(5000, 5))

	lookup, err := e.thresholdLookup(Options{})
	require.NoError(t, err)

	// Both history entries are in effect somewhere in [2000,8000]; the
	// smaller one bounds the spare video between the events and wins.
	require.Equal(t, 5, lookup(2000, 8000))

	// Only the first entry is in effect before the second begins.
	require.Equal(t, 30, lookup(2000, 4000))
}

func TestThresholdLookupOverrideWins(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Clips.AddMergeThreshold(1000, 30))

	override := 7
	lookup, err := e.thresholdLookup(Options{OverrideMergeThreshold: &override})
	require.NoError(t, err)
	require.Equal(t, 7, lookup(2000, 8000))
}

func TestSearchEndToEndCombining(t *testing.T) {
	e := newTestEngine(t)

	uid, err := e.Objects.AddObject(1000, "person", "front")
	require.NoError(t, err)
	require.NoError(t, e.Objects.AddFrame(uid, 1, 1000, objectindex.BBox{X1: 0, Y1: 0, X2: 10, Y2: 20}, "person", ""))
	require.NoError(t, e.Objects.AddFrame(uid, 2, 2000, objectindex.BBox{X1: 0, Y1: 0, X2: 10, Y2: 20}, "person", ""))

	req := Request{
		Cameras:        []string{"front"},
		Query:          objectindex.Query{Targets: []objectindex.Target{{Type: "person"}}},
		Opts:           Options{StartOffsetMs: 500, StopOffsetMs: 500, ShouldCombineClips: true},
		MidnightMs:     0,
		NextMidnightMs: 86_400_000,
		NowMs:          10_000_000,
	}
	results, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results["front"], 1)

	c := results["front"][0]
	require.Equal(t, int64(500), c.StartTime)
	require.Equal(t, int64(2500), c.StopTime)
	require.Equal(t, []int64{uid}, c.ObjList)
	require.True(t, c.IsSaved.IsNo())
}
