package responders

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/rangeutil"
)

func openTestClipIndex(t *testing.T) *clipindex.ClipIndex {
	t.Helper()
	ci, err := clipindex.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ci.Close() })
	return ci
}

func TestRecordTagPadsAndMarksSaved(t *testing.T) {
	ci := openTestClipIndex(t)
	require.NoError(t, ci.AddClip("f1.mp4", "cam", 0, 20000, "", "", models.Cache, 640, 480))

	r := &RecordTagResponder{Clips: ci, Log: zerolog.Nop(), PreRecordSec: 2, PostRecordSec: 3}

	err := r.Tag("cam", "Doorbell", []rangeutil.Range{{Start: 10000, End: 11000}}, 0)
	require.NoError(t, err)

	ranges, err := ci.GetTimesFromLocation("cam", 0, 20000, true)
	require.NoError(t, err)
	require.Equal(t, []rangeutil.Range{{Start: 8000, End: 14000}}, ranges)
}

func TestRecordTagWatermarkSkipsAlreadyCoveredSpan(t *testing.T) {
	ci := openTestClipIndex(t)
	require.NoError(t, ci.AddClip("f1.mp4", "cam", 0, 30000, "", "", models.Cache, 640, 480))

	r := &RecordTagResponder{Clips: ci, Log: zerolog.Nop(), PreRecordSec: 0, PostRecordSec: 0}

	require.NoError(t, r.Tag("cam", "Doorbell", []rangeutil.Range{{Start: 5000, End: 10000}}, 0))
	require.NoError(t, r.Tag("cam", "Doorbell", []rangeutil.Range{{Start: 6000, End: 8000}}, 0))

	ranges, err := ci.GetTimesFromLocation("cam", 0, 30000, true)
	require.NoError(t, err)
	require.Equal(t, []rangeutil.Range{{Start: 5000, End: 10000}}, ranges)
}

func TestRecordTagEmptyRangesNoop(t *testing.T) {
	ci := openTestClipIndex(t)
	r := &RecordTagResponder{Clips: ci, Log: zerolog.Nop()}
	require.NoError(t, r.Tag("cam", "Doorbell", nil, 0))
}
