package responders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldNotifySuppressesWithinFirstTwoSeconds(t *testing.T) {
	e := &EmailSender{}
	require.False(t, e.ShouldNotify("front", "Doorbell", 1, 1000, 1500, 2000))
}

func TestShouldNotifyFiresAfterTwoSecondsThenSuppressesForTen(t *testing.T) {
	e := &EmailSender{}
	require.True(t, e.ShouldNotify("front", "Doorbell", 1, 1000, 1000, 3500))
	require.False(t, e.ShouldNotify("front", "Doorbell", 1, 1000, 5000, 8000))
	require.True(t, e.ShouldNotify("front", "Doorbell", 1, 1000, 14000, 14000))
}

func TestPruneForgetsStaleObjects(t *testing.T) {
	e := &EmailSender{}
	require.True(t, e.ShouldNotify("front", "Doorbell", 1, 1000, 1000, 3500))

	e.Prune(50000)
	require.True(t, e.ShouldNotify("front", "Doorbell", 1, 51000, 51000, 53500),
		"pruned object should be treated as a fresh sighting")
}

func TestOverlapRatioIdenticalSpansIsOne(t *testing.T) {
	a := PendingNotification{FirstMs: 0, LastMs: 1000}
	b := PendingNotification{FirstMs: 0, LastMs: 1000}
	require.InDelta(t, 1.0, overlapRatio(a, b), 0.0001)
}

func TestOverlapRatioDisjointSpansIsZero(t *testing.T) {
	a := PendingNotification{FirstMs: 0, LastMs: 1000}
	b := PendingNotification{FirstMs: 2000, LastMs: 3000}
	require.Equal(t, 0.0, overlapRatio(a, b))
}

func TestMergeOverlappingNotificationsMergesHighOverlap(t *testing.T) {
	in := []PendingNotification{
		{ObjList: []int64{1}, FirstMs: 0, LastMs: 1000},
		{ObjList: []int64{2}, FirstMs: 50, LastMs: 1050},
		{ObjList: []int64{3}, FirstMs: 5000, LastMs: 6000},
	}
	out := MergeOverlappingNotifications(in)
	require.Len(t, out, 2)

	var merged, untouched PendingNotification
	for _, n := range out {
		if len(n.ObjList) == 2 {
			merged = n
		} else {
			untouched = n
		}
	}
	require.ElementsMatch(t, []int64{1, 2}, merged.ObjList)
	require.ElementsMatch(t, []int64{3}, untouched.ObjList)
}
