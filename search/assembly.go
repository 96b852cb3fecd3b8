// Package search implements rule-query search and clip assembly:
// translating per-object detection ranges into sorted, padded, merged
// matching clips.
package search

import (
	"sort"

	"github.com/nvrengine/core/models"
)

// DetectionRange is one object's contiguous detection interval, as
// produced by objectindex.GetSearchResultsRanges (combining mode) or
// synthesized as a singleton from objectindex.GetSearchResults
// (non-combining mode).
type DetectionRange struct {
	ObjUID     int64
	StartMs    int64
	StartFrame int64
	StopMs     int64
	StopFrame  int64
}

// Options carries the per-query assembly parameters.
type Options struct {
	PlayOffsetMs       int64
	PreservePlayOffset bool
	StartOffsetMs      int64
	StopOffsetMs       int64
	ShouldCombineClips bool
	SpatiallyAware     bool

	// OverrideMergeThreshold, when non-nil, replaces the clip index's
	// time-sliced merge-threshold history for this query. Callers must
	// choose explicitly; there is no silent default.
	OverrideMergeThreshold *int
}

// MakeResultsFromRanges is stage 1: parse per-object ranges (already
// sorted by (objUid, startMs) by the caller) into preliminary clips,
// sorted by StopTime.
func MakeResultsFromRanges(ranges []DetectionRange, camera string, opts Options) []models.MatchingClip {
	if len(ranges) == 0 {
		return nil
	}

	var clips []models.MatchingClip

	if !opts.ShouldCombineClips {
		for i, r := range ranges {
			if r.StartMs == r.StopMs && len(clips) > 0 {
				last := &clips[len(clips)-1]
				if last.RealStartTime == r.StartMs && last.StartFrame == r.StartFrame {
					last.ObjList = append(last.ObjList, r.ObjUID)
					last.StartList = append(last.StartList, r.StartMs)
					last.SourceItemIndices = append(last.SourceItemIndices, i)
					continue
				}
			}
			clips = append(clips, newClipFromRange(r, camera, opts, i))
		}
	} else {
		active := map[int64]int{} // objUid -> index into clips
		for i, r := range ranges {
			paddedStart := r.StartMs - opts.StartOffsetMs
			if idx, ok := active[r.ObjUID]; ok && paddedStart <= clips[idx].StopTime {
				c := &clips[idx]
				c.StopTime = r.StopMs + opts.StopOffsetMs
				c.RealStopTime = r.StopMs
				c.StopFrame = r.StopFrame
				c.StartList = append(c.StartList, r.StartMs)
				c.SourceItemIndices = append(c.SourceItemIndices, i)
				continue
			}
			clip := newClipFromRange(r, camera, opts, i)
			clips = append(clips, clip)
			active[r.ObjUID] = len(clips) - 1
		}
	}

	sort.SliceStable(clips, func(i, j int) bool { return clips[i].StopTime < clips[j].StopTime })
	return clips
}

func newClipFromRange(r DetectionRange, camera string, opts Options, sourceIndex int) models.MatchingClip {
	return models.MatchingClip{
		CameraLocation:    camera,
		StartTime:         r.StartMs - opts.StartOffsetMs,
		StopTime:          r.StopMs + opts.StopOffsetMs,
		PlayStart:         r.StartMs - opts.PlayOffsetMs,
		PreviewMs:         (r.StartMs + r.StopMs) / 2,
		ObjList:           []int64{r.ObjUID},
		StartList:         []int64{r.StartMs},
		RealStartTime:     r.StartMs,
		RealStopTime:      r.StopMs,
		StartFrame:        r.StartFrame,
		StopFrame:         r.StopFrame,
		SourceItemIndices: []int{sourceIndex},
	}
}

// ThresholdLookup returns the merge-threshold (seconds) in effect for
// the interval [fromMs, toMs].
type ThresholdLookup func(fromMs, toMs int64) int

// CombineOverlappingClips is stage 2 (combining mode only): iterates
// clips back-to-front, merging adjacent clips when a merge condition
// holds, and splitting overlapping padding proportionally when no
// merge occurs.
func CombineOverlappingClips(clips []models.MatchingClip, threshold ThresholdLookup, preservePlayOffset bool) []models.MatchingClip {
	if len(clips) < 2 {
		return clips
	}

	out := make([]models.MatchingClip, len(clips))
	copy(out, clips)

	for i := len(out) - 1; i > 0; i-- {
		prev := &out[i-1]
		cur := &out[i]

		if shouldMerge(*prev, *cur, threshold) {
			mergeInto(prev, *cur)
			out = append(out[:i], out[i+1:]...)
			continue
		}

		splitOverlappingPadding(prev, cur, preservePlayOffset)
	}

	return out
}

func shouldMerge(prev, cur models.MatchingClip, threshold ThresholdLookup) bool {
	thresholdSec := threshold(prev.StopTime, cur.StartTime)
	if thresholdSec > 0 && cur.RealStartTime-prev.RealStopTime <= int64(thresholdSec)*1000 {
		return true
	}
	if cur.RealStartTime < prev.RealStopTime {
		return true
	}
	frameDelta := cur.StartFrame - prev.StopFrame
	if frameDelta >= 0 && frameDelta <= 3 && cur.RealStartTime-prev.RealStopTime <= 3000 {
		return true
	}
	return false
}

func mergeInto(prev *models.MatchingClip, cur models.MatchingClip) {
	prev.ObjList = unionInt64(prev.ObjList, cur.ObjList)
	prev.StartList = append(prev.StartList, cur.StartList...)
	prev.SourceItemIndices = append(prev.SourceItemIndices, cur.SourceItemIndices...)
	if cur.StartTime < prev.StartTime {
		prev.StartTime = cur.StartTime
	}
	if cur.PlayStart < prev.PlayStart {
		prev.PlayStart = cur.PlayStart
	}
	if cur.PreviewMs < prev.PreviewMs {
		prev.PreviewMs = cur.PreviewMs
	}
	if cur.RealStartTime < prev.RealStartTime {
		prev.RealStartTime = cur.RealStartTime
		prev.StartFrame = cur.StartFrame
	}
	if cur.StopTime > prev.StopTime {
		prev.StopTime = cur.StopTime
	}
	if cur.RealStopTime > prev.RealStopTime {
		prev.RealStopTime = cur.RealStopTime
		prev.StopFrame = cur.StopFrame
	}
	prev.IsSaved = prev.IsSaved.Or(cur.IsSaved)
}

func unionInt64(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, x := range a {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	for _, x := range b {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

// splitOverlappingPadding snaps prev.StopTime/cur.StartTime apart when
// their padding would otherwise overlap, using a proportional midpoint
// split. The preservePlayOffset branch is encoded explicitly: when
// cur's play start falls at or before prev's real stop, the split
// collapses onto prev.RealStopTime exactly instead of an implicit
// average.
func splitOverlappingPadding(prev, cur *models.MatchingClip, preservePlayOffset bool) {
	if prev.StopTime < cur.StartTime {
		return
	}

	var split int64
	if preservePlayOffset {
		if cur.PlayStart > prev.RealStopTime {
			split = prev.RealStopTime + (cur.PlayStart-prev.RealStopTime)/2
		} else {
			split = prev.RealStopTime
		}
	} else {
		split = (prev.RealStopTime + cur.RealStartTime) / 2
	}

	newPrevStop := split
	newCurStart := split + 1

	if newPrevStop < prev.RealStopTime {
		newPrevStop = prev.RealStopTime
	}
	if newCurStart > cur.RealStartTime {
		newCurStart = cur.RealStartTime
	}
	if newCurStart <= newPrevStop {
		newCurStart = newPrevStop + 1
	}

	prev.StopTime = newPrevStop
	cur.StartTime = newCurStart
}

// AddCamAndSaveInfo is stage 3: annotates each clip's IsSaved state. If
// a flush is pending and the clip's real stop lies in
// (curMaxTaggedMs, realMaxTaggedMs], it is marked Pending(realStopMs);
// otherwise savedRanges is binary-searched to produce a boolean.
func AddCamAndSaveInfo(clips []models.MatchingClip, flushPending bool, curMaxTaggedMs, realMaxTaggedMs int64, isSaved func(ms int64) bool) {
	for i := range clips {
		c := &clips[i]
		if flushPending && c.RealStopTime > curMaxTaggedMs && c.RealStopTime <= realMaxTaggedMs {
			c.IsSaved = models.SavedPending(c.RealStopTime)
			continue
		}
		if isSaved(c.RealStopTime) {
			c.IsSaved = models.SavedYes()
		} else {
			c.IsSaved = models.SavedNo()
		}
	}
}
