// Package streaming implements the incremental, always-on analogue of
// package search: batches of detections arrive with a monotonically
// advancing high-water mark, and clips are emitted only once they can
// no longer be extended by a later batch.
package streaming

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/search"
)

// sanityViolations counts times the stopTime-monotonicity invariant
// would have been broken by a late-arriving small event merging
// backwards into an earlier clip. Per-process, not per-camera: it
// exists purely as a diagnosable signal, not a throttle.
var sanityViolations int64

// SanityViolations reports the number of emissions dropped because
// they would have violated the per-camera+rule stopTime invariant.
func SanityViolations() int64 { return atomic.LoadInt64(&sanityViolations) }

// Session holds the streaming state for one camera+rule pair across
// calls to Advance. A session boundary (process restart, rule
// re-enable) should discard the old Session and start a fresh one
// rather than trying to extend across the gap.
type Session struct {
	Camera string

	mu           sync.Mutex
	pending      []search.DetectionRange
	prevStopTime int64
}

// NewSession starts a fresh streaming session for camera.
func NewSession(camera string) *Session {
	return &Session{Camera: camera}
}

// Reset discards all pending ranges and the stopTime watermark,
// starting the next Advance call as a brand new session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.prevStopTime = 0
}

// ExtendPendingRanges appends newRanges to pending and, in combining
// mode, merges adjacent same-object entries whose frames differ by
// exactly 1: the continuation of an object across consecutive
// batches rather than a new sighting.
func ExtendPendingRanges(pending, newRanges []search.DetectionRange, shouldCombineClips bool) []search.DetectionRange {
	combined := append(append([]search.DetectionRange{}, pending...), newRanges...)
	if !shouldCombineClips || len(combined) < 2 {
		return combined
	}

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].ObjUID != combined[j].ObjUID {
			return combined[i].ObjUID < combined[j].ObjUID
		}
		return combined[i].StartMs < combined[j].StartMs
	})

	for i := len(combined) - 1; i > 0; i-- {
		cur := combined[i]
		prev := combined[i-1]
		if cur.ObjUID == prev.ObjUID && cur.StartFrame-prev.StopFrame == 1 {
			combined[i-1].StopMs = cur.StopMs
			combined[i-1].StopFrame = cur.StopFrame
			combined = append(combined[:i], combined[i+1:]...)
		}
	}
	return combined
}

// PullOutDoneClips removes from pending every source item consumed by
// a clip whose real stop can no longer be extended, i.e. its real-stop
// is at or before ms-startOffset-stopOffset-1. In combining mode each
// emitted clip is clipped against prevStopTime+1 so consecutive
// emissions never overlap, and prevStopTime advances monotonically;
// an emission that would violate that invariant is logged and dropped
// rather than breaking the monotonicity guarantee.
func PullOutDoneClips(curResults []models.MatchingClip, pending []search.DetectionRange, ms, startOffsetMs, stopOffsetMs int64, shouldCombineClips bool, prevStopTime int64, log zerolog.Logger) (newPrevStopTime int64, doneClips []models.MatchingClip, remainingPending []search.DetectionRange) {
	horizon := ms - startOffsetMs - stopOffsetMs - 1
	newPrevStopTime = prevStopTime

	sorted := make([]models.MatchingClip, len(curResults))
	copy(sorted, curResults)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartTime < sorted[j].StartTime })

	consumed := make(map[int]bool)

	for _, c := range sorted {
		if c.RealStopTime > horizon {
			continue
		}

		if shouldCombineClips && c.StartTime <= newPrevStopTime {
			c.StartTime = newPrevStopTime + 1
		}

		if c.StopTime <= newPrevStopTime {
			atomic.AddInt64(&sanityViolations, 1)
			log.Warn().
				Int64("stop_time", c.StopTime).
				Int64("prev_stop_time", newPrevStopTime).
				Msg("streaming emission would violate stopTime monotonicity, dropping")
			for _, idx := range c.SourceItemIndices {
				consumed[idx] = true
			}
			continue
		}

		doneClips = append(doneClips, c)
		newPrevStopTime = c.StopTime
		for _, idx := range c.SourceItemIndices {
			consumed[idx] = true
		}
	}

	for i, r := range pending {
		if !consumed[i] {
			remainingPending = append(remainingPending, r)
		}
	}

	return newPrevStopTime, doneClips, remainingPending
}

// Advance runs one streaming batch: it extends the session's pending
// ranges with newRanges, re-derives preliminary clips over the full
// pending set, optionally combines them, and emits the clips that can
// no longer change.
func (s *Session) Advance(newRanges []search.DetectionRange, ms int64, opts search.Options, threshold search.ThresholdLookup, log zerolog.Logger) []models.MatchingClip {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = ExtendPendingRanges(s.pending, newRanges, opts.ShouldCombineClips)
	if len(s.pending) == 0 {
		return nil
	}

	sortedPending := make([]search.DetectionRange, len(s.pending))
	copy(sortedPending, s.pending)
	sort.SliceStable(sortedPending, func(i, j int) bool {
		if sortedPending[i].ObjUID != sortedPending[j].ObjUID {
			return sortedPending[i].ObjUID < sortedPending[j].ObjUID
		}
		return sortedPending[i].StartMs < sortedPending[j].StartMs
	})
	s.pending = sortedPending

	curResults := search.MakeResultsFromRanges(s.pending, s.Camera, opts)
	if opts.ShouldCombineClips && threshold != nil {
		curResults = search.CombineOverlappingClips(curResults, threshold, opts.PreservePlayOffset)
	}

	newPrevStopTime, done, remaining := PullOutDoneClips(curResults, s.pending, ms, opts.StartOffsetMs, opts.StopOffsetMs, opts.ShouldCombineClips, s.prevStopTime, log)
	s.prevStopTime = newPrevStopTime
	s.pending = remaining

	sort.SliceStable(done, func(i, j int) bool { return done[i].StartTime < done[j].StartTime })
	return done
}
