package search

import (
	"context"
	"sort"
	"time"

	"github.com/nvrengine/core/capture"
	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/objectindex"
	"github.com/nvrengine/core/rangeutil"
)

const searchSlopMs = 5 * 60 * 1000

// Request describes one batch rule query.
type Request struct {
	Cameras         []string
	Query           objectindex.Query
	Opts            Options
	MidnightMs      int64 // start of the requested local day
	NextMidnightMs  int64
	IsToday         bool
	NowMs           int64
}

// Engine bundles the two indices and the capture-pipeline flush
// collaborator needed to run a batch search.
type Engine struct {
	Clips   *clipindex.ClipIndex
	Objects *objectindex.ObjectIndex
	Flush   capture.FlushFunc
}

// Search runs the full batch search orchestration:
// window computation, optional flush request, range fetch, per-camera
// grouping, and the three assembly stages. ctx is checked between
// cameras so an aborted caller stops a multi-camera sweep promptly.
func (e *Engine) Search(ctx context.Context, req Request) (map[string][]models.MatchingClip, error) {
	searchStart := req.MidnightMs - searchSlopMs
	searchEnd := req.NextMidnightMs + searchSlopMs
	if searchEnd > req.NowMs {
		searchEnd = req.NowMs
	}

	results := make(map[string][]models.MatchingClip, len(req.Cameras))

	for _, camera := range req.Cameras {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var lastProcessedMs, lastTaggedMs int64
		flushPending := false
		if req.IsToday && e.Flush != nil {
			lp, lt, err := e.Flush(camera)
			if err == nil {
				lastProcessedMs, lastTaggedMs = lp, lt
				flushPending = true
			}
		}

		ranges, err := e.fetchRanges(camera, req.Query, searchStart, searchEnd, req.Opts.ShouldCombineClips)
		if err != nil {
			return nil, err
		}

		var filtered []DetectionRange
		for _, r := range ranges {
			if r.StopMs < req.MidnightMs || r.StartMs >= req.NextMidnightMs {
				continue
			}
			filtered = append(filtered, r)
		}
		sort.Slice(filtered, func(i, j int) bool {
			if filtered[i].ObjUID != filtered[j].ObjUID {
				return filtered[i].ObjUID < filtered[j].ObjUID
			}
			return filtered[i].StartMs < filtered[j].StartMs
		})

		clips := MakeResultsFromRanges(filtered, camera, req.Opts)

		if req.Opts.ShouldCombineClips {
			lookup, err := e.thresholdLookup(req.Opts)
			if err != nil {
				return nil, err
			}
			clips = CombineOverlappingClips(clips, lookup, req.Opts.PreservePlayOffset)
		}

		savedRanges, err := e.Clips.GetTimesFromLocation(camera, searchStart, searchEnd, true)
		if err != nil {
			return nil, err
		}
		isSaved := func(ms int64) bool {
			place := rangeutil.FindPlaceInRangeList(savedRanges, ms)
			return place == float64(int64(place)) && place >= 0
		}
		AddCamAndSaveInfo(clips, flushPending, lastProcessedMs, lastTaggedMs, isSaved)

		sort.SliceStable(clips, func(i, j int) bool { return clips[i].StartTime < clips[j].StartTime })
		results[camera] = clips
	}

	return results, nil
}

func (e *Engine) fetchRanges(camera string, query objectindex.Query, start, end int64, shouldCombine bool) ([]DetectionRange, error) {
	query.Cameras = []string{camera}

	if shouldCombine {
		byUID, err := e.Objects.GetSearchResultsRanges(query, start, end)
		if err != nil {
			return nil, err
		}
		var out []DetectionRange
		for uid, ranges := range byUID {
			for _, r := range ranges {
				out = append(out, DetectionRange{ObjUID: uid, StartMs: r.StartMs, StartFrame: r.StartFrame, StopMs: r.EndMs, StopFrame: r.EndFrame})
			}
		}
		return out, nil
	}

	byUID, err := e.Objects.GetSearchResults(query, start, end)
	if err != nil {
		return nil, err
	}
	var out []DetectionRange
	for uid, obs := range byUID {
		for _, o := range obs {
			out = append(out, DetectionRange{ObjUID: uid, StartMs: o.Ms, StartFrame: o.Frame, StopMs: o.Ms, StopFrame: o.Frame})
		}
	}
	return out, nil
}

func (e *Engine) thresholdLookup(opts Options) (ThresholdLookup, error) {
	if opts.OverrideMergeThreshold != nil {
		sec := *opts.OverrideMergeThreshold
		return func(int64, int64) int { return sec }, nil
	}
	return func(fromMs, toMs int64) int {
		thresholds, err := e.Clips.GetClipMergeThresholds(fromMs, toMs)
		if err != nil || len(thresholds) == 0 {
			return 0
		}
		// The minimum threshold in effect anywhere in the window
		// decides: it bounds how much spare video actually separates
		// the two events.
		minSec := thresholds[0].PaddingSeconds
		for _, t := range thresholds[1:] {
			if t.PaddingSeconds < minSec {
				minSec = t.PaddingSeconds
			}
		}
		return minSec
	}, nil
}

// NowMs is a small helper so callers outside this package don't each
// need their own epoch-millis conversion.
func NowMs(t time.Time) int64 { return t.UnixMilli() }
