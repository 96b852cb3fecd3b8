package responders

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/rangeutil"
)

// RecordTagResponder implements the "recordTag" response protocol.
// Unlike the other protocols it never leaves the backend: it just
// pads the triggering ranges and marks them saved in the clip index.
// A per camera+rule high-water mark keeps a long-running trigger from
// re-marking the same intervals on every successive batch.
type RecordTagResponder struct {
	Clips *clipindex.ClipIndex
	Log   zerolog.Logger

	PreRecordSec  int
	PostRecordSec int

	mu        sync.Mutex
	watermark map[string]int64 // key: camera\x00rule -> highestSavedTime
}

func recordTagKey(camera, rule string) string { return camera + "\x00" + rule }

// Tag pads each incoming range by [PreRecordSec, PostRecordSec], clips
// away anything already covered by the watermark, and marks the
// remainder saved (existingOnly=false, so future files also pick it
// up via the clip index's pendingSaves buffer).
func (r *RecordTagResponder) Tag(camera, rule string, ranges []rangeutil.Range, nowMs int64) error {
	if len(ranges) == 0 {
		return nil
	}

	r.mu.Lock()
	if r.watermark == nil {
		r.watermark = map[string]int64{}
	}
	key := recordTagKey(camera, rule)
	mark := r.watermark[key]
	r.mu.Unlock()

	padded := make([]rangeutil.Range, 0, len(ranges))
	newMark := mark
	for _, rg := range ranges {
		start := rg.Start - int64(r.PreRecordSec)*1000
		stop := rg.End + int64(r.PostRecordSec)*1000
		if stop <= mark {
			continue // fully covered already
		}
		if start < mark {
			start = mark
		}
		padded = append(padded, rangeutil.Range{Start: start, End: stop})
		if stop > newMark {
			newMark = stop
		}
	}
	if len(padded) == 0 {
		return nil
	}
	padded = rangeutil.CompressRanges(padded)

	if _, err := r.Clips.MarkTimesAsSaved(camera, padded, false, nowMs); err != nil {
		return fmt.Errorf("record-tag marking saved: %w", err)
	}

	r.mu.Lock()
	if newMark > r.watermark[key] {
		r.watermark[key] = newMark
	}
	r.mu.Unlock()
	return nil
}
