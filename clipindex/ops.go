package clipindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nvrengine/core/engineerrors"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/rangeutil"
	"github.com/nvrengine/core/videotoolkit"
)

// Direction controls GetFileAt's search when ms falls in a gap.
type Direction int

const (
	DirectionAny Direction = iota
	DirectionBefore
	DirectionAfter
)

func scanClip(row *sql.Rows) (models.Clip, error) {
	var c models.Clip
	var prevFile, nextFile, tags sql.NullString
	var isCache int
	if err := row.Scan(&c.Filename, &c.CameraLocation, &c.FirstMs, &c.LastMs, &prevFile, &nextFile, &tags, &isCache, &c.ProcWidth, &c.ProcHeight); err != nil {
		return c, err
	}
	c.PrevFile = prevFile.String
	c.NextFile = nextFile.String
	c.CacheStatus = models.CacheStatus(isCache)
	if tags.Valid && tags.String != "" {
		c.SaveTimes = parseSaveTimes(tags.String)
	}
	return c, nil
}

// parseSaveTimes pulls the saveTimes entry out of a clip's tags blob.
// Tags are a JSON object; saveTimes is the only key this engine
// interprets, other keys pass through untouched.
func parseSaveTimes(tags string) []models.SaveRange {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(tags), &obj); err != nil {
		return nil
	}
	raw, ok := obj["saveTimes"]
	if !ok {
		return nil
	}
	var st []models.SaveRange
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil
	}
	return st
}

const clipColumns = `filename, cam_loc, first_ms, last_ms, prev_file, next_file, tags, is_cache, proc_width, proc_height`

// AddClip inserts a clip, recovering or clearing a dangling prevFile
// link, patching neighbor chain links, promoting buffered pending
// saves into cache files, and appending proc-size history on change.
func (ci *ClipIndex) AddClip(filename, camera string, firstMs, lastMs int64, prevFile, nextFile string, cacheStatus models.CacheStatus, procWidth, procHeight int) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	return ci.withRetry(func() error {
		tx, err := ci.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if prevFile != "" {
			exists, err := filenameExists(tx, prevFile)
			if err != nil {
				return err
			}
			if !exists {
				if recovered, ok, err := recoverRenamedFile(tx, prevFile); err != nil {
					return err
				} else if ok {
					prevFile = recovered
				} else {
					prevFile = ""
				}
			}
		}

		var tagsJSON []byte
		_, err = tx.Exec(
			`INSERT INTO clips (filename, cam_loc, first_ms, last_ms, prev_file, next_file, tags, is_cache, proc_width, proc_height)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			filename, camera, firstMs, lastMs, nullIfEmpty(prevFile), nullIfEmpty(nextFile), string(tagsJSON), int(cacheStatus), procWidth, procHeight,
		)
		if err != nil {
			if engineerrors.IsAlreadyExists(err) {
				return nil
			}
			return fmt.Errorf("inserting clip: %w", err)
		}

		if prevFile != "" {
			if _, err := tx.Exec(`UPDATE clips SET next_file=? WHERE filename=?`, filename, prevFile); err != nil {
				return fmt.Errorf("patching prev chain: %w", err)
			}
		}
		if nextFile != "" {
			if _, err := tx.Exec(`UPDATE clips SET prev_file=? WHERE filename=?`, filename, nextFile); err != nil {
				return fmt.Errorf("patching next chain: %w", err)
			}
		}

		if cacheStatus == models.Cache {
			if err := promotePendingSaves(tx, camera, filename, firstMs, lastMs); err != nil {
				return err
			}
		}

		if err := ci.maybeAppendProcSize(tx, camera, firstMs, procWidth, procHeight); err != nil {
			return err
		}

		return tx.Commit()
	})
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func filenameExists(tx *sql.Tx, filename string) (bool, error) {
	var one int
	err := tx.QueryRow(`SELECT 1 FROM clips WHERE filename=?`, filename).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// recoverRenamedFile searches for prevFile under a recently-renamed
// deleted-marker suffix of 'r' repeated 1..5 times, a bounded recovery
// for files that moved out from under a clip insert racing a rename.
func recoverRenamedFile(tx *sql.Tx, prevFile string) (string, bool, error) {
	for k := 1; k <= 5; k++ {
		candidate := prevFile + strings.Repeat("r", k)
		ok, err := filenameExists(tx, candidate)
		if err != nil {
			return "", false, err
		}
		if ok {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func promotePendingSaves(tx *sql.Tx, camera, filename string, firstMs, lastMs int64) error {
	rows, err := tx.Query(`SELECT rowid, start_ms, end_ms FROM pending_saves WHERE cam_loc=?`, camera)
	if err != nil {
		return err
	}
	type pending struct {
		rowid       int64
		start, end  int64
	}
	var all []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.rowid, &p.start, &p.end); err != nil {
			rows.Close()
			return err
		}
		all = append(all, p)
	}
	rows.Close()

	var saveRanges []models.SaveRange
	var consumedRowids []int64
	for _, p := range all {
		overlapStart := maxI64(p.start, firstMs)
		overlapEnd := minI64(p.end, lastMs)
		if overlapStart > overlapEnd {
			continue
		}
		saveRanges = append(saveRanges, models.SaveRange{StartMs: overlapStart, EndMs: overlapEnd})
		// Partially-consumed pending ranges stay buffered for the next
		// file; only fully-covered ones are discarded.
		if overlapStart <= p.start && overlapEnd >= p.end {
			consumedRowids = append(consumedRowids, p.rowid)
		}
	}

	if len(saveRanges) > 0 {
		if err := mergeSaveTimes(tx, filename, saveRanges); err != nil {
			return err
		}
	}
	for _, rowid := range consumedRowids {
		if _, err := tx.Exec(`DELETE FROM pending_saves WHERE rowid=?`, rowid); err != nil {
			return err
		}
	}
	return nil
}

func mergeSaveTimes(tx *sql.Tx, filename string, add []models.SaveRange) error {
	var tagsJSON sql.NullString
	if err := tx.QueryRow(`SELECT tags FROM clips WHERE filename=?`, filename).Scan(&tagsJSON); err != nil {
		return err
	}
	var existing []models.SaveRange
	if tagsJSON.Valid {
		existing = parseSaveTimes(tagsJSON.String)
	}

	ranges := make([]rangeutil.Range, 0, len(existing)+len(add))
	for _, s := range existing {
		ranges = append(ranges, rangeutil.Range{Start: s.StartMs, End: s.EndMs})
	}
	for _, s := range add {
		ranges = append(ranges, rangeutil.Range{Start: s.StartMs, End: s.EndMs})
	}
	compressed := rangeutil.CompressRanges(ranges)

	out := make([]models.SaveRange, 0, len(compressed))
	for _, r := range compressed {
		out = append(out, models.SaveRange{StartMs: r.Start, EndMs: r.End})
	}
	return writeSaveTimes(tx, filename, out)
}

// writeSaveTimes replaces the saveTimes key in a clip's tags object,
// preserving any other tag keys a collaborator may have written.
func writeSaveTimes(tx *sql.Tx, filename string, ranges []models.SaveRange) error {
	var tagsJSON sql.NullString
	if err := tx.QueryRow(`SELECT tags FROM clips WHERE filename=?`, filename).Scan(&tagsJSON); err != nil {
		return err
	}
	obj := map[string]json.RawMessage{}
	if tagsJSON.Valid && tagsJSON.String != "" {
		json.Unmarshal([]byte(tagsJSON.String), &obj)
	}
	raw, err := json.Marshal(ranges)
	if err != nil {
		return err
	}
	obj["saveTimes"] = raw
	buf, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`UPDATE clips SET tags=? WHERE filename=?`, string(buf), filename)
	return err
}

// maybeAppendProcSize appends a new ProcSize record at firstMs if the
// supplied resolution differs from the camera's most recent.
func (ci *ClipIndex) maybeAppendProcSize(tx *sql.Tx, camera string, firstMs int64, width, height int) error {
	var lastWidth, lastHeight int
	err := tx.QueryRow(
		`SELECT proc_width, proc_height FROM clip_proc_sizes WHERE cam_loc=? ORDER BY first_ms DESC LIMIT 1`,
		camera,
	).Scan(&lastWidth, &lastHeight)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) || lastWidth != width || lastHeight != height {
		if _, err := tx.Exec(
			`INSERT INTO clip_proc_sizes (cam_loc, first_ms, proc_width, proc_height) VALUES (?, ?, ?, ?)`,
			camera, firstMs, width, height,
		); err != nil && !engineerrors.IsAlreadyExists(err) {
			return fmt.Errorf("appending proc size: %w", err)
		}
	}
	return nil
}

// RemoveClip deletes the row and nulls any references to it.
func (ci *ClipIndex) RemoveClip(filename string) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	return ci.withRetry(func() error {
		tx, err := ci.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`UPDATE clips SET next_file=NULL WHERE next_file=?`, filename); err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE clips SET prev_file=NULL WHERE prev_file=?`, filename); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM clips WHERE filename=?`, filename); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// GetFileAt returns the file containing ms if any; otherwise searches
// in the requested direction within tolerance (nil = infinite).
func (ci *ClipIndex) GetFileAt(camera string, ms int64, tolerance *int64, direction Direction) (*models.Clip, error) {
	rows, err := ci.db.Query(
		`SELECT `+clipColumns+` FROM clips WHERE cam_loc=? AND first_ms<=? AND last_ms>=?`,
		camera, ms, ms,
	)
	if err != nil {
		return nil, err
	}
	if rows.Next() {
		c, err := scanClip(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		ci.cacheProcSize(camera, c)
		return &c, nil
	}
	rows.Close()

	var before, after *models.Clip
	if direction == DirectionAny || direction == DirectionBefore {
		c, err := ci.nearestBefore(camera, ms)
		if err != nil {
			return nil, err
		}
		before = c
	}
	if direction == DirectionAny || direction == DirectionAfter {
		c, err := ci.nearestAfter(camera, ms)
		if err != nil {
			return nil, err
		}
		after = c
	}

	within := func(c *models.Clip, dist int64) bool {
		if c == nil {
			return false
		}
		if tolerance == nil {
			return true
		}
		return dist <= *tolerance
	}

	var beforeDist, afterDist int64
	if before != nil {
		beforeDist = ms - before.LastMs
	}
	if after != nil {
		afterDist = after.FirstMs - ms
	}

	switch direction {
	case DirectionBefore:
		if within(before, beforeDist) {
			return before, nil
		}
		return nil, engineerrors.ErrNotFound
	case DirectionAfter:
		if within(after, afterDist) {
			return after, nil
		}
		return nil, engineerrors.ErrNotFound
	default:
		bOK, aOK := within(before, beforeDist), within(after, afterDist)
		switch {
		case bOK && aOK:
			if beforeDist <= afterDist {
				return before, nil
			}
			return after, nil
		case bOK:
			return before, nil
		case aOK:
			return after, nil
		default:
			return nil, engineerrors.ErrNotFound
		}
	}
}

func (ci *ClipIndex) nearestBefore(camera string, ms int64) (*models.Clip, error) {
	rows, err := ci.db.Query(
		`SELECT `+clipColumns+` FROM clips WHERE cam_loc=? AND last_ms<? ORDER BY last_ms DESC LIMIT 1`,
		camera, ms,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	c, err := scanClip(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (ci *ClipIndex) nearestAfter(camera string, ms int64) (*models.Clip, error) {
	rows, err := ci.db.Query(
		`SELECT `+clipColumns+` FROM clips WHERE cam_loc=? AND first_ms>? ORDER BY first_ms ASC LIMIT 1`,
		camera, ms,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, nil
	}
	c, err := scanClip(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (ci *ClipIndex) cacheProcSize(camera string, c models.Clip) {
	ci.procSizeCacheMu.Lock()
	defer ci.procSizeCacheMu.Unlock()
	ci.procSizeCache[camera] = models.ProcSize{CameraLocation: camera, FirstMs: c.FirstMs, Width: c.ProcWidth, Height: c.ProcHeight}
}

// GetFilesBetween returns files overlapping [start,end], sorted by FirstMs.
func (ci *ClipIndex) GetFilesBetween(camera string, start, end int64) ([]models.Clip, error) {
	rows, err := ci.db.Query(
		`SELECT `+clipColumns+` FROM clips WHERE cam_loc=? AND first_ms<=? AND last_ms>=? ORDER BY first_ms ASC`,
		camera, end, start,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetTimesFromLocation returns a compressed list of available (or
// saved, if savedOnly) intervals clipped to [first,last].
func (ci *ClipIndex) GetTimesFromLocation(camera string, first, last int64, savedOnly bool) ([]rangeutil.Range, error) {
	clips, err := ci.GetFilesBetween(camera, first, last)
	if err != nil {
		return nil, err
	}

	if savedOnly {
		var ranges []rangeutil.Range
		for _, c := range clips {
			if c.CacheStatus != models.Cache {
				ranges = append(ranges, clipToRange(c, first, last))
				continue
			}
			for _, s := range c.SaveTimes {
				start := maxI64(s.StartMs, c.FirstMs)
				end := minI64(s.EndMs, c.LastMs)
				r := clipToRange(models.Clip{FirstMs: start, LastMs: end}, first, last)
				if r.Start <= r.End {
					ranges = append(ranges, r)
				}
			}
		}
		return rangeutil.CompressRanges(ranges), nil
	}

	// Only link-joined neighbors (A.nextFile=B and B.prevFile=A) merge
	// into one range; files that merely touch in time stay apart, since
	// the gap between unlinked segments is real missing video.
	var ranges []rangeutil.Range
	for i, c := range clips {
		r := clipToRange(c, first, last)
		if r.Start > r.End {
			continue
		}
		if i > 0 && len(ranges) > 0 {
			prev := clips[i-1]
			if prev.NextFile == c.Filename && c.PrevFile == prev.Filename {
				if r.End > ranges[len(ranges)-1].End {
					ranges[len(ranges)-1].End = r.End
				}
				continue
			}
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

func clipToRange(c models.Clip, first, last int64) rangeutil.Range {
	return rangeutil.Range{Start: maxI64(c.FirstMs, first), End: minI64(c.LastMs, last)}
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// saveRetryFirstSec and saveRetryMaxMs bound the retry schedule for
// MarkTimesAsSaved's existingOnly mode: a quick retry while the
// requested end is still in the near future, one long retry after
// that, then give up.
const saveRetryFirstSec = 10
const saveRetryMaxMs = 5 * 60 * 1000

// MarkTimesAsSaved pads each range by half the active merge threshold,
// compresses, and applies to existing clips (and, if existingOnly is
// false, buffers the remainder into pending_saves). Returns a retry
// delay in seconds when existingOnly is true and the newest clip still
// trails the requested end (0 means give up).
func (ci *ClipIndex) MarkTimesAsSaved(camera string, ranges []rangeutil.Range, existingOnly bool, nowMs int64) (retryAfterSec int, err error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	thresholds, err := ci.getClipMergeThresholdsLocked(ranges)
	if err != nil {
		return 0, err
	}
	paddingMs := int64(0)
	if len(thresholds) > 0 {
		paddingMs = int64(thresholds[len(thresholds)-1].PaddingSeconds) * 1000 / 2
	}

	padded := make([]rangeutil.Range, len(ranges))
	for i, r := range ranges {
		padded[i] = rangeutil.Range{Start: r.Start - paddingMs, End: r.End + paddingMs}
	}
	padded = rangeutil.CompressRanges(padded)

	err = ci.withRetry(func() error {
		tx, err := ci.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var newestLastMs sql.NullInt64
		if err := tx.QueryRow(`SELECT MAX(last_ms) FROM clips WHERE cam_loc=?`, camera).Scan(&newestLastMs); err != nil {
			return err
		}

		for _, pr := range padded {
			rows, err := tx.Query(`SELECT `+clipColumns+` FROM clips WHERE cam_loc=? AND first_ms<=? AND last_ms>=?`, camera, pr.End, pr.Start)
			if err != nil {
				return err
			}
			var overlapping []models.Clip
			for rows.Next() {
				c, err := scanClip(rows)
				if err != nil {
					rows.Close()
					return err
				}
				overlapping = append(overlapping, c)
			}
			rows.Close()

			for _, c := range overlapping {
				clip := maxI64(pr.Start, c.FirstMs)
				clipEnd := minI64(pr.End, c.LastMs)
				if clip > clipEnd {
					continue
				}
				if err := mergeSaveTimes(tx, c.Filename, []models.SaveRange{{StartMs: clip, EndMs: clipEnd}}); err != nil {
					return err
				}
			}

			if !existingOnly {
				if newestLastMs.Valid && pr.End > newestLastMs.Int64 {
					start := maxI64(pr.Start, newestLastMs.Int64+1)
					if start <= pr.End {
						if _, err := tx.Exec(`INSERT INTO pending_saves (cam_loc, start_ms, end_ms) VALUES (?, ?, ?)`, camera, start, pr.End); err != nil {
							return err
						}
					}
				} else if !newestLastMs.Valid {
					if _, err := tx.Exec(`INSERT INTO pending_saves (cam_loc, start_ms, end_ms) VALUES (?, ?, ?)`, camera, pr.Start, pr.End); err != nil {
						return err
					}
				}
			}
		}

		if existingOnly && newestLastMs.Valid {
			requestedEnd := int64(0)
			for _, r := range ranges {
				if r.End > requestedEnd {
					requestedEnd = r.End
				}
			}
			if newestLastMs.Int64 < requestedEnd {
				switch {
				case nowMs < requestedEnd:
					// Flushes may still be pending; the file can land in
					// the index within seconds.
					retryAfterSec = saveRetryFirstSec
				case nowMs < requestedEnd+saveRetryMaxMs:
					// The file probably never existed, but try once more
					// in case things were just jammed up.
					retryAfterSec = saveRetryMaxMs / 1000
				default:
					// Video never arrived; give up.
					retryAfterSec = 0
				}
			}
		}

		return tx.Commit()
	})
	return retryAfterSec, err
}

// UpdateLocationName splits any clip crossing changeMs into left/right
// sub-clips via the video toolkit (the left piece keeps the old name,
// the right gets the new one), reinserts with corrected links, trims
// saveTimes, and renames every later clip. Failure to remux is logged
// and the original clip preserved.
func (ci *ClipIndex) UpdateLocationName(ctx context.Context, oldName, newName string, changeMs int64, toolkit videotoolkit.VideoToolkit, configDir string) error {
	if err := ci.splitCrossing(ctx, oldName, changeMs, toolkit, configDir, func(c models.Clip) (camLeft, camRight string) {
		return oldName, newName
	}); err != nil {
		return err
	}

	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.withRetry(func() error {
		_, err := ci.db.Exec(`UPDATE clips SET cam_loc=? WHERE cam_loc=? AND first_ms>=?`, newName, oldName, changeMs)
		return err
	})
}

// DeleteCameraLocationDataBetween splits any clip crossing startMs or
// stopMs and deletes every clip left fully inside the window.
func (ci *ClipIndex) DeleteCameraLocationDataBetween(ctx context.Context, camera string, startMs, stopMs int64, toolkit videotoolkit.VideoToolkit, configDir string) error {
	same := func(c models.Clip) (string, string) { return camera, camera }
	if err := ci.splitCrossing(ctx, camera, startMs, toolkit, configDir, same); err != nil {
		return err
	}
	if err := ci.splitCrossing(ctx, camera, stopMs, toolkit, configDir, same); err != nil {
		return err
	}

	inside, err := ci.GetFilesBetween(camera, startMs, stopMs)
	if err != nil {
		return err
	}
	for _, c := range inside {
		if c.FirstMs >= startMs && c.LastMs <= stopMs {
			if err := ci.RemoveClip(c.Filename); err != nil {
				return err
			}
		}
	}
	return nil
}

// splitCrossing finds the clip (if any) straddling boundaryMs and
// splits it via remux into left/right pieces, applying the keyframe
// preroll on the right piece's start.
func (ci *ClipIndex) splitCrossing(ctx context.Context, camera string, boundaryMs int64, toolkit videotoolkit.VideoToolkit, configDir string, names func(models.Clip) (string, string)) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	rows, err := ci.db.Query(`SELECT `+clipColumns+` FROM clips WHERE cam_loc=? AND first_ms<? AND last_ms>?`, camera, boundaryMs, boundaryMs)
	if err != nil {
		return err
	}
	var crossing *models.Clip
	if rows.Next() {
		c, err := scanClip(rows)
		rows.Close()
		if err != nil {
			return err
		}
		crossing = &c
	} else {
		rows.Close()
	}
	if crossing == nil {
		return nil
	}

	leftName := crossing.Filename + "a"
	rightName := crossing.Filename + "b"

	startOffset := maxI64(boundaryMs-videotoolkit.KReencodePrerollMs-crossing.FirstMs, 0)
	result, err := toolkit.RemuxSubClip(ctx, crossing.Filename, rightName, startOffset, crossing.LastMs-crossing.FirstMs, configDir)
	if err != nil {
		ci.log.Warn().Err(err).Str("filename", crossing.Filename).Msg("remux failed, preserving original clip")
		return nil
	}
	if _, err := toolkit.RemuxSubClip(ctx, crossing.Filename, leftName, 0, boundaryMs-crossing.FirstMs, configDir); err != nil {
		ci.log.Warn().Err(err).Str("filename", crossing.Filename).Msg("remux failed, preserving original clip")
		return nil
	}

	// The toolkit reports the actual first-frame offset it recovered,
	// relative to the source file's start; the right piece begins there.
	// The keyframe preroll can pull that offset slightly before the
	// boundary, so clamp to keep the two pieces disjoint.
	newRightFirstMs := crossing.FirstMs + result.ActualFirstMs
	if newRightFirstMs < boundaryMs {
		newRightFirstMs = boundaryMs
	}

	tx, err := ci.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM clips WHERE filename=?`, crossing.Filename); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE clips SET next_file=NULL WHERE next_file=?`, crossing.Filename); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE clips SET prev_file=NULL WHERE prev_file=?`, crossing.Filename); err != nil {
		return err
	}

	leftCam, rightCam := names(*crossing)

	if _, err := tx.Exec(
		`INSERT INTO clips (filename, cam_loc, first_ms, last_ms, prev_file, next_file, tags, is_cache, proc_width, proc_height) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		leftName, leftCam, crossing.FirstMs, boundaryMs-1, nullIfEmpty(crossing.PrevFile), rightName, "", int(crossing.CacheStatus), crossing.ProcWidth, crossing.ProcHeight,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO clips (filename, cam_loc, first_ms, last_ms, prev_file, next_file, tags, is_cache, proc_width, proc_height) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rightName, rightCam, newRightFirstMs, crossing.LastMs, leftName, nullIfEmpty(crossing.NextFile), "", int(crossing.CacheStatus), crossing.ProcWidth, crossing.ProcHeight,
	); err != nil {
		return err
	}
	if crossing.PrevFile != "" {
		if _, err := tx.Exec(`UPDATE clips SET next_file=? WHERE filename=?`, leftName, crossing.PrevFile); err != nil {
			return err
		}
	}
	if crossing.NextFile != "" {
		if _, err := tx.Exec(`UPDATE clips SET prev_file=? WHERE filename=?`, rightName, crossing.NextFile); err != nil {
			return err
		}
	}

	var leftSave, rightSave []models.SaveRange
	for _, s := range crossing.SaveTimes {
		if s.EndMs < boundaryMs {
			leftSave = append(leftSave, s)
		} else if s.StartMs >= boundaryMs {
			rightSave = append(rightSave, s)
		} else {
			leftSave = append(leftSave, models.SaveRange{StartMs: s.StartMs, EndMs: boundaryMs - 1})
			rightSave = append(rightSave, models.SaveRange{StartMs: boundaryMs, EndMs: s.EndMs})
		}
	}
	if len(leftSave) > 0 {
		if err := mergeSaveTimesReplace(tx, leftName, leftSave); err != nil {
			return err
		}
	}
	if len(rightSave) > 0 {
		if err := mergeSaveTimesReplace(tx, rightName, rightSave); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func mergeSaveTimesReplace(tx *sql.Tx, filename string, ranges []models.SaveRange) error {
	return writeSaveTimes(tx, filename, ranges)
}

// GetUniqueProcSizesBetweenTimes returns spans where consecutive
// entries have distinct (w,h); the last entry's LastMs is "now" (left
// as the sentinel 0 for the caller to interpret, since this package
// has no notion of wall-clock "now").
func (ci *ClipIndex) GetUniqueProcSizesBetweenTimes(camera string, start, end int64) ([]models.ProcSizeSpan, error) {
	rows, err := ci.db.Query(
		`SELECT first_ms, proc_width, proc_height FROM clip_proc_sizes WHERE cam_loc=? AND first_ms<=? ORDER BY first_ms ASC`,
		camera, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type entry struct {
		firstMs       int64
		width, height int
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.firstMs, &e.width, &e.height); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	var spans []models.ProcSizeSpan
	for i, e := range entries {
		lastMs := int64(0)
		if i+1 < len(entries) {
			lastMs = entries[i+1].firstMs - 1
		}
		if i+1 < len(entries) && lastMs < start {
			continue
		}
		if len(spans) > 0 {
			last := &spans[len(spans)-1]
			if last.Width == e.width && last.Height == e.height {
				last.LastMs = lastMs
				continue
			}
		}
		spans = append(spans, models.ProcSizeSpan{Width: e.width, Height: e.height, FirstMs: e.firstMs, LastMs: lastMs})
	}
	return spans, nil
}

// AddMergeThreshold appends a new merge-threshold history entry and
// invalidates the cached threshold list.
func (ci *ClipIndex) AddMergeThreshold(updateTime int64, paddingSec int) error {
	ci.mergeThresholdMu.Lock()
	defer ci.mergeThresholdMu.Unlock()

	_, err := ci.db.Exec(`INSERT OR REPLACE INTO clip_padding (update_time, padding_sec) VALUES (?, ?)`, updateTime, paddingSec)
	if err != nil {
		return err
	}
	ci.mergeThresholdValid = false
	return nil
}

// GetClipMergeThresholds slices the threshold history to entries in
// effect during [start,end]; cached until a write invalidates it.
func (ci *ClipIndex) GetClipMergeThresholds(start, end int64) ([]models.ClipMergeThreshold, error) {
	ci.mergeThresholdMu.RLock()
	if ci.mergeThresholdValid {
		defer ci.mergeThresholdMu.RUnlock()
		return sliceThresholds(ci.mergeThresholdCache, start, end), nil
	}
	ci.mergeThresholdMu.RUnlock()

	ci.mergeThresholdMu.Lock()
	defer ci.mergeThresholdMu.Unlock()
	if ci.mergeThresholdValid {
		return sliceThresholds(ci.mergeThresholdCache, start, end), nil
	}

	rows, err := ci.db.Query(`SELECT update_time, padding_sec FROM clip_padding ORDER BY update_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []models.ClipMergeThreshold
	for rows.Next() {
		var t models.ClipMergeThreshold
		if err := rows.Scan(&t.UpdateTime, &t.PaddingSeconds); err != nil {
			return nil, err
		}
		all = append(all, t)
	}
	ci.mergeThresholdCache = all
	ci.mergeThresholdValid = true
	return sliceThresholds(all, start, end), nil
}

func (ci *ClipIndex) getClipMergeThresholdsLocked(ranges []rangeutil.Range) ([]models.ClipMergeThreshold, error) {
	if len(ranges) == 0 {
		return ci.GetClipMergeThresholds(0, 0)
	}
	start, end := ranges[0].Start, ranges[0].End
	for _, r := range ranges[1:] {
		start = minI64(start, r.Start)
		end = maxI64(end, r.End)
	}
	return ci.GetClipMergeThresholds(start, end)
}

func sliceThresholds(all []models.ClipMergeThreshold, start, end int64) []models.ClipMergeThreshold {
	var out []models.ClipMergeThreshold
	for i, t := range all {
		var next int64 = end
		if i+1 < len(all) {
			next = all[i+1].UpdateTime
		}
		if t.UpdateTime <= end && next >= start {
			out = append(out, t)
		}
	}
	return out
}
