package objectindex

import "github.com/nvrengine/core/models"

// Target is one (type, action) filter tuple; Action="" (or "any")
// matches any action, including objects with no action rows at all.
type Target struct {
	Type   string
	Action string
}

func (t Target) isAnyAction() bool { return t.Action == "" || t.Action == "any" }

// Region is a spatial predicate in the normalized 320x240 reference
// frame; a motion row matches when its bounding box overlaps the
// region. Callers holding a region in processed-resolution pixels must
// rescale it to the reference frame first (see ProcSizeSpan).
type Region struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Query is a typed, parameterized filter over the object index.
type Query struct {
	Cameras   []string
	Targets   []Target
	MinHeight int     // sizeFilter: minimum maxHeight
	Region    *Region // spatial predicate, nil for whole-frame
}

// Observation is one (ms, frame) motion sample contributing to a
// search result.
type Observation struct {
	Ms    int64
	Frame int64
}

// GetSearchResults returns, for every object matching q within
// [start,end], its ordered (ms,frame) observations.
func (oi *ObjectIndex) GetSearchResults(q Query, start, end int64) (map[int64][]Observation, error) {
	uids, actionWindows, err := oi.matchingObjects(q, start, end)
	if err != nil {
		return nil, err
	}

	regionSQL, regionArgs := regionClause(q.Region)

	out := make(map[int64][]Observation, len(uids))
	for _, uid := range uids {
		lo, hi := start, end
		if w, ok := actionWindows[uid]; ok {
			lo, hi = maxI64(lo, w.start), minI64(hi, w.end)
		}
		args := append([]interface{}{uid, lo, hi}, regionArgs...)
		rows, err := oi.db.Query(
			`SELECT time, frame FROM motion WHERE obj_uid=? AND time BETWEEN ? AND ?`+regionSQL+` ORDER BY time ASC`,
			args...,
		)
		if err != nil {
			return nil, err
		}
		var obs []Observation
		for rows.Next() {
			var o Observation
			if err := rows.Scan(&o.Ms, &o.Frame); err != nil {
				rows.Close()
				return nil, err
			}
			obs = append(obs, o)
		}
		rows.Close()
		if len(obs) > 0 {
			out[uid] = obs
		}
	}
	return out, nil
}

// GetSearchResultsRanges is the collapsed-range analogue of
// GetSearchResults, used when shouldCombineClips pre-collapses
// adjacent frames server-side instead of in the assembly stage.
func (oi *ObjectIndex) GetSearchResultsRanges(q Query, start, end int64) (map[int64][]ObjectRange, error) {
	uids, actionWindows, err := oi.matchingObjects(q, start, end)
	if err != nil {
		return nil, err
	}

	regionSQL, regionArgs := regionClause(q.Region)

	out := make(map[int64][]ObjectRange, len(uids))
	for _, uid := range uids {
		lo, hi := start, end
		if w, ok := actionWindows[uid]; ok {
			lo, hi = maxI64(lo, w.start), minI64(hi, w.end)
		}
		var r ObjectRange
		r.ObjUID = uid
		args := append([]interface{}{uid, lo, hi}, regionArgs...)
		err := oi.db.QueryRow(
			`SELECT o.cam_loc, MIN(m.time), MAX(m.time) FROM motion m JOIN objects o ON o.uid=m.obj_uid
			 WHERE m.obj_uid=? AND m.time BETWEEN ? AND ?`+regionSQL,
			args...,
		).Scan(&r.CameraLocation, &r.StartMs, &r.EndMs)
		if err != nil {
			continue
		}
		if err := oi.fillFrames(&r); err != nil {
			return nil, err
		}
		out[uid] = []ObjectRange{r}
	}
	return out, nil
}

type window struct{ start, end int64 }

// matchingObjects resolves q against the objects/actions tables,
// returning matched uids and, for targets with a specific action, the
// per-object time window restricting that object's contribution.
func (oi *ObjectIndex) matchingObjects(q Query, start, end int64) ([]int64, map[int64]window, error) {
	if len(q.Targets) == 0 {
		return nil, nil, nil
	}

	seen := map[int64]bool{}
	actionWindows := map[int64]window{}
	var uids []int64

	for _, target := range q.Targets {
		args := []interface{}{start, end, string(models.NormalizeObjectType(target.Type))}
		query := `SELECT DISTINCT o.uid FROM objects o JOIN motion m ON m.obj_uid=o.uid
			WHERE m.time BETWEEN ? AND ? AND o.type=?`
		if q.MinHeight > 0 {
			query += ` AND o.max_height >= ?`
			args = append(args, q.MinHeight)
		}
		if len(q.Cameras) > 0 {
			query += ` AND o.cam_loc IN (` + placeholders(len(q.Cameras)) + `)`
			for _, c := range q.Cameras {
				args = append(args, c)
			}
		}

		rows, err := oi.db.Query(query, args...)
		if err != nil {
			return nil, nil, err
		}
		var candidateUIDs []int64
		for rows.Next() {
			var uid int64
			if err := rows.Scan(&uid); err != nil {
				rows.Close()
				return nil, nil, err
			}
			candidateUIDs = append(candidateUIDs, uid)
		}
		rows.Close()

		if target.isAnyAction() {
			for _, uid := range candidateUIDs {
				if !seen[uid] {
					seen[uid] = true
					uids = append(uids, uid)
				}
			}
			continue
		}

		for _, uid := range candidateUIDs {
			var aStart, aEnd int64
			err := oi.db.QueryRow(
				`SELECT MIN(time_start), MAX(time_stop) FROM actions WHERE obj_uid=? AND action=?`,
				uid, target.Action,
			).Scan(&aStart, &aEnd)
			if err != nil {
				continue
			}
			if !seen[uid] {
				seen[uid] = true
				uids = append(uids, uid)
			}
			actionWindows[uid] = window{start: aStart, end: aEnd}
		}
	}

	return uids, actionWindows, nil
}

// regionClause renders the spatial overlap predicate for motion rows,
// or nothing when the query is whole-frame.
func regionClause(r *Region) (string, []interface{}) {
	if r == nil {
		return "", nil
	}
	return ` AND x2 >= ? AND x1 <= ? AND y2 >= ? AND y1 <= ?`,
		[]interface{}{r.X1, r.X2, r.Y1, r.Y2}
}

func placeholders(n int) string {
	s := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			s = append(s, ',')
		}
		s = append(s, '?')
	}
	return string(s)
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
