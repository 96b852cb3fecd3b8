package objectindex

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/nvrengine/core/models"
)

// AddObject inserts a new tracked object with TimeStop=TimeStart and
// zeroed extrema; type is normalized.
func (oi *ObjectIndex) AddObject(timeStart int64, objType string, camera string) (int64, error) {
	normalized := models.NormalizeObjectType(objType)
	res, err := oi.db.Exec(
		`INSERT INTO objects (cam_loc, time_start, time_stop, type, min_width, max_width, min_height, max_height)
		 VALUES (?, ?, ?, ?, 0, 0, 0, 0)`,
		camera, timeStart, timeStart, string(normalized),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting object: %w", err)
	}
	return res.LastInsertId()
}

// BBox is a bounding box in the normalized 320x240 reference frame.
type BBox struct {
	X1, Y1, X2, Y2 int
}

func (b BBox) width() int  { return b.X2 - b.X1 }
func (b BBox) height() int { return b.Y2 - b.Y1 }

// AddFrame inserts a motion row for uid at frame/timeMs. Duplicate
// (uid, time) rows are silently dropped and logged as a tracker bug.
// If action is non-empty, an adjacent same-action row is extended
// instead of a new row being inserted.
func (oi *ObjectIndex) AddFrame(uid int64, frame int64, timeMs int64, bbox BBox, objType string, action string) error {
	tx, err := oi.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO motion (obj_uid, frame, time, x1, y1, x2, y2) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uid, frame, timeMs, bbox.X1, bbox.Y1, bbox.X2, bbox.Y2,
	)
	if err != nil {
		if isUniqueViolation(err) {
			oi.log.Warn().Int64("uid", uid).Int64("time", timeMs).Msg("tracker bug: duplicate (objUid, time) motion row dropped")
			return tx.Commit()
		}
		return fmt.Errorf("inserting motion: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE objects SET
			time_stop = MAX(time_stop, ?),
			min_width = CASE WHEN min_width = 0 THEN ? ELSE MIN(min_width, ?) END,
			max_width = MAX(max_width, ?),
			min_height = CASE WHEN min_height = 0 THEN ? ELSE MIN(min_height, ?) END,
			max_height = MAX(max_height, ?)
		 WHERE uid = ?`,
		timeMs, bbox.width(), bbox.width(), bbox.width(), bbox.height(), bbox.height(), bbox.height(), uid,
	); err != nil {
		return fmt.Errorf("updating object extrema: %w", err)
	}

	if action != "" {
		res, err := tx.Exec(
			`UPDATE actions SET frame_stop=?, time_stop=? WHERE obj_uid=? AND frame_stop=? AND action=?`,
			frame, timeMs, uid, frame-1, action,
		)
		if err != nil {
			return fmt.Errorf("extending action: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := tx.Exec(
				`INSERT INTO actions (obj_uid, type, action, frame_start, time_start, frame_stop, time_stop) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				uid, objType, action, frame, timeMs, frame, timeMs,
			); err != nil {
				return fmt.Errorf("inserting action: %w", err)
			}
		}
	}

	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(err.Error(), "UNIQUE constraint", "PRIMARY KEY constraint")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

// DeleteCameraLocationDataBetween deletes motion rows in the window,
// drops now-orphaned objects, and splits objects whose range straddles
// the window by renumbering the "after" portion's motion rows onto a
// freshly inserted object.
func (oi *ObjectIndex) DeleteCameraLocationDataBetween(camera string, startMs, stopMs int64) error {
	tx, err := oi.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT DISTINCT o.uid, o.time_start, o.time_stop, o.type FROM objects o
		 JOIN motion m ON m.obj_uid = o.uid
		 WHERE o.cam_loc = ? AND m.time BETWEEN ? AND ?`,
		camera, startMs, stopMs,
	)
	if err != nil {
		return err
	}
	type affected struct {
		uid              int64
		timeStart, timeStop int64
		objType          string
	}
	var affectedObjs []affected
	for rows.Next() {
		var a affected
		if err := rows.Scan(&a.uid, &a.timeStart, &a.timeStop, &a.objType); err != nil {
			rows.Close()
			return err
		}
		affectedObjs = append(affectedObjs, a)
	}
	rows.Close()

	for _, a := range affectedObjs {
		straddlesAfter := a.timeStop > stopMs

		if straddlesAfter {
			newUID, err := insertObjectTx(tx, camera, stopMs+1, a.objType)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`UPDATE motion SET obj_uid=? WHERE obj_uid=? AND time>?`, newUID, a.uid, stopMs); err != nil {
				return err
			}
			if err := rederiveObjectTimes(tx, newUID); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(`DELETE FROM motion WHERE obj_uid=? AND time BETWEEN ? AND ?`, a.uid, startMs, stopMs); err != nil {
			return err
		}

		remaining, err := countMotion(tx, a.uid)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(`DELETE FROM objects WHERE uid=?`, a.uid); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM actions WHERE obj_uid=?`, a.uid); err != nil {
				return err
			}
		} else {
			if err := rederiveObjectTimes(tx, a.uid); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func insertObjectTx(tx *sql.Tx, camera string, timeStart int64, objType string) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO objects (cam_loc, time_start, time_stop, type, min_width, max_width, min_height, max_height)
		 VALUES (?, ?, ?, ?, 0, 0, 0, 0)`,
		camera, timeStart, timeStart, objType,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func countMotion(tx *sql.Tx, uid int64) (int, error) {
	var n int
	err := tx.QueryRow(`SELECT COUNT(*) FROM motion WHERE obj_uid=?`, uid).Scan(&n)
	return n, err
}

func rederiveObjectTimes(tx *sql.Tx, uid int64) error {
	var minT, maxT int64
	var minW, maxW, minH, maxH sql.NullInt64
	err := tx.QueryRow(
		`SELECT MIN(time), MAX(time), MIN(x2-x1), MAX(x2-x1), MIN(y2-y1), MAX(y2-y1) FROM motion WHERE obj_uid=?`,
		uid,
	).Scan(&minT, &maxT, &minW, &maxW, &minH, &maxH)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE objects SET time_start=?, time_stop=?, min_width=?, max_width=?, min_height=?, max_height=? WHERE uid=?`,
		minT, maxT, minW.Int64, maxW.Int64, minH.Int64, maxH.Int64, uid,
	)
	return err
}

// TidyObjectTable garbage-collects objects with no motion rows, in
// batches of 1000 uids, skipping objects started within the last 15
// minutes of lastInsertTimeStart so a race between AddObject and the
// first AddFrame cannot orphan a legitimate object.
func (oi *ObjectIndex) TidyObjectTable(lastInsertTimeStart int64) (deleted int, err error) {
	const batchSize = 1000
	const graceMs = 15 * 60 * 1000
	cutoff := lastInsertTimeStart - graceMs

	var lastUID int64
	for {
		rows, err := oi.db.Query(
			`SELECT uid, time_start FROM objects WHERE uid > ? ORDER BY uid ASC LIMIT ?`,
			lastUID, batchSize,
		)
		if err != nil {
			return deleted, err
		}
		type cand struct {
			uid       int64
			timeStart int64
		}
		var batch []cand
		for rows.Next() {
			var c cand
			if err := rows.Scan(&c.uid, &c.timeStart); err != nil {
				rows.Close()
				return deleted, err
			}
			batch = append(batch, c)
		}
		rows.Close()
		if len(batch) == 0 {
			break
		}
		lastUID = batch[len(batch)-1].uid

		for _, c := range batch {
			if c.timeStart > cutoff {
				continue
			}
			var n int
			if err := oi.db.QueryRow(`SELECT COUNT(*) FROM motion WHERE obj_uid=?`, c.uid).Scan(&n); err != nil {
				return deleted, err
			}
			if n > 0 {
				continue
			}
			if _, err := oi.db.Exec(`DELETE FROM objects WHERE uid=?`, c.uid); err != nil {
				return deleted, err
			}
			if _, err := oi.db.Exec(`DELETE FROM actions WHERE obj_uid=?`, c.uid); err != nil {
				return deleted, err
			}
			deleted++
		}

		if len(batch) < batchSize {
			break
		}
	}
	return deleted, nil
}

// ObjectRange is one object's minimum/maximum time and frame within a
// query window, as returned by GetObjectRangesBetweenTimes.
type ObjectRange struct {
	ObjUID         int64
	CameraLocation string
	StartMs        int64
	StartFrame     int64
	EndMs          int64
	EndFrame       int64
}

// GetObjectRangesBetweenTimes returns one row per object whose motion
// intersects [start,end], giving that object's min/max time and frame
// within the window. This is the streaming-search fast path; it may
// elide sub-ranges within a single object (brief disappearances).
func (oi *ObjectIndex) GetObjectRangesBetweenTimes(start, end int64) ([]ObjectRange, error) {
	rows, err := oi.db.Query(
		`SELECT m.obj_uid, o.cam_loc, MIN(m.time), MAX(m.time)
		 FROM motion m JOIN objects o ON o.uid = m.obj_uid
		 WHERE m.time BETWEEN ? AND ?
		 GROUP BY m.obj_uid
		 ORDER BY m.obj_uid ASC`,
		start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ObjectRange
	for rows.Next() {
		var r ObjectRange
		if err := rows.Scan(&r.ObjUID, &r.CameraLocation, &r.StartMs, &r.EndMs); err != nil {
			return nil, err
		}
		if err := oi.fillFrames(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (oi *ObjectIndex) fillFrames(r *ObjectRange) error {
	if err := oi.db.QueryRow(`SELECT frame FROM motion WHERE obj_uid=? AND time=?`, r.ObjUID, r.StartMs).Scan(&r.StartFrame); err != nil {
		return err
	}
	return oi.db.QueryRow(`SELECT frame FROM motion WHERE obj_uid=? AND time=?`, r.ObjUID, r.EndMs).Scan(&r.EndFrame)
}
