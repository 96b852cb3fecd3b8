// Package responsedb implements the persistent store backing the
// response pipeline: pending clip-transport jobs partitioned by
// protocol, pending push notifications, and the shutdown-only lock
// that keeps a lingering sender thread from corrupting the file at
// process exit.
package responsedb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nvrengine/core/engineerrors"
	"github.com/nvrengine/core/models"
)

// ResponseDB is the SQLite-backed persistent queue for component G.
type ResponseDB struct {
	db  *sql.DB
	log zerolog.Logger

	mu     sync.RWMutex
	locked bool
}

// Open opens (creating if needed) the response database at path and
// runs its migrations.
func Open(path string, log zerolog.Logger) (*ResponseDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening response db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	r := &ResponseDB{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *ResponseDB) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS pending_clips (
    uid          TEXT PRIMARY KEY,
    protocol     TEXT NOT NULL,
    cam_loc      TEXT NOT NULL,
    rule_name    TEXT NOT NULL,
    start_time   INTEGER NOT NULL,
    stop_time    INTEGER NOT NULL,
    play_start   INTEGER NOT NULL,
    preview_ms   INTEGER NOT NULL,
    obj_list     TEXT NOT NULL,
    start_list   TEXT NOT NULL,
    attempt      INTEGER NOT NULL DEFAULT 0,
    created_at   INTEGER NOT NULL,
    in_flight    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pending_clips_protocol ON pending_clips(protocol, created_at);

CREATE TABLE IF NOT EXISTS pending_push (
    uid          TEXT PRIMARY KEY,
    content      TEXT NOT NULL,
    json_payload TEXT NOT NULL,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_push_created ON pending_push(created_at);
`
	_, err := r.db.Exec(schema)
	if err != nil && !engineerrors.IsAlreadyExists(err) {
		return fmt.Errorf("running response db migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (r *ResponseDB) Close() error { return r.db.Close() }

// LockForever permanently blocks all further writers. It is meant to
// be called exactly once, during the final phase of shutdown, so a
// sender thread that hasn't noticed the shutdown signal yet cannot
// write to the file after the process has otherwise torn down.
func (r *ResponseDB) LockForever() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = true
}

func (r *ResponseDB) checkWritable() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.locked {
		return engineerrors.ErrShuttingDown
	}
	return nil
}

// EnqueueClip inserts a new pending clip-transport job for protocol.
func (r *ResponseDB) EnqueueClip(job models.PendingClip) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	objList := encodeInt64List(job.ObjList)
	startList := encodeInt64List(job.StartList)
	_, err := r.db.Exec(`INSERT INTO pending_clips
		(uid, protocol, cam_loc, rule_name, start_time, stop_time, play_start, preview_ms, obj_list, start_list, attempt, created_at, in_flight)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		job.UID, string(job.Protocol), job.CameraLocation, job.RuleName, job.StartTime, job.StopTime, job.PlayStart, job.PreviewMs, objList, startList, job.Attempt, job.CreatedAt)
	return err
}

// AreResponsesPending reports whether protocol has any job that is
// not currently claimed in-flight by a sender.
func (r *ResponseDB) AreResponsesPending(protocol models.Protocol) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM pending_clips WHERE protocol=? AND in_flight=0`, string(protocol)).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetNextClipToSend claims (marks in_flight) and returns the oldest
// unclaimed job for protocol, preserving FIFO per-protocol order.
func (r *ResponseDB) GetNextClipToSend(protocol models.Protocol) (*models.PendingClip, error) {
	if err := r.checkWritable(); err != nil {
		return nil, err
	}

	row := r.db.QueryRow(`SELECT uid, protocol, cam_loc, rule_name, start_time, stop_time, play_start, preview_ms, obj_list, start_list, attempt, created_at
		FROM pending_clips WHERE protocol=? AND in_flight=0 ORDER BY created_at ASC LIMIT 1`, string(protocol))

	var job models.PendingClip
	var proto string
	var objList, startList string
	if err := row.Scan(&job.UID, &proto, &job.CameraLocation, &job.RuleName, &job.StartTime, &job.StopTime, &job.PlayStart, &job.PreviewMs, &objList, &startList, &job.Attempt, &job.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	job.Protocol = models.Protocol(proto)
	job.ObjList = decodeInt64List(objList)
	job.StartList = decodeInt64List(startList)

	if _, err := r.db.Exec(`UPDATE pending_clips SET in_flight=1 WHERE uid=?`, job.UID); err != nil {
		return nil, err
	}
	return &job, nil
}

// ClipDone deletes a job row on success. On failure the job is
// released (in_flight cleared) and its attempt counter incremented so
// the sender thread's own backoff policy can decide whether to retry.
func (r *ResponseDB) ClipDone(uid string, wasSent bool) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	if wasSent {
		_, err := r.db.Exec(`DELETE FROM pending_clips WHERE uid=?`, uid)
		return err
	}
	_, err := r.db.Exec(`UPDATE pending_clips SET in_flight=0, attempt=attempt+1 WHERE uid=?`, uid)
	return err
}

// AddPushNotification records content (plus its JSON payload, for
// gateway resend) in the pending-push store.
func (r *ResponseDB) AddPushNotification(uid, content, jsonPayload string, nowMs int64) error {
	if err := r.checkWritable(); err != nil {
		return err
	}
	_, err := r.db.Exec(`INSERT INTO pending_push (uid, content, json_payload, created_at) VALUES (?, ?, ?, ?)`, uid, content, jsonPayload, nowMs)
	return err
}

// PurgePushNotifications deletes push records older than maxAgeSecs,
// up to maxRows per call.
func (r *ResponseDB) PurgePushNotifications(maxAgeSecs int, maxRows int, nowMs int64) (int64, error) {
	if err := r.checkWritable(); err != nil {
		return 0, err
	}
	cutoff := nowMs - int64(maxAgeSecs)*1000
	res, err := r.db.Exec(`DELETE FROM pending_push WHERE uid IN (
		SELECT uid FROM pending_push WHERE created_at < ? ORDER BY created_at ASC LIMIT ?)`, cutoff, maxRows)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListPushNotifications returns up to limit pending-push rows, oldest
// first.
func (r *ResponseDB) ListPushNotifications(limit int) ([]models.StoredPushNotification, error) {
	rows, err := r.db.Query(`SELECT uid, content, json_payload, created_at FROM pending_push ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StoredPushNotification
	for rows.Next() {
		var p models.StoredPushNotification
		if err := rows.Scan(&p.UID, &p.Content, &p.JSONPayload, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func encodeInt64List(xs []int64) string {
	b, _ := json.Marshal(xs)
	return string(b)
}

func decodeInt64List(s string) []int64 {
	if s == "" {
		return nil
	}
	var out []int64
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
