// Package clipindex implements the persistent per-camera catalog of
// recorded video files: time ranges, continuity links, cache/saved
// status, per-range processing resolutions, and merge-threshold
// history.
package clipindex

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nvrengine/core/engineerrors"
	"github.com/nvrengine/core/models"
)

// ClipIndex owns a single shared SQLite connection (one *sql.DB per
// process, WAL mode, readers tolerated alongside the single writer).
type ClipIndex struct {
	db  *sql.DB
	log zerolog.Logger

	mu sync.Mutex // serializes multi-statement operations (split-on-rename, markTimesAsSaved)

	procSizeCacheMu sync.Mutex
	procSizeCache   map[string]models.ProcSize // 1-entry-per-camera cache fed by GetFileAt

	mergeThresholdMu    sync.RWMutex
	mergeThresholdCache []models.ClipMergeThreshold
	mergeThresholdValid bool
}

// Open opens or creates the clip index at path, applying idempotent
// schema upgrades. Schema-creation races between processes are
// tolerated by swallowing "already exists" errors.
func Open(path string, log zerolog.Logger) (*ClipIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening clip index: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; matches check_same_thread=false intent

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	ci := &ClipIndex{db: db, log: log, procSizeCache: map[string]models.ProcSize{}}
	if err := ci.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return ci, nil
}

func (ci *ClipIndex) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS clips (
			uid INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL UNIQUE,
			cam_loc TEXT NOT NULL,
			first_ms INTEGER NOT NULL,
			last_ms INTEGER NOT NULL,
			prev_file TEXT,
			next_file TEXT,
			tags TEXT,
			is_cache INTEGER NOT NULL DEFAULT 0,
			proc_width INTEGER NOT NULL DEFAULT 0,
			proc_height INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_filename_camloc ON clips(filename, cam_loc)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_prevfile ON clips(prev_file)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_nextfile ON clips(next_file)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_camloc_first ON clips(cam_loc, first_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_camloc_last ON clips(cam_loc, last_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_clips_iscache_first ON clips(is_cache, first_ms)`,
		`CREATE TABLE IF NOT EXISTS clip_padding (
			update_time INTEGER PRIMARY KEY,
			padding_sec INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS clip_proc_sizes (
			cam_loc TEXT NOT NULL,
			first_ms INTEGER NOT NULL,
			proc_width INTEGER NOT NULL,
			proc_height INTEGER NOT NULL,
			PRIMARY KEY (cam_loc, first_ms)
		)`,
		`CREATE TABLE IF NOT EXISTS pending_saves (
			cam_loc TEXT NOT NULL,
			start_ms INTEGER NOT NULL,
			end_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_saves_camloc ON pending_saves(cam_loc)`,
	}
	for _, stmt := range stmts {
		if _, err := ci.db.Exec(stmt); err != nil && !engineerrors.IsAlreadyExists(err) {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

func (ci *ClipIndex) Close() error { return ci.db.Close() }

// withRetry retries a commit once after a 200ms pause on a transient
// "database is locked" condition, per the concurrency note in §4.B.
func (ci *ClipIndex) withRetry(fn func() error) error {
	err := fn()
	if err != nil && engineerrors.IsTransient(err) {
		time.Sleep(200 * time.Millisecond)
		err = fn()
	}
	return err
}
