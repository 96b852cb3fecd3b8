// Package objectindex implements the persistent per-camera catalog of
// tracked objects, their bounding-box time series, and their labeled
// action intervals.
package objectindex

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nvrengine/core/engineerrors"
)

// ObjectIndex owns a single shared SQLite connection, the same
// single-writer/many-reader shape as clipindex.
type ObjectIndex struct {
	db  *sql.DB
	log zerolog.Logger
}

func Open(path string, log zerolog.Logger) (*ObjectIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening object index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	oi := &ObjectIndex{db: db, log: log}
	if err := oi.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return oi, nil
}

func (oi *ObjectIndex) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS objects (
			uid INTEGER PRIMARY KEY AUTOINCREMENT,
			cam_loc TEXT NOT NULL,
			time_start INTEGER NOT NULL,
			time_stop INTEGER NOT NULL,
			type TEXT NOT NULL,
			min_width INTEGER NOT NULL,
			max_width INTEGER NOT NULL,
			min_height INTEGER NOT NULL,
			max_height INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_timestop ON objects(time_stop)`,
		`CREATE INDEX IF NOT EXISTS idx_objects_camloc ON objects(cam_loc)`,
		`CREATE TABLE IF NOT EXISTS motion (
			obj_uid INTEGER NOT NULL,
			frame INTEGER NOT NULL,
			time INTEGER NOT NULL,
			x1 INTEGER NOT NULL,
			y1 INTEGER NOT NULL,
			x2 INTEGER NOT NULL,
			y2 INTEGER NOT NULL,
			PRIMARY KEY (obj_uid, time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_motion_objuid_time ON motion(obj_uid, time)`,
		`CREATE TABLE IF NOT EXISTS actions (
			obj_uid INTEGER NOT NULL,
			type TEXT NOT NULL,
			action TEXT NOT NULL,
			frame_start INTEGER NOT NULL,
			time_start INTEGER NOT NULL,
			frame_stop INTEGER NOT NULL,
			time_stop INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_objuid ON actions(obj_uid)`,
	}
	for _, stmt := range stmts {
		if _, err := oi.db.Exec(stmt); err != nil && !engineerrors.IsAlreadyExists(err) {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

func (oi *ObjectIndex) Close() error { return oi.db.Close() }
