// Package supervisor implements the single-threaded message loop
// that dispatches inbound messages to the response runners and the
// response DB, bounds a worker-thread pool per message kind, drives
// the retry list, and runs the periodic sweeps (push-notification
// purge, object-index orphan GC, liveness ping).
package supervisor

import (
	"sync/atomic"

	"github.com/nvrengine/core/models"
)

// Settings is an immutable snapshot of the runtime-adjustable
// configuration. A new snapshot is published (copy-on-update) on
// every Set* message rather than locking a shared mutable map: every
// worker goroutine reads an atomic.Value and sees either the old or
// the new snapshot in full, never a partially-updated one.
type Settings struct {
	Ftp           models.FtpSettings
	LocalExport   models.LocalExportSettings
	Notification  models.NotificationSettings
	ServicesToken string
	Debug         map[string]string
	CamResolutions map[string]Resolution
}

// Resolution is a camera's currently configured processing size.
type Resolution struct {
	Width  int
	Height int
}

func emptySettings() *Settings {
	return &Settings{
		LocalExport:    models.LocalExportSettings{},
		Debug:          map[string]string{},
		CamResolutions: map[string]Resolution{},
	}
}

// settingsBox holds the current snapshot behind an atomic.Value.
type settingsBox struct {
	v atomic.Value
}

func newSettingsBox() *settingsBox {
	b := &settingsBox{}
	b.v.Store(emptySettings())
	return b
}

func (b *settingsBox) Get() *Settings {
	return b.v.Load().(*Settings)
}

// Update publishes a new snapshot built from a shallow copy of the
// current one via mutate, which the caller fills in. mutate must not
// retain or mutate shared sub-maps in place; it receives a fresh copy.
func (b *settingsBox) Update(mutate func(s *Settings)) {
	cur := b.Get()
	next := &Settings{
		Ftp:            cur.Ftp,
		LocalExport:    copyLocalExport(cur.LocalExport),
		Notification:   cur.Notification,
		ServicesToken:  cur.ServicesToken,
		Debug:          copyStringMap(cur.Debug),
		CamResolutions: copyResolutions(cur.CamResolutions),
	}
	mutate(next)
	b.v.Store(next)
}

func copyLocalExport(m models.LocalExportSettings) models.LocalExportSettings {
	out := make(models.LocalExportSettings, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyResolutions(m map[string]Resolution) map[string]Resolution {
	out := make(map[string]Resolution, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
