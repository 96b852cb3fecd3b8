// Package videotoolkit defines the external video-toolkit collaborator
// interface (remux and frame-accurate read) and provides
// an ffmpeg-backed implementation plus a fake for tests that writes
// placeholder files.
// Video decode/encode internals are explicitly out of scope for this
// engine; this package only needs to shell out to a toolkit and
// interpret its result.
package videotoolkit

import "context"

// KReencodePrerollMs is the empirical keyframe-alignment preroll
// applied before a remux boundary cut.
const KReencodePrerollMs = 10

// RemuxResult is returned by RemuxSubClip.
type RemuxResult struct {
	// ActualFirstMs is the real first-frame offset the toolkit
	// recovered, in ms, to be added to the caller's requested FirstMs.
	ActualFirstMs int64
}

// VideoToolkit is the external collaborator interface the clip index
// and response clip-senders call to split, trim, and read video
// files. Implementations are never responsible for producing frames
// or running detection; they only remux existing bytes.
type VideoToolkit interface {
	// RemuxSubClip extracts [startOffsetMs, endOffsetMs) of src into
	// dst, returning the actual recovered first-frame offset.
	RemuxSubClip(ctx context.Context, src, dst string, startOffsetMs, endOffsetMs int64, configDir string) (RemuxResult, error)

	// RemuxClip concatenates fileList into dst, covering [firstMs,lastMs].
	RemuxClip(ctx context.Context, fileList []string, dst string, firstMs, lastMs int64, configDir string, extras map[string]string) error

	// OpenClipReader opens a readable clip for frame-accurate seeking,
	// used by the email responder to grab a single preview frame.
	OpenClipReader(ctx context.Context, path string) (ClipReader, error)
}

// ClipReader is a frame-accurate reader over one video file.
type ClipReader interface {
	Seek(ms int64) error
	GetNextFrame() ([]byte, error)
	GetPrevFrame() ([]byte, error)
	GetInputSize() (width, height int)
	Close() error
}
