package responders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvrengine/core/capture"
	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/engineerrors"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/videotoolkit"
)

// Deliverer is the protocol-specific tail end of a clip send: given a
// remuxed temp file on disk, ship it somewhere (FTP, local export
// directory, ...).
type Deliverer interface {
	Deliver(ctx context.Context, job models.PendingClip, tempFile string) error
}

// ClipSender is the shared body of the FTP and local-export response
// protocols: wait for the clip to be flushed to disk, remux it into a
// temp file, hand it to a Deliverer, then clean up. One instance is
// built per protocol with its own Deliverer and polls the Response DB
// on its own ticker.
type ClipSender struct {
	Protocol  models.Protocol
	Clips     *clipindex.ClipIndex
	Toolkit   videotoolkit.VideoToolkit
	Flush     capture.FlushFunc
	ConfigDir  string
	ScratchDir string
	Deliverer  Deliverer
	Log        zerolog.Logger
}

// waitForFlushTimeout is the up-to-60s, shutdown-interruptible poll
// budget for step 1 of the clip-sender sequence.
const waitForFlushTimeout = 60 * time.Second
const waitForFlushPoll = 1 * time.Second

// WaitForFlush blocks (politely, checking shutdown) until the clip
// index reports video up to job.StopTime, or the timeout elapses.
// On the first attempt it requests a flush from the capture pipeline.
func (c *ClipSender) WaitForFlush(ctx context.Context, job models.PendingClip, firstAttempt bool) error {
	if firstAttempt && c.Flush != nil {
		if _, _, err := c.Flush(job.CameraLocation); err != nil {
			c.Log.Warn().Err(err).Str("camera", job.CameraLocation).Msg("flush request failed, proceeding to poll anyway")
		}
	}

	deadline := time.Now().Add(waitForFlushTimeout)
	ticker := time.NewTicker(waitForFlushPoll)
	defer ticker.Stop()

	for {
		ready, err := c.mostRecentTimeAtLeast(job.CameraLocation, job.StopTime)
		if err != nil {
			return fmt.Errorf("checking flush status: %w", err)
		}
		if ready {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for video to be flushed for %s", job.CameraLocation)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *ClipSender) mostRecentTimeAtLeast(camera string, stopMs int64) (bool, error) {
	clip, err := c.Clips.GetFileAt(camera, stopMs, nil, clipindex.DirectionBefore)
	if errors.Is(err, engineerrors.ErrNotFound) {
		// No video for this camera yet; keep polling until the flush
		// lands or the wait budget runs out.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if clip != nil && clip.LastMs >= stopMs {
		return true, nil
	}
	files, err := c.Clips.GetFilesBetween(camera, stopMs, stopMs)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// Process runs one full send attempt: open, remux, deliver, cleanup.
// firstAttempt controls whether a flush is requested before polling.
func (c *ClipSender) Process(ctx context.Context, job models.PendingClip, firstAttempt bool) error {
	if err := c.WaitForFlush(ctx, job, firstAttempt); err != nil {
		return fmt.Errorf("wait for flush: %w", err)
	}

	files, err := c.Clips.GetFilesBetween(job.CameraLocation, job.StartTime, job.StopTime)
	if err != nil {
		return fmt.Errorf("listing source files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no source video found for %s [%d,%d]", job.CameraLocation, job.StartTime, job.StopTime)
	}
	var fileList []string
	for _, f := range files {
		fileList = append(fileList, f.Filename)
	}

	if err := os.MkdirAll(c.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("preparing scratch dir: %w", err)
	}
	tempFile := filepath.Join(c.ScratchDir, fmt.Sprintf("Clip-%d.mp4", time.Now().UnixMilli()))
	defer os.Remove(tempFile)

	if err := c.Toolkit.RemuxClip(ctx, fileList, tempFile, job.StartTime, job.StopTime, c.ConfigDir, nil); err != nil {
		return fmt.Errorf("remuxing clip: %w", err)
	}

	if err := c.Deliverer.Deliver(ctx, job, tempFile); err != nil {
		return fmt.Errorf("delivering clip: %w", err)
	}

	c.Log.Info().
		Str("protocol", string(c.Protocol)).
		Str("camera", job.CameraLocation).
		Str("rule", job.RuleName).
		Msg("clip send completed successfully")
	return nil
}
