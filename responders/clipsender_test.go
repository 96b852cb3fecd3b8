package responders

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/capture"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/videotoolkit"
)

type fakeDeliverer struct {
	delivered []string
	err       error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, job models.PendingClip, tempFile string) error {
	f.delivered = append(f.delivered, tempFile)
	return f.err
}

func TestClipSenderProcessDeliversRemuxedFile(t *testing.T) {
	ci := openTestClipIndex(t)
	require.NoError(t, ci.AddClip("a.mp4", "front", 0, 10000, "", "", models.NonCache, 640, 480))

	deliverer := &fakeDeliverer{}
	sender := &ClipSender{
		Protocol:   models.ProtocolFTP,
		Clips:      ci,
		Toolkit:    videotoolkit.NewFakeToolkit(),
		Flush:      capture.NoopFlush,
		ScratchDir: t.TempDir(),
		Deliverer:  deliverer,
		Log:        zerolog.Nop(),
	}

	job := models.PendingClip{CameraLocation: "front", RuleName: "Doorbell", StartTime: 0, StopTime: 10000}
	err := sender.Process(context.Background(), job, true)
	require.NoError(t, err)
	require.Len(t, deliverer.delivered, 1)
}

func TestClipSenderProcessTimesOutWaitingForFlushWhenNoVideoArrives(t *testing.T) {
	ci := openTestClipIndex(t)
	require.NoError(t, ci.AddClip("a.mp4", "front", 0, 10000, "", "", models.NonCache, 640, 480))

	deliverer := &fakeDeliverer{}
	sender := &ClipSender{
		Protocol:   models.ProtocolFTP,
		Clips:      ci,
		Toolkit:    videotoolkit.NewFakeToolkit(),
		Flush:      capture.NoopFlush,
		ScratchDir: t.TempDir(),
		Deliverer:  deliverer,
		Log:        zerolog.Nop(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// "back" never receives any clips, so WaitForFlush polls until ctx
	// is cancelled rather than its full 60s budget.
	job := models.PendingClip{CameraLocation: "back", RuleName: "Doorbell", StartTime: 0, StopTime: 10000}
	err := sender.Process(ctx, job, true)
	require.Error(t, err)
	require.Empty(t, deliverer.delivered)
}

func TestClipSenderProcessPropagatesDelivererError(t *testing.T) {
	ci := openTestClipIndex(t)
	require.NoError(t, ci.AddClip("a.mp4", "front", 0, 10000, "", "", models.NonCache, 640, 480))

	deliverer := &fakeDeliverer{err: context.DeadlineExceeded}
	sender := &ClipSender{
		Protocol:   models.ProtocolFTP,
		Clips:      ci,
		Toolkit:    videotoolkit.NewFakeToolkit(),
		Flush:      capture.NoopFlush,
		ScratchDir: t.TempDir(),
		Deliverer:  deliverer,
		Log:        zerolog.Nop(),
	}

	job := models.PendingClip{CameraLocation: "front", RuleName: "Doorbell", StartTime: 0, StopTime: 10000}
	err := sender.Process(context.Background(), job, true)
	require.Error(t, err)
}
