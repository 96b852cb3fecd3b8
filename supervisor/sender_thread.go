package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/responders"
	"github.com/nvrengine/core/responsedb"
)

// senderThread is the dedicated polling thread for one clip-transport
// protocol (FTP, local export): poll the response DB every 5s,
// and also wake immediately on a SendClip message.
type senderThread struct {
	protocol models.Protocol
	db       *responsedb.ResponseDB
	sender   *responders.ClipSender
	log      zerolog.Logger

	wake chan struct{}
	done chan struct{}

	delayUntilMs int64
}

const senderPollInterval = 5 * time.Second

func newSenderThread(protocol models.Protocol, db *responsedb.ResponseDB, sender *responders.ClipSender, log zerolog.Logger) *senderThread {
	return &senderThread{
		protocol: protocol,
		db:       db,
		sender:   sender,
		log:      log.With().Str("protocol", string(protocol)).Logger(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Wake nudges the thread to check for work immediately instead of
// waiting for the next 5s tick, per a SendClip message.
func (t *senderThread) Wake() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run drives the polling loop until shutdown is closed. Every sleep is
// a select against shutdown so it preempts immediately instead of
// finishing out a poll interval.
func (t *senderThread) Run(shutdown chan struct{}) {
	defer close(t.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-shutdown
		cancel()
	}()

	ticker := time.NewTicker(senderPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			t.drain(ctx, shutdown)
		case <-t.wake:
			t.drain(ctx, shutdown)
		}
	}
}

// WaitDone blocks until Run has returned.
func (t *senderThread) WaitDone() { <-t.done }

func (t *senderThread) drain(ctx context.Context, shutdown chan struct{}) {
	if time.Now().UnixMilli() < t.delayUntilMs {
		return
	}
	for {
		select {
		case <-shutdown:
			return
		default:
		}

		pending, err := t.db.AreResponsesPending(t.protocol)
		if err != nil || !pending {
			return
		}
		job, err := t.db.GetNextClipToSend(t.protocol)
		if err != nil || job == nil {
			return
		}

		firstAttempt := job.Attempt == 0
		if err := t.sender.Process(ctx, *job, firstAttempt); err != nil {
			t.log.Error().Err(err).Str("camera", job.CameraLocation).Str("rule", job.RuleName).Msg("clip send failed")
			t.delayUntilMs = time.Now().Add(60 * time.Second).UnixMilli()
			t.db.ClipDone(job.UID, false)
			return
		}
		t.db.ClipDone(job.UID, true)
	}
}
