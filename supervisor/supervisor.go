package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/nvrengine/core/capture"
	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/objectindex"
	"github.com/nvrengine/core/rangeutil"
	"github.com/nvrengine/core/responders"
	"github.com/nvrengine/core/responsedb"
)

// Config tunes pool caps, liveness cadence, and sweep schedules.
type Config struct {
	MaxInFlightSlow     int
	LivenessSec         int
	PushPurgeMaxAgeDays int
	PushPurgeMaxRows    int
}

// Supervisor is the engine's message loop and worker-pool owner.
type Supervisor struct {
	log zerolog.Logger
	cfg Config

	inbound chan models.Message
	retries *retryList
	pools   map[models.MessageKind]*kindPool
	settings *settingsBox

	clips   *clipindex.ClipIndex
	objects *objectindex.ObjectIndex
	db      *responsedb.ResponseDB
	flush   capture.FlushFunc

	email   *responders.EmailSender
	pushMu  sync.Mutex
	push    *responders.PushSender
	ifttt   *responders.IFTTTSender
	webhook *responders.WebhookSender
	tagger  *responders.RecordTagResponder

	ftpThread   *senderThread
	localThread *senderThread

	wg       sync.WaitGroup
	shutdown chan struct{}

	lastLivenessMs int64
	livenessMu     sync.Mutex

	cron *cron.Cron
}

// Deps bundles every collaborator the supervisor dispatches to.
type Deps struct {
	Clips   *clipindex.ClipIndex
	Objects *objectindex.ObjectIndex
	DB      *responsedb.ResponseDB
	Flush   capture.FlushFunc

	Email   *responders.EmailSender
	Push    *responders.PushSender
	IFTTT   *responders.IFTTTSender
	Webhook *responders.WebhookSender
	Tagger  *responders.RecordTagResponder

	FTPSender   *responders.ClipSender
	LocalSender *responders.ClipSender
}

// New builds a Supervisor with a bounded inbound queue (messages are
// expected to arrive faster than the channel drains only under
// pathological load; the queue depth is generous but finite so a
// wedged handler eventually produces backpressure rather than an
// unbounded goroutine leak upstream).
func New(log zerolog.Logger, cfg Config, deps Deps) *Supervisor {
	if cfg.MaxInFlightSlow <= 0 {
		cfg.MaxInFlightSlow = 32
	}
	if cfg.LivenessSec <= 0 {
		cfg.LivenessSec = 120
	}

	pools := map[models.MessageKind]*kindPool{}
	for kind, size := range defaultPoolSizes() {
		if size > cfg.MaxInFlightSlow {
			size = cfg.MaxInFlightSlow
		}
		pools[kind] = newKindPool(size)
	}

	s := &Supervisor{
		log:      log,
		cfg:      cfg,
		inbound:  make(chan models.Message, 1024),
		retries:  newRetryList(),
		pools:    pools,
		settings: newSettingsBox(),
		clips:    deps.Clips,
		objects:  deps.Objects,
		db:       deps.DB,
		flush:    deps.Flush,
		email:    deps.Email,
		push:     deps.Push,
		ifttt:    deps.IFTTT,
		webhook:  deps.Webhook,
		tagger:   deps.Tagger,
		shutdown: make(chan struct{}),
	}

	if deps.FTPSender != nil {
		s.ftpThread = newSenderThread(models.ProtocolFTP, deps.DB, deps.FTPSender, log)
	}
	if deps.LocalSender != nil {
		s.localThread = newSenderThread(models.ProtocolLocalExport, deps.DB, deps.LocalSender, log)
	}

	return s
}

// Post enqueues an inbound message.
// It blocks while the queue is full: a full queue means the process is
// falling behind, and the wait is the caller's backpressure.
func (s *Supervisor) Post(msg models.Message) {
	s.inbound <- msg
}

// Run drives the main loop until Quit is posted or ctx is cancelled.
// It wakes on: an inbound message, the earliest due retry, and the
// liveness tick.
func (s *Supervisor) Run(ctx context.Context) {
	s.startSenderThreads()
	s.startCron()
	defer s.stopCron()

	liveness := time.NewTicker(time.Duration(s.cfg.LivenessSec) * time.Second)
	defer liveness.Stop()

	wake := time.NewTimer(time.Hour)
	defer wake.Stop()
	s.rearmWake(wake)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.inbound:
			if msg.Kind == models.MsgQuit {
				return
			}
			s.dispatch(msg, 0)
			s.rearmWake(wake)
		case <-wake.C:
			s.drainReadyRetries()
			s.rearmWake(wake)
		case <-liveness.C:
			s.ping()
		}
	}
}

func (s *Supervisor) rearmWake(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	next, ok := s.retries.NextWake()
	if !ok {
		t.Reset(time.Hour)
		return
	}
	d := time.Until(time.UnixMilli(next))
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func (s *Supervisor) drainReadyRetries() {
	for _, e := range s.retries.DrainReady(time.Now().UnixMilli()) {
		s.dispatch(e.Msg, e.Attempt)
	}
}

func (s *Supervisor) ping() {
	s.livenessMu.Lock()
	s.lastLivenessMs = time.Now().UnixMilli()
	s.livenessMu.Unlock()
	s.log.Debug().Msg("liveness ping")
}

// CurrentSettings returns the latest published settings snapshot.
// Deliverers read this at send time so Set* messages take effect
// without restarting the sender threads.
func (s *Supervisor) CurrentSettings() *Settings {
	return s.settings.Get()
}

// UpdateSettings publishes a new settings snapshot. Used at startup to
// seed config-file values before any Set* message arrives.
func (s *Supervisor) UpdateSettings(mutate func(*Settings)) {
	s.settings.Update(mutate)
}

// SenderProtocols lists the clip-transport protocols that have a
// dedicated sender thread configured, for the health endpoint.
func (s *Supervisor) SenderProtocols() []models.Protocol {
	var out []models.Protocol
	if s.ftpThread != nil {
		out = append(out, models.ProtocolFTP)
	}
	if s.localThread != nil {
		out = append(out, models.ProtocolLocalExport)
	}
	return out
}

// LastLivenessMs reports the last liveness tick, for the health
// endpoint.
func (s *Supervisor) LastLivenessMs() int64 {
	s.livenessMu.Lock()
	defer s.livenessMu.Unlock()
	return s.lastLivenessMs
}

// dispatch routes msg to its handler, honoring the per-kind pool cap.
// On saturation (no slot freed within the poll budget) the message is
// deferred onto the short retry list instead of blocking the
// supervisor thread.
func (s *Supervisor) dispatch(msg models.Message, attempt int) {
	pool := s.pools[msg.Kind]
	if pool == nil || pool.max == 0 {
		s.handle(msg, attempt)
		return
	}
	if !pool.tryAcquire() {
		s.retries.Schedule(retryEntry{RetryAtMs: time.Now().Add(poolSaturationBudget).UnixMilli(), Attempt: attempt, Msg: msg})
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer pool.release()
		s.handle(msg, attempt)
	}()
}

func (s *Supervisor) handle(msg models.Message, attempt int) {
	start := time.Now()
	var err error
	switch msg.Kind {
	case models.MsgSendEmail:
		err = s.handleSendEmail(msg, attempt)
	case models.MsgSendPush:
		err = s.handleSendPush(msg, attempt)
	case models.MsgTriggerIFTTT:
		err = s.handleTriggerIFTTT(msg, attempt)
	case models.MsgSendWebhook:
		err = s.handleSendWebhook(msg)
	case models.MsgSendClip:
		s.wakeSenderThreads()
	case models.MsgSetCamResolution:
		s.settings.Update(func(st *Settings) { st.CamResolutions[msg.Camera] = Resolution{Width: msg.W, Height: msg.H} })
	case models.MsgSetFtpSettings:
		s.settings.Update(func(st *Settings) { st.Ftp = msg.Ftp })
	case models.MsgSetLocalExportSettings:
		s.settings.Update(func(st *Settings) { st.LocalExport = msg.LocalExport })
	case models.MsgSetNotificationSettings:
		s.settings.Update(func(st *Settings) { st.Notification = msg.Notification })
		s.applyNotificationSettings(msg.Notification)
	case models.MsgSetServicesAuthToken:
		s.settings.Update(func(st *Settings) { st.ServicesToken = msg.Token })
		s.applyServicesAuthToken(msg.Token)
	case models.MsgSetDebugConfig:
		s.settings.Update(func(st *Settings) { st.Debug = msg.Debug })
	case models.MsgFlushVideo:
		if s.flush != nil {
			_, _, err = s.flush(msg.Camera)
		}
	case models.MsgAddSavedTimes:
		err = s.handleAddSavedTimes(msg)
	default:
		s.log.Warn().Stringer("kind", msg.Kind).Msg("ignoring unrecognized message")
	}

	if err != nil {
		s.log.Error().Err(err).Stringer("kind", msg.Kind).Str("rule", msg.Rule).Str("camera", msg.Camera).
			Dur("elapsed", time.Since(start)).Msg(fmt.Sprintf("%s for %s in %s failed", msg.Kind, msg.Rule, msg.Camera))
		return
	}
	elapsedMs := time.Since(start).Milliseconds()
	s.log.Info().Stringer("kind", msg.Kind).Str("rule", msg.Rule).Str("camera", msg.Camera).Int("attempt", attempt).
		Int64("elapsedMs", elapsedMs).
		Msg(fmt.Sprintf("%s for %s in %s has completed successfully in %sms", msg.Kind, msg.Rule, msg.Camera, humanize.Comma(elapsedMs)))
}

func (s *Supervisor) handleSendEmail(msg models.Message, attempt int) error {
	previewMs := (msg.FirstMs + msg.LastMs) / 2
	// Dedup windows are measured in event time: LastMs is the capture
	// pipeline's most recently processed timestamp for this hit, which
	// trails wall clock whenever dispatch is delayed or batched.
	eventMs := msg.LastMs

	notifyAny := false
	for _, obj := range msg.ObjList {
		if s.email.ShouldNotify(msg.Camera, msg.Rule, obj, msg.FirstMs, msg.LastMs, eventMs) {
			notifyAny = true
		}
	}
	if !notifyAny {
		return nil
	}

	clipPath := ""
	if s.clips != nil {
		clip, err := s.clips.GetFileAt(msg.Camera, previewMs, nil, clipindex.DirectionAny)
		if err == nil && clip != nil {
			clipPath = clip.Filename
		}
	}

	body := fmt.Sprintf("%s detected on %s (%s trigger%s)", msg.Rule, msg.Camera,
		humanize.Comma(int64(msg.NumTriggers)), plural(msg.NumTriggers))

	err := s.email.Send(msg.Camera, msg.Rule, struct {
		ToAddrs []string
		Subject string
	}{msg.Email.ToAddrs, msg.Email.Subject}, clipPath, previewMs, time.Now().UnixMilli(), body)
	if err == nil {
		return nil
	}
	if attempt < 3 {
		s.retries.Schedule(retryEntry{RetryAtMs: time.Now().Add(120 * time.Second).UnixMilli(), Attempt: attempt + 1, Msg: msg})
		return nil
	}
	return fmt.Errorf("email send exhausted retries: %w", err)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func (s *Supervisor) handleSendPush(msg models.Message, attempt int) error {
	nowMs := time.Now().UnixMilli()
	result, err := s.push.Send(msg.Camera, msg.Rule, msg.Ms, attempt, nowMs)
	if result.Sent {
		return nil
	}
	if result.RetryIn > 0 {
		s.retries.Schedule(retryEntry{RetryAtMs: time.Now().Add(time.Duration(result.RetryIn) * time.Second).UnixMilli(), Attempt: attempt + 1, Msg: msg})
		return nil
	}
	return err
}

func (s *Supervisor) handleTriggerIFTTT(msg models.Message, attempt int) error {
	result, err := s.ifttt.Send(msg.Camera, msg.Rule, msg.Ms/1000, attempt)
	if result.Sent {
		return nil
	}
	if result.RetryIn > 0 {
		s.retries.Schedule(retryEntry{RetryAtMs: time.Now().Add(time.Duration(result.RetryIn) * time.Second).UnixMilli(), Attempt: attempt + 1, Msg: msg})
		return nil
	}
	return err
}

func (s *Supervisor) handleSendWebhook(msg models.Message) error {
	return s.webhook.Send(msg.Webhook, msg.Rule, msg.Camera, msg.Ms)
}

func (s *Supervisor) handleAddSavedTimes(msg models.Message) error {
	if s.tagger != nil {
		ranges := make([]rangeutil.Range, 0, len(msg.Ranges))
		for _, r := range msg.Ranges {
			ranges = append(ranges, rangeutil.Range{Start: r.StartMs, End: r.EndMs})
		}
		return s.tagger.Tag(msg.Camera, msg.Rule, ranges, time.Now().UnixMilli())
	}
	return nil
}

func (s *Supervisor) applyNotificationSettings(n models.NotificationSettings) {
	if s.push == nil || s.push.Gateway == nil {
		return
	}
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	s.push.Gateway.GUID = n.GatewayGUID
	s.push.Gateway.Password = n.GatewayPassword
}

func (s *Supervisor) applyServicesAuthToken(token string) {
	if s.ifttt == nil || s.ifttt.Gateway == nil {
		return
	}
	s.pushMu.Lock()
	defer s.pushMu.Unlock()
	s.ifttt.Gateway.AuthToken = token
}

func (s *Supervisor) startSenderThreads() {
	if s.ftpThread != nil {
		s.wg.Add(1)
		go func() { defer s.wg.Done(); s.ftpThread.Run(s.shutdown) }()
	}
	if s.localThread != nil {
		s.wg.Add(1)
		go func() { defer s.wg.Done(); s.localThread.Run(s.shutdown) }()
	}
}

func (s *Supervisor) wakeSenderThreads() {
	if s.ftpThread != nil {
		s.ftpThread.Wake()
	}
	if s.localThread != nil {
		s.localThread.Wake()
	}
}

func (s *Supervisor) startCron() {
	s.cron = cron.New()
	if s.objects != nil {
		s.cron.AddFunc("@every 15m", func() {
			n, err := s.objects.TidyObjectTable(time.Now().UnixMilli())
			if err != nil {
				s.log.Error().Err(err).Msg("object index tidy sweep failed")
				return
			}
			if n > 0 {
				s.log.Info().Int("deleted", n).Msg("object index orphan sweep")
			}
		})
	}
	if s.push != nil {
		maxAgeDays := s.cfg.PushPurgeMaxAgeDays
		if maxAgeDays <= 0 {
			maxAgeDays = 10
		}
		maxRows := s.cfg.PushPurgeMaxRows
		if maxRows <= 0 {
			maxRows = 10000
		}
		s.cron.AddFunc("@hourly", func() {
			if _, err := s.push.PurgeOldNotifications(maxAgeDays, maxRows, time.Now().UnixMilli()); err != nil {
				s.log.Error().Err(err).Msg("push notification purge sweep failed")
			}
		})
	}
	s.cron.Start()
}

func (s *Supervisor) stopCron() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Shutdown signals the sender threads,
// join each briefly, permanently lock the response DB so a lingering
// sender cannot corrupt it, then wait indefinitely for the worker
// pool, logging progress every 30s.
func (s *Supervisor) Shutdown() {
	close(s.shutdown)

	joined := make(chan struct{})
	go func() {
		if s.ftpThread != nil {
			s.ftpThread.WaitDone()
		}
		if s.localThread != nil {
			s.localThread.WaitDone()
		}
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(1 * time.Second):
	}

	if s.db != nil {
		s.db.LockForever()
	}

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.log.Info().Msg("shutdown still waiting on in-flight worker threads")
		}
	}
}
