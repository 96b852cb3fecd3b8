package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/clipindex"
	"github.com/nvrengine/core/gateway"
	"github.com/nvrengine/core/httpclient"
	"github.com/nvrengine/core/models"
	"github.com/nvrengine/core/responders"
	"github.com/nvrengine/core/responsedb"
)

func newTestSupervisor(t *testing.T, fake *httpclient.FakeClient) *Supervisor {
	t.Helper()

	clips, err := clipindex.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { clips.Close() })

	db, err := responsedb.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return New(zerolog.Nop(), Config{}, Deps{
		Clips: clips,
		DB:    db,
		Email: &responders.EmailSender{Log: zerolog.Nop()},
		Push: &responders.PushSender{
			Gateway: &gateway.PushGateway{Client: fake, Host: "gw.local"},
			DB:      db,
			Log:     zerolog.Nop(),
		},
		Webhook: &responders.WebhookSender{Client: fake, Log: zerolog.Nop()},
		Tagger:  &responders.RecordTagResponder{Clips: clips, Log: zerolog.Nop()},
	})
}

func TestHandleSendWebhookPostsOnce(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 200}
	s := newTestSupervisor(t, fake)

	s.handle(models.Message{
		Kind:    models.MsgSendWebhook,
		Rule:    "Doorbell",
		Camera:  "front",
		Ms:      1000,
		Webhook: models.WebhookSettings{URI: "https://example.test/hook", Content: "{SvRuleName}"},
	}, 0)

	require.Len(t, fake.Calls, 1)
	require.Equal(t, "Doorbell", string(fake.Calls[0].Body))
}

func TestHandleSendPushSchedulesRetryOnGatewayError(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 500}
	s := newTestSupervisor(t, fake)

	s.handle(models.Message{Kind: models.MsgSendPush, Rule: "Doorbell", Camera: "front", Ms: 1000}, 0)

	require.Equal(t, 1, s.retries.Len(), "a 500 from the gateway must land on the retry list")
	next, ok := s.retries.NextWake()
	require.True(t, ok)
	require.InDelta(t, time.Now().Add(2*time.Second).UnixMilli(), next, 500,
		"first retry follows the fixed schedule")
}

func TestHandleSendEmailDedupUsesEventTimeNotWallClock(t *testing.T) {
	s := newTestSupervisor(t, &httpclient.FakeClient{Status: 200})

	// The event's own timestamps put it within 2s of the object's first
	// appearance, so the dedup window suppresses the send no matter how
	// long the message sat waiting for dispatch.
	err := s.handleSendEmail(models.Message{
		Kind:    models.MsgSendEmail,
		Rule:    "Doorbell",
		Camera:  "front",
		ObjList: []int64{7},
		FirstMs: 1000,
		LastMs:  1500,
	}, 0)
	require.NoError(t, err)
	require.Zero(t, s.retries.Len(), "a suppressed email must not schedule a retry")
}

func TestHandleSettingsMessagesPublishSnapshots(t *testing.T) {
	s := newTestSupervisor(t, &httpclient.FakeClient{Status: 200})

	s.handle(models.Message{Kind: models.MsgSetFtpSettings, Ftp: models.FtpSettings{Host: "ftp.example", Port: 21}}, 0)
	s.handle(models.Message{Kind: models.MsgSetCamResolution, Camera: "front", W: 1920, H: 1080}, 0)
	s.handle(models.Message{Kind: models.MsgSetServicesAuthToken, Token: "tok"}, 0)

	got := s.CurrentSettings()
	require.Equal(t, "ftp.example", got.Ftp.Host)
	require.Equal(t, Resolution{Width: 1920, Height: 1080}, got.CamResolutions["front"])
	require.Equal(t, "tok", got.ServicesToken)
}

func TestHandleAddSavedTimesTagsClipIndex(t *testing.T) {
	s := newTestSupervisor(t, &httpclient.FakeClient{Status: 200})
	require.NoError(t, s.clips.AddClip("f1.mp4", "front", 0, 20000, "", "", models.Cache, 640, 480))

	s.handle(models.Message{
		Kind:   models.MsgAddSavedTimes,
		Camera: "front",
		Rule:   "Doorbell",
		Ranges: []models.Range{{StartMs: 5000, EndMs: 8000}},
	}, 0)

	ranges, err := s.clips.GetTimesFromLocation("front", 0, 20000, true)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
}

func TestRunExitsOnQuit(t *testing.T) {
	s := newTestSupervisor(t, &httpclient.FakeClient{Status: 200})

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Post(models.Message{Kind: models.MsgQuit})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not exit on Quit")
	}
}
