package responders

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nvrengine/core/gateway"
	"github.com/nvrengine/core/responsedb"
)

// PushRetrySchedule is the fixed backoff for push/IFTTT sends:
// attempts land at T+0, T+2s, T+6s, T+26s and T+116s (delays of 2s,
// 4s, 20s and 90s); a failure of the fifth attempt gives up.
var PushRetrySchedule = []int{2, 4, 20, 90}

// PushSender implements the "push" response protocol: store-then-POST
// to the gateway. At-most-once-per-hit holds because streaming
// emission is strictly monotonic per camera+rule, so every inbound
// SendPush is a distinct hit.
type PushSender struct {
	Gateway       *gateway.PushGateway
	DB            *responsedb.ResponseDB
	VersionString string
	Log           zerolog.Logger
}

// PushResult reports the outcome of one Send attempt for the
// supervisor's retry-list bookkeeping.
type PushResult struct {
	Sent    bool
	RetryIn int // seconds, 0 if no retry should be scheduled
}

// Send stores the notification on the first attempt (attempt 0) (so
// the mobile client can fetch it by uid if the inline payload is too
// large for the gateway) and attempts delivery once on every call.
// attempt is 0-based into PushRetrySchedule.
func (p *PushSender) Send(camera, rule string, ms int64, attempt int, nowMs int64) (PushResult, error) {
	data := map[string]string{
		"camLoc":   camera,
		"ruleName": rule,
		"ms":       fmt.Sprintf("%d", ms),
	}
	content := fmt.Sprintf("%s detected on %s", rule, camera)
	uid := uuid.NewString()

	jsonPayload, err := json.Marshal(data)
	if err != nil {
		return PushResult{}, fmt.Errorf("encoding push payload: %w", err)
	}

	if attempt == 0 {
		if err := p.DB.AddPushNotification(uid, content, string(jsonPayload), nowMs); err != nil {
			p.Log.Warn().Err(err).Msg("failed to persist push notification, sending anyway")
		}
	}

	outcome, err := p.Gateway.SendPush(content, data, p.VersionString)
	switch outcome {
	case gateway.OutcomeAccepted:
		return PushResult{Sent: true}, nil
	case gateway.OutcomeRetry:
		if attempt >= len(PushRetrySchedule) {
			p.Log.Error().Str("camera", camera).Str("rule", rule).Int("attempts", attempt).Msg("push gateway retries exhausted, giving up")
			return PushResult{Sent: false}, err
		}
		return PushResult{Sent: false, RetryIn: PushRetrySchedule[attempt]}, err
	default:
		p.Log.Error().Err(err).Str("camera", camera).Str("rule", rule).Msg("push gateway rejected notification")
		return PushResult{Sent: false}, err
	}
}

// PurgeOldNotifications runs the hourly sweep:
// records older than maxAgeDays are deleted, up to maxRows per call.
func (p *PushSender) PurgeOldNotifications(maxAgeDays, maxRows int, nowMs int64) (int64, error) {
	n, err := p.DB.PurgePushNotifications(maxAgeDays*24*3600, maxRows, nowMs)
	if err != nil {
		return 0, fmt.Errorf("purging push notifications: %w", err)
	}
	if n > 0 {
		p.Log.Info().Int64("purged", n).Msg("purged aged push notifications")
	}
	return n, nil
}
