package responders

import (
	"github.com/rs/zerolog"

	"github.com/nvrengine/core/gateway"
)

// IFTTTSender implements the "ifttt" response protocol. It shares the
// same fixed retry schedule as push.
type IFTTTSender struct {
	Gateway *gateway.IFTTTGateway
	Log     zerolog.Logger
}

// Send triggers the webhook once. attempt is 0-based into
// PushRetrySchedule, shared with push.
func (s *IFTTTSender) Send(camera, rule string, epochSec int64, attempt int) (PushResult, error) {
	outcome, err := s.Gateway.Trigger(camera, rule, epochSec)
	switch outcome {
	case gateway.OutcomeAccepted:
		return PushResult{Sent: true}, nil
	case gateway.OutcomeRetry:
		if attempt >= len(PushRetrySchedule) {
			s.Log.Error().Str("camera", camera).Str("rule", rule).Int("attempts", attempt).Msg("ifttt trigger retries exhausted, giving up")
			return PushResult{Sent: false}, err
		}
		return PushResult{Sent: false, RetryIn: PushRetrySchedule[attempt]}, err
	default:
		s.Log.Error().Err(err).Str("camera", camera).Str("rule", rule).Msg("ifttt trigger rejected")
		return PushResult{Sent: false}, err
	}
}
