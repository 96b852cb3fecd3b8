package responders

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nvrengine/core/httpclient"
	"github.com/nvrengine/core/models"
)

// WebhookSender implements the "webhook" response protocol: a single
// best-effort POST of user-supplied content with user-supplied
// content-type. Webhooks never retry.
type WebhookSender struct {
	Client httpclient.Client
	Log    zerolog.Logger
}

// Substitute replaces the three recognized placeholders in content:
// {SvRuleName}, {SvCameraName}, {SvEventTime}.
func Substitute(content, rule, camera string, eventMs int64) string {
	r := strings.NewReplacer(
		"{SvRuleName}", rule,
		"{SvCameraName}", camera,
		"{SvEventTime}", strconv.FormatInt(eventMs, 10),
	)
	return r.Replace(content)
}

// Send posts the substituted content. No retry is attempted; any
// non-2xx response is a hard failure.
func (s *WebhookSender) Send(settings models.WebhookSettings, rule, camera string, eventMs int64) error {
	if settings.URI == "" {
		return fmt.Errorf("webhook: no uri configured for rule %s", rule)
	}
	body := Substitute(settings.Content, rule, camera, eventMs)
	contentType := settings.ContentType
	if contentType == "" {
		contentType = "application/json"
	}

	status, _, _, err := s.Client.Post(settings.URI, []byte(body), map[string]string{"Content-Type": contentType})
	if err != nil {
		s.Log.Error().Err(err).Str("rule", rule).Str("uri", settings.URI).Msg("webhook send failed")
		return err
	}
	if status < 200 || status >= 300 {
		s.Log.Error().Int("status", status).Str("rule", rule).Str("uri", settings.URI).Msg("webhook returned non-2xx, not retrying")
		return fmt.Errorf("webhook returned status %d", status)
	}
	return nil
}
