package responders

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/httpclient"
	"github.com/nvrengine/core/models"
)

func TestSubstitutePlaceholders(t *testing.T) {
	out := Substitute("{SvRuleName} on {SvCameraName} at {SvEventTime}", "Doorbell", "front", 1700000000000)
	require.Equal(t, "Doorbell on front at 1700000000000", out)
}

func TestWebhookSendPostsSubstitutedBody(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 200}
	s := &WebhookSender{Client: fake, Log: zerolog.Nop()}

	err := s.Send(models.WebhookSettings{
		URI:         "https://example.test/hook",
		ContentType: "application/json",
		Content:     `{"rule":"{SvRuleName}"}`,
	}, "Doorbell", "front", 42)

	require.NoError(t, err)
	require.Len(t, fake.Calls, 1)
	require.Equal(t, `{"rule":"Doorbell"}`, string(fake.Calls[0].Body))
	require.Equal(t, "application/json", fake.Calls[0].Headers["Content-Type"])
}

func TestWebhookSendNonTwoXXIsHardFailureNoRetry(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 500}
	s := &WebhookSender{Client: fake, Log: zerolog.Nop()}

	err := s.Send(models.WebhookSettings{URI: "https://example.test/hook", Content: "x"}, "r", "c", 1)
	require.Error(t, err)
	require.Len(t, fake.Calls, 1)
}

func TestWebhookSendRequiresURI(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 200}
	s := &WebhookSender{Client: fake, Log: zerolog.Nop()}

	err := s.Send(models.WebhookSettings{}, "r", "c", 1)
	require.Error(t, err)
	require.Empty(t, fake.Calls)
}
