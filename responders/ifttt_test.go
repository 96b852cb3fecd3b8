package responders

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/gateway"
	"github.com/nvrengine/core/httpclient"
)

func TestIFTTTSendAccepted(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 200}
	s := &IFTTTSender{Gateway: &gateway.IFTTTGateway{Client: fake, BaseURL: "https://ifttt.example", AuthToken: "tok"}, Log: zerolog.Nop()}

	result, err := s.Send("front", "Doorbell", 123, 0)
	require.NoError(t, err)
	require.True(t, result.Sent)
}

func TestIFTTTSendRetrySchedule(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 500}
	s := &IFTTTSender{Gateway: &gateway.IFTTTGateway{Client: fake, BaseURL: "https://ifttt.example", AuthToken: "tok"}, Log: zerolog.Nop()}

	result, err := s.Send("front", "Doorbell", 123, 0)
	require.Error(t, err)
	require.False(t, result.Sent)
	require.Equal(t, PushRetrySchedule[0], result.RetryIn)
}

func TestIFTTTSendExhaustedRetries(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 500}
	s := &IFTTTSender{Gateway: &gateway.IFTTTGateway{Client: fake, BaseURL: "https://ifttt.example", AuthToken: "tok"}, Log: zerolog.Nop()}

	result, err := s.Send("front", "Doorbell", 123, len(PushRetrySchedule))
	require.Error(t, err)
	require.False(t, result.Sent)
	require.Zero(t, result.RetryIn)
}
