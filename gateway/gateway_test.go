package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/httpclient"
)

func TestSendPushOutcomes(t *testing.T) {
	cases := []struct {
		status  int
		outcome Outcome
	}{
		{200, OutcomeAccepted},
		{500, OutcomeRetry},
		{403, OutcomeFailed},
	}

	for _, tc := range cases {
		fake := &httpclient.FakeClient{Status: tc.status}
		g := &PushGateway{Client: fake, Host: "gw.local", GUID: "guid", Password: "pw"}

		outcome, _ := g.SendPush("hello", map[string]string{"camLoc": "front"}, "1.0")
		require.Equal(t, tc.outcome, outcome)
		require.Len(t, fake.Calls, 1)
	}
}

func TestIFTTTTriggerSetsBearerToken(t *testing.T) {
	fake := &httpclient.FakeClient{Status: 200}
	g := &IFTTTGateway{Client: fake, BaseURL: "https://ifttt.example/x", AuthToken: "tok"}

	outcome, err := g.Trigger("front", "rule1", 123)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, outcome)
	require.Equal(t, "tok", fake.Calls[0].Headers["X-Machine-Token"])
	require.Equal(t, "https://ifttt.example/x/trigger", fake.Calls[0].URL)
}
