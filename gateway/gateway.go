// Package gateway wraps the two outbound services the response
// pipeline talks to: the push-notification gateway and an IFTTT-like
// webhook trigger. Both are backed by httpclient.Client.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nvrengine/core/httpclient"
)

// Outcome classifies a send attempt so callers can decide whether to
// retry.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeRetry
	OutcomeFailed
)

// PushGateway sends push notifications via the self-hosted push
// gateway over HTTPS with a known self-signed certificate.
type PushGateway struct {
	Client   httpclient.Client
	Host     string
	GUID     string
	Password string
}

// SendPush posts a createMessage request: 200 accepted,
// 500 retry, anything else is a hard failure.
func (g *PushGateway) SendPush(content string, data map[string]string, versionString string) (Outcome, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("encoding push data: %w", err)
	}

	form := url.Values{}
	form.Set("action", "createMessage")
	form.Set("iosBadges", "+1")
	form.Set("content", content)
	form.Set("data", string(payload))
	form.Set("guid", g.GUID)
	form.Set("password", g.Password)
	form.Set("svversionstring", versionString)

	status, _, _, err := g.Client.Post(
		fmt.Sprintf("https://%s/api/v1/messages", g.Host),
		[]byte(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	)
	if err != nil {
		return OutcomeRetry, err
	}

	switch {
	case status == 200:
		return OutcomeAccepted, nil
	case status == 500:
		return OutcomeRetry, fmt.Errorf("push gateway returned 500")
	default:
		return OutcomeFailed, fmt.Errorf("push gateway returned %d", status)
	}
}

// IFTTTGateway triggers an IFTTT-like webhook.
type IFTTTGateway struct {
	Client    httpclient.Client
	BaseURL   string
	AuthToken string
}

// Trigger posts {camera, rule, time} with the services auth token as a
// bearer in X-Machine-Token.
func (g *IFTTTGateway) Trigger(camera, rule string, epochSec int64) (Outcome, error) {
	body, err := json.Marshal(map[string]any{"camera": camera, "rule": rule, "time": epochSec})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("encoding ifttt body: %w", err)
	}

	status, _, _, err := g.Client.Post(
		strings.TrimRight(g.BaseURL, "/")+"/trigger",
		body,
		map[string]string{"Content-Type": "application/json", "X-Machine-Token": g.AuthToken},
	)
	if err != nil {
		return OutcomeRetry, err
	}

	switch {
	case status >= 200 && status < 300:
		return OutcomeAccepted, nil
	case status == 500:
		return OutcomeRetry, fmt.Errorf("ifttt trigger returned 500")
	default:
		return OutcomeFailed, fmt.Errorf("ifttt trigger returned %d", status)
	}
}
