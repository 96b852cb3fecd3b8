// Package httpclient is the thin external-collaborator interface used
// by the push gateway and IFTTT-like senders: a single synchronous
// POST with configurable timeout and optional TLS verification.
package httpclient

import (
	"bytes"
	"crypto/tls"
	"io"
	"net/http"
	"time"
)

// Client posts a request body with headers and returns the response
// status, body, and headers.
type Client interface {
	Post(url string, body []byte, headers map[string]string) (status int, respBody []byte, respHeaders http.Header, err error)
}

// HTTPClient is the concrete net/http-backed Client.
type HTTPClient struct {
	client *http.Client
}

// New builds an HTTPClient with the given timeout. skipTLSVerify
// should only be set for known self-signed endpoints (the local push
// gateway, typically).
func New(timeout time.Duration, skipTLSVerify bool) *HTTPClient {
	transport := &http.Transport{}
	if skipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout, Transport: transport}}
}

func (h *HTTPClient) Post(url string, body []byte, headers map[string]string) (int, []byte, http.Header, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, resp.Header, err
	}
	return resp.StatusCode, respBody, resp.Header, nil
}
