// Package push sends mobile push notifications through FCM's legacy HTTP
// endpoint. Invalid tokens reported by the provider are surfaced so the
// caller can prune them from the token registry.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultEndpoint is FCM's legacy HTTP send endpoint.
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// Client talks to FCM.
type Client struct {
	serverKey string
	endpoint  string
	client    *http.Client
}

// NewClient creates an FCM client. An empty endpoint uses DefaultEndpoint.
func NewClient(serverKey, endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		serverKey: serverKey,
		endpoint:  endpoint,
		client:    &http.Client{Timeout: timeout},
	}
}

// MulticastResult summarizes one multicast send. InvalidTokens holds tokens
// FCM reported as dead (NotRegistered / InvalidRegistration); the caller
// should remove them from the registry.
type MulticastResult struct {
	Success       int
	Failure       int
	InvalidTokens []string
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// SendMulticast delivers one notification to every token. A non-2xx response
// or transport failure returns an error; per-token failures are reported in
// the result instead.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) (*MulticastResult, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("fcm: no tokens supplied")
	}

	reqMap := map[string]interface{}{
		"registration_ids": tokens,
		"notification": map[string]string{
			"title": title,
			"body":  body,
		},
	}
	if len(data) > 0 {
		reqMap["data"] = data
	}

	payload, err := json.Marshal(reqMap)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fcm: received status %d", resp.StatusCode)
	}

	var fcmResp fcmResponse
	if err := json.NewDecoder(resp.Body).Decode(&fcmResp); err != nil {
		return nil, err
	}

	result := &MulticastResult{
		Success: fcmResp.Success,
		Failure: fcmResp.Failure,
	}
	for idx, res := range fcmResp.Results {
		if idx >= len(tokens) {
			break
		}
		switch res.Error {
		case "NotRegistered", "InvalidRegistration":
			result.InvalidTokens = append(result.InvalidTokens, tokens[idx])
		}
	}
	return result, nil
}
