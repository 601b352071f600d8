package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ChannelLine is the LINE push-message channel name.
const ChannelLine = "line"

const defaultLinePushEndpoint = "https://api.line.me/v2/bot/message/push"

// LineChannel delivers messages as LINE push messages through the Messaging
// API. Building administrators who linked an account get their availability
// checks as chat messages alongside e-mail.
type LineChannel struct {
	channelToken string
	endpoint     string
	client       *http.Client
}

// NewLineChannel constructs the channel with the given channel access token.
func NewLineChannel(channelToken, endpoint string) *LineChannel {
	if endpoint == "" {
		endpoint = defaultLinePushEndpoint
	}
	return &LineChannel{
		channelToken: channelToken,
		endpoint:     endpoint,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Name identifies the channel.
func (c *LineChannel) Name() string { return ChannelLine }

type linePushRequest struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Send pushes one text message to the recipient's LINE account.
func (c *LineChannel) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(linePushRequest{
		To:       msg.LineUserID,
		Messages: []lineMessage{{Type: "text", Text: fmt.Sprintf("%s\n%s", msg.Subject, msg.Body)}},
	})
	if err != nil {
		return fmt.Errorf("encode line push: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build line push: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send line push: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("line push rejected: status %d", resp.StatusCode)
	}
	return nil
}
