// Package slack is a minimal Slack Web API client covering what the bot
// needs: Block Kit messages, threaded replies, reactions, and operator DMs.
package slack

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/1000heads/curator/internal/logger"
	"github.com/1000heads/curator/internal/metrics"
)

const apiBaseURL = "https://slack.com/api"

// APIError is a Slack API-level failure (HTTP 200 with ok=false). Code is the
// machine-readable error string, Messages the response_metadata detail.
type APIError struct {
	Code     string
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("slack api error: %s", e.Code)
	}
	return fmt.Sprintf("slack api error: %s (%s)", e.Code, strings.Join(e.Messages, "; "))
}

// Text is a Block Kit text object (plain_text or mrkdwn).
type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Block is a Block Kit layout block. Only the fields used by the block's type
// are populated.
type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Fields   []Text `json:"fields,omitempty"`
	Elements []Text `json:"elements,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	AltText  string `json:"alt_text,omitempty"`
}

func Header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text}}
}

func Context(markdown string) Block {
	return Block{Type: "context", Elements: []Text{{Type: "mrkdwn", Text: markdown}}}
}

func Image(url, alt string) Block {
	return Block{Type: "image", ImageURL: url, AltText: alt}
}

func Section(markdown string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: markdown}}
}

func SectionFields(fields ...string) Block {
	b := Block{Type: "section"}
	for _, f := range fields {
		b.Fields = append(b.Fields, Text{Type: "mrkdwn", Text: f})
	}
	return b
}

func Divider() Block {
	return Block{Type: "divider"}
}

// Message is a chat.postMessage payload. Text doubles as the notification
// fallback when Blocks are present.
type Message struct {
	Channel     string  `json:"channel"`
	Text        string  `json:"text"`
	Blocks      []Block `json:"blocks,omitempty"`
	ThreadTS    string  `json:"thread_ts,omitempty"`
	UnfurlLinks bool    `json:"unfurl_links"`
	UnfurlMedia bool    `json:"unfurl_media"`
}

// PostResult identifies a delivered message.
type PostResult struct {
	Channel   string
	Timestamp string
}

type apiResponse struct {
	OK               bool   `json:"ok"`
	Error            string `json:"error"`
	Channel          string `json:"channel"`
	TS               string `json:"ts"`
	ResponseMetadata struct {
		Messages []string `json:"messages"`
	} `json:"response_metadata"`
}

type Client struct {
	http *resty.Client
}

func NewClient(token string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(apiBaseURL).
			SetAuthToken(token).
			SetTimeout(30 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(2 * time.Second),
	}
}

// newClientWithBaseURL exists for tests against an httptest server.
func newClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.http.SetBaseURL(baseURL)
	return c
}

func (c *Client) call(ctx context.Context, method string, body interface{}) (*apiResponse, error) {
	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/" + method)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode())
	}
	if !out.OK {
		return nil, fmt.Errorf("%s: %w", method, &APIError{Code: out.Error, Messages: out.ResponseMetadata.Messages})
	}
	return &out, nil
}

// PostMessage posts a message and returns its channel and timestamp.
func (c *Client) PostMessage(ctx context.Context, msg Message) (*PostResult, error) {
	out, err := c.call(ctx, "chat.postMessage", msg)
	if err != nil {
		return nil, err
	}
	return &PostResult{Channel: out.Channel, Timestamp: out.TS}, nil
}

// AddReaction attaches a named reaction to an existing message.
func (c *Client) AddReaction(ctx context.Context, channel, timestamp, name string) error {
	_, err := c.call(ctx, "reactions.add", map[string]string{
		"channel":   channel,
		"timestamp": timestamp,
		"name":      name,
	})
	return err
}

// Notify sends plain warning text to each recipient. Recipients are notified
// independently; a failure for one is logged and does not stop the rest.
func (c *Client) Notify(ctx context.Context, recipients []string, text string) {
	if len(recipients) == 0 {
		logger.Warn().Msg("no notification recipients configured")
		return
	}
	for _, userID := range recipients {
		_, err := c.PostMessage(ctx, Message{
			Channel: userID,
			Text:    ":warning: " + text,
		})
		if err != nil {
			logger.Error().Str("recipient", userID).Err(err).Msg("failed to send notification")
			continue
		}
		metrics.Global.IncrNotificationsSent()
		logger.Info().Str("recipient", userID).Msg("notification sent")
	}
}
