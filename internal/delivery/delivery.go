// Package delivery turns a scored selection into a rich Slack message with
// reactions and a feedback thread.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/1000heads/curator/internal/logger"
	"github.com/1000heads/curator/internal/ranker"
	"github.com/1000heads/curator/internal/slack"
)

// Messenger is the transport surface the engine needs.
type Messenger interface {
	PostMessage(ctx context.Context, msg slack.Message) (*slack.PostResult, error)
	AddReaction(ctx context.Context, channel, timestamp, name string) error
}

// headerMaxRunes is Slack's plain_text header length limit.
const headerMaxRunes = 150

const feedbackPrompt = "Quick feedback please: react with :+1: if helpful, :no_entry: if off-brief, and :eyes: if worth a deeper look."

// Result identifies the delivered primary message.
type Result struct {
	Channel   string
	Timestamp string
}

type Engine struct {
	client    Messenger
	channelID string
	reactions []string
}

func New(client Messenger, channelID string, reactions []string) *Engine {
	return &Engine{client: client, channelID: channelID, reactions: reactions}
}

// Post delivers the selection. If the first attempt fails with an
// image-rejection signature, it retries once with the image block stripped;
// any other failure propagates. Reactions and the feedback thread are
// best-effort once the primary message is confirmed.
func (e *Engine) Post(ctx context.Context, sel ranker.Selection) (*Result, error) {
	withImage := includeImage(sel.ImageURL)
	msg := slack.Message{
		Channel: e.channelID,
		Text:    headerTitle(sel.Title),
		Blocks:  buildBlocks(sel, withImage),
	}

	res, err := e.client.PostMessage(ctx, msg)
	if err != nil && withImage && isImageRejection(err) {
		logger.Warn().Str("image_url", sel.ImageURL).Err(err).
			Msg("image block rejected, retrying without image")
		msg.Blocks = buildBlocks(sel, false)
		res, err = e.client.PostMessage(ctx, msg)
	}
	if err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	logger.Info().Str("channel", res.Channel).Str("ts", res.Timestamp).Msg("message posted")

	e.addReactions(ctx, res)
	e.postFeedbackThread(ctx, res)

	return &Result{Channel: res.Channel, Timestamp: res.Timestamp}, nil
}

// addReactions attaches the preset reactions concurrently; ordering is
// immaterial and each failure is isolated.
func (e *Engine) addReactions(ctx context.Context, res *slack.PostResult) {
	var wg sync.WaitGroup
	for _, name := range e.reactions {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := e.client.AddReaction(ctx, res.Channel, res.Timestamp, name); err != nil {
				logger.Warn().Str("reaction", name).Err(err).Msg("reaction add failed")
			}
		}(name)
	}
	wg.Wait()
}

func (e *Engine) postFeedbackThread(ctx context.Context, res *slack.PostResult) {
	_, err := e.client.PostMessage(ctx, slack.Message{
		Channel:  res.Channel,
		ThreadTS: res.Timestamp,
		Text:     feedbackPrompt,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("feedback thread post failed")
	}
}

func buildBlocks(sel ranker.Selection, withImage bool) []slack.Block {
	url := cleanField(sel.URL)

	byline := fmt.Sprintf("by *%s*", fallback(sel.Publisher, "Unknown"))
	if url != "" {
		byline += fmt.Sprintf(" | <%s|Read full article>", url)
	}

	blocks := []slack.Block{
		slack.Header(headerTitle(sel.Title)),
		slack.Context(byline),
	}

	if withImage {
		blocks = append(blocks, slack.Image(strings.TrimSpace(sel.ImageURL), "Article image"))
	}

	insights := "—"
	if len(sel.Insights) > 0 {
		lines := make([]string, len(sel.Insights))
		for i, insight := range sel.Insights {
			lines[i] = "• " + strings.TrimSpace(insight)
		}
		insights = strings.Join(lines, "\n")
	}

	blocks = append(blocks,
		slack.SectionFields(
			"*Key Takeaway:*\n"+fallback(strings.TrimSpace(sel.KeyTakeaway), "—"),
			"*Why it matters:*\n"+fallback(strings.TrimSpace(sel.WhyItMatters), "—"),
		),
		slack.Divider(),
		slack.Section("*Insights:*\n"+insights),
		slack.Divider(),
		slack.Section("*Why it matters for 1000heads:*\n"+fallback(strings.TrimSpace(sel.WhyItMattersFor1000heads), "—")),
		slack.Context("date published: "+publishDate(sel.PublishedDate)),
	)

	return blocks
}

// includeImage is the image inclusion policy: a present http(s) URL that is
// not a vector format Slack rejects.
func includeImage(imageURL string) bool {
	u := strings.TrimSpace(imageURL)
	if u == "" {
		return false
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return false
	}
	return !strings.HasSuffix(strings.ToLower(u), ".svg")
}

// isImageRejection reports whether the post failure signature points at the
// image block rather than the message as a whole.
func isImageRejection(err error) bool {
	var apiErr *slack.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "invalid_image", "image_download_failed":
		return true
	case "invalid_blocks", "invalid_blocks_format":
		for _, msg := range apiErr.Messages {
			if strings.Contains(strings.ToLower(msg), "image") {
				return true
			}
		}
	}
	return false
}

func headerTitle(title string) string {
	t := cleanField(title)
	if t == "" {
		t = "Untitled"
	}
	runes := []rune(t)
	if len(runes) > headerMaxRunes {
		t = string(runes[:headerMaxRunes])
	}
	return t
}

// publishDate renders Slack's localized date markup with the raw date as
// fallback, or an em-dash when the date is absent or unparsable.
func publishDate(published string) string {
	if published == "" {
		return "—"
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, published); err == nil {
			return fmt.Sprintf("<!date^%d^{date_short} {time}|%s>", t.Unix(), published)
		}
	}
	return "—"
}

func cleanField(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "​", ""))
}

func fallback(s, alt string) string {
	if s == "" {
		return alt
	}
	return s
}
