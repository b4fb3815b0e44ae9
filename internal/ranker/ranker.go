// Package ranker sends the candidate pool to an external language model and
// decodes its scored selection.
package ranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/1000heads/curator/internal/feed"
	"github.com/1000heads/curator/internal/logger"
)

// ErrNoSelections is returned when the model response cannot be parsed or
// contains no usable selection. This is terminal for the run.
var ErrNoSelections = errors.New("ranker returned no usable selections")

// Score decodes from either a JSON number or a quoted numeric string; models
// are inconsistent about which they emit.
type Score float64

func (s *Score) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = 0
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("score %q is not numeric: %w", raw, err)
		}
		*s = Score(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Score(v)
	return nil
}

// Selection is the model's chosen article with generated summary fields.
type Selection struct {
	feed.Article

	ImageCaption    string `json:"articleImageCaption,omitempty"`
	ImageCredit     string `json:"articleImageCredit,omitempty"`
	ImageLicense    string `json:"articleImageLicense,omitempty"`
	ImageLicenseURL string `json:"articleImageLicenseUrl,omitempty"`

	ScoreRelevance Score `json:"score_relevance"`
	ScoreImpact    Score `json:"score_impact"`
	ScoreSource    Score `json:"score_source"`
	ScoreRecency   Score `json:"score_recency"`
	ScoreAPAC      Score `json:"score_apac"`
	ScoreTotal     Score `json:"score_total"`

	KeyTakeaway              string   `json:"keyTakeaway"`
	Insights                 []string `json:"insights"`
	WhyItMatters             string   `json:"whyItMatters"`
	WhyItMattersFor1000heads string   `json:"whyItMattersFor1000heads"`
}

// Provider is one text-in/text-out completion backend.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Ranker struct {
	provider Provider
}

func New(provider Provider) *Ranker {
	return &Ranker{provider: provider}
}

// Rank serializes the candidates into the rubric prompt, runs one completion,
// and returns the validated selections. Selections missing a URL or title are
// dropped; an empty or unparsable response yields ErrNoSelections.
func (r *Ranker) Rank(ctx context.Context, articles []feed.Article) ([]Selection, error) {
	prompt, err := BuildPrompt(articles)
	if err != nil {
		return nil, fmt.Errorf("build ranking prompt: %w", err)
	}

	logger.Info().Int("candidates", len(articles)).Msg("requesting ranking from model")
	raw, err := r.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("ranking call failed: %w", err)
	}

	selections, err := parseSelections(raw)
	if err != nil {
		return nil, err
	}

	valid := selections[:0]
	for _, sel := range selections {
		if sel.URL == "" || sel.Title == "" {
			logger.Warn().Str("title", sel.Title).Msg("dropping selection without url or title")
			continue
		}
		valid = append(valid, sel)
	}
	if len(valid) == 0 {
		return nil, ErrNoSelections
	}
	return valid, nil
}

// wrapperKeys are the object keys models use when they wrap the array instead
// of returning it bare.
var wrapperKeys = []string{"articles", "selections", "results", "items", "data"}

// parseSelections decodes the raw model output. Accepted shapes: a bare JSON
// array, an object wrapping the array under a conventional key, or either of
// those inside a markdown code fence.
func parseSelections(raw string) ([]Selection, error) {
	text := stripCodeFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrNoSelections)
	}

	var selections []Selection
	if err := json.Unmarshal([]byte(text), &selections); err == nil {
		return selections, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return nil, fmt.Errorf("%w: response is not JSON", ErrNoSelections)
	}
	for _, key := range wrapperKeys {
		if rawList, ok := wrapper[key]; ok {
			if err := json.Unmarshal(rawList, &selections); err == nil {
				return selections, nil
			}
		}
	}
	// Last resort: any value that decodes as a selection array.
	for _, rawList := range wrapper {
		if err := json.Unmarshal(rawList, &selections); err == nil && len(selections) > 0 {
			return selections, nil
		}
	}
	return nil, fmt.Errorf("%w: no selection array in response", ErrNoSelections)
}

// stripCodeFence removes a surrounding ```json ... ``` fence if present.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
