// Package app sequences one curation run: load ledger, ingest, dedupe, rank,
// deliver, record.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/1000heads/curator/internal/config"
	"github.com/1000heads/curator/internal/delivery"
	"github.com/1000heads/curator/internal/feed"
	"github.com/1000heads/curator/internal/ledger"
	"github.com/1000heads/curator/internal/logger"
	"github.com/1000heads/curator/internal/metrics"
	"github.com/1000heads/curator/internal/ranker"
	"github.com/1000heads/curator/internal/urlutil"
)

// Ledger is the duplicate-suppression store. A nil Ledger disables dedupe.
type Ledger interface {
	Load(ctx context.Context) (map[string]struct{}, error)
	Append(ctx context.Context, records []ledger.PostedRecord) error
}

type Ingestor interface {
	Fetch(ctx context.Context, sources []string, maxArticles int) []feed.Article
}

type Ranker interface {
	Rank(ctx context.Context, articles []feed.Article) ([]ranker.Selection, error)
}

type Deliverer interface {
	Post(ctx context.Context, sel ranker.Selection) (*delivery.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, recipients []string, text string)
}

type App struct {
	cfg       *config.Config
	sources   []string
	ledger    Ledger
	ingestor  Ingestor
	ranker    Ranker
	deliverer Deliverer
	notifier  Notifier

	// test seams
	pause func(ctx context.Context, d time.Duration)
	now   func() time.Time
}

func New(cfg *config.Config, sources []string, led Ledger, ing Ingestor, rnk Ranker, del Deliverer, not Notifier) *App {
	return &App{
		cfg:       cfg,
		sources:   sources,
		ledger:    led,
		ingestor:  ing,
		ranker:    rnk,
		deliverer: del,
		notifier:  not,
		pause:     pause,
		now:       time.Now,
	}
}

// Run executes one curation cycle. Every unrecoverable error funnels through
// here: it is logged, reported to the notification recipients, and returned
// so the process can exit non-zero.
func (a *App) Run(ctx context.Context) error {
	start := a.now()
	if err := a.run(ctx); err != nil {
		logger.Error().Err(err).Msg("run failed")
		metrics.Global.SetError(err.Error())
		a.notifier.Notify(ctx, a.cfg.ErrorRecipients, fmt.Sprintf("Curator run failed: %v", err))
		return err
	}
	metrics.Global.SetLastRun(a.now().Sub(start))
	return nil
}

func (a *App) run(ctx context.Context) error {
	known := a.loadKnown(ctx)

	articles := a.ingestor.Fetch(ctx, a.sources, a.cfg.MaxArticles)
	logger.Info().Int("collected", len(articles)).Msg("ingestion finished")

	fresh := a.dedupe(articles, known)
	if len(fresh) == 0 {
		logger.Info().Msg("no new articles after dedupe, nothing to post")
		return nil
	}

	selections, err := a.ranker.Rank(ctx, fresh)
	if err != nil {
		if errors.Is(err, ranker.ErrNoSelections) {
			// Terminal but clean: posting anything would be meaningless.
			logger.Warn().Err(err).Msg("ranking yielded no usable selections")
			a.notifier.Notify(ctx, a.cfg.ErrorRecipients,
				fmt.Sprintf("Curator run finished without posting: %v", err))
			return nil
		}
		return err
	}

	posted := 0
	for i, sel := range selections {
		key := urlutil.Normalize(sel.URL)
		if key != "" {
			if _, dup := known[key]; dup {
				logger.Info().Str("title", sel.Title).Msg("selection already posted, skipping")
				metrics.Global.IncrDuplicatesFiltered()
				continue
			}
		}

		res, err := a.deliverer.Post(ctx, sel)
		if err != nil {
			return fmt.Errorf("deliver %q: %w", sel.Title, err)
		}
		metrics.Global.IncrMessagesPosted()
		posted++

		a.record(ctx, sel, res)
		if key != "" {
			known[key] = struct{}{}
		}

		if i < len(selections)-1 {
			a.pause(ctx, a.cfg.PostDelay)
		}
	}

	logger.Info().Int("posted", posted).Msg("run complete")
	return nil
}

// loadKnown returns the set of already-posted normalized URLs. Ledger
// problems degrade to an empty set: a duplicate post is preferable to no
// post at all.
func (a *App) loadKnown(ctx context.Context) map[string]struct{} {
	if a.ledger == nil {
		logger.Warn().Msg("ledger not configured, duplicate suppression disabled")
		a.notifier.Notify(ctx, a.cfg.ErrorRecipients,
			"Curator ledger is not configured; running without duplicate suppression.")
		return make(map[string]struct{})
	}

	known, err := a.ledger.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("ledger read failed, continuing without duplicate suppression")
		a.notifier.Notify(ctx, a.cfg.ErrorRecipients,
			fmt.Sprintf("Curator could not read the posted-articles ledger (%v); running without duplicate suppression.", err))
		return make(map[string]struct{})
	}
	return known
}

func (a *App) dedupe(articles []feed.Article, known map[string]struct{}) []feed.Article {
	fresh := make([]feed.Article, 0, len(articles))
	for _, article := range articles {
		key := urlutil.Normalize(article.URL)
		if key != "" {
			if _, dup := known[key]; dup {
				logger.Info().Str("title", article.Title).Msg("already posted, skipping candidate")
				metrics.Global.IncrDuplicatesFiltered()
				continue
			}
		}
		fresh = append(fresh, article)
	}
	return fresh
}

// record appends the delivered article to the ledger. The message is already
// out, so a ledger failure is logged and swallowed, never raised.
func (a *App) record(ctx context.Context, sel ranker.Selection, res *delivery.Result) {
	if a.ledger == nil {
		return
	}

	rec := ledger.PostedRecord{
		Selection:      sel,
		PostedDate:     a.postedDate(res.Timestamp),
		SlackTimestamp: res.Timestamp,
		SlackChannel:   res.Channel,
	}
	if err := a.ledger.Append(ctx, []ledger.PostedRecord{rec}); err != nil {
		logger.Warn().Err(err).Str("url", sel.URL).Msg("ledger append failed")
		metrics.Global.IncrLedgerAppendFailed()
	}
}

// postedDate derives the post time from the Slack message timestamp
// (seconds before the dot), falling back to the current time.
func (a *App) postedDate(slackTS string) string {
	if sec, err := strconv.ParseInt(strings.SplitN(slackTS, ".", 2)[0], 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).Local().Format(time.RFC3339)
	}
	return a.now().Local().Format(time.RFC3339)
}

func pause(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
