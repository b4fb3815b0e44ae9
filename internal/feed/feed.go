// Package feed ingests candidate articles from a list of RSS/Atom sources.
package feed

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/mmcdole/gofeed"
	"gopkg.in/yaml.v3"

	"github.com/1000heads/curator/internal/extract"
	"github.com/1000heads/curator/internal/logger"
	"github.com/1000heads/curator/internal/metrics"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36"

// Article is one candidate produced by ingestion. JSON field names match the
// ledger schema and the ranker request payload.
type Article struct {
	Title         string `json:"articleTitle"`
	URL           string `json:"articleUrl"`
	Publisher     string `json:"articlePublisher"`
	PublishedDate string `json:"articlePublishedDate,omitempty"`
	Author        string `json:"articleAuthor,omitempty"`
	Content       string `json:"articleContent"`
	ImageURL      string `json:"articleImageUrl,omitempty"`
}

// SourcesConfig is the YAML feed list:
//
//	feeds:
//	  - https://...
type SourcesConfig struct {
	Feeds []string `yaml:"feeds"`
}

// LoadSources reads the feed URL list from a YAML file.
func LoadSources(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return cfg.Feeds, nil
}

type Ingestor struct {
	parser   *gofeed.Parser
	extract  extract.Func
	lookback time.Duration
	rng      *rand.Rand
}

// NewIngestor builds an ingestor that parses feeds with the given request
// timeout and pulls article text through extractFn.
func NewIngestor(extractFn extract.Func, feedTimeout time.Duration, lookbackDays int) *Ingestor {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: feedTimeout}

	return &Ingestor{
		parser:   parser,
		extract:  extractFn,
		lookback: time.Duration(lookbackDays) * 24 * time.Hour,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Fetch collects up to maxArticles articles across the given sources
// (maxArticles <= 0 means unlimited). Feed order and item order are shuffled
// so a global cap does not systematically favor earlier sources, and each
// source is capped at ceil(maxArticles/len(sources)) items. A source that
// answers an extraction with an access-denied status is abandoned for the
// rest of the run; any other per-item failure skips only that item.
func (in *Ingestor) Fetch(ctx context.Context, sources []string, maxArticles int) []Article {
	var collected []Article
	now := time.Now()

	perSourceCap := 0
	if maxArticles > 0 && len(sources) > 0 {
		perSourceCap = (maxArticles + len(sources) - 1) / len(sources)
		if perSourceCap < 1 {
			perSourceCap = 1
		}
	}

	for _, sourceURL := range in.shuffled(sources) {
		parsed, err := in.parser.ParseURLWithContext(sourceURL, ctx)
		if err != nil {
			logger.Warn().Str("feed", sourceURL).Err(err).Msg("feed parse failed, skipping source")
			metrics.Global.IncrFeedsFailed()
			continue
		}
		metrics.Global.IncrFeedsFetched()

		fromSource := 0
		for _, item := range in.shuffledItems(parsed.Items) {
			if perSourceCap > 0 && fromSource >= perSourceCap {
				break
			}
			if item.Link == "" {
				metrics.Global.IncrItemsSkipped()
				continue
			}

			res, err := in.extract(ctx, item.Link)
			if err != nil {
				if errors.Is(err, extract.ErrAccessDenied) {
					logger.Warn().Str("feed", sourceURL).Str("url", item.Link).
						Msg("source denied access, blocking for this run")
					metrics.Global.IncrSourcesBlocked()
					break
				}
				logger.Warn().Str("url", item.Link).Err(err).Msg("extraction failed, skipping item")
				metrics.Global.IncrItemsSkipped()
				continue
			}
			if res.Content == "" {
				metrics.Global.IncrItemsSkipped()
				continue
			}

			// Items with an unparsable or missing publish date pass the age
			// filter; only a known-old date rejects.
			if item.PublishedParsed != nil && now.Sub(*item.PublishedParsed) > in.lookback {
				metrics.Global.IncrItemsSkipped()
				continue
			}

			if !likelyEnglish(res.Content) {
				metrics.Global.IncrItemsSkipped()
				continue
			}

			collected = append(collected, buildArticle(item, parsed, res))
			fromSource++
			metrics.Global.IncrArticlesIngested()
			logger.Info().Str("title", item.Title).Str("url", item.Link).Msg("article ingested")

			if maxArticles > 0 && len(collected) >= maxArticles {
				return collected
			}
		}
	}

	return collected
}

func buildArticle(item *gofeed.Item, parsed *gofeed.Feed, res *extract.Result) Article {
	title := item.Title
	if title == "" {
		title = res.Title
	}
	publisher := parsed.Title
	if publisher == "" {
		publisher = res.SiteName
	}

	publishedDate := ""
	if item.PublishedParsed != nil {
		publishedDate = item.PublishedParsed.Format(time.RFC3339)
	} else if item.Published != "" {
		publishedDate = item.Published
	}

	author := res.Author
	if author == "" && item.Author != nil {
		author = item.Author.Name
	}

	return Article{
		Title:         title,
		URL:           item.Link,
		Publisher:     publisher,
		PublishedDate: publishedDate,
		Author:        author,
		Content:       res.Content,
		ImageURL:      res.ImageURL,
	}
}

func (in *Ingestor) shuffled(urls []string) []string {
	out := make([]string, len(urls))
	copy(out, urls)
	in.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func (in *Ingestor) shuffledItems(items []*gofeed.Item) []*gofeed.Item {
	out := make([]*gofeed.Item, len(items))
	copy(out, items)
	in.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// likelyEnglish is a cheap heuristic: English article text is almost entirely
// ASCII once typographic punctuation is allowed for.
func likelyEnglish(text string) bool {
	if text == "" {
		return false
	}
	ascii, total := 0, 0
	for _, r := range text {
		total++
		if r < 128 {
			ascii++
		}
	}
	return float64(ascii)/float64(total) >= 0.9
}
