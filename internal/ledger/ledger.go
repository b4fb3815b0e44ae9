// Package ledger records delivered articles in a Google Sheets worksheet and
// answers which URLs were already posted.
package ledger

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/option"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/1000heads/curator/internal/logger"
	"github.com/1000heads/curator/internal/ranker"
	"github.com/1000heads/curator/internal/retry"
	"github.com/1000heads/curator/internal/urlutil"
)

// Columns is the fixed worksheet schema. Order is load-bearing: every prior
// run's rows were written in this layout, so it must never change without a
// migration.
var Columns = []string{
	"articleTitle",
	"articleUrl",
	"articlePublisher",
	"articlePublishedDate",
	"articleImageUrl",
	"articleImageCaption",
	"articleImageCredit",
	"articleImageLicense",
	"articleImageLicenseUrl",
	"score_relevance",
	"score_impact",
	"score_source",
	"score_recency",
	"score_apac",
	"score_total",
	"keyTakeaway",
	"insights",
	"whyItMatters",
	"whyItMattersFor1000heads",
	"postedDate",
	"slackTimestamp",
	"slackChannel",
}

const urlColumn = 1 // index of articleUrl in Columns

// PostedRecord is one row of the ledger: the delivered selection plus the
// delivery outcome.
type PostedRecord struct {
	ranker.Selection
	PostedDate     string
	SlackTimestamp string
	SlackChannel   string
}

type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	worksheet     string
}

func NewClient(ctx context.Context, credentialsPath, spreadsheetID, worksheet string) (*Client, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("init sheets client: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, worksheet: worksheet}, nil
}

func (c *Client) dataRange() string {
	return fmt.Sprintf("%s!A2:%s", c.worksheet, columnLetter(len(Columns)))
}

// Load reads every data row and returns the set of normalized posted URLs.
// On failure it returns an empty set alongside the error: the caller degrades
// to running without duplicate suppression rather than aborting.
func (c *Client) Load(ctx context.Context) (map[string]struct{}, error) {
	known := make(map[string]struct{})

	var resp *sheets.ValueRange
	err := retry.Do(ctx, retry.Policy{MaxAttempts: 3, Delay: 2 * time.Second}, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.dataRange()).Context(ctx).Do()
		return err
	})
	if err != nil {
		return known, fmt.Errorf("read ledger: %w", err)
	}

	for _, row := range resp.Values {
		if len(row) <= urlColumn {
			continue
		}
		if u := urlutil.Normalize(fmt.Sprint(row[urlColumn])); u != "" {
			known[u] = struct{}{}
		}
	}
	logger.Info().Int("known_urls", len(known)).Msg("ledger loaded")
	return known, nil
}

// Append writes the records as new rows. The batch is deduplicated internally
// by normalized URL (first occurrence wins) before writing.
func (c *Client) Append(ctx context.Context, records []PostedRecord) error {
	rows := buildRows(records)
	if len(rows) == 0 {
		return nil
	}

	vr := &sheets.ValueRange{Values: rows}
	err := retry.Do(ctx, retry.Policy{MaxAttempts: 3, Delay: 2 * time.Second}, func() error {
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.dataRange(), vr).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("append ledger rows: %w", err)
	}
	return nil
}

// buildRows maps records to the fixed column layout, dropping batch-internal
// duplicates by normalized URL.
func buildRows(records []PostedRecord) [][]interface{} {
	seen := make(map[string]struct{}, len(records))
	rows := make([][]interface{}, 0, len(records))

	for _, rec := range records {
		key := urlutil.Normalize(rec.URL)
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		rows = append(rows, rec.row())
	}
	return rows
}

func (r PostedRecord) row() []interface{} {
	storedURL := urlutil.Normalize(r.URL)
	if storedURL == "" {
		storedURL = r.URL
	}

	return []interface{}{
		r.Title,
		storedURL,
		r.Publisher,
		r.PublishedDate,
		r.ImageURL,
		r.ImageCaption,
		r.ImageCredit,
		r.ImageLicense,
		r.ImageLicenseURL,
		float64(r.ScoreRelevance),
		float64(r.ScoreImpact),
		float64(r.ScoreSource),
		float64(r.ScoreRecency),
		float64(r.ScoreAPAC),
		float64(r.ScoreTotal),
		r.KeyTakeaway,
		joinLines(r.Insights),
		r.WhyItMatters,
		r.WhyItMattersFor1000heads,
		r.PostedDate,
		r.SlackTimestamp,
		r.SlackChannel,
	}
}

func joinLines(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += "\n"
		}
		out += v
	}
	return out
}

// columnLetter converts a 1-based column count to its A1-notation letter
// ("A", "V", "AA", ...).
func columnLetter(n int) string {
	name := ""
	for n > 0 {
		mod := (n - 1) % 26
		name = string(rune('A'+mod)) + name
		n = (n - mod) / 26
	}
	return name
}
