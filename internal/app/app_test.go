package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1000heads/curator/internal/config"
	"github.com/1000heads/curator/internal/delivery"
	"github.com/1000heads/curator/internal/feed"
	"github.com/1000heads/curator/internal/ledger"
	"github.com/1000heads/curator/internal/ranker"
)

type fakeLedger struct {
	known     map[string]struct{}
	loadErr   error
	appendErr error
	appended  []ledger.PostedRecord
}

func (f *fakeLedger) Load(context.Context) (map[string]struct{}, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	known := make(map[string]struct{}, len(f.known))
	for k := range f.known {
		known[k] = struct{}{}
	}
	return known, nil
}

func (f *fakeLedger) Append(_ context.Context, records []ledger.PostedRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, records...)
	return nil
}

type fakeIngestor struct {
	articles []feed.Article
}

func (f *fakeIngestor) Fetch(context.Context, []string, int) []feed.Article {
	return f.articles
}

type fakeRanker struct {
	selections []ranker.Selection
	err        error
	got        []feed.Article
}

func (f *fakeRanker) Rank(_ context.Context, articles []feed.Article) ([]ranker.Selection, error) {
	f.got = articles
	return f.selections, f.err
}

type fakeDeliverer struct {
	err    error
	posted []ranker.Selection
}

func (f *fakeDeliverer) Post(_ context.Context, sel ranker.Selection) (*delivery.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.posted = append(f.posted, sel)
	return &delivery.Result{Channel: "C123", Timestamp: "1700000000.000100"}, nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) Notify(_ context.Context, _ []string, text string) {
	f.messages = append(f.messages, text)
}

func article(url string) feed.Article {
	return feed.Article{Title: "Title for " + url, URL: url}
}

func selection(url string) ranker.Selection {
	return ranker.Selection{Article: feed.Article{Title: "Title for " + url, URL: url}}
}

func testConfig() *config.Config {
	return &config.Config{
		ErrorRecipients: []string{"U1"},
		MaxArticles:     100,
		PostDelay:       30 * time.Second,
	}
}

func newTestApp(led Ledger, ing *fakeIngestor, rnk *fakeRanker, del *fakeDeliverer, not *fakeNotifier) (*App, *[]time.Duration) {
	a := New(testConfig(), []string{"https://feeds.example.com/rss"}, led, ing, rnk, del, not)
	var pauses []time.Duration
	a.pause = func(_ context.Context, d time.Duration) { pauses = append(pauses, d) }
	a.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return a, &pauses
}

func TestRunHappyPath(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{}}
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1"), article("https://b.example.com/2")}}
	rnk := &fakeRanker{selections: []ranker.Selection{selection("https://a.example.com/1")}}
	del := &fakeDeliverer{}
	not := &fakeNotifier{}

	app, pauses := newTestApp(led, ing, rnk, del, not)
	require.NoError(t, app.Run(context.Background()))

	require.Len(t, del.posted, 1)
	require.Len(t, led.appended, 1)
	rec := led.appended[0]
	assert.Equal(t, "https://a.example.com/1", rec.URL)
	assert.Equal(t, "1700000000.000100", rec.SlackTimestamp)
	assert.Equal(t, "C123", rec.SlackChannel)
	assert.NotEmpty(t, rec.PostedDate)
	assert.Empty(t, not.messages)
	assert.Empty(t, *pauses, "single post must not pause")
}

func TestRunFiltersKnownCandidates(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{"https://a.example.com/1": {}}}
	ing := &fakeIngestor{articles: []feed.Article{
		article("https://a.example.com/1/"), // trailing slash still matches
		article("https://b.example.com/2"),
	}}
	rnk := &fakeRanker{selections: []ranker.Selection{selection("https://b.example.com/2")}}
	del := &fakeDeliverer{}

	app, _ := newTestApp(led, ing, rnk, del, &fakeNotifier{})
	require.NoError(t, app.Run(context.Background()))

	require.Len(t, rnk.got, 1, "known article must not reach the ranker")
	assert.Equal(t, "https://b.example.com/2", rnk.got[0].URL)
}

func TestRunSkipsDuplicateSelection(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{"https://a.example.com/1": {}}}
	ing := &fakeIngestor{articles: []feed.Article{article("https://b.example.com/2")}}
	// Ranker hallucinated an already-posted URL alongside a fresh one.
	rnk := &fakeRanker{selections: []ranker.Selection{
		selection("https://a.example.com/1"),
		selection("https://b.example.com/2"),
	}}
	del := &fakeDeliverer{}

	app, _ := newTestApp(led, ing, rnk, del, &fakeNotifier{})
	require.NoError(t, app.Run(context.Background()))

	require.Len(t, del.posted, 1)
	assert.Equal(t, "https://b.example.com/2", del.posted[0].URL)
}

func TestRunNothingNewIsClean(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{"https://a.example.com/1": {}}}
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1")}}
	rnk := &fakeRanker{}
	del := &fakeDeliverer{}

	app, _ := newTestApp(led, ing, rnk, del, &fakeNotifier{})
	require.NoError(t, app.Run(context.Background()))

	assert.Nil(t, rnk.got, "ranker must not run with no candidates")
	assert.Empty(t, del.posted)
}

func TestRunNoSelectionsNotifiesAndSucceeds(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{}}
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1")}}
	rnk := &fakeRanker{err: ranker.ErrNoSelections}
	del := &fakeDeliverer{}
	not := &fakeNotifier{}

	app, _ := newTestApp(led, ing, rnk, del, not)
	require.NoError(t, app.Run(context.Background()))

	assert.Empty(t, del.posted)
	require.Len(t, not.messages, 1)
	assert.Contains(t, not.messages[0], "without posting")
}

func TestRunRankerFailurePropagates(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{}}
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1")}}
	rnk := &fakeRanker{err: errors.New("model unavailable")}
	not := &fakeNotifier{}

	app, _ := newTestApp(led, ing, rnk, &fakeDeliverer{}, not)
	err := app.Run(context.Background())
	require.Error(t, err)
	require.Len(t, not.messages, 1)
	assert.Contains(t, not.messages[0], "Curator run failed")
}

func TestRunDeliveryFailurePropagates(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{}}
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1")}}
	rnk := &fakeRanker{selections: []ranker.Selection{selection("https://a.example.com/1")}}
	del := &fakeDeliverer{err: errors.New("channel_not_found")}

	app, _ := newTestApp(led, ing, rnk, del, &fakeNotifier{})
	err := app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
	assert.Empty(t, led.appended)
}

func TestRunLedgerLoadFailureDegrades(t *testing.T) {
	led := &fakeLedger{loadErr: errors.New("sheets unavailable")}
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1")}}
	rnk := &fakeRanker{selections: []ranker.Selection{selection("https://a.example.com/1")}}
	del := &fakeDeliverer{}
	not := &fakeNotifier{}

	app, _ := newTestApp(led, ing, rnk, del, not)
	require.NoError(t, app.Run(context.Background()))

	require.Len(t, del.posted, 1, "run continues without the ledger")
	require.NotEmpty(t, not.messages)
	assert.Contains(t, not.messages[0], "duplicate suppression")
}

func TestRunLedgerAppendFailureIsSwallowed(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{}, appendErr: errors.New("quota exceeded")}
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1")}}
	rnk := &fakeRanker{selections: []ranker.Selection{selection("https://a.example.com/1")}}
	del := &fakeDeliverer{}

	app, _ := newTestApp(led, ing, rnk, del, &fakeNotifier{})
	require.NoError(t, app.Run(context.Background()))
	require.Len(t, del.posted, 1)
}

func TestRunWithoutLedger(t *testing.T) {
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1")}}
	rnk := &fakeRanker{selections: []ranker.Selection{selection("https://a.example.com/1")}}
	del := &fakeDeliverer{}
	not := &fakeNotifier{}

	app, _ := newTestApp(nil, ing, rnk, del, not)
	require.NoError(t, app.Run(context.Background()))

	require.Len(t, del.posted, 1)
	require.NotEmpty(t, not.messages)
	assert.Contains(t, not.messages[0], "not configured")
}

func TestRunPausesBetweenPostsButNotAfterLast(t *testing.T) {
	led := &fakeLedger{known: map[string]struct{}{}}
	ing := &fakeIngestor{articles: []feed.Article{article("https://a.example.com/1"), article("https://b.example.com/2")}}
	rnk := &fakeRanker{selections: []ranker.Selection{
		selection("https://a.example.com/1"),
		selection("https://b.example.com/2"),
	}}
	del := &fakeDeliverer{}

	app, pauses := newTestApp(led, ing, rnk, del, &fakeNotifier{})
	require.NoError(t, app.Run(context.Background()))

	require.Len(t, del.posted, 2)
	require.Len(t, *pauses, 1)
	assert.Equal(t, 30*time.Second, (*pauses)[0])
}

func TestPostedDateFromSlackTimestamp(t *testing.T) {
	app, _ := newTestApp(nil, &fakeIngestor{}, &fakeRanker{}, &fakeDeliverer{}, &fakeNotifier{})

	got := app.postedDate("1700000000.000100")
	parsed, err := time.Parse(time.RFC3339, got)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), parsed.Unix())

	// Malformed timestamp falls back to the injected clock.
	fallback := app.postedDate("garbage")
	parsed, err = time.Parse(time.RFC3339, fallback)
	require.NoError(t, err)
	assert.Equal(t, app.now().Unix(), parsed.Unix())
}
