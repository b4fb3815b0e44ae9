// Package metrics tracks per-process run statistics for the monitoring endpoint.
package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	FeedsFetched        int64
	FeedsFailed         int64
	ArticlesIngested    int64
	ItemsSkipped        int64
	SourcesBlocked      int64
	DuplicatesFiltered  int64
	MessagesPosted      int64
	LedgerAppendFailed  int64
	NotificationsSent   int64

	// Timings
	LastRunDuration time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrFeedsFetched()       { m.incr(&m.FeedsFetched) }
func (m *Metrics) IncrFeedsFailed()        { m.incr(&m.FeedsFailed) }
func (m *Metrics) IncrArticlesIngested()   { m.incr(&m.ArticlesIngested) }
func (m *Metrics) IncrItemsSkipped()       { m.incr(&m.ItemsSkipped) }
func (m *Metrics) IncrSourcesBlocked()     { m.incr(&m.SourcesBlocked) }
func (m *Metrics) IncrDuplicatesFiltered() { m.incr(&m.DuplicatesFiltered) }
func (m *Metrics) IncrMessagesPosted()     { m.incr(&m.MessagesPosted) }
func (m *Metrics) IncrLedgerAppendFailed() { m.incr(&m.LedgerAppendFailed) }
func (m *Metrics) IncrNotificationsSent()  { m.incr(&m.NotificationsSent) }

func (m *Metrics) incr(counter *int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter++
}

func (m *Metrics) SetLastRun(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.LastRunDuration = d
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"feeds_fetched":        m.FeedsFetched,
		"feeds_failed":         m.FeedsFailed,
		"articles_ingested":    m.ArticlesIngested,
		"items_skipped":        m.ItemsSkipped,
		"sources_blocked":      m.SourcesBlocked,
		"duplicates_filtered":  m.DuplicatesFiltered,
		"messages_posted":      m.MessagesPosted,
		"ledger_append_failed": m.LedgerAppendFailed,
		"notifications_sent":   m.NotificationsSent,
		"last_run_duration_ms": m.LastRunDuration.Milliseconds(),
		"last_run_time":        m.LastRunTime.Format(time.RFC3339),
		"last_error_time":      m.LastErrorTime.Format(time.RFC3339),
		"last_error":           m.LastError,
		"is_healthy":           m.IsHealthy,
	}
}
