package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Feeds
	FeedsFetched       int64
	FeedFailures       int64
	ItemsFetched       int64
	DuplicatesFiltered int64

	// Cache
	CacheHits   int64
	CacheMisses int64

	// Reasoning gateway
	ModelCalls      int64
	ModelRetries    int64
	ModelSkips      int64
	GatewayFailures int64

	// Analysis
	ClustersFound    int64
	SynthesesOK      int64
	SynthesesFailed  int64
	ArticlesEnriched int64
	ParseFailures    int64

	// Timings
	LastProcessingTime    time.Duration
	AverageProcessingTime time.Duration
	TotalProcessingTime   time.Duration
	ProcessingCount       int64

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) add(field *int64, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*field += n
}

func (m *Metrics) IncrementFeedsFetched() { m.add(&m.FeedsFetched, 1) }
func (m *Metrics) IncrementFeedFailures() { m.add(&m.FeedFailures, 1) }
func (m *Metrics) AddItemsFetched(n int) { m.add(&m.ItemsFetched, int64(n)) }
func (m *Metrics) AddDuplicatesFiltered(n int) { m.add(&m.DuplicatesFiltered, int64(n)) }
func (m *Metrics) IncrementCacheHits() { m.add(&m.CacheHits, 1) }
func (m *Metrics) IncrementCacheMisses() { m.add(&m.CacheMisses, 1) }
func (m *Metrics) IncrementModelCalls() { m.add(&m.ModelCalls, 1) }
func (m *Metrics) IncrementModelRetries() { m.add(&m.ModelRetries, 1) }
func (m *Metrics) IncrementModelSkips() { m.add(&m.ModelSkips, 1) }
func (m *Metrics) IncrementGatewayFailures() { m.add(&m.GatewayFailures, 1) }
func (m *Metrics) AddClustersFound(n int) { m.add(&m.ClustersFound, int64(n)) }
func (m *Metrics) IncrementSynthesesOK() { m.add(&m.SynthesesOK, 1) }
func (m *Metrics) IncrementSynthesesFailed() { m.add(&m.SynthesesFailed, 1) }
func (m *Metrics) IncrementArticlesEnriched() { m.add(&m.ArticlesEnriched, 1) }
func (m *Metrics) IncrementParseFailures() { m.add(&m.ParseFailures, 1) }

func (m *Metrics) RecordProcessingTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastProcessingTime = duration
	m.TotalProcessingTime += duration
	m.ProcessingCount++

	if m.ProcessingCount > 0 {
		m.AverageProcessingTime = m.TotalProcessingTime / time.Duration(m.ProcessingCount)
	}
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

// Reset zeroes all counters; used between runs in tests.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedsFetched, m.FeedFailures, m.ItemsFetched, m.DuplicatesFiltered = 0, 0, 0, 0
	m.CacheHits, m.CacheMisses = 0, 0
	m.ModelCalls, m.ModelRetries, m.ModelSkips, m.GatewayFailures = 0, 0, 0, 0
	m.ClustersFound, m.SynthesesOK, m.SynthesesFailed, m.ArticlesEnriched, m.ParseFailures = 0, 0, 0, 0, 0
	m.LastProcessingTime, m.AverageProcessingTime, m.TotalProcessingTime, m.ProcessingCount = 0, 0, 0, 0
	m.LastRunTime, m.LastErrorTime, m.LastError = time.Time{}, time.Time{}, ""
	m.IsHealthy = true
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"feeds_fetched":              m.FeedsFetched,
		"feed_failures":              m.FeedFailures,
		"items_fetched":              m.ItemsFetched,
		"duplicates_filtered":        m.DuplicatesFiltered,
		"cache_hits":                 m.CacheHits,
		"cache_misses":               m.CacheMisses,
		"model_calls":                m.ModelCalls,
		"model_retries":              m.ModelRetries,
		"model_skips":                m.ModelSkips,
		"gateway_failures":           m.GatewayFailures,
		"clusters_found":             m.ClustersFound,
		"syntheses_ok":               m.SynthesesOK,
		"syntheses_failed":           m.SynthesesFailed,
		"articles_enriched":          m.ArticlesEnriched,
		"parse_failures":             m.ParseFailures,
		"last_processing_time_ms":    m.LastProcessingTime.Milliseconds(),
		"average_processing_time_ms": m.AverageProcessingTime.Milliseconds(),
		"last_run_time":              m.LastRunTime.Format(time.RFC3339),
		"last_error":                 m.LastError,
		"is_healthy":                 m.IsHealthy,
	}
}

// LogArgs flattens GetStats into slog key/value pairs.
func (m *Metrics) LogArgs() []any {
	stats := m.GetStats()
	keys := []string{
		"feeds_fetched", "feed_failures", "items_fetched", "duplicates_filtered",
		"cache_hits", "cache_misses", "model_calls", "model_retries", "model_skips",
		"gateway_failures", "clusters_found", "syntheses_ok", "syntheses_failed",
		"articles_enriched", "parse_failures", "last_processing_time_ms",
	}
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, stats[k])
	}
	return args
}
