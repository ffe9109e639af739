package app

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/deusflow/newslens/internal/cache"
	"github.com/deusflow/newslens/internal/cluster"
	"github.com/deusflow/newslens/internal/config"
	"github.com/deusflow/newslens/internal/gemini"
	"github.com/deusflow/newslens/internal/llm"
	"github.com/deusflow/newslens/internal/logger"
	"github.com/deusflow/newslens/internal/metrics"
	"github.com/deusflow/newslens/internal/news"
	"github.com/deusflow/newslens/internal/ratelimit"
	"github.com/deusflow/newslens/internal/report"
	"github.com/deusflow/newslens/internal/retry"
	"github.com/deusflow/newslens/internal/rss"
	"github.com/deusflow/newslens/internal/scraper"
	"github.com/deusflow/newslens/internal/synthesis"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Fetcher collects items from all sources.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []news.Source) []news.Item
}

// Enricher downloads full article text for the given links.
type Enricher interface {
	ExtractArticles(ctx context.Context, urls []string, concurrency int) map[string]*scraper.ArticleContent
}

// Pipeline runs one fetch → dedup → cluster → synthesize pass and writes the report.
type Pipeline struct {
	Config      *config.Config
	Sources     []news.Source
	Fetcher     Fetcher
	Clusterer   *cluster.Clusterer
	Synthesizer *synthesis.Synthesizer
	Enricher    Enricher // nil disables enrichment
	Now         func() time.Time
}

// NewGateway builds the model gateway from cfg. A nil backend yields a gateway
// that fails every call with llm.ErrNoCredential.
func NewGateway(cfg *config.Config, backend llm.Backend) *llm.Gateway {
	return llm.New(backend, llm.Options{
		Models: cfg.Models,
		Retry: retry.RetryConfig{
			MaxAttempts: cfg.RetryAttempts,
			Delay:       cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
			Backoff:     true,
		},
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        ratelimit.NewAIRateLimiter(cfg.MaxGeminiRequests, cfg.GeminiRPM),
	})
}

// NewPipeline wires the default fetcher, clusterer and synthesizer around gen and store.
func NewPipeline(cfg *config.Config, sources []news.Source, store cache.Store, gen cluster.Generator) *Pipeline {
	p := &Pipeline{
		Config:  cfg,
		Sources: sources,
		Fetcher: &rss.Fetcher{
			UserAgent:   cfg.UserAgent,
			Timeout:     cfg.FetchTimeout,
			Concurrency: cfg.FetchConcurrency,
		},
		Clusterer:   cluster.New(gen, store, cfg.ClusterCacheTTL, cfg.MaxClusters),
		Synthesizer: synthesis.New(gen, store, cfg.SynthesisCacheTTL, cfg.MaxContentRunes),
		Now:         time.Now,
	}
	if cfg.EnrichContent {
		p.Enricher = scraper.New(cfg.FetchTimeout, cfg.UserAgent)
	}
	return p
}

// Run loads sources, opens the cache and model backends and runs one pipeline pass.
func Run(ctx context.Context, cfg *config.Config) (*report.Report, error) {
	sources, err := rss.LoadSources(cfg.SourcesConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	store, closeStore := OpenStore(ctx, cfg)
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close cache", "error", err)
		}
	}()

	var backend llm.Backend
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set; clustering and synthesis will be skipped")
	} else {
		client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			logger.Error("Gemini client unavailable", "error", err)
		} else {
			defer client.Close()
			backend = client
		}
	}

	gw := NewGateway(cfg, backend)
	logger.Info("Model chain", "models", gw.Models())

	r, err := NewPipeline(cfg, sources, store, gw).Run(ctx)
	logger.Info("AI usage", "stats", gw.Usage())
	if err == nil {
		PruneStore(ctx, store, max(cfg.ClusterCacheTTL, cfg.SynthesisCacheTTL))
	}
	return r, err
}

// PruneStore drops entries no lookup can serve any more, when the store supports it.
func PruneStore(ctx context.Context, store cache.Store, ttl time.Duration) int {
	p, ok := store.(cache.Pruner)
	if !ok {
		return 0
	}
	removed, err := p.Cleanup(ctx, ttl)
	if err != nil {
		logger.Warn("Cache cleanup failed", "error", err)
	}
	if removed > 0 {
		logger.Info("Pruned expired cache entries", "removed", removed, "ttl", ttl)
	}
	return removed
}

// Run executes the pipeline. It returns an error only when the context is
// cancelled or the report cannot be written.
func (p *Pipeline) Run(ctx context.Context) (*report.Report, error) {
	startTime := time.Now()
	defer func() {
		metrics.Global.RecordProcessingTime(time.Since(startTime))
		metrics.Global.SetLastRun()
	}()

	cfg := p.Config
	log := logger.With("run_id", uuid.NewString())
	log.Info("Starting news update", "sources", len(p.Sources))

	fetched := p.Fetcher.FetchAll(ctx, p.Sources)
	items := news.Dedup(fetched, cfg.DedupPrefixRunes)
	metrics.Global.AddDuplicatesFiltered(len(fetched) - len(items))
	log.Info("Fetched news", "fetched", len(fetched), "unique", len(items))

	batch := items[:min(len(items), cfg.MaxClusterItems)]

	clusters, err := p.Clusterer.Cluster(ctx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Clustering failed, all news left unclustered", "error", err)
		clusters = nil
	}
	metrics.Global.AddClustersFound(len(clusters))

	selected := clusters[:min(len(clusters), max(cfg.TopClusters, 0))]
	groups := make([][]news.Item, len(selected))
	for i, cl := range selected {
		groups[i] = make([]news.Item, 0, len(cl.ArticleIndices))
		for _, idx := range cl.ArticleIndices {
			groups[i] = append(groups[i], batch[idx])
		}
	}

	if p.Enricher != nil {
		p.enrich(ctx, groups)
	}

	results := p.synthesizeAll(ctx, selected, groups)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	r := report.New(p.Now())
	consumed := make(map[int]bool)
	for i, cl := range selected {
		for _, idx := range cl.ArticleIndices {
			consumed[idx] = true
		}
		if results[i] == nil {
			continue
		}
		r.ClusteredTopics = append(r.ClusteredTopics, report.Topic{
			Topic:            cl.Topic,
			Synthesis:        results[i],
			OriginalArticles: groups[i],
		})
	}
	for idx, item := range items {
		if idx < len(batch) && consumed[idx] {
			continue
		}
		r.UnclusteredNews = append(r.UnclusteredNews, item)
	}

	if err := report.Save(cfg.ReportPath, r); err != nil {
		metrics.Global.SetError(err.Error())
		return nil, err
	}

	log.Info("Update complete",
		"topics", len(r.ClusteredTopics),
		"unclustered", len(r.UnclusteredNews),
		"path", cfg.ReportPath,
		"duration", time.Since(startTime).Round(time.Millisecond))
	log.Info("Run metrics", metrics.Global.LogArgs()...)
	return r, nil
}

// synthesizeAll runs the synthesizer for each selected cluster with bounded
// concurrency. Failed clusters leave a nil result.
func (p *Pipeline) synthesizeAll(ctx context.Context, selected []cluster.Cluster, groups [][]news.Item) []*synthesis.Synthesis {
	results := make([]*synthesis.Synthesis, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.Config.SynthesisConcurrency, 1))

	for i, cl := range selected {
		g.Go(func() error {
			logger.Info("Analyzing topic", "topic", cl.Topic, "articles", len(groups[i]), "cached_cluster", cl.IsCached)
			res, err := p.Synthesizer.Synthesize(gctx, cl.Topic, groups[i])
			if err != nil {
				metrics.Global.IncrementSynthesesFailed()
				logger.Warn("Synthesis failed", "topic", cl.Topic, "error", err)
				return nil
			}
			metrics.Global.IncrementSynthesesOK()
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// enrich replaces short snippets of clustered articles with full page text.
func (p *Pipeline) enrich(ctx context.Context, groups [][]news.Item) {
	var urls []string
	seen := make(map[string]bool)
	for _, group := range groups {
		for _, item := range group {
			if utf8.RuneCountInString(item.Content) >= p.Config.EnrichMinRunes || seen[item.Link] {
				continue
			}
			seen[item.Link] = true
			urls = append(urls, item.Link)
		}
	}
	if len(urls) == 0 {
		return
	}

	articles := p.Enricher.ExtractArticles(ctx, urls, p.Config.EnrichConcurrency)
	for _, group := range groups {
		for j := range group {
			article, ok := articles[group[j].Link]
			if !ok || utf8.RuneCountInString(article.Content) <= utf8.RuneCountInString(group[j].Content) {
				continue
			}
			group[j].Content = article.Content
			metrics.Global.IncrementArticlesEnriched()
		}
	}
}
