package rss

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/newslens/internal/logger"
	"github.com/deusflow/newslens/internal/metrics"
	"github.com/deusflow/newslens/internal/news"
	"github.com/deusflow/newslens/internal/scraper"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// SourcesConfig is YAML config structure
// sources:
//   - id: pts
//     name: PTS News
//     url: https://news.pts.org.tw
//     rss_url: https://news.pts.org.tw/xml/newsfeed.xml
type SourcesConfig struct {
	Sources []news.Source `yaml:"sources"`
}

// DefaultSources is used when no sources file exists.
var DefaultSources = []news.Source{
	{ID: "pts", Name: "公視新聞", URL: "https://news.pts.org.tw", RSSURL: "https://news.pts.org.tw/xml/newsfeed.xml"},
	{ID: "udn", Name: "聯合新聞網", URL: "https://udn.com", RSSURL: "https://udn.com/rssfeed/news/2/6638?ch=news"},
	{ID: "ltn", Name: "自由時報", URL: "https://news.ltn.com.tw", RSSURL: "https://news.ltn.com.tw/rss/all.xml"},
	{
		ID:         "google-tw",
		Name:       "Google News",
		URL:        "https://news.google.com",
		RSSURL:     "https://news.google.com/rss?hl=zh-TW&gl=TW&ceid=TW:zh-Hant",
		Aggregator: true,
	},
}

// LoadSources reads the source list from a YAML file. A missing file yields DefaultSources.
func LoadSources(path string) ([]news.Source, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("Sources file not found, using built-in sources", "path", path)
		return append([]news.Source(nil), DefaultSources...), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg SourcesConfig
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for i, src := range cfg.Sources {
		if strings.TrimSpace(src.RSSURL) == "" {
			return nil, fmt.Errorf("source %d (%s) has no rss_url", i, src.DisplayName())
		}
	}
	return cfg.Sources, nil
}

// Fetcher downloads and normalizes feeds.
type Fetcher struct {
	Client      *http.Client
	UserAgent   string
	Timeout     time.Duration // per source
	Concurrency int
}

// FetchAll downloads every source concurrently. A failing source contributes no
// items. The result is in source order, stable-sorted by publish time, newest first.
func (f *Fetcher) FetchAll(ctx context.Context, sources []news.Source) []news.Item {
	perSource := make([][]news.Item, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.Concurrency, 1))

	var okCount int
	var mu sync.Mutex
	for i, src := range sources {
		g.Go(func() error {
			items, err := f.fetchSource(gctx, src)
			if err != nil {
				metrics.Global.IncrementFeedFailures()
				logger.Warn("Error fetching feed", "source", src.DisplayName(), "url", src.RSSURL, "error", err)
				return nil
			}
			metrics.Global.IncrementFeedsFetched()
			metrics.Global.AddItemsFetched(len(items))
			logger.Debug("Loaded feed", "source", src.DisplayName(), "items", len(items))

			perSource[i] = items
			mu.Lock()
			okCount++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var all []news.Item
	for _, items := range perSource {
		all = append(all, items...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PubDate.After(all[j].PubDate)
	})

	logger.Info("Processed RSS feeds", "ok", okCount, "total", len(sources), "items", len(all))
	return all
}

func (f *Fetcher) fetchSource(ctx context.Context, src news.Source) ([]news.Item, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	parser := gofeed.NewParser()
	if f.Client != nil {
		parser.Client = f.Client
	}
	if f.UserAgent != "" {
		parser.UserAgent = f.UserAgent
	}

	feed, err := parser.ParseURLWithContext(src.RSSURL, ctx)
	if err != nil {
		return nil, err
	}

	items := make([]news.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry == nil {
			continue
		}
		items = append(items, normalize(entry, src))
	}
	return items, nil
}

// normalize maps a feed entry to a news.Item, filling every required field.
func normalize(entry *gofeed.Item, src news.Source) news.Item {
	item := news.Item{
		Title:  strings.TrimSpace(entry.Title),
		Source: src.DisplayName(),
		GUID:   strings.TrimSpace(entry.GUID),
	}

	if src.Aggregator {
		if title, publisher, ok := splitPublisher(item.Title); ok {
			item.Title = title
			item.Source = publisher
		}
	}
	if item.Title == "" {
		item.Title = "No Title"
	}

	item.Link = strings.TrimSpace(entry.Link)
	if item.Link == "" && isHTTPURL(item.GUID) {
		item.Link = item.GUID
	}
	if item.Link == "" {
		item.Link = strings.TrimSpace(src.URL)
	}
	if item.Link == "" {
		item.Link = "#"
	}

	switch {
	case entry.PublishedParsed != nil:
		item.PubDate = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		item.PubDate = *entry.UpdatedParsed
	}

	content := entry.Description
	if strings.TrimSpace(content) == "" {
		content = entry.Content
	}
	item.Content = scraper.CleanHTML(content)

	return item
}

// splitPublisher separates a trailing " - Publisher" from an aggregator title.
func splitPublisher(title string) (string, string, bool) {
	idx := strings.LastIndex(title, " - ")
	if idx <= 0 {
		return title, "", false
	}
	head := strings.TrimSpace(title[:idx])
	publisher := strings.TrimSpace(title[idx+3:])
	if head == "" || publisher == "" {
		return title, "", false
	}
	return head, publisher, true
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
