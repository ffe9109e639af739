// Package cluster groups a batch of news items into topics with a reasoning model.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/newslens/internal/cache"
	"github.com/deusflow/newslens/internal/llm"
	"github.com/deusflow/newslens/internal/logger"
	"github.com/deusflow/newslens/internal/metrics"
	"github.com/deusflow/newslens/internal/news"
)

// ErrParse reports model output that does not match the cluster schema.
var ErrParse = errors.New("unparseable cluster response")

// Generator produces model output for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, wantJSON bool) (string, error)
}

// Cluster is a topic and the batch positions of its articles.
type Cluster struct {
	Topic          string `json:"topic"`
	MainCategory   string `json:"mainCategory"`
	ArticleIndices []int  `json:"articleIndices"`
	IsCached       bool   `json:"isCached"`
}

type Clusterer struct {
	gen         Generator
	store       cache.Store
	ttl         time.Duration
	maxClusters int
}

// New creates a clusterer. A nil store disables caching.
func New(gen Generator, store cache.Store, ttl time.Duration, maxClusters int) *Clusterer {
	return &Clusterer{gen: gen, store: store, ttl: ttl, maxClusters: maxClusters}
}

// Cluster groups items into topics. Returned indices refer to positions in items.
func (c *Clusterer) Cluster(ctx context.Context, items []news.Item) ([]Cluster, error) {
	if len(items) == 0 {
		return nil, nil
	}

	// Cached and model-facing indices are canonical positions; order maps them
	// back to this batch.
	sig, order := news.Signature(items)
	key := cache.Key("clusters", sig)

	if c.store != nil {
		if cached, ok := cache.GetJSON[[]Cluster](ctx, c.store, key, c.ttl); ok {
			clusters := toBatch(Validate(cached, len(items)), order, true)
			logger.Info("Using cached clusters", "clusters", len(clusters), "items", len(items))
			return clusters, nil
		}
	}

	out, err := c.gen.Generate(ctx, c.prompt(items, order), true)
	if err != nil {
		return nil, fmt.Errorf("cluster generation failed: %w", err)
	}

	parsed, err := Parse(out)
	if err != nil {
		metrics.Global.IncrementParseFailures()
		return nil, err
	}
	valid := Validate(parsed, len(items))

	// An answer whose clusters all fail validation is not a real "no topics" result.
	if len(parsed) > 0 && len(valid) == 0 {
		metrics.Global.IncrementParseFailures()
		logger.Warn("Model clusters all invalid, result not cached", "proposed", len(parsed), "items", len(items))
		return []Cluster{}, nil
	}

	if c.store != nil {
		if err := cache.PutJSON(ctx, c.store, key, valid); err != nil {
			logger.Warn("Failed to cache clusters", "error", err)
		}
	}

	clusters := toBatch(valid, order, false)
	logger.Info("Clustered news", "clusters", len(clusters), "items", len(items))
	return clusters, nil
}

func (c *Clusterer) prompt(items []news.Item, order []int) string {
	var list strings.Builder
	for k, idx := range order {
		fmt.Fprintf(&list, "[%d] %s (%s)\n", k, items[idx].Title, items[idx].Source)
	}

	return fmt.Sprintf(`You are a senior news editor in Taiwan.
Group the following news headlines into topics about the same event or issue.

Rules:
1. Each topic must contain at least 2 articles.
2. Return at most %d topics.
3. Rank topics covered by several different sources above single-source special reports.
4. Use a short, neutral topic name and a one-word main category (e.g. politics, society, international, finance, technology).
5. Refer to articles only by their [index].

Return a JSON array in exactly this format:
[
  { "topic": "Topic name", "mainCategory": "politics", "articleIndices": [0, 3] }
]

Headlines:
%s`, c.maxClusters, list.String())
}

// Parse decodes a cluster list, accepting an optional markdown code fence and
// either a bare array or an object with a "clusters" array.
func Parse(text string) ([]Cluster, error) {
	body := llm.StripFence(text)
	if body == "" {
		return nil, fmt.Errorf("%w: empty", ErrParse)
	}

	var list []Cluster
	if err := json.Unmarshal([]byte(body), &list); err == nil {
		if list == nil {
			return nil, fmt.Errorf("%w: null", ErrParse)
		}
		return list, nil
	}

	var wrapped struct {
		Clusters []Cluster `json:"clusters"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err != nil || wrapped.Clusters == nil {
		return nil, fmt.Errorf("%w: %.80q", ErrParse, body)
	}
	return wrapped.Clusters, nil
}

// Validate drops blank topics and out-of-range or already-claimed indices,
// then drops clusters left empty. The first cluster to name an index keeps it.
func Validate(clusters []Cluster, n int) []Cluster {
	claimed := make(map[int]bool)
	out := make([]Cluster, 0, len(clusters))

	for _, cl := range clusters {
		topic := strings.TrimSpace(cl.Topic)
		if topic == "" {
			continue
		}
		var indices []int
		for _, idx := range cl.ArticleIndices {
			if idx < 0 || idx >= n || claimed[idx] {
				continue
			}
			claimed[idx] = true
			indices = append(indices, idx)
		}
		if len(indices) == 0 {
			continue
		}
		out = append(out, Cluster{
			Topic:          topic,
			MainCategory:   strings.TrimSpace(cl.MainCategory),
			ArticleIndices: indices,
		})
	}
	return out
}

func toBatch(clusters []Cluster, order []int, cached bool) []Cluster {
	out := make([]Cluster, len(clusters))
	for i, cl := range clusters {
		indices := make([]int, len(cl.ArticleIndices))
		for j, k := range cl.ArticleIndices {
			indices[j] = order[k]
		}
		out[i] = Cluster{
			Topic:          cl.Topic,
			MainCategory:   cl.MainCategory,
			ArticleIndices: indices,
			IsCached:       cached,
		}
	}
	return out
}
