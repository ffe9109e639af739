// Package synthesis produces a balanced, multi-source write-up for one topic.
package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deusflow/newslens/internal/cache"
	"github.com/deusflow/newslens/internal/llm"
	"github.com/deusflow/newslens/internal/logger"
	"github.com/deusflow/newslens/internal/metrics"
	"github.com/deusflow/newslens/internal/news"
)

var (
	// ErrNoArticles is returned for an empty article list; no model call is made.
	ErrNoArticles = errors.New("no articles to synthesize")
	// ErrParse reports model output that does not match the synthesis schema.
	ErrParse = errors.New("unparseable synthesis response")
)

// Generator produces model output for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, wantJSON bool) (string, error)
}

type Viewpoint struct {
	Source    string `json:"source"`
	Viewpoint string `json:"viewpoint"`
}

// Synthesis is the balanced report for one cluster.
type Synthesis struct {
	Title                string      `json:"title"`
	Summary              string      `json:"summary"`
	FactList             []string    `json:"factList"`
	ViewpointDifferences []Viewpoint `json:"viewpointDifferences"`
	BalancedContent      string      `json:"balancedContent"`
	IsCached             bool        `json:"isCached"`
}

type Synthesizer struct {
	gen             Generator
	store           cache.Store
	ttl             time.Duration
	maxContentRunes int
}

// New creates a synthesizer. A nil store disables caching.
func New(gen Generator, store cache.Store, ttl time.Duration, maxContentRunes int) *Synthesizer {
	return &Synthesizer{gen: gen, store: store, ttl: ttl, maxContentRunes: maxContentRunes}
}

// Synthesize writes a balanced report on topic from articles.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string, articles []news.Item) (*Synthesis, error) {
	if len(articles) == 0 {
		return nil, ErrNoArticles
	}

	sig, _ := news.Signature(articles)
	key := cache.Key("synthesis:"+topic, sig)
	log := logger.With("topic", topic)

	if s.store != nil {
		if cached, ok := cache.GetJSON[Synthesis](ctx, s.store, key, s.ttl); ok {
			if valid, err := validate(cached); err == nil {
				valid.IsCached = true
				log.Info("Using cached synthesis")
				return valid, nil
			}
		}
	}

	out, err := s.gen.Generate(ctx, s.prompt(topic, articles), true)
	if err != nil {
		return nil, fmt.Errorf("synthesis generation failed: %w", err)
	}

	result, err := Parse(out)
	if err != nil {
		metrics.Global.IncrementParseFailures()
		return nil, err
	}

	if s.store != nil {
		if err := cache.PutJSON(ctx, s.store, key, result); err != nil {
			log.Warn("Failed to cache synthesis", "error", err)
		}
	}

	log.Info("Synthesized topic", "articles", len(articles), "facts", len(result.FactList))
	return result, nil
}

func (s *Synthesizer) prompt(topic string, articles []news.Item) string {
	var blocks strings.Builder
	for i, a := range articles {
		fmt.Fprintf(&blocks, "[Article %d]\nSource: %s\nTitle: %s\nContent: %s\n\n",
			i+1, a.Source, a.Title, Truncate(a.Content, s.maxContentRunes))
	}

	return fmt.Sprintf(`You are an expert, neutral news editor and analyst in Taiwan.
Analyze the following news articles about the topic: %q.
The articles may come from sources with different political leanings.

Tasks:
1. Identify the facts reported consistently across sources.
2. Identify each source's specific viewpoint or subjective interpretation.
3. Write a neutral, objective report covering the key information without bias.
4. Write a neutral title.

Return JSON in exactly this format:
{
  "title": "A neutral title",
  "summary": "A short summary of the event (2-3 sentences)",
  "factList": ["Fact 1", "Fact 2"],
  "viewpointDifferences": [
    { "source": "Source name", "viewpoint": "How this source frames the event" }
  ],
  "balancedContent": "A full-length, objective article combining all facts."
}

Articles:
%s`, topic, blocks.String())
}

// Truncate collapses whitespace and limits content to maxRunes, cutting at the
// last sentence end when one is reasonably close.
func Truncate(content string, maxRunes int) string {
	content = strings.Join(strings.Fields(content), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(content) <= maxRunes {
		return content
	}

	runes := []rune(content)
	trimmed := string(runes[:maxRunes])
	cut := -1
	for _, end := range []string{". ", "。", "！", "？", "! ", "? "} {
		if idx := strings.LastIndex(trimmed, end); idx >= 0 && idx+len(end) > cut {
			cut = idx + len(end)
		}
	}
	if cut > len(trimmed)/2 {
		trimmed = trimmed[:cut]
	}
	return strings.TrimSpace(trimmed) + " [TRUNCATED]"
}

// Parse decodes and validates a synthesis object.
func Parse(text string) (*Synthesis, error) {
	body := llm.StripFence(text)

	var out Synthesis
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return validate(out)
}

// validate trims fields, drops blank facts and viewpoints, and requires a
// title or a balanced narrative.
func validate(s Synthesis) (*Synthesis, error) {
	out := &Synthesis{
		Title:           strings.TrimSpace(s.Title),
		Summary:         strings.TrimSpace(s.Summary),
		BalancedContent: strings.TrimSpace(s.BalancedContent),
	}
	if out.Title == "" && out.BalancedContent == "" {
		return nil, fmt.Errorf("%w: missing title and balancedContent", ErrParse)
	}

	out.FactList = []string{}
	out.ViewpointDifferences = []Viewpoint{}

	for _, f := range s.FactList {
		if f = strings.TrimSpace(f); f != "" {
			out.FactList = append(out.FactList, f)
		}
	}
	for _, v := range s.ViewpointDifferences {
		v.Source = strings.TrimSpace(v.Source)
		v.Viewpoint = strings.TrimSpace(v.Viewpoint)
		if v.Source == "" || v.Viewpoint == "" {
			continue
		}
		out.ViewpointDifferences = append(out.ViewpointDifferences, v)
	}
	return out, nil
}
