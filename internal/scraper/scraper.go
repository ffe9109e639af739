package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/deusflow/newslens/internal/logger"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"
)

const maxPageBytes = 5 << 20

// ArticleContent is full article content
type ArticleContent struct {
	Title   string
	Content string
	URL     string
}

// Scraper downloads article pages and extracts their readable text.
type Scraper struct {
	client    *http.Client
	userAgent string
}

func New(timeout time.Duration, userAgent string) *Scraper {
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// CleanHTML strips markup from a feed snippet and collapses whitespace.
func CleanHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	doc.Find("script, style").Remove()
	doc.Find("p, br, div, li").AfterHtml(" ")
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExtractFullArticle gets full text of article by URL
func (s *Scraper) ExtractFullArticle(ctx context.Context, pageURL string) (*ArticleContent, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("not an http url: %q", pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading page: %w", err)
	}

	article := &ArticleContent{URL: pageURL}
	if ra, err := readability.FromReader(bytes.NewReader(body), parsed); err == nil {
		article.Title = strings.TrimSpace(ra.Title)
		article.Content = cleanContent(ra.TextContent)
	} else {
		logger.Debug("Readability failed, using selector fallback", "url", pageURL, "error", err)
	}

	if article.Content == "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("error parsing HTML: %w", err)
		}
		article.Content = cleanContent(extractGenericContent(doc))
		if article.Title == "" {
			article.Title = extractTitle(doc)
		}
	}

	if article.Content == "" {
		return nil, fmt.Errorf("can't get content")
	}
	return article, nil
}

// extractGenericContent is universal parser for any site
func extractGenericContent(doc *goquery.Document) string {
	var paragraphs []string

	selectors := []string{
		"article p",
		".article p",
		".content p",
		".post-content p",
		".entry-content p",
		"main p",
		"#content p",
		"p",
	}

	for _, selector := range selectors {
		doc.Find(selector).Each(func(i int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if utf8.RuneCountInString(text) > 20 {
				paragraphs = append(paragraphs, text)
			}
		})
		if len(paragraphs) >= 3 { // If we find 3 paragraphs, it's enough
			break
		}
	}

	return strings.Join(paragraphs, "\n\n")
}

// extractTitle gets article title
func extractTitle(doc *goquery.Document) string {
	for _, selector := range []string{"h1", "title", ".article-title", ".headline"} {
		if title := strings.TrimSpace(doc.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

// cleanContent normalizes whitespace inside paragraphs and drops boilerplate lines.
func cleanContent(content string) string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		line = collapse(line)
		if utf8.RuneCountInString(line) < 8 {
			continue
		}
		if isJunk(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n\n")
}

var junkIndicators = []string{
	"cookie", "gdpr", "subscribe", "newsletter", "all rights reserved",
	"訂閱", "版權所有", "延伸閱讀", "廣告",
}

func isJunk(line string) bool {
	lower := strings.ToLower(line)
	for _, indicator := range junkIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// ExtractArticles fetches the given pages with at most concurrency requests in
// flight. Failures are logged and omitted from the result.
func (s *Scraper) ExtractArticles(ctx context.Context, urls []string, concurrency int) map[string]*ArticleContent {
	var (
		mu     sync.Mutex
		result = make(map[string]*ArticleContent, len(urls))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for _, u := range urls {
		g.Go(func() error {
			article, err := s.ExtractFullArticle(gctx, u)
			if err != nil {
				logger.Warn("Can't get article content", "url", u, "error", err)
				return nil
			}
			mu.Lock()
			result[u] = article
			mu.Unlock()
			logger.Debug("Got article content", "url", u, "runes", utf8.RuneCountInString(article.Content))
			return nil
		})
	}
	_ = g.Wait()

	return result
}
