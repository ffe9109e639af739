package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCleanHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain   text\n here", "plain text here"},
		{"<p>Hello <b>world</b></p><p>again</p>", "Hello world again"},
		{"<div>Tom &amp; Jerry</div>", "Tom & Jerry"},
		{`<p>x</p><script>alert(1)</script>`, "x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanHTML(tt.in); got != tt.want {
			t.Errorf("CleanHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

const articlePage = `<!doctype html>
<html><head><title>Budget vote delayed</title></head>
<body>
<header><a href="/">Home</a></header>
<article>
<h1>Budget vote delayed</h1>
<p>The legislature postponed the budget vote until next week after a dispute over defence spending.</p>
<p>Opposition lawmakers said the proposal lacked detail on how the new procurement would be funded.</p>
<p>The cabinet said it expected the vote to pass once the committee finished its review of the figures.</p>
</article>
</body></html>`

func TestExtractFullArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "newslens-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	s := New(5*time.Second, "newslens-test")
	article, err := s.ExtractFullArticle(context.Background(), srv.URL+"/a")
	if err != nil {
		t.Fatalf("ExtractFullArticle: %v", err)
	}
	if !strings.Contains(article.Content, "postponed the budget vote") {
		t.Errorf("content missing body text: %q", article.Content)
	}
}

func TestCleanContentDropsBoilerplate(t *testing.T) {
	in := "The legislature postponed the vote.\n\n  Subscribe to our newsletter  \nok\nOpposition   lawmakers objected."
	want := "The legislature postponed the vote.\n\nOpposition lawmakers objected."
	if got := cleanContent(in); got != want {
		t.Errorf("cleanContent = %q, want %q", got, want)
	}
}

func TestExtractFullArticleHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	s := New(5*time.Second, "")
	if _, err := s.ExtractFullArticle(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := s.ExtractFullArticle(context.Background(), "#"); err == nil {
		t.Fatal("expected error for non-http link")
	}
}

func TestExtractArticlesSkipsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	s := New(5*time.Second, "")
	got := s.ExtractArticles(context.Background(), []string{srv.URL + "/ok", srv.URL + "/bad"}, 2)
	if len(got) != 1 {
		t.Fatalf("got %d articles, want 1", len(got))
	}
	if _, ok := got[srv.URL+"/ok"]; !ok {
		t.Error("successful page missing")
	}
}
