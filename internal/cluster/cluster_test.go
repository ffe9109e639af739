package cluster

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deusflow/newslens/internal/cache"
	"github.com/deusflow/newslens/internal/news"
)

type fakeGen struct {
	mu      sync.Mutex
	out     string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGen) Generate(ctx context.Context, prompt string, wantJSON bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.out, f.err
}

func titles(items []news.Item, indices []int) []string {
	var out []string
	for _, i := range indices {
		out = append(out, items[i].Title)
	}
	sort.Strings(out)
	return out
}

func TestClusterEmptyInput(t *testing.T) {
	gen := &fakeGen{}
	c := New(gen, cache.NewMemory(), time.Hour, 15)
	got, err := c.Cluster(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Cluster(nil) = %v, %v", got, err)
	}
	if gen.calls != 0 {
		t.Error("model called for empty input")
	}
}

func TestClusterCachesAcrossPermutations(t *testing.T) {
	items := []news.Item{
		{Title: "B story", Source: "X"},
		{Title: "A story", Source: "Y"},
		{Title: "C story", Source: "Z"},
	}
	gen := &fakeGen{out: "```json\n[{\"topic\":\"T\",\"mainCategory\":\"politics\",\"articleIndices\":[0,1]}]\n```"}
	c := New(gen, cache.NewMemory(), time.Hour, 15)
	ctx := context.Background()

	first, err := c.Cluster(ctx, items)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(first) != 1 || first[0].IsCached {
		t.Fatalf("first = %+v", first)
	}
	if got := titles(items, first[0].ArticleIndices); strings.Join(got, ",") != "A story,B story" {
		t.Errorf("first cluster titles = %v", got)
	}
	if !strings.Contains(gen.prompts[0], "[0] A story (Y)") {
		t.Errorf("prompt should list canonical order:\n%s", gen.prompts[0])
	}

	permuted := []news.Item{items[2], items[1], items[0]}
	second, err := c.Cluster(ctx, permuted)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("model calls = %d, want 1", gen.calls)
	}
	if len(second) != 1 || !second[0].IsCached {
		t.Fatalf("second = %+v", second)
	}
	if got := titles(permuted, second[0].ArticleIndices); strings.Join(got, ",") != "A story,B story" {
		t.Errorf("cached cluster titles = %v", got)
	}
}

func TestClusterGatewayError(t *testing.T) {
	sentinel := errors.New("exhausted")
	store := cache.NewMemory()
	c := New(&fakeGen{err: sentinel}, store, time.Hour, 15)

	_, err := c.Cluster(context.Background(), []news.Item{{Title: "a", Source: "s"}})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want wrapped sentinel", err)
	}
	if store.Len() != 0 {
		t.Error("failure was cached")
	}
}

func TestClusterParseFailureNotCached(t *testing.T) {
	store := cache.NewMemory()
	c := New(&fakeGen{out: "Sure! Here are the clusters."}, store, time.Hour, 15)

	_, err := c.Cluster(context.Background(), []news.Item{{Title: "a", Source: "s"}})
	if !errors.Is(err, ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
	if store.Len() != 0 {
		t.Error("parse failure was cached")
	}
}

func TestClusterNullAnswerNotCached(t *testing.T) {
	store := cache.NewMemory()
	c := New(&fakeGen{out: "null"}, store, time.Hour, 15)

	_, err := c.Cluster(context.Background(), []news.Item{{Title: "a", Source: "s"}})
	if !errors.Is(err, ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
	if store.Len() != 0 {
		t.Error("null answer was cached")
	}
}

func TestClusterAllInvalidNotCached(t *testing.T) {
	store := cache.NewMemory()
	gen := &fakeGen{out: `[{"topic":"T","articleIndices":[99]}]`}
	c := New(gen, store, time.Hour, 15)
	items := []news.Item{{Title: "a", Source: "s"}, {Title: "b", Source: "s"}}

	got, err := c.Cluster(context.Background(), items)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %+v, want no clusters", got)
	}
	if store.Len() != 0 {
		t.Error("all-invalid answer was cached")
	}

	// The next run asks the model again.
	if _, err := c.Cluster(context.Background(), items); err != nil {
		t.Fatal(err)
	}
	if gen.calls != 2 {
		t.Errorf("calls = %d, want 2", gen.calls)
	}
}

func TestClusterEmptyAnswerCached(t *testing.T) {
	store := cache.NewMemory()
	gen := &fakeGen{out: "[]"}
	c := New(gen, store, time.Hour, 15)
	items := []news.Item{{Title: "a", Source: "s"}}

	for i := 0; i < 2; i++ {
		if _, err := c.Cluster(context.Background(), items); err != nil {
			t.Fatal(err)
		}
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1", gen.calls)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"topic":"a","articleIndices":[1]}]`, 1, false},
		{"fenced", "```json\n[{\"topic\":\"a\",\"articleIndices\":[1]},{\"topic\":\"b\",\"articleIndices\":[2]}]\n```", 2, false},
		{"fence without tag", "```\n[]\n```", 0, false},
		{"wrapped object", `{"clusters":[{"topic":"a","articleIndices":[0]}]}`, 1, false},
		{"prose", "no json here", 0, true},
		{"empty", "  ", 0, true},
		{"wrong object", `{"topic":"a"}`, 0, true},
		{"null", "null", 0, true},
		{"upper fence", "```JSON\n[{\"topic\":\"a\",\"articleIndices\":[0]}]\n```", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	in := []Cluster{
		{Topic: " X ", ArticleIndices: []int{0, 3, 3, 9, -1}},
		{Topic: "", ArticleIndices: []int{1}},
		{Topic: "Y", ArticleIndices: []int{3, 1, 5}},
		{Topic: "Z", ArticleIndices: []int{10, 11}},
		{Topic: "W", ArticleIndices: []int{0}},
	}
	got := Validate(in, 8)
	if len(got) != 2 {
		t.Fatalf("got %d clusters, want 2: %+v", len(got), got)
	}
	if got[0].Topic != "X" || len(got[0].ArticleIndices) != 2 || got[0].ArticleIndices[1] != 3 {
		t.Errorf("cluster X = %+v", got[0])
	}
	if got[1].Topic != "Y" || len(got[1].ArticleIndices) != 2 || got[1].ArticleIndices[0] != 1 {
		t.Errorf("cluster Y = %+v", got[1])
	}
}
