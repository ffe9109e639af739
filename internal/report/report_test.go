package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deusflow/newslens/internal/news"
	"github.com/deusflow/newslens/internal/synthesis"
)

func TestSaveEmptyReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "latest-report.json")
	if err := Save(path, New(time.Now())); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"clusteredTopics": []`, `"unclusteredNews": []`, `"updatedAt"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("report missing %s:\n%s", want, data)
		}
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "r.json")
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	item := news.Item{Title: "t", Link: "https://x.example", Source: "X", PubDate: now}

	r := New(now)
	r.ClusteredTopics = append(r.ClusteredTopics, Topic{
		Topic:            "T",
		Synthesis:        &synthesis.Synthesis{Title: "Neutral", FactList: []string{"f"}},
		OriginalArticles: []news.Item{item},
	})
	r.UnclusteredNews = append(r.UnclusteredNews, item)

	if err := Save(path, r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Overwrite keeps a single valid file.
	if err := Save(path, r); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.UpdatedAt.Equal(now) || len(got.ClusteredTopics) != 1 || got.ClusteredTopics[0].Synthesis.Title != "Neutral" {
		t.Errorf("loaded %+v", got)
	}
	if len(got.UnclusteredNews) != 1 || got.UnclusteredNews[0] != item {
		t.Errorf("unclustered = %+v", got.UnclusteredNews)
	}
}

func TestSaveUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Save(filepath.Join(blocker, "report.json"), New(time.Now())); err == nil {
		t.Fatal("expected error when parent is a file")
	}
}
