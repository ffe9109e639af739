// Package report defines the JSON artifact consumed by the presentation layer.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/deusflow/newslens/internal/news"
	"github.com/deusflow/newslens/internal/synthesis"
)

type Topic struct {
	Topic            string               `json:"topic"`
	Synthesis        *synthesis.Synthesis `json:"synthesis"`
	OriginalArticles []news.Item          `json:"originalArticles"`
}

type Report struct {
	UpdatedAt       time.Time   `json:"updatedAt"`
	ClusteredTopics []Topic     `json:"clusteredTopics"`
	UnclusteredNews []news.Item `json:"unclusteredNews"`
}

// New returns an empty report stamped with now. Lists marshal as [] rather than null.
func New(now time.Time) *Report {
	return &Report{
		UpdatedAt:       now.UTC(),
		ClusteredTopics: []Topic{},
		UnclusteredNews: []news.Item{},
	}
}

// Save writes the report as indented JSON, replacing path atomically.
func Save(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}

// Load reads a report written by Save.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}
