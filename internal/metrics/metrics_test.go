package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCountersAndReset(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	m.IncrementCacheHits()
	m.IncrementCacheHits()
	m.AddDuplicatesFiltered(3)
	m.RecordProcessingTime(2 * time.Second)
	m.RecordProcessingTime(4 * time.Second)

	stats := m.GetStats()
	if stats["cache_hits"] != int64(2) || stats["duplicates_filtered"] != int64(3) {
		t.Errorf("stats = %v", stats)
	}
	if stats["average_processing_time_ms"] != int64(3000) {
		t.Errorf("average = %v, want 3000", stats["average_processing_time_ms"])
	}
	if len(m.LogArgs())%2 != 0 {
		t.Error("LogArgs must be key/value pairs")
	}

	m.Reset()
	if m.GetStats()["cache_hits"] != int64(0) {
		t.Error("Reset did not zero counters")
	}
}

func TestHealthEndpoint(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthy status = %d", resp.StatusCode)
	}

	m.SetError("report write failed")
	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "error" || body["last_error"] != "report write failed" {
		t.Errorf("body = %v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := &Metrics{IsHealthy: true}
	m.IncrementModelCalls()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["model_calls"] != float64(1) {
		t.Errorf("model_calls = %v", body["model_calls"])
	}
}
