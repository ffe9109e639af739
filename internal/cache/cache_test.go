package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestKeyDeterministic(t *testing.T) {
	a := Key("clusters", "same content")
	b := Key("clusters", "same content")
	c := Key("clusters", "other content")
	d := Key("synthesis:topic", "same content")

	if a != b {
		t.Errorf("same input produced %q and %q", a, b)
	}
	if a == c || a == d {
		t.Error("different input should produce different keys")
	}
	if !strings.HasPrefix(a, "clusters_") || len(a) != len("clusters_")+32 {
		t.Errorf("unexpected key shape %q", a)
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	payload := []byte(`{"a":1}`)

	if err := m.Put(ctx, "k", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok := m.Get(ctx, "k", time.Hour)
	if !ok || string(got) != string(payload) {
		t.Fatalf("Get = %q, %v", got, ok)
	}
}

func TestMemoryExpiry(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	m := NewMemory()
	m.SetClock(clk.now)
	ctx := context.Background()

	_ = m.Put(ctx, "k", []byte(`"v"`))

	clk.t = clk.t.Add(time.Minute)
	if _, ok := m.Get(ctx, "k", time.Minute); !ok {
		t.Fatal("entry exactly ttl old should still be served")
	}

	clk.t = clk.t.Add(time.Millisecond)
	if _, ok := m.Get(ctx, "k", time.Minute); ok {
		t.Fatal("entry older than ttl should be absent")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not evicted, len = %d", m.Len())
	}
}

func TestMemoryZeroTTLNeverServes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, "k", []byte(`1`))
	if _, ok := m.Get(ctx, "k", 0); ok {
		t.Fatal("ttl 0 should miss")
	}
	if m.Len() != 1 {
		t.Error("ttl 0 read should not evict")
	}
}

func TestMemoryCleanup(t *testing.T) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	m := NewMemory()
	m.SetClock(clk.now)
	ctx := context.Background()

	_ = m.Put(ctx, "old", []byte(`1`))
	clk.t = clk.t.Add(2 * time.Hour)
	_ = m.Put(ctx, "fresh", []byte(`2`))

	if removed, _ := m.Cleanup(ctx, 0); removed != 0 {
		t.Errorf("ttl 0 removed %d", removed)
	}
	if removed, _ := m.Cleanup(ctx, time.Hour); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestJSONHelpers(t *testing.T) {
	type payload struct {
		Topic   string `json:"topic"`
		Indices []int  `json:"indices"`
	}
	m := NewMemory()
	ctx := context.Background()

	in := payload{Topic: "X", Indices: []int{0, 3}}
	if err := PutJSON(ctx, m, "k", in); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	out, ok := GetJSON[payload](ctx, m, "k", time.Hour)
	if !ok || out.Topic != "X" || len(out.Indices) != 2 || out.Indices[1] != 3 {
		t.Fatalf("GetJSON = %+v, %v", out, ok)
	}

	_ = m.Put(ctx, "bad", []byte(`not json`))
	if _, ok := GetJSON[payload](ctx, m, "bad", time.Hour); ok {
		t.Fatal("undecodable payload should be a miss")
	}
}
