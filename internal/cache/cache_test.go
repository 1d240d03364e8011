package cache

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"creatorfeed/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newMemory(t *testing.T, maxEntries int) (*Tiered, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New(nil, maxEntries, discardLogger())
	c.now = clk.now
	return c, clk
}

func TestKey(t *testing.T) {
	a := Key("videos", "UC1", "UC2")
	if a != Key("videos", "UC1", "UC2") {
		t.Error("Key is not deterministic")
	}
	if a == Key("videos", "UC1|UC2", "") {
		t.Error("separator collision should still differ by part count")
	}
	if a == Key("search", "UC1", "UC2") {
		t.Error("prefix must be part of the key")
	}
}

func TestMemoryGetSetExpiry(t *testing.T) {
	c, clk := newMemory(t, 10)
	ctx := context.Background()

	want := []model.Channel{{ID: "UC1", Title: "One"}}
	c.Set(ctx, "k", want, time.Minute)

	var got []model.Channel
	if !c.Get(ctx, "k", &got) {
		t.Fatal("expected hit")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}

	clk.t = clk.t.Add(2 * time.Minute)
	if c.Get(ctx, "k", &got) {
		t.Error("expected miss after expiry")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 1 {
		t.Errorf("stats = %d/%d, want 1/1", hits, misses)
	}
}

func TestEvictsOldestWhenFull(t *testing.T) {
	c, clk := newMemory(t, 2)
	ctx := context.Background()

	c.Set(ctx, "a", 1, time.Minute)
	clk.t = clk.t.Add(time.Second)
	c.Set(ctx, "b", 2, time.Minute)
	clk.t = clk.t.Add(time.Second)
	c.Set(ctx, "c", 3, time.Minute)

	if got := c.Len(); got != 2 {
		t.Errorf("Len = %d, want 2", got)
	}
	var v int
	if c.Get(ctx, "a", &v) {
		t.Error("oldest entry should be evicted")
	}
	if !c.Get(ctx, "c", &v) || v != 3 {
		t.Errorf("newest entry missing, got %d", v)
	}
}

func TestEvictsExpiredFirst(t *testing.T) {
	c, clk := newMemory(t, 2)
	ctx := context.Background()

	c.Set(ctx, "long", 1, time.Hour)
	c.Set(ctx, "short", 2, time.Second)
	clk.t = clk.t.Add(time.Minute)
	c.Set(ctx, "new", 3, time.Hour)

	var v int
	if !c.Get(ctx, "long", &v) {
		t.Error("unexpired entry should survive eviction")
	}
	if c.Get(ctx, "short", &v) {
		t.Error("expired entry should be gone")
	}
}

func TestRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	writer := New(rdb, 10, discardLogger())
	writer.Set(ctx, "shared", model.OEmbed{Embeddable: true, Title: "Sunset"}, OEmbedTTL)

	if !mr.Exists("shared") {
		t.Fatal("value not written to redis")
	}
	if ttl := mr.TTL("shared"); ttl != OEmbedTTL {
		t.Errorf("redis ttl = %v, want %v", ttl, OEmbedTTL)
	}

	reader := New(rdb, 10, discardLogger())
	var got model.OEmbed
	if !reader.Get(ctx, "shared", &got) {
		t.Fatal("expected L2 hit")
	}
	if diff := cmp.Diff(model.OEmbed{Embeddable: true, Title: "Sunset"}, got); diff != "" {
		t.Errorf("value mismatch (-want +got):\n%s", diff)
	}
	if reader.Len() != 1 {
		t.Errorf("L2 hit should populate L1, Len = %d", reader.Len())
	}

	mr.FastForward(OEmbedTTL + time.Second)
	fresh := New(rdb, 10, discardLogger())
	if fresh.Get(ctx, "shared", &got) {
		t.Error("expected miss after redis expiry")
	}
}

func TestRedisMissIsNotAnError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	var buf bytes.Buffer
	c := New(rdb, 10, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	var got model.OEmbed
	if c.Get(ctx, "absent", &got) {
		t.Fatal("expected miss")
	}
	if strings.Contains(buf.String(), "redis get failed") {
		t.Errorf("plain miss logged as failure:\n%s", buf.String())
	}

	mr.Close()
	if c.Get(ctx, "absent", &got) {
		t.Fatal("expected miss with redis down")
	}
	if !strings.Contains(buf.String(), "redis get failed") {
		t.Error("redis failure not logged")
	}

	_, misses := c.Stats()
	if diff := cmp.Diff(int64(2), misses); diff != "" {
		t.Errorf("misses mismatch (-want +got):\n%s", diff)
	}
}

func TestDialEmptyURL(t *testing.T) {
	if rdb := Dial(context.Background(), "", discardLogger()); rdb != nil {
		t.Error("empty url should disable redis")
	}
	if rdb := Dial(context.Background(), "not a url", discardLogger()); rdb != nil {
		t.Error("invalid url should disable redis")
	}
}

func TestDialMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := Dial(context.Background(), "redis://"+mr.Addr(), discardLogger())
	if rdb == nil {
		t.Fatal("expected a connected client")
	}
	_ = rdb.Close()
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	c, clk := newMemory(t, 10)

	c.Set(ctx, "short", 1, time.Minute)
	c.Set(ctx, "long", 2, time.Hour)
	clk.t = clk.t.Add(2 * time.Minute)

	if diff := cmp.Diff(1, c.Sweep()); diff != "" {
		t.Errorf("removed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, c.Len()); diff != "" {
		t.Errorf("len mismatch (-want +got):\n%s", diff)
	}
}
