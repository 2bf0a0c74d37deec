package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/cvlacsync/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("http://example.com/a")
	b := Key("http://example.com/b")

	if a == b {
		t.Error("different URLs must produce different keys")
	}
	if a != Key("http://example.com/a") {
		t.Error("key must be stable")
	}
	if !strings.HasPrefix(a, "cvlacsync:page:v1:") {
		t.Errorf("unexpected key prefix: %s", a)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
	_ = c.Set("k", []byte("v"), 0)
	if got, ok := c.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("Get = (%q, %v)", got, ok)
	}
	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}

	_ = c.Set("a", []byte("1"), 0)
	_ = c.Clear()
	if _, ok := c.Get("a"); ok {
		t.Error("expected miss after clear")
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	key := Key("http://example.com")
	if err := c.Set(key, []byte("<html>"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, ok := c.Get(key); !ok || string(got) != "<html>" {
		t.Fatalf("Get = (%q, %v)", got, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}
	if err := c.Delete(key); err != nil {
		t.Errorf("deleting a missing entry should not fail: %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	c := NewLayeredCache(time.Minute, dir, time.Hour)

	// a second cache over the same directory starts with a cold memory layer
	if err := NewDiskCache(dir, time.Hour).Set("k", []byte("disk"), 0); err != nil {
		t.Fatalf("seed disk: %v", err)
	}

	got, ok := c.Get("k")
	if !ok || string(got) != "disk" {
		t.Fatalf("Get = (%q, %v)", got, ok)
	}
	if got, ok := c.memory.Get("k"); !ok || string(got) != "disk" {
		t.Error("disk hit was not promoted to memory")
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after clear")
	}
}

func TestPages(t *testing.T) {
	mem := NewMemoryCache(time.Minute, time.Minute)
	pages := NewPages(mem, time.Minute)

	page := &model.Page{URL: "http://cvlac/1", StatusCode: 200, ContentType: "text/html", Body: []byte("<p>Ana</p>")}
	if err := pages.Put(page.URL, page); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok := pages.Get(page.URL)
	if !ok {
		t.Fatal("Expected a hit after Put")
	}
	if string(got.Body) != "<p>Ana</p>" || got.ContentType != "text/html" {
		t.Errorf("Unexpected page: %+v", got)
	}

	if err := pages.Forget(page.URL); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if _, ok := pages.Get(page.URL); ok {
		t.Error("Expected a miss after Forget")
	}

	if err := mem.Set(Key("http://cvlac/2"), []byte("{broken"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := pages.Get("http://cvlac/2"); ok {
		t.Error("Expected corrupt entry to miss")
	}
	if _, ok := mem.Get(Key("http://cvlac/2")); ok {
		t.Error("Expected corrupt entry to be dropped")
	}
}

func TestPages_NilNeverHits(t *testing.T) {
	var pages *Pages
	if err := pages.Put("http://x", &model.Page{}); err != nil {
		t.Errorf("Expected nil Put to be a no-op, got %v", err)
	}
	if _, ok := pages.Get("http://x"); ok {
		t.Error("Expected nil cache to miss")
	}
	if err := pages.Forget("http://x"); err != nil {
		t.Errorf("Expected nil Forget to be a no-op, got %v", err)
	}
}
