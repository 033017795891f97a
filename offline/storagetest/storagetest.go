// Package storagetest holds a conformance suite for offline.Storage
// implementations.
package storagetest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/wasm-shell/offline"
)

// Run exercises s. newStorage must return an empty storage on every call.
func Run(t *testing.T, newStorage func(t *testing.T) offline.Storage) {
	t.Helper()

	t.Run("OpenCreates", func(t *testing.T) {
		testOpenCreates(t, newStorage(t))
	})
	t.Run("PutAllMatch", func(t *testing.T) {
		testPutAllMatch(t, newStorage(t))
	})
	t.Run("DeleteAndKeys", func(t *testing.T) {
		testDeleteAndKeys(t, newStorage(t))
	})
	t.Run("ConcurrentReads", func(t *testing.T) {
		testConcurrentReads(t, newStorage(t))
	})
}

func testOpenCreates(t *testing.T, s offline.Storage) {
	ctx := context.Background()

	ok, err := s.Has(ctx, "shell-v1")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if ok {
		t.Fatal("empty storage reports cache present")
	}

	c, err := s.Open(ctx, "shell-v1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	keys, err := c.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("new cache has keys %v", keys)
	}

	ok, err = s.Has(ctx, "shell-v1")
	if err != nil || !ok {
		t.Fatalf("Has after Open = %v, %v", ok, err)
	}
}

func testPutAllMatch(t *testing.T, s offline.Storage) {
	ctx := context.Background()

	c, err := s.Open(ctx, "shell-v1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	stored := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	entries := []offline.Entry{
		{
			Key:      "/index.html",
			Status:   http.StatusOK,
			Header:   http.Header{"Content-Type": {"text/html"}},
			Body:     []byte("<html></html>"),
			StoredAt: stored,
		},
		{
			Key:      "/app.js?v=2",
			Status:   http.StatusOK,
			Header:   http.Header{"Content-Type": {"text/javascript"}},
			Body:     []byte("init()"),
			StoredAt: stored,
		},
	}
	if err := c.PutAll(ctx, entries); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	e, ok, err := c.Match(ctx, "/index.html")
	if err != nil || !ok {
		t.Fatalf("Match = %v, %v", ok, err)
	}
	if string(e.Body) != "<html></html>" {
		t.Errorf("Body = %q", e.Body)
	}
	if e.Status != http.StatusOK {
		t.Errorf("Status = %d", e.Status)
	}
	if got := e.Header.Get("Content-Type"); got != "text/html" {
		t.Errorf("Content-Type = %q", got)
	}
	if !e.StoredAt.Equal(stored) {
		t.Errorf("StoredAt = %v, want %v", e.StoredAt, stored)
	}

	if _, ok, _ := c.Match(ctx, "/app.js"); ok {
		t.Error("match ignored the query")
	}
	if _, ok, _ := c.Match(ctx, "/app.js?v=2"); !ok {
		t.Error("exact key with query missed")
	}

	keys, err := c.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "/app.js?v=2" || keys[1] != "/index.html" {
		t.Errorf("Keys = %v", keys)
	}

	// Replacing an entry keeps a single row per key.
	entries[0].Body = []byte("<html>v2</html>")
	if err := c.PutAll(ctx, entries[:1]); err != nil {
		t.Fatalf("PutAll replace: %v", err)
	}
	e, _, _ = c.Match(ctx, "/index.html")
	if string(e.Body) != "<html>v2</html>" {
		t.Errorf("replaced Body = %q", e.Body)
	}
}

func testDeleteAndKeys(t *testing.T, s offline.Storage) {
	ctx := context.Background()

	for _, name := range []string{"shell-v2", "shell-v1", "other-v1"} {
		c, err := s.Open(ctx, name)
		if err != nil {
			t.Fatalf("Open %s: %v", name, err)
		}
		if err := c.PutAll(ctx, []offline.Entry{{Key: "/", Status: 200, Body: []byte(name)}}); err != nil {
			t.Fatalf("PutAll %s: %v", name, err)
		}
	}

	names, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(names) != 3 || names[0] != "other-v1" || names[1] != "shell-v1" || names[2] != "shell-v2" {
		t.Fatalf("Keys = %v", names)
	}

	deleted, err := s.Delete(ctx, "shell-v1")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	deleted, err = s.Delete(ctx, "shell-v1")
	if err != nil || deleted {
		t.Fatalf("second Delete = %v, %v", deleted, err)
	}

	if ok, _ := s.Has(ctx, "shell-v1"); ok {
		t.Error("deleted cache still present")
	}

	// Other caches keep their entries.
	c, _ := s.Open(ctx, "shell-v2")
	e, ok, err := c.Match(ctx, "/")
	if err != nil || !ok || string(e.Body) != "shell-v2" {
		t.Errorf("surviving cache Match = %v, %v, %v", e, ok, err)
	}

	// Reopening a deleted cache starts empty.
	c, _ = s.Open(ctx, "shell-v1")
	if _, ok, _ := c.Match(ctx, "/"); ok {
		t.Error("reopened cache kept old entries")
	}
}

func testConcurrentReads(t *testing.T, s offline.Storage) {
	ctx := context.Background()

	c, err := s.Open(ctx, "shell-v1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.PutAll(ctx, []offline.Entry{{Key: "/a", Status: 200, Body: []byte("a")}}); err != nil {
		t.Fatalf("PutAll: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.Match(ctx, "/a"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Match: %v", err)
	}
}
