package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newCache(t *testing.T, capacity int, maxSize int64) *LRUCache {
	t.Helper()
	c, err := NewLRUCache(capacity, maxSize)
	if err != nil {
		t.Fatalf("NewLRUCache() failed: %v", err)
	}
	return c
}

func TestLRUCacheEvictsByCount(t *testing.T) {
	c := newCache(t, 2, 1<<20)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	c.Get("a")
	c.Set("c", []byte("3"))

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry survived")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("recently used entry evicted")
	}
	if c.Len() != 2 || c.Size() != 2 {
		t.Errorf("len/size = %d/%d, want 2/2", c.Len(), c.Size())
	}
}

func TestLRUCacheEvictsBySize(t *testing.T) {
	c := newCache(t, 100, 10)

	c.Set("a", make([]byte, 4))
	c.Set("b", make([]byte, 4))
	c.Set("c", make([]byte, 4))

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry kept past the size bound")
	}
	if c.Size() != 8 {
		t.Errorf("Size() = %d, want 8", c.Size())
	}

	c.Set("huge", make([]byte, 11))
	if _, ok := c.Get("huge"); ok {
		t.Error("oversized entry cached")
	}

	c.Set("b", make([]byte, 2))
	if c.Size() != 6 {
		t.Errorf("Size() after update = %d, want 6", c.Size())
	}

	c.Delete("b")
	c.Clear()
	if c.Len() != 0 || c.Size() != 0 {
		t.Errorf("len/size after Clear = %d/%d", c.Len(), c.Size())
	}
}

func TestLRUCacheGetOrLoad(t *testing.T) {
	c := newCache(t, 10, 1<<20)
	var loads int32

	load := func() ([]byte, error) {
		atomic.AddInt32(&loads, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("payload"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, _, err := c.GetOrLoad("k", load)
			if err != nil || string(data) != "payload" {
				t.Errorf("GetOrLoad() = %q, %v", data, err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&loads); n != 1 {
		t.Errorf("load called %d times, want 1", n)
	}
	if _, hit, _ := c.GetOrLoad("k", load); !hit {
		t.Error("second GetOrLoad missed")
	}

	boom := errors.New("boom")
	if _, _, err := c.GetOrLoad("bad", func() ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("GetOrLoad() error = %v, want boom", err)
	}
	if _, ok := c.Get("bad"); ok {
		t.Error("failed load cached")
	}

	hits, misses := c.Stats()
	if hits == 0 || misses == 0 {
		t.Errorf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestNewLRUCacheRejectsZeroCapacity(t *testing.T) {
	if _, err := NewLRUCache(0, 10); err == nil {
		t.Error("NewLRUCache(0) succeeded")
	}
}
