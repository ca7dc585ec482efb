package cache

import (
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestShardedSetGet(t *testing.T) {
	c := NewSharded[float64]()
	c.Set("AAPL", 187.25)
	c.Set("MSFT", 410)

	if v, ok := c.Get("AAPL"); !ok || v != 187.25 {
		t.Fatalf("Get(AAPL)=%v,%v", v, ok)
	}
	if _, ok := c.Get("GOOGL"); ok {
		t.Fatalf("expected miss")
	}
	c.Delete("AAPL")
	if c.Len() != 1 {
		t.Fatalf("len=%d, expected 1", c.Len())
	}
	keys := c.Keys()
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "MSFT" {
		t.Fatalf("keys=%v", keys)
	}
}

func TestShardedCleanupByAge(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewSharded[string]()
	c.now = func() time.Time { return now }

	c.Set("old", "a")
	now = now.Add(10 * time.Minute)
	c.Set("new", "b")

	if _, age, ok := c.GetWithAge("old"); !ok || age != 10*time.Minute {
		t.Fatalf("age=%v ok=%v", age, ok)
	}
	if removed := c.Cleanup(5 * time.Minute); removed != 1 {
		t.Fatalf("removed=%d, expected 1", removed)
	}
	if st := c.Stats(); st.TotalItems != 1 || st.OldestAge != 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestShardedConcurrentWriters(t *testing.T) {
	c := NewSharded[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Set(fmt.Sprintf("S%d", i), w)
				c.Get(fmt.Sprintf("S%d", (i+w)%100))
			}
		}(w)
	}
	wg.Wait()
	if c.Len() != 100 {
		t.Fatalf("len=%d, expected 100", c.Len())
	}
}
