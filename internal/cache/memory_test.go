package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"
)

func body(n int, b byte) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// holds reports whether h's entry is still the one cached under its key.
func (c *LRU) holds(h *Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items[h.e.key] == h.e
}

func mustInsert(t *testing.T, c *LRU, key string, data []byte) {
	t.Helper()
	h, err := c.Insert(context.Background(), key, data)
	if err != nil {
		t.Fatalf("Insert(%q) error: %v", key, err)
	}
	h.Release()
}

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		maxBytes      int64
		maxObject     int64
		wantMaxBytes  int64
		wantMaxObject int64
	}{
		{"Defaults", 0, 0, MaxCacheSize, MaxObjectSize},
		{"Negative", -1, -1, MaxCacheSize, MaxObjectSize},
		{"Custom", 4096, 1024, 4096, 1024},
		{"ObjectClampedToCache", 1024, 4096, 1024, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.maxBytes, tt.maxObject)
			st := c.Stats()
			if st.MaxBytes != tt.wantMaxBytes {
				t.Errorf("MaxBytes = %d, want %d", st.MaxBytes, tt.wantMaxBytes)
			}
			if st.MaxObjectBytes != tt.wantMaxObject {
				t.Errorf("MaxObjectBytes = %d, want %d", st.MaxObjectBytes, tt.wantMaxObject)
			}
		})
	}
}

func TestInsertAndLookup(t *testing.T) {
	c := New(0, 0)
	want := []byte("HTTP/1.0 200 OK\r\n\r\nhello")

	h, err := c.Insert(context.Background(), "http://example.com:80/index.html", want)
	if err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if got := c.Stats().Pinned; got != 1 {
		t.Errorf("Pinned after insert = %d, want 1", got)
	}
	h.Release()

	got, ok := c.Lookup("http://example.com:80/index.html")
	if !ok {
		t.Fatal("Lookup failed for inserted key")
	}
	defer got.Release()

	if !bytes.Equal(got.Body(), want) {
		t.Errorf("Body = %q, want %q", got.Body(), want)
	}
	if got.Size() != int64(len(want)) {
		t.Errorf("Size = %d, want %d", got.Size(), len(want))
	}
	if got.Key() != "http://example.com:80/index.html" {
		t.Errorf("Key = %q", got.Key())
	}

	if _, ok := c.Lookup("http://example.com:80/missing"); ok {
		t.Error("Lookup succeeded for missing key")
	}
}

func TestInsertRejects(t *testing.T) {
	c := New(0, 0)

	if _, err := c.Insert(context.Background(), "big", body(int(MaxObjectSize)+1, 'x')); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Insert oversize error = %v, want ErrTooLarge", err)
	}
	if st := c.Stats(); st.Entries != 0 || st.Bytes != 0 {
		t.Errorf("oversize insert had side effects: %+v", st)
	}

	mustInsert(t, c, "exact", body(int(MaxObjectSize), 'x'))

	if _, err := c.Insert(context.Background(), "exact", []byte("other")); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate Insert error = %v, want ErrExists", err)
	}
	if st := c.Stats(); st.Entries != 1 || st.Bytes != MaxObjectSize {
		t.Errorf("duplicate insert had side effects: %+v", st)
	}
}

func TestLookupReleaseKeepsContents(t *testing.T) {
	c := New(0, 0)
	mustInsert(t, c, "a", []byte("aaa"))
	mustInsert(t, c, "b", []byte("bb"))
	mustInsert(t, c, "c", []byte("c"))

	before := c.Stats()

	h, ok := c.Lookup("a")
	if !ok {
		t.Fatal("Lookup(a) failed")
	}
	h.Release()
	h.Release()

	after := c.Stats()
	if before.Bytes != after.Bytes || before.Entries != after.Entries {
		t.Errorf("stats changed: before %+v, after %+v", before, after)
	}
	if after.Pinned != 0 {
		t.Errorf("Pinned = %d, want 0 after double release", after.Pinned)
	}

	want := []string{"a", "c", "b"}
	got := c.Keys()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	c := New(30, 10)
	mustInsert(t, c, "A", body(10, 'a'))
	mustInsert(t, c, "B", body(10, 'b'))
	mustInsert(t, c, "C", body(10, 'c'))

	mustInsert(t, c, "D", body(10, 'd'))
	if _, ok := c.Lookup("A"); ok {
		t.Fatal("A should have been evicted first")
	}
	if h, ok := c.Lookup("B"); !ok {
		t.Fatal("B evicted too early")
	} else {
		h.Release()
	}

	// B is now most recent, so C goes next.
	mustInsert(t, c, "E", body(10, 'e'))
	if _, ok := c.Lookup("C"); ok {
		t.Error("C should have been evicted after A")
	}
	for _, k := range []string{"B", "D", "E"} {
		h, ok := c.Lookup(k)
		if !ok {
			t.Errorf("%s was evicted incorrectly", k)
			continue
		}
		h.Release()
	}
}

func TestEvictionSkipsPinned(t *testing.T) {
	c := New(30, 10)
	mustInsert(t, c, "A", body(10, 'a'))
	mustInsert(t, c, "B", body(10, 'b'))
	mustInsert(t, c, "C", body(10, 'c'))

	// Pin A, then push it back to the tail by touching B and C.
	pinned, _ := c.Lookup("A")
	for _, k := range []string{"B", "C"} {
		h, _ := c.Lookup(k)
		h.Release()
	}

	mustInsert(t, c, "D", body(10, 'd'))

	if _, ok := c.Lookup("B"); ok {
		t.Error("B should have been evicted in place of pinned A")
	}
	if !bytes.Equal(pinned.Body(), body(10, 'a')) {
		t.Error("pinned body changed")
	}
	pinned.Release()
	if h, ok := c.Lookup("A"); !ok {
		t.Error("pinned A was evicted")
	} else {
		h.Release()
	}
}

func TestInsertWaitsForPin(t *testing.T) {
	c := New(20, 10)
	a, _ := c.Insert(context.Background(), "A", body(10, 'a'))
	b, _ := c.Insert(context.Background(), "B", body(10, 'b'))

	done := make(chan error, 1)
	go func() {
		h, err := c.Insert(context.Background(), "C", body(10, 'c'))
		if err == nil {
			h.Release()
		}
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("Insert returned while everything was pinned: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	b.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Insert error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Insert did not wake after release")
	}

	if _, ok := c.Lookup("B"); ok {
		t.Error("B should have been evicted once released")
	}
	a.Release()
}

func TestInsertWaitCancelled(t *testing.T) {
	c := New(10, 10)
	a, _ := c.Insert(context.Background(), "A", body(10, 'a'))
	defer a.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Insert(ctx, "B", body(10, 'b'))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Insert error = %v, want DeadlineExceeded", err)
	}
	if st := c.Stats(); st.Entries != 1 || st.Bytes != 10 {
		t.Errorf("cancelled insert changed cache: %+v", st)
	}
}

func TestConcurrency(t *testing.T) {
	const (
		maxBytes  = 64 << 10
		maxObject = 8 << 10
	)
	c := New(maxBytes, maxObject)
	ctx := context.Background()
	numGoRoutines := 32
	numOperations := 500

	var wg sync.WaitGroup
	var violation sync.Once
	var failed bool

	for i := 0; i < numGoRoutines; i++ {
		wg.Add(1)
		go func(gID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(gID)))
			for j := 0; j < numOperations; j++ {
				key := fmt.Sprintf("key_%d", rng.Intn(40))
				fill := byte('a' + rng.Intn(26))

				if h, ok := c.Lookup(key); ok {
					time.Sleep(time.Duration(rng.Intn(50)) * time.Microsecond)
					if !c.holds(h) {
						violation.Do(func() { failed = true })
					}
					h.Release()
					continue
				}

				data := body(1+rng.Intn(maxObject), fill)
				h, err := c.Insert(ctx, key, data)
				if err != nil {
					continue
				}
				time.Sleep(time.Duration(rng.Intn(50)) * time.Microsecond)
				if st := c.Stats(); st.Bytes > maxBytes || !c.holds(h) {
					violation.Do(func() { failed = true })
				}
				h.Release()
			}
		}(i)
	}

	wg.Wait()

	if failed {
		t.Fatal("pinned entry evicted or size bound exceeded under concurrency")
	}
	st := c.Stats()
	if st.Bytes > maxBytes {
		t.Errorf("Bytes = %d exceeds %d", st.Bytes, maxBytes)
	}
	if st.Pinned != 0 {
		t.Errorf("Pinned = %d after all releases", st.Pinned)
	}

	var sum int64
	for _, k := range c.Keys() {
		h, ok := c.Lookup(k)
		if !ok {
			t.Fatalf("key %q listed but not found", k)
		}
		if h.Size() > maxObject {
			t.Errorf("entry %q larger than object limit: %d", k, h.Size())
		}
		sum += h.Size()
		h.Release()
	}
	if sum != st.Bytes {
		t.Errorf("sum of sizes = %d, Stats.Bytes = %d", sum, st.Bytes)
	}
}

func TestHandleReleaseNil(t *testing.T) {
	var h *Handle
	h.Release()
}

func TestHoldsDetectsEviction(t *testing.T) {
	c := New(10, 10)
	mustInsert(t, c, "A", body(10, 'a'))

	h, ok := c.Lookup("A")
	if !ok {
		t.Fatal("A missing")
	}
	if !c.holds(h) {
		t.Fatal("pinned A not held")
	}
	h.Release()

	mustInsert(t, c, "B", body(10, 'b'))
	if c.holds(h) {
		t.Error("holds reports an evicted entry")
	}
}
