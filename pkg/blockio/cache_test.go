// pkg/blockio/cache_test.go
package blockio

import (
	"bytes"
	"testing"
)

func TestCacheStoreWriteThrough(t *testing.T) {
	inner := NewMemStore(64, 8)
	cache := NewCacheStore(inner, 4)

	in := bytes.Repeat([]byte{0x11}, 64)
	if err := cache.WriteBlock(2, in); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// the write must land in the backing store immediately
	direct := make([]byte, 64)
	if err := inner.ReadBlock(2, direct); err != nil {
		t.Fatalf("direct read failed: %v", err)
	}
	if !bytes.Equal(direct, in) {
		t.Error("write did not reach the backing store")
	}

	out := make([]byte, 64)
	if err := cache.ReadBlock(2, out); err != nil {
		t.Fatalf("cached read failed: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Error("cached read returned wrong data")
	}
}

func TestCacheStoreServesFromCache(t *testing.T) {
	inner := NewMemStore(64, 8)
	cache := NewCacheStore(inner, 4)

	in := bytes.Repeat([]byte{0x22}, 64)
	if err := cache.WriteBlock(1, in); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// mutate the backing store behind the cache's back; the cached copy
	// must win until the block is dropped
	stale := bytes.Repeat([]byte{0x33}, 64)
	if err := inner.WriteBlock(1, stale); err != nil {
		t.Fatalf("direct write failed: %v", err)
	}

	out := make([]byte, 64)
	if err := cache.ReadBlock(1, out); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Error("read bypassed the cache")
	}

	cache.NotifyDeallocateBlock(1)
	if err := cache.ReadBlock(1, out); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(out, stale) {
		t.Error("deallocation did not drop the cached copy")
	}
}

func TestCacheStoreEviction(t *testing.T) {
	inner := NewMemStore(64, 16)
	cache := NewCacheStore(inner, 3)

	buf := make([]byte, 64)
	for n := uint32(0); n < 8; n++ {
		if err := cache.ReadBlock(n, buf); err != nil {
			t.Fatalf("read %d failed: %v", n, err)
		}
	}
	if cache.Cached() != 3 {
		t.Errorf("cache holds %d blocks, want 3", cache.Cached())
	}
}
