// pkg/btree/split_test.go
package btree

import (
	"bytes"
	"testing"
)

/*
Geometry used throughout: 64-byte blocks with 2-byte keys and values.
Leaves hold 9 slots and split above 6 keys; interior nodes hold 5 slots
and split above 3 keys.
*/

func TestLeafSplitPoint(t *testing.T) {
	ix := testIndex(t, 64, 64, 2, 2)

	// key2(0) bootstraps the root; key2(1..6) fill the right leaf to its
	// threshold; key2(7) pushes it over and forces the first split
	for i := 0; i < 8; i++ {
		k := key2(i)
		if err := ix.Insert(k, k); err != nil {
			t.Fatalf("insert %s failed: %v", k, err)
		}
	}

	root, err := ix.readNode(ix.RootBlock())
	if err != nil {
		t.Fatalf("read root failed: %v", err)
	}
	if root.numKeys() != 2 {
		t.Fatalf("root numkeys = %d, want 2 after one leaf split", root.numKeys())
	}

	// splitting 7 keys promotes the 4th: the largest key of the left half
	k0, _ := root.key(0)
	k1, _ := root.key(1)
	if !bytes.Equal(k0, key2(0)) {
		t.Errorf("root key 0 = %s, want %s", k0, key2(0))
	}
	if !bytes.Equal(k1, key2(4)) {
		t.Errorf("separator = %s, want %s", k1, key2(4))
	}

	// the separator's pair must still be in a leaf
	for i := 0; i < 8; i++ {
		k := key2(i)
		value, err := ix.Lookup(k)
		if err != nil {
			t.Fatalf("lookup %s failed: %v", k, err)
		}
		if !bytes.Equal(value, k) {
			t.Errorf("lookup %s = %s, want %s", k, value, k)
		}
	}
	if err := ix.SanityCheck(); err != nil {
		t.Errorf("sanity: %v", err)
	}
}

func TestSplitReleasesOriginalBlock(t *testing.T) {
	ix := testIndex(t, 64, 64, 2, 2)

	before, err := ix.FreeBlocks()
	if err != nil {
		t.Fatalf("free chain walk failed: %v", err)
	}

	for i := 0; i < 8; i++ {
		k := key2(i)
		if err := ix.Insert(k, k); err != nil {
			t.Fatalf("insert %s failed: %v", k, err)
		}
	}

	// bootstrap took two blocks; the split took two and released one
	after, err := ix.FreeBlocks()
	if err != nil {
		t.Fatalf("free chain walk failed: %v", err)
	}
	if after != before-3 {
		t.Errorf("free blocks = %d, want %d", after, before-3)
	}

	// the released block is the old right leaf at block 3
	nd, err := ix.readNode(3)
	if err != nil {
		t.Fatalf("read block 3 failed: %v", err)
	}
	if nd.typ() != nodeUnallocated {
		t.Errorf("split node has type %d, want unallocated", nd.typ())
	}
}

func TestRootSplit(t *testing.T) {
	ix := testIndex(t, 64, 64, 2, 2)

	// leaf splits feed the root a separator every fourth insert; the
	// sixteenth insert pushes the root past its threshold of 3
	const n = 16
	for i := 0; i < n; i++ {
		k := key2(i)
		if err := ix.Insert(k, k); err != nil {
			t.Fatalf("insert %s failed: %v", k, err)
		}
	}

	if ix.RootBlock() == 1 {
		t.Fatal("root block unchanged; expected the root to have split")
	}

	root, err := ix.readNode(ix.RootBlock())
	if err != nil {
		t.Fatalf("read root failed: %v", err)
	}
	if root.typ() != nodeRoot {
		t.Errorf("new root has type %d, want root", root.typ())
	}

	// a splitting root yields interior children, never a second root
	for i := 0; i <= root.numKeys(); i++ {
		p, err := root.ptr(i)
		if err != nil {
			t.Fatalf("root ptr %d failed: %v", i, err)
		}
		child, err := ix.readNode(p)
		if err != nil {
			t.Fatalf("read child %d failed: %v", p, err)
		}
		if child.typ() != nodeInterior {
			t.Errorf("root child %d has type %d, want interior", p, child.typ())
		}
	}

	// the old root is back on the free chain
	old, err := ix.readNode(1)
	if err != nil {
		t.Fatalf("read block 1 failed: %v", err)
	}
	if old.typ() != nodeUnallocated {
		t.Errorf("old root has type %d, want unallocated", old.typ())
	}

	for i := 0; i < n; i++ {
		k := key2(i)
		value, err := ix.Lookup(k)
		if err != nil {
			t.Fatalf("lookup %s failed: %v", k, err)
		}
		if !bytes.Equal(value, k) {
			t.Errorf("lookup %s = %s, want %s", k, value, k)
		}
	}
	if err := ix.SanityCheck(); err != nil {
		t.Errorf("sanity: %v", err)
	}
}

func TestDeepTreeChildCounts(t *testing.T) {
	ix := testIndex(t, 64, 256, 2, 2)

	const n = 150
	for i := n - 1; i >= 0; i-- {
		k := key2(i)
		if err := ix.Insert(k, k); err != nil {
			t.Fatalf("insert %s failed: %v", k, err)
		}
	}

	// the audit verifies numkeys+1 children per interior node, the
	// threshold bound, and one-owner accounting across the whole store
	if err := ix.SanityCheck(); err != nil {
		t.Fatalf("sanity: %v", err)
	}

	var buf bytes.Buffer
	if err := ix.Display(&buf, DisplaySortedKeyVal); err != nil {
		t.Fatalf("display failed: %v", err)
	}
	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	if lines != n {
		t.Errorf("sorted display has %d lines, want %d", lines, n)
	}
}
