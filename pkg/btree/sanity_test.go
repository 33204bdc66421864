// pkg/btree/sanity_test.go
package btree

import (
	"errors"
	"testing"
)

func TestSanityDetectsKeyDisorder(t *testing.T) {
	ix := testIndex(t, 64, 64, 2, 2)
	for i := 0; i < 8; i++ {
		k := key2(i)
		if err := ix.Insert(k, k); err != nil {
			t.Fatalf("insert %s failed: %v", k, err)
		}
	}

	// reverse the pairs of one leaf behind the engine's back
	path, err := ix.lookupLeaf(key2(1))
	if err != nil {
		t.Fatalf("lookupLeaf failed: %v", err)
	}
	leafBlock := path[len(path)-1]
	leaf, err := ix.readNode(leafBlock)
	if err != nil {
		t.Fatalf("read leaf failed: %v", err)
	}
	keys, vals, err := leaf.leafPairs()
	if err != nil {
		t.Fatalf("leafPairs failed: %v", err)
	}
	if len(keys) < 2 {
		t.Fatalf("leaf holds %d keys, need at least 2", len(keys))
	}
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
		vals[i], vals[j] = vals[j], vals[i]
	}
	if err := leaf.setLeafPairs(keys, vals); err != nil {
		t.Fatalf("setLeafPairs failed: %v", err)
	}
	if err := ix.writeNode(leafBlock, leaf); err != nil {
		t.Fatalf("write leaf failed: %v", err)
	}

	if err := ix.SanityCheck(); !errors.Is(err, ErrStructural) {
		t.Errorf("sanity err = %v, want a structural error", err)
	}
}

func TestSanityDetectsOrphanBlock(t *testing.T) {
	ix := testIndex(t, 64, 32, 2, 2)
	if err := ix.Insert([]byte("AA"), []byte("11")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// pop a block off the free chain and never link it anywhere
	if _, err := ix.allocateNode(); err != nil {
		t.Fatalf("allocate failed: %v", err)
	}

	err := ix.SanityCheck()
	if !errors.Is(err, ErrStructural) {
		t.Fatalf("sanity err = %v, want a structural error", err)
	}
}

func TestSanityDetectsDoubleOwner(t *testing.T) {
	ix := testIndex(t, 64, 32, 2, 2)
	if err := ix.Insert([]byte("AA"), []byte("11")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// make both root pointers target the same leaf
	rootBlock := ix.RootBlock()
	root, err := ix.readNode(rootBlock)
	if err != nil {
		t.Fatalf("read root failed: %v", err)
	}
	p0, err := root.ptr(0)
	if err != nil {
		t.Fatalf("root ptr failed: %v", err)
	}
	if err := root.setPtr(1, p0); err != nil {
		t.Fatalf("setPtr failed: %v", err)
	}
	if err := ix.writeNode(rootBlock, root); err != nil {
		t.Fatalf("write root failed: %v", err)
	}

	if err := ix.SanityCheck(); !errors.Is(err, ErrStructural) {
		t.Errorf("sanity err = %v, want a structural error", err)
	}
}

func TestSanityDetectsOverfullNode(t *testing.T) {
	ix := testIndex(t, 64, 32, 2, 2)
	if err := ix.Insert([]byte("AA"), []byte("11")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	// stuff the left leaf past its threshold without splitting
	path, err := ix.lookupLeaf([]byte("AA"))
	if err != nil {
		t.Fatalf("lookupLeaf failed: %v", err)
	}
	leafBlock := path[len(path)-1]
	leaf, err := ix.readNode(leafBlock)
	if err != nil {
		t.Fatalf("read leaf failed: %v", err)
	}
	var keys, vals [][]byte
	for i := 0; i < leaf.overfullThreshold()+1; i++ {
		k := []byte{'A', byte('A' + i)}
		keys = append(keys, k)
		vals = append(vals, k)
	}
	if err := leaf.setLeafPairs(keys, vals); err != nil {
		t.Fatalf("setLeafPairs failed: %v", err)
	}
	if err := ix.writeNode(leafBlock, leaf); err != nil {
		t.Fatalf("write leaf failed: %v", err)
	}

	if err := ix.SanityCheck(); !errors.Is(err, ErrStructural) {
		t.Errorf("sanity err = %v, want a structural error", err)
	}
}

func TestSanityDetectsFreeChainCycle(t *testing.T) {
	ix := testIndex(t, 64, 32, 2, 2)

	head := ix.super.freeList()
	nd, err := ix.readNode(head)
	if err != nil {
		t.Fatalf("read free head failed: %v", err)
	}
	nd.setFreeList(head)
	if err := ix.writeNode(head, nd); err != nil {
		t.Fatalf("write free head failed: %v", err)
	}

	if _, err := ix.FreeBlocks(); !errors.Is(err, ErrStructural) {
		t.Errorf("FreeBlocks err = %v, want a structural error", err)
	}
	if err := ix.SanityCheck(); !errors.Is(err, ErrStructural) {
		t.Errorf("sanity err = %v, want a structural error", err)
	}
}

func TestSanityDetectsKeyCountMismatch(t *testing.T) {
	ix := testIndex(t, 64, 32, 2, 2)
	if err := ix.Insert([]byte("AA"), []byte("11")); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	ix.super.setNumKeys(ix.super.numKeys() + 5)
	if err := ix.SanityCheck(); !errors.Is(err, ErrStructural) {
		t.Errorf("sanity err = %v, want a structural error", err)
	}
}

func TestStructuralErrorText(t *testing.T) {
	err := structuralf(7, "keys out of order at slots %d and %d", 1, 2)
	want := "block 7: keys out of order at slots 1 and 2"
	if err.Error() != want {
		t.Errorf("error text = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrStructural) {
		t.Error("structural error does not match ErrStructural")
	}
}
