// pkg/btree/btree.go
package btree

import (
	"bytes"
	"errors"
	"fmt"

	"firidx/pkg/blockio"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrDuplicateKey  = errors.New("key already present")
	ErrNoSpace       = errors.New("free chain exhausted")
	ErrUnimplemented = errors.New("operation not implemented")
	ErrInsane        = errors.New("unexpected node type in tree")
	ErrBadGeometry   = errors.New("block size too small for key/value geometry")
)

// lookupOp selects the behavior of the shared descent in lookupOrUpdate.
type lookupOp int

const (
	opLookup lookupOp = iota
	opUpdate
)

// Index is a disk-resident B+ tree over fixed-width keys and values. The
// handle holds only the superblock's block number, its cached image, and
// the block store; all node state lives in blocks.
//
// An Index is not safe for concurrent use.
type Index struct {
	store      blockio.BlockStore
	superIndex uint32
	super      *node
}

// Attach mounts an index whose superblock lives at initblock, which must
// be 0. With create=true the store is formatted first: superblock at
// block 0, an empty root at block 1, and blocks 2..N-1 threaded onto the
// free chain in ascending order, terminated by the 0 sentinel.
// With create=false keysize and valuesize are read from the superblock
// and the arguments are ignored.
func Attach(store blockio.BlockStore, keysize, valuesize uint32, initblock uint32, create bool) (*Index, error) {
	if initblock != 0 {
		return nil, errors.New("superblock must reside at block 0")
	}

	blocksize := uint32(store.BlockSize())
	numblocks := uint32(store.NumBlocks())
	if blocksize <= headerSize+ptrSize {
		return nil, ErrBadGeometry
	}
	ix := &Index{store: store, superIndex: initblock}

	if !create {
		buf := make([]byte, blocksize)
		if err := store.ReadBlock(initblock, buf); err != nil {
			return nil, err
		}
		super := loadNode(buf)
		if super.typ() != nodeSuperblock {
			return nil, structuralf(initblock, "block is not a superblock (type %d)", super.typ())
		}
		if super.blockSize() != blocksize {
			return nil, structuralf(initblock, "superblock records block size %d but store uses %d",
				super.blockSize(), blocksize)
		}
		ix.super = super
		return ix, nil
	}

	if keysize == 0 || valuesize == 0 {
		return nil, ErrBadGeometry
	}
	// A leaf must hold a split pair and an interior node must keep one key
	// on each side of a promoted separator.
	if leafSlotsFor(blocksize, keysize, valuesize) < 2 || interiorSlotsFor(blocksize, keysize) < 3 {
		return nil, ErrBadGeometry
	}
	if numblocks < 2 {
		return nil, ErrNoSpace
	}

	rootBlock := initblock + 1
	freeHead := uint32(0)
	if numblocks > initblock+2 {
		freeHead = initblock + 2
	}

	super := newNodeImage(nodeSuperblock, keysize, valuesize, blocksize, rootBlock, freeHead)
	store.NotifyAllocateBlock(initblock)
	if err := store.WriteBlock(initblock, super.data); err != nil {
		return nil, err
	}

	root := newNodeImage(nodeRoot, keysize, valuesize, blocksize, rootBlock, 0)
	store.NotifyAllocateBlock(rootBlock)
	if err := store.WriteBlock(rootBlock, root.data); err != nil {
		return nil, err
	}

	for i := initblock + 2; i < numblocks; i++ {
		next := i + 1
		if next == numblocks {
			next = 0
		}
		free := newNodeImage(nodeUnallocated, keysize, valuesize, blocksize, rootBlock, next)
		if err := store.WriteBlock(i, free.data); err != nil {
			return nil, err
		}
	}

	ix.super = super
	return ix, nil
}

// Create formats store and mounts a fresh index over it.
func Create(store blockio.BlockStore, keysize, valuesize uint32) (*Index, error) {
	return Attach(store, keysize, valuesize, 0, true)
}

// Open mounts an existing index from the superblock at block 0.
func Open(store blockio.BlockStore) (*Index, error) {
	return Attach(store, 0, 0, 0, false)
}

// Detach flushes the superblock and syncs the store. The index must not
// be used afterwards until re-attached.
func (ix *Index) Detach() error {
	if err := ix.writeSuper(); err != nil {
		return err
	}
	return ix.store.Sync()
}

// KeySize returns the fixed key width in bytes.
func (ix *Index) KeySize() uint32 {
	return ix.super.keySize()
}

// ValueSize returns the fixed value width in bytes.
func (ix *Index) ValueSize() uint32 {
	return ix.super.valueSize()
}

// NumKeys returns the superblock's total key count.
func (ix *Index) NumKeys() int {
	return ix.super.numKeys()
}

// RootBlock returns the block number of the current root node.
func (ix *Index) RootBlock() uint32 {
	return ix.super.rootNode()
}

func (ix *Index) readNode(block uint32) (*node, error) {
	buf := make([]byte, ix.super.blockSize())
	if err := ix.store.ReadBlock(block, buf); err != nil {
		return nil, err
	}
	return loadNode(buf), nil
}

func (ix *Index) writeNode(block uint32, nd *node) error {
	return ix.store.WriteBlock(block, nd.data)
}

func (ix *Index) writeSuper() error {
	return ix.store.WriteBlock(ix.superIndex, ix.super.data)
}

func (ix *Index) checkKey(key []byte) error {
	if len(key) != int(ix.super.keySize()) {
		return ErrBadKeySize
	}
	return nil
}

func (ix *Index) checkValue(value []byte) error {
	if len(value) != int(ix.super.valueSize()) {
		return ErrBadValueSize
	}
	return nil
}

// Lookup returns a copy of the value stored under key, or ErrNotFound.
func (ix *Index) Lookup(key []byte) ([]byte, error) {
	if err := ix.checkKey(key); err != nil {
		return nil, err
	}
	return ix.lookupOrUpdate(ix.super.rootNode(), opLookup, key, nil)
}

// Update overwrites the value stored under key in place, or returns
// ErrNotFound if the key is absent.
func (ix *Index) Update(key, value []byte) error {
	if err := ix.checkKey(key); err != nil {
		return err
	}
	if err := ix.checkValue(value); err != nil {
		return err
	}
	_, err := ix.lookupOrUpdate(ix.super.rootNode(), opUpdate, key, value)
	return err
}

// Delete is not implemented in this design.
func (ix *Index) Delete(key []byte) error {
	return ErrUnimplemented
}

// lookupOrUpdate is the shared recursive descent for Lookup and Update.
// Equal keys route left: at an interior node the first key >= the probe
// selects the child. At the leaf it scans linearly, returning the value
// on a LOOKUP hit and rewriting the leaf on an UPDATE hit.
func (ix *Index) lookupOrUpdate(block uint32, op lookupOp, key, value []byte) ([]byte, error) {
	nd, err := ix.readNode(block)
	if err != nil {
		return nil, err
	}

	switch nd.typ() {
	case nodeRoot, nodeInterior:
		count := nd.numKeys()
		for i := 0; i < count; i++ {
			k, err := nd.key(i)
			if err != nil {
				return nil, err
			}
			if bytes.Compare(key, k) <= 0 {
				p, err := nd.ptr(i)
				if err != nil {
					return nil, err
				}
				return ix.lookupOrUpdate(p, op, key, value)
			}
		}
		if count > 0 {
			p, err := nd.ptr(count)
			if err != nil {
				return nil, err
			}
			return ix.lookupOrUpdate(p, op, key, value)
		}
		// a keyless root: the tree is empty
		return nil, ErrNotFound

	case nodeLeaf:
		count := nd.numKeys()
		for i := 0; i < count; i++ {
			k, err := nd.key(i)
			if err != nil {
				return nil, err
			}
			if bytes.Equal(k, key) {
				if op == opLookup {
					v, err := nd.value(i)
					if err != nil {
						return nil, err
					}
					return append([]byte(nil), v...), nil
				}
				if err := nd.setValue(i, value); err != nil {
					return nil, err
				}
				return nil, ix.writeNode(block, nd)
			}
		}
		return nil, ErrNotFound

	default:
		return nil, fmt.Errorf("%w: block %d has type %d", ErrInsane, block, nd.typ())
	}
}

// lookupLeaf descends to the leaf that should receive key, recording
// every block traversed. The root is the first entry of the returned
// path and the target leaf is the last. The descent uses strict
// less-than, so a probe equal to a separator falls through to the child
// left of the next larger key.
func (ix *Index) lookupLeaf(key []byte) ([]uint32, error) {
	block := ix.super.rootNode()
	path := []uint32{block}

	for {
		nd, err := ix.readNode(block)
		if err != nil {
			return nil, err
		}

		switch nd.typ() {
		case nodeLeaf:
			return path, nil

		case nodeRoot, nodeInterior:
			count := nd.numKeys()
			next := uint32(0)
			found := false
			for i := 0; i < count; i++ {
				k, err := nd.key(i)
				if err != nil {
					return nil, err
				}
				if bytes.Compare(key, k) < 0 {
					next, err = nd.ptr(i)
					if err != nil {
						return nil, err
					}
					found = true
					break
				}
			}
			if !found {
				next, err = nd.ptr(count)
				if err != nil {
					return nil, err
				}
			}
			path = append(path, next)
			block = next

		default:
			return nil, fmt.Errorf("%w: block %d has type %d", ErrInsane, block, nd.typ())
		}
	}
}

// Insert stores a new key/value pair. Inserting a key that is already
// present returns ErrDuplicateKey and leaves the stored value untouched;
// use Update to overwrite.
func (ix *Index) Insert(key, value []byte) error {
	if err := ix.checkKey(key); err != nil {
		return err
	}
	if err := ix.checkValue(value); err != nil {
		return err
	}

	// attempt the duplicate probe first
	_, err := ix.lookupOrUpdate(ix.super.rootNode(), opLookup, key, nil)
	if err == nil {
		return ErrDuplicateKey
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}

	rootBlock := ix.super.rootNode()
	root, err := ix.readNode(rootBlock)
	if err != nil {
		return err
	}
	if root.typ() != nodeRoot {
		return fmt.Errorf("%w: block %d is not a root node", ErrInsane, rootBlock)
	}
	if root.numKeys() == 0 {
		return ix.bootstrapInsert(rootBlock, root, key, value)
	}

	path, err := ix.lookupLeaf(key)
	if err != nil {
		return err
	}
	leafBlock := path[len(path)-1]
	leaf, err := ix.readNode(leafBlock)
	if err != nil {
		return err
	}
	if leaf.typ() != nodeLeaf {
		return fmt.Errorf("%w: block %d is not a leaf", ErrInsane, leafBlock)
	}

	// A leaf can only be packed to its physical limit when an earlier
	// split already failed for lack of free blocks.
	if leaf.numKeys() >= leaf.slots() {
		return ErrNoSpace
	}

	keys, vals, err := leaf.leafPairs()
	if err != nil {
		return err
	}
	slot := len(keys)
	for i, k := range keys {
		if bytes.Compare(key, k) <= 0 {
			slot = i
			break
		}
	}
	keys = append(keys[:slot], append([][]byte{key}, keys[slot:]...)...)
	vals = append(vals[:slot], append([][]byte{value}, vals[slot:]...)...)

	if err := leaf.setLeafPairs(keys, vals); err != nil {
		return err
	}
	if err := ix.writeNode(leafBlock, leaf); err != nil {
		return err
	}

	ix.super.setNumKeys(ix.super.numKeys() + 1)
	if err := ix.writeSuper(); err != nil {
		return err
	}

	if leaf.overfull() {
		return ix.rebalance(path)
	}
	return nil
}

// bootstrapInsert handles the first insert into an empty tree: the root
// gets a left leaf holding the pair and an empty right leaf, with the new
// key as its single separator.
func (ix *Index) bootstrapInsert(rootBlock uint32, root *node, key, value []byte) error {
	blocks, err := ix.allocateNodes(2)
	if err != nil {
		return err
	}
	leftBlock, rightBlock := blocks[0], blocks[1]

	ks, vs, bs := ix.super.keySize(), ix.super.valueSize(), ix.super.blockSize()

	left := newNodeImage(nodeLeaf, ks, vs, bs, rootBlock, 0)
	if err := left.setLeafPairs([][]byte{key}, [][]byte{value}); err != nil {
		return err
	}
	if err := ix.writeNode(leftBlock, left); err != nil {
		return err
	}

	right := newNodeImage(nodeLeaf, ks, vs, bs, rootBlock, 0)
	if err := ix.writeNode(rightBlock, right); err != nil {
		return err
	}

	if err := root.setInteriorItems([][]byte{key}, []uint32{leftBlock, rightBlock}); err != nil {
		return err
	}
	if err := ix.writeNode(rootBlock, root); err != nil {
		return err
	}

	ix.super.setNumKeys(ix.super.numKeys() + 1)
	return ix.writeSuper()
}

// rebalance splits the overfull node at the end of path. Two fresh blocks
// take the halves, the separator (the largest key of the left half) moves
// into the parent, and the original block returns to the free chain after
// all new references are installed. An overfull parent cascades upward.
func (ix *Index) rebalance(path []uint32) error {
	block := path[len(path)-1]
	nd, err := ix.readNode(block)
	if err != nil {
		return err
	}

	isRoot := len(path) == 1
	var parentBlock uint32
	var parent *node
	if !isRoot {
		parentBlock = path[len(path)-2]
		parent, err = ix.readNode(parentBlock)
		if err != nil {
			return err
		}
		if t := parent.typ(); t != nodeRoot && t != nodeInterior {
			return fmt.Errorf("%w: parent block %d has type %d", ErrInsane, parentBlock, t)
		}
		// A parent at its physical limit means an earlier split of the
		// parent itself already failed; splicing in another separator
		// would overflow the block.
		if parent.numKeys() >= parent.slots() {
			return ErrNoSpace
		}
	}

	need := 2
	if isRoot {
		need = 3
	}
	blocks, err := ix.allocateNodes(need)
	if err != nil {
		return err
	}
	leftBlock, rightBlock := blocks[0], blocks[1]

	count := nd.numKeys()
	mid := (count + 1) / 2

	sep, err := nd.key(mid - 1)
	if err != nil {
		return err
	}
	separator := append([]byte(nil), sep...)

	ks, vs, bs := ix.super.keySize(), ix.super.valueSize(), ix.super.blockSize()
	rootBlock := ix.super.rootNode()

	var left, right *node
	if nd.typ() == nodeLeaf {
		keys, vals, err := nd.leafPairs()
		if err != nil {
			return err
		}
		left = newNodeImage(nodeLeaf, ks, vs, bs, rootBlock, 0)
		if err := left.setLeafPairs(keys[:mid], vals[:mid]); err != nil {
			return err
		}
		right = newNodeImage(nodeLeaf, ks, vs, bs, rootBlock, 0)
		if err := right.setLeafPairs(keys[mid:], vals[mid:]); err != nil {
			return err
		}
	} else {
		keys, ptrs, err := nd.interiorItems()
		if err != nil {
			return err
		}
		// The separator moves up and out of this level; the left half
		// keeps the pointers on both sides of it.
		left = newNodeImage(nodeInterior, ks, vs, bs, rootBlock, 0)
		if err := left.setInteriorItems(keys[:mid-1], ptrs[:mid]); err != nil {
			return err
		}
		right = newNodeImage(nodeInterior, ks, vs, bs, rootBlock, 0)
		if err := right.setInteriorItems(keys[mid:], ptrs[mid:]); err != nil {
			return err
		}
	}

	if err := ix.writeNode(leftBlock, left); err != nil {
		return err
	}
	if err := ix.writeNode(rightBlock, right); err != nil {
		return err
	}

	if isRoot {
		newRootBlock := blocks[2]
		newRoot := newNodeImage(nodeRoot, ks, vs, bs, newRootBlock, 0)
		if err := newRoot.setInteriorItems([][]byte{separator}, []uint32{leftBlock, rightBlock}); err != nil {
			return err
		}
		if err := ix.writeNode(newRootBlock, newRoot); err != nil {
			return err
		}
		ix.super.setRootNode(newRootBlock)
		if err := ix.writeSuper(); err != nil {
			return err
		}
	} else {
		keys, ptrs, err := parent.interiorItems()
		if err != nil {
			return err
		}
		j := -1
		for i, p := range ptrs {
			if p == block {
				j = i
				break
			}
		}
		if j < 0 {
			return structuralf(parentBlock, "no child pointer to split node %d", block)
		}
		keys = append(keys[:j], append([][]byte{separator}, keys[j:]...)...)
		ptrs[j] = leftBlock
		ptrs = append(ptrs[:j+1], append([]uint32{rightBlock}, ptrs[j+1:]...)...)
		if err := parent.setInteriorItems(keys, ptrs); err != nil {
			return err
		}
		if err := ix.writeNode(parentBlock, parent); err != nil {
			return err
		}
	}

	if err := ix.deallocateNode(block); err != nil {
		return err
	}

	if !isRoot && parent.overfull() {
		return ix.rebalance(path[:len(path)-1])
	}
	return nil
}
