// pkg/btree/node.go
package btree

import (
	"encoding/binary"
	"errors"
)

/*
Node Block Layout:
+----------------------+
| Header (28 bytes)    |
|   - nodetype   (4)   |
|   - keysize    (4)   |
|   - valuesize  (4)   |
|   - blocksize  (4)   |
|   - rootnode   (4)   |
|   - freelist   (4)   |
|   - numkeys    (4)   |
+----------------------+
| Keys, packed         |
| (numkeys * keysize)  |
+----------------------+
| Values (leaf)        |
| or child pointers    |
| (root/interior)      |
+----------------------+

Values and child pointers start immediately after the last key, so their
offsets move with numkeys. Mutation code that changes numkeys rebuilds the
payload through setLeafPairs/setInteriorItems; only a value overwrite
(Update) edits a slot in place.
*/

// nodeType tags the variant stored in a block. The zero value is
// unallocated, so a zeroed block reads as a free-chain member.
type nodeType uint32

const (
	nodeUnallocated nodeType = 0
	nodeSuperblock  nodeType = 1
	nodeRoot        nodeType = 2
	nodeInterior    nodeType = 3
	nodeLeaf        nodeType = 4
)

const (
	headerSize = 28
	ptrSize    = 4
)

var (
	ErrInvalidSlot  = errors.New("slot index out of range for node")
	ErrBadKeySize   = errors.New("key is not exactly keysize bytes")
	ErrBadValueSize = errors.New("value is not exactly valuesize bytes")
)

// node is a decoded view over one block's raw bytes.
type node struct {
	data []byte
}

// newNodeImage builds a fresh node of the given variant in a zeroed block
// buffer. numkeys starts at 0.
func newNodeImage(t nodeType, keysize, valuesize, blocksize, rootnode, freelist uint32) *node {
	n := &node{data: make([]byte, blocksize)}
	n.setType(t)
	binary.LittleEndian.PutUint32(n.data[4:8], keysize)
	binary.LittleEndian.PutUint32(n.data[8:12], valuesize)
	binary.LittleEndian.PutUint32(n.data[12:16], blocksize)
	n.setRootNode(rootnode)
	n.setFreeList(freelist)
	return n
}

// loadNode wraps existing block data without validation.
func loadNode(data []byte) *node {
	return &node{data: data}
}

func (n *node) typ() nodeType {
	return nodeType(binary.LittleEndian.Uint32(n.data[0:4]))
}

func (n *node) setType(t nodeType) {
	binary.LittleEndian.PutUint32(n.data[0:4], uint32(t))
}

func (n *node) keySize() uint32 {
	return binary.LittleEndian.Uint32(n.data[4:8])
}

func (n *node) valueSize() uint32 {
	return binary.LittleEndian.Uint32(n.data[8:12])
}

func (n *node) blockSize() uint32 {
	return binary.LittleEndian.Uint32(n.data[12:16])
}

func (n *node) rootNode() uint32 {
	return binary.LittleEndian.Uint32(n.data[16:20])
}

func (n *node) setRootNode(b uint32) {
	binary.LittleEndian.PutUint32(n.data[16:20], b)
}

func (n *node) freeList() uint32 {
	return binary.LittleEndian.Uint32(n.data[20:24])
}

func (n *node) setFreeList(b uint32) {
	binary.LittleEndian.PutUint32(n.data[20:24], b)
}

func (n *node) numKeys() int {
	return int(binary.LittleEndian.Uint32(n.data[24:28]))
}

func (n *node) setNumKeys(count int) {
	binary.LittleEndian.PutUint32(n.data[24:28], uint32(count))
}

// leafSlotsFor returns how many key/value pairs fit in the payload area of
// a leaf block.
func leafSlotsFor(blocksize, keysize, valuesize uint32) int {
	return int((blocksize - headerSize) / (keysize + valuesize))
}

// interiorSlotsFor returns how many keys fit in the payload area of an
// interior or root block, leaving room for the extra child pointer.
func interiorSlotsFor(blocksize, keysize uint32) int {
	return int((blocksize - headerSize - ptrSize) / (keysize + ptrSize))
}

// slots returns the key capacity of this node's variant, or 0 for variants
// that hold no keys.
func (n *node) slots() int {
	switch n.typ() {
	case nodeLeaf:
		return leafSlotsFor(n.blockSize(), n.keySize(), n.valueSize())
	case nodeRoot, nodeInterior:
		return interiorSlotsFor(n.blockSize(), n.keySize())
	default:
		return 0
	}
}

// overfullThreshold returns the key count above which this node must split.
func (n *node) overfullThreshold() int {
	return 2 * n.slots() / 3
}

func (n *node) overfull() bool {
	return n.numKeys() > n.overfullThreshold()
}

func (n *node) keyOffset(i int) int {
	return headerSize + i*int(n.keySize())
}

// payloadOffset is where values or child pointers begin: right after the
// packed key area for the current numkeys.
func (n *node) payloadOffset() int {
	return headerSize + n.numKeys()*int(n.keySize())
}

// key returns the key at slot i. The slice aliases the block buffer.
func (n *node) key(i int) ([]byte, error) {
	if i < 0 || i >= n.numKeys() {
		return nil, ErrInvalidSlot
	}
	off := n.keyOffset(i)
	end := off + int(n.keySize())
	if end > len(n.data) {
		return nil, ErrInvalidSlot
	}
	return n.data[off:end], nil
}

func (n *node) setKey(i int, key []byte) error {
	if i < 0 || i >= n.numKeys() {
		return ErrInvalidSlot
	}
	if len(key) != int(n.keySize()) {
		return ErrBadKeySize
	}
	off := n.keyOffset(i)
	if off+len(key) > len(n.data) {
		return ErrInvalidSlot
	}
	copy(n.data[off:], key)
	return nil
}

// value returns the value at slot i. Leaf nodes only.
func (n *node) value(i int) ([]byte, error) {
	if n.typ() != nodeLeaf {
		return nil, ErrInvalidSlot
	}
	if i < 0 || i >= n.numKeys() {
		return nil, ErrInvalidSlot
	}
	off := n.payloadOffset() + i*int(n.valueSize())
	end := off + int(n.valueSize())
	if end > len(n.data) {
		return nil, ErrInvalidSlot
	}
	return n.data[off:end], nil
}

func (n *node) setValue(i int, value []byte) error {
	if n.typ() != nodeLeaf {
		return ErrInvalidSlot
	}
	if i < 0 || i >= n.numKeys() {
		return ErrInvalidSlot
	}
	if len(value) != int(n.valueSize()) {
		return ErrBadValueSize
	}
	off := n.payloadOffset() + i*int(n.valueSize())
	if off+len(value) > len(n.data) {
		return ErrInvalidSlot
	}
	copy(n.data[off:], value)
	return nil
}

// ptr returns child pointer i. Root and interior nodes carry numkeys+1
// pointers, so i may equal numkeys.
func (n *node) ptr(i int) (uint32, error) {
	if t := n.typ(); t != nodeRoot && t != nodeInterior {
		return 0, ErrInvalidSlot
	}
	if i < 0 || i > n.numKeys() {
		return 0, ErrInvalidSlot
	}
	off := n.payloadOffset() + i*ptrSize
	if off+ptrSize > len(n.data) {
		return 0, ErrInvalidSlot
	}
	return binary.LittleEndian.Uint32(n.data[off:]), nil
}

func (n *node) setPtr(i int, block uint32) error {
	if t := n.typ(); t != nodeRoot && t != nodeInterior {
		return ErrInvalidSlot
	}
	if i < 0 || i > n.numKeys() {
		return ErrInvalidSlot
	}
	off := n.payloadOffset() + i*ptrSize
	if off+ptrSize > len(n.data) {
		return ErrInvalidSlot
	}
	binary.LittleEndian.PutUint32(n.data[off:], block)
	return nil
}

// leafPairs copies out all key/value pairs of a leaf in slot order.
func (n *node) leafPairs() (keys, vals [][]byte, err error) {
	count := n.numKeys()
	keys = make([][]byte, 0, count)
	vals = make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		k, err := n.key(i)
		if err != nil {
			return nil, nil, err
		}
		v, err := n.value(i)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, append([]byte(nil), k...))
		vals = append(vals, append([]byte(nil), v...))
	}
	return keys, vals, nil
}

// setLeafPairs rebuilds a leaf's payload from parallel key/value slices.
func (n *node) setLeafPairs(keys, vals [][]byte) error {
	if len(keys) != len(vals) {
		return ErrInvalidSlot
	}
	n.setNumKeys(len(keys))
	for i := range keys {
		if err := n.setKey(i, keys[i]); err != nil {
			return err
		}
		if err := n.setValue(i, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// interiorItems copies out the keys and the numkeys+1 child pointers of a
// root or interior node.
func (n *node) interiorItems() (keys [][]byte, ptrs []uint32, err error) {
	count := n.numKeys()
	keys = make([][]byte, 0, count)
	ptrs = make([]uint32, 0, count+1)
	for i := 0; i < count; i++ {
		k, err := n.key(i)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, append([]byte(nil), k...))
	}
	for i := 0; i <= count; i++ {
		p, err := n.ptr(i)
		if err != nil {
			return nil, nil, err
		}
		ptrs = append(ptrs, p)
	}
	return keys, ptrs, nil
}

// setInteriorItems rebuilds a root or interior node's payload. ptrs must
// hold exactly len(keys)+1 entries.
func (n *node) setInteriorItems(keys [][]byte, ptrs []uint32) error {
	if len(ptrs) != len(keys)+1 {
		return ErrInvalidSlot
	}
	n.setNumKeys(len(keys))
	for i := range keys {
		if err := n.setKey(i, keys[i]); err != nil {
			return err
		}
	}
	for i := range ptrs {
		if err := n.setPtr(i, ptrs[i]); err != nil {
			return err
		}
	}
	return nil
}
