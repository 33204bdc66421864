// pkg/btree/sanity.go
package btree

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrStructural is the sentinel that every StructuralError matches via
// errors.Is.
var ErrStructural = errors.New("structural invariant violated")

// StructuralError reports an invariant violation found in the on-disk
// tree, located by block number.
type StructuralError struct {
	// Block is the block where the violation was observed.
	Block uint32

	// Message describes the violation.
	Message string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("block %d: %s", e.Block, e.Message)
}

// Is makes errors.Is(err, ErrStructural) hold for every StructuralError.
func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

func structuralf(block uint32, format string, args ...any) error {
	return &StructuralError{Block: block, Message: fmt.Sprintf(format, args...)}
}

// auditState carries the accumulating facts of one SanityCheck pass.
type auditState struct {
	visited     map[uint32]bool
	lastLeafKey []byte
	keyCount    int
}

// SanityCheck walks the whole store read-only and verifies the
// structural invariants: every reachable node is root/interior/leaf, no
// node exceeds its overfull threshold, keys are non-decreasing within
// nodes and across the leaf sequence, every interior node carries
// numkeys+1 children targeting allocated nodes, no block has two owners,
// the free chain is acyclic and typed unallocated, and the superblock,
// tree and free chain together account for every block. A superblock
// key-count disagreement is reported only when everything structural is
// clean. Returns nil when the index is sound.
func (ix *Index) SanityCheck() error {
	numblocks := uint32(ix.store.NumBlocks())
	st := &auditState{visited: make(map[uint32]bool)}

	rootBlock := ix.super.rootNode()
	if rootBlock == ix.superIndex || rootBlock >= numblocks {
		return structuralf(ix.superIndex, "superblock root pointer %d out of range", rootBlock)
	}
	if err := ix.auditNode(rootBlock, true, st); err != nil {
		return err
	}

	// walk the free chain
	freeSeen := make(map[uint32]bool)
	for block := ix.super.freeList(); block != 0; {
		if block >= numblocks {
			return structuralf(block, "free chain points out of range")
		}
		if freeSeen[block] {
			return structuralf(block, "cycle in free chain")
		}
		if st.visited[block] {
			return structuralf(block, "block is both a tree node and on the free chain")
		}
		freeSeen[block] = true
		nd, err := ix.readNode(block)
		if err != nil {
			return err
		}
		if nd.typ() != nodeUnallocated {
			return structuralf(block, "free chain member has type %d, want unallocated", nd.typ())
		}
		block = nd.freeList()
	}

	// one-owner accounting: superblock + tree + free chain covers all
	owned := 1 + len(st.visited) + len(freeSeen)
	if owned != int(numblocks) {
		return structuralf(ix.superIndex, "%d of %d blocks are owned; the rest are orphaned", owned, numblocks)
	}

	if st.keyCount != ix.super.numKeys() {
		return structuralf(ix.superIndex, "superblock records %d keys but the leaves hold %d",
			ix.super.numKeys(), st.keyCount)
	}
	return nil
}

// auditNode checks one reachable node and recurses into its children.
// isRoot is true only for the node the superblock points at.
func (ix *Index) auditNode(block uint32, isRoot bool, st *auditState) error {
	numblocks := uint32(ix.store.NumBlocks())
	if block == ix.superIndex || block >= numblocks {
		return structuralf(block, "child pointer out of range")
	}
	if st.visited[block] {
		return structuralf(block, "block reachable by more than one path")
	}
	st.visited[block] = true

	nd, err := ix.readNode(block)
	if err != nil {
		return err
	}

	t := nd.typ()
	switch {
	case isRoot && t != nodeRoot:
		return structuralf(block, "tree root has type %d, want root", t)
	case !isRoot && t != nodeInterior && t != nodeLeaf:
		return structuralf(block, "reachable node has type %d, want interior or leaf", t)
	}

	count := nd.numKeys()
	if count > nd.overfullThreshold() {
		return structuralf(block, "node holds %d keys, above the overfull threshold %d",
			count, nd.overfullThreshold())
	}

	// adjacent keys must be non-decreasing
	for i := 0; i+1 < count; i++ {
		a, err := nd.key(i)
		if err != nil {
			return err
		}
		b, err := nd.key(i + 1)
		if err != nil {
			return err
		}
		if bytes.Compare(a, b) > 0 {
			return structuralf(block, "keys out of order at slots %d and %d", i, i+1)
		}
	}

	switch t {
	case nodeRoot, nodeInterior:
		if count == 0 {
			if isRoot {
				// an empty tree: the root has no children yet
				return nil
			}
			return structuralf(block, "interior node with no keys")
		}
		for i := 0; i <= count; i++ {
			p, err := nd.ptr(i)
			if err != nil {
				return err
			}
			if err := ix.auditNode(p, false, st); err != nil {
				return err
			}
		}
		return nil

	case nodeLeaf:
		for i := 0; i < count; i++ {
			k, err := nd.key(i)
			if err != nil {
				return err
			}
			if st.lastLeafKey != nil && bytes.Compare(k, st.lastLeafKey) < 0 {
				return structuralf(block, "leaf key at slot %d breaks the global key order", i)
			}
			st.lastLeafKey = append(st.lastLeafKey[:0], k...)
		}
		st.keyCount += count
		return nil

	default:
		return structuralf(block, "unreachable node type %d", t)
	}
}
