// pkg/btree/display.go
package btree

import (
	"fmt"
	"io"
)

// DisplayMode selects the rendering produced by Display.
type DisplayMode int

const (
	// DisplayDepth prints a depth-first traversal, one node per line.
	DisplayDepth DisplayMode = iota

	// DisplayDepthDot prints the tree as a GraphViz digraph.
	DisplayDepthDot

	// DisplaySortedKeyVal prints leaf key/value pairs in ascending key
	// order, one (key,value) per line.
	DisplaySortedKeyVal
)

// Display writes a rendering of the tree to w. It is read-only and does
// not raise on formatting; errors come only from block reads or a
// malformed tree.
func (ix *Index) Display(w io.Writer, mode DisplayMode) error {
	if mode == DisplayDepthDot {
		fmt.Fprintln(w, "digraph tree {")
	}
	err := ix.displayNode(w, ix.super.rootNode(), mode)
	if mode == DisplayDepthDot {
		fmt.Fprintln(w, "}")
	}
	return err
}

// displayNode prints one node and recurses depth-first into its children.
func (ix *Index) displayNode(w io.Writer, block uint32, mode DisplayMode) error {
	nd, err := ix.readNode(block)
	if err != nil {
		return err
	}

	if err := printNode(w, block, nd, mode); err != nil {
		return err
	}

	switch nd.typ() {
	case nodeRoot, nodeInterior:
		count := nd.numKeys()
		if count == 0 {
			return nil
		}
		for i := 0; i <= count; i++ {
			p, err := nd.ptr(i)
			if err != nil {
				return err
			}
			if mode == DisplayDepthDot {
				fmt.Fprintf(w, "%d -> %d;\n", block, p)
			}
			if err := ix.displayNode(w, p, mode); err != nil {
				return err
			}
		}
		return nil
	case nodeLeaf:
		return nil
	default:
		return fmt.Errorf("%w: block %d has type %d", ErrInsane, block, nd.typ())
	}
}

// printNode emits a single node's summary in the requested format.
// Interior lines interleave child pointers and keys; leaf lines
// interleave keys and values.
func printNode(w io.Writer, block uint32, nd *node, mode DisplayMode) error {
	switch nd.typ() {
	case nodeRoot, nodeInterior:
		if mode == DisplaySortedKeyVal {
			return nil
		}
		switch mode {
		case DisplayDepthDot:
			fmt.Fprintf(w, "%d [ label=\"%d: ", block, block)
		default:
			fmt.Fprintf(w, "%d: Interior: ", block)
		}
		count := nd.numKeys()
		if count > 0 {
			for i := 0; i <= count; i++ {
				p, err := nd.ptr(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "*%d ", p)
				if i == count {
					break
				}
				k, err := nd.key(i)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s ", k)
			}
		}
		if mode == DisplayDepthDot {
			fmt.Fprint(w, "\" ];")
		}
		fmt.Fprintln(w)
		return nil

	case nodeLeaf:
		if mode == DisplayDepth {
			fmt.Fprintf(w, "%d: Leaf: ", block)
		} else if mode == DisplayDepthDot {
			fmt.Fprintf(w, "%d [ label=\"%d: ", block, block)
		}
		count := nd.numKeys()
		for i := 0; i < count; i++ {
			k, err := nd.key(i)
			if err != nil {
				return err
			}
			v, err := nd.value(i)
			if err != nil {
				return err
			}
			if mode == DisplaySortedKeyVal {
				fmt.Fprintf(w, "(%s,%s)\n", k, v)
			} else {
				fmt.Fprintf(w, "%s %s ", k, v)
			}
		}
		if mode == DisplayDepthDot {
			fmt.Fprint(w, "\" ];")
		}
		if mode != DisplaySortedKeyVal {
			fmt.Fprintln(w)
		}
		return nil

	default:
		return fmt.Errorf("%w: block %d has type %d", ErrInsane, block, nd.typ())
	}
}
