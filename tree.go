package huff

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/seiflotfy/huff/bitstream"
)

// Node is a vertex of a prefix tree. A leaf owns a symbol; an internal node
// owns exactly two children. Trees are immutable once built.
type Node struct {
	left, right *Node
	weight      uint64
	seq         uint32
	symbol      byte
}

// Leaf reports whether n carries a symbol.
func (n *Node) Leaf() bool { return n.left == nil }

// Symbol returns the byte value of a leaf.
func (n *Node) Symbol() byte { return n.symbol }

// Weight returns the frequency of a leaf or the sum of its children.
// Trees read back from a container carry zero weights.
func (n *Node) Weight() uint64 { return n.weight }

// Left returns the child reached by a 0 bit.
func (n *Node) Left() *Node { return n.left }

// Right returns the child reached by a 1 bit.
func (n *Node) Right() *Node { return n.right }

// Leaves counts the leaves below n.
func (n *Node) Leaves() int {
	if n == nil {
		return 0
	}
	if n.Leaf() {
		return 1
	}
	return n.left.Leaves() + n.right.Leaves()
}

// nodeHeap orders nodes by (weight, seq). seq is unique per build, so the
// order is total and the resulting tree does not depend on heap internals.
type nodeHeap []*Node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].weight != h[j].weight {
		return h[i].weight < h[j].weight
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)   { *h = append(*h, x.(*Node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

// BuildTree returns the minimum weighted path length tree for f, or nil when
// every count is zero.
//
// Leaves are numbered in increasing symbol order and internal nodes after
// them in creation order; weight ties go to the lower number. The first node
// removed becomes the left child. A lone symbol s is paired with a weight-0
// placeholder leaf for s+1 (mod 256), which ends up on the left, so s is
// coded as the single bit 1.
func BuildTree(f Frequencies) *Node {
	h := make(nodeHeap, 0, Symbols+1)
	var seq uint32
	for sym, c := range f {
		if c == 0 {
			continue
		}
		h = append(h, &Node{symbol: byte(sym), weight: c, seq: seq})
		seq++
	}

	switch len(h) {
	case 0:
		return nil
	case 1:
		h = append(h, &Node{symbol: h[0].symbol + 1, seq: seq})
		seq++
	}

	heap.Init(&h)
	for h.Len() > 1 {
		a := heap.Pop(&h).(*Node)
		b := heap.Pop(&h).(*Node)
		heap.Push(&h, &Node{left: a, right: b, weight: a.weight + b.weight, seq: seq})
		seq++
	}
	return h[0]
}

// serializedTreeBits is the size of the pre-order encoding of a tree with
// the given number of leaves: one marker bit per node plus 8 bits per leaf.
func serializedTreeBits(leaves int) uint64 {
	if leaves == 0 {
		return 0
	}
	return uint64(10*leaves - 1)
}

// writeTree emits n in pre-order: 0 for an internal node, 1 and the 8-bit
// symbol for a leaf.
func writeTree(w *bitstream.Writer, n *Node) error {
	if n.Leaf() {
		if err := w.WriteBit(true); err != nil {
			return err
		}
		return w.WriteBits(uint64(n.symbol), 8)
	}
	if err := w.WriteBit(false); err != nil {
		return err
	}
	if err := writeTree(w, n.left); err != nil {
		return err
	}
	return writeTree(w, n.right)
}

// treeReader rebuilds a tree written by writeTree and rejects shapes no
// encoder can produce.
type treeReader struct {
	r      *bitstream.Reader
	seen   [Symbols]bool
	leaves int
}

func readTree(r *bitstream.Reader) (*Node, error) {
	tr := &treeReader{r: r}
	root, err := tr.node(0)
	if err != nil {
		return nil, err
	}
	if tr.leaves < 2 {
		return nil, fmt.Errorf("tree has %d leaves, need at least 2", tr.leaves)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("%d unused bits after tree", r.Remaining())
	}
	return root, nil
}

func (tr *treeReader) node(depth int) (*Node, error) {
	// A tree over 256 leaves has at most 255 internal levels.
	if depth >= Symbols {
		return nil, fmt.Errorf("tree deeper than %d levels", Symbols-1)
	}
	leaf, err := tr.r.ReadBit()
	if err != nil {
		return nil, treeReadErr(err, depth)
	}
	if leaf {
		v, err := tr.r.ReadBits(8)
		if err != nil {
			return nil, treeReadErr(err, depth)
		}
		sym := byte(v)
		if tr.seen[sym] {
			return nil, fmt.Errorf("symbol %#02x appears twice", sym)
		}
		tr.seen[sym] = true
		tr.leaves++
		return &Node{symbol: sym}, nil
	}
	left, err := tr.node(depth + 1)
	if err != nil {
		return nil, err
	}
	right, err := tr.node(depth + 1)
	if err != nil {
		return nil, err
	}
	return &Node{left: left, right: right}, nil
}

func treeReadErr(err error, depth int) error {
	if errors.Is(err, bitstream.ErrExhausted) {
		return fmt.Errorf("tree truncated at depth %d", depth)
	}
	return err
}
