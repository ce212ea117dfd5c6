package huff

import "github.com/seiflotfy/huff/bitstream"

// Code is the bit pattern assigned to one symbol. The pattern occupies the
// Len low bits of Bits and is written most significant bit first.
type Code struct {
	Bits uint64
	Len  uint8
}

// CodeTable maps every symbol to its code; symbols absent from the tree
// have a zero-length code.
type CodeTable struct {
	codes [Symbols]Code
}

// NewCodeTable derives codes from root by depth-first traversal, appending 0
// for a left edge and 1 for a right edge. A nil root yields an empty table.
func NewCodeTable(root *Node) (*CodeTable, error) {
	t := &CodeTable{}
	if root == nil {
		return t, nil
	}
	if root.Leaf() {
		return nil, invariantf("tree root is a leaf for symbol %#02x", root.symbol)
	}
	if err := t.walk(root, 0, 0); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *CodeTable) walk(n *Node, bits uint64, depth int) error {
	if n.Leaf() {
		if t.codes[n.symbol].Len != 0 {
			return invariantf("symbol %#02x has two leaves", n.symbol)
		}
		t.codes[n.symbol] = Code{Bits: bits, Len: uint8(depth)}
		return nil
	}
	if depth == bitstream.MaxCodeBits {
		return invariantf("code length exceeds %d bits", bitstream.MaxCodeBits)
	}
	if err := t.walk(n.left, bits<<1, depth+1); err != nil {
		return err
	}
	return t.walk(n.right, bits<<1|1, depth+1)
}

// Code returns the code for sym and whether sym has one.
func (t *CodeTable) Code(sym byte) (Code, bool) {
	c := t.codes[sym]
	return c, c.Len != 0
}

// EncodedBits returns the payload size in bits for input with frequencies f:
// the sum of count times code length.
func (t *CodeTable) EncodedBits(f Frequencies) uint64 {
	var total uint64
	for sym, c := range f {
		total += c * uint64(t.codes[sym].Len)
	}
	return total
}

// covers reports whether every symbol counted in f has a code.
func (t *CodeTable) covers(f *Frequencies) bool {
	for sym, c := range f {
		if c != 0 && t.codes[sym].Len == 0 {
			return false
		}
	}
	return true
}
