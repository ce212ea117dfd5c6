package huff

import (
	"bytes"
	"fmt"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/seiflotfy/huff/bitstream"
)

// Codebook is the reusable product of the analysis stages: the tree built
// from a frequency table, its code table and the tree's serialized form.
// A Codebook is never modified after construction and may be shared.
type Codebook struct {
	freqs    Frequencies
	root     *Node
	table    *CodeTable
	tree     []byte
	treeBits uint64
}

// NewCodebook builds the tree and code table for f.
func NewCodebook(f Frequencies) (*Codebook, error) {
	root := BuildTree(f)
	table, err := NewCodeTable(root)
	if err != nil {
		return nil, err
	}
	cb := &Codebook{freqs: f, root: root, table: table}
	if root == nil {
		return cb, nil
	}
	if !table.covers(&f) {
		return nil, invariantf("code table misses a counted symbol")
	}

	w := bitstream.NewWriter()
	if err := writeTree(w, root); err != nil {
		return nil, fmt.Errorf("serialize tree: %w", err)
	}
	tree, err := w.Finish()
	if err != nil {
		return nil, fmt.Errorf("serialize tree: %w", err)
	}
	if want := serializedTreeBits(root.Leaves()); w.Len() != want {
		return nil, invariantf("serialized tree is %d bits, want %d", w.Len(), want)
	}
	cb.tree = tree
	cb.treeBits = w.Len()
	return cb, nil
}

// Root returns the tree, nil for an empty input.
func (cb *Codebook) Root() *Node { return cb.root }

// Table returns the code table.
func (cb *Codebook) Table() *CodeTable { return cb.table }

// Frequencies returns the table the codebook was built from.
func (cb *Codebook) Frequencies() Frequencies { return cb.freqs }

// EncodedBits is the exact payload size for the codebook's own frequencies.
func (cb *Codebook) EncodedBits() uint64 { return cb.table.EncodedBits(cb.freqs) }

// decodedTree is a tree read back from a container together with the exact
// section bytes it came from.
type decodedTree struct {
	section []byte
	bits    uint64
	root    *Node
}

// CodebookCache shares immutable codebooks between invocations. Encoders
// look up by frequency table, decoders by serialized tree section. Keys are
// xxhash fingerprints; the full key material is compared on every hit, so a
// fingerprint collision is a miss rather than a wrong answer.
// A CodebookCache is safe for concurrent use.
type CodebookCache struct {
	byFreqs *lru.Cache[uint64, *Codebook]
	byTree  *lru.Cache[uint64, *decodedTree]
}

// NewCodebookCache returns a cache holding up to size entries per direction.
func NewCodebookCache(size int) (*CodebookCache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: cache size must be positive: %d", ErrInvalidInput, size)
	}
	byFreqs, err := lru.New[uint64, *Codebook](size)
	if err != nil {
		return nil, err
	}
	byTree, err := lru.New[uint64, *decodedTree](size)
	if err != nil {
		return nil, err
	}
	return &CodebookCache{byFreqs: byFreqs, byTree: byTree}, nil
}

// Len returns the number of cached encoder and decoder entries.
func (c *CodebookCache) Len() (encode, decode int) {
	return c.byFreqs.Len(), c.byTree.Len()
}

// codebook returns a codebook for f, building and publishing it on a miss.
func (c *CodebookCache) codebook(f *Frequencies) (cb *Codebook, hit bool, err error) {
	if c == nil {
		cb, err = NewCodebook(*f)
		return cb, false, err
	}
	key := f.fingerprint()
	if cb, ok := c.byFreqs.Get(key); ok && cb.freqs == *f {
		return cb, true, nil
	}
	cb, err = NewCodebook(*f)
	if err != nil {
		return nil, false, err
	}
	c.byFreqs.Add(key, cb)
	return cb, false, nil
}

// tree returns the root encoded by section, parsing and publishing it on a miss.
func (c *CodebookCache) tree(section []byte, bits uint64) (root *Node, hit bool, err error) {
	if c == nil {
		root, err = parseTreeSection(section, bits)
		return root, false, err
	}
	key := treeKey(section, bits)
	if dt, ok := c.byTree.Get(key); ok && dt.bits == bits && bytes.Equal(dt.section, section) {
		return dt.root, true, nil
	}
	root, err = parseTreeSection(section, bits)
	if err != nil {
		return nil, false, err
	}
	c.byTree.Add(key, &decodedTree{
		section: append([]byte(nil), section...),
		bits:    bits,
		root:    root,
	})
	return root, false, nil
}

func treeKey(section []byte, bits uint64) uint64 {
	d := xxhash.New()
	_, _ = d.Write(section)
	var b [8]byte
	for i := range b {
		b[i] = byte(bits >> (8 * i))
	}
	_, _ = d.Write(b[:])
	return d.Sum64()
}

func parseTreeSection(section []byte, bits uint64) (*Node, error) {
	r, err := bitstream.NewReader(section, bits)
	if err != nil {
		return nil, corruptf("tree section: %v", err)
	}
	root, err := readTree(r)
	if err != nil {
		return nil, corruptf("tree section: %v", err)
	}
	return root, nil
}
