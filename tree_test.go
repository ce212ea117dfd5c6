package huff

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/seiflotfy/huff/bitstream"
)

// ============================================================================
// Helper Functions
// ============================================================================

func mustCodeTable(t testing.TB, root *Node) *CodeTable {
	t.Helper()
	table, err := NewCodeTable(root)
	if err != nil {
		t.Fatalf("NewCodeTable failed: %v", err)
	}
	return table
}

func codeString(c Code) string {
	var sb strings.Builder
	for i := int(c.Len) - 1; i >= 0; i-- {
		if c.Bits>>uint(i)&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// optimalCost is the minimum weighted path length for weights, computed
// independently of BuildTree by repeatedly merging the two smallest weights.
func optimalCost(weights []uint64) uint64 {
	w := append([]uint64(nil), weights...)
	if len(w) == 1 {
		return w[0]
	}
	var cost uint64
	for len(w) > 1 {
		sort.Slice(w, func(i, j int) bool { return w[i] < w[j] })
		merged := w[0] + w[1]
		cost += merged
		w = append([]uint64{merged}, w[2:]...)
	}
	return cost
}

func depths(n *Node, depth int, out map[byte]int) {
	if n.Leaf() {
		out[n.Symbol()] = depth
		return
	}
	depths(n.Left(), depth+1, out)
	depths(n.Right(), depth+1, out)
}

// ============================================================================
// Tree Builder
// ============================================================================

func TestBuildTreeEmpty(t *testing.T) {
	if root := BuildTree(Frequencies{}); root != nil {
		t.Fatalf("BuildTree on empty table returned %+v", root)
	}
}

func TestBuildTreeExample(t *testing.T) {
	root := BuildTree(Count([]byte("aaaabbbccd")))
	if root.Weight() != 10 {
		t.Fatalf("root weight = %d, want 10", root.Weight())
	}
	table := mustCodeTable(t, root)

	want := map[byte]string{'a': "0", 'b': "10", 'd': "110", 'c': "111"}
	for sym, code := range want {
		c, ok := table.Code(sym)
		if !ok {
			t.Fatalf("no code for %q", sym)
		}
		if got := codeString(c); got != code {
			t.Errorf("code(%q) = %s, want %s", sym, got, code)
		}
	}
}

func TestBuildTreeSingleSymbol(t *testing.T) {
	cases := []struct {
		sym         byte
		placeholder byte
	}{
		{'z', '{'},
		{0x00, 0x01},
		{0xFF, 0x00},
	}
	for _, tc := range cases {
		root := BuildTree(Count([]byte{tc.sym, tc.sym, tc.sym}))
		if root.Leaf() {
			t.Fatalf("symbol %#02x: root is a leaf", tc.sym)
		}
		if root.Leaves() != 2 {
			t.Fatalf("symbol %#02x: %d leaves, want 2", tc.sym, root.Leaves())
		}
		if l := root.Left(); !l.Leaf() || l.Symbol() != tc.placeholder || l.Weight() != 0 {
			t.Fatalf("symbol %#02x: left = (%#02x, %d), want placeholder %#02x", tc.sym, l.Symbol(), l.Weight(), tc.placeholder)
		}
		table := mustCodeTable(t, root)
		c, ok := table.Code(tc.sym)
		if !ok || codeString(c) != "1" {
			t.Fatalf("symbol %#02x: code %q, want 1", tc.sym, codeString(c))
		}
	}
}

func TestBuildTreeTieBreakUsesSymbolOrder(t *testing.T) {
	table := mustCodeTable(t, BuildTree(Count([]byte("dcba"))))
	want := map[byte]string{'a': "00", 'b': "01", 'c': "10", 'd': "11"}
	for sym, code := range want {
		c, _ := table.Code(sym)
		if got := codeString(c); got != code {
			t.Errorf("code(%q) = %s, want %s", sym, got, code)
		}
	}
}

func TestBuildTreeIsOptimal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		var f Frequencies
		var weights []uint64
		n := rng.Intn(Symbols-1) + 2
		for _, sym := range rng.Perm(Symbols)[:n] {
			f[sym] = uint64(rng.Intn(1000) + 1)
		}
		for _, c := range f {
			if c != 0 {
				weights = append(weights, c)
			}
		}

		root := BuildTree(f)
		if got := root.Leaves(); got != len(weights) {
			t.Fatalf("iter %d: %d leaves, want %d", iter, got, len(weights))
		}
		table := mustCodeTable(t, root)
		if got, want := table.EncodedBits(f), optimalCost(weights); got != want {
			t.Fatalf("iter %d: weighted path length %d, optimal %d", iter, got, want)
		}
	}
}

func TestBuildTreeDeterministic(t *testing.T) {
	f := Count([]byte("the quick brown fox jumps over the lazy dog"))
	first := make(map[byte]int)
	depths(BuildTree(f), 0, first)
	for i := 0; i < 20; i++ {
		again := make(map[byte]int)
		depths(BuildTree(f), 0, again)
		for sym, d := range first {
			if again[sym] != d {
				t.Fatalf("run %d: depth(%q) = %d, want %d", i, sym, again[sym], d)
			}
		}
	}
}

// ============================================================================
// Serialized Tree
// ============================================================================

func serializeTree(t testing.TB, root *Node) ([]byte, uint64) {
	t.Helper()
	w := bitstream.NewWriter()
	if err := writeTree(w, root); err != nil {
		t.Fatalf("writeTree failed: %v", err)
	}
	out, err := w.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return out, w.Len()
}

func sameShape(a, b *Node) bool {
	if a.Leaf() || b.Leaf() {
		return a.Leaf() && b.Leaf() && a.Symbol() == b.Symbol()
	}
	return sameShape(a.Left(), b.Left()) && sameShape(a.Right(), b.Right())
}

func TestTreeSerializationRoundTrip(t *testing.T) {
	inputs := []string{
		"aaaabbbccd",
		"zzzz",
		"the quick brown fox jumps over the lazy dog",
	}
	all := make([]byte, Symbols)
	for i := range all {
		all[i] = byte(i)
	}
	inputs = append(inputs, string(all))

	for _, in := range inputs {
		root := BuildTree(Count([]byte(in)))
		section, bits := serializeTree(t, root)
		if want := serializedTreeBits(root.Leaves()); bits != want {
			t.Fatalf("%q: %d bits, want %d", in, bits, want)
		}
		back, err := parseTreeSection(section, bits)
		if err != nil {
			t.Fatalf("%q: parseTreeSection failed: %v", in, err)
		}
		if !sameShape(root, back) {
			t.Fatalf("%q: tree shape changed across serialization", in)
		}
	}
}

func TestParseTreeSectionRejectsMalformed(t *testing.T) {
	writeBits := func(build func(w *bitstream.Writer)) ([]byte, uint64) {
		w := bitstream.NewWriter()
		build(w)
		out, err := w.Finish()
		if err != nil {
			t.Fatalf("Finish failed: %v", err)
		}
		return out, w.Len()
	}
	leaf := func(w *bitstream.Writer, sym byte) {
		_ = w.WriteBit(true)
		_ = w.WriteBits(uint64(sym), 8)
	}

	cases := []struct {
		name  string
		build func(w *bitstream.Writer)
	}{
		{"single leaf", func(w *bitstream.Writer) { leaf(w, 'a') }},
		{"duplicate symbol", func(w *bitstream.Writer) {
			_ = w.WriteBit(false)
			leaf(w, 'a')
			leaf(w, 'a')
		}},
		{"truncated", func(w *bitstream.Writer) {
			_ = w.WriteBit(false)
			leaf(w, 'a')
		}},
		{"trailing bits", func(w *bitstream.Writer) {
			_ = w.WriteBit(false)
			leaf(w, 'a')
			leaf(w, 'b')
			_ = w.WriteBit(false)
		}},
		{"too deep", func(w *bitstream.Writer) {
			for i := 0; i < 300; i++ {
				_ = w.WriteBit(false)
			}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			section, bits := writeBits(tc.build)
			_, err := parseTreeSection(section, bits)
			if !errors.Is(err, ErrCorruptContainer) {
				t.Fatalf("got %v, want ErrCorruptContainer", err)
			}
		})
	}
}
