// Package cfg implements the control-flow analyses named in component H:
// reverse post-order traversal, dominator trees (Cooper-Harvey-Kennedy),
// and exit-block discovery. It operates entirely through ir's exported
// Method/BasicBlock surface, so it never needs write access to a method
// and never takes part in the single-writer builder arbitration — callers
// are expected to hold (directly or via a completed builder) a read lock
// for the duration of an analysis, per §5.
package cfg

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/m4rs-mt/ILGPU-sub010/ir"
)

// RPO returns the blocks of m in reverse post-order. dir == ir.Forward
// walks Successors() from Entry(); dir == ir.Backward walks
// Predecessors() from ExitBlock(). Successor/predecessor order is walked
// exactly as stored, so the result is deterministic for a fixed IR (§8's
// RPO-determinism property).
func RPO(m *ir.Method, dir ir.Direction) []*ir.BasicBlock {
	var root *ir.BasicBlock
	next := func(b *ir.BasicBlock) []*ir.BasicBlock { return b.Successors() }
	if dir == ir.Backward {
		root = m.ExitBlock()
		next = func(b *ir.BasicBlock) []*ir.BasicBlock { return b.Predecessors() }
	} else if len(m.Blocks) > 0 {
		root = m.Entry
	}
	if root == nil {
		return nil
	}

	visited := make(map[*ir.BasicBlock]bool)
	var post []*ir.BasicBlock
	var visit func(*ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range next(b) {
			visit(s)
		}
		post = append(post, b)
	}
	visit(root)

	out := make([]*ir.BasicBlock, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}

// ExitBlocks returns every block in m with no successors, in the order of
// m.Blocks (creation order). Unlike (*ir.Method).ExitBlock, it does not require exactly one.
func ExitBlocks(m *ir.Method) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, b := range m.Blocks {
		if len(b.Successors()) == 0 {
			out = append(out, b)
		}
	}
	return out
}

// BlockSet is a word-packed set of a method's blocks, keyed by
// BasicBlock.Index (so it is only valid between control-flow updates, like
// Index itself). The dominator and dataflow analyses in this module do not
// use it; they keep their own maps and slices.
type BlockSet struct {
	bits   *bitset.BitSet
	blocks []*ir.BasicBlock // Index -> block, for iteration
}

// NewBlockSet allocates an empty set sized for m's current blocks.
func NewBlockSet(m *ir.Method) *BlockSet {
	blocks := make([]*ir.BasicBlock, len(m.Blocks))
	for _, b := range m.Blocks {
		if b.Index >= 0 && b.Index < len(blocks) {
			blocks[b.Index] = b
		}
	}
	return &BlockSet{bits: bitset.New(uint(len(m.Blocks))), blocks: blocks}
}

// Add inserts b into the set.
func (s *BlockSet) Add(b *ir.BasicBlock) { s.bits.Set(uint(b.Index)) }

// Remove deletes b from the set.
func (s *BlockSet) Remove(b *ir.BasicBlock) { s.bits.Clear(uint(b.Index)) }

// Contains reports whether b is in the set.
func (s *BlockSet) Contains(b *ir.BasicBlock) bool { return s.bits.Test(uint(b.Index)) }

// Union adds every block of other into s, returning whether s changed.
func (s *BlockSet) Union(other *BlockSet) bool {
	before := s.bits.Count()
	s.bits.InPlaceUnion(other.bits)
	return s.bits.Count() != before
}

// Len returns the number of blocks currently in the set.
func (s *BlockSet) Len() int { return int(s.bits.Count()) }

// Blocks returns the set's members in index order.
func (s *BlockSet) Blocks() []*ir.BasicBlock {
	out := make([]*ir.BasicBlock, 0, s.bits.Count())
	for i, e := s.bits.NextSet(0); e; i, e = s.bits.NextSet(i + 1) {
		if int(i) < len(s.blocks) && s.blocks[i] != nil {
			out = append(out, s.blocks[i])
		}
	}
	return out
}
