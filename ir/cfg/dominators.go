package cfg

import "github.com/m4rs-mt/ILGPU-sub010/ir"

// DomTree is the immediate-dominator relation over a method's blocks,
// computed with the iterative Cooper-Harvey-Kennedy algorithm (the
// algorithm the reference toolchain's lift.go cites by name for this same
// purpose). It is a snapshot: rebuild it after any control-flow update.
type DomTree struct {
	method *ir.Method
	rpo    []*ir.BasicBlock
	idom   []*ir.BasicBlock // indexed by BasicBlock.Index; idom[entry.Index] == entry
}

// BuildDominatorTree computes the dominator tree of m from its entry
// block. Panics if m has no entry block (mirroring the reference
// toolchain's fail-fast convention for malformed input).
func BuildDominatorTree(m *ir.Method) *DomTree {
	rpo := RPO(m, ir.Forward)
	if len(rpo) == 0 {
		panic("cfg: BuildDominatorTree: method has no reachable blocks")
	}

	rpoNum := make(map[*ir.BasicBlock]int, len(rpo))
	for i, b := range rpo {
		rpoNum[b] = i
	}

	idom := make([]*ir.BasicBlock, len(m.Blocks))
	entry := rpo[0]
	idom[entry.Index] = entry

	changed := true
	for changed {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *ir.BasicBlock
			for _, p := range b.Predecessors() {
				if idom[p.Index] == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, rpoNum)
			}
			if newIdom != nil && idom[b.Index] != newIdom {
				idom[b.Index] = newIdom
				changed = true
			}
		}
	}

	return &DomTree{method: m, rpo: rpo, idom: idom}
}

// intersect walks two blocks up the (partially built) dominator tree to
// their nearest common ancestor, using RPO number as the "finger" ordering
// from the CHK paper: a block with a higher RPO number is deeper in (or
// sibling-equal to) the tree, so repeatedly stepping the deeper finger up
// its own idom chain converges.
func intersect(a, b *ir.BasicBlock, idom []*ir.BasicBlock, rpoNum map[*ir.BasicBlock]int) *ir.BasicBlock {
	for a != b {
		for rpoNum[a] > rpoNum[b] {
			a = idom[a.Index]
		}
		for rpoNum[b] > rpoNum[a] {
			b = idom[b.Index]
		}
	}
	return a
}

// ImmediateDominator returns b's immediate dominator, or b itself for the
// entry block.
func (t *DomTree) ImmediateDominator(b *ir.BasicBlock) *ir.BasicBlock {
	return t.idom[b.Index]
}

// Dominates reports whether a dominates b (every path from the entry to b
// passes through a), including the reflexive case a == b.
func (t *DomTree) Dominates(a, b *ir.BasicBlock) bool {
	for {
		if a == b {
			return true
		}
		parent := t.idom[b.Index]
		if parent == b {
			return false // reached entry without matching a
		}
		b = parent
	}
}

// CommonDominator returns the closest block that dominates both a and b.
func (t *DomTree) CommonDominator(a, b *ir.BasicBlock) *ir.BasicBlock {
	rpoNum := make(map[*ir.BasicBlock]int, len(t.rpo))
	for i, blk := range t.rpo {
		rpoNum[blk] = i
	}
	return intersect(a, b, t.idom, rpoNum)
}

// DominanceFrontier computes the dominance frontier of every block
// (Cytron et al.'s algorithm): the set of blocks where b's dominance
// "runs out" — reachable from b without b strictly dominating them.
func (t *DomTree) DominanceFrontier() map[*ir.BasicBlock][]*ir.BasicBlock {
	df := make(map[*ir.BasicBlock][]*ir.BasicBlock, len(t.method.Blocks))
	for _, b := range t.method.Blocks {
		if len(b.Predecessors()) < 2 {
			continue
		}
		idomB := t.idom[b.Index]
		for _, p := range b.Predecessors() {
			for runner := p; runner != idomB; runner = t.idom[runner.Index] {
				df[runner] = append(df[runner], b)
			}
		}
	}
	return df
}
