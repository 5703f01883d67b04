package ir

import (
	"fmt"

	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

// BasicBlock is an ordered sequence of non-terminator Values followed by
// exactly one Terminator value, owned by a Method.
//
// Predecessor/successor links and Index are derived data: they are only
// valid between control-flow updates (see (*Method).updateControlFlow) and
// are recomputed from scratch on every update, never incrementally patched
// by ordinary mutation.
type BasicBlock struct {
	id NodeId

	// Index is this block's position in the method's forward
	// reverse-post-order, assigned by the most recent control-flow
	// update. It is -1 between method creation and the first update.
	Index int

	method *Method

	// Instrs holds the block's non-terminator values in program order.
	// Entries may be nil after a rewrite marks them dead (mirroring the
	// reference toolchain's lift.go "gaps" convention); they are
	// physically compacted when the builder completes, and a GC rebuild
	// does not copy them.
	Instrs []*Value
	gaps   int

	terminator *Value

	Preds []*BasicBlock
	Succs []*BasicBlock

	pos loc.Location

	// builderOpen is true only while a BlockBuilder for this block is
	// live; it gates append/remove/set-terminator, per §4.D's "fatal
	// invariant violation" failure semantics.
	builderOpen bool
}

// ID returns the block's unique node identifier.
func (b *BasicBlock) ID() NodeId { return b.id }

// Method returns the method that owns b.
func (b *BasicBlock) Method() *Method { return b.method }

// Pos returns the location recorded when the block was created.
func (b *BasicBlock) Pos() loc.Location { return b.pos }

// Terminator returns the block's single terminating value, or nil if the
// block has not yet been sealed with a terminator.
func (b *BasicBlock) Terminator() *Value { return b.terminator }

// Predecessors returns the block's current predecessor list. Valid only
// between control-flow updates.
func (b *BasicBlock) Predecessors() []*BasicBlock { return b.Preds }

// Successors returns the block's current successor list, which always
// equals Terminator().Targets after a control-flow update.
func (b *BasicBlock) Successors() []*BasicBlock { return b.Succs }

// Values returns the block's non-terminator values, in order, skipping any
// entries already marked dead by a rewrite.
func (b *BasicBlock) Values() []*Value {
	out := make([]*Value, 0, len(b.Instrs))
	for _, v := range b.Instrs {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// String returns a short label for the block, e.g. "bb3".
func (b *BasicBlock) String() string {
	return fmt.Sprintf("bb%d", b.Index)
}

// predIndex returns i such that b.Preds[i] == from, the position a Phi's
// edge for that predecessor occupies. Panics if from is not a predecessor,
// mirroring the reference toolchain's ssa.BasicBlock.predIndex.
func (b *BasicBlock) predIndex(from *BasicBlock) int {
	for i, p := range b.Preds {
		if p == from {
			return i
		}
	}
	panic(fmt.Sprintf("ir: no edge %s -> %s", from, b))
}

// requireBuilder is consulted by every mutating operation; appending to
// (or removing from) a block without an open builder is a programming
// error (§4.D).
func (b *BasicBlock) requireBuilder() {
	if !b.builderOpen {
		panic(fmt.Sprintf("ir: %s mutated without an active builder", b))
	}
}

// append adds a non-terminator value to the block, panicking (via
// requireBuilder) when no builder is open for it.
func (b *BasicBlock) append(v *Value) {
	b.requireBuilder()
	v.block = b
	b.Instrs = append(b.Instrs, v)
}

// setTerminator installs (or replaces) the block's terminator, marking the
// method dirty. Re-setting an existing terminator requires an active
// builder, per §4.D.
func (b *BasicBlock) setTerminator(v *Value) {
	b.requireBuilder()
	v.block = b
	b.terminator = v
	b.method.markDirty()
}

// remove logically deletes v from the block: it is nilled out of Instrs
// (physical compaction happens when the builder completes).
func (b *BasicBlock) remove(v *Value) {
	b.requireBuilder()
	for i, existing := range b.Instrs {
		if existing == v {
			b.Instrs[i] = nil
			b.gaps++
			return
		}
	}
}

// compact drops nil entries from Instrs, reusing the backing array when
// there is room.
func (b *BasicBlock) compact() {
	if b.gaps == 0 {
		return
	}
	j := 0
	for _, v := range b.Instrs {
		if v != nil {
			b.Instrs[j] = v
			j++
		}
	}
	for i := j; i < len(b.Instrs); i++ {
		b.Instrs[i] = nil
	}
	b.Instrs = b.Instrs[:j]
	b.gaps = 0
}

// phis returns the prefix of b's values that are Phi nodes, following the
// convention that phis are always placed first in the block (mirroring
// ssa.BasicBlock.phis in the reference toolchain pack).
func (b *BasicBlock) phis() []*Value {
	var out []*Value
	for _, v := range b.Instrs {
		if v == nil {
			continue
		}
		if v.kind != KPhi {
			break
		}
		out = append(out, v)
	}
	return out
}
