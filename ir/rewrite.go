package ir

// Rewriter drives a single optimization pass over a method that already
// has an open MethodBuilder. It layers two things on top of the builder:
// the one-way Replace/Remove primitives of §4.C, and a "converted" set so
// a worklist-style pass can avoid revisiting a value it has already
// rewritten in this session.
type Rewriter struct {
	mb        *MethodBuilder
	converted map[*Value]bool
}

// NewRewriter wraps an open MethodBuilder for rewrite-style mutation.
func NewRewriter(mb *MethodBuilder) *Rewriter {
	return &Rewriter{mb: mb, converted: make(map[*Value]bool)}
}

// Replace points old at its replacement: every future ResolveDirectTarget(old)
// returns new (after following the chain to its fixpoint), and every
// current referrer of old is re-pointed at new. old itself stays in its
// block's instruction list, still IsReplaced, until Remove deletes it or
// the next GC rebuild drops it.
//
// Replace is monotonic: once old has a forward target, calling Replace on
// it again is a programming error (§4.C "a value, once replaced, is never
// un-replaced").
func (r *Rewriter) Replace(old, new *Value) {
	if old.forward != nil {
		panicInvalidOperation(old.pos, "Replace: %s has already been replaced", old)
	}
	if old == new {
		panicInvalidOperation(old.pos, "Replace: %s cannot replace itself", old)
	}
	old.forward = new
	for _, user := range old.referrers {
		retargetOperands(user, old, new)
		new.addReferrer(user)
	}
	old.referrers = nil
	r.converted[new] = true
}

// retargetOperands rewrites every occurrence of from in user's operand
// list to to. Phi operands are included: SetIncoming's edge alignment with
// Predecessors() is unaffected since this only changes the value stored at
// an existing slot, never the slot count.
func retargetOperands(user, from, to *Value) {
	for i, o := range user.Operands {
		if o == from {
			user.Operands[i] = to
		}
	}
}

// Remove logically deletes v from its block. v must have no remaining
// referrers (callers typically Replace before Remove, or confirm
// dead-code status via Referrers()).
func (r *Rewriter) Remove(v *Value) {
	if len(v.referrers) != 0 {
		panicInvalidProgram(v.pos, "Remove: %s still has %d referrer(s)", v, len(v.referrers))
	}
	v.block.remove(v)
}

// ReplaceAndRemove is Replace followed by Remove, the common case of a
// pass substituting one value for another and discarding the original.
func (r *Rewriter) ReplaceAndRemove(old, new *Value) {
	r.Replace(old, new)
	r.Remove(old)
}

// IsConverted reports whether v has already been produced or touched by
// this rewrite session, letting a worklist pass skip it.
func (r *Rewriter) IsConverted(v *Value) bool { return r.converted[v] }

// MarkConverted records that v has been handled by this pass, without
// otherwise changing it.
func (r *Rewriter) MarkConverted(v *Value) { r.converted[v] = true }

// Block returns a BlockBuilder for appending replacement values into b,
// delegating to the wrapped MethodBuilder.
func (r *Rewriter) Block(b *BasicBlock) *BlockBuilder { return r.mb.Block(b) }

// RunWorklist applies pass to every value in m's current blocks (in the
// method's block-list order, program order within a block, terminator
// last). Each sweep skips values already marked converted and marks every
// value it visits; a value the pass adds unmarked is visited by the next
// sweep. It stops after a sweep in which pass reports no change — the standard worklist
// fixpoint idiom used by the rewrite-style optimization passes named in
// §4.G ("a rewriter exposes a worklist-driven pass pattern").
func (r *Rewriter) RunWorklist(pass func(r *Rewriter, v *Value) bool) {
	for {
		changed := false
		for _, b := range r.mb.method.Blocks {
			for _, v := range b.Instrs {
				if v == nil || r.IsConverted(v) {
					continue
				}
				if pass(r, v) {
					changed = true
				}
				r.MarkConverted(v)
			}
			if t := b.terminator; t != nil && !r.IsConverted(t) {
				if pass(r, t) {
					changed = true
				}
				r.MarkConverted(t)
			}
		}
		if !changed {
			return
		}
	}
}
