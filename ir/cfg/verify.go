package cfg

import (
	"github.com/m4rs-mt/ILGPU-sub010/ir"
	"github.com/m4rs-mt/ILGPU-sub010/ir/irerr"
)

// VerifyDominance checks the dominance-dependent invariants of §8: every
// non-phi operand's definition dominates the block that uses it, and
// every phi incoming value's definition dominates the corresponding
// predecessor block. It is kept out of package ir's own verifyMethod so
// that ir never has to import its own analysis consumer.
func VerifyDominance(m *ir.Method) *irerr.Result {
	result := &irerr.Result{}
	if len(m.Blocks) == 0 {
		return result
	}
	tree := BuildDominatorTree(m)

	definedIn := make(map[*ir.Value]*ir.BasicBlock)
	for _, p := range m.Params {
		definedIn[p] = nil // params dominate everything; nil is the sentinel
	}
	for _, b := range m.Blocks {
		for _, v := range b.Values() {
			definedIn[v] = b
		}
	}

	checkDominates := func(def *ir.Value, useBlock *ir.BasicBlock, userDesc string) {
		defBlock, ok := definedIn[def]
		if !ok {
			return // defined outside this method's current blocks (stale pointer); not this pass's concern
		}
		if defBlock == nil {
			return // a parameter
		}
		if defBlock == useBlock || tree.Dominates(defBlock, useBlock) {
			return
		}
		result.Add(irerr.New(irerr.VerificationFailed, def.Pos(),
			"%s in %s: definition %s in %s does not dominate its use", userDesc, useBlock, def, defBlock))
	}

	for _, b := range m.Blocks {
		for _, v := range b.Values() {
			if phi, ok := ir.AsPhi(v); ok {
				preds := b.Predecessors()
				for i := range preds {
					if i >= len(phi.Operands) {
						continue
					}
					incoming := ir.ResolveDirectTarget(phi.Operands[i])
					if incoming == nil {
						continue
					}
					checkDominates(incoming, preds[i], phi.String())
				}
				continue
			}
			for _, o := range v.Operands {
				resolved := ir.ResolveDirectTarget(o)
				if resolved == nil {
					continue
				}
				checkDominates(resolved, b, v.String())
			}
		}
		if t := b.Terminator(); t != nil {
			for _, o := range t.Operands {
				resolved := ir.ResolveDirectTarget(o)
				if resolved == nil {
					continue
				}
				checkDominates(resolved, b, t.String())
			}
		}
	}

	return result
}
