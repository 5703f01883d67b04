package ir

import "github.com/m4rs-mt/ILGPU-sub010/ir/irerr"

// verifyMethod checks the structural invariants a builder can enforce
// without consulting dominance (§8's universal invariants 1-7; the
// dominance-dependent invariants 8-11 live in package cfg, which verifies
// against the public Method/BasicBlock surface rather than being folded in
// here, to avoid ir depending on its own dominator-analysis consumer).
func verifyMethod(m *Method) *irerr.Result {
	result := &irerr.Result{}

	seen := make(map[NodeId]bool)
	checkID := func(id NodeId, what string) {
		if seen[id] {
			result.Add(irerr.New(irerr.VerificationFailed, nil, "%s: duplicate node id %d in %s", what, id, m))
		}
		seen[id] = true
	}

	for _, p := range m.Params {
		checkID(p.id, "parameter")
	}

	for _, b := range m.Blocks {
		checkID(b.id, "block")

		if b.terminator == nil {
			result.Add(irerr.New(irerr.VerificationFailed, b.pos, "%s has no terminator", b))
		} else if !b.terminator.kind.IsTerminator() {
			result.Add(irerr.New(irerr.VerificationFailed, b.pos, "%s terminator %s is not a terminator kind", b, b.terminator))
		}

		for _, v := range b.Instrs {
			if v == nil {
				continue
			}
			checkID(v.id, "value")
			if v.kind.IsTerminator() {
				result.Add(irerr.New(irerr.VerificationFailed, v.pos, "%s: terminator kind %s found outside terminator position", v, v.kind))
			}
			if v.kind == KPhi {
				if len(v.Operands) != len(b.Preds) {
					result.Add(irerr.New(irerr.VerificationFailed, v.pos,
						"%s: phi has %d operands but block has %d predecessors", v, len(v.Operands), len(b.Preds)))
				}
			}
			for _, o := range v.Operands {
				if o == nil {
					result.Add(irerr.New(irerr.VerificationFailed, v.pos, "%s: nil operand", v))
				}
			}
		}

		for _, s := range b.Succs {
			found := false
			for _, p := range s.Preds {
				if p == b {
					found = true
					break
				}
			}
			if !found {
				result.Add(irerr.New(irerr.VerificationFailed, b.pos, "%s -> %s successor edge has no matching predecessor edge", b, s))
			}
		}
	}

	if m.Entry == nil && len(m.Blocks) > 0 {
		result.Add(irerr.New(irerr.VerificationFailed, nil, "%s has blocks but no entry block", m))
	}

	return result
}
