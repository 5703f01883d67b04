package ir

import (
	"github.com/m4rs-mt/ILGPU-sub010/ir/irerr"
	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

// rebuilder walks a method (and, transitively, any method it calls) and
// emits an equivalent method into a destination context, allocating fresh
// NodeIds and re-unifying types into the destination's universe. It
// backs both GC's per-method rebuild (§4.F step 4) and cross-context
// import (§4.F "import") and extraction (§4.E "extract_to_context").
type rebuilder struct {
	dst *Context

	methods map[*Method]*Method
	blocks  map[*BasicBlock]*BasicBlock
	values  map[*Value]*Value

	// keepOriginal, when non-nil, lets a caller opt every referenced
	// method out of cloning: remap leaves a call's Extra pointing at the
	// original *Method instead of recursing into cloneMethod. GC's
	// per-method rebuild sets this unconditionally, since each dirty
	// method is rebuilt independently (in parallel, one rebuilder per
	// method) and call-edge fixup happens afterward in a single pass
	// over the whole registry (see (*Context).Collect). Cross-context import
	// leaves this nil: there, everything reachable must be cloned.
	keepOriginal func(*Method) bool
}

func newRebuilder(dst *Context) *rebuilder {
	return &rebuilder{
		dst:     dst,
		methods: make(map[*Method]*Method),
		blocks:  make(map[*BasicBlock]*BasicBlock),
		values:  make(map[*Value]*Value),
	}
}

// cloneMethod returns the destination-context equivalent of src, cloning it
// (and any method it calls) on first encounter and returning the cached
// result on subsequent encounters — this is what makes recursive or mutually
// recursive call graphs terminate.
func (r *rebuilder) cloneMethod(src *Method) (*Method, error) {
	if nm, ok := r.methods[src]; ok {
		return nm, nil
	}

	dst := r.dst
	if dst != src.ctx {
		// Cross-context import/extraction: a same-named method already
		// registered in dst is a genuine conflict. An in-place GC
		// rebuild (dst == src.ctx) instead finds src itself here, which
		// is expected and not a conflict.
		for _, existing := range dst.Methods() {
			if existing.Name == src.Name {
				return nil, irerr.New(irerr.VerificationFailed, loc.Unknown,
					"rebuild: destination context already declares a method named %q", src.Name)
			}
		}
	}

	nm := &Method{
		id:         dst.nextID(),
		Name:       src.Name,
		ReturnType: dst.universe.reintern(src.ReturnType),
		Flags:      src.Flags,
		ctx:        dst,
	}
	r.methods[src] = nm

	dst.mu.Lock()
	dst.nextHandle++
	nm.handle = MethodHandle(dst.nextHandle)
	dst.methods[nm.handle] = nm
	dst.byID[nm.id] = nm
	dst.mu.Unlock()

	for _, p := range src.Params {
		nm.Params = append(nm.Params, r.cloneValueShallow(p, nil))
	}

	for _, b := range src.Blocks {
		nb := &BasicBlock{id: dst.nextID(), Index: b.Index, method: nm, pos: b.pos}
		r.blocks[b] = nb
		nm.Blocks = append(nm.Blocks, nb)
		if b == src.Entry {
			nm.Entry = nb
		}
	}

	for _, b := range src.Blocks {
		nb := r.blocks[b]
		for _, v := range b.Instrs {
			// Removed (nil) and replaced values are not carried over.
			if v == nil || v.forward != nil {
				continue
			}
			nb.Instrs = append(nb.Instrs, r.cloneValueShallow(v, nb))
		}
		if b.terminator != nil {
			nb.terminator = r.cloneValueShallow(b.terminator, nb)
		}
	}

	// Second pass: every value and block referenced from src now has a
	// counterpart, so operand, target and predecessor/successor lists
	// can be remapped.
	for _, b := range src.Blocks {
		nb := r.blocks[b]
		for _, v := range b.Instrs {
			if v == nil || v.forward != nil {
				continue
			}
			if err := r.remap(v, r.values[v]); err != nil {
				return nil, err
			}
		}
		if b.terminator != nil {
			if err := r.remap(b.terminator, nb.terminator); err != nil {
				return nil, err
			}
		}
		nb.Preds = r.remapBlockList(b.Preds)
		nb.Succs = r.remapBlockList(b.Succs)
	}

	buildReferrers(nm)

	return nm, nil
}

// buildReferrers recomputes every value's referrer list from scratch,
// mirroring the reference toolchain's Function.buildReferrers: called once
// after a method's structure is fully wired (by a builder's complete, or a
// rebuild), never incrementally.
func buildReferrers(m *Method) {
	for _, p := range m.Params {
		p.referrers = nil
	}
	for _, b := range m.Blocks {
		for _, v := range b.Instrs {
			if v != nil {
				v.referrers = nil
			}
		}
		if b.terminator != nil {
			b.terminator.referrers = nil
		}
	}
	for _, b := range m.Blocks {
		for _, v := range b.Instrs {
			if v == nil {
				continue
			}
			for _, o := range v.Operands {
				ResolveDirectTarget(o).addReferrer(v)
			}
		}
		if b.terminator != nil {
			for _, o := range b.terminator.Operands {
				ResolveDirectTarget(o).addReferrer(b.terminator)
			}
		}
	}
}

func (r *rebuilder) cloneValueShallow(v *Value, block *BasicBlock) *Value {
	nv := &Value{
		id:       r.dst.nextID(),
		kind:     v.kind,
		typ:      r.dst.universe.reintern(v.typ),
		ExtraInt: v.ExtraInt,
		Flags:    v.Flags,
		block:    block,
		pos:      v.pos,
		name:     v.name,
	}
	r.values[v] = nv
	return nv
}

func (r *rebuilder) remap(src, dst *Value) error {
	dst.Operands = make([]*Value, len(src.Operands))
	for i, o := range src.Operands {
		resolved := ResolveDirectTarget(o)
		nv, ok := r.values[resolved]
		if !ok {
			return irerr.New(irerr.InvalidProgram, src.pos, "rebuild: operand %s of %s not found in source method", resolved, src)
		}
		dst.Operands[i] = nv
	}

	dst.Targets = make([]*BasicBlock, len(src.Targets))
	for i, t := range src.Targets {
		nb, ok := r.blocks[t]
		if !ok {
			return irerr.New(irerr.InvalidProgram, src.pos, "rebuild: target block %s of %s not found in source method", t, src)
		}
		dst.Targets[i] = nb
	}

	if callee, ok := src.Extra.(*Method); ok {
		if r.keepOriginal != nil && r.keepOriginal(callee) {
			dst.Extra = callee
		} else {
			clonedCallee, err := r.cloneMethod(callee)
			if err != nil {
				return err
			}
			dst.Extra = clonedCallee
		}
	} else {
		dst.Extra = src.Extra
	}

	return nil
}

func (r *rebuilder) remapBlockList(bs []*BasicBlock) []*BasicBlock {
	out := make([]*BasicBlock, len(bs))
	for i, b := range bs {
		out[i] = r.blocks[b]
	}
	return out
}
