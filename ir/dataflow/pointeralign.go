package dataflow

import "github.com/m4rs-mt/ILGPU-sub010/ir"

// unknown marks "no contributing definition reached this use yet" during
// global propagation; it is distinct from SafeMinimum so Merge can treat
// it as the lattice's identity element rather than a real constraint.
const unknown Value = -1

// PointerAlignment computes a conservative byte-alignment guarantee for
// every pointer- or view-typed value in a method (§4.I). Alloca seeds a
// known alignment from the allocated type and NewView seeds SafeMinimum;
// address-computing ops
// (LoadElementAddress, LoadFieldAddress, Convert, Phi) propagate the
// alignment of their base operand, min-merging across phi edges since
// alignment can only be as good as the worst-aligned contributor. A
// parameter's alignment comes from ParamAlign, letting RunGlobal thread
// call-site argument alignment into a callee.
type PointerAlignment struct {
	SafeMinimum int
	PlatformMax int
	ParamAlign  func(v *ir.Value) (Value, bool)
}

func (p PointerAlignment) Default() Value { return p.SafeMinimum }

func (p PointerAlignment) Seed(v *ir.Value) (Value, bool) {
	switch v.Kind() {
	case ir.KAlloca:
		if t := v.Type(); t != nil {
			if pt, ok := t.(interface{ Elem() ir.Type }); ok {
				return pt.Elem().Align(p.PlatformMax), true
			}
			return t.Align(p.PlatformMax), true
		}
	case ir.KNewView:
		return p.SafeMinimum, true
	case ir.KParameter:
		if p.ParamAlign != nil {
			if a, ok := p.ParamAlign(v); ok {
				return a, true
			}
		}
	}
	return 0, false
}

func (p PointerAlignment) Merge(a, b Value) Value {
	if a == unknown {
		return b
	}
	if b == unknown {
		return a
	}
	if a < b {
		return a
	}
	return b
}

// Transfer applies the two address-arithmetic propagation rules named
// explicitly by §4.I. LoadElementAddress can only move to a stride multiple
// of the element type's own alignment, so the result is at least as aligned
// as the element type demands even off a poorly-aligned base:
// max(align(source), element_type.alignment). LoadFieldAddress instead adds
// a fixed, possibly-unaligned byte offset, so the result can be no better
// aligned than that offset allows: min(align(source), field.alignment_offset).
// Seeded values (Alloca, NewView, and parameters with a ParamAlign entry)
// keep their seed.
func (p PointerAlignment) Transfer(v *ir.Value, operand func(*ir.Value) Value) Value {
	switch v.Kind() {
	case ir.KAlloca, ir.KNewView, ir.KParameter:
		if seed, ok := p.Seed(v); ok {
			return seed
		}
	case ir.KLoadElementAddress:
		if len(v.Operands) == 0 {
			return p.SafeMinimum
		}
		base := operand(v.Operands[0])
		elemAlign := p.elementAlignment(v)
		if elemAlign > base {
			return elemAlign
		}
		return base
	case ir.KLoadFieldAddress:
		if len(v.Operands) == 0 {
			return p.SafeMinimum
		}
		base := operand(v.Operands[0])
		fieldAlign := p.fieldOffsetAlignment(v)
		if fieldAlign < base {
			return fieldAlign
		}
		return base
	case ir.KConvert:
		if len(v.Operands) > 0 {
			return operand(v.Operands[0])
		}
	case ir.KPhi:
		result := unknown
		for _, o := range v.Operands {
			result = p.Merge(result, operand(o))
		}
		if result == unknown {
			return p.SafeMinimum
		}
		return result
	}
	return p.SafeMinimum
}

// elementAlignment returns the natural alignment of the element type a
// LoadElementAddress computes the address of, read off the instruction's
// own result type (a pointer/view to that element).
func (p PointerAlignment) elementAlignment(v *ir.Value) Value {
	if t := v.Type(); t != nil {
		if pt, ok := t.(interface{ Elem() ir.Type }); ok {
			return pt.Elem().Align(p.PlatformMax)
		}
	}
	return p.SafeMinimum
}

// fieldOffsetAlignment returns "field.alignment_offset" (§4.I): how well
// aligned a field's byte offset from its structure's base guarantees the
// field address to be, independent of the structure's own alignment.
func (p PointerAlignment) fieldOffsetAlignment(v *ir.Value) Value {
	if len(v.Operands) == 0 {
		return p.SafeMinimum
	}
	baseType := v.Operands[0].Type()
	if baseType == nil {
		return p.SafeMinimum
	}
	pt, ok := baseType.(interface{ Elem() ir.Type })
	if !ok {
		return p.SafeMinimum
	}
	st, ok := pt.Elem().(interface {
		FieldOffset(i int, platformMax int) int
	})
	if !ok {
		return p.SafeMinimum
	}
	offset := st.FieldOffset(int(v.ExtraInt), p.PlatformMax)
	return offsetAlignment(offset, p.PlatformMax)
}

// offsetAlignment converts a byte offset into the alignment it guarantees:
// the largest power of two dividing it, capped at platformMax. An offset of
// zero imposes no constraint at all (the field sits at the structure's own,
// separately-tracked alignment), so it reports platformMax rather than 0.
func offsetAlignment(offset, platformMax int) int {
	if offset <= 0 {
		if platformMax > 0 {
			return platformMax
		}
		return 1 << 30
	}
	align := 1
	for offset%(align*2) == 0 && (platformMax <= 0 || align*2 <= platformMax) {
		align *= 2
	}
	return align
}

// Align returns v's analyzed alignment, clamped to at least safeMinimum
// per §4.I's "align(v) := max(analysis[v], safe_minimum)".
func (r *Result) Align(v *ir.Value, safeMinimum int) int {
	a := r.Get(v)
	if a < safeMinimum {
		return safeMinimum
	}
	return a
}

// RunGlobal runs PointerAlignment over every method in ctx, threading
// call-argument alignment into the callee's parameter seeds and iterating
// the whole context to a fixpoint — the "global driver across inter-method
// calls" of §4.I. A parameter's seed starts unknown (analysed as
// SafeMinimum) and is min-merged with each call site's argument alignment,
// so once set it can only decrease; the outer loop (like Run's inner one)
// is monotone and terminates.
func RunGlobal(ctx *ir.Context, safeMinimum, platformMax int) map[*ir.Method]*Result {
	methods := ctx.Methods()
	paramAlign := make(map[*ir.Method][]Value, len(methods))
	for _, m := range methods {
		seeds := make([]Value, len(m.Params))
		for i := range seeds {
			seeds[i] = unknown
		}
		paramAlign[m] = seeds
	}

	results := make(map[*ir.Method]*Result, len(methods))

	changed := true
	for changed {
		changed = false
		for _, m := range methods {
			paramIndex := make(map[*ir.Value]int, len(m.Params))
			for i, p := range m.Params {
				paramIndex[p] = i
			}
			analysis := PointerAlignment{
				SafeMinimum: safeMinimum,
				PlatformMax: platformMax,
				ParamAlign: func(v *ir.Value) (Value, bool) {
					i, ok := paramIndex[v]
					if !ok {
						return 0, false
					}
					a := paramAlign[m][i]
					if a == unknown {
						return safeMinimum, true
					}
					return a, true
				},
			}

			r := Run(m, analysis)
			results[m] = r

			for _, b := range m.Blocks {
				for _, v := range b.Values() {
					if v.Kind() != ir.KMethodCall {
						continue
					}
					callee, ok := v.Extra.(*ir.Method)
					if !ok {
						continue
					}
					seeds := paramAlign[callee]
					for i, arg := range v.Operands {
						if i >= len(seeds) {
							continue
						}
						argAlign := r.Get(ir.ResolveDirectTarget(arg))
						merged := analysis.Merge(seeds[i], argAlign)
						if merged != seeds[i] {
							seeds[i] = merged
							changed = true
						}
					}
				}
			}
		}
	}

	return results
}
