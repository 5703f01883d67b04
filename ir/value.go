package ir

import (
	"fmt"

	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

// NodeId is a monotonically increasing identifier allocated per context.
// Two nodes (values, blocks, or methods) of one context are identical iff
// their NodeIds are equal; NodeIds are never reused within a context's lifetime
// (see (*Context).nextID).
type NodeId int64

// ValueKind discriminates the tagged union of SSA values and terminators.
type ValueKind int

const (
	KParameter ValueKind = iota
	KPhi

	KUnaryArithmetic
	KBinaryArithmetic
	KTernaryArithmetic
	KCompare
	KConvert

	KAlloca
	KLoad
	KStore
	KLoadElementAddress
	KLoadFieldAddress
	KNewView
	KGetViewLength
	KNewArray
	KGetArrayLength
	KGetField
	KSetField
	KStructureValue

	KPrimitiveValue
	KStringValue
	KNullValue
	KUndefinedValue

	KDeviceConstant

	KBarrier
	KPredicateBarrier
	KBroadcast
	KWarpShuffle
	KSubWarpShuffle

	KAtomicExchange
	KAtomicCompareExchange
	KAtomicBinary

	KMethodCall
	KDebugAssert
	KWriteToOutput
	KHandleValue
	KLanguageEmit

	// Terminators.
	KReturnTerminator
	KUnconditionalBranch
	KIfBranch
	KSwitchBranch
)

var valueKindNames = [...]string{
	KParameter:             "Parameter",
	KPhi:                   "Phi",
	KUnaryArithmetic:       "UnaryArithmetic",
	KBinaryArithmetic:      "BinaryArithmetic",
	KTernaryArithmetic:     "TernaryArithmetic",
	KCompare:               "Compare",
	KConvert:               "Convert",
	KAlloca:                "Alloca",
	KLoad:                  "Load",
	KStore:                 "Store",
	KLoadElementAddress:    "LoadElementAddress",
	KLoadFieldAddress:      "LoadFieldAddress",
	KNewView:               "NewView",
	KGetViewLength:         "GetViewLength",
	KNewArray:              "NewArray",
	KGetArrayLength:        "GetArrayLength",
	KGetField:              "GetField",
	KSetField:              "SetField",
	KStructureValue:        "StructureValue",
	KPrimitiveValue:        "PrimitiveValue",
	KStringValue:           "StringValue",
	KNullValue:             "NullValue",
	KUndefinedValue:        "UndefinedValue",
	KDeviceConstant:        "DeviceConstant",
	KBarrier:               "Barrier",
	KPredicateBarrier:      "PredicateBarrier",
	KBroadcast:             "Broadcast",
	KWarpShuffle:           "WarpShuffle",
	KSubWarpShuffle:        "SubWarpShuffle",
	KAtomicExchange:        "AtomicExchange",
	KAtomicCompareExchange: "AtomicCompareExchange",
	KAtomicBinary:          "AtomicBinary",
	KMethodCall:            "MethodCall",
	KDebugAssert:           "DebugAssert",
	KWriteToOutput:         "WriteToOutput",
	KHandleValue:           "HandleValue",
	KLanguageEmit:          "LanguageEmit",
	KReturnTerminator:      "ReturnTerminator",
	KUnconditionalBranch:   "UnconditionalBranch",
	KIfBranch:              "IfBranch",
	KSwitchBranch:          "SwitchBranch",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) && valueKindNames[k] != "" {
		return valueKindNames[k]
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// IsTerminator reports whether values of this kind end a basic block.
func (k ValueKind) IsTerminator() bool {
	return k == KReturnTerminator || k == KUnconditionalBranch || k == KIfBranch || k == KSwitchBranch
}

// BranchFlags are hints attached to IfBranch edges. They never change
// execution semantics; they exist purely for downstream passes (e.g. code
// layout preferring the likely successor first).
type BranchFlags int

const (
	BranchNone BranchFlags = iota
	BranchBackwardEdge
	BranchLoopBreakEdge
)

// Value is a single SSA node: a typed result of an operation, with an
// ordered operand list and (except for a method Parameter) an owning
// block.
//
// Once created, a Value's ID and Type never change. Its Operands, Targets,
// Extra payload and Block may change under an open builder (see Replace).
type Value struct {
	id   NodeId
	kind ValueKind
	typ  Type

	// Extra carries small kind-specific payload: for an int-shaped extra
	// (e.g. a field index, an arithmetic opcode, the constant bits of a
	// PrimitiveValue) it is stored in ExtraInt instead, following the
	// reference toolchain's ssafir.Value convention of the same name.
	Extra    any
	ExtraInt int64

	// Operands is the ordered list of value operands. For terminators,
	// the target block list is held separately in Targets; Operands
	// holds any data operand (condition, selector, return value).
	Operands []*Value

	// Targets is non-empty only for terminator values: the ordered list
	// of successor blocks.
	Targets []*BasicBlock

	// Flags carries terminator-specific hints (currently only IfBranch
	// uses it).
	Flags BranchFlags

	block *BasicBlock // nil only for Parameter, owned by the Method instead.
	pos   loc.Location

	name string // optional diagnostic tag, e.g. a source variable name.

	// forward implements the one-way, monotonic replacement chain
	// described in §4.C. A nil forward means v is still live.
	forward *Value

	referrers []*Value // values (or the owning block's terminator) that use v as an operand.
}

// ID returns the value's unique node identifier.
func (v *Value) ID() NodeId { return v.id }

// Kind returns the value's tag.
func (v *Value) Kind() ValueKind { return v.kind }

// Type returns the value's resolved type.
func (v *Value) Type() Type { return v.typ }

// Block returns the basic block that owns v, or nil for a method parameter.
func (v *Value) Block() *BasicBlock { return v.block }

// Pos returns the source location recorded for v.
func (v *Value) Pos() loc.Location { return v.pos }

// Name returns v's optional diagnostic tag.
func (v *Value) Name() string { return v.name }

// SetName sets v's diagnostic tag.
func (v *Value) SetName(name string) { v.name = name }

// IsReplaced reports whether v has been superseded by another value via
// Replace; such a v is still reachable (e.g. still physically present in
// its block's instruction list until the next GC) but reads should follow
// ResolveDirectTarget instead of using v directly.
func (v *Value) IsReplaced() bool { return v.forward != nil }

// ResolveDirectTarget follows the replacement chain to its fixpoint. Chains
// are bounded because Replace is monotonic within a generation: each call
// to Replace can only point a node at a *newer* replacement, so the chain
// cannot cycle.
func ResolveDirectTarget(v *Value) *Value {
	if v == nil {
		return nil
	}
	for v.forward != nil {
		v = v.forward
	}
	return v
}

// Referrers returns the values (and, for the owning block's terminator,
// that terminator) that currently reference v as an operand or target
// condition. Builder factories record each use as the user is created,
// buildReferrers recomputes the lists when a builder completes or a method
// is rebuilt, and Replace keeps them current.
func (v *Value) Referrers() []*Value { return v.referrers }

func (v *Value) addReferrer(user *Value) {
	v.referrers = append(v.referrers, user)
}

// String renders the value's identity as it would appear as an operand,
// e.g. "%42".
func (v *Value) String() string {
	return fmt.Sprintf("%%%d", v.id)
}

// Print renders a full, human-readable line for v: "%id = op(args) type".
func (v *Value) Print() string {
	var extra string
	if v.Extra != nil {
		extra = fmt.Sprintf(" <%v>", v.Extra)
	}
	args := "("
	for i, a := range v.Operands {
		if i > 0 {
			args += ", "
		}
		args += a.String()
	}
	for i, t := range v.Targets {
		if i > 0 || len(v.Operands) > 0 {
			args += ", "
		}
		args += t.String()
	}
	args += ")"

	typ := ""
	if v.typ != nil && v.typ.Kind() != KindVoid {
		typ = " " + v.typ.String()
	}

	if v.kind.IsTerminator() {
		return fmt.Sprintf("%s%s%s", v.kind, args, extra)
	}
	return fmt.Sprintf("%s = %s%s%s%s", v, v.kind, args, extra, typ)
}

// Phi is a view over a Value of kind KPhi: its operand list is the
// incoming value for predecessor i, aligned 1:1 with Block().Predecessors().
type Phi struct{ *Value }

// AsPhi returns a Phi view of v, or the zero Phi if v is not a phi.
func AsPhi(v *Value) (Phi, bool) {
	if v == nil || v.kind != KPhi {
		return Phi{}, false
	}
	return Phi{v}, true
}

// Incoming returns the value incoming from predecessor i (by position in
// Block().Predecessors()), following the replacement chain.
func (p Phi) Incoming(i int) *Value {
	return ResolveDirectTarget(p.Operands[i])
}
