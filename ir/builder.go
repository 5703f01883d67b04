package ir

import (
	"github.com/m4rs-mt/ILGPU-sub010/ir/irerr"
	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

// MethodBuilder is the single entry point for mutating a Method's body. A
// context allows at most one open builder at a time (§4.F "create_builder
// blocks until no other builder is active"); Complete (or Abort) must be
// called to release it.
type MethodBuilder struct {
	ctx    *Context
	method *Method
	open   bool
}

// CreateBuilder opens a MethodBuilder for m, blocking until any other
// builder active on ctx has completed. The context's write lock alone
// already serializes builders (§5); builderOpen additionally lets readers
// detect "a builder is active" for diagnostics without acquiring it.
func (c *Context) CreateBuilder(m *Method) *MethodBuilder {
	c.lockWriter()
	c.builderOpen.Store(true)
	m.builderOpen = true
	return &MethodBuilder{ctx: c, method: m, open: true}
}

// AddParameter appends a new parameter to the method under construction.
func (mb *MethodBuilder) AddParameter(typ Type, pos loc.Location, name string) *Value {
	mb.requireOpen()
	p := &Value{id: mb.ctx.nextID(), kind: KParameter, typ: typ, pos: pos, name: name}
	mb.method.Params = append(mb.method.Params, p)
	mb.method.markDirty()
	return p
}

// CreateBasicBlock appends a new, empty block to the method. The first
// block created becomes the entry block.
func (mb *MethodBuilder) CreateBasicBlock(pos loc.Location) *BasicBlock {
	mb.requireOpen()
	b := &BasicBlock{id: mb.ctx.nextID(), Index: -1, method: mb.method, pos: pos, builderOpen: true}
	mb.method.Blocks = append(mb.method.Blocks, b)
	if mb.method.Entry == nil {
		mb.method.Entry = b
	}
	mb.method.markDirty()
	return b
}

// Block returns a BlockBuilder for appending values to b. b must belong to
// the method this MethodBuilder is building.
func (mb *MethodBuilder) Block(b *BasicBlock) *BlockBuilder {
	mb.requireOpen()
	if b.method != mb.method {
		panicInvalidOperation(b.pos, "block %s does not belong to the method under construction", b)
	}
	b.builderOpen = true
	return &BlockBuilder{mb: mb, block: b}
}

func (mb *MethodBuilder) requireOpen() {
	if !mb.open {
		panicInvalidOperation(loc.Unknown, "method builder used after Complete/Abort")
	}
}

// Complete closes the builder, recomputes control flow (predecessor and
// successor lists and forward-RPO block indices), runs verification
// (§8's universal invariants), and releases the single-builder token. It
// returns the verification result regardless of whether it passed;
// callers that want a panic-on-failure contract should check OK()
// themselves.
func (mb *MethodBuilder) Complete() *irerr.Result {
	mb.requireOpen()
	mb.open = false

	for _, b := range mb.method.Blocks {
		b.builderOpen = false
		b.compact()
	}
	mb.method.builderOpen = false

	updateControlFlow(mb.method)
	buildReferrers(mb.method)

	result := verifyMethod(mb.method)

	mb.ctx.builderOpen.Store(false)
	mb.ctx.unlockWriter()

	return result
}

// Abort closes the builder without running verification or control-flow
// update, for a caller that decides mid-construction to discard the
// method entirely (e.g. a failed speculative transform).
func (mb *MethodBuilder) Abort() {
	mb.requireOpen()
	mb.open = false
	for _, b := range mb.method.Blocks {
		b.builderOpen = false
	}
	mb.method.builderOpen = false
	mb.ctx.builderOpen.Store(false)
	mb.ctx.unlockWriter()
}

// BlockBuilder appends values to a single basic block.
type BlockBuilder struct {
	mb    *MethodBuilder
	block *BasicBlock
}

// requireEqualPrimitiveOperands enforces §4.C's binary-arithmetic-family
// signature: both operands must be the same primitive type. Used by
// BinaryArithmetic and Compare.
func requireEqualPrimitiveOperands(op string, x, y *Value, pos loc.Location) {
	xt, yt := x.Type(), y.Type()
	if xt == nil || xt.Kind() != KindPrimitive || xt != yt {
		panicInvalidProgram(pos, "%s requires two operands of the same primitive type, got %s and %s", op, xt, yt)
	}
}

// requirePointerOrViewBase enforces §4.C's address-arithmetic signature:
// the base operand must be a pointer or view.
func requirePointerOrViewBase(op string, base *Value, pos loc.Location) {
	if t := base.Type(); t == nil || (t.Kind() != KindPointer && t.Kind() != KindView) {
		panicInvalidProgram(pos, "%s requires a pointer or view base operand, got %s", op, t)
	}
}

// requireIntegerIndex enforces §4.C's address-arithmetic signature: the
// index operand must be an integer-typed primitive.
func requireIntegerIndex(op string, index *Value, pos loc.Location) {
	if !isIntegerPrimitive(index.Type()) {
		panicInvalidProgram(pos, "%s requires an integer index operand, got %s", op, index.Type())
	}
}

func isIntegerPrimitive(t Type) bool {
	pt, ok := t.(primitiveType)
	if !ok {
		return false
	}
	switch pt.Basic() {
	case Int1, Int8, Int16, Int32, Int64:
		return true
	default:
		return false
	}
}

func (bb *BlockBuilder) emit(kind ValueKind, typ Type, pos loc.Location, operands ...*Value) *Value {
	v := &Value{
		id:       bb.mb.ctx.nextID(),
		kind:     kind,
		typ:      typ,
		Operands: operands,
		pos:      pos,
	}
	bb.block.append(v)
	bb.block.method.markDirty()
	return v
}

// Phi creates a phi node of the given type with one (initially nil)
// incoming edge per current predecessor. SetIncoming must be used to fill
// each edge once the corresponding predecessor is known.
func (bb *BlockBuilder) Phi(typ Type, pos loc.Location) *Value {
	v := bb.emit(KPhi, typ, pos)
	v.Operands = make([]*Value, len(bb.block.Preds))
	return v
}

// SetIncoming sets a phi's operand for the predecessor at position i (as
// returned by BasicBlock.Predecessors). The incoming value must share the
// phi's declared type or be an Undefined placeholder (§4.C).
func (bb *BlockBuilder) SetIncoming(phi *Value, i int, v *Value) {
	if phi.kind != KPhi {
		panicInvalidOperation(phi.pos, "SetIncoming called on non-phi %s", phi)
	}
	if v.kind != KUndefinedValue && v.Type() != phi.Type() {
		panicInvalidProgram(v.pos, "phi %s incoming value %s has type %s, want %s or Undefined", phi, v, v.Type(), phi.Type())
	}
	phi.Operands[i] = v
	v.addReferrer(phi)
}

// UnaryArithmetic emits a unary arithmetic op (op is a target-defined code,
// e.g. negate, bitwise-not) carried in ExtraInt.
func (bb *BlockBuilder) UnaryArithmetic(op int64, x *Value, typ Type, pos loc.Location) *Value {
	v := bb.emit(KUnaryArithmetic, typ, pos, x)
	v.ExtraInt = op
	x.addReferrer(v)
	return v
}

// BinaryArithmetic emits a binary arithmetic op. x and y must be the same
// primitive type (§4.C).
func (bb *BlockBuilder) BinaryArithmetic(op int64, x, y *Value, typ Type, pos loc.Location) *Value {
	requireEqualPrimitiveOperands("BinaryArithmetic", x, y, pos)
	v := bb.emit(KBinaryArithmetic, typ, pos, x, y)
	v.ExtraInt = op
	x.addReferrer(v)
	y.addReferrer(v)
	return v
}

// TernaryArithmetic emits a three-operand arithmetic op (e.g. fused
// multiply-add, clamp).
func (bb *BlockBuilder) TernaryArithmetic(op int64, x, y, z *Value, typ Type, pos loc.Location) *Value {
	v := bb.emit(KTernaryArithmetic, typ, pos, x, y, z)
	v.ExtraInt = op
	for _, o := range v.Operands {
		o.addReferrer(v)
	}
	return v
}

// Compare emits a comparison, always typed Int1. x and y must be the same
// primitive type (§4.C).
func (bb *BlockBuilder) Compare(op int64, x, y *Value, i1 Type, pos loc.Location) *Value {
	requireEqualPrimitiveOperands("Compare", x, y, pos)
	v := bb.emit(KCompare, i1, pos, x, y)
	v.ExtraInt = op
	x.addReferrer(v)
	y.addReferrer(v)
	return v
}

// Convert emits a type conversion.
func (bb *BlockBuilder) Convert(x *Value, targetType Type, pos loc.Location) *Value {
	v := bb.emit(KConvert, targetType, pos, x)
	x.addReferrer(v)
	return v
}

// Alloca emits a stack allocation of allocatedType, yielding a pointer to
// it in space.
func (bb *BlockBuilder) Alloca(allocatedType Type, space AddressSpace, pos loc.Location) *Value {
	ptr := bb.mb.ctx.Types().CreatePointer(allocatedType, space)
	v := bb.emit(KAlloca, ptr, pos)
	v.Extra = allocatedType
	return v
}

// Load emits a memory load through ptr.
func (bb *BlockBuilder) Load(ptr *Value, resultType Type, pos loc.Location) *Value {
	v := bb.emit(KLoad, resultType, pos, ptr)
	ptr.addReferrer(v)
	return v
}

// Store emits a memory store of value through ptr. Stores are void.
func (bb *BlockBuilder) Store(ptr, value *Value, void Type, pos loc.Location) *Value {
	v := bb.emit(KStore, void, pos, ptr, value)
	ptr.addReferrer(v)
	value.addReferrer(v)
	return v
}

// LoadElementAddress computes the address of element index within the
// array/view referenced by ptr. ptr must be a pointer or view and index
// must be an integer (§4.C).
func (bb *BlockBuilder) LoadElementAddress(ptr, index *Value, resultType Type, pos loc.Location) *Value {
	requirePointerOrViewBase("LoadElementAddress", ptr, pos)
	requireIntegerIndex("LoadElementAddress", index, pos)
	v := bb.emit(KLoadElementAddress, resultType, pos, ptr, index)
	ptr.addReferrer(v)
	index.addReferrer(v)
	return v
}

// LoadFieldAddress computes the address of field fieldIndex within the
// structure referenced by ptr. ptr must be a pointer or view (§4.C).
func (bb *BlockBuilder) LoadFieldAddress(ptr *Value, fieldIndex int64, resultType Type, pos loc.Location) *Value {
	requirePointerOrViewBase("LoadFieldAddress", ptr, pos)
	v := bb.emit(KLoadFieldAddress, resultType, pos, ptr)
	v.ExtraInt = fieldIndex
	ptr.addReferrer(v)
	return v
}

// NewView constructs a view over ptr with the given element count. ptr must
// be a pointer or view and length must be an integer (§4.C).
func (bb *BlockBuilder) NewView(ptr, length *Value, viewType Type, pos loc.Location) *Value {
	requirePointerOrViewBase("NewView", ptr, pos)
	requireIntegerIndex("NewView", length, pos)
	v := bb.emit(KNewView, viewType, pos, ptr, length)
	ptr.addReferrer(v)
	length.addReferrer(v)
	return v
}

// GetViewLength reads the element count of a view.
func (bb *BlockBuilder) GetViewLength(view *Value, i32 Type, pos loc.Location) *Value {
	v := bb.emit(KGetViewLength, i32, pos, view)
	view.addReferrer(v)
	return v
}

// NewArray allocates a fixed-size array value.
func (bb *BlockBuilder) NewArray(extent []*Value, arrayType Type, pos loc.Location) *Value {
	v := bb.emit(KNewArray, arrayType, pos, extent...)
	for _, e := range extent {
		e.addReferrer(v)
	}
	return v
}

// GetArrayLength reads the element count of dimension dim of an array.
func (bb *BlockBuilder) GetArrayLength(array *Value, dim int64, i32 Type, pos loc.Location) *Value {
	v := bb.emit(KGetArrayLength, i32, pos, array)
	v.ExtraInt = dim
	array.addReferrer(v)
	return v
}

// GetField projects field index out of a structure value.
func (bb *BlockBuilder) GetField(structVal *Value, fieldIndex int64, fieldType Type, pos loc.Location) *Value {
	v := bb.emit(KGetField, fieldType, pos, structVal)
	v.ExtraInt = fieldIndex
	structVal.addReferrer(v)
	return v
}

// SetField produces a new structure value with field index replaced.
func (bb *BlockBuilder) SetField(structVal *Value, fieldIndex int64, newValue *Value, pos loc.Location) *Value {
	v := bb.emit(KSetField, structVal.typ, pos, structVal, newValue)
	v.ExtraInt = fieldIndex
	structVal.addReferrer(v)
	newValue.addReferrer(v)
	return v
}

// StructureValue builds a new structure value from its field values.
func (bb *BlockBuilder) StructureValue(fields []*Value, structType Type, pos loc.Location) *Value {
	v := bb.emit(KStructureValue, structType, pos, fields...)
	for _, f := range fields {
		f.addReferrer(v)
	}
	return v
}

// PrimitiveValue creates a constant of a primitive type; bits holds the raw
// value (sign/bit-pattern dependent on the basic kind).
func (bb *BlockBuilder) PrimitiveValue(bits int64, typ Type, pos loc.Location) *Value {
	v := bb.emit(KPrimitiveValue, typ, pos)
	v.ExtraInt = bits
	return v
}

// StringValue creates a constant string.
func (bb *BlockBuilder) StringValue(s string, typ Type, pos loc.Location) *Value {
	v := bb.emit(KStringValue, typ, pos)
	v.Extra = s
	return v
}

// NullValue creates the null/zero pointer constant of a pointer or view
// type.
func (bb *BlockBuilder) NullValue(typ Type, pos loc.Location) *Value {
	return bb.emit(KNullValue, typ, pos)
}

// UndefinedValue creates an undefined-value placeholder, used by SSA
// lifting when a variable is read along a path where it was never
// assigned.
func (bb *BlockBuilder) UndefinedValue(typ Type, pos loc.Location) *Value {
	return bb.emit(KUndefinedValue, typ, pos)
}

// DeviceConstant references a target-defined intrinsic constant (e.g.
// warp size, grid dimension) named in Extra.
func (bb *BlockBuilder) DeviceConstant(name string, typ Type, pos loc.Location) *Value {
	v := bb.emit(KDeviceConstant, typ, pos)
	v.Extra = name
	return v
}

// Barrier emits a full memory/execution barrier. Void-typed.
func (bb *BlockBuilder) Barrier(void Type, pos loc.Location) *Value {
	return bb.emit(KBarrier, void, pos)
}

// PredicateBarrier emits a predicated barrier: every thread contributes
// predicate, the result is the reduction named by op (ExtraInt).
func (bb *BlockBuilder) PredicateBarrier(predicate *Value, op int64, i1 Type, pos loc.Location) *Value {
	v := bb.emit(KPredicateBarrier, i1, pos, predicate)
	v.ExtraInt = op
	predicate.addReferrer(v)
	return v
}

// Broadcast broadcasts value from the lane identified by sourceLane to
// every lane in the group named by kind (ExtraInt).
func (bb *BlockBuilder) Broadcast(value, sourceLane *Value, kind int64, pos loc.Location) *Value {
	v := bb.emit(KBroadcast, value.typ, pos, value, sourceLane)
	v.ExtraInt = kind
	value.addReferrer(v)
	sourceLane.addReferrer(v)
	return v
}

// WarpShuffle emits a full-warp shuffle of value by the given source lane
// and shuffle kind (ExtraInt).
func (bb *BlockBuilder) WarpShuffle(value, sourceLane *Value, kind int64, pos loc.Location) *Value {
	v := bb.emit(KWarpShuffle, value.typ, pos, value, sourceLane)
	v.ExtraInt = kind
	value.addReferrer(v)
	sourceLane.addReferrer(v)
	return v
}

// SubWarpShuffle is WarpShuffle restricted to sub-groups of width.
func (bb *BlockBuilder) SubWarpShuffle(value, sourceLane, width *Value, kind int64, pos loc.Location) *Value {
	v := bb.emit(KSubWarpShuffle, value.typ, pos, value, sourceLane, width)
	v.ExtraInt = kind
	for _, o := range v.Operands {
		o.addReferrer(v)
	}
	return v
}

// AtomicExchange atomically swaps *ptr with value, returning the old
// value.
func (bb *BlockBuilder) AtomicExchange(ptr, value *Value, resultType Type, pos loc.Location) *Value {
	v := bb.emit(KAtomicExchange, resultType, pos, ptr, value)
	ptr.addReferrer(v)
	value.addReferrer(v)
	return v
}

// AtomicCompareExchange atomically compares *ptr to compare and, if equal,
// stores value; returns the old value.
func (bb *BlockBuilder) AtomicCompareExchange(ptr, compare, value *Value, resultType Type, pos loc.Location) *Value {
	v := bb.emit(KAtomicCompareExchange, resultType, pos, ptr, compare, value)
	for _, o := range v.Operands {
		o.addReferrer(v)
	}
	return v
}

// AtomicBinary performs an atomic read-modify-write with the operation
// code op (ExtraInt).
func (bb *BlockBuilder) AtomicBinary(op int64, ptr, value *Value, resultType Type, pos loc.Location) *Value {
	v := bb.emit(KAtomicBinary, resultType, pos, ptr, value)
	v.ExtraInt = op
	ptr.addReferrer(v)
	value.addReferrer(v)
	return v
}

// MethodCall emits a call to callee with the given arguments.
func (bb *BlockBuilder) MethodCall(callee *Method, args []*Value, pos loc.Location) *Value {
	v := bb.emit(KMethodCall, callee.ReturnType, pos, args...)
	v.Extra = callee
	for _, a := range args {
		a.addReferrer(v)
	}
	return v
}

// DebugAssert emits a debug-only assertion on condition, compiled out
// unless EnableAssertions is set on the context.
func (bb *BlockBuilder) DebugAssert(condition *Value, message string, void Type, pos loc.Location) *Value {
	v := bb.emit(KDebugAssert, void, pos, condition)
	v.Extra = message
	condition.addReferrer(v)
	return v
}

// WriteToOutput emits a formatted write to the kernel's diagnostic output
// stream.
func (bb *BlockBuilder) WriteToOutput(format string, args []*Value, void Type, pos loc.Location) *Value {
	v := bb.emit(KWriteToOutput, void, pos, args...)
	v.Extra = format
	for _, a := range args {
		a.addReferrer(v)
	}
	return v
}

// HandleValue wraps an opaque runtime handle (e.g. a texture or surface
// reference) as a value.
func (bb *BlockBuilder) HandleValue(handle any, typ Type, pos loc.Location) *Value {
	v := bb.emit(KHandleValue, typ, pos)
	v.Extra = handle
	return v
}

// LanguageEmit embeds a target-specific code fragment, opaque to the IR.
func (bb *BlockBuilder) LanguageEmit(fragment string, args []*Value, resultType Type, pos loc.Location) *Value {
	v := bb.emit(KLanguageEmit, resultType, pos, args...)
	v.Extra = fragment
	for _, a := range args {
		a.addReferrer(v)
	}
	return v
}

// Return terminates the block, optionally with a return value (nil for
// void methods).
func (bb *BlockBuilder) Return(value *Value, pos loc.Location) *Value {
	var operands []*Value
	if value != nil {
		operands = []*Value{value}
	}
	v := &Value{id: bb.mb.ctx.nextID(), kind: KReturnTerminator, Operands: operands, pos: pos}
	bb.block.setTerminator(v)
	if value != nil {
		value.addReferrer(v)
	}
	return v
}

// Branch terminates the block with an unconditional jump to target.
func (bb *BlockBuilder) Branch(target *BasicBlock, pos loc.Location) *Value {
	v := &Value{id: bb.mb.ctx.nextID(), kind: KUnconditionalBranch, Targets: []*BasicBlock{target}, pos: pos}
	bb.block.setTerminator(v)
	return v
}

// IfBranch terminates the block with a two-way conditional jump.
func (bb *BlockBuilder) IfBranch(condition *Value, trueTarget, falseTarget *BasicBlock, flags BranchFlags, pos loc.Location) *Value {
	v := &Value{
		id:       bb.mb.ctx.nextID(),
		kind:     KIfBranch,
		Operands: []*Value{condition},
		Targets:  []*BasicBlock{trueTarget, falseTarget},
		Flags:    flags,
		pos:      pos,
	}
	bb.block.setTerminator(v)
	condition.addReferrer(v)
	return v
}

// SwitchBranch terminates the block with a multi-way jump on selector;
// targets[0] is the default case.
func (bb *BlockBuilder) SwitchBranch(selector *Value, targets []*BasicBlock, pos loc.Location) *Value {
	v := &Value{
		id:       bb.mb.ctx.nextID(),
		kind:     KSwitchBranch,
		Operands: []*Value{selector},
		Targets:  append([]*BasicBlock(nil), targets...),
		pos:      pos,
	}
	bb.block.setTerminator(v)
	selector.addReferrer(v)
	return v
}
