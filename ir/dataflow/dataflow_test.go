package dataflow_test

import (
	"testing"

	"github.com/m4rs-mt/ILGPU-sub010/ir"
	"github.com/m4rs-mt/ILGPU-sub010/ir/dataflow"
	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

const (
	safeMinimum = 1
	platformMax = 16
)

func TestPointerAlignmentSeedsFromAlloca(t *testing.T) {
	ctx := ir.NewContext(ir.ContextNone)
	i32 := ctx.Types().GetPrimitive(ir.Int32)

	m := ctx.Declare("seed", i32, ir.MethodNone)
	mb := ctx.CreateBuilder(m)
	entry := mb.CreateBasicBlock(loc.Unknown)
	bb := mb.Block(entry)
	slot := bb.Alloca(i32, ir.Generic, loc.Unknown)
	loaded := bb.Load(slot, i32, loc.Unknown)
	bb.Return(loaded, loc.Unknown)
	if result := mb.Complete(); !result.OK() {
		t.Fatalf("build failed: %s", result.Error())
	}

	analysis := dataflow.PointerAlignment{SafeMinimum: safeMinimum, PlatformMax: platformMax}
	r := dataflow.Run(m, analysis)
	if got := r.Align(slot, safeMinimum); got != 4 {
		t.Fatalf("want i32 alloca alignment 4, got %d", got)
	}
}

// TestPointerAlignmentLoadElementAddressFloorsToElementAlignment exercises
// scenario S3: a LoadElementAddress off a poorly-aligned base still comes
// out aligned to at least its element type's own natural alignment, since
// the address it computes is always a multiple of the element's stride
// from the (possibly worse-aligned) base.
func TestPointerAlignmentLoadElementAddressFloorsToElementAlignment(t *testing.T) {
	ctx := ir.NewContext(ir.ContextNone)
	i8 := ctx.Types().GetPrimitive(ir.Int8)
	i32 := ctx.Types().GetPrimitive(ir.Int32)
	i64 := ctx.Types().GetPrimitive(ir.Int64)
	arrayType := ctx.Types().CreateArray(i8, 8)

	m := ctx.Declare("lea", i64, ir.MethodNone)
	mb := ctx.CreateBuilder(m)
	entry := mb.CreateBasicBlock(loc.Unknown)
	bb := mb.Block(entry)
	base := bb.Alloca(arrayType, ir.Generic, loc.Unknown) // i8 elements: base alignment 1
	idx := bb.PrimitiveValue(0, i32, loc.Unknown)
	elemPtrType := ctx.Types().CreatePointer(i64, ir.Generic) // element type i64: alignment 8
	elemPtr := bb.LoadElementAddress(base, idx, elemPtrType, loc.Unknown)
	loaded := bb.Load(elemPtr, i64, loc.Unknown)
	bb.Return(loaded, loc.Unknown)
	if result := mb.Complete(); !result.OK() {
		t.Fatalf("build failed: %s", result.Error())
	}

	analysis := dataflow.PointerAlignment{SafeMinimum: safeMinimum, PlatformMax: platformMax}
	r := dataflow.Run(m, analysis)
	baseAlign := r.Align(base, safeMinimum)
	if baseAlign >= 8 {
		t.Fatalf("test setup should have a poorly-aligned base, got %d", baseAlign)
	}
	if got := r.Align(elemPtr, safeMinimum); got != 8 {
		t.Fatalf("LoadElementAddress must floor to max(align(base), element.alignment): want 8, got %d", got)
	}
}

// TestPointerAlignmentLoadElementAddressKeepsStrongerBase is the mirror
// case: when the base is already better aligned than the element type
// requires, that stronger alignment survives instead of being weakened
// down to the element's own.
func TestPointerAlignmentLoadElementAddressKeepsStrongerBase(t *testing.T) {
	ctx := ir.NewContext(ir.ContextNone)
	i8 := ctx.Types().GetPrimitive(ir.Int8)
	i32 := ctx.Types().GetPrimitive(ir.Int32)
	i64 := ctx.Types().GetPrimitive(ir.Int64)
	arrayType := ctx.Types().CreateArray(i64, 4)

	m := ctx.Declare("lea2", i8, ir.MethodNone)
	mb := ctx.CreateBuilder(m)
	entry := mb.CreateBasicBlock(loc.Unknown)
	bb := mb.Block(entry)
	base := bb.Alloca(arrayType, ir.Generic, loc.Unknown) // i64 elements: base alignment 8
	idx := bb.PrimitiveValue(0, i32, loc.Unknown)
	elemPtrType := ctx.Types().CreatePointer(i8, ir.Generic) // element type i8: alignment 1
	elemPtr := bb.LoadElementAddress(base, idx, elemPtrType, loc.Unknown)
	loaded := bb.Load(elemPtr, i8, loc.Unknown)
	bb.Return(loaded, loc.Unknown)
	if result := mb.Complete(); !result.OK() {
		t.Fatalf("build failed: %s", result.Error())
	}

	analysis := dataflow.PointerAlignment{SafeMinimum: safeMinimum, PlatformMax: platformMax}
	r := dataflow.Run(m, analysis)
	baseAlign := r.Align(base, safeMinimum)
	if baseAlign < 8 {
		t.Fatalf("test setup should have a well-aligned base, got %d", baseAlign)
	}
	if got := r.Align(elemPtr, safeMinimum); got != baseAlign {
		t.Fatalf("LoadElementAddress must keep a base alignment stronger than the element's: want %d, got %d", baseAlign, got)
	}
}

// TestPointerAlignmentLoadFieldAddressReducesToOffsetAlignment exercises
// scenario S4: a field sitting at a byte offset that isn't itself a
// multiple of the structure's own alignment can only guarantee whatever
// alignment that offset provides, even off a well-aligned base.
func TestPointerAlignmentLoadFieldAddressReducesToOffsetAlignment(t *testing.T) {
	ctx := ir.NewContext(ir.ContextNone)
	i8 := ctx.Types().GetPrimitive(ir.Int8)
	i32 := ctx.Types().GetPrimitive(ir.Int32)
	i64 := ctx.Types().GetPrimitive(ir.Int64)

	// struct{i64, i8, i8, i8}: field 3 sits at offset 10 (8 + 1 + 1), whose
	// largest power-of-two divisor is 2 — weaker than the struct's own
	// (i64-driven) alignment of 8.
	structType := ctx.Types().CreateStructure().AddField(i64).AddField(i8).AddField(i8).AddField(i8).Seal()

	m := ctx.Declare("lfa", i8, ir.MethodNone)
	mb := ctx.CreateBuilder(m)
	entry := mb.CreateBasicBlock(loc.Unknown)
	bb := mb.Block(entry)
	base := bb.Alloca(structType, ir.Generic, loc.Unknown)
	fieldPtrType := ctx.Types().CreatePointer(i8, ir.Generic)
	fieldPtr := bb.LoadFieldAddress(base, 3, fieldPtrType, loc.Unknown)
	loaded := bb.Load(fieldPtr, i8, loc.Unknown)
	bb.Return(loaded, loc.Unknown)
	if result := mb.Complete(); !result.OK() {
		t.Fatalf("build failed: %s", result.Error())
	}

	analysis := dataflow.PointerAlignment{SafeMinimum: safeMinimum, PlatformMax: platformMax}
	r := dataflow.Run(m, analysis)
	baseAlign := r.Align(base, safeMinimum)
	if baseAlign < 8 {
		t.Fatalf("test setup should have a well-aligned base (struct align 8), got %d", baseAlign)
	}
	if got := r.Align(fieldPtr, safeMinimum); got != 2 {
		t.Fatalf("LoadFieldAddress must reduce to min(align(base), field.alignment_offset): want 2, got %d", got)
	}
}

// TestPointerAlignmentLoadFieldAddressOffsetZeroKeepsBaseAlignment is the
// mirror case: a field at offset zero imposes no constraint of its own, so
// the base's alignment passes through unreduced.
func TestPointerAlignmentLoadFieldAddressOffsetZeroKeepsBaseAlignment(t *testing.T) {
	ctx := ir.NewContext(ir.ContextNone)
	i8 := ctx.Types().GetPrimitive(ir.Int8)
	i64 := ctx.Types().GetPrimitive(ir.Int64)

	structType := ctx.Types().CreateStructure().AddField(i64).AddField(i8).Seal()

	m := ctx.Declare("lfa0", i64, ir.MethodNone)
	mb := ctx.CreateBuilder(m)
	entry := mb.CreateBasicBlock(loc.Unknown)
	bb := mb.Block(entry)
	base := bb.Alloca(structType, ir.Generic, loc.Unknown)
	fieldPtrType := ctx.Types().CreatePointer(i64, ir.Generic)
	fieldPtr := bb.LoadFieldAddress(base, 0, fieldPtrType, loc.Unknown)
	loaded := bb.Load(fieldPtr, i64, loc.Unknown)
	bb.Return(loaded, loc.Unknown)
	if result := mb.Complete(); !result.OK() {
		t.Fatalf("build failed: %s", result.Error())
	}

	analysis := dataflow.PointerAlignment{SafeMinimum: safeMinimum, PlatformMax: platformMax}
	r := dataflow.Run(m, analysis)
	baseAlign := r.Align(base, safeMinimum)
	if got := r.Align(fieldPtr, safeMinimum); got != baseAlign {
		t.Fatalf("field 0 (offset 0) should keep the base's alignment unreduced: want %d, got %d", baseAlign, got)
	}
}

// TestPointerAlignmentPhiMinMerge builds a diamond whose two arms allocate
// differently-aligned storage and merge the resulting pointers through a
// phi; the merged alignment must be the weaker (smaller) of the two, since
// a user of the phi can't assume more than the worst-aligned contributor.
func TestPointerAlignmentPhiMinMerge(t *testing.T) {
	ctx := ir.NewContext(ir.ContextNone)
	i32 := ctx.Types().GetPrimitive(ir.Int32)
	i8 := ctx.Types().GetPrimitive(ir.Int8)
	i1 := ctx.Types().GetPrimitive(ir.Int1)
	ptrI32 := ctx.Types().CreatePointer(i32, ir.Generic)

	m := ctx.Declare("merge", i32, ir.MethodNone)
	mb := ctx.CreateBuilder(m)
	cond := mb.AddParameter(i1, loc.Unknown, "cond")

	entry := mb.CreateBasicBlock(loc.Unknown)
	thenBlk := mb.CreateBasicBlock(loc.Unknown)
	elseBlk := mb.CreateBasicBlock(loc.Unknown)
	join := mb.CreateBasicBlock(loc.Unknown)

	eb := mb.Block(entry)
	eb.IfBranch(cond, thenBlk, elseBlk, ir.BranchNone, loc.Unknown)

	tb := mb.Block(thenBlk)
	wellAligned := tb.Alloca(i32, ir.Generic, loc.Unknown)
	tb.Branch(join, loc.Unknown)

	fb := mb.Block(elseBlk)
	poorlyAligned := fb.Alloca(i8, ir.Generic, loc.Unknown)
	// A phi's incoming values must share its declared type (§4.C), so the
	// i8-pointer alloca is carried to ptr<i32> via Convert — which passes
	// its operand's alignment through unchanged — before reaching the phi.
	poorlyAlignedAsI32 := fb.Convert(poorlyAligned, ptrI32, loc.Unknown)
	fb.Branch(join, loc.Unknown)

	// A phi is sized from join.Predecessors(), which only a completed
	// builder computes, so join first gets a placeholder return and the phi
	// is built in a second session.
	jb := mb.Block(join)
	jb.Return(nil, loc.Unknown)
	if result := mb.Complete(); !result.OK() {
		t.Fatalf("placeholder build failed: %s", result.Error())
	}

	mb2 := ctx.CreateBuilder(m)
	jb2 := mb2.Block(join)
	phi := jb2.Phi(ptrI32, loc.Unknown)
	for i, p := range join.Predecessors() {
		switch p {
		case thenBlk:
			jb2.SetIncoming(phi, i, wellAligned)
		case elseBlk:
			jb2.SetIncoming(phi, i, poorlyAlignedAsI32)
		}
	}
	loaded := jb2.Load(phi, i32, loc.Unknown)
	jb2.Return(loaded, loc.Unknown)

	if result := mb2.Complete(); !result.OK() {
		t.Fatalf("build failed: %s", result.Error())
	}

	analysis := dataflow.PointerAlignment{SafeMinimum: safeMinimum, PlatformMax: platformMax}
	r := dataflow.Run(m, analysis)
	wellAlign := r.Align(wellAligned, safeMinimum)
	poorAlign := r.Align(poorlyAligned, safeMinimum)
	if wellAlign <= poorAlign {
		t.Fatalf("test setup should have a strictly-better-aligned arm: well=%d poor=%d", wellAlign, poorAlign)
	}
	if got := r.Align(phi, safeMinimum); got != poorAlign {
		t.Fatalf("phi must take the weaker of its incoming alignments: want %d, got %d", poorAlign, got)
	}
}

// TestRunGlobalThreadsCallArgumentAlignment is the cross-method half of
// component I: a callee parameter's alignment is discovered from the actual
// alignment of the arguments passed to it at its call sites, not just from
// the callee's own body.
func TestRunGlobalThreadsCallArgumentAlignment(t *testing.T) {
	ctx := ir.NewContext(ir.ContextNone)
	i32 := ctx.Types().GetPrimitive(ir.Int32)
	ptrI32 := ctx.Types().CreatePointer(i32, ir.Generic)

	callee := ctx.Declare("callee", i32, ir.MethodNone)
	cb := ctx.CreateBuilder(callee)
	param := cb.AddParameter(ptrI32, loc.Unknown, "p")
	centry := cb.CreateBasicBlock(loc.Unknown)
	cbb := cb.Block(centry)
	loaded := cbb.Load(param, i32, loc.Unknown)
	cbb.Return(loaded, loc.Unknown)
	if result := cb.Complete(); !result.OK() {
		t.Fatalf("callee build failed: %s", result.Error())
	}

	caller := ctx.Declare("caller", i32, ir.MethodNone)
	mb := ctx.CreateBuilder(caller)
	entry := mb.CreateBasicBlock(loc.Unknown)
	bb := mb.Block(entry)
	slot := bb.Alloca(i32, ir.Generic, loc.Unknown)
	call := bb.MethodCall(callee, []*ir.Value{slot}, loc.Unknown)
	bb.Return(call, loc.Unknown)
	if result := mb.Complete(); !result.OK() {
		t.Fatalf("caller build failed: %s", result.Error())
	}

	results := dataflow.RunGlobal(ctx, safeMinimum, platformMax)
	calleeResult, ok := results[callee]
	if !ok {
		t.Fatalf("RunGlobal should produce a result for callee")
	}
	if got := calleeResult.Align(param, safeMinimum); got != 4 {
		t.Fatalf("callee's parameter alignment should be threaded from the caller's i32 alloca argument (4), got %d", got)
	}
}
