package ir

import (
	"fmt"
	"io"
)

// MethodHandle identifies a method within an IRContext's registry,
// independent of its NodeId (which changes across a GC rebuild; the handle
// does not).
type MethodHandle int64

// MethodFlags describe properties of a method declaration.
type MethodFlags int

const (
	MethodNone MethodFlags = 0
	MethodInline MethodFlags = 1 << iota
	MethodExternal
	MethodIntrinsic
	MethodEntryPoint
)

// TransformFlags track a method's mutation state within the current
// generation; they are monotone (None -> Dirty -> Transformed) until the
// next GC resets them.
type TransformFlags int

const (
	TransformNone TransformFlags = iota
	TransformDirty
	TransformTransformed
)

// Method is a declared function: a handle, a return type, flags, an
// ordered parameter list, an entry block, and the full set of blocks that
// make up its body.
type Method struct {
	id     NodeId
	handle MethodHandle

	Name       string
	ReturnType Type
	Flags      MethodFlags

	Params []*Value // kind KParameter, owned by the method (Block() == nil).
	Entry  *BasicBlock
	Blocks []*BasicBlock

	ctx *Context

	transform TransformFlags

	// builderOpen gates mutation the same way BasicBlock.builderOpen
	// does; a Method may have at most one open MethodBuilder at a time,
	// and the Context enforces that at most one Method in the whole
	// context has an open builder (single active builder, §4.F).
	builderOpen bool
}

// ID returns the method's node identifier.
func (m *Method) ID() NodeId { return m.id }

// Handle returns the method's stable registry handle.
func (m *Method) Handle() MethodHandle { return m.handle }

// Context returns the IRContext that owns m.
func (m *Method) Context() *Context { return m.ctx }

// IsDirty reports whether m has been mutated since the last GC.
func (m *Method) IsDirty() bool { return m.transform != TransformNone }

func (m *Method) markDirty() {
	if m.transform == TransformNone {
		m.transform = TransformDirty
	}
}

// String returns the method's declared name.
func (m *Method) String() string { return m.Name }

// assertNoControlFlowUpdate is the debug-build check named in §3's
// "Lifecycle": traversal and analysis are only valid while no builder is
// open on the method.
func (m *Method) assertNoControlFlowUpdate() {
	if m.builderOpen {
		panic(fmt.Sprintf("ir: analysis of %s attempted while a builder is open", m))
	}
}

// Direction selects which edges a block-ordering traversal follows.
type Direction int

const (
	// Forward walks successor edges from the entry block.
	Forward Direction = iota
	// Backward walks predecessor edges from the exit block, used for
	// liveness and post-dominance.
	Backward
)

// ExitBlock returns the method's unique block with zero forward
// successors. It panics if zero or more than one such block exists,
// matching §4.E's "assertion failure if multiple exits exist".
func (m *Method) ExitBlock() *BasicBlock {
	m.assertNoControlFlowUpdate()
	var exit *BasicBlock
	for _, b := range m.Blocks {
		if len(b.Succs) == 0 {
			if exit != nil {
				panic(fmt.Sprintf("ir: %s has multiple exit blocks (%s and %s)", m, exit, b))
			}
			exit = b
		}
	}
	if exit == nil {
		panic(fmt.Sprintf("ir: %s has no exit block", m))
	}
	return exit
}

// BlockMap is a dense array of values keyed by BlockIndex, valid only
// between control-flow updates (§4.H).
type BlockMap[V any] struct {
	values []V
	set    []bool
}

// NewBlockMap allocates a BlockMap sized for m's current block count.
func NewBlockMap[V any](m *Method) *BlockMap[V] {
	return &BlockMap[V]{
		values: make([]V, len(m.Blocks)),
		set:    make([]bool, len(m.Blocks)),
	}
}

// Get returns the value stored for b and whether one was ever set.
func (bm *BlockMap[V]) Get(b *BasicBlock) (V, bool) {
	if b.Index < 0 || b.Index >= len(bm.values) {
		var zero V
		return zero, false
	}
	return bm.values[b.Index], bm.set[b.Index]
}

// Set stores a value for b.
func (bm *BlockMap[V]) Set(b *BasicBlock, v V) {
	bm.values[b.Index] = v
	bm.set[b.Index] = true
}

// WriteTo renders a human-readable disassembly of m, in the reference
// toolchain's DumpTo idiom: one line per block header (with predecessor
// and successor counts), followed by one line per value.
func (m *Method) WriteTo(w io.Writer) {
	fmt.Fprintf(w, "func %s() %s {\n", m.Name, returnTypeString(m.ReturnType))
	for i, p := range m.Params {
		fmt.Fprintf(w, "  param %s: %s\n", p, p.typ)
		_ = i
	}
	for _, b := range m.Blocks {
		fmt.Fprintf(w, "%s: ; preds=%d succs=%d\n", b, len(b.Preds), len(b.Succs))
		for _, v := range b.Instrs {
			if v == nil {
				fmt.Fprintln(w, "\t<deleted>")
				continue
			}
			fmt.Fprintf(w, "\t%s\n", v.Print())
		}
		if b.terminator != nil {
			fmt.Fprintf(w, "\t%s\n", b.terminator.Print())
		}
	}
	fmt.Fprintln(w, "}")
}

func returnTypeString(t Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

// ExtractToContext clones m and every type/method it transitively
// references into dst, preserving structure and allocating fresh NodeIds
// (§4.E "extract_to_context"). dst may be m's own context, where the copy
// is registered alongside m under a new handle and the same name, or a
// different one (cross-context import), which must not already declare a
// method with m's name (a VerificationFailed error is returned if it does).
func ExtractToContext(m *Method, dst *Context) (*Method, error) {
	r := newRebuilder(dst)
	return r.cloneMethod(m)
}
