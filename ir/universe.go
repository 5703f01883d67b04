package ir

import (
	"strings"
	"sync"
)

// universe is the hash-consed table of every Type reachable from a live
// method signature or instruction in a generation. A context's builder
// discipline makes construction single-writer in the common case, but GC's
// per-method rebuild reinterns types from several goroutines at once, so
// the table itself carries a mutex rather than relying on the context's
// write lock alone.
type universe struct {
	mu    sync.Mutex
	table map[typeKey]Type

	voidOnce   Type
	stringOnce Type
	primitives [Float64 + 1]Type
}

func newUniverse() *universe {
	u := &universe{table: make(map[typeKey]Type)}
	u.voidOnce = voidType{}
	u.stringOnce = stringType{}
	u.table[u.voidOnce.key()] = u.voidOnce
	u.table[u.stringOnce.key()] = u.stringOnce
	for b := Int1; b <= Float64; b++ {
		t := primitiveType{basic: b}
		u.primitives[b] = t
		u.table[t.key()] = t
	}
	return u
}

// GetVoid returns the canonical void type.
func (u *universe) GetVoid() Type { return u.voidOnce }

// GetString returns the canonical string type.
func (u *universe) GetString() Type { return u.stringOnce }

// GetPrimitive returns the canonical primitive type for basic.
func (u *universe) GetPrimitive(basic BasicValueType) Type {
	if basic < Int1 || basic > Float64 {
		panic("ir: invalid BasicValueType")
	}
	return u.primitives[basic]
}

// GetPadding returns the canonical padding type for basic.
func (u *universe) GetPadding(basic BasicValueType) Type {
	u.mu.Lock()
	defer u.mu.Unlock()
	t := paddingType{basic: basic}
	if existing, ok := u.table[t.key()]; ok {
		return existing
	}
	u.table[t.key()] = t
	return t
}

// CreatePointer returns the canonical pointer-to-elem type in space.
func (u *universe) CreatePointer(elem Type, space AddressSpace) Type {
	u.mu.Lock()
	defer u.mu.Unlock()
	t := pointerType{elem: elem, space: space}
	if existing, ok := u.table[t.key()]; ok {
		return existing
	}
	u.table[t.key()] = t
	return t
}

// CreateView returns the canonical view-of-elem type in space.
func (u *universe) CreateView(elem Type, space AddressSpace) Type {
	u.mu.Lock()
	defer u.mu.Unlock()
	t := viewType{elem: elem, space: space}
	if existing, ok := u.table[t.key()]; ok {
		return existing
	}
	u.table[t.key()] = t
	return t
}

// CreateArray returns the canonical dims-dimensional array of elem.
func (u *universe) CreateArray(elem Type, dims int) Type {
	if dims < 1 {
		panic("ir: array must have at least one dimension")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	t := arrayType{elem: elem, dims: dims}
	if existing, ok := u.table[t.key()]; ok {
		return existing
	}
	u.table[t.key()] = t
	return t
}

// StructureBuilder accumulates fields for a structure type under
// construction; it is not itself canonical until Seal is called.
type StructureBuilder struct {
	u      *universe
	fields []Type
}

// CreateStructure begins building a new structure type.
func (u *universe) CreateStructure() *StructureBuilder {
	return &StructureBuilder{u: u}
}

// AddField appends a field to the structure under construction, in order.
func (b *StructureBuilder) AddField(t Type) *StructureBuilder {
	b.fields = append(b.fields, t)
	return b
}

// Seal canonicalizes the structure by its ordered field-identity tuple,
// returning the existing instance if an identical structure was already
// interned.
func (b *StructureBuilder) Seal() Type {
	b.u.mu.Lock()
	defer b.u.mu.Unlock()
	sig := fieldSignature(b.fields)
	key := typeKey{kind: KindStructure, fieldSig: sig}
	if existing, ok := b.u.table[key]; ok {
		return existing
	}
	t := &structureType{fields: append([]Type(nil), b.fields...), sig: sig}
	b.u.table[key] = t
	return t
}

func fieldSignature(fields []Type) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(0)
		}
		b.WriteString(f.String())
	}
	return b.String()
}

// reintern re-unifies t, which may have been constructed against a
// different universe (a different Context), into u's table: non-structure
// types are plain comparable values so they are already canonical by Go's
// == once their element types are reinterned, but structureType's identity
// is pointer-based and must be resealed here. Used by the rebuilder for GC
// rebuild and cross-context import (§4.E, §4.F).
func (u *universe) reintern(t Type) Type {
	if t == nil {
		return nil
	}
	switch tt := t.(type) {
	case voidType:
		return u.voidOnce
	case stringType:
		return u.stringOnce
	case primitiveType:
		return u.GetPrimitive(tt.basic)
	case paddingType:
		return u.GetPadding(tt.basic)
	case pointerType:
		return u.CreatePointer(u.reintern(tt.elem), tt.space)
	case viewType:
		return u.CreateView(u.reintern(tt.elem), tt.space)
	case arrayType:
		return u.CreateArray(u.reintern(tt.elem), tt.dims)
	case *structureType:
		b := u.CreateStructure()
		for _, f := range tt.fields {
			b.AddField(u.reintern(f))
		}
		return b.Seal()
	default:
		return t
	}
}

// retain drops every table entry not reachable from keep, used by GC
// (§4.F step 3) to shed types belonging only to unloaded methods. The
// intrinsics (void, string, primitives) are always retained.
func (u *universe) retain(keep map[Type]bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	fresh := make(map[typeKey]Type, len(keep)+16)
	fresh[u.voidOnce.key()] = u.voidOnce
	fresh[u.stringOnce.key()] = u.stringOnce
	for _, t := range u.primitives {
		fresh[t.key()] = t
	}
	for t := range keep {
		fresh[t.key()] = t
	}
	u.table = fresh
}

// reachableTypes walks t and every type nested within it (element types,
// field types), adding each to out.
func reachableTypes(t Type, out map[Type]bool) {
	if t == nil || out[t] {
		return
	}
	out[t] = true
	switch tt := t.(type) {
	case pointerType:
		reachableTypes(tt.elem, out)
	case viewType:
		reachableTypes(tt.elem, out)
	case arrayType:
		reachableTypes(tt.elem, out)
	case *structureType:
		for _, f := range tt.fields {
			reachableTypes(f, out)
		}
	}
}
