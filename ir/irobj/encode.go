// Package irobj implements the binary export/import object model of §6: a
// flattened record stream covering a method's type table, its parameters,
// every block's instructions and terminator, and the block graph, encoded
// with golang.org/x/crypto/cryptobyte the way the reference toolchain's
// rpkg package encodes its own object format — a small fixed header
// followed by length-counted sections, cryptobyte.Builder on the way out
// and cryptobyte.String on the way back in.
//
// A method is flattened into one contiguous value table (parameters first,
// then each block's instructions and terminator in program order) so every
// operand reference is a plain table index; decode resolves those indices
// in two passes, matching how the builder itself expects a phi's operands
// to be filled in (see the phi pass at the end of Decode).
package irobj

import (
	"golang.org/x/crypto/cryptobyte"

	"github.com/m4rs-mt/ILGPU-sub010/ir"
)

const (
	magic   = 0x49524f42 // "IROB"
	version = 1
)

type typeKind uint8

const (
	tVoid typeKind = iota
	tString
	tPrimitive
	tPadding
	tPointer
	tView
	tArray
	tStructure
)

const (
	extraNone uint8 = iota
	extraInt64
	extraString
	extraMethodRef
	extraTypeRef
)

// Encode flattens m into the wire format described above.
func Encode(m *ir.Method) ([]byte, error) {
	e := newEncoder(m)
	e.collect(m)

	var b cryptobyte.Builder
	b.AddUint32(magic)
	b.AddUint8(version)
	addString(&b, m.Name)
	b.AddUint32(uint32(m.Flags))
	addInt32(&b, e.typeRef(m.ReturnType))

	b.AddUint32(uint32(len(e.types)))
	for _, t := range e.types {
		e.encodeType(&b, t)
	}

	b.AddUint32(uint32(len(m.Params)))
	for _, p := range m.Params {
		addInt32(&b, e.typeRef(p.Type()))
		addString(&b, p.Name())
	}

	b.AddUint32(uint32(len(e.values)))
	for _, v := range e.values {
		e.encodeValue(&b, v)
	}

	b.AddUint32(uint32(len(m.Blocks)))
	for _, blk := range m.Blocks {
		vals := blk.Values()
		b.AddUint32(uint32(len(vals)))
		for _, v := range vals {
			addInt32(&b, e.indexOf[v])
		}
		if t := blk.Terminator(); t != nil {
			addInt32(&b, e.indexOf[t])
		} else {
			addInt32(&b, -1)
		}
	}

	return b.Bytes()
}

type encoder struct {
	blockIndex map[*ir.BasicBlock]int32

	values  []*ir.Value
	indexOf map[*ir.Value]int32

	types     []ir.Type
	typeIndex map[ir.Type]int32
}

func newEncoder(m *ir.Method) *encoder {
	e := &encoder{
		blockIndex: make(map[*ir.BasicBlock]int32, len(m.Blocks)),
		indexOf:    make(map[*ir.Value]int32),
		typeIndex:  make(map[ir.Type]int32),
	}
	for i, b := range m.Blocks {
		e.blockIndex[b] = int32(i)
	}
	return e
}

// collect assigns every parameter and instruction a global value index
// (parameters first, then each block's values and terminator in program
// order) and interns every type reachable from the method, post-order, so
// a type's dependencies always precede it in the table.
func (e *encoder) collect(m *ir.Method) {
	for _, p := range m.Params {
		e.valueIndex(p)
	}
	for _, b := range m.Blocks {
		for _, v := range b.Values() {
			e.valueIndex(v)
		}
		if t := b.Terminator(); t != nil {
			e.valueIndex(t)
		}
	}
	for _, v := range e.values {
		e.addType(v.Type())
		if t, ok := v.Extra.(ir.Type); ok {
			e.addType(t)
		}
	}
	e.addType(m.ReturnType)
}

func (e *encoder) valueIndex(v *ir.Value) int32 {
	if idx, ok := e.indexOf[v]; ok {
		return idx
	}
	idx := int32(len(e.values))
	e.values = append(e.values, v)
	e.indexOf[v] = idx
	return idx
}

// addType interns t (and, post-order, its element/field types) into the
// type table, so every type it depends on already has a lower index.
func (e *encoder) addType(t ir.Type) int32 {
	if t == nil {
		return -1
	}
	if idx, ok := e.typeIndex[t]; ok {
		return idx
	}
	if elemOf, ok := t.(interface{ Elem() ir.Type }); ok {
		e.addType(elemOf.Elem())
	}
	if st, ok := t.(interface{ Fields() []ir.Type }); ok {
		for _, f := range st.Fields() {
			e.addType(f)
		}
	}
	idx := int32(len(e.types))
	e.types = append(e.types, t)
	e.typeIndex[t] = idx
	return idx
}

func (e *encoder) typeRef(t ir.Type) int32 {
	if t == nil {
		return -1
	}
	return e.typeIndex[t]
}

func addString(b *cryptobyte.Builder, s string) {
	b.AddUint32(uint32(len(s)))
	b.AddBytes([]byte(s))
}

func (e *encoder) encodeType(b *cryptobyte.Builder, t ir.Type) {
	switch t.Kind() {
	case ir.KindVoid:
		b.AddUint8(uint8(tVoid))
	case ir.KindString:
		b.AddUint8(uint8(tString))
	case ir.KindPrimitive:
		b.AddUint8(uint8(tPrimitive))
		b.AddUint32(uint32(t.(interface{ Basic() ir.BasicValueType }).Basic()))
	case ir.KindPadding:
		b.AddUint8(uint8(tPadding))
		b.AddUint32(uint32(t.(interface{ Basic() ir.BasicValueType }).Basic()))
	case ir.KindPointer:
		pt := t.(interface {
			Elem() ir.Type
			Space() ir.AddressSpace
		})
		b.AddUint8(uint8(tPointer))
		addInt32(b, e.typeRef(pt.Elem()))
		b.AddUint8(uint8(pt.Space()))
	case ir.KindView:
		vt := t.(interface {
			Elem() ir.Type
			Space() ir.AddressSpace
		})
		b.AddUint8(uint8(tView))
		addInt32(b, e.typeRef(vt.Elem()))
		b.AddUint8(uint8(vt.Space()))
	case ir.KindArray:
		at := t.(interface {
			Elem() ir.Type
			NumDimensions() int
		})
		b.AddUint8(uint8(tArray))
		addInt32(b, e.typeRef(at.Elem()))
		b.AddUint32(uint32(at.NumDimensions()))
	case ir.KindStructure:
		fields := t.(interface{ Fields() []ir.Type }).Fields()
		b.AddUint8(uint8(tStructure))
		b.AddUint32(uint32(len(fields)))
		for _, f := range fields {
			addInt32(b, e.typeRef(f))
		}
	}
}

func (e *encoder) encodeValue(b *cryptobyte.Builder, v *ir.Value) {
	b.AddUint8(uint8(v.Kind()))
	addInt32(b, e.typeRef(v.Type()))
	addInt64(b, v.ExtraInt)
	b.AddUint8(uint8(v.Flags))

	switch extra := v.Extra.(type) {
	case nil:
		b.AddUint8(extraNone)
	case string:
		b.AddUint8(extraString)
		addString(b, extra)
	case *ir.Method:
		b.AddUint8(extraMethodRef)
		addString(b, extra.Name)
	case ir.Type:
		b.AddUint8(extraTypeRef)
		addInt32(b, e.typeRef(extra))
	default:
		// An opaque HandleValue payload (or any other extra this format
		// doesn't know) cannot be portably round-tripped; it is dropped,
		// leaving a HandleValue with a nil handle on decode.
		b.AddUint8(extraNone)
	}

	b.AddUint32(uint32(len(v.Operands)))
	for _, o := range v.Operands {
		resolved := ir.ResolveDirectTarget(o)
		addInt32(b, e.indexOf[resolved])
	}

	b.AddUint32(uint32(len(v.Targets)))
	for _, t := range v.Targets {
		addInt32(b, e.blockIndex[t])
	}
}
