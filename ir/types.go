package ir

import (
	"fmt"
	"strings"
)

// BasicValueType enumerates the primitive scalar kinds the IR understands.
type BasicValueType int

const (
	Int1 BasicValueType = iota
	Int8
	Int16
	Int32
	Int64
	Float8E4M3
	Float8E5M2
	BFloat16
	Float16
	Float32
	Float64
)

var basicValueTypeNames = [...]string{
	Int1:       "i1",
	Int8:       "i8",
	Int16:      "i16",
	Int32:      "i32",
	Int64:      "i64",
	Float8E4M3: "f8e4m3",
	Float8E5M2: "f8e5m2",
	BFloat16:   "bf16",
	Float16:    "f16",
	Float32:    "f32",
	Float64:    "f64",
}

func (b BasicValueType) String() string {
	if int(b) < len(basicValueTypeNames) {
		return basicValueTypeNames[b]
	}
	return fmt.Sprintf("BasicValueType(%d)", int(b))
}

// sizeOf returns the storage size of a primitive, in bytes.
func (b BasicValueType) sizeOf() int {
	switch b {
	case Int1, Int8, Float8E4M3, Float8E5M2:
		return 1
	case Int16, BFloat16, Float16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		panic(fmt.Sprintf("ir: unrecognised BasicValueType %d", int(b)))
	}
}

// AddressSpace tags a pointer or view type with the memory region it
// refers to.
type AddressSpace int

const (
	Generic AddressSpace = iota
	Global
	Shared
	Local
)

var addressSpaceNames = [...]string{
	Generic: "generic",
	Global:  "global",
	Shared:  "shared",
	Local:   "local",
}

func (a AddressSpace) String() string {
	if int(a) < len(addressSpaceNames) {
		return addressSpaceNames[a]
	}
	return fmt.Sprintf("AddressSpace(%d)", int(a))
}

// TypeKind discriminates the tagged union of TypeNode.
type TypeKind int

const (
	KindVoid TypeKind = iota
	KindString
	KindPrimitive
	KindPadding
	KindPointer
	KindView
	KindArray
	KindStructure
)

var typeKindNames = [...]string{
	KindVoid:      "Void",
	KindString:    "String",
	KindPrimitive: "Primitive",
	KindPadding:   "Padding",
	KindPointer:   "Pointer",
	KindView:      "View",
	KindArray:     "Array",
	KindStructure: "Structure",
}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// Type is a node in the hash-consed type universe. Structurally equal
// types produced through the universe's constructors share identity: two
// Type values compare equal with == iff they describe the same type.
//
// Types are immutable once returned from a constructor.
type Type interface {
	Kind() TypeKind
	Underlying() Type
	String() string

	// Align returns the natural alignment of the type in bytes, capped at
	// platformMax (the target's maximum natural alignment). See §4.B.
	Align(platformMax int) int

	// key returns the value by which this type is uniqued in the universe's
	// table. Only types package-internal to ir may implement Type.
	key() typeKey
}

// typeKey is the hash-consing key for a Type. It must be comparable so it
// can be used as a map key.
type typeKey struct {
	kind  TypeKind
	basic BasicValueType
	elem  Type
	space AddressSpace
	dims  int
	// fields is not comparable directly, so structures are keyed by an
	// interned field-identity string built from the fields' String() forms.
	fieldSig string
}

type voidType struct{}

func (voidType) Kind() TypeKind        { return KindVoid }
func (voidType) Underlying() Type      { return voidType{} }
func (voidType) String() string        { return "void" }
func (voidType) Align(int) int         { return 1 }
func (voidType) key() typeKey          { return typeKey{kind: KindVoid} }

type stringType struct{}

func (stringType) Kind() TypeKind   { return KindString }
func (stringType) Underlying() Type { return stringType{} }
func (stringType) String() string   { return "string" }
func (stringType) Align(platformMax int) int {
	return clampAlign(8, platformMax)
}
func (stringType) key() typeKey { return typeKey{kind: KindString} }

type primitiveType struct{ basic BasicValueType }

func (t primitiveType) Kind() TypeKind   { return KindPrimitive }
func (t primitiveType) Underlying() Type { return t }
func (t primitiveType) String() string   { return t.basic.String() }
func (t primitiveType) Align(platformMax int) int {
	return clampAlign(t.basic.sizeOf(), platformMax)
}
func (t primitiveType) key() typeKey {
	return typeKey{kind: KindPrimitive, basic: t.basic}
}

// Basic returns the underlying scalar kind of a primitive type.
func (t primitiveType) Basic() BasicValueType { return t.basic }

type paddingType struct{ basic BasicValueType }

func (t paddingType) Kind() TypeKind   { return KindPadding }
func (t paddingType) Underlying() Type { return t }
func (t paddingType) String() string   { return "pad<" + t.basic.String() + ">" }
func (t paddingType) Align(platformMax int) int {
	return clampAlign(t.basic.sizeOf(), platformMax)
}
func (t paddingType) key() typeKey {
	return typeKey{kind: KindPadding, basic: t.basic}
}

// Basic returns the basic value type this padding cell's size is derived
// from (exported for irobj's export/import encoding, §6).
func (t paddingType) Basic() BasicValueType { return t.basic }

type pointerType struct {
	elem  Type
	space AddressSpace
}

func (t pointerType) Kind() TypeKind   { return KindPointer }
func (t pointerType) Underlying() Type { return t }
func (t pointerType) String() string {
	return fmt.Sprintf("ptr<%s, %s>", t.elem, t.space)
}
func (t pointerType) Align(platformMax int) int {
	return clampAlign(t.elem.Align(platformMax), platformMax)
}
func (t pointerType) key() typeKey {
	return typeKey{kind: KindPointer, elem: t.elem, space: t.space}
}

// Elem returns the pointee type.
func (t pointerType) Elem() Type { return t.elem }

// Space returns the address space the pointer refers into.
func (t pointerType) Space() AddressSpace { return t.space }

type viewType struct {
	elem  Type
	space AddressSpace
}

func (t viewType) Kind() TypeKind   { return KindView }
func (t viewType) Underlying() Type { return t }
func (t viewType) String() string {
	return fmt.Sprintf("view<%s, %s>", t.elem, t.space)
}
func (t viewType) Align(platformMax int) int {
	return clampAlign(t.elem.Align(platformMax), platformMax)
}
func (t viewType) key() typeKey {
	return typeKey{kind: KindView, elem: t.elem, space: t.space}
}

func (t viewType) Elem() Type          { return t.elem }
func (t viewType) Space() AddressSpace { return t.space }

type arrayType struct {
	elem Type
	dims int
}

func (t arrayType) Kind() TypeKind   { return KindArray }
func (t arrayType) Underlying() Type { return t }
func (t arrayType) String() string {
	return fmt.Sprintf("array<%s, %d>", t.elem, t.dims)
}
func (t arrayType) Align(platformMax int) int {
	return clampAlign(t.elem.Align(platformMax), platformMax)
}
func (t arrayType) key() typeKey {
	return typeKey{kind: KindArray, elem: t.elem, dims: t.dims}
}

func (t arrayType) Elem() Type          { return t.elem }
func (t arrayType) NumDimensions() int  { return t.dims }

type structureType struct {
	fields []Type
	sig    string
}

func (t *structureType) Kind() TypeKind   { return KindStructure }
func (t *structureType) Underlying() Type { return t }
func (t *structureType) String() string {
	var b strings.Builder
	b.WriteString("struct{")
	for i, f := range t.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.String())
	}
	b.WriteString("}")
	return b.String()
}

// Align is the conservative max-of-fields rule noted as an open question in
// §9: the target's precise structure-layout policy isn't specified, so we
// take the maximum alignment of any field, capped at the platform maximum.
func (t *structureType) Align(platformMax int) int {
	align := 1
	for _, f := range t.fields {
		if a := f.Align(platformMax); a > align {
			align = a
		}
	}
	return clampAlign(align, platformMax)
}

func (t *structureType) key() typeKey {
	return typeKey{kind: KindStructure, fieldSig: t.sig}
}

// Fields returns the ordered field types of the structure.
func (t *structureType) Fields() []Type { return append([]Type(nil), t.fields...) }

// FieldOffset returns the byte offset of the field at index i, computed by
// summing the sizes of the preceding fields rounded up to field i's
// alignment — see the pointer-alignment analysis's use of
// "field.alignment_offset" (§4.I).
func (t *structureType) FieldOffset(i int, platformMax int) int {
	offset := 0
	for j := 0; j < i; j++ {
		offset += sizeOfType(t.fields[j], platformMax)
	}
	align := t.fields[i].Align(platformMax)
	if align > 0 {
		offset = roundUp(offset, align)
	}
	return offset
}

func clampAlign(natural, platformMax int) int {
	if platformMax > 0 && natural > platformMax {
		return platformMax
	}
	if natural < 1 {
		return 1
	}
	return natural
}

func roundUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// sizeOfType returns a conservative storage size for a type, used only to
// lay out structure fields for alignment purposes. Pointers and views are
// sized as a machine word; arrays and structures recurse.
func sizeOfType(t Type, platformMax int) int {
	switch tt := t.(type) {
	case primitiveType:
		return tt.basic.sizeOf()
	case paddingType:
		return tt.basic.sizeOf()
	case pointerType:
		return 8
	case viewType:
		return 16 // pointer + length
	case arrayType:
		return sizeOfType(tt.elem, platformMax) * maxInt(tt.dims, 1)
	case *structureType:
		size := 0
		for i := range tt.fields {
			size = tt.FieldOffset(i, platformMax) + sizeOfType(tt.fields[i], platformMax)
		}
		return size
	case voidType, stringType:
		return 0
	default:
		return 0
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
