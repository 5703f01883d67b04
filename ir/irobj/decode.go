package irobj

import (
	"golang.org/x/crypto/cryptobyte"

	"github.com/m4rs-mt/ILGPU-sub010/ir"
	"github.com/m4rs-mt/ILGPU-sub010/ir/irerr"
	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

// Decode reconstructs a method into dst from data previously produced by
// Encode, re-interning every type through dst's own universe (§4.F import:
// types are re-unified by structure, never trusted by wire identity).
//
// A MethodCall whose callee isn't already declared in dst is resolved to a
// forward external declaration (MethodExternal, void-typed): a full
// whole-context bundle format that carries every callee's real signature
// is future work, noted in the design ledger.
func Decode(data []byte, dst *ir.Context) (*ir.Method, error) {
	s := cryptobyte.String(data)

	var magicWord uint32
	var ver uint8
	if !s.ReadUint32(&magicWord) || !s.ReadUint8(&ver) {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated header")
	}
	if magicWord != magic {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: bad magic %#x", magicWord)
	}
	if ver != version {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: unsupported version %d", ver)
	}

	name, ok := readString(&s)
	if !ok {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated method name")
	}

	var flags uint32
	var returnTypeIdx int32
	if !s.ReadUint32(&flags) || !readInt32(&s, &returnTypeIdx) {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated method header")
	}

	d := &decoder{dst: dst}
	var typeCount uint32
	if !s.ReadUint32(&typeCount) {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated type count")
	}
	for i := uint32(0); i < typeCount; i++ {
		t, err := d.decodeType(&s)
		if err != nil {
			return nil, err
		}
		d.types = append(d.types, t)
	}

	var paramCount uint32
	if !s.ReadUint32(&paramCount) {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated param count")
	}
	paramTypeIdx := make([]int32, paramCount)
	paramNames := make([]string, paramCount)
	for i := range paramTypeIdx {
		var n string
		if !readInt32(&s, &paramTypeIdx[i]) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated param type")
		}
		if n, ok = readString(&s); !ok {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated param name")
		}
		paramNames[i] = n
	}

	var valueCount uint32
	if !s.ReadUint32(&valueCount) {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated value count")
	}
	records := make([]valueRecord, valueCount)
	for i := range records {
		rec, err := d.decodeValueRecord(&s)
		if err != nil {
			return nil, err
		}
		records[i] = rec
	}

	var blockCount uint32
	if !s.ReadUint32(&blockCount) {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated block count")
	}
	blockRecs := make([]blockRecord, blockCount)
	for i := range blockRecs {
		var n uint32
		if !s.ReadUint32(&n) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated block instr count")
		}
		idxs := make([]int32, n)
		for j := range idxs {
			if !readInt32(&s, &idxs[j]) {
				return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated block instr index")
			}
		}
		var term int32
		if !readInt32(&s, &term) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated block terminator index")
		}
		blockRecs[i] = blockRecord{instrIdx: idxs, termIdx: term}
	}

	method := dst.Declare(name, d.typeAt(returnTypeIdx), ir.MethodFlags(flags))
	mb := dst.CreateBuilder(method)

	placeholders := make([]*ir.Value, valueCount)
	for i := uint32(0); i < paramCount; i++ {
		placeholders[i] = mb.AddParameter(d.typeAt(paramTypeIdx[i]), loc.Unknown, paramNames[i])
	}

	blocks := make([]*ir.BasicBlock, blockCount)
	for i := range blocks {
		blocks[i] = mb.CreateBasicBlock(loc.Unknown)
	}

	// The builder only sizes a new Phi's operand list from
	// block.Predecessors(), which is derived data normally computed by
	// Complete(). Since the block graph (unlike operand data-flow) is
	// already fully known from each terminator record's target indices,
	// assign Preds/Succs here directly so phis created below see the
	// right predecessor count; Complete() recomputes both from scratch
	// afterwards anyway.
	for i, br := range blockRecs {
		if br.termIdx < 0 {
			continue
		}
		for _, ti := range records[br.termIdx].targetIdx {
			blocks[i].Succs = append(blocks[i].Succs, blocks[ti])
			blocks[ti].Preds = append(blocks[ti].Preds, blocks[i])
		}
	}

	var phiGlobalIdx []int32
	for i, br := range blockRecs {
		bb := mb.Block(blocks[i])
		for _, vi := range br.instrIdx {
			v, err := d.buildValue(bb, records[vi], placeholders)
			if err != nil {
				return nil, err
			}
			placeholders[vi] = v
			if records[vi].kind == uint8(ir.KPhi) {
				phiGlobalIdx = append(phiGlobalIdx, vi)
			}
		}
		if br.termIdx >= 0 {
			rec := records[br.termIdx]
			t, err := d.buildTerminator(bb, rec, placeholders, blocks)
			if err != nil {
				return nil, err
			}
			placeholders[br.termIdx] = t
		}
	}

	for _, vi := range phiGlobalIdx {
		rec := records[vi]
		phi := placeholders[vi]
		bb := mb.Block(phi.Block())
		for i, oi := range rec.operandIdx {
			bb.SetIncoming(phi, i, placeholders[oi])
		}
	}

	result := mb.Complete()
	if !result.OK() {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: decoded method failed verification: %s", result.Error())
	}
	return method, nil
}

func readString(s *cryptobyte.String) (string, bool) {
	var n uint32
	if !s.ReadUint32(&n) {
		return "", false
	}
	var buf []byte
	if !s.ReadBytes(&buf, int(n)) {
		return "", false
	}
	return string(buf), true
}

type valueRecord struct {
	kind        uint8
	typeIdx     int32
	extraInt    int64
	flags       uint8
	extraKind   uint8
	extraString string
	extraType   int32
	operandIdx  []int32
	targetIdx   []int32
}

type blockRecord struct {
	instrIdx []int32
	termIdx  int32
}

type decoder struct {
	dst   *ir.Context
	types []ir.Type
}

func (d *decoder) typeAt(idx int32) ir.Type {
	if idx < 0 || int(idx) >= len(d.types) {
		return nil
	}
	return d.types[idx]
}

func (d *decoder) decodeType(s *cryptobyte.String) (ir.Type, error) {
	var kind uint8
	if !s.ReadUint8(&kind) {
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated type kind")
	}
	u := d.dst.Types()
	switch typeKind(kind) {
	case tVoid:
		return u.GetVoid(), nil
	case tString:
		return u.GetString(), nil
	case tPrimitive:
		var basic uint32
		if !s.ReadUint32(&basic) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated primitive")
		}
		return u.GetPrimitive(ir.BasicValueType(basic)), nil
	case tPadding:
		var basic uint32
		if !s.ReadUint32(&basic) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated padding")
		}
		return u.GetPadding(ir.BasicValueType(basic)), nil
	case tPointer:
		var elemIdx int32
		var space uint8
		if !readInt32(s, &elemIdx) || !s.ReadUint8(&space) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated pointer")
		}
		return u.CreatePointer(d.typeAt(elemIdx), ir.AddressSpace(space)), nil
	case tView:
		var elemIdx int32
		var space uint8
		if !readInt32(s, &elemIdx) || !s.ReadUint8(&space) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated view")
		}
		return u.CreateView(d.typeAt(elemIdx), ir.AddressSpace(space)), nil
	case tArray:
		var elemIdx int32
		var dims uint32
		if !readInt32(s, &elemIdx) || !s.ReadUint32(&dims) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated array")
		}
		return u.CreateArray(d.typeAt(elemIdx), int(dims)), nil
	case tStructure:
		var n uint32
		if !s.ReadUint32(&n) {
			return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated structure")
		}
		b := u.CreateStructure()
		for i := uint32(0); i < n; i++ {
			var fi int32
			if !readInt32(s, &fi) {
				return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated structure field")
			}
			b.AddField(d.typeAt(fi))
		}
		return b.Seal(), nil
	default:
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: unknown type kind %d", kind)
	}
}

func (d *decoder) decodeValueRecord(s *cryptobyte.String) (valueRecord, error) {
	var rec valueRecord
	if !s.ReadUint8(&rec.kind) || !readInt32(s, &rec.typeIdx) || !readInt64(s, &rec.extraInt) || !s.ReadUint8(&rec.flags) {
		return rec, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated value header")
	}
	if !s.ReadUint8(&rec.extraKind) {
		return rec, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated value extra kind")
	}
	switch rec.extraKind {
	case extraString, extraMethodRef:
		str, ok := readString(s)
		if !ok {
			return rec, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated value extra payload")
		}
		rec.extraString = str
	case extraTypeRef:
		if !readInt32(s, &rec.extraType) {
			return rec, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated value extra type")
		}
	}

	var n uint32
	if !s.ReadUint32(&n) {
		return rec, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated operand count")
	}
	rec.operandIdx = make([]int32, n)
	for i := range rec.operandIdx {
		if !readInt32(s, &rec.operandIdx[i]) {
			return rec, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated operand index")
		}
	}

	var tn uint32
	if !s.ReadUint32(&tn) {
		return rec, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated target count")
	}
	rec.targetIdx = make([]int32, tn)
	for i := range rec.targetIdx {
		if !readInt32(s, &rec.targetIdx[i]) {
			return rec, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: truncated target index")
		}
	}
	return rec, nil
}

// resolveMethodRef finds an already-declared method by name, or installs a
// minimal external forward declaration for one that isn't (see Decode's
// doc comment).
func (d *decoder) resolveMethodRef(name string) *ir.Method {
	for _, m := range d.dst.Methods() {
		if m.Name == name {
			return m
		}
	}
	return d.dst.Declare(name, d.dst.Types().GetVoid(), ir.MethodExternal)
}

// buildValue constructs the instruction (not terminator, not yet a filled
// phi) described by rec in block bb, resolving every non-phi operand from
// already-decoded placeholders.
func (d *decoder) buildValue(bb *ir.BlockBuilder, rec valueRecord, placeholders []*ir.Value) (*ir.Value, error) {
	typ := d.typeAt(rec.typeIdx)
	pos := loc.Unknown
	operand := func(i int) *ir.Value { return placeholders[rec.operandIdx[i]] }

	switch ir.ValueKind(rec.kind) {
	case ir.KPhi:
		return bb.Phi(typ, pos), nil
	case ir.KUnaryArithmetic:
		return bb.UnaryArithmetic(rec.extraInt, operand(0), typ, pos), nil
	case ir.KBinaryArithmetic:
		return bb.BinaryArithmetic(rec.extraInt, operand(0), operand(1), typ, pos), nil
	case ir.KTernaryArithmetic:
		return bb.TernaryArithmetic(rec.extraInt, operand(0), operand(1), operand(2), typ, pos), nil
	case ir.KCompare:
		return bb.Compare(rec.extraInt, operand(0), operand(1), typ, pos), nil
	case ir.KConvert:
		return bb.Convert(operand(0), typ, pos), nil
	case ir.KAlloca:
		allocated := d.typeAt(rec.extraType)
		space := ir.Generic
		if pt, ok := typ.(interface{ Space() ir.AddressSpace }); ok {
			space = pt.Space()
		}
		return bb.Alloca(allocated, space, pos), nil
	case ir.KLoad:
		return bb.Load(operand(0), typ, pos), nil
	case ir.KStore:
		return bb.Store(operand(0), operand(1), typ, pos), nil
	case ir.KLoadElementAddress:
		return bb.LoadElementAddress(operand(0), operand(1), typ, pos), nil
	case ir.KLoadFieldAddress:
		return bb.LoadFieldAddress(operand(0), rec.extraInt, typ, pos), nil
	case ir.KNewView:
		return bb.NewView(operand(0), operand(1), typ, pos), nil
	case ir.KGetViewLength:
		return bb.GetViewLength(operand(0), typ, pos), nil
	case ir.KNewArray:
		extent := make([]*ir.Value, len(rec.operandIdx))
		for i := range extent {
			extent[i] = operand(i)
		}
		return bb.NewArray(extent, typ, pos), nil
	case ir.KGetArrayLength:
		return bb.GetArrayLength(operand(0), rec.extraInt, typ, pos), nil
	case ir.KGetField:
		return bb.GetField(operand(0), rec.extraInt, typ, pos), nil
	case ir.KSetField:
		return bb.SetField(operand(0), rec.extraInt, operand(1), pos), nil
	case ir.KStructureValue:
		fields := make([]*ir.Value, len(rec.operandIdx))
		for i := range fields {
			fields[i] = operand(i)
		}
		return bb.StructureValue(fields, typ, pos), nil
	case ir.KPrimitiveValue:
		return bb.PrimitiveValue(rec.extraInt, typ, pos), nil
	case ir.KStringValue:
		return bb.StringValue(rec.extraString, typ, pos), nil
	case ir.KNullValue:
		return bb.NullValue(typ, pos), nil
	case ir.KUndefinedValue:
		return bb.UndefinedValue(typ, pos), nil
	case ir.KDeviceConstant:
		return bb.DeviceConstant(rec.extraString, typ, pos), nil
	case ir.KBarrier:
		return bb.Barrier(typ, pos), nil
	case ir.KPredicateBarrier:
		return bb.PredicateBarrier(operand(0), rec.extraInt, typ, pos), nil
	case ir.KBroadcast:
		return bb.Broadcast(operand(0), operand(1), rec.extraInt, pos), nil
	case ir.KWarpShuffle:
		return bb.WarpShuffle(operand(0), operand(1), rec.extraInt, pos), nil
	case ir.KSubWarpShuffle:
		return bb.SubWarpShuffle(operand(0), operand(1), operand(2), rec.extraInt, pos), nil
	case ir.KAtomicExchange:
		return bb.AtomicExchange(operand(0), operand(1), typ, pos), nil
	case ir.KAtomicCompareExchange:
		return bb.AtomicCompareExchange(operand(0), operand(1), operand(2), typ, pos), nil
	case ir.KAtomicBinary:
		return bb.AtomicBinary(rec.extraInt, operand(0), operand(1), typ, pos), nil
	case ir.KMethodCall:
		callee := d.resolveMethodRef(rec.extraString)
		args := make([]*ir.Value, len(rec.operandIdx))
		for i := range args {
			args[i] = operand(i)
		}
		return bb.MethodCall(callee, args, pos), nil
	case ir.KDebugAssert:
		return bb.DebugAssert(operand(0), rec.extraString, typ, pos), nil
	case ir.KWriteToOutput:
		args := make([]*ir.Value, len(rec.operandIdx))
		for i := range args {
			args[i] = operand(i)
		}
		return bb.WriteToOutput(rec.extraString, args, typ, pos), nil
	case ir.KHandleValue:
		return bb.HandleValue(nil, typ, pos), nil
	case ir.KLanguageEmit:
		args := make([]*ir.Value, len(rec.operandIdx))
		for i := range args {
			args[i] = operand(i)
		}
		return bb.LanguageEmit(rec.extraString, args, typ, pos), nil
	default:
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: unsupported value kind %d", rec.kind)
	}
}

func (d *decoder) buildTerminator(bb *ir.BlockBuilder, rec valueRecord, placeholders []*ir.Value, blocks []*ir.BasicBlock) (*ir.Value, error) {
	pos := loc.Unknown
	switch ir.ValueKind(rec.kind) {
	case ir.KReturnTerminator:
		var v *ir.Value
		if len(rec.operandIdx) > 0 {
			v = placeholders[rec.operandIdx[0]]
		}
		return bb.Return(v, pos), nil
	case ir.KUnconditionalBranch:
		return bb.Branch(blocks[rec.targetIdx[0]], pos), nil
	case ir.KIfBranch:
		cond := placeholders[rec.operandIdx[0]]
		return bb.IfBranch(cond, blocks[rec.targetIdx[0]], blocks[rec.targetIdx[1]], ir.BranchFlags(rec.flags), pos), nil
	case ir.KSwitchBranch:
		selector := placeholders[rec.operandIdx[0]]
		targets := make([]*ir.BasicBlock, len(rec.targetIdx))
		for i, ti := range rec.targetIdx {
			targets[i] = blocks[ti]
		}
		return bb.SwitchBranch(selector, targets, pos), nil
	default:
		return nil, irerr.New(irerr.VerificationFailed, loc.Unknown, "irobj: unsupported terminator kind %d", rec.kind)
	}
}
