package irobj

import "golang.org/x/crypto/cryptobyte"

// cryptobyte only has unsigned fixed-width primitives; these wrap the
// signed table-index and payload fields this format needs (operand/type
// indices use -1 as a "none" sentinel, ExtraInt carries signed constant
// bits) in a plain two's-complement reinterpretation.

func addInt32(b *cryptobyte.Builder, v int32) {
	b.AddUint32(uint32(v))
}

func readInt32(s *cryptobyte.String, out *int32) bool {
	var u uint32
	if !s.ReadUint32(&u) {
		return false
	}
	*out = int32(u)
	return true
}

func addInt64(b *cryptobyte.Builder, v int64) {
	b.AddUint64(uint64(v))
}

func readInt64(s *cryptobyte.String, out *int64) bool {
	var u uint64
	if !s.ReadUint64(&u) {
		return false
	}
	*out = int64(u)
	return true
}
