package ir

import (
	"github.com/m4rs-mt/ILGPU-sub010/ir/irerr"
	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

// panicInvalidProgram reports a violated structural invariant — a
// programming error in a builder or rewriter, never a condition a caller
// can recover from (§7's InvalidProgram: "panics, never returned").
func panicInvalidProgram(pos loc.Location, format string, args ...any) {
	panic(irerr.New(irerr.InvalidProgram, pos, format, args...))
}

// panicInvalidOperation reports an API misuse, e.g. mutating a block with
// no open builder (§7's InvalidOperation).
func panicInvalidOperation(pos loc.Location, format string, args ...any) {
	panic(irerr.New(irerr.InvalidOperation, pos, format, args...))
}
