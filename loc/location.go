// Package loc implements source location tracking for the IR.
//
// A Location is a small value type, in the spirit of the reference
// toolchain's token.Position: it is cheap to copy, cheap to compare, and
// composes without an allocator. Unlike token.Position it also has to
// represent synthetic nodes (Unknown, Nowhere) and inlined call stacks
// (CompilationStack), neither of which go/token models, so Location is a
// small closed hierarchy of its own rather than a type alias.
package loc

import (
	"fmt"
	"strings"
)

// Location is the location of a node in source, for diagnostics.
//
// The zero value is a nil interface, not Unknown. Two Locations compare
// equal with == only when
// they carry no heap-allocated state (Unknown, Nowhere, and FileLocation all
// qualify; CompilationStack does not, since it holds a slice).
type Location interface {
	isLocation()
	String() string

	// Merge combines l with other, returning the smallest Location that
	// describes both. Unknown is the identity element.
	Merge(other Location) Location
}

// Unknown is the identity Location: a node whose origin was not recorded.
type unknown struct{}

// Unknown is the singleton Location used when no location was recorded.
var Unknown Location = unknown{}

func (unknown) isLocation()          {}
func (unknown) String() string       { return "<unknown>" }
func (unknown) Merge(o Location) Location { return o }

// nowhere is the Location of nodes that are synthetic by construction, such
// as compiler-inserted phi edges or intrinsic declarations. Unlike Unknown
// (which means "we didn't record it"), Nowhere means "there genuinely is no
// source for this".
type nowhere struct{}

// Nowhere is the singleton Location for synthetic, sourceless nodes.
var Nowhere Location = nowhere{}

func (nowhere) isLocation()    {}
func (nowhere) String() string { return "<nowhere>" }
func (nowhere) Merge(o Location) Location {
	if o == Unknown {
		return nowhere{}
	}
	return o
}

// FileLocation is a span of text in a single named file, measured in
// 1-based lines and columns, following the convention of go/token.Position.
type FileLocation struct {
	File      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (FileLocation) isLocation() {}

func (f FileLocation) String() string {
	if f.StartLine == f.EndLine && f.StartCol == f.EndCol {
		return fmt.Sprintf("%s:%d:%d", f.File, f.StartLine, f.StartCol)
	}
	return fmt.Sprintf("%s:%d:%d-%d:%d", f.File, f.StartLine, f.StartCol, f.EndLine, f.EndCol)
}

// Merge returns the span union of f and other when they describe the same
// file; Unknown/Nowhere are absorbed; spans in different files are combined
// into a CompilationStack so that neither location is silently dropped.
func (f FileLocation) Merge(other Location) Location {
	switch o := other.(type) {
	case unknown:
		return f
	case nowhere:
		return f
	case FileLocation:
		if o.File != f.File {
			return CompilationStack{f, o}
		}
		return FileLocation{
			File:      f.File,
			StartLine: minInt(f.StartLine, o.StartLine),
			StartCol:  minInt(f.StartCol, o.StartCol),
			EndLine:   maxInt(f.EndLine, o.EndLine),
			EndCol:    maxInt(f.EndCol, o.EndCol),
		}
	case CompilationStack:
		return append(CompilationStack{f}, o...)
	default:
		return f
	}
}

// CompilationStack is an ordered sequence of locations used to describe a
// node introduced by inlining: the innermost frame (where the node
// textually appears) first, then each enclosing call site.
type CompilationStack []Location

func (CompilationStack) isLocation() {}

func (c CompilationStack) String() string {
	var b strings.Builder
	for i, l := range c {
		if i > 0 {
			b.WriteString(" <- ")
		}
		b.WriteString(l.String())
	}
	return b.String()
}

func (c CompilationStack) Merge(other Location) Location {
	switch o := other.(type) {
	case unknown:
		return c
	case nowhere:
		return c
	case CompilationStack:
		return append(append(CompilationStack{}, c...), o...)
	default:
		return append(CompilationStack{o}, c...)
	}
}

// FormatErrorMessage renders message prefixed by l, and, for a
// CompilationStack, appends one line per enclosing frame so the reader can
// see the inlining chain that produced the diagnostic.
func FormatErrorMessage(l Location, message string) string {
	stack, ok := l.(CompilationStack)
	if !ok {
		return fmt.Sprintf("%s: %s", l, message)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", stack[0], message)
	for _, frame := range stack[1:] {
		fmt.Fprintf(&b, "\n\tinlined from %s", frame)
	}
	return b.String()
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
