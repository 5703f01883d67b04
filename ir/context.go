package ir

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/m4rs-mt/ILGPU-sub010/ir/irerr"
)

// ContextFlags configure a Context's behavior (§6 construction interface).
type ContextFlags int

const (
	ContextNone ContextFlags = 0

	EnableDebugInformation ContextFlags = 1 << iota
	EnableAssertions
	InlineMutableStaticFieldValues
	IgnoreStaticFieldStores
	AggressiveInlining
	FastMath
	Force32BitFloats
	ForceSystemGC
	DisableConstantPropagation
	EnableParallelCodeGeneration
)

// Has reports whether every bit in want is set in f.
func (f ContextFlags) Has(want ContextFlags) bool { return f&want == want }

// Context is the top-level IR container: the method registry, the type
// universe, the node-id allocator, the generation counter, and single-writer
// builder arbitration (§4.F, §5).
//
// The zero value is not usable; construct with NewContext.
type Context struct {
	Flags ContextFlags

	// rw implements the multi-reader/single-writer discipline of §5:
	// analyses and structural reads take RLock; an open builder or a GC
	// takes Lock.
	rw sync.RWMutex

	// builderOpen records whether a builder is currently open in this
	// context. It is only set and cleared; the one-builder-at-a-time rule
	// itself is enforced by holding rw's write lock for the builder's
	// lifetime.
	builderOpen atomic.Bool

	lastID     atomic.Int64
	generation atomic.Int64

	universe *universe

	mu       sync.Mutex // guards methods and nextHandle
	methods  map[MethodHandle]*Method
	byID     map[NodeId]*Method
	nextHandle int64
}

// NewContext creates an empty IRContext with the given flags.
func NewContext(flags ContextFlags) *Context {
	return &Context{
		Flags:    flags,
		universe: newUniverse(),
		methods:  make(map[MethodHandle]*Method),
		byID:     make(map[NodeId]*Method),
	}
}

// nextID allocates the next NodeId of this context. Atomic, never reused.
func (c *Context) nextID() NodeId {
	return NodeId(c.lastID.Add(1))
}

// Generation returns the context's current generation counter.
func (c *Context) Generation() int64 { return c.generation.Load() }

// Types exposes the type-universe operations of §4.B.
func (c *Context) Types() *universe { return c.universe }

// Declare reserves a method handle and registers the method declaration.
// Declare is idempotent by name: calling it again with the same name
// returns the existing method (§4.F "declare ... idempotent").
func (c *Context) Declare(name string, returnType Type, flags MethodFlags) *Method {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, m := range c.methods {
		if m.Name == name {
			return m
		}
	}

	c.nextHandle++
	handle := MethodHandle(c.nextHandle)
	m := &Method{
		id:         c.nextID(),
		handle:     handle,
		Name:       name,
		ReturnType: returnType,
		Flags:      flags,
		ctx:        c,
	}
	c.methods[handle] = m
	c.byID[m.id] = m
	return m
}

// Method looks up a declared method by handle.
func (c *Context) Method(h MethodHandle) (*Method, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.methods[h]
	return m, ok
}

// Methods returns every currently-registered method, in an unspecified
// order.
func (c *Context) Methods() []*Method {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Method, 0, len(c.methods))
	for _, m := range c.methods {
		out = append(out, m)
	}
	return out
}

// lockWriter acquires the context's write lock, blocking until no reader
// or other writer (an open builder or a GC) holds it.
func (c *Context) lockWriter() {
	c.rw.Lock()
}

func (c *Context) unlockWriter() {
	c.rw.Unlock()
}

// lockReader acquires the shared lock used by analyses and structural
// reads (§5).
func (c *Context) lockReader() {
	c.rw.RLock()
}

func (c *Context) unlockReader() {
	c.rw.RUnlock()
}

// UnloadMethod removes a method from the registry. It is not physically
// freed until the next GC.
func (c *Context) UnloadMethod(h MethodHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.methods[h]
	if !ok {
		return irerr.New(irerr.ArgumentOutOfRange, nil, "unload_method: unknown handle %d", h)
	}
	delete(c.methods, h)
	delete(c.byID, m.id)
	return nil
}

// UnloadUnreachable removes every method not transitively reachable from
// roots via method-call edges. roots must be non-empty.
func (c *Context) UnloadUnreachable(roots []*Method) error {
	if len(roots) == 0 {
		return irerr.New(irerr.ArgumentOutOfRange, nil, "unload_unreachable: empty root set")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reachable := make(map[MethodHandle]bool, len(c.methods))
	var walk func(*Method)
	walk = func(m *Method) {
		if reachable[m.handle] {
			return
		}
		reachable[m.handle] = true
		for _, b := range m.Blocks {
			for _, v := range b.Instrs {
				if v == nil || v.kind != KMethodCall {
					continue
				}
				if callee, ok := v.Extra.(*Method); ok {
					walk(callee)
				}
			}
		}
	}
	for _, root := range roots {
		walk(root)
	}

	for handle, m := range c.methods {
		if !reachable[handle] {
			delete(c.methods, handle)
			delete(c.byID, m.id)
		}
	}
	return nil
}

// String identifies the context by its current generation, for debugging.
func (c *Context) String() string {
	return fmt.Sprintf("ir.Context(generation=%d)", c.Generation())
}
