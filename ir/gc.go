package ir

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Collect compacts the context: it bumps the generation counter, rebuilds every
// dirty method into fresh NodeId space (dropping replaced/dead values for
// good), leaves clean methods' own structure untouched, repoints every
// call edge that targeted a rebuilt method at its replacement, and prunes
// the type universe to what the surviving methods actually reference
// (§4.F step 3-4).
//
// Dirty methods are rebuilt independently straight into c itself (so field
// types reinterned along the way land in c's own universe, keeping
// structure-type identity intact), with call edges left pointing at the
// pre-GC callee — so the rebuild fan-out (via errgroup, following the
// pack's convention for independent-unit parallelism) needs no
// synchronization between methods beyond the universe's own table lock.
// Call-edge fixup is a single sequential pass afterward.
func (c *Context) Collect() error {
	c.lockWriter()
	defer c.unlockWriter()

	c.generation.Add(1)

	c.mu.Lock()
	dirty := make([]*Method, 0, len(c.methods))
	clean := make([]*Method, 0, len(c.methods))
	for _, m := range c.methods {
		if m.IsDirty() {
			dirty = append(dirty, m)
		} else {
			clean = append(clean, m)
		}
	}
	c.mu.Unlock()

	rebuilt := make([]*Method, len(dirty))
	rebuildOne := func(i int) error {
		m := dirty[i]
		rb := newRebuilder(c)
		rb.keepOriginal = func(*Method) bool { return true }
		nm, err := rb.cloneMethod(m)
		if err != nil {
			return err
		}
		rebuilt[i] = nm
		return nil
	}

	if c.Flags.Has(EnableParallelCodeGeneration) {
		g, _ := errgroup.WithContext(context.Background())
		for i := range dirty {
			i := i
			g.Go(func() error { return rebuildOne(i) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		for i := range dirty {
			if err := rebuildOne(i); err != nil {
				return err
			}
		}
	}

	oldToNew := make(map[*Method]*Method, len(dirty))
	for i, m := range dirty {
		nm := rebuilt[i]
		nm.handle = m.handle
		nm.ctx = c
		// TransformFlags are monotone within a generation and reset by
		// the next GC (see the type's doc comment); a method just
		// rebuilt into the new generation starts that generation clean.
		nm.transform = TransformNone
		for _, b := range nm.Blocks {
			b.method = nm
		}
		oldToNew[m] = nm
	}

	for _, m := range clean {
		m.transform = TransformNone
	}

	c.mu.Lock()
	c.methods = make(map[MethodHandle]*Method, len(clean)+len(rebuilt))
	c.byID = make(map[NodeId]*Method, len(clean)+len(rebuilt))
	for _, m := range clean {
		c.methods[m.handle] = m
		c.byID[m.id] = m
	}
	for _, nm := range rebuilt {
		c.methods[nm.handle] = nm
		c.byID[nm.id] = nm
	}
	allMethods := make([]*Method, 0, len(clean)+len(rebuilt))
	allMethods = append(allMethods, clean...)
	allMethods = append(allMethods, rebuilt...)
	c.mu.Unlock()

	for _, m := range allMethods {
		retargetCalls(m, oldToNew)
	}

	keep := make(map[Type]bool)
	for _, m := range allMethods {
		collectMethodTypes(m, keep)
	}
	c.universe.retain(keep)

	return nil
}

// retargetCalls repoints every KMethodCall value's Extra that still names a
// pre-GC callee at that callee's post-GC replacement.
func retargetCalls(m *Method, oldToNew map[*Method]*Method) {
	for _, b := range m.Blocks {
		for _, v := range b.Instrs {
			if v == nil || v.kind != KMethodCall {
				continue
			}
			if callee, ok := v.Extra.(*Method); ok {
				if nm, ok := oldToNew[callee]; ok {
					v.Extra = nm
				}
			}
		}
	}
}

func collectMethodTypes(m *Method, out map[Type]bool) {
	reachableTypes(m.ReturnType, out)
	for _, p := range m.Params {
		reachableTypes(p.typ, out)
	}
	for _, b := range m.Blocks {
		for _, v := range b.Instrs {
			if v == nil {
				continue
			}
			reachableTypes(v.typ, out)
		}
		if b.terminator != nil {
			reachableTypes(b.terminator.typ, out)
		}
	}
}
