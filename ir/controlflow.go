package ir

// updateControlFlow recomputes every block's successor/predecessor lists
// from its terminator's Targets, then assigns forward-RPO indices starting
// from the entry block. It is the only place Preds/Succs/Index are
// written; ordinary mutation never patches them incrementally (§4.D, §4.E).
func updateControlFlow(m *Method) {
	for _, b := range m.Blocks {
		b.Succs = nil
		b.Preds = nil
	}

	for _, b := range m.Blocks {
		if b.terminator == nil {
			continue
		}
		b.Succs = append(b.Succs, b.terminator.Targets...)
	}

	for _, b := range m.Blocks {
		for _, s := range b.Succs {
			s.Preds = append(s.Preds, b)
		}
	}

	order := rpoFrom(m.Entry)
	for i, b := range order {
		b.Index = i
	}
	// Any block unreachable from Entry (should not exist after a correct
	// builder session, but may transiently during incremental
	// construction) sorts after the reachable set rather than keeping a
	// stale index.
	seen := make(map[*BasicBlock]bool, len(order))
	for _, b := range order {
		seen[b] = true
	}
	next := len(order)
	for _, b := range m.Blocks {
		if !seen[b] {
			b.Index = next
			next++
		}
	}
}

// rpoFrom computes a reverse post-order traversal of the successor graph
// starting at entry. Successor order is walked exactly as stored, so the
// result is deterministic for a fixed IR (§8 S-series determinism
// property).
func rpoFrom(entry *BasicBlock) []*BasicBlock {
	if entry == nil {
		return nil
	}
	visited := make(map[*BasicBlock]bool)
	var post []*BasicBlock
	var visit func(*BasicBlock)
	visit = func(b *BasicBlock) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(entry)
	// Reverse post-order is the post-order list reversed.
	out := make([]*BasicBlock, len(post))
	for i, b := range post {
		out[len(post)-1-i] = b
	}
	return out
}
