package model

// InheritanceOpKind tags a deferred mutation queued against a
// ContextInheritance snapshot.
type InheritanceOpKind int

const (
	// InheritanceOpSetAllParents deletes every row for Child then inserts
	// Parents in list order (§4.4, §9 "Upsert ordering for rank_ladders"
	// applies the identical delete-all-then-insert-in-order discipline
	// here since order is conveyed by insert id).
	InheritanceOpSetAllParents InheritanceOpKind = iota
)

// InheritanceOp is one queued flush action against a ContextInheritance.
type InheritanceOp struct {
	Kind    InheritanceOpKind
	Child   Context
	Parents []Context
}

// ContextInheritance is an immutable mapping from a child context pair to
// its ordered list of parent context pairs, plus a queue of pending
// updates (§4.4). It uses the same deferred-update discipline as
// SubjectData.
type ContextInheritance struct {
	parents map[Context][]Context
	queue   *genericQueueBox[InheritanceOp]
}

// NewContextInheritance constructs a snapshot from loaded rows, with no
// pending updates. rows must already be grouped by child and ordered by
// insert id within each child's parent list.
func NewContextInheritance(rows map[Context][]Context) ContextInheritance {
	cp := make(map[Context][]Context, len(rows))
	for child, parents := range rows {
		cp[child] = append([]Context(nil), parents...)
	}
	return ContextInheritance{parents: cp, queue: newGenericQueueBox[InheritanceOp](nil)}
}

// Parents returns the ordered parent list for child, or nil if none is
// defined.
func (c ContextInheritance) Parents(child Context) []Context {
	return append([]Context(nil), c.parents[child]...)
}

// AllChildren returns every child context pair with a defined parent list.
func (c ContextInheritance) AllChildren() []Context {
	out := make([]Context, 0, len(c.parents))
	for child := range c.parents {
		out = append(out, child)
	}
	return out
}

// SetAllParents replaces child's parent list with parents, in order.
func (c ContextInheritance) SetAllParents(child Context, parents []Context) ContextInheritance {
	next := make(map[Context][]Context, len(c.parents)+1)
	for k, v := range c.parents {
		next[k] = v
	}
	if len(parents) == 0 {
		delete(next, child)
	} else {
		next[child] = append([]Context(nil), parents...)
	}

	op := InheritanceOp{
		Kind:    InheritanceOpSetAllParents,
		Child:   child,
		Parents: append([]Context(nil), parents...),
	}

	ops := append([]InheritanceOp(nil), c.queue.peek()...)
	coalesced := false
	for i, existing := range ops {
		if existing.Child == child {
			ops[i] = op
			coalesced = true
			break
		}
	}
	if !coalesced {
		ops = append(ops, op)
	}

	return ContextInheritance{parents: next, queue: newGenericQueueBox(ops)}
}

// DrainQueue atomically takes and clears the pending op queue.
func (c ContextInheritance) DrainQueue() []InheritanceOp {
	return c.queue.drain()
}
