package model

// SnapshotOpKind tags a deferred mutation queued against a SubjectData
// snapshot, chosen by newWithUpdated's state-transition table (§4.3).
type SnapshotOpKind int

const (
	// SnapOpDeleteSegment deletes one segment row: queued when a segment
	// became empty but was already allocated.
	SnapOpDeleteSegment SnapshotOpKind = iota
	// SnapOpInsertFullSegment allocates a new segment row and writes the
	// segment's full content (permissions, options, parents, default):
	// queued when an unallocated segment became non-empty.
	SnapOpInsertFullSegment
	// SnapOpReplaySegment replays an already-allocated segment's own op
	// queue: queued when an allocated segment stayed or became non-empty.
	SnapOpReplaySegment
)

// SnapshotOp is one queued flush action against a SubjectData.
type SnapshotOp struct {
	Kind    SnapshotOpKind
	Context ContextSet
	Segment Segment
}

// SubjectData is an immutable mapping from context-set to Segment for one
// subject, plus a queue of pending operations against the data-access
// layer (§3, §4.3). Every mutating method returns a new SubjectData; the
// receiver is left untouched.
type SubjectData struct {
	ref      SubjectRef
	segments map[string]Segment // keyed by ContextSet.Key()
	contexts map[string]ContextSet
	queue    *genericQueueBox[SnapshotOp]
}

// NewSubjectData constructs a snapshot from segments loaded from the
// store, with no pending updates.
func NewSubjectData(ref SubjectRef, segments []Segment) SubjectData {
	segByKey := make(map[string]Segment, len(segments))
	ctxByKey := make(map[string]ContextSet, len(segments))
	for _, seg := range segments {
		k := seg.Contexts().Key()
		segByKey[k] = seg
		ctxByKey[k] = seg.Contexts()
	}
	return SubjectData{
		ref:      ref,
		segments: segByKey,
		contexts: ctxByKey,
		queue:    newGenericQueueBox(nil),
	}
}

// Ref returns the subject this snapshot describes.
func (d SubjectData) Ref() SubjectRef { return d.ref }

// ActiveContexts returns every context-set with a stored segment.
func (d SubjectData) ActiveContexts() []ContextSet {
	out := make([]ContextSet, 0, len(d.contexts))
	for _, c := range d.contexts {
		out = append(out, c)
	}
	return out
}

// segmentFor returns the segment for ctx, or an empty unallocated one if
// none is stored.
func (d SubjectData) segmentFor(ctx ContextSet) Segment {
	if seg, ok := d.segments[ctx.Key()]; ok {
		return seg
	}
	return NewSegment(ctx)
}

// GetPermissions returns the permission map for ctx (empty if no segment).
func (d SubjectData) GetPermissions(ctx ContextSet) map[string]int {
	return d.segmentFor(ctx).Permissions()
}

// ContextPermissions pairs a context-set with its permission map, used by
// GetAllPermissions since ContextSet cannot itself be a Go map key.
type ContextPermissions struct {
	Context     ContextSet
	Permissions map[string]int
}

// GetAllPermissions returns the permission map for every stored context.
func (d SubjectData) GetAllPermissions() []ContextPermissions {
	out := make([]ContextPermissions, 0, len(d.segments))
	for k, seg := range d.segments {
		out = append(out, ContextPermissions{Context: d.contexts[k], Permissions: seg.Permissions()})
	}
	return out
}

// ContextOptions pairs a context-set with its option map.
type ContextOptions struct {
	Context ContextSet
	Options map[string]string
}

// GetOptions returns the option map for ctx (empty if no segment).
func (d SubjectData) GetOptions(ctx ContextSet) map[string]string {
	return d.segmentFor(ctx).Options()
}

// GetAllOptions returns the option map for every stored context.
func (d SubjectData) GetAllOptions() []ContextOptions {
	out := make([]ContextOptions, 0, len(d.segments))
	for k, seg := range d.segments {
		out = append(out, ContextOptions{Context: d.contexts[k], Options: seg.Options()})
	}
	return out
}

// ContextParents pairs a context-set with its ordered parent list.
type ContextParents struct {
	Context ContextSet
	Parents []SubjectRef
}

// GetParents returns the ordered parent list for ctx (empty if no segment).
func (d SubjectData) GetParents(ctx ContextSet) []SubjectRef {
	return d.segmentFor(ctx).Parents()
}

// GetAllParents returns the parent list for every stored context.
func (d SubjectData) GetAllParents() []ContextParents {
	out := make([]ContextParents, 0, len(d.segments))
	for k, seg := range d.segments {
		out = append(out, ContextParents{Context: d.contexts[k], Parents: seg.Parents()})
	}
	return out
}

// ContextDefault pairs a context-set with its default value.
type ContextDefault struct {
	Context ContextSet
	Default *int
}

// GetDefaultValue returns the default value for ctx, or nil.
func (d SubjectData) GetDefaultValue(ctx ContextSet) *int {
	return d.segmentFor(ctx).Default()
}

// GetAllDefaultValues returns the default value for every stored context
// that has one set.
func (d SubjectData) GetAllDefaultValues() []ContextDefault {
	out := make([]ContextDefault, 0, len(d.segments))
	for k, seg := range d.segments {
		if seg.Default() != nil {
			out = append(out, ContextDefault{Context: d.contexts[k], Default: seg.Default()})
		}
	}
	return out
}

// clone returns a shallow copy ready to receive a mutation: maps are
// copied (so the receiver's view is untouched) and a fresh queue is
// seeded with the receiver's still-pending ops, since this snapshot
// exclusively owns its queue (§3 "Ownership").
func (d SubjectData) clone() SubjectData {
	segs := make(map[string]Segment, len(d.segments))
	for k, v := range d.segments {
		segs[k] = v
	}
	ctxs := make(map[string]ContextSet, len(d.contexts))
	for k, v := range d.contexts {
		ctxs[k] = v
	}
	return SubjectData{
		ref:      d.ref,
		segments: segs,
		contexts: ctxs,
		queue:    newGenericQueueBox(d.pendingOps()),
	}
}

// pendingOps peeks at (without draining) the current queue contents.
func (d SubjectData) pendingOps() []SnapshotOp {
	p := d.queue.ops.Load()
	if p == nil {
		return nil
	}
	return *p
}

// appendOp queues op, coalescing it with any already-queued op for the same
// context-set: op's Segment already reflects that context's cumulative
// state (newWithUpdated is always called with the latest Segment), so
// replacing rather than appending keeps exactly one flush action per
// context no matter how many times it was mutated since load. Without this,
// chaining two mutations on the same context (e.g. two AddParent calls)
// would queue the same replay twice and re-apply the first mutation,
// tripping unique-constraint violations or double-inserting a new segment.
// A queued SnapOpDeleteSegment is the one exception: a later insert for the
// same context is queued after it rather than replacing it, so the old row
// is still deleted before the new one is written.
func (d SubjectData) appendOp(op SnapshotOp) SubjectData {
	ops := append([]SnapshotOp(nil), d.pendingOps()...)
	key := op.Context.Key()
	for i, existing := range ops {
		if existing.Kind == SnapOpDeleteSegment && op.Kind != SnapOpDeleteSegment {
			continue
		}
		if existing.Context.Key() == key {
			ops[i] = op
			d.queue = newGenericQueueBox(ops)
			return d
		}
	}
	ops = append(ops, op)
	d.queue = newGenericQueueBox(ops)
	return d
}

// newWithUpdated applies the §4.3 state-transition table: it stores
// newSeg (or removes the entry if newSeg is empty and unallocated) and
// queues the flush action the transition calls for.
func (d SubjectData) newWithUpdated(ctx ContextSet, newSeg Segment) SubjectData {
	next := d.clone()
	key := ctx.Key()

	switch {
	case newSeg.IsEmpty() && newSeg.IsUnallocated():
		// unallocated, empty: no-op, nothing was ever written. A pending
		// insert queued for this context earlier is dropped with it.
		delete(next.segments, key)
		delete(next.contexts, key)
		kept := make([]SnapshotOp, 0, len(next.pendingOps()))
		for _, o := range next.pendingOps() {
			if o.Kind != SnapOpInsertFullSegment || o.Context.Key() != key {
				kept = append(kept, o)
			}
		}
		next.queue = newGenericQueueBox(kept)
		return next
	case newSeg.IsEmpty():
		// allocated, now empty: delete the row.
		delete(next.segments, key)
		delete(next.contexts, key)
		return next.appendOp(SnapshotOp{Kind: SnapOpDeleteSegment, Context: ctx, Segment: newSeg})
	case newSeg.IsUnallocated():
		// unallocated, now non-empty: insert the full segment.
		next.segments[key] = newSeg
		next.contexts[key] = ctx
		return next.appendOp(SnapshotOp{Kind: SnapOpInsertFullSegment, Context: ctx, Segment: newSeg})
	default:
		// allocated, non-empty: replay the segment's own update queue.
		next.segments[key] = newSeg
		next.contexts[key] = ctx
		return next.appendOp(SnapshotOp{Kind: SnapOpReplaySegment, Context: ctx, Segment: newSeg})
	}
}

// SetPermission sets one permission within ctx.
func (d SubjectData) SetPermission(ctx ContextSet, key string, value int) SubjectData {
	return d.newWithUpdated(ctx, d.segmentFor(ctx).WithPermission(key, value))
}

// SetPermissions replaces the entire permission map within ctx.
func (d SubjectData) SetPermissions(ctx ContextSet, perms map[string]int) SubjectData {
	return d.newWithUpdated(ctx, d.segmentFor(ctx).WithPermissions(perms))
}

// ClearPermissions clears permissions. With a context-set argument it
// clears just that context; with none, it clears every stored context in
// one snapshot (§4.3 "Bulk clears").
func (d SubjectData) ClearPermissions(ctx ...ContextSet) SubjectData {
	if len(ctx) > 0 {
		c := ctx[0]
		if _, ok := d.segments[c.Key()]; !ok {
			return d // no segment: no-op, same snapshot (§4.3)
		}
		return d.newWithUpdated(c, d.segmentFor(c).WithoutPermissions())
	}
	return d.bulkClear(func(seg Segment) Segment { return seg.WithoutPermissions() })
}

// SetOption sets one option within ctx.
func (d SubjectData) SetOption(ctx ContextSet, key, value string) SubjectData {
	return d.newWithUpdated(ctx, d.segmentFor(ctx).WithOption(key, value))
}

// SetOptions replaces the entire option map within ctx.
func (d SubjectData) SetOptions(ctx ContextSet, opts map[string]string) SubjectData {
	return d.newWithUpdated(ctx, d.segmentFor(ctx).WithOptions(opts))
}

// ClearOptions clears options, scoped or bulk (see ClearPermissions).
func (d SubjectData) ClearOptions(ctx ...ContextSet) SubjectData {
	if len(ctx) > 0 {
		c := ctx[0]
		if _, ok := d.segments[c.Key()]; !ok {
			return d
		}
		return d.newWithUpdated(c, d.segmentFor(c).WithoutOptions())
	}
	return d.bulkClear(func(seg Segment) Segment { return seg.WithoutOptions() })
}

// AddParent appends a parent within ctx. A no-op if already present.
func (d SubjectData) AddParent(ctx ContextSet, ref SubjectRef) SubjectData {
	seg := d.segmentFor(ctx)
	updated := seg.WithAddedParent(ref)
	if len(updated.Parents()) == len(seg.Parents()) {
		return d // already present: no-op, same snapshot
	}
	return d.newWithUpdated(ctx, updated)
}

// RemoveParent removes a parent within ctx. A no-op if not present.
func (d SubjectData) RemoveParent(ctx ContextSet, ref SubjectRef) SubjectData {
	if _, ok := d.segments[ctx.Key()]; !ok {
		return d
	}
	seg := d.segmentFor(ctx)
	updated := seg.WithRemovedParent(ref)
	if len(updated.Parents()) == len(seg.Parents()) {
		return d
	}
	return d.newWithUpdated(ctx, updated)
}

// SetParents replaces the parent list within ctx, in the given order.
func (d SubjectData) SetParents(ctx ContextSet, refs ...interface{}) SubjectData {
	return d.newWithUpdated(ctx, d.segmentFor(ctx).WithParents(refs...))
}

// ClearParents clears parents, scoped or bulk (see ClearPermissions).
// Clearing a context with no segment is a no-op returning the same
// snapshot reference (§4.3, §8 property 4).
func (d SubjectData) ClearParents(ctx ...ContextSet) SubjectData {
	if len(ctx) > 0 {
		c := ctx[0]
		if _, ok := d.segments[c.Key()]; !ok {
			return d
		}
		return d.newWithUpdated(c, d.segmentFor(c).WithoutParents())
	}
	return d.bulkClear(func(seg Segment) Segment { return seg.WithoutParents() })
}

// SetDefaultValue sets or clears (def == nil) the default value within ctx.
func (d SubjectData) SetDefaultValue(ctx ContextSet, def *int) SubjectData {
	return d.newWithUpdated(ctx, d.segmentFor(ctx).WithDefaultValue(def))
}

// bulkClear applies fn to every currently-stored segment and queues the
// resulting per-segment flush action for each, following the same
// state-transition table a single-context clear would use.
func (d SubjectData) bulkClear(fn func(Segment) Segment) SubjectData {
	next := d
	for _, ctx := range d.ActiveContexts() {
		seg := next.segmentFor(ctx)
		next = next.newWithUpdated(ctx, fn(seg))
	}
	return next
}

// DrainQueue atomically takes and clears the pending op queue. Used
// exclusively by the flush path; a second concurrent call (racing on the
// same SubjectData value) observes nothing left to drain.
func (d SubjectData) DrainQueue() []SnapshotOp {
	return d.queue.drain()
}
