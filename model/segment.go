package model

import (
	"github.com/spf13/cast"

	"github.com/seanvanpelt2/permissionsex-store/perrors"
)

// Segment is an immutable, context-scoped block of permissions, options,
// parents, and an optional default value, carrying a queue of pending
// per-field updates accumulated since it was loaded (or since it was
// created fresh and unallocated).
//
// Mutating a Segment never changes it in place: every With*/Without*
// method returns a new Segment whose payload reflects the change and
// whose op queue has the replay instruction for that change appended.
type Segment struct {
	id           int
	contexts     ContextSet
	permissions  map[string]int
	options      map[string]string
	parents      []SubjectRef
	defaultValue *int
	ops          []SegmentOp
}

// NewSegment constructs an unallocated, empty Segment scoped to ctx.
func NewSegment(ctx ContextSet) Segment {
	return Segment{id: Unallocated, contexts: ctx}
}

// HydrateSegment constructs an already-allocated Segment from loaded rows.
// It carries no pending ops: it reflects exactly what the database holds.
func HydrateSegment(id int, ctx ContextSet, permissions map[string]int, options map[string]string, parents []SubjectRef, def *int) Segment {
	return Segment{
		id:           id,
		contexts:     ctx,
		permissions:  copyIntMap(permissions),
		options:      copyStrMap(options),
		parents:      append([]SubjectRef(nil), parents...),
		defaultValue: def,
	}
}

// ID returns the allocated segment id, or perrors.UnallocatedReference.
func (s Segment) ID() (int, error) {
	if s.IsUnallocated() {
		return 0, perrors.UnallocatedReference.New()
	}
	return s.id, nil
}

// IsUnallocated checks only id, per §4.2.
func (s Segment) IsUnallocated() bool { return s.id == Unallocated }

// Contexts returns the context-set this segment is scoped to.
func (s Segment) Contexts() ContextSet { return s.contexts }

// Permissions returns a defensive copy of the permission map. A permission
// value of 0 is never present: setting one to 0 clears it instead of
// storing it (§4.2).
func (s Segment) Permissions() map[string]int { return copyIntMap(s.permissions) }

// Options returns a defensive copy of the option map.
func (s Segment) Options() map[string]string { return copyStrMap(s.options) }

// Parents returns a defensive copy of the ordered parent list.
func (s Segment) Parents() []SubjectRef { return append([]SubjectRef(nil), s.parents...) }

// Default returns the default value, or nil if unset.
func (s Segment) Default() *int { return s.defaultValue }

// IsEmpty ignores id: a Segment with no permissions, no options, no
// parents, and no default is empty and its row is subject to deletion on
// flush (§3).
func (s Segment) IsEmpty() bool {
	return len(s.permissions) == 0 && len(s.options) == 0 && len(s.parents) == 0 && s.defaultValue == nil
}

// Ops returns the pending op queue without draining it. Callers that construct a
// new snapshot around this Segment are expected to take ownership of the
// returned slice; Segment itself never replays its own queue.
func (s Segment) Ops() []SegmentOp { return s.ops }

// WithPermission returns a new Segment with key set to value. A value of
// 0 is equivalent to clearing the permission (§4.2 "Setting a permission
// to 0 is equivalent to clearing that permission").
func (s Segment) WithPermission(key string, value int) Segment {
	if value == 0 {
		return s.WithoutPermission(key)
	}
	next := s.clone()
	if next.permissions == nil {
		next.permissions = map[string]int{}
	}
	next.permissions[key] = value
	return next.appendOp(SegmentOp{Kind: OpSetPermission, Key: key, IntValue: value})
}

// WithoutPermission clears one permission. A no-op if the key was never set.
func (s Segment) WithoutPermission(key string) Segment {
	if _, ok := s.permissions[key]; !ok {
		return s
	}
	next := s.clone()
	delete(next.permissions, key)
	return next.appendOp(SegmentOp{Kind: OpDeletePermission, Key: key})
}

// WithoutPermissions replaces the entire permission map with the empty
// map: delete-all with no subsequent insert.
func (s Segment) WithoutPermissions() Segment {
	if len(s.permissions) == 0 {
		return s
	}
	next := s.clone()
	next.permissions = nil
	return next.appendOp(SegmentOp{Kind: OpReplacePermissions, Permissions: map[string]int{}})
}

// WithPermissions replaces the entire permission map. Zero-valued entries
// are dropped before storage, mirroring WithPermission's semantics.
func (s Segment) WithPermissions(perms map[string]int) Segment {
	filtered := make(map[string]int, len(perms))
	for k, v := range perms {
		if v != 0 {
			filtered[k] = v
		}
	}
	next := s.clone()
	if len(filtered) == 0 {
		next.permissions = nil
	} else {
		next.permissions = filtered
	}
	return next.appendOp(SegmentOp{Kind: OpReplacePermissions, Permissions: copyIntMap(filtered)})
}

// WithOption returns a new Segment with key set to value.
func (s Segment) WithOption(key, value string) Segment {
	next := s.clone()
	if next.options == nil {
		next.options = map[string]string{}
	}
	next.options[key] = value
	return next.appendOp(SegmentOp{Kind: OpSetOption, Key: key, StrValue: value})
}

// WithoutOption clears one option. A no-op if the key was never set.
func (s Segment) WithoutOption(key string) Segment {
	if _, ok := s.options[key]; !ok {
		return s
	}
	next := s.clone()
	delete(next.options, key)
	return next.appendOp(SegmentOp{Kind: OpDeleteOption, Key: key})
}

// WithoutOptions replaces the entire option map with the empty map.
func (s Segment) WithoutOptions() Segment {
	if len(s.options) == 0 {
		return s
	}
	next := s.clone()
	next.options = nil
	return next.appendOp(SegmentOp{Kind: OpReplaceOptions, Options: map[string]string{}})
}

// WithOptions replaces the entire option map.
func (s Segment) WithOptions(opts map[string]string) Segment {
	next := s.clone()
	if len(opts) == 0 {
		next.options = nil
	} else {
		next.options = copyStrMap(opts)
	}
	return next.appendOp(SegmentOp{Kind: OpReplaceOptions, Options: copyStrMap(opts)})
}

// WithAddedParent appends ref to the parent list. A no-op if ref (by
// Key()) is already present (§4.2 "Clearing a parent that is not present
// is a no-op" — the symmetric add case is likewise a no-op).
func (s Segment) WithAddedParent(ref SubjectRef) Segment {
	for _, p := range s.parents {
		if p.Key() == ref.Key() {
			return s
		}
	}
	next := s.clone()
	next.parents = append(append([]SubjectRef(nil), s.parents...), ref)
	return next.appendOp(SegmentOp{Kind: OpAddParent, Parent: ref})
}

// WithRemovedParent removes ref from the parent list. A no-op if ref is
// not present.
func (s Segment) WithRemovedParent(ref SubjectRef) Segment {
	idx := -1
	for i, p := range s.parents {
		if p.Key() == ref.Key() {
			idx = i
			break
		}
	}
	if idx == -1 {
		return s
	}
	next := s.clone()
	next.parents = append(append([]SubjectRef(nil), s.parents[:idx]...), s.parents[idx+1:]...)
	return next.appendOp(SegmentOp{Kind: OpRemoveParent, Parent: ref})
}

// WithoutParents replaces the parent list with the empty list.
func (s Segment) WithoutParents() Segment {
	if len(s.parents) == 0 {
		return s
	}
	next := s.clone()
	next.parents = nil
	return next.appendOp(SegmentOp{Kind: OpReplaceParents, Parents: nil})
}

// WithParents replaces the parent list, coercing loosely-typed (type,
// identifier) pairs into unresolved SubjectRefs (§4.2 "withParents coerces
// list entries into SubjectRef").
func (s Segment) WithParents(refs ...interface{}) Segment {
	resolved := make([]SubjectRef, 0, len(refs))
	for _, r := range refs {
		resolved = append(resolved, coerceSubjectRef(r))
	}
	next := s.clone()
	next.parents = resolved
	return next.appendOp(SegmentOp{Kind: OpReplaceParents, Parents: append([]SubjectRef(nil), resolved...)})
}

// WithDefaultValue sets or clears (def == nil) the segment's default
// value. An absent default round-trips as SQL NULL, never 0 (§9).
func (s Segment) WithDefaultValue(def *int) Segment {
	next := s.clone()
	next.defaultValue = def
	var queued *int
	if def != nil {
		v := *def
		queued = &v
	}
	return next.appendOp(SegmentOp{Kind: OpSetDefault, Default: queued})
}

func (s Segment) clone() Segment {
	return Segment{
		id:           s.id,
		contexts:     s.contexts,
		permissions:  copyIntMap(s.permissions),
		options:      copyStrMap(s.options),
		parents:      append([]SubjectRef(nil), s.parents...),
		defaultValue: s.defaultValue,
		ops:          append([]SegmentOp(nil), s.ops...),
	}
}

func (s Segment) appendOp(op SegmentOp) Segment {
	s.ops = append(s.ops, op)
	return s
}

// WithAllocatedID is used by the flush path, after the row has been
// inserted and its id learned, to return a finalized Segment with an
// empty queue and no further pending work.
func (s Segment) WithAllocatedID(id int) Segment {
	s.id = id
	s.ops = nil
	return s
}

func copyIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStrMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// coerceSubjectRef accepts a SubjectRef, a SubjectRefKey, or a [2]string
// (type, identifier) pair and returns a SubjectRef, creating an
// unresolved one for raw pairs. Unrecognized inputs coerce to an
// unresolved ref with an empty type, mirroring the teacher's use of
// spf13/cast to tolerate loosely-typed driver-supplied values rather than
// panicking.
func coerceSubjectRef(v interface{}) SubjectRef {
	switch t := v.(type) {
	case SubjectRef:
		return t
	case SubjectRefKey:
		return Unresolved(t.Type, t.Identifier)
	case [2]string:
		return Unresolved(t[0], t[1])
	case *SubjectRef:
		return *t
	case map[string]interface{}:
		return Unresolved(cast.ToString(t["type"]), cast.ToString(t["identifier"]))
	default:
		return Unresolved("", "")
	}
}
