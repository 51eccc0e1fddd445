package model

// SegmentOpKind tags a single deferred mutation queued against a Segment.
// The source's closures over mutable state are modeled here as a sum type
// so the flusher can interpret and replay them without capturing anything
// but data (see the teacher's `driver` package for the same closures-to-
// data shift applied to `database/sql/driver` result sets).
type SegmentOpKind int

const (
	// OpSetPermission upserts one permission row.
	OpSetPermission SegmentOpKind = iota
	// OpDeletePermission removes one permission row.
	OpDeletePermission
	// OpReplacePermissions deletes every permission row then inserts Permissions.
	OpReplacePermissions
	// OpSetOption upserts one option row.
	OpSetOption
	// OpDeleteOption removes one option row.
	OpDeleteOption
	// OpReplaceOptions deletes every option row then inserts Options.
	OpReplaceOptions
	// OpAddParent inserts one inheritance row.
	OpAddParent
	// OpRemoveParent deletes one inheritance row.
	OpRemoveParent
	// OpReplaceParents deletes every inheritance row then inserts Parents in order.
	OpReplaceParents
	// OpSetDefault updates the segment row's perm_default column.
	OpSetDefault
)

// SegmentOp is one queued mutation. Only the fields relevant to Kind are
// populated. Allocating or deleting the segment row itself is not
// represented here: SubjectData's own SnapshotOp queue carries that
// decision, since it alone knows whether the segment transitioned across
// allocated/empty boundaries (§4.3).
type SegmentOp struct {
	Kind        SegmentOpKind
	Key         string
	IntValue    int
	StrValue    string
	Permissions map[string]int
	Options     map[string]string
	Parent      SubjectRef
	Parents     []SubjectRef
	Default     *int
}
