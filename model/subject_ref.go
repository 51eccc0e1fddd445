package model

import "github.com/seanvanpelt2/permissionsex-store/perrors"

// Unallocated is the sentinel id carried by a SubjectRef or Segment before
// it has a row in the backing store.
const Unallocated = -1

// SubjectRef identifies an access-control entity by (type, identifier).
// Equality and hashing ignore id: two refs naming the same (type,
// identifier) pair denote the same subject regardless of whether either
// has learned its integer primary key yet.
type SubjectRef struct {
	id         int
	subjType   string
	identifier string
}

// Unresolved constructs a SubjectRef with no id assigned yet.
func Unresolved(subjType, identifier string) SubjectRef {
	return SubjectRef{id: Unallocated, subjType: subjType, identifier: identifier}
}

// Resolved constructs a SubjectRef that already knows its id, e.g. when
// hydrating one from a database row.
func Resolved(id int, subjType, identifier string) SubjectRef {
	return SubjectRef{id: id, subjType: subjType, identifier: identifier}
}

// Type returns the subject's type component.
func (r SubjectRef) Type() string { return r.subjType }

// Identifier returns the subject's identifier component.
func (r SubjectRef) Identifier() string { return r.identifier }

// IsUnallocated reports whether this ref has not yet been assigned an id.
func (r SubjectRef) IsUnallocated() bool { return r.id == Unallocated }

// ID returns the allocated id, or perrors.UnallocatedReference if this ref
// has never been written to the store.
func (r SubjectRef) ID() (int, error) {
	if r.IsUnallocated() {
		return 0, perrors.UnallocatedReference.New()
	}
	return r.id, nil
}

// WithID returns a copy of r with its id set; r itself is unchanged. The
// dataaccess allocation path builds its refs with Resolved instead.
func (r SubjectRef) WithID(id int) SubjectRef {
	r.id = id
	return r
}

// Key returns the (type, identifier) pair used for equality, hashing, and
// as a map key — id is deliberately excluded.
func (r SubjectRef) Key() SubjectRefKey {
	return SubjectRefKey{Type: r.subjType, Identifier: r.identifier}
}

// SubjectRefKey is the hashable, id-free identity of a SubjectRef.
type SubjectRefKey struct {
	Type       string
	Identifier string
}
