package model

// RankLadder is an ordered list of SubjectRefs under a name. Order is
// significant: it is the ladder position, conveyed in storage by
// insertion order (§6, §9 "Upsert ordering for rank_ladders").
type RankLadder struct {
	name    string
	members []SubjectRef
}

// NewRankLadder constructs a ladder from rows already ordered by insert id.
func NewRankLadder(name string, members []SubjectRef) RankLadder {
	return RankLadder{name: name, members: append([]SubjectRef(nil), members...)}
}

// Name returns the ladder's name.
func (l RankLadder) Name() string { return l.name }

// Members returns the ordered member list.
func (l RankLadder) Members() []SubjectRef {
	return append([]SubjectRef(nil), l.members...)
}

// WithMembers returns a new ladder with a replaced, reordered member list.
// Flushing a reordered ladder requires a delete-all-then-insert-in-order
// replay, since order is conveyed purely by insert id (§9).
func (l RankLadder) WithMembers(members []SubjectRef) RankLadder {
	return RankLadder{name: l.name, members: append([]SubjectRef(nil), members...)}
}
