// Package dataaccess is the dialect-abstract SQL facade described in
// spec.md §4.5: schema deploy, prefix rewrite, nested transactions, and
// CRUD for every entity in the schema, behind one Go interface shared by
// the MySQL and H2 (SQLite-backed, see dialect.go) adapters.
package dataaccess

import (
	"context"

	"github.com/seanvanpelt2/permissionsex-store/model"
)

// DataAccess is the contract every dialect adapter satisfies. An instance
// wraps exactly one physical connection and is not safe to share across
// goroutines (§4.5 "Thread-affinity"); a caller that needs several
// operations to share one transaction must reuse the same DataAccess
// value across them.
type DataAccess interface {
	// Close decrements this instance's hold-open counter and releases the
	// physical connection only once it reaches zero (§4.5 "Connection
	// close").
	Close() error

	// Retain increments the hold-open counter, used by Store to pin one
	// instance across a bulk operation scope (§4.6 "Bulk scope").
	Retain()

	// EnsureSchema deploys the bundled schema script if the `permissions`
	// table is absent, and is a no-op otherwise (§4.5 "Schema
	// deployment", §8 scenario F).
	EnsureSchema(ctx context.Context) error

	// ExecuteInTransaction runs body inside a transaction. Calls nest by
	// a counter: only the outermost call opens/commits (§4.5
	// "Transactions", §8 property 7).
	ExecuteInTransaction(ctx context.Context, body func(ctx context.Context) error) error

	// Global parameters.
	GetGlobalParameter(ctx context.Context, key string) (value string, ok bool, err error)
	SetGlobalParameter(ctx context.Context, key, value string) error
	DeleteGlobalParameter(ctx context.Context, key string) error

	// Subjects.
	ResolveSubjectByID(ctx context.Context, id int) (model.SubjectRef, bool, error)
	ResolveSubject(ctx context.Context, subjType, identifier string) (model.SubjectRef, bool, error)
	InsertSubject(ctx context.Context, subjType, identifier string) (model.SubjectRef, error)
	DeleteSubjectByID(ctx context.Context, id int) error
	DeleteSubject(ctx context.Context, subjType, identifier string) error
	ListIdentifiers(ctx context.Context, subjType string) ([]string, error)
	ListTypes(ctx context.Context) ([]string, error)
	ListAllSubjects(ctx context.Context) ([]model.SubjectRef, error)

	// Id allocation (§4.5 "Id allocation").
	GetOrCreateSubjectRef(ctx context.Context, subjType, identifier string) (model.SubjectRef, error)
	GetIDAllocating(ctx context.Context, ref model.SubjectRef) (model.SubjectRef, error)

	// Segments.
	ListSegments(ctx context.Context, subjectID int) ([]model.Segment, error)
	AllocateSegment(ctx context.Context, subjectID int, seg model.Segment) (model.Segment, error)
	DeleteSegmentByID(ctx context.Context, segmentID int) error
	UpdateSegmentDefault(ctx context.Context, segmentID int, def *int) error

	// Permission rows.
	SetPermissionRow(ctx context.Context, segmentID int, key string, value int) error
	DeletePermissionRow(ctx context.Context, segmentID int, key string) error
	ReplacePermissionRows(ctx context.Context, segmentID int, perms map[string]int) error

	// Option rows.
	SetOptionRow(ctx context.Context, segmentID int, key, value string) error
	DeleteOptionRow(ctx context.Context, segmentID int, key string) error
	ReplaceOptionRows(ctx context.Context, segmentID int, opts map[string]string) error

	// Inheritance (parent) rows, scoped to a segment.
	AddParentRow(ctx context.Context, segmentID int, parent model.SubjectRef) error
	RemoveParentRow(ctx context.Context, segmentID int, parent model.SubjectRef) error
	ReplaceParentRows(ctx context.Context, segmentID int, parents []model.SubjectRef) error

	// Context inheritance (child/parent context pairs, independent of
	// any subject or segment).
	ListContextInheritance(ctx context.Context) (map[model.Context][]model.Context, error)
	DeleteContextInheritanceChild(ctx context.Context, child model.Context) error
	InsertContextInheritanceRow(ctx context.Context, child, parent model.Context) error

	// Rank ladders.
	GetRankLadder(ctx context.Context, name string) (model.RankLadder, bool, error)
	RankLadderExists(ctx context.Context, name string) (bool, error)
	DeleteRankLadder(ctx context.Context, name string) error
	InsertRankLadderMember(ctx context.Context, name string, member model.SubjectRef) error
}
