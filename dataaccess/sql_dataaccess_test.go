package dataaccess_test

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/seanvanpelt2/permissionsex-store/dataaccess"
	"github.com/seanvanpelt2/permissionsex-store/model"
)

// newTestDataAccess opens an in-memory sqlite-backed DataAccess with the
// bundled H2 schema deployed. MaxOpenConns is pinned to 1 so every
// checkout in the test shares the same in-memory database (sqlite's
// :memory: databases are otherwise per-connection).
func newTestDataAccess(t *testing.T) (context.Context, dataaccess.DataAccess) {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	da, err := dataaccess.Open(ctx, db, dataaccess.NewPrefixRewriter(""))
	require.NoError(t, err)
	t.Cleanup(func() { da.Close() })

	require.NoError(t, da.EnsureSchema(ctx))
	return ctx, da
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	ctx, da := newTestDataAccess(t)
	require.NoError(t, da.EnsureSchema(ctx))
}

func TestGetOrCreateSubjectRefReturnsSameRowTwice(t *testing.T) {
	ctx, da := newTestDataAccess(t)

	first, err := da.GetOrCreateSubjectRef(ctx, "user", "alice")
	require.NoError(t, err)
	id, err := first.ID()
	require.NoError(t, err)

	second, err := da.GetOrCreateSubjectRef(ctx, "user", "alice")
	require.NoError(t, err)
	secondID, err := second.ID()
	require.NoError(t, err)

	require.Equal(t, id, secondID)
}

func TestAllocateSegmentAndListSegments(t *testing.T) {
	ctx, da := newTestDataAccess(t)

	ref, err := da.GetOrCreateSubjectRef(ctx, "user", "alice")
	require.NoError(t, err)
	subjectID, err := ref.ID()
	require.NoError(t, err)

	world := model.NewContextSet(model.Context{Key: "world", Value: "nether"})
	seg := model.NewSegment(world)
	allocated, err := da.AllocateSegment(ctx, subjectID, seg)
	require.NoError(t, err)

	segID, err := allocated.ID()
	require.NoError(t, err)
	require.NoError(t, da.SetPermissionRow(ctx, segID, "build", 1))
	require.NoError(t, da.SetOptionRow(ctx, segID, "prefix", "admin"))

	segments, err := da.ListSegments(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, 1, segments[0].Permissions()["build"])
	require.Equal(t, "admin", segments[0].Options()["prefix"])
	require.True(t, segments[0].Contexts().Equal(world))
}

func TestSetPermissionRowUpsertsValue(t *testing.T) {
	ctx, da := newTestDataAccess(t)

	ref, err := da.GetOrCreateSubjectRef(ctx, "user", "alice")
	require.NoError(t, err)
	subjectID, _ := ref.ID()

	allocated, err := da.AllocateSegment(ctx, subjectID, model.NewSegment(model.Global()))
	require.NoError(t, err)
	segID, _ := allocated.ID()

	require.NoError(t, da.SetPermissionRow(ctx, segID, "build", 1))
	require.NoError(t, da.SetPermissionRow(ctx, segID, "build", 2))

	segments, err := da.ListSegments(ctx, subjectID)
	require.NoError(t, err)
	require.Equal(t, 2, segments[0].Permissions()["build"])
}

func TestGlobalParameterDeleteOnEmptyValue(t *testing.T) {
	ctx, da := newTestDataAccess(t)

	require.NoError(t, da.SetGlobalParameter(ctx, "motd", "hello"))
	_, ok, err := da.GetGlobalParameter(ctx, "motd")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, da.SetGlobalParameter(ctx, "motd", ""))
	_, ok, err = da.GetGlobalParameter(ctx, "motd")
	require.NoError(t, err)
	require.False(t, ok, "an empty value deletes the row instead of storing it")
}

func TestExecuteInTransactionNestsByDepth(t *testing.T) {
	ctx, da := newTestDataAccess(t)

	err := da.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		return da.ExecuteInTransaction(ctx, func(ctx context.Context) error {
			return da.SetGlobalParameter(ctx, "nested", "ok")
		})
	})
	require.NoError(t, err)

	value, ok, err := da.GetGlobalParameter(ctx, "nested")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ok", value)
}

func TestExecuteInTransactionRollsBackOnError(t *testing.T) {
	ctx, da := newTestDataAccess(t)

	err := da.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		if e := da.SetGlobalParameter(ctx, "doomed", "value"); e != nil {
			return e
		}
		return context.DeadlineExceeded
	})
	require.Error(t, err)

	_, ok, err := da.GetGlobalParameter(ctx, "doomed")
	require.NoError(t, err)
	require.False(t, ok, "a failed transaction must roll back its writes")
}

func TestRankLadderOrderFollowsInsertion(t *testing.T) {
	ctx, da := newTestDataAccess(t)

	member1, err := da.GetOrCreateSubjectRef(ctx, "user", "alice")
	require.NoError(t, err)
	member2, err := da.GetOrCreateSubjectRef(ctx, "user", "bob")
	require.NoError(t, err)

	require.NoError(t, da.InsertRankLadderMember(ctx, "staff", member1))
	require.NoError(t, da.InsertRankLadderMember(ctx, "staff", member2))

	ladder, ok, err := da.GetRankLadder(ctx, "staff")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, ladder.Members(), 2)
	require.Equal(t, "alice", ladder.Members()[0].Identifier())
	require.Equal(t, "bob", ladder.Members()[1].Identifier())
}

func TestParentOrderFollowsInsertion(t *testing.T) {
	ctx, da := newTestDataAccess(t)

	ref, err := da.GetOrCreateSubjectRef(ctx, "user", "alice")
	require.NoError(t, err)
	subjectID, _ := ref.ID()

	allocated, err := da.AllocateSegment(ctx, subjectID, model.NewSegment(model.Global()))
	require.NoError(t, err)
	segID, _ := allocated.ID()

	parentA, err := da.GetOrCreateSubjectRef(ctx, "group", "default")
	require.NoError(t, err)
	parentB, err := da.GetOrCreateSubjectRef(ctx, "group", "staff")
	require.NoError(t, err)

	require.NoError(t, da.AddParentRow(ctx, segID, parentA))
	require.NoError(t, da.AddParentRow(ctx, segID, parentB))

	segments, err := da.ListSegments(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, segments[0].Parents(), 2)
	require.Equal(t, "default", segments[0].Parents()[0].Identifier())
	require.Equal(t, "staff", segments[0].Parents()[1].Identifier())
}
