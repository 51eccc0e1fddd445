package store_test

import (
	"context"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/seanvanpelt2/permissionsex-store/model"
	"github.com/seanvanpelt2/permissionsex-store/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, store.Config{URL: "jdbc:h2:mem:test"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func waitHandle(t *testing.T, h *store.WriteHandle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Wait(ctx))
}

func TestGetDataReturnsEmptySnapshotForNewSubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data, err := s.GetData(ctx, "user", "alice")
	require.NoError(t, err)
	require.Empty(t, data.GetPermissions(model.Global()))
}

func TestSetDataThenGetDataRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data, err := s.GetData(ctx, "user", "alice")
	require.NoError(t, err)

	updated := data.SetPermission(model.Global(), "build", 1).SetOption(model.Global(), "prefix", "admin")
	handle, err := s.SetData(ctx, "user", "alice", updated)
	require.NoError(t, err)
	waitHandle(t, handle)

	reloaded, err := s.GetData(ctx, "user", "alice")
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.GetPermissions(model.Global())["build"])
	require.Equal(t, "admin", reloaded.GetOptions(model.Global())["prefix"])
}

func TestSetDataDeletesSegmentWhenCleared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data, err := s.GetData(ctx, "user", "alice")
	require.NoError(t, err)

	withPerm := data.SetPermission(model.Global(), "build", 1)
	handle, err := s.SetData(ctx, "user", "alice", withPerm)
	require.NoError(t, err)
	waitHandle(t, handle)

	reloaded, err := s.GetData(ctx, "user", "alice")
	require.NoError(t, err)

	cleared := reloaded.ClearPermissions(model.Global())
	handle2, err := s.SetData(ctx, "user", "alice", cleared)
	require.NoError(t, err)
	waitHandle(t, handle2)

	final, err := s.GetData(ctx, "user", "alice")
	require.NoError(t, err)
	require.Empty(t, final.GetPermissions(model.Global()))
}

func TestGetAllEnumeratesEverySubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetData(ctx, "user", "alice")
	require.NoError(t, err)
	_, err = s.GetData(ctx, "user", "bob")
	require.NoError(t, err)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

// foreignSnapshot is a minimal non-native model.ForeignSnapshot used to
// exercise the cross-backend import path (§8 scenario E).
type foreignSnapshot struct {
	perms map[string]int
}

func (f foreignSnapshot) AllPermissions() []model.ContextPermissions {
	return []model.ContextPermissions{{Context: model.Global(), Permissions: f.perms}}
}
func (f foreignSnapshot) AllOptions() []model.ContextOptions     { return nil }
func (f foreignSnapshot) AllParents() []model.ContextParents     { return nil }
func (f foreignSnapshot) AllDefaultValues() []model.ContextDefault { return nil }

func TestSetDataImportsForeignSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	foreign := foreignSnapshot{perms: map[string]int{"fly": 1}}
	handle, err := s.SetData(ctx, "user", "carol", foreign)
	require.NoError(t, err)
	waitHandle(t, handle)

	reloaded, err := s.GetData(ctx, "user", "carol")
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.GetPermissions(model.Global())["fly"])
}

func TestContextInheritanceFlushReplacesInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	child := model.Context{Key: "world", Value: "nether"}
	parentA := model.Context{Key: "world", Value: "overworld"}
	parentB := model.Context{Key: "world", Value: "end"}

	ci, err := s.GetContextInheritance(ctx)
	require.NoError(t, err)

	updated := ci.SetAllParents(child, []model.Context{parentA, parentB})
	handle, err := s.SetContextInheritance(ctx, updated)
	require.NoError(t, err)
	waitHandle(t, handle)

	reloaded, err := s.GetContextInheritance(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Context{parentA, parentB}, reloaded.Parents(child))

	replaced := reloaded.SetAllParents(child, []model.Context{parentB})
	handle2, err := s.SetContextInheritance(ctx, replaced)
	require.NoError(t, err)
	waitHandle(t, handle2)

	final, err := s.GetContextInheritance(ctx)
	require.NoError(t, err)
	require.Equal(t, []model.Context{parentB}, final.Parents(child))
}

func TestRankLadderFlushDeletesAllThenInsertsInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ladder := model.NewRankLadder("staff", []model.SubjectRef{
		model.Unresolved("user", "alice"),
		model.Unresolved("user", "bob"),
	})
	handle, err := s.SetRankLadder(ctx, ladder)
	require.NoError(t, err)
	waitHandle(t, handle)

	reloaded, ok, err := s.GetRankLadder(ctx, "staff")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, reloaded.Members(), 2)
	require.Equal(t, "alice", reloaded.Members()[0].Identifier())
	require.Equal(t, "bob", reloaded.Members()[1].Identifier())

	reordered := reloaded.WithMembers([]model.SubjectRef{
		reloaded.Members()[1],
		reloaded.Members()[0],
	})
	handle2, err := s.SetRankLadder(ctx, reordered)
	require.NoError(t, err)
	waitHandle(t, handle2)

	final, ok, err := s.GetRankLadder(ctx, "staff")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, final.Members(), 2)
	require.Equal(t, "bob", final.Members()[0].Identifier())
	require.Equal(t, "alice", final.Members()[1].Identifier())
}

func TestBulkReusesPinnedConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Bulk(ctx, func(ctx context.Context) error {
		if _, err := s.GetData(ctx, "user", "dave"); err != nil {
			return err
		}
		_, err := s.GetData(ctx, "user", "erin")
		return err
	})
	require.NoError(t, err)

	all, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
