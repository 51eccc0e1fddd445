package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanvanpelt2/permissionsex-store/model"
)

func TestSubjectDataUnallocatedEmptyIsDiscarded(t *testing.T) {
	ref := model.Unresolved("user", "alice")
	data := model.NewSubjectData(ref, nil)

	updated := data.SetPermission(model.Global(), "build", 0) // 0 never stores
	assert.Empty(t, updated.DrainQueue(), "an unallocated, still-empty segment queues nothing")
}

func TestSubjectDataUnallocatedNonEmptyQueuesInsert(t *testing.T) {
	ref := model.Unresolved("user", "alice")
	data := model.NewSubjectData(ref, nil)

	updated := data.SetPermission(model.Global(), "build", 1)
	ops := updated.DrainQueue()
	require.Len(t, ops, 1)
	assert.Equal(t, model.SnapOpInsertFullSegment, ops[0].Kind)
}

func TestSubjectDataAllocatedEmptyQueuesDelete(t *testing.T) {
	ref := model.Resolved(1, "user", "alice")
	seg := model.HydrateSegment(10, model.Global(), map[string]int{"build": 1}, nil, nil, nil)
	data := model.NewSubjectData(ref, []model.Segment{seg})

	updated := data.ClearPermissions(model.Global())
	ops := updated.DrainQueue()
	require.Len(t, ops, 1)
	assert.Equal(t, model.SnapOpDeleteSegment, ops[0].Kind)
}

func TestSubjectDataAllocatedNonEmptyQueuesReplay(t *testing.T) {
	ref := model.Resolved(1, "user", "alice")
	seg := model.HydrateSegment(10, model.Global(), map[string]int{"build": 1}, nil, nil, nil)
	data := model.NewSubjectData(ref, []model.Segment{seg})

	updated := data.SetPermission(model.Global(), "fly", 1)
	ops := updated.DrainQueue()
	require.Len(t, ops, 1)
	assert.Equal(t, model.SnapOpReplaySegment, ops[0].Kind)
}

func TestSubjectDataClearParentsNoOpWhenNoSegment(t *testing.T) {
	ref := model.Resolved(1, "user", "alice")
	data := model.NewSubjectData(ref, nil)

	updated := data.ClearParents(model.Global())
	assert.Empty(t, updated.DrainQueue())
}

func TestSubjectDataBulkClearCoversEveryContext(t *testing.T) {
	ref := model.Resolved(1, "user", "alice")
	world := model.NewContextSet(model.Context{Key: "world", Value: "nether"})
	segGlobal := model.HydrateSegment(10, model.Global(), map[string]int{"a": 1}, nil, nil, nil)
	segWorld := model.HydrateSegment(11, world, map[string]int{"b": 1}, nil, nil, nil)
	data := model.NewSubjectData(ref, []model.Segment{segGlobal, segWorld})

	updated := data.ClearPermissions()
	ops := updated.DrainQueue()
	assert.Len(t, ops, 2)
}

func TestSubjectDataDrainQueueIsOneShot(t *testing.T) {
	ref := model.Unresolved("user", "alice")
	data := model.NewSubjectData(ref, nil).SetPermission(model.Global(), "build", 1)

	first := data.DrainQueue()
	require.Len(t, first, 1)

	second := data.DrainQueue()
	assert.Empty(t, second, "a second drain of the same snapshot observes nothing left")
}

func TestSubjectDataChainedMutationsOnSameContextCoalesce(t *testing.T) {
	ref := model.Unresolved("user", "alice")
	data := model.NewSubjectData(ref, nil)

	updated := data.SetPermission(model.Global(), "build", 1).SetOption(model.Global(), "prefix", "admin")
	ops := updated.DrainQueue()
	require.Len(t, ops, 1, "two mutations on the same unallocated context must queue one insert, not two")
	assert.Equal(t, model.SnapOpInsertFullSegment, ops[0].Kind)
	assert.Equal(t, 1, ops[0].Segment.Permissions()["build"])
	assert.Equal(t, "admin", ops[0].Segment.Options()["prefix"])
}

func TestSubjectDataChainedParentAddsOnAllocatedSegmentCoalesce(t *testing.T) {
	ref := model.Resolved(1, "user", "alice")
	seg := model.HydrateSegment(10, model.Global(), nil, nil, nil, nil)
	data := model.NewSubjectData(ref, []model.Segment{seg})

	parentX := model.Unresolved("group", "x")
	parentY := model.Unresolved("group", "y")
	updated := data.AddParent(model.Global(), parentX).AddParent(model.Global(), parentY)

	ops := updated.DrainQueue()
	require.Len(t, ops, 1, "two AddParent calls on the same segment must queue one replay, not two")
	require.Equal(t, model.SnapOpReplaySegment, ops[0].Kind)

	segOps := ops[0].Segment.Ops()
	require.Len(t, segOps, 2, "the replayed segment carries both parent additions exactly once each")
	assert.Equal(t, model.OpAddParent, segOps[0].Kind)
	assert.Equal(t, parentX.Key(), segOps[0].Parent.Key())
	assert.Equal(t, model.OpAddParent, segOps[1].Kind)
	assert.Equal(t, parentY.Key(), segOps[1].Parent.Key())
}
