package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanvanpelt2/permissionsex-store/model"
)

func TestSegmentWithPermissionZeroClears(t *testing.T) {
	seg := model.NewSegment(model.Global()).WithPermission("build", 1)
	require.Equal(t, 1, seg.Permissions()["build"])

	cleared := seg.WithPermission("build", 0)
	_, ok := cleared.Permissions()["build"]
	assert.False(t, ok, "setting a permission to 0 must clear it")
}

func TestSegmentWithoutPermissionNoOpWhenAbsent(t *testing.T) {
	seg := model.NewSegment(model.Global())
	cleared := seg.WithoutPermission("never-set")
	assert.Empty(t, cleared.Ops(), "clearing an unset key must not queue an op")
}

func TestSegmentIsEmptyIgnoresID(t *testing.T) {
	seg := model.HydrateSegment(42, model.Global(), nil, nil, nil, nil)
	assert.True(t, seg.IsEmpty())
	assert.False(t, seg.IsUnallocated())
}

func TestSegmentWithAddedParentDeduplicates(t *testing.T) {
	parent := model.Unresolved("group", "admin")
	seg := model.NewSegment(model.Global()).WithAddedParent(parent)
	again := seg.WithAddedParent(parent)
	assert.Len(t, again.Parents(), 1)
	assert.Len(t, again.Ops(), 1, "re-adding the same parent is a no-op returning the same value")
}

func TestSegmentWithRemovedParentNoOpWhenAbsent(t *testing.T) {
	seg := model.NewSegment(model.Global())
	result := seg.WithRemovedParent(model.Unresolved("group", "admin"))
	assert.Empty(t, result.Ops())
}

func TestSegmentWithDefaultValueRoundTripsNil(t *testing.T) {
	seg := model.NewSegment(model.Global())
	one := 1
	withDefault := seg.WithDefaultValue(&one)
	require.NotNil(t, withDefault.Default())
	assert.Equal(t, 1, *withDefault.Default())

	cleared := withDefault.WithDefaultValue(nil)
	assert.Nil(t, cleared.Default())
}

func TestSegmentCloneIsolatesMutation(t *testing.T) {
	base := model.NewSegment(model.Global()).WithPermission("a", 1)
	mutated := base.WithPermission("b", 2)

	_, hasB := base.Permissions()["b"]
	assert.False(t, hasB, "mutating a derived Segment must not affect the original")
	assert.Equal(t, 1, mutated.Permissions()["a"])
}

func TestSegmentWithParentsCoercesPairs(t *testing.T) {
	seg := model.NewSegment(model.Global()).WithParents([2]string{"group", "default"})
	require.Len(t, seg.Parents(), 1)
	assert.Equal(t, "group", seg.Parents()[0].Type())
	assert.Equal(t, "default", seg.Parents()[0].Identifier())
}

func TestSegmentIDUnallocatedErrors(t *testing.T) {
	seg := model.NewSegment(model.Global())
	_, err := seg.ID()
	assert.Error(t, err)
}

func TestSegmentWithAllocatedIDClearsQueue(t *testing.T) {
	seg := model.NewSegment(model.Global()).WithPermission("a", 1)
	require.NotEmpty(t, seg.Ops())

	allocated := seg.WithAllocatedID(7)
	id, err := allocated.ID()
	require.NoError(t, err)
	assert.Equal(t, 7, id)
	assert.Empty(t, allocated.Ops())
}
