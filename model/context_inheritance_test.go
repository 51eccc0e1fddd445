package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanvanpelt2/permissionsex-store/model"
)

func TestContextInheritanceSetAllParentsReplacesInOrder(t *testing.T) {
	child := model.Context{Key: "world", Value: "nether"}
	parentA := model.Context{Key: "world", Value: "overworld"}
	parentB := model.Context{Key: "world", Value: "end"}

	ci := model.NewContextInheritance(nil)
	ci = ci.SetAllParents(child, []model.Context{parentA, parentB})

	assert.Equal(t, []model.Context{parentA, parentB}, ci.Parents(child))
	ops := ci.DrainQueue()
	require.Len(t, ops, 1)
	assert.Equal(t, model.InheritanceOpSetAllParents, ops[0].Kind)
}

func TestContextInheritanceSetAllParentsEmptyRemovesChild(t *testing.T) {
	child := model.Context{Key: "world", Value: "nether"}
	parent := model.Context{Key: "world", Value: "overworld"}

	ci := model.NewContextInheritance(map[model.Context][]model.Context{child: {parent}})
	ci = ci.SetAllParents(child, nil)

	assert.Empty(t, ci.Parents(child))
	assert.NotContains(t, ci.AllChildren(), child)
}

func TestContextInheritanceChainedSetAllParentsOnSameChildCoalesce(t *testing.T) {
	child := model.Context{Key: "world", Value: "nether"}
	parentA := model.Context{Key: "world", Value: "overworld"}
	parentB := model.Context{Key: "world", Value: "end"}

	ci := model.NewContextInheritance(nil)
	ci = ci.SetAllParents(child, []model.Context{parentA}).SetAllParents(child, []model.Context{parentA, parentB})

	ops := ci.DrainQueue()
	require.Len(t, ops, 1, "two SetAllParents calls on the same child must queue one replace, not two")
	assert.Equal(t, []model.Context{parentA, parentB}, ops[0].Parents)
}
