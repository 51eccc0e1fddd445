package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanvanpelt2/permissionsex-store/model"
)

func TestCopyIntoImportsForeignPermissions(t *testing.T) {
	src := model.NewSubjectData(model.Resolved(1, "user", "bob"), []model.Segment{
		model.HydrateSegment(1, model.Global(), map[string]int{"build": 1}, map[string]string{"prefix": "admin"}, nil, nil),
	})

	dst := model.NewSubjectData(model.Unresolved("user", "bob"), nil)
	merged := model.CopyInto(dst, src)

	assert.Equal(t, 1, merged.GetPermissions(model.Global())["build"])
	assert.Equal(t, "admin", merged.GetOptions(model.Global())["prefix"])

	ops := merged.DrainQueue()
	require.NotEmpty(t, ops, "importing non-empty foreign content must queue a flush")
}
