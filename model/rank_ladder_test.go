package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/seanvanpelt2/permissionsex-store/model"
)

func TestRankLadderWithMembersPreservesOrder(t *testing.T) {
	a := model.Resolved(1, "group", "member")
	b := model.Resolved(2, "group", "admin")

	ladder := model.NewRankLadder("staff", []model.SubjectRef{a})
	reordered := ladder.WithMembers([]model.SubjectRef{b, a})

	assert.Equal(t, []model.SubjectRef{b, a}, reordered.Members())
	assert.Equal(t, []model.SubjectRef{a}, ladder.Members(), "original ladder must be unaffected")
}
