package store

import (
	"context"

	"github.com/seanvanpelt2/permissionsex-store/dataaccess"
	"github.com/seanvanpelt2/permissionsex-store/model"
)

// GetRankLadder loads the named ladder, joined with subjects and ordered by
// insert id (§4.5 "Rank ladders"). This is one of the essential read paths
// that surfaces its error rather than degrading to an empty result (§4.6
// "Propagation").
func (s *Store) GetRankLadder(ctx context.Context, name string) (model.RankLadder, bool, error) {
	da, err := s.dataAccess(ctx)
	if err != nil {
		return model.RankLadder{}, false, err
	}
	defer da.Close()

	return da.GetRankLadder(ctx, name)
}

// SetRankLadder schedules ladder's member list to be written in full: a
// re-ordered ladder conveys its order purely through insert id, so the
// flush always deletes every existing row for the name before inserting
// members back in list order (§9 "Upsert ordering for rank_ladders").
// RankLadder carries no update queue of its own — unlike SubjectData and
// ContextInheritance, there is nothing to diff against; the final member
// list is always written whole.
func (s *Store) SetRankLadder(ctx context.Context, ladder model.RankLadder) (*WriteHandle, error) {
	handle := newWriteHandle()
	job := writeJob{
		handle: handle,
		run: func(ctx context.Context) error {
			return s.flushRankLadder(ctx, ladder)
		},
	}
	if err := s.submit(ctx, job); err != nil {
		return nil, err
	}
	return handle, nil
}

func (s *Store) flushRankLadder(ctx context.Context, ladder model.RankLadder) error {
	da, err := dataaccess.Open(ctx, s.db, s.prefix)
	if err != nil {
		return err
	}
	defer da.Close()

	return da.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		if err := da.DeleteRankLadder(ctx, ladder.Name()); err != nil {
			return err
		}
		for _, member := range ladder.Members() {
			resolved, err := allocateParent(ctx, da, member)
			if err != nil {
				return err
			}
			if err := da.InsertRankLadderMember(ctx, ladder.Name(), resolved); err != nil {
				return err
			}
		}
		return nil
	})
}
