package store

import (
	"context"

	"github.com/seanvanpelt2/permissionsex-store/dataaccess"
	"github.com/seanvanpelt2/permissionsex-store/model"
	"github.com/seanvanpelt2/permissionsex-store/perrors"
)

// GetContextInheritance loads every child/parent context-pair mapping into
// one immutable snapshot (§4.4). This is one of the essential read paths
// that surfaces its error rather than degrading to an empty result (§4.6
// "Propagation").
func (s *Store) GetContextInheritance(ctx context.Context) (model.ContextInheritance, error) {
	da, err := s.dataAccess(ctx)
	if err != nil {
		return model.ContextInheritance{}, err
	}
	defer da.Close()

	rows, err := da.ListContextInheritance(ctx)
	if err != nil {
		return model.ContextInheritance{}, err
	}
	return model.NewContextInheritance(rows), nil
}

// SetContextInheritance schedules a ContextInheritance snapshot's pending
// mutations for flush, the same way SetData does for subjects (§4.4
// "Flush replays within a transaction").
func (s *Store) SetContextInheritance(ctx context.Context, data model.ContextInheritance) (*WriteHandle, error) {
	handle := newWriteHandle()
	job := writeJob{
		handle: handle,
		run: func(ctx context.Context) error {
			return s.flushInheritance(ctx, data)
		},
	}
	if err := s.submit(ctx, job); err != nil {
		return nil, err
	}
	return handle, nil
}

func (s *Store) flushInheritance(ctx context.Context, data model.ContextInheritance) error {
	ops := data.DrainQueue()
	if len(ops) == 0 {
		return nil
	}

	da, err := dataaccess.Open(ctx, s.db, s.prefix)
	if err != nil {
		return err
	}
	defer da.Close()

	return da.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		for _, op := range ops {
			if err := applyInheritanceOp(ctx, da, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyInheritanceOp(ctx context.Context, da dataaccess.DataAccess, op model.InheritanceOp) error {
	switch op.Kind {
	case model.InheritanceOpSetAllParents:
		if err := da.DeleteContextInheritanceChild(ctx, op.Child); err != nil {
			return err
		}
		for _, parent := range op.Parents {
			if err := da.InsertContextInheritanceRow(ctx, op.Child, parent); err != nil {
				return err
			}
		}
		return nil
	default:
		return perrors.Consistency.New("unrecognized inheritance op")
	}
}
