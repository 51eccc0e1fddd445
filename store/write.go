package store

import (
	"context"

	"github.com/seanvanpelt2/permissionsex-store/dataaccess"
	"github.com/seanvanpelt2/permissionsex-store/model"
	"github.com/seanvanpelt2/permissionsex-store/perrors"
)

// WriteHandle is the asynchronous completion handle returned by SetData
// (§4.6 "the write returns a handle that completes when the transaction
// commits"). done is closed exactly once, after err has been set.
type WriteHandle struct {
	done chan struct{}
	err  error
}

func newWriteHandle() *WriteHandle {
	return &WriteHandle{done: make(chan struct{})}
}

func (h *WriteHandle) complete(err error) {
	h.err = err
	close(h.done)
}

// Wait blocks until the write completes or ctx is done, whichever first.
func (h *WriteHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeJob is what SetData, SetContextInheritance, and SetRankLadder submit
// to the write worker: the flush to run and the handle it completes. A
// closure is used here for worker dispatch only — the deferred-update
// queues themselves (SnapshotOp, InheritanceOp, SegmentOp) stay tagged
// variants, never closures (§5).
type writeJob struct {
	run    func(ctx context.Context) error
	handle *WriteHandle
}

// ForeignSnapshot is re-exported so callers never need to import model
// directly just to hand Store a non-native snapshot (§4.6 "the write
// returns a handle ... otherwise fetch a fresh snapshot ... and copy").
type ForeignSnapshot = model.ForeignSnapshot

// SetData schedules a snapshot's pending mutations for flush (§4.6
// "Writes"). If data is not this engine's own SubjectData, a fresh native
// snapshot is loaded for (subjType, identifier) and data's semantic
// content is copied into it via model.CopyInto before scheduling — this is
// the cross-backend migration path (§8 scenario E).
func (s *Store) SetData(ctx context.Context, subjType, identifier string, data model.ForeignSnapshot) (*WriteHandle, error) {
	da, err := s.dataAccess(ctx)
	if err != nil {
		return nil, err
	}
	ref, err := da.GetOrCreateSubjectRef(ctx, subjType, identifier)
	if err != nil {
		da.Close()
		return nil, err
	}

	native, ok := data.(model.SubjectData)
	if !ok {
		fresh, err := s.loadSnapshot(ctx, da, ref)
		if err != nil {
			da.Close()
			return nil, err
		}
		native = model.CopyInto(fresh, data)
	}
	da.Close()

	handle := newWriteHandle()
	job := writeJob{
		handle: handle,
		run: func(ctx context.Context) error {
			return s.flush(ctx, ref, native)
		},
	}

	if err := s.submit(ctx, job); err != nil {
		return nil, err
	}
	return handle, nil
}

// submit enqueues job on the write channel, unless ctx is done first.
func (s *Store) submit(ctx context.Context, job writeJob) error {
	select {
	case s.writes <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runWriter is the body of one write worker goroutine: it absorbs the
// blocking DB I/O so caller goroutines submitting writes stay responsive
// (§5 "Suspension points").
func (s *Store) runWriter() {
	defer s.wg.Done()
	for job := range s.writes {
		err := job.run(context.Background())
		if err != nil {
			s.log.WithError(err).Warn("flush failed")
		}
		job.handle.complete(err)
	}
}

// flush drains data's pending op queue and replays it inside one
// transaction (§5 "Ordering guarantee per snapshot flush").
func (s *Store) flush(ctx context.Context, ref model.SubjectRef, data model.SubjectData) error {
	ops := data.DrainQueue()
	if len(ops) == 0 {
		return nil
	}

	da, err := dataaccess.Open(ctx, s.db, s.prefix)
	if err != nil {
		return err
	}
	defer da.Close()

	subjectID, err := ref.ID()
	if err != nil {
		return err
	}

	return da.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		for _, op := range ops {
			if err := applySnapshotOp(ctx, da, subjectID, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func applySnapshotOp(ctx context.Context, da dataaccess.DataAccess, subjectID int, op model.SnapshotOp) error {
	switch op.Kind {
	case model.SnapOpDeleteSegment:
		id, err := op.Segment.ID()
		if err != nil {
			return err
		}
		return da.DeleteSegmentByID(ctx, id)

	case model.SnapOpInsertFullSegment:
		allocated, err := da.AllocateSegment(ctx, subjectID, op.Segment)
		if err != nil {
			return err
		}
		id, err := allocated.ID()
		if err != nil {
			return err
		}
		if perms := allocated.Permissions(); len(perms) > 0 {
			if err := da.ReplacePermissionRows(ctx, id, perms); err != nil {
				return err
			}
		}
		if opts := allocated.Options(); len(opts) > 0 {
			if err := da.ReplaceOptionRows(ctx, id, opts); err != nil {
				return err
			}
		}
		if parents := allocated.Parents(); len(parents) > 0 {
			resolved, err := allocateParents(ctx, da, parents)
			if err != nil {
				return err
			}
			if err := da.ReplaceParentRows(ctx, id, resolved); err != nil {
				return err
			}
		}
		return nil

	case model.SnapOpReplaySegment:
		id, err := op.Segment.ID()
		if err != nil {
			return err
		}
		for _, segOp := range op.Segment.Ops() {
			if err := applySegmentOp(ctx, da, id, segOp); err != nil {
				return err
			}
		}
		return nil

	default:
		return perrors.Consistency.New("unrecognized snapshot op")
	}
}

func applySegmentOp(ctx context.Context, da dataaccess.DataAccess, segmentID int, op model.SegmentOp) error {
	switch op.Kind {
	case model.OpSetPermission:
		return da.SetPermissionRow(ctx, segmentID, op.Key, op.IntValue)
	case model.OpDeletePermission:
		return da.DeletePermissionRow(ctx, segmentID, op.Key)
	case model.OpReplacePermissions:
		return da.ReplacePermissionRows(ctx, segmentID, op.Permissions)
	case model.OpSetOption:
		return da.SetOptionRow(ctx, segmentID, op.Key, op.StrValue)
	case model.OpDeleteOption:
		return da.DeleteOptionRow(ctx, segmentID, op.Key)
	case model.OpReplaceOptions:
		return da.ReplaceOptionRows(ctx, segmentID, op.Options)
	case model.OpAddParent:
		parent, err := allocateParent(ctx, da, op.Parent)
		if err != nil {
			return err
		}
		return da.AddParentRow(ctx, segmentID, parent)
	case model.OpRemoveParent:
		parent, ok, err := resolveExistingParent(ctx, da, op.Parent)
		if err != nil {
			return err
		}
		if !ok {
			return nil // never had a row to begin with: nothing to unlink
		}
		return da.RemoveParentRow(ctx, segmentID, parent)
	case model.OpReplaceParents:
		parents, err := allocateParents(ctx, da, op.Parents)
		if err != nil {
			return err
		}
		return da.ReplaceParentRows(ctx, segmentID, parents)
	case model.OpSetDefault:
		return da.UpdateSegmentDefault(ctx, segmentID, op.Default)
	default:
		return perrors.Consistency.New("unrecognized segment op")
	}
}

// resolveExistingParent looks up ref's id without creating a subjects row,
// since removing a link from a subject that was never written has nothing
// to remove.
func resolveExistingParent(ctx context.Context, da dataaccess.DataAccess, ref model.SubjectRef) (model.SubjectRef, bool, error) {
	if !ref.IsUnallocated() {
		return ref, true, nil
	}
	return da.ResolveSubject(ctx, ref.Type(), ref.Identifier())
}

// allocateParent resolves ref to an allocated SubjectRef, lazily creating
// its subjects row if it has never been written before (§3/§9 "Id
// allocation is single-writer").
func allocateParent(ctx context.Context, da dataaccess.DataAccess, ref model.SubjectRef) (model.SubjectRef, error) {
	return da.GetIDAllocating(ctx, ref)
}

func allocateParents(ctx context.Context, da dataaccess.DataAccess, refs []model.SubjectRef) ([]model.SubjectRef, error) {
	out := make([]model.SubjectRef, 0, len(refs))
	for _, ref := range refs {
		resolved, err := allocateParent(ctx, da, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}
