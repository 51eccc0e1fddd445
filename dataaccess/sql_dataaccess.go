package dataaccess

import (
	"context"
	"database/sql"
	"sync/atomic"

	"github.com/opentracing/opentracing-go"

	"github.com/seanvanpelt2/permissionsex-store/model"
	"github.com/seanvanpelt2/permissionsex-store/perrors"
)

// sqlDataAccess is the concrete DataAccess implementation shared by both
// dialects; only the query text and the embedded schema script differ
// (queries.go, dialect.go). It wraps exactly one *sql.Conn checked out of
// the Store's connection pool and is not safe for concurrent use (§4.5).
type sqlDataAccess struct {
	conn    *sql.Conn
	dialect Dialect
	queries dialectQueries
	prefix  *PrefixRewriter

	holdOpen int32

	tx      *sql.Tx
	txDepth int
}

// newSQLDataAccess wraps conn with holdOpen starting at 1, matching a
// freshly checked-out connection with one owner.
func newSQLDataAccess(conn *sql.Conn, dialect Dialect, prefix *PrefixRewriter) *sqlDataAccess {
	return &sqlDataAccess{
		conn:     conn,
		dialect:  dialect,
		queries:  dialect.queries(),
		prefix:   prefix,
		holdOpen: 1,
	}
}

// Open checks out a physical connection from db, probes its dialect, and
// returns a DataAccess wrapping it with holdOpen at 1 (§4.5, §4.6 "Obtain
// a pooled data source"). Callers needing schema deployment should follow
// Open with a call to EnsureSchema.
func Open(ctx context.Context, db *sql.DB, prefix *PrefixRewriter) (DataAccess, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, perrors.LoadFailure.Wrap(wrapQueryFailure("checkout connection", err))
	}
	dialect, err := ProbeDialect(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return newSQLDataAccess(conn, dialect, prefix), nil
}

// Retain increments the hold-open counter; used by Store when pinning
// this instance across a bulk operation scope (§4.6 "Bulk scope").
func (d *sqlDataAccess) Retain() {
	atomic.AddInt32(&d.holdOpen, 1)
}

// Close decrements the hold-open counter and closes the physical
// connection only once it reaches zero (§4.5 "Connection close").
func (d *sqlDataAccess) Close() error {
	if atomic.AddInt32(&d.holdOpen, -1) > 0 {
		return nil
	}
	return d.conn.Close()
}

func (d *sqlDataAccess) span(ctx context.Context, op string) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(ctx, "dataaccess."+op)
}

// querier is satisfied by both *sql.Conn and *sql.Tx; execer picks
// whichever is live so every helper below runs inside the current
// transaction automatically, with no caller-visible branching.
type querier interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func (d *sqlDataAccess) execer(ctx context.Context) querier {
	if d.tx != nil {
		return d.tx
	}
	return d.conn
}

func (d *sqlDataAccess) exec(ctx context.Context, op, query string, args ...interface{}) (sql.Result, error) {
	span, ctx := d.span(ctx, op)
	defer span.Finish()
	res, err := d.execer(ctx).ExecContext(ctx, d.prefix.Rewrite(query), args...)
	if err != nil {
		return nil, wrapQueryFailure(op, err)
	}
	return res, nil
}

func (d *sqlDataAccess) query(ctx context.Context, op, query string, args ...interface{}) (*sql.Rows, error) {
	span, ctx := d.span(ctx, op)
	defer span.Finish()
	rows, err := d.execer(ctx).QueryContext(ctx, d.prefix.Rewrite(query), args...)
	if err != nil {
		return nil, wrapQueryFailure(op, err)
	}
	return rows, nil
}

func (d *sqlDataAccess) queryRow(ctx context.Context, op, query string, args ...interface{}) *sql.Row {
	span, ctx := d.span(ctx, op)
	defer span.Finish()
	return d.execer(ctx).QueryRowContext(ctx, d.prefix.Rewrite(query), args...)
}

// EnsureSchema implements DataAccess.
func (d *sqlDataAccess) EnsureSchema(ctx context.Context) error {
	var discard int
	err := d.queryRow(ctx, "EnsureSchema.probe", qSchemaProbe).Scan(&discard)
	if err == nil || err == sql.ErrNoRows {
		return nil
	}

	statements, lerr := loadSchemaStatements(d.dialect, d.prefix)
	if lerr != nil {
		return lerr
	}
	for _, stmt := range statements {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return perrors.LoadFailure.Wrap(wrapQueryFailure("deploy schema", err))
		}
	}
	return nil
}

// ExecuteInTransaction implements DataAccess. Nesting is tracked by
// txDepth: only the outermost call opens and commits/rolls back (§4.5
// "Transactions", §8 property 7).
func (d *sqlDataAccess) ExecuteInTransaction(ctx context.Context, body func(ctx context.Context) error) (err error) {
	d.txDepth++
	if d.txDepth == 1 {
		tx, e := d.conn.BeginTx(ctx, nil)
		if e != nil {
			d.txDepth--
			return wrapQueryFailure("begin transaction", e)
		}
		d.tx = tx
	}

	defer func() {
		d.txDepth--
		if d.txDepth > 0 {
			return
		}
		tx := d.tx
		d.tx = nil
		if err != nil {
			// The outer frame restoring transaction state rolls back
			// whatever the failing body left uncommitted (§4.5).
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = wrapQueryFailure("commit transaction", cerr)
		}
	}()

	err = body(ctx)
	return err
}

// GetGlobalParameter implements DataAccess.
func (d *sqlDataAccess) GetGlobalParameter(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.queryRow(ctx, "GetGlobalParameter", qGlobalGet, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapQueryFailure("GetGlobalParameter", err)
	}
	return value, true, nil
}

// SetGlobalParameter implements DataAccess. A nil/empty value deletes the
// row rather than storing a NULL (§9 Open Question, resolved canonical).
func (d *sqlDataAccess) SetGlobalParameter(ctx context.Context, key, value string) error {
	if value == "" {
		return d.DeleteGlobalParameter(ctx, key)
	}
	_, err := d.exec(ctx, "SetGlobalParameter", d.queries.upsertGlobal, key, value)
	return err
}

// DeleteGlobalParameter implements DataAccess.
func (d *sqlDataAccess) DeleteGlobalParameter(ctx context.Context, key string) error {
	_, err := d.exec(ctx, "DeleteGlobalParameter", qGlobalDelete, key)
	return err
}

// ResolveSubjectByID implements DataAccess.
func (d *sqlDataAccess) ResolveSubjectByID(ctx context.Context, id int) (model.SubjectRef, bool, error) {
	var gotID int
	var subjType, identifier string
	err := d.queryRow(ctx, "ResolveSubjectByID", qSubjectByID, id).Scan(&gotID, &subjType, &identifier)
	if err == sql.ErrNoRows {
		return model.SubjectRef{}, false, nil
	}
	if err != nil {
		return model.SubjectRef{}, false, wrapQueryFailure("ResolveSubjectByID", err)
	}
	return model.Resolved(gotID, subjType, identifier), true, nil
}

// ResolveSubject implements DataAccess.
func (d *sqlDataAccess) ResolveSubject(ctx context.Context, subjType, identifier string) (model.SubjectRef, bool, error) {
	var gotID int
	var gotType, gotIdentifier string
	err := d.queryRow(ctx, "ResolveSubject", qSubjectByTypeIdent, subjType, identifier).Scan(&gotID, &gotType, &gotIdentifier)
	if err == sql.ErrNoRows {
		return model.SubjectRef{}, false, nil
	}
	if err != nil {
		return model.SubjectRef{}, false, wrapQueryFailure("ResolveSubject", err)
	}
	return model.Resolved(gotID, subjType, identifier), true, nil
}

// InsertSubject implements DataAccess.
func (d *sqlDataAccess) InsertSubject(ctx context.Context, subjType, identifier string) (model.SubjectRef, error) {
	res, err := d.exec(ctx, "InsertSubject", qSubjectInsert, subjType, identifier)
	if err != nil {
		return model.SubjectRef{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.SubjectRef{}, perrors.Consistency.New(err)
	}
	return model.Resolved(int(id), subjType, identifier), nil
}

// DeleteSubjectByID implements DataAccess.
func (d *sqlDataAccess) DeleteSubjectByID(ctx context.Context, id int) error {
	_, err := d.exec(ctx, "DeleteSubjectByID", qSubjectDeleteByID, id)
	return err
}

// DeleteSubject implements DataAccess.
func (d *sqlDataAccess) DeleteSubject(ctx context.Context, subjType, identifier string) error {
	_, err := d.exec(ctx, "DeleteSubject", qSubjectDelete, subjType, identifier)
	return err
}

// ListIdentifiers implements DataAccess. Failures degrade to an empty
// list rather than surfacing (§7 "read paths ... degrade to empty
// collections").
func (d *sqlDataAccess) ListIdentifiers(ctx context.Context, subjType string) ([]string, error) {
	rows, err := d.query(ctx, "ListIdentifiers", qIdentifiersByType, subjType)
	if err != nil {
		return nil, nil
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var identifier string
		if err := rows.Scan(&identifier); err != nil {
			return nil, nil
		}
		out = append(out, identifier)
	}
	return out, nil
}

// ListTypes implements DataAccess; degrades to empty on failure (§7).
func (d *sqlDataAccess) ListTypes(ctx context.Context) ([]string, error) {
	rows, err := d.query(ctx, "ListTypes", qTypesDistinct)
	if err != nil {
		return nil, nil
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, nil
		}
		out = append(out, t)
	}
	return out, nil
}

// ListAllSubjects implements DataAccess.
func (d *sqlDataAccess) ListAllSubjects(ctx context.Context) ([]model.SubjectRef, error) {
	rows, err := d.query(ctx, "ListAllSubjects", qSubjectsAll)
	if err != nil {
		return nil, nil
	}
	defer rows.Close()

	var out []model.SubjectRef
	for rows.Next() {
		var id int
		var subjType, identifier string
		if err := rows.Scan(&id, &subjType, &identifier); err != nil {
			return nil, nil
		}
		out = append(out, model.Resolved(id, subjType, identifier))
	}
	return out, nil
}

// GetOrCreateSubjectRef implements DataAccess (§4.5 "Id allocation").
func (d *sqlDataAccess) GetOrCreateSubjectRef(ctx context.Context, subjType, identifier string) (model.SubjectRef, error) {
	var ref model.SubjectRef
	err := d.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		existing, ok, err := d.ResolveSubject(ctx, subjType, identifier)
		if err != nil {
			return err
		}
		if ok {
			ref = existing
			return nil
		}
		created, err := d.InsertSubject(ctx, subjType, identifier)
		if err != nil {
			return err
		}
		ref = created
		return nil
	})
	return ref, err
}

// GetIDAllocating implements DataAccess: allocates lazily on first use.
func (d *sqlDataAccess) GetIDAllocating(ctx context.Context, ref model.SubjectRef) (model.SubjectRef, error) {
	if !ref.IsUnallocated() {
		return ref, nil
	}
	return d.GetOrCreateSubjectRef(ctx, ref.Type(), ref.Identifier())
}

// ListSegments implements DataAccess: list by subject, fully hydrated
// with permissions, options, context scope, and parents.
func (d *sqlDataAccess) ListSegments(ctx context.Context, subjectID int) ([]model.Segment, error) {
	rows, err := d.query(ctx, "ListSegments", qSegmentsBySubject, subjectID)
	if err != nil {
		return nil, err
	}
	type shell struct {
		id  int
		def *int
	}
	var shells []shell
	for rows.Next() {
		var s shell
		var def sql.NullInt64
		if err := rows.Scan(&s.id, &def); err != nil {
			rows.Close()
			return nil, wrapQueryFailure("ListSegments", err)
		}
		if def.Valid {
			v := int(def.Int64)
			s.def = &v
		}
		shells = append(shells, s)
	}
	rows.Close()

	out := make([]model.Segment, 0, len(shells))
	for _, s := range shells {
		ctxEntries, err := d.contextsForSegment(ctx, s.id)
		if err != nil {
			return nil, err
		}
		perms, err := d.permissionsForSegment(ctx, s.id)
		if err != nil {
			return nil, err
		}
		opts, err := d.optionsForSegment(ctx, s.id)
		if err != nil {
			return nil, err
		}
		parents, err := d.parentsForSegment(ctx, s.id)
		if err != nil {
			return nil, err
		}
		out = append(out, model.HydrateSegment(s.id, model.NewContextSet(ctxEntries...), perms, opts, parents, s.def))
	}
	return out, nil
}

func (d *sqlDataAccess) contextsForSegment(ctx context.Context, segmentID int) ([]model.Context, error) {
	rows, err := d.query(ctx, "contextsForSegment", qContextsBySegment, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Context
	for rows.Next() {
		var c model.Context
		if err := rows.Scan(&c.Key, &c.Value); err != nil {
			return nil, wrapQueryFailure("contextsForSegment", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (d *sqlDataAccess) permissionsForSegment(ctx context.Context, segmentID int) (map[string]int, error) {
	rows, err := d.query(ctx, "permissionsForSegment", qPermissionsBySegment, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var key string
		var value int
		if err := rows.Scan(&key, &value); err != nil {
			return nil, wrapQueryFailure("permissionsForSegment", err)
		}
		if value != 0 {
			out[key] = value
		}
	}
	return out, nil
}

func (d *sqlDataAccess) optionsForSegment(ctx context.Context, segmentID int) (map[string]string, error) {
	rows, err := d.query(ctx, "optionsForSegment", qOptionsBySegment, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, wrapQueryFailure("optionsForSegment", err)
		}
		out[key] = value
	}
	return out, nil
}

func (d *sqlDataAccess) parentsForSegment(ctx context.Context, segmentID int) ([]model.SubjectRef, error) {
	rows, err := d.query(ctx, "parentsForSegment", qInheritanceBySegment, segmentID)
	if err != nil {
		return nil, err
	}
	var parentIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, wrapQueryFailure("parentsForSegment", err)
		}
		parentIDs = append(parentIDs, id)
	}
	rows.Close()

	out := make([]model.SubjectRef, 0, len(parentIDs))
	for _, id := range parentIDs {
		ref, ok, err := d.ResolveSubjectByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ref)
		}
	}
	return out, nil
}

// AllocateSegment implements DataAccess: assigns a new segment row
// (capturing the default value), writes the id back, and materializes
// the context rows defining the segment's scope (§4.5).
func (d *sqlDataAccess) AllocateSegment(ctx context.Context, subjectID int, seg model.Segment) (model.Segment, error) {
	var result model.Segment
	err := d.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		res, err := d.exec(ctx, "AllocateSegment", qSegmentInsert, subjectID, nullableInt(seg.Default()))
		if err != nil {
			return err
		}
		id64, err := res.LastInsertId()
		if err != nil {
			return perrors.Consistency.New(err)
		}
		id := int(id64)
		for _, c := range seg.Contexts().Entries() {
			if _, err := d.exec(ctx, "AllocateSegment.context", qContextInsert, id, c.Key, c.Value); err != nil {
				return err
			}
		}
		result = seg.WithAllocatedID(id)
		return nil
	})
	return result, err
}

// DeleteSegmentByID implements DataAccess.
func (d *sqlDataAccess) DeleteSegmentByID(ctx context.Context, segmentID int) error {
	_, err := d.exec(ctx, "DeleteSegmentByID", qSegmentDeleteByID, segmentID)
	return err
}

// UpdateSegmentDefault implements DataAccess. An absent default writes
// SQL NULL, never 0 — the newer-variant behavior, canonical per §9.
func (d *sqlDataAccess) UpdateSegmentDefault(ctx context.Context, segmentID int, def *int) error {
	_, err := d.exec(ctx, "UpdateSegmentDefault", qSegmentUpdateDefault, nullableInt(def), segmentID)
	return err
}

// SetPermissionRow implements DataAccess.
func (d *sqlDataAccess) SetPermissionRow(ctx context.Context, segmentID int, key string, value int) error {
	_, err := d.exec(ctx, "SetPermissionRow", d.queries.upsertPermission, segmentID, key, value)
	return err
}

// DeletePermissionRow implements DataAccess.
func (d *sqlDataAccess) DeletePermissionRow(ctx context.Context, segmentID int, key string) error {
	_, err := d.exec(ctx, "DeletePermissionRow", qPermissionDelete, segmentID, key)
	return err
}

// ReplacePermissionRows implements DataAccess: delete-all then
// insert-all (§4.2 "Replacing full collections").
func (d *sqlDataAccess) ReplacePermissionRows(ctx context.Context, segmentID int, perms map[string]int) error {
	return d.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		if _, err := d.exec(ctx, "ReplacePermissionRows.delete", qPermissionDeleteAll, segmentID); err != nil {
			return err
		}
		for key, value := range perms {
			if value == 0 {
				continue
			}
			if err := d.SetPermissionRow(ctx, segmentID, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetOptionRow implements DataAccess.
func (d *sqlDataAccess) SetOptionRow(ctx context.Context, segmentID int, key, value string) error {
	_, err := d.exec(ctx, "SetOptionRow", d.queries.upsertOption, segmentID, key, value)
	return err
}

// DeleteOptionRow implements DataAccess.
func (d *sqlDataAccess) DeleteOptionRow(ctx context.Context, segmentID int, key string) error {
	_, err := d.exec(ctx, "DeleteOptionRow", qOptionDelete, segmentID, key)
	return err
}

// ReplaceOptionRows implements DataAccess.
func (d *sqlDataAccess) ReplaceOptionRows(ctx context.Context, segmentID int, opts map[string]string) error {
	return d.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		if _, err := d.exec(ctx, "ReplaceOptionRows.delete", qOptionDeleteAll, segmentID); err != nil {
			return err
		}
		for key, value := range opts {
			if err := d.SetOptionRow(ctx, segmentID, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddParentRow implements DataAccess.
func (d *sqlDataAccess) AddParentRow(ctx context.Context, segmentID int, parent model.SubjectRef) error {
	parentID, err := parent.ID()
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, "AddParentRow", qInheritanceInsert, segmentID, parentID)
	return err
}

// RemoveParentRow implements DataAccess.
func (d *sqlDataAccess) RemoveParentRow(ctx context.Context, segmentID int, parent model.SubjectRef) error {
	parentID, err := parent.ID()
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, "RemoveParentRow", qInheritanceDeleteOne, segmentID, parentID)
	return err
}

// ReplaceParentRows implements DataAccess: delete-all then
// insert-in-order, since order is conveyed only by insert id (§9).
func (d *sqlDataAccess) ReplaceParentRows(ctx context.Context, segmentID int, parents []model.SubjectRef) error {
	return d.ExecuteInTransaction(ctx, func(ctx context.Context) error {
		if _, err := d.exec(ctx, "ReplaceParentRows.delete", qInheritanceDeleteAll, segmentID); err != nil {
			return err
		}
		for _, parent := range parents {
			if err := d.AddParentRow(ctx, segmentID, parent); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListContextInheritance implements DataAccess, ordered by insert id
// within each child's parent list (§4.5, §6).
func (d *sqlDataAccess) ListContextInheritance(ctx context.Context) (map[model.Context][]model.Context, error) {
	rows, err := d.query(ctx, "ListContextInheritance", qContextInheritanceAll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.Context][]model.Context{}
	for rows.Next() {
		var child, parent model.Context
		if err := rows.Scan(&child.Key, &child.Value, &parent.Key, &parent.Value); err != nil {
			return nil, wrapQueryFailure("ListContextInheritance", err)
		}
		out[child] = append(out[child], parent)
	}
	return out, nil
}

// DeleteContextInheritanceChild implements DataAccess.
func (d *sqlDataAccess) DeleteContextInheritanceChild(ctx context.Context, child model.Context) error {
	_, err := d.exec(ctx, "DeleteContextInheritanceChild", qContextInheritanceDeleteChild, child.Key, child.Value)
	return err
}

// InsertContextInheritanceRow implements DataAccess.
func (d *sqlDataAccess) InsertContextInheritanceRow(ctx context.Context, child, parent model.Context) error {
	_, err := d.exec(ctx, "InsertContextInheritanceRow", qContextInheritanceInsert, child.Key, child.Value, parent.Key, parent.Value)
	return err
}

// GetRankLadder implements DataAccess, joined with subjects and ordered
// by insert id (§4.5, §9 "Upsert ordering for rank_ladders").
func (d *sqlDataAccess) GetRankLadder(ctx context.Context, name string) (model.RankLadder, bool, error) {
	rows, err := d.query(ctx, "GetRankLadder", qRankLadderSelect, name)
	if err != nil {
		return model.RankLadder{}, false, err
	}
	defer rows.Close()

	var members []model.SubjectRef
	for rows.Next() {
		var id int
		var subjType, identifier string
		if err := rows.Scan(&id, &subjType, &identifier); err != nil {
			return model.RankLadder{}, false, wrapQueryFailure("GetRankLadder", err)
		}
		members = append(members, model.Resolved(id, subjType, identifier))
	}
	if len(members) == 0 {
		return model.RankLadder{}, false, nil
	}
	return model.NewRankLadder(name, members), true, nil
}

// RankLadderExists implements DataAccess.
func (d *sqlDataAccess) RankLadderExists(ctx context.Context, name string) (bool, error) {
	var discard int
	err := d.queryRow(ctx, "RankLadderExists", qRankLadderExists, name).Scan(&discard)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapQueryFailure("RankLadderExists", err)
	}
	return true, nil
}

// DeleteRankLadder implements DataAccess.
func (d *sqlDataAccess) DeleteRankLadder(ctx context.Context, name string) error {
	_, err := d.exec(ctx, "DeleteRankLadder", qRankLadderDelete, name)
	return err
}

// InsertRankLadderMember implements DataAccess.
func (d *sqlDataAccess) InsertRankLadderMember(ctx context.Context, name string, member model.SubjectRef) error {
	id, err := member.ID()
	if err != nil {
		return err
	}
	_, err = d.exec(ctx, "InsertRankLadderMember", qRankLadderInsert, name, id)
	return err
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

var _ DataAccess = (*sqlDataAccess)(nil)
