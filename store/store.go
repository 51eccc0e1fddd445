// Package store is the outward contract of the persistence engine (spec.md
// §4.6): it opens the data source, picks the dialect, serves snapshot
// reads, schedules writes on a bounded worker, and offers scoped bulk
// operations that pin one DataAccess across several calls.
package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/seanvanpelt2/permissionsex-store/dataaccess"
	"github.com/seanvanpelt2/permissionsex-store/model"
	"github.com/seanvanpelt2/permissionsex-store/perrors"
)

// pinKey is the context.Context key a bulk scope uses to carry its pinned
// DataAccess (§9 "Connection pinning" — a scoped handle stands in for the
// source's thread-local slot).
type pinKey struct{}

// Store is the engine's outward contract. One Store owns one connection
// pool, one dialect, one shared PrefixRewriter, and one fixed pool of write
// workers.
type Store struct {
	db     *sql.DB
	prefix *dataaccess.PrefixRewriter
	log    *logrus.Entry

	writes chan writeJob
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Open obtains a pooled data source for cfg.URL, normalizes the table
// prefix, probes the dialect, deploys the schema once, and starts the
// write worker (§4.6 "Responsibilities").
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driverName, dsn, err := driverForURL(cfg.URL)
	if err != nil {
		return nil, perrors.LoadFailure.Wrap(err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, perrors.LoadFailure.Wrap(err)
	}
	if driverName == "sqlite3" && strings.Contains(dsn, ":memory:") {
		// An in-memory sqlite database is private to the connection that
		// created it; pinning the pool to one connection is what makes it
		// behave like a single shared database across Store calls.
		db.SetMaxOpenConns(1)
	}

	s := &Store{
		db:     db,
		prefix: dataaccess.NewPrefixRewriter(cfg.Prefix),
		log:    logrus.WithField("component", "permissionsex-store"),
		writes: make(chan writeJob, 256),
	}

	da, err := dataaccess.Open(ctx, s.db, s.prefix)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	defer da.Close()

	if err := da.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.log.Info("schema deployment verified")

	const writerCount = 4
	s.wg.Add(writerCount)
	for i := 0; i < writerCount; i++ {
		go s.runWriter()
	}

	return s, nil
}

// Close stops accepting writes, waits until the write workers have run
// every write already queued (picked up or not), and then closes the
// connection pool.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.writes)
		s.wg.Wait()
	})
	return s.db.Close()
}

// dataAccess returns the DataAccess pinned to ctx by a Bulk scope, if any,
// else opens a fresh one (§5 "Thread-local pin").
func (s *Store) dataAccess(ctx context.Context) (dataaccess.DataAccess, error) {
	if pinned, ok := ctx.Value(pinKey{}).(dataaccess.DataAccess); ok {
		pinned.Retain()
		return pinned, nil
	}
	return dataaccess.Open(ctx, s.db, s.prefix)
}

// GetData resolves-or-creates the SubjectRef for (subjType, identifier),
// fetches its Segment list, and assembles a SubjectData snapshot (§4.6
// "Reads").
func (s *Store) GetData(ctx context.Context, subjType, identifier string) (model.SubjectData, error) {
	da, err := s.dataAccess(ctx)
	if err != nil {
		return model.SubjectData{}, err
	}
	defer da.Close()

	ref, err := da.GetOrCreateSubjectRef(ctx, subjType, identifier)
	if err != nil {
		return model.SubjectData{}, err
	}
	return s.loadSnapshot(ctx, da, ref)
}

// GetAll enumerates every subject ref and assembles a snapshot for each
// within the same DataAccess (§4.6 "getAll").
func (s *Store) GetAll(ctx context.Context) ([]model.SubjectData, error) {
	da, err := s.dataAccess(ctx)
	if err != nil {
		return nil, err
	}
	defer da.Close()

	refs, err := da.ListAllSubjects(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.SubjectData, 0, len(refs))
	for _, ref := range refs {
		snap, err := s.loadSnapshot(ctx, da, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *Store) loadSnapshot(ctx context.Context, da dataaccess.DataAccess, ref model.SubjectRef) (model.SubjectData, error) {
	id, err := ref.ID()
	if err != nil {
		return model.SubjectData{}, err
	}
	segments, err := da.ListSegments(ctx, id)
	if err != nil {
		return model.SubjectData{}, err
	}
	return model.NewSubjectData(ref, segments), nil
}

// driverForURL resolves cfg.URL's leading JDBC-style scheme segment
// (spec.md §6: "url: JDBC connection URL") to a registered database/sql
// driver name and the DSN to hand it. database/sql requires the driver
// name up front, unlike JDBC's URL-sniffing DriverManager, so the scheme
// substitutes for the live product-name probe at this one boundary — the
// dialect itself is still confirmed afterward by dataaccess.ProbeDialect.
// Parsing is done with plain string splitting rather than net/url: real
// MySQL and H2 DSNs (`user:pass@tcp(host:3306)/db`, `mem:test`) are not
// valid generic URLs and net/url rejects them.
func driverForURL(raw string) (driverName, dsn string, err error) {
	rest := strings.TrimPrefix(raw, "jdbc:")
	switch {
	case strings.HasPrefix(rest, "mysql:"):
		return "mysql", strings.TrimPrefix(strings.TrimPrefix(rest, "mysql:"), "//"), nil
	case strings.HasPrefix(rest, "h2:"):
		return "sqlite3", sqliteDSN(strings.TrimPrefix(rest, "h2:")), nil
	case strings.HasPrefix(rest, "sqlite:"):
		return "sqlite3", sqliteDSN(strings.TrimPrefix(rest, "sqlite:")), nil
	default:
		scheme, _, _ := strings.Cut(rest, ":")
		return "", "", perrors.UnsupportedDialect.New(scheme)
	}
}

// sqliteDSN translates the H2-flavored path/memory convention into a
// go-sqlite3 DSN: `mem:name` (or an empty path) becomes a plain `:memory:`
// database, the name being dropped; such a database is private to one
// connection, which is why Open pins the pool to a single connection for
// it. Anything else passes through as a file path.
// go-sqlite3 leaves `PRAGMA foreign_keys` off by default, which would leave
// the §6 schema's `ON DELETE CASCADE` foreign keys inert, so every
// connection requests it on via the DSN's query string.
func sqliteDSN(path string) string {
	if path == "" || strings.HasPrefix(path, "mem:") {
		return ":memory:?_foreign_keys=on"
	}
	return strings.TrimPrefix(path, "file:") + "?_foreign_keys=on"
}
