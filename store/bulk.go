package store

import (
	"context"

	"github.com/seanvanpelt2/permissionsex-store/dataaccess"
)

// Bulk pins one DataAccess into ctx for the duration of fn, so every
// Store call fn makes with that ctx that looks up a DataAccess (reads, and
// SetData's subject resolution) reuses the same connection (§4.6 "Bulk
// scope", §9 "Connection pinning" — modeled here as an explicit scoped
// handle rather than a thread-local, since Go has no implicit
// thread-affinity to lean on). Bulk itself opens no transaction, and the
// flushes that SetData, SetContextInheritance and SetRankLadder schedule
// run on the write workers with a connection of their own.
func (s *Store) Bulk(ctx context.Context, fn func(ctx context.Context) error) error {
	da, err := dataaccess.Open(ctx, s.db, s.prefix)
	if err != nil {
		return err
	}
	defer da.Close()

	pinned := context.WithValue(ctx, pinKey{}, da)
	return fn(pinned)
}
