// Package perrors declares the error kinds surfaced by the persistence
// engine, following the teacher's habit of a small set of package-level
// errors.Kind values that wrap the underlying cause.
package perrors

import (
	errors "gopkg.in/src-d/go-errors.v1"
)

var (
	// LoadFailure covers connection refusal, an unsupported dialect, a
	// missing schema resource, or a failed schema deployment. It is fatal
	// to store initialization.
	LoadFailure = errors.NewKind("failed to load store")

	// UnsupportedDialect is wrapped by LoadFailure when the detected SQL
	// product has no bundled schema script or query provider.
	UnsupportedDialect = errors.NewKind("unsupported dialect: %s")

	// QueryFailure covers any database error encountered while serving a
	// read or applying a write; the surrounding transaction is rolled
	// back.
	QueryFailure = errors.NewKind("query failed")

	// UnallocatedReference is raised when a caller reads the id of a
	// SubjectRef or Segment before it has been assigned one.
	UnallocatedReference = errors.NewKind("reference has not been allocated an id")

	// Consistency is raised when an insert that should generate a key
	// reports no generated key back.
	Consistency = errors.NewKind("consistency failure: %s")
)
