package store

// Config is deserialized by the outer runtime (spec.md §6) and carries no
// marshaling logic of its own; this module only reads its fields.
type Config struct {
	// URL is a JDBC-style connection URL. driverForURL picks the
	// database/sql driver from its scheme and derives the DSN handed to
	// database/sql.Open. The dialect is not read from URL: it is inferred
	// from the live connection via ProbeDialect (§6).
	URL string

	// Prefix is the table-name prefix, normalized by
	// dataaccess.NormalizePrefix before use.
	Prefix string

	// Aliases is kept for compatibility with the config shape described
	// in spec.md §6; it has no active semantics in this package.
	Aliases map[string]string
}
