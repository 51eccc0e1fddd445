package dataaccess

// Query templates carry a literal `{}` at every table reference; rewrite
// substitutes it with the configured, normalized prefix before execution
// (§4.5 "Prefix rewriting", §8 property 6).
const (
	qSchemaProbe = `SELECT 1 FROM {}permissions WHERE 1 = 0`

	qGlobalGet    = `SELECT value FROM {}global WHERE ` + "`key`" + ` = ?`
	qGlobalDelete = `DELETE FROM {}global WHERE ` + "`key`" + ` = ?`

	qSubjectByID       = `SELECT id, type, identifier FROM {}subjects WHERE id = ?`
	qSubjectByTypeIdent = `SELECT id, type, identifier FROM {}subjects WHERE type = ? AND identifier = ?`
	qSubjectInsert     = `INSERT INTO {}subjects (type, identifier) VALUES (?, ?)`
	qSubjectDeleteByID = `DELETE FROM {}subjects WHERE id = ?`
	qSubjectDelete     = `DELETE FROM {}subjects WHERE type = ? AND identifier = ?`
	qIdentifiersByType = `SELECT identifier FROM {}subjects WHERE type = ?`
	qTypesDistinct     = `SELECT DISTINCT type FROM {}subjects`
	qSubjectsAll       = `SELECT id, type, identifier FROM {}subjects`

	qSegmentsBySubject   = `SELECT id, perm_default FROM {}segments WHERE subject = ?`
	qSegmentInsert       = `INSERT INTO {}segments (subject, perm_default) VALUES (?, ?)`
	qSegmentDeleteByID   = `DELETE FROM {}segments WHERE id = ?`
	qSegmentUpdateDefault = `UPDATE {}segments SET perm_default = ? WHERE id = ?`

	qPermissionsBySegment = `SELECT ` + "`key`" + `, value FROM {}permissions WHERE segment = ?`
	qPermissionDelete     = `DELETE FROM {}permissions WHERE segment = ? AND ` + "`key`" + ` = ?`
	qPermissionDeleteAll  = `DELETE FROM {}permissions WHERE segment = ?`

	qOptionsBySegment = `SELECT ` + "`key`" + `, value FROM {}options WHERE segment = ?`
	qOptionDelete     = `DELETE FROM {}options WHERE segment = ? AND ` + "`key`" + ` = ?`
	qOptionDeleteAll  = `DELETE FROM {}options WHERE segment = ?`

	qContextsBySegment = `SELECT ` + "`key`" + `, value FROM {}contexts WHERE segment = ?`
	qContextDeleteAll  = `DELETE FROM {}contexts WHERE segment = ?`
	qContextInsert     = `INSERT INTO {}contexts (segment, ` + "`key`" + `, value) VALUES (?, ?, ?)`

	qInheritanceBySegment  = `SELECT parent FROM {}inheritance WHERE segment = ? ORDER BY id ASC`
	qInheritanceDeleteAll  = `DELETE FROM {}inheritance WHERE segment = ?`
	qInheritanceDeleteOne  = `DELETE FROM {}inheritance WHERE segment = ? AND parent = ?`
	qInheritanceInsert     = `INSERT INTO {}inheritance (segment, parent) VALUES (?, ?)`

	qContextInheritanceAll        = `SELECT child_key, child_value, parent_key, parent_value FROM {}context_inheritance ORDER BY id ASC`
	qContextInheritanceDeleteChild = `DELETE FROM {}context_inheritance WHERE child_key = ? AND child_value = ?`
	qContextInheritanceInsert      = `INSERT INTO {}context_inheritance (child_key, child_value, parent_key, parent_value) VALUES (?, ?, ?, ?)`

	qRankLadderSelect = `SELECT s.id, s.type, s.identifier FROM {}rank_ladders r
		JOIN {}subjects s ON s.id = r.subject
		WHERE r.name = ? ORDER BY r.id ASC`
	qRankLadderExists = `SELECT 1 FROM {}rank_ladders WHERE name = ? LIMIT 1`
	qRankLadderDelete = `DELETE FROM {}rank_ladders WHERE name = ?`
	qRankLadderInsert = `INSERT INTO {}rank_ladders (name, subject) VALUES (?, ?)`
)

// dialectQueries holds the SQL that differs between MySQL and H2: the
// upsert contract for global parameters, permissions, and options (§6
// "Upsert contract").
type dialectQueries struct {
	upsertGlobal     string
	upsertPermission string
	upsertOption     string
}

var mysqlDialectQueries = dialectQueries{
	upsertGlobal: "INSERT INTO {}global (`key`, value) VALUES (?, ?) " +
		"ON DUPLICATE KEY UPDATE value = VALUES(value)",
	upsertPermission: "INSERT INTO {}permissions (segment, `key`, value) VALUES (?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE value = VALUES(value)",
	upsertOption: "INSERT INTO {}options (segment, `key`, value) VALUES (?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE value = VALUES(value)",
}

// h2DialectQueries targets the H2-compatible adapter, backed in this
// module by SQLite (see dialect.go). SQLite's upsert extension mirrors
// H2's MERGE INTO closely enough to stand in for it (see DESIGN.md).
var h2DialectQueries = dialectQueries{
	upsertGlobal: "INSERT INTO {}global (`key`, value) VALUES (?, ?) " +
		"ON CONFLICT(`key`) DO UPDATE SET value = excluded.value",
	upsertPermission: "INSERT INTO {}permissions (segment, `key`, value) VALUES (?, ?, ?) " +
		"ON CONFLICT(segment, `key`) DO UPDATE SET value = excluded.value",
	upsertOption: "INSERT INTO {}options (segment, `key`, value) VALUES (?, ?, ?) " +
		"ON CONFLICT(segment, `key`) DO UPDATE SET value = excluded.value",
}
