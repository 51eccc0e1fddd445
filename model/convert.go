package model

// ForeignSnapshot is the minimal surface a non-SQL-backed snapshot
// implementation must expose so its content can be imported into a
// SubjectData (§4.6 "Foreign snapshot import" / §8 scenario E).
type ForeignSnapshot interface {
	AllPermissions() []ContextPermissions
	AllOptions() []ContextOptions
	AllParents() []ContextParents
	AllDefaultValues() []ContextDefault
}

// AllPermissions, AllOptions, AllParents, and AllDefaultValues let
// SubjectData itself satisfy ForeignSnapshot, so importing between two
// SQL-backed snapshots (or in tests) needs no adapter type.
func (d SubjectData) AllPermissions() []ContextPermissions { return d.GetAllPermissions() }
func (d SubjectData) AllOptions() []ContextOptions         { return d.GetAllOptions() }
func (d SubjectData) AllParents() []ContextParents         { return d.GetAllParents() }
func (d SubjectData) AllDefaultValues() []ContextDefault   { return d.GetAllDefaultValues() }

// CopyInto returns dst with src's entire semantic content (permissions,
// options, parents, default values, across every context src defines)
// queued as pending updates, ready to flush. It is the "generic
// conversion utility" Store.SetData uses to migrate a foreign snapshot
// into this engine's own representation: dst should be a freshly loaded,
// otherwise-empty SubjectData for the destination subject.
func CopyInto(dst SubjectData, src ForeignSnapshot) SubjectData {
	next := dst
	for _, cp := range src.AllPermissions() {
		if len(cp.Permissions) > 0 {
			next = next.SetPermissions(cp.Context, cp.Permissions)
		}
	}
	for _, co := range src.AllOptions() {
		if len(co.Options) > 0 {
			next = next.SetOptions(co.Context, co.Options)
		}
	}
	for _, cp := range src.AllParents() {
		if len(cp.Parents) > 0 {
			refs := make([]interface{}, len(cp.Parents))
			for i, r := range cp.Parents {
				refs[i] = r
			}
			next = next.SetParents(cp.Context, refs...)
		}
	}
	for _, cd := range src.AllDefaultValues() {
		next = next.SetDefaultValue(cd.Context, cd.Default)
	}
	return next
}
