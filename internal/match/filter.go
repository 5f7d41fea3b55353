package match

// NameFilter keeps names matching any include pattern and drops names matching any exclude pattern.
// The zero value allows everything.
type NameFilter struct {
	include []Pattern
	exclude []Pattern
}

// NewNameFilter compiles include/exclude wildcard lists.
// Params: include keep masks (empty keeps all); exclude drop masks (win over include).
// Returns: compiled filter.
func NewNameFilter(include []string, exclude []string) NameFilter {
	return NameFilter{
		include: CompileAll(include),
		exclude: CompileAll(exclude),
	}
}

// Allow reports whether name passes the filter.
func (f NameFilter) Allow(name string) bool {
	if len(f.include) > 0 && !anyMatch(f.include, name) {
		return false
	}
	return !anyMatch(f.exclude, name)
}

// Empty reports whether the filter has no patterns at all.
func (f NameFilter) Empty() bool {
	return len(f.include) == 0 && len(f.exclude) == 0
}

func anyMatch(patterns []Pattern, name string) bool {
	for _, pattern := range patterns {
		if pattern.Match(name) {
			return true
		}
	}
	return false
}
