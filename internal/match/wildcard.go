package match

import "strings"

// Pattern is a compiled '*' wildcard over node metric names.
// Params: literal segments between wildcards and anchor flags.
// Returns: reusable matcher for many Match calls.
type Pattern struct {
	raw      string
	segments []string
	prefix   bool
	suffix   bool
	any      bool
}

// Compile compiles pattern into a reusable matcher.
// Params: pattern may contain '*' wildcards; surrounding whitespace is ignored.
// Returns: compiled pattern and false when pattern is empty.
func Compile(pattern string) (Pattern, bool) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return Pattern{}, false
	}
	if strings.Trim(p, "*") == "" {
		return Pattern{raw: p, any: true}, true
	}

	return Pattern{
		raw:      p,
		segments: strings.Split(p, "*"),
		prefix:   !strings.HasPrefix(p, "*"),
		suffix:   !strings.HasSuffix(p, "*"),
	}, true
}

// String returns the source pattern.
func (p Pattern) String() string {
	return p.raw
}

// Match reports whether value matches the pattern.
func (p Pattern) Match(value string) bool {
	if p.any {
		return true
	}
	if len(p.segments) == 0 {
		return false
	}

	rest := value
	first, last := 0, len(p.segments)-1

	if p.prefix {
		if !strings.HasPrefix(rest, p.segments[0]) {
			return false
		}
		rest = rest[len(p.segments[0]):]
		first = 1
	}
	if p.suffix {
		if last < first {
			// pattern without wildcards: prefix consumed everything.
			return rest == ""
		}
		if !strings.HasSuffix(rest, p.segments[last]) {
			return false
		}
		rest = rest[:len(rest)-len(p.segments[last])]
		last--
	}

	for idx := first; idx <= last; idx++ {
		segment := p.segments[idx]
		if segment == "" {
			continue
		}
		offset := strings.Index(rest, segment)
		if offset < 0 {
			return false
		}
		rest = rest[offset+len(segment):]
	}
	return true
}

// CompileAll compiles non-empty patterns and skips blanks.
// Params: patterns raw wildcard list.
// Returns: compiled list or nil when nothing remains.
func CompileAll(patterns []string) []Pattern {
	if len(patterns) == 0 {
		return nil
	}

	out := make([]Pattern, 0, len(patterns))
	for _, pattern := range patterns {
		compiled, ok := Compile(pattern)
		if !ok {
			continue
		}
		out = append(out, compiled)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Wildcard evaluates a one-off '*' pattern against value.
func Wildcard(pattern, value string) bool {
	compiled, ok := Compile(pattern)
	if !ok {
		return false
	}
	return compiled.Match(value)
}
