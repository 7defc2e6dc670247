package salesman

import "strings"

// Pattern is a compiled path glob: literal segments separated by wildcards.
// A '*' matches any run of characters (dots included). Patterns are anchored
// at the start of the candidate path only, so "address" also matches
// "address.street".
type Pattern struct {
	parts []string
}

// CompilePattern splits a glob into its literal parts.
func CompilePattern(glob string) Pattern {
	return Pattern{parts: strings.Split(glob, "*")}
}

// Match reports whether candidate starts with a string matched by the pattern.
func (p Pattern) Match(candidate string) bool {
	return matchParts(p.parts, candidate)
}

// matchParts: parts[0] must be a prefix of s, each later part must appear
// after the previous one. Backtracking is not needed because the pattern is
// not anchored at the end: the leftmost occurrence of each part is always the
// best choice.
func matchParts(parts []string, s string) bool {
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	rest := s[len(parts[0]):]
	for _, part := range parts[1:] {
		i := strings.Index(rest, part)
		if i < 0 {
			return false
		}
		rest = rest[i+len(part):]
	}
	return true
}

// expandKey resolves key against the known paths: an exact hit returns key
// alone, otherwise every path matched by key as a pattern, in sorted order.
func expandKey(key string, known map[string]bool, sorted []string) []string {
	if known[key] {
		return []string{key}
	}
	p := CompilePattern(key)
	var out []string
	for _, path := range sorted {
		if p.Match(path) {
			out = append(out, path)
		}
	}
	return out
}
