package filtering

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// NegationMarker inverts a pattern's result when it leads the pattern.
	NegationMarker = "!"
	// WildcardMarker turns exact equality into a prefix, suffix or substring test.
	WildcardMarker = "*"
)

var ErrInvalidPattern = errors.New("invalid pattern")

type matchKind int

const (
	matchExact matchKind = iota
	matchPrefix
	matchSuffix
	matchContains
	matchEmpty
)

// Pattern is a parsed filter pattern.
type Pattern struct {
	raw    string
	inner  string
	kind   matchKind
	negate bool
}

// Match reports whether subject satisfies pattern. Comparisons are ordinal.
// An absent value is the empty string.
func Match(subject, pattern string) bool {
	return parse(pattern).Match(subject)
}

// Compile parses pattern and rejects reserved markers anywhere other than
// the leading negation and the outer wildcard positions.
func Compile(pattern string) (Pattern, error) {
	p := parse(pattern)
	if strings.Contains(p.inner, WildcardMarker) || strings.Contains(p.inner, NegationMarker) {
		return Pattern{}, fmt.Errorf("%w: %q: markers %q and %q are only allowed at the edges", ErrInvalidPattern, pattern, NegationMarker, WildcardMarker)
	}
	return p, nil
}

func parse(pattern string) Pattern {
	p := Pattern{raw: pattern}
	rest := pattern
	if strings.HasPrefix(rest, NegationMarker) {
		p.negate = true
		rest = rest[len(NegationMarker):]
	}
	if rest == "" {
		p.kind = matchEmpty
		return p
	}

	var suffix, prefix bool
	if strings.HasPrefix(rest, WildcardMarker) {
		suffix = true
		rest = rest[len(WildcardMarker):]
	}
	// Checked on what is left after the leading strip, so "**" becomes a
	// substring test for "".
	if strings.HasSuffix(rest, WildcardMarker) {
		prefix = true
		rest = rest[:len(rest)-len(WildcardMarker)]
	}

	switch {
	case prefix && suffix:
		p.kind = matchContains
	case prefix:
		p.kind = matchPrefix
	case suffix:
		p.kind = matchSuffix
	default:
		p.kind = matchExact
	}
	p.inner = rest
	return p
}

// Match reports whether subject satisfies the pattern.
func (p Pattern) Match(subject string) bool {
	var ok bool
	switch p.kind {
	case matchEmpty:
		ok = subject == ""
	case matchContains:
		ok = strings.Contains(subject, p.inner)
	case matchPrefix:
		ok = strings.HasPrefix(subject, p.inner)
	case matchSuffix:
		ok = strings.HasSuffix(subject, p.inner)
	default:
		ok = subject == p.inner
	}
	return ok != p.negate
}

func (p Pattern) String() string {
	return p.raw
}
