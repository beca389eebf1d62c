package authz

import (
	"fmt"
	"strings"
)

// Pattern is a compiled action or resource pattern. Three shapes exist:
// "*" matches everything, "prefix:*" matches values sharing the prefix up
// to and including the colon, anything else matches by exact equality.
type Pattern struct {
	raw      string
	prefix   string
	wildcard bool
	any      bool
}

// ParsePattern validates and compiles a stored pattern string. Malformed
// patterns are rejected here, at write time, and never reach evaluation.
func ParsePattern(raw string) (Pattern, error) {
	if raw == "" {
		return Pattern{}, fmt.Errorf("%w: empty pattern", ErrInvalidPolicy)
	}
	if raw == "*" {
		return Pattern{raw: raw, any: true}, nil
	}
	if strings.HasSuffix(raw, ":*") {
		prefix := raw[:len(raw)-1]
		if prefix == ":" {
			return Pattern{}, fmt.Errorf("%w: pattern %q has no prefix segment", ErrInvalidPolicy, raw)
		}
		if strings.Contains(prefix, "*") {
			return Pattern{}, fmt.Errorf("%w: pattern %q has a wildcard outside the trailing position", ErrInvalidPolicy, raw)
		}
		return Pattern{raw: raw, prefix: prefix, wildcard: true}, nil
	}
	if strings.Contains(raw, "*") {
		return Pattern{}, fmt.Errorf("%w: pattern %q may only use a full or trailing wildcard", ErrInvalidPolicy, raw)
	}
	return Pattern{raw: raw}, nil
}

// MustPattern compiles a pattern literal and panics on failure. Reserved
// for the built-in role registry, where patterns are compile-time constants.
func MustPattern(raw string) Pattern {
	p, err := ParsePattern(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePatterns compiles a statement's pattern list. An empty list is
// rejected: a statement that can never match is a write-time mistake.
func ParsePatterns(raw []string) ([]Pattern, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: pattern list must not be empty", ErrInvalidPolicy)
	}
	patterns := make([]Pattern, 0, len(raw))
	for _, r := range raw {
		p, err := ParsePattern(r)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Match reports whether the pattern matches the runtime value.
func (p Pattern) Match(value string) bool {
	if value == "" {
		return false
	}
	if p.any {
		return true
	}
	if p.wildcard {
		return strings.HasPrefix(value, p.prefix)
	}
	return p.raw == value
}

// String returns the original pattern text.
func (p Pattern) String() string {
	return p.raw
}

// MatchAny reports whether any pattern in the list matches the value.
// An empty list never matches.
func MatchAny(patterns []Pattern, value string) bool {
	for _, p := range patterns {
		if p.Match(value) {
			return true
		}
	}
	return false
}
