// If you are AI: This file implements NATS-style subject matching for subscriber patterns.

package subject

import "strings"

// Match reports whether subject matches pattern.
// Tokens are separated by '.'; '*' matches exactly one token and '>' as the
// last token matches one or more remaining tokens.
func Match(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	if pattern == "" || subject == "" {
		return false
	}
	if !strings.ContainsAny(pattern, "*>") {
		return false
	}

	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		switch {
		case tok == ">" && i == len(pt)-1:
			return len(st) > i
		case i >= len(st):
			return false
		case tok == "*":
			continue
		case tok != st[i]:
			return false
		}
	}
	return len(pt) == len(st)
}

// Valid reports whether s is usable as a subject or subscription pattern.
func Valid(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	toks := strings.Split(s, ".")
	for i, tok := range toks {
		if tok == "" {
			return false
		}
		if tok == ">" && i != len(toks)-1 {
			return false
		}
	}
	return true
}

// HasWildcard reports whether s contains a '*' or '>' token.
func HasWildcard(s string) bool {
	for _, tok := range strings.Split(s, ".") {
		if tok == "*" || tok == ">" {
			return true
		}
	}
	return false
}

// Covers reports whether every subject matched by specific is also matched by general.
// A pattern covers itself.
func Covers(general, specific string) bool {
	if general == specific {
		return true
	}
	gt := strings.Split(general, ".")
	st := strings.Split(specific, ".")
	for i, g := range gt {
		if g == ">" && i == len(gt)-1 {
			return len(st) > i
		}
		if i >= len(st) {
			return false
		}
		switch s := st[i]; {
		case s == ">":
			return false
		case g == "*":
			continue
		case g != s:
			return false
		}
	}
	return len(gt) == len(st)
}
