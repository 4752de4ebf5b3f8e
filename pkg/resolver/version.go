package resolver

import (
	"strconv"
	"strings"
)

// EVR is a version parsed into RPM's canonical (epoch, version,
// release) form.
type EVR struct {
	Epoch   int
	Version string
	Release string
}

// ParseEVR parses strings shaped like "[epoch:]version[-release]".
// Missing or unparseable input yields a zero EVR whose Version holds
// the original string, so unparseable versions still compare as equal
// strings per spec.md §4.4.
func ParseEVR(s string) EVR {
	evr := EVR{Version: s}
	if s == "" {
		return evr
	}

	rest := s
	if i := strings.Index(rest, ":"); i >= 0 {
		if epoch, err := strconv.Atoi(rest[:i]); err == nil {
			evr.Epoch = epoch
			rest = rest[i+1:]
		}
	}
	if i := strings.LastIndex(rest, "-"); i >= 0 {
		evr.Version = rest[:i]
		evr.Release = rest[i+1:]
	} else {
		evr.Version = rest
	}
	return evr
}

// CompareEVR implements RPM-style version comparison: epoch first
// (numeric), then version and release compared segment by segment
// (split on non-alphanumeric boundaries, numeric segments by numeric
// value, alphabetic segments lexically, numeric outranks alphabetic at
// ties, tilde sorts below empty).
func CompareEVR(a, b EVR) int {
	if a.Epoch != b.Epoch {
		if a.Epoch < b.Epoch {
			return -1
		}
		return 1
	}
	if c := compareSegmented(a.Version, b.Version); c != 0 {
		return c
	}
	return compareSegmented(a.Release, b.Release)
}

// compareSegmented implements the RPM "rpmvercmp" algorithm.
func compareSegmented(a, b string) int {
	ai, bi := 0, 0
	for ai < len(a) && bi < len(b) {
		// Tilde sorts below everything, including the empty string.
		if a[ai] == '~' || b[bi] == '~' {
			if a[ai] != '~' {
				return 1
			}
			if b[bi] != '~' {
				return -1
			}
			ai++
			bi++
			continue
		}

		// Skip non-alphanumeric separators on both sides.
		for ai < len(a) && !isAlnum(a[ai]) {
			ai++
		}
		for bi < len(b) && !isAlnum(b[bi]) {
			bi++
		}
		if ai >= len(a) || bi >= len(b) {
			break
		}

		aStart := ai
		bStart := bi
		var segA, segB string
		if isDigit(a[ai]) {
			for ai < len(a) && isDigit(a[ai]) {
				ai++
			}
			segA = a[aStart:ai]
		} else {
			for ai < len(a) && isAlpha(a[ai]) {
				ai++
			}
			segA = a[aStart:ai]
		}
		if isDigit(b[bi]) {
			for bi < len(b) && isDigit(b[bi]) {
				bi++
			}
			segB = b[bStart:bi]
		} else {
			for bi < len(b) && isAlpha(b[bi]) {
				bi++
			}
			segB = b[bStart:bi]
		}

		numA := segA != "" && isDigit(segA[0])
		numB := segB != "" && isDigit(segB[0])

		switch {
		case numA && !numB:
			return 1 // numeric outranks alphabetic at ties
		case !numA && numB:
			return -1
		case numA && numB:
			na := strings.TrimLeft(segA, "0")
			nb := strings.TrimLeft(segB, "0")
			if len(na) != len(nb) {
				if len(na) < len(nb) {
					return -1
				}
				return 1
			}
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
		default:
			if segA != segB {
				if segA < segB {
					return -1
				}
				return 1
			}
		}
	}

	switch {
	case ai >= len(a) && bi >= len(b):
		return 0
	case ai < len(a) && a[ai] == '~':
		return -1
	case bi < len(b) && b[bi] == '~':
		return 1
	case ai >= len(a):
		return -1
	default:
		return 1
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }

// SatisfiesConstraint evaluates a conjunction of "op version" clauses
// (e.g. ">= 1.2.0") against an available version. An empty constraint
// is always satisfied.
func SatisfiesConstraint(available, constraint string) bool {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return true
	}
	avail := ParseEVR(available)
	for _, clause := range strings.Split(constraint, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		fields := strings.Fields(clause)
		if len(fields) != 2 {
			continue
		}
		op, want := fields[0], ParseEVR(fields[1])
		cmp := CompareEVR(avail, want)
		ok := false
		switch op {
		case ">=":
			ok = cmp >= 0
		case "<=":
			ok = cmp <= 0
		case "=", "==":
			ok = cmp == 0
		case ">":
			ok = cmp > 0
		case "<":
			ok = cmp < 0
		default:
			ok = true
		}
		if !ok {
			return false
		}
	}
	return true
}
