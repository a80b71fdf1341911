package expr

import "strings"

type absentValue struct{}

func (absentValue) String() string { return "__not_matches__" }

// Absent is the sentinel a JSONPath term yields when the path resolves to no
// value. It is distinct from nil so that exist can tell "no match" from an
// explicit null in the document.
var Absent any = absentValue{}

// IsAbsent reports whether v is the absent sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(absentValue)
	return ok
}

// normalizeStatement collapses whitespace runs outside single-quoted string
// literals to a single space and trims the ends. Statements that normalize
// to the same text share a content hash.
func normalizeStatement(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	pending := false

	for _, r := range s {
		if !inString && (r == ' ' || r == '\t' || r == '\n' || r == '\r') {
			pending = true
			continue
		}
		if pending {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			pending = false
		}
		if r == '\'' {
			inString = !inString
		}
		b.WriteRune(r)
	}

	return b.String()
}

func normalizeStatements(statements []string) []string {
	out := make([]string, 0, len(statements))
	for _, s := range statements {
		if n := normalizeStatement(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
