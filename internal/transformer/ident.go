package transformer

import (
	"regexp"
	"strings"
)

// ListDelimiter joins list-valued descriptor fields such as output and
// reference column names. Identifiers are validated so that the delimiter
// can never occur inside one.
const ListDelimiter = ";"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validIdent(name string) bool {
	return identPattern.MatchString(name)
}

// checkIdents validates a list of identifiers for field.
func checkIdents(kind Kind, field string, names []string, required bool) error {
	if required && len(names) == 0 {
		return configErr(kind, field, "at least one name is required")
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if !validIdent(n) {
			return configErr(kind, field, "%q is not a valid identifier", n)
		}
		if seen[strings.ToLower(n)] {
			return configErr(kind, field, "duplicate name %q", n)
		}
		seen[strings.ToLower(n)] = true
	}
	return nil
}

// checkTable validates an output table name.
func checkTable(kind Kind, field, name string) error {
	if name == "" {
		return configErr(kind, field, "table name is empty")
	}
	if !validIdent(name) {
		return configErr(kind, field, "%q is not a valid identifier", name)
	}
	return nil
}

// checkQuery rejects blank SQL text.
func checkQuery(kind Kind, field, query string) error {
	if strings.TrimSpace(query) == "" {
		return configErr(kind, field, "query text is empty")
	}
	return nil
}

// SplitList splits a delimiter-joined descriptor value. Empty input yields
// nil; surrounding whitespace of each element is trimmed.
func SplitList(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, ListDelimiter)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// JoinList is the inverse of SplitList.
func JoinList(names []string) string {
	return strings.Join(names, ListDelimiter)
}

// columnList renders identifiers as a comma separated SQL column list.
func columnList(names []string) string {
	return strings.Join(names, ", ")
}
