package authz

import (
	"strings"

	"golang.org/x/text/cases"
)

// normalize trims and Unicode-case-folds an action or location code so
// that matching is case-insensitive everywhere. Resource identifiers
// are deliberately left case-sensitive. Casers are stateful, so one is
// built per call rather than shared.
func normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

func normalizeAll(values []string) []string {
	if len(values) == 0 {
		return values
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
