package tenant

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const duplicateRatio = 0.8

// SimilarNames returns the names of existing that look like name, ignoring case and spacing.
func SimilarNames(name string, existing []string) []string {
	similar := make([]string, 0)
	target := normalizeName(name)
	if target == "" {
		return similar
	}
	for _, other := range existing {
		o := normalizeName(other)
		if o == "" {
			continue
		}
		m := difflib.NewMatcher(strings.Split(target, ""), strings.Split(o, ""))
		if m.Ratio() >= duplicateRatio {
			similar = append(similar, other)
		}
	}
	return similar
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
