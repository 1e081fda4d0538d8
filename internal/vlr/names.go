package vlr

import "strings"

var nameStripper = strings.NewReplacer(".", "", "-", "")

// NormalizeName lowercases s and drops whitespace, periods and hyphens.
func NormalizeName(s string) string {
	s = strings.Join(strings.Fields(strings.ToLower(s)), "")
	return nameStripper.Replace(s)
}

// TeamMatches reports whether two team labels refer to the same team:
// equal after normalization, or one containing the other.
func TeamMatches(a, b string) bool {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || strings.Contains(na, nb) || strings.Contains(nb, na)
}

// collapseSpaces trims s and squeezes whitespace runs into one space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
