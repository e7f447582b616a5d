// Package strings provides string manipulation utilities.
package strings

// Duplicates returns every value that occurs more than once, in order of
// its second occurrence. A nil result means all values are distinct.
func Duplicates(values []string) []string {
	if len(values) < 2 {
		return nil
	}

	seen := make(map[string]int, len(values))
	var dups []string
	for _, v := range values {
		seen[v]++
		if seen[v] == 2 {
			dups = append(dups, v)
		}
	}
	return dups
}
