package callstack

import "strings"

// FindNext returns the index of the first row after from whose name
// contains query, wrapping past the end. Pass -1 to search from the top.
// It returns -1 when no row matches.
func FindNext(rows []Row, from int, query string) int {
	if query == "" || len(rows) == 0 {
		return -1
	}
	q := strings.ToLower(query)
	for i := 1; i <= len(rows); i++ {
		idx := (from + i) % len(rows)
		if idx < 0 {
			idx += len(rows)
		}
		if strings.Contains(strings.ToLower(rows[idx].Record.Name), q) {
			return idx
		}
	}
	return -1
}
