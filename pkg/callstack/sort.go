package callstack

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/evanschultz/memprof-client/pkg/models"
)

// SortKey selects the metric siblings are ordered by.
type SortKey int

const (
	SortTotalBytes SortKey = iota
	SortSelfBytes
	SortTotalCount
	SortSelfCount
	SortName
)

var sortKeyNames = map[SortKey]string{
	SortTotalBytes: "total-bytes",
	SortSelfBytes:  "self-bytes",
	SortTotalCount: "total-count",
	SortSelfCount:  "self-count",
	SortName:       "name",
}

func (k SortKey) String() string {
	if s, ok := sortKeyNames[k]; ok {
		return s
	}
	return fmt.Sprintf("SortKey(%d)", int(k))
}

// ParseSortKey accepts kebab names ("total-bytes") and the report column
// headers ("TKBytes", "SkBytes", "TCount", "SCount", "Name").
func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "total-bytes", "tkbytes":
		return SortTotalBytes, nil
	case "self-bytes", "skbytes":
		return SortSelfBytes, nil
	case "total-count", "tcount":
		return SortTotalCount, nil
	case "self-count", "scount":
		return SortSelfCount, nil
	case "name":
		return SortName, nil
	}
	return SortTotalBytes, fmt.Errorf("unknown sort key %q", s)
}

// SortOrder is the display direction.
type SortOrder int

const (
	Descending SortOrder = iota
	Ascending
)

func (o SortOrder) String() string {
	if o == Ascending {
		return "ascending"
	}
	return "descending"
}

// ParseSortOrder accepts "asc"/"ascending" and "desc"/"descending".
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "desc", "descending":
		return Descending, nil
	case "asc", "ascending":
		return Ascending, nil
	}
	return Descending, fmt.Errorf("unknown sort order %q", s)
}

// Comparator orders sibling records for display. It never touches the
// insertion order the reconciler matches against.
type Comparator struct {
	Key   SortKey
	Order SortOrder
}

// Compare returns a negative value when a should be listed before b.
// The metric comparison is computed for descending order and negated for
// ascending. Ties return 0.
func (c Comparator) Compare(a, b models.Record) int {
	var res int
	switch c.Key {
	case SortTotalBytes:
		res = cmp.Compare(b.TotalBytes, a.TotalBytes)
	case SortSelfBytes:
		res = cmp.Compare(b.SelfBytes, a.SelfBytes)
	case SortTotalCount:
		res = cmp.Compare(b.TotalCount, a.TotalCount)
	case SortSelfCount:
		res = cmp.Compare(b.SelfCount, a.SelfCount)
	default:
		res = strings.Compare(b.Name, a.Name)
	}
	if c.Order == Ascending {
		return -res
	}
	return res
}

// Toggle flips the order, the way clicking a column header twice does.
func (c Comparator) Toggle() Comparator {
	if c.Order == Ascending {
		c.Order = Descending
	} else {
		c.Order = Ascending
	}
	return c
}

// Select returns a comparator for key. Selecting the current key again
// toggles the order.
func (c Comparator) Select(key SortKey) Comparator {
	if c.Key == key {
		return c.Toggle()
	}
	return Comparator{Key: key, Order: Descending}
}

// Sorted returns a stably sorted copy of nodes.
func (c Comparator) Sorted(nodes []*ViewNode) []*ViewNode {
	out := slices.Clone(nodes)
	slices.SortStableFunc(out, func(a, b *ViewNode) int {
		return c.Compare(a.Record, b.Record)
	})
	return out
}

func (c Comparator) String() string {
	return c.Key.String() + " " + c.Order.String()
}
