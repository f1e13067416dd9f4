// Package catalog builds filtered, sorted, paginated views over the emojis
// table.
package catalog

import "fmt"

type Sort string

const (
	SortDateDesc  Sort = "date_desc"
	SortDateAsc   Sort = "date_asc"
	SortTitleAsc  Sort = "title_asc"
	SortTitleDesc Sort = "title_desc"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Query describes one list request. Search matches case-insensitively as a
// substring of title, description, or the raw stored keyword string; Category
// is an exact match. Unknown Sort values fall back to date_desc.
type Query struct {
	Search   string
	Category string
	Sort     Sort
	Limit    int
	Offset   int
}

func (q Query) Validate() error {
	if q.Limit < 1 || q.Limit > MaxLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	}
	if q.Offset < 0 {
		return fmt.Errorf("offset must not be negative")
	}
	return nil
}

// orderClause returns the ORDER BY expression for a sort, with id as a stable
// tie-break so equal sort keys keep insertion order.
func (s Sort) orderClause() string {
	switch s {
	case SortDateAsc:
		return "created_at ASC, id ASC"
	case SortTitleAsc:
		return "title ASC, id ASC"
	case SortTitleDesc:
		return "title DESC, id ASC"
	default:
		return "created_at DESC, id ASC"
	}
}
