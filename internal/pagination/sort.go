package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSortField indicates a sort field outside the entity's allow-list.
	ErrInvalidSortField = errors.New("pagination: invalid sort field")
	// ErrInvalidFilterField indicates a filter field outside the entity's allow-list.
	ErrInvalidFilterField = errors.New("pagination: invalid filter field")
)

// Direction represents ordering direction for sortable fields.
type Direction string

const (
	DirectionAsc  Direction = "asc"
	DirectionDesc Direction = "desc"
)

// ParseDirection normalizes raw input, defaulting empty input to the fallback.
func ParseDirection(raw string, fallback Direction) Direction {
	switch raw {
	case string(DirectionAsc):
		return DirectionAsc
	case string(DirectionDesc):
		return DirectionDesc
	default:
		return fallback
	}
}

// SortField names a sortable attribute of an entity. Values are validated
// against a Schema before they reach any query text.
type SortField string

// Schema describes the queryable surface of one entity: which fields may be
// sorted or filtered on and how they map to storage columns. The mapping is
// the allow-list; field names never reach query text unmapped.
type Schema struct {
	Entity     string
	TieBreak   string
	Sortable   map[SortField]string
	Filterable map[string]string
	DefaultSort SortField
	DefaultDir  Direction
}

// SortColumn resolves a sort field to its storage column, failing closed on
// unknown fields.
func (s Schema) SortColumn(field SortField) (string, error) {
	column, ok := s.Sortable[field]
	if !ok {
		return "", fmt.Errorf("%w: %q on %s", ErrInvalidSortField, field, s.Entity)
	}
	return column, nil
}

// FilterColumn resolves a filter field to its storage column, failing closed
// on unknown fields.
func (s Schema) FilterColumn(field string) (string, error) {
	column, ok := s.Filterable[field]
	if !ok {
		return "", fmt.Errorf("%w: %q on %s", ErrInvalidFilterField, field, s.Entity)
	}
	return column, nil
}
