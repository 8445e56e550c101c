package pagination

import (
	"fmt"
	"strings"
)

type filterOp int

const (
	opEq filterOp = iota
	opRange
	opContains
)

// Filter is a tagged filter expression. Instances are built through the
// constructor functions below and validated against an entity Schema before
// any query text is produced, so arbitrary field names never reach storage.
type Filter struct {
	field string
	op    filterOp
	value any
	from  any
	to    any
}

// Eq matches rows whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{field: field, op: opEq, value: value}
}

// Range matches rows whose field lies within [from, to]. Either bound may be
// nil to leave that side open.
func Range(field string, from, to any) Filter {
	return Filter{field: field, op: opRange, from: from, to: to}
}

// Contains matches rows whose field contains the substring.
func Contains(field string, substring string) Filter {
	return Filter{field: field, op: opContains, value: substring}
}

// Condition is one compiled predicate fragment: placeholder SQL plus its
// arguments, ready for the storage layer's Where.
type Condition struct {
	Expr string
	Args []any
}

// CompileFilters validates each filter against the schema's allow-list and
// compiles it to a condition. The first disallowed field fails the whole set.
func CompileFilters(schema Schema, filters []Filter) ([]Condition, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	conditions := make([]Condition, 0, len(filters))
	for _, filter := range filters {
		column, err := schema.FilterColumn(filter.field)
		if err != nil {
			return nil, err
		}
		switch filter.op {
		case opEq:
			conditions = append(conditions, Condition{Expr: column + " = ?", Args: []any{filter.value}})
		case opRange:
			if filter.from != nil {
				conditions = append(conditions, Condition{Expr: column + " >= ?", Args: []any{filter.from}})
			}
			if filter.to != nil {
				conditions = append(conditions, Condition{Expr: column + " <= ?", Args: []any{filter.to}})
			}
		case opContains:
			substring, ok := filter.value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: contains on %q requires a string", ErrInvalidFilterField, filter.field)
			}
			conditions = append(conditions, Condition{
				Expr: column + ` LIKE ? ESCAPE '\'`,
				Args: []any{"%" + escapeLike(substring) + "%"},
			})
		}
	}
	return conditions, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
