package pagination

import (
	"fmt"
	"strings"
)

// Plan is the planner's output: an optional keyset predicate positioning the
// query strictly after the cursor row, and the ordering that makes the page
// sequence deterministic.
type Plan struct {
	Predicate *Condition
	OrderBy   string
}

// BuildPlan turns (sort field, direction, optional token) into a keyset plan.
//
// The predicate is always the two-term disjunction
//
//	(col <cmp> ?) OR (col = ? AND tie <cmp> ?)
//
// where <cmp> follows the sort direction. The second term is what keeps rows
// sharing a sort value from being skipped or repeated across pages; the
// tie-break column is ordered in the same direction as the main sort, always.
//
// A nil token, or a token issued under a different (entity, field, direction),
// produces no predicate: the page stream restarts from the beginning.
func BuildPlan(schema Schema, field SortField, dir Direction, token *Token) (Plan, error) {
	column, err := schema.SortColumn(field)
	if err != nil {
		return Plan{}, err
	}

	comparator := ">"
	keyword := "ASC"
	if dir == DirectionDesc {
		comparator = "<"
		keyword = "DESC"
	}

	plan := Plan{
		OrderBy: fmt.Sprintf("%s %s, %s %s", column, keyword, schema.TieBreak, keyword),
	}

	if token == nil || !tokenMatches(schema, field, dir, *token) {
		return plan, nil
	}

	var expr strings.Builder
	fmt.Fprintf(&expr, "(%s %s ?) OR (%s = ? AND %s %s ?)", column, comparator, column, schema.TieBreak, comparator)
	plan.Predicate = &Condition{
		Expr: expr.String(),
		Args: []any{token.SortValue, token.SortValue, token.TieBreak},
	}
	return plan, nil
}

func tokenMatches(schema Schema, field SortField, dir Direction, token Token) bool {
	return token.Entity == schema.Entity && token.Field == field && token.Dir == dir
}
