package pagination

import (
	"errors"
	"testing"
)

func TestCompileFiltersEquality(t *testing.T) {
	conditions, err := CompileFilters(testSchema, []Filter{Eq("author", "user-1")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(conditions))
	}
	if conditions[0].Expr != "author_id = ?" {
		t.Fatalf("unexpected expr: %q", conditions[0].Expr)
	}
	if conditions[0].Args[0] != "user-1" {
		t.Fatalf("unexpected arg: %#v", conditions[0].Args[0])
	}
}

func TestCompileFiltersRangeBounds(t *testing.T) {
	conditions, err := CompileFilters(testSchema, []Filter{Range("created_at", int64(100), int64(200))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conditions) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(conditions))
	}
	if conditions[0].Expr != "created_at_s >= ?" || conditions[1].Expr != "created_at_s <= ?" {
		t.Fatalf("unexpected exprs: %q / %q", conditions[0].Expr, conditions[1].Expr)
	}

	openEnded, err := CompileFilters(testSchema, []Filter{Range("created_at", nil, int64(200))})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(openEnded) != 1 || openEnded[0].Expr != "created_at_s <= ?" {
		t.Fatalf("expected single upper bound, got %#v", openEnded)
	}
}

func TestCompileFiltersContainsEscapesWildcards(t *testing.T) {
	conditions, err := CompileFilters(testSchema, []Filter{Contains("content", "50%_off")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conditions) != 1 {
		t.Fatalf("expected 1 condition, got %d", len(conditions))
	}
	arg, ok := conditions[0].Args[0].(string)
	if !ok {
		t.Fatalf("expected string arg, got %#v", conditions[0].Args[0])
	}
	if arg != `%50\%\_off%` {
		t.Fatalf("expected escaped pattern, got %q", arg)
	}
}

func TestCompileFiltersRejectsUnknownField(t *testing.T) {
	if _, err := CompileFilters(testSchema, []Filter{Eq("password_hash", "x")}); !errors.Is(err, ErrInvalidFilterField) {
		t.Fatalf("expected ErrInvalidFilterField, got %v", err)
	}
}

func TestCompileFiltersEmptySet(t *testing.T) {
	conditions, err := CompileFilters(testSchema, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conditions != nil {
		t.Fatalf("expected nil conditions, got %#v", conditions)
	}
}
