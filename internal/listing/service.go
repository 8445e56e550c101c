package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/mallforge/backend/internal/pagination"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// ErrStorage wraps storage failures surfaced by list queries. Reads are
// idempotent; retrying the whole call is safe.
var ErrStorage = errors.New("listing: storage error")

const (
	opServiceNew = "listing.service.new"
	opList       = "listing.list"
)

// ServiceError carries an operation-scoped failure code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Entity is implemented by models that can appear in a keyset-paginated
// listing: they expose their tie-break identifier and the current value of
// any allow-listed sort field.
type Entity interface {
	TieBreak() int64
	SortValue(field pagination.SortField) (any, bool)
}

// Query describes one listing request. Scope conditions are structural (the
// entity's baseline existence filter, a parent linkage) and participate in
// both totals; Filters are caller-supplied and only narrow TotalFiltered.
type Query struct {
	Schema  pagination.Schema
	Scope   []pagination.Condition
	Filters []pagination.Filter
	Sort    pagination.SortField
	Dir     pagination.Direction
	Limit   int
	Cursor  string
}

// Page is one finite slice of a listing. NextCursor is present iff rows
// exist strictly beyond the last item under the same ordering.
type Page[T any] struct {
	Items         []T
	NextCursor    string
	TotalAll      int64
	TotalFiltered int64
}

// ServiceConfig describes the dependencies of the list service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service executes keyset-paginated listings against storage. It holds no
// per-call state and is safe for concurrent use.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// List fetches one page of T.
//
// It overfetches by one row to detect whether more rows exist, trims back to
// the limit, and derives the next cursor from the last kept row. Both totals
// are counted concurrently with the page fetch. A malformed or mismatched
// cursor degrades to the first page; an unknown sort field fails closed.
func List[T Entity](ctx context.Context, s *Service, query Query) (Page[T], error) {
	if s.db == nil {
		return Page[T]{}, newServiceError(opList, "missing_database", errMissingDatabase)
	}

	limit := clampLimit(query.Limit)
	sortField := query.Sort
	if sortField == "" {
		sortField = query.Schema.DefaultSort
	}
	direction := pagination.ParseDirection(string(query.Dir), query.Schema.DefaultDir)

	token := decodeCursor(s, query.Schema.Entity, query.Cursor)
	plan, err := pagination.BuildPlan(query.Schema, sortField, direction, token)
	if err != nil {
		return Page[T]{}, err
	}

	filterConditions, err := pagination.CompileFilters(query.Schema, query.Filters)
	if err != nil {
		return Page[T]{}, err
	}

	var (
		items         []T
		totalAll      int64
		totalFiltered int64
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		scoped := applyConditions(s.base(groupCtx).Model(new(T)), query.Scope)
		return scoped.Count(&totalAll).Error
	})
	group.Go(func() error {
		filtered := applyConditions(applyConditions(s.base(groupCtx).Model(new(T)), query.Scope), filterConditions)
		return filtered.Count(&totalFiltered).Error
	})
	group.Go(func() error {
		rows := applyConditions(applyConditions(s.base(groupCtx), query.Scope), filterConditions)
		if plan.Predicate != nil {
			rows = rows.Where(plan.Predicate.Expr, plan.Predicate.Args...)
		}
		return rows.Order(plan.OrderBy).Limit(limit + 1).Find(&items).Error
	})
	if err := group.Wait(); err != nil {
		s.logError(opList, "query_failed", err, zap.String("entity", query.Schema.Entity))
		return Page[T]{}, newServiceError(opList, "query_failed", fmt.Errorf("%w: %v", ErrStorage, err))
	}

	page := Page[T]{TotalAll: totalAll, TotalFiltered: totalFiltered}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		sortValue, ok := last.SortValue(sortField)
		if !ok {
			return Page[T]{}, newServiceError(opList, "sort_value_unavailable",
				fmt.Errorf("%w: %q on %s", pagination.ErrInvalidSortField, sortField, query.Schema.Entity))
		}
		cursor, err := pagination.EncodeToken(pagination.Token{
			Entity:    query.Schema.Entity,
			Field:     sortField,
			Dir:       direction,
			SortValue: sortValue,
			TieBreak:  last.TieBreak(),
		})
		if err != nil {
			return Page[T]{}, newServiceError(opList, "cursor_encode_failed", err)
		}
		page.NextCursor = cursor
	}
	page.Items = items
	return page, nil
}

func (s *Service) base(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Session(&gorm.Session{NewDB: true})
}

func applyConditions(db *gorm.DB, conditions []pagination.Condition) *gorm.DB {
	for _, condition := range conditions {
		db = db.Where(condition.Expr, condition.Args...)
	}
	return db
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// decodeCursor degrades malformed input to "no cursor" so pagination stays
// resilient to client bugs.
func decodeCursor(s *Service, entity, cursor string) *pagination.Token {
	if cursor == "" {
		return nil
	}
	token, err := pagination.DecodeToken(cursor)
	if err != nil {
		s.loggerOrDefault().Debug("cursor discarded",
			zap.String("entity", entity),
			zap.Error(err))
		return nil
	}
	return &token
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("listing service error", attrs...)
}
