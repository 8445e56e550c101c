package boards

import (
	"context"
	"errors"

	"github.com/mallforge/backend/internal/listing"
	"github.com/mallforge/backend/internal/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("boards: database handle is required")

// ServiceConfig describes the dependencies of the board service.
type ServiceConfig struct {
	Database *gorm.DB
	Lister   *listing.Service
	Logger   *zap.Logger
}

// Service lists board posts for the admin surface.
type Service struct {
	lister *listing.Service
}

// NewService constructs the board service.
func NewService(cfg ServiceConfig) (*Service, error) {
	lister := cfg.Lister
	if lister == nil {
		if cfg.Database == nil {
			return nil, errMissingDatabase
		}
		var err error
		lister, err = listing.NewService(listing.ServiceConfig{Database: cfg.Database, Logger: cfg.Logger})
		if err != nil {
			return nil, err
		}
	}
	return &Service{lister: lister}, nil
}

// ListOptions carries the caller's pagination preferences.
type ListOptions struct {
	Filters []pagination.Filter
	Sort    pagination.SortField
	Dir     pagination.Direction
	Limit   int
	Cursor  string
}

// ListPosts returns one page of live posts, newest first by default.
func (s *Service) ListPosts(ctx context.Context, opts ListOptions) (listing.Page[Post], error) {
	return listing.List[Post](ctx, s.lister, listing.Query{
		Schema:  Schema,
		Scope:   []pagination.Condition{{Expr: "is_deleted = ?", Args: []any{false}}},
		Filters: opts.Filters,
		Sort:    opts.Sort,
		Dir:     opts.Dir,
		Limit:   opts.Limit,
		Cursor:  opts.Cursor,
	})
}
