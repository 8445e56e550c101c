package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/mallforge/backend/internal/boards"
	"github.com/mallforge/backend/internal/comments"
	"github.com/mallforge/backend/internal/orders"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
// TranslateError is on so unique-index violations surface as
// gorm.ErrDuplicatedKey; the like toggle and the order number generator
// depend on that signal for their retry loops.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&comments.Comment{},
		&comments.CommentLike{},
		&boards.Post{},
		&orders.OrderNumber{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}
