package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationRecountCommentCounters = "2026-08-20_recount_comment_counters"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationRecountCommentCounters, apply: recountCommentCounters},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// recountCommentCounters rebuilds the denormalized like and reply counters
// from their source-of-truth rows. Earlier deployments adjusted counters
// outside the owning transaction and could drift.
func recountCommentCounters(db *gorm.DB) error {
	recountLikes := `
UPDATE comments SET like_count = (
	SELECT COUNT(*) FROM comment_likes WHERE comment_likes.comment_id = comments.id
);`
	if err := db.Exec(recountLikes).Error; err != nil {
		return err
	}
	recountReplies := `
UPDATE comments SET reply_count = (
	SELECT COUNT(*) FROM comments AS replies
	WHERE replies.parent_id = comments.id AND replies.is_deleted = 0
);`
	return db.Exec(recountReplies).Error
}
