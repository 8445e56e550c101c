package comments

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustTopicID(t *testing.T, value string) TopicID {
	t.Helper()
	id, err := NewTopicID(value)
	if err != nil {
		t.Fatalf("unexpected topic id error: %v", err)
	}
	return id
}

func mustAuthorID(t *testing.T, value string) AuthorID {
	t.Helper()
	id, err := NewAuthorID(value)
	if err != nil {
		t.Fatalf("unexpected author id error: %v", err)
	}
	return id
}

// tickingClock hands out strictly increasing seconds so created_at ordering
// in tests is deterministic.
type tickingClock struct {
	current atomic.Int64
}

func newTickingClock(start int64) *tickingClock {
	clock := &tickingClock{}
	clock.current.Store(start)
	return clock
}

func (c *tickingClock) Now() time.Time {
	return time.Unix(c.current.Add(1), 0).UTC()
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *tickingClock) {
	t.Helper()

	dsn := fmt.Sprintf("file:comments_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Comment{}, &CommentLike{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := newTickingClock(1700000000)
	service, err := NewService(ServiceConfig{Database: db, Clock: clock.Now})
	if err != nil {
		t.Fatalf("failed to construct comments service: %v", err)
	}
	return service, db, clock
}

func mustCreateRoot(t *testing.T, service *Service, topic, author, content string) Comment {
	t.Helper()
	created, err := service.CreateComment(context.Background(), CreateCommentInput{
		Topic:     mustTopicID(t, topic),
		Placement: RootPlacement(),
		Author:    mustAuthorID(t, author),
		Content:   content,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return created
}

func mustCreateReply(t *testing.T, service *Service, parentID int64, author, content string) Comment {
	t.Helper()
	created, err := service.CreateComment(context.Background(), CreateCommentInput{
		Placement: ReplyPlacement(parentID),
		Author:    mustAuthorID(t, author),
		Content:   content,
	})
	if err != nil {
		t.Fatalf("unexpected reply error: %v", err)
	}
	return created
}
